package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	config "github.com/mkamau512/daktari_connect/configs"
	"github.com/mkamau512/daktari_connect/models"
)

type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

var EmailClient *BrevoService

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

func InitEmailService() {
	apiKey := config.Config("BREVO_API_KEY")
	senderEmail := config.Config("EMAIL_SENDER")
	senderName := config.Config("EMAIL_SENDER_NAME")

	if apiKey == "" || senderEmail == "" || senderName == "" {
		log.Println("⚠️ Email service not configured. Missing API Key, Sender Email, or Sender Name.")
		EmailClient = nil
		return
	}

	EmailClient = &BrevoService{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
	}
	log.Println("✅ Email service initialized successfully.")
}

func (s *BrevoService) send(toEmail, toName, subject, htmlContent string) error {
	url := "https://api.brevo.com/v3/smtp/email"

	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	client := &http.Client{
		Timeout: 10 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		log.Printf("Brevo API error: Status %d, Body: %s", resp.StatusCode, string(bodyBytes))
		return fmt.Errorf("failed to send email via Brevo: %s", string(bodyBytes))
	}

	return nil
}

func SendEmail(toName, toEmail, subject, htmlContent string) {
	if EmailClient == nil {
		log.Println("Email client not initialized, skipping email send.")
		return
	}

	err := EmailClient.send(toEmail, toName, subject, htmlContent)
	if err != nil {
		log.Printf("🔥 Failed to send email to %s: %v", toEmail, err)
		return
	}

	log.Printf("✅ Email sent successfully to %s", toEmail)
}

// SendPaymentReceipt emails the patient after a payment completes. Callers
// fire it in a goroutine; a lost receipt never affects the payment itself.
func SendPaymentReceipt(patientName, patientEmail string, payment *models.Payment) {
	subject := "Your consultation payment receipt"
	html := fmt.Sprintf(`
		<h2>Payment received</h2>
		<p>Hi %s,</p>
		<p>We received your payment of <strong>%.2f %s</strong> for consultation <code>%s</code>.</p>
		<p>Payment reference: <code>%s</code></p>
		<p>Thank you for using Daktari Connect.</p>`,
		patientName, payment.Amount, payment.Currency, payment.ConsultationID, payment.ID)
	SendEmail(patientName, patientEmail, subject, html)
}

// SendRefundNotice emails the patient when a refund is processed.
func SendRefundNotice(patientName, patientEmail string, payment *models.Payment, refund *models.RefundRecord) {
	subject := "Your refund has been processed"
	html := fmt.Sprintf(`
		<h2>Refund processed</h2>
		<p>Hi %s,</p>
		<p>A refund of <strong>%.2f %s</strong> for consultation <code>%s</code> has been sent back to your payment method.</p>
		<p>Reason: %s</p>
		<p>It can take 5 to 10 business days to appear on your statement.</p>`,
		patientName, refund.Amount, payment.Currency, payment.ConsultationID, refund.Reason)
	SendEmail(patientName, patientEmail, subject, html)
}

// SendPayoutNotice emails the doctor after a withdrawal goes out.
func SendPayoutNotice(doctorName, doctorEmail string, amount float64) {
	subject := "Your payout is on its way"
	html := fmt.Sprintf(`
		<h2>Payout sent</h2>
		<p>Hi %s,</p>
		<p>Your withdrawal of <strong>%.2f USD</strong> has been sent to your payout account.</p>`,
		doctorName, amount)
	SendEmail(doctorName, doctorEmail, subject, html)
}
