package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	config "github.com/mkamau512/daktari_connect/configs"
)

const defaultStripeAPIBase = "https://api.stripe.com"

// StripeGateway is a hand-rolled client for the Stripe payment-intents API.
// The caller's idempotency key is passed straight through on the
// Idempotency-Key header so a retried request cannot double-charge.
type StripeGateway struct {
	secretKey string
	apiBase   string
	client    *http.Client
}

func NewStripeGateway() *StripeGateway {
	apiBase := config.Config("STRIPE_API_BASE_URL")
	if apiBase == "" {
		apiBase = defaultStripeAPIBase
	}
	return &StripeGateway{
		secretKey: config.Config("STRIPE_SECRET_KEY"),
		apiBase:   apiBase,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	LatestCharge string `json:"latest_charge"`
}

type stripeRefundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type stripeTransferResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

func (g *StripeGateway) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.apiBase+path, body)
	if err != nil {
		return &GatewayError{Code: "request_build", Message: err.Error(), Retryable: false}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// Network failure or timeout: the caller owns the retry decision.
		return &GatewayError{Code: "network", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Code: "read_body", Message: err.Error(), Retryable: true}
	}

	if resp.StatusCode >= 400 {
		var apiErr stripeErrorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		code := apiErr.Error.Code
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		msg := apiErr.Error.Message
		if msg == "" {
			msg = string(respBody)
		}
		return &GatewayError{
			Code:      code,
			Message:   msg,
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &GatewayError{Code: "decode", Message: err.Error(), Retryable: false}
		}
	}
	return nil
}

func intentFromResponse(r *stripeIntentResponse) *Intent {
	return &Intent{
		ID:           r.ID,
		ClientSecret: r.ClientSecret,
		Status:       r.Status,
		Amount:       fromCents(r.Amount),
		Currency:     strings.ToUpper(r.Currency),
		ChargeID:     r.LatestCharge,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount float64, currency string, metadata map[string]string, idempotencyKey string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toCents(amount), 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out stripeIntentResponse
	if err := g.post(ctx, "/v1/payment_intents", form, idempotencyKey, &out); err != nil {
		return nil, err
	}
	return intentFromResponse(&out), nil
}

func (g *StripeGateway) Confirm(ctx context.Context, intentID, paymentMethodRef string) (*Intent, error) {
	form := url.Values{}
	form.Set("payment_method", paymentMethodRef)

	var out stripeIntentResponse
	if err := g.post(ctx, fmt.Sprintf("/v1/payment_intents/%s/confirm", intentID), form, "", &out); err != nil {
		return nil, err
	}
	return intentFromResponse(&out), nil
}

func (g *StripeGateway) Cancel(ctx context.Context, intentID string) error {
	return g.post(ctx, fmt.Sprintf("/v1/payment_intents/%s/cancel", intentID), url.Values{}, "", nil)
}

func (g *StripeGateway) Refund(ctx context.Context, chargeID string, amount float64, reason string, metadata map[string]string) (*RefundResult, error) {
	form := url.Values{}
	form.Set("charge", chargeID)
	form.Set("amount", strconv.FormatInt(toCents(amount), 10))
	if reason != "" {
		form.Set("metadata[reason]", reason)
	}
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out stripeRefundResponse
	if err := g.post(ctx, "/v1/refunds", form, "", &out); err != nil {
		return nil, err
	}
	return &RefundResult{ID: out.ID, Status: out.Status, Amount: fromCents(out.Amount)}, nil
}

func (g *StripeGateway) Transfer(ctx context.Context, amount float64, destinationAccount string, metadata map[string]string) (*TransferResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toCents(amount), 10))
	form.Set("currency", "usd")
	form.Set("destination", destinationAccount)
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out stripeTransferResponse
	if err := g.post(ctx, "/v1/transfers", form, "", &out); err != nil {
		return nil, err
	}
	return &TransferResult{ID: out.ID, Amount: fromCents(out.Amount)}, nil
}
