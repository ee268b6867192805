package notifications

import (
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	config "github.com/mkamau512/daktari_connect/configs"
	"github.com/mkamau512/daktari_connect/models"
)

const (
	TopicPaymentCompleted = "payment.completed"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentCancelled = "payment.cancelled"
	TopicRefundProcessed  = "refund.processed"
	TopicPayoutProcessed  = "payout.processed"
)

type PaymentEvent struct {
	PaymentID      string  `json:"payment_id"`
	PatientID      string  `json:"patient_id"`
	DoctorID       string  `json:"doctor_id,omitempty"`
	ConsultationID string  `json:"consultation_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Method         string  `json:"method"`
	Status         string  `json:"status"`
	FailureReason  string  `json:"failure_reason,omitempty"`
	OccurredAt     string  `json:"occurred_at"`
}

type RefundEvent struct {
	PaymentID  string  `json:"payment_id"`
	RefundID   string  `json:"refund_id"`
	Amount     float64 `json:"amount"`
	Fee        float64 `json:"fee"`
	Reason     string  `json:"reason"`
	Type       string  `json:"type"`
	OccurredAt string  `json:"occurred_at"`
}

type PayoutEvent struct {
	DoctorID   string  `json:"doctor_id"`
	Amount     float64 `json:"amount"`
	TransferID string  `json:"transfer_id"`
	OccurredAt string  `json:"occurred_at"`
}

// Publisher emits payment lifecycle events to Kafka. Delivery is best-effort
// by design: a publish failure is logged and never rolls back a payment.
type Publisher struct {
	producer sarama.SyncProducer
}

func NewPublisher() *Publisher {
	broker := config.Config("KAFKA_BROKER")
	if broker == "" {
		broker = "localhost:9092"
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll

	var producer sarama.SyncProducer
	var err error
	for i := 1; i <= 10; i++ {
		producer, err = sarama.NewSyncProducer([]string{broker}, cfg)
		if err == nil {
			log.Println("✅ Kafka producer initialized")
			return &Publisher{producer: producer}
		}
		log.Printf("Waiting for Kafka... (%d/10) Error: %v", i, err)
		time.Sleep(5 * time.Second)
	}

	log.Printf("🔥 Kafka unavailable, payment events will be dropped: %v", err)
	return &Publisher{}
}

func (p *Publisher) publish(topic string, event interface{}) {
	if p == nil || p.producer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", topic, err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		log.Printf("Failed to send %s event: %v", topic, err)
		return
	}
	log.Printf("📤 Published %s event: %s", topic, string(data))
}

func paymentEvent(payment *models.Payment) PaymentEvent {
	e := PaymentEvent{
		PaymentID:      payment.ID.String(),
		PatientID:      payment.PatientID.String(),
		ConsultationID: payment.ConsultationID.String(),
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Method:         payment.Method,
		Status:         string(payment.Status),
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if payment.DoctorID != nil {
		e.DoctorID = payment.DoctorID.String()
	}
	if payment.FailureReason != nil {
		e.FailureReason = *payment.FailureReason
	}
	return e
}

func (p *Publisher) PaymentCompleted(payment *models.Payment) {
	p.publish(TopicPaymentCompleted, paymentEvent(payment))
}

func (p *Publisher) PaymentFailed(payment *models.Payment) {
	p.publish(TopicPaymentFailed, paymentEvent(payment))
}

func (p *Publisher) PaymentCancelled(payment *models.Payment) {
	p.publish(TopicPaymentCancelled, paymentEvent(payment))
}

func (p *Publisher) RefundProcessed(payment *models.Payment, refund *models.RefundRecord) {
	p.publish(TopicRefundProcessed, RefundEvent{
		PaymentID:  payment.ID.String(),
		RefundID:   refund.ID.String(),
		Amount:     refund.Amount,
		Fee:        refund.Fee,
		Reason:     refund.Reason,
		Type:       refund.Type,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) PayoutProcessed(doctorID uuid.UUID, amount float64, transferID string) {
	p.publish(TopicPayoutProcessed, PayoutEvent{
		DoctorID:   doctorID.String(),
		Amount:     amount,
		TransferID: transferID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
}
