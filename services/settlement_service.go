package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/payments"
	"github.com/mkamau512/daktari_connect/utils"
)

// SettlementService drives the payment state machine: initiate -> confirm ->
// complete/fail, plus cancellation, retry and webhook reconciliation.
type SettlementService struct {
	store   PaymentStore
	ledger  LedgerStore
	fees    FeeResolver
	gateway payments.Gateway
	events  EventPublisher
	feeRate payments.FeeRate
}

func NewSettlementService(store PaymentStore, ledger LedgerStore, fees FeeResolver, gateway payments.Gateway, events EventPublisher, feeRate payments.FeeRate) *SettlementService {
	return &SettlementService{
		store:   store,
		ledger:  ledger,
		fees:    fees,
		gateway: gateway,
		events:  events,
		feeRate: feeRate,
	}
}

type InitiateInput struct {
	PatientID      uuid.UUID
	DoctorID       *uuid.UUID
	ConsultationID uuid.UUID
	Specialization string
	Currency       string
}

type InitiateResult struct {
	Payment      *models.Payment
	ClientSecret string
	Idempotent   bool
}

// Initiate resolves the fee, creates a gateway intent and persists a pending
// payment. The row is only written after the gateway call succeeds, so a
// gateway failure leaves nothing behind. A repeated request with the same
// business keys resolves to the existing row.
func (s *SettlementService) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	if in.PatientID == uuid.Nil || in.ConsultationID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient and consultation are required", ErrMissingField)
	}

	key := utils.PaymentIdempotencyKey(in.PatientID, in.ConsultationID, in.DoctorID)

	if existing, err := s.store.FindByIdempotencyKey(ctx, key); err != nil {
		return nil, err
	} else if existing != nil {
		return &InitiateResult{Payment: existing, ClientSecret: clientSecretOf(existing), Idempotent: true}, nil
	}

	fee, err := s.fees.GetApplicableFee(ctx, in.Specialization)
	if err != nil {
		return nil, err
	}
	if fee <= 0 {
		return nil, fmt.Errorf("%w: resolved consultation fee is %0.2f", ErrInvalidAmount, fee)
	}

	pct, err := s.fees.PlatformFeePercent(ctx)
	if err != nil {
		return nil, err
	}
	platformFee := utils.Round2(fee * pct / 100)
	doctorAmount := utils.Round2(fee - platformFee)

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}

	meta := map[string]string{
		"patient_id":      in.PatientID.String(),
		"consultation_id": in.ConsultationID.String(),
	}
	intent, err := s.gateway.CreateIntent(ctx, fee, currency, meta, key)
	if err != nil {
		return nil, err
	}

	intentID := intent.ID
	p := &models.Payment{
		ID:              uuid.New(),
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		ConsultationID:  in.ConsultationID,
		Amount:          fee,
		Currency:        currency,
		PlatformFee:     platformFee,
		DoctorAmount:    doctorAmount,
		Status:          models.PaymentStatusPending,
		Method:          models.PaymentMethodCard,
		IdempotencyKey:  key,
		GatewayIntentID: &intentID,
		Metadata: datatypes.JSONMap{
			"client_secret":  intent.ClientSecret,
			"specialization": in.Specialization,
		},
	}

	if err := s.store.Create(ctx, p); err != nil {
		if err == ErrDuplicateKey {
			// Lost the race: hand the caller the winner's row.
			winner, ferr := s.store.FindByIdempotencyKey(ctx, key)
			if ferr != nil || winner == nil {
				return nil, ErrDuplicateKey
			}
			return &InitiateResult{Payment: winner, ClientSecret: clientSecretOf(winner), Idempotent: true}, nil
		}
		return nil, err
	}

	return &InitiateResult{Payment: p, ClientSecret: intent.ClientSecret}, nil
}

// Confirm is only legal while the payment is pending. A retryable gateway
// error leaves the payment untouched; success is never guessed on a timeout,
// the webhook or an operator resolves the ambiguity. Terminal gateway errors
// mark the payment failed.
func (s *SettlementService) Confirm(ctx context.Context, paymentID uuid.UUID, paymentMethodRef string) (*models.Payment, error) {
	p, err := s.store.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrPaymentNotPending, p.Status)
	}
	if p.GatewayIntentID == nil {
		return nil, fmt.Errorf("%w: payment has no gateway intent", ErrPaymentNotPending)
	}

	intent, err := s.gateway.Confirm(ctx, *p.GatewayIntentID, paymentMethodRef)
	if err != nil {
		if payments.IsRetryable(err) {
			return nil, err
		}
		failed, applyErr := s.applyGatewayOutcome(ctx, p.ID, "", "", err.Error())
		if applyErr != nil {
			return nil, applyErr
		}
		return failed, err
	}

	return s.applyGatewayOutcome(ctx, p.ID, intent.Status, intent.ChargeID, "")
}

// Cancel is only legal from pending.
func (s *SettlementService) Cancel(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	p, err := s.store.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrPaymentNotPending, p.Status)
	}

	if p.GatewayIntentID != nil {
		if err := s.gateway.Cancel(ctx, *p.GatewayIntentID); err != nil {
			return nil, err
		}
	}

	cancelled, err := s.store.Transition(ctx, paymentID, func(p *models.Payment) error {
		if p.Status == models.PaymentStatusCancelled {
			return ErrUnchanged
		}
		if !p.Status.CanTransitionTo(models.PaymentStatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.Status, models.PaymentStatusCancelled)
		}
		p.Status = models.PaymentStatusCancelled
		ensureMetadata(p)
		p.Metadata["cancellation_reason"] = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.PaymentCancelled(cancelled)
	return cancelled, nil
}

// HandleWebhook reconciles a gateway status report, looked up by gateway
// intent id. Delivery is at-least-once; a report that maps to the current
// status is absorbed as a no-op rather than deduplicated upstream. The charge
// id from the event envelope is recorded on completion so a payment that only
// ever completes through the webhook stays refundable.
func (s *SettlementService) HandleWebhook(ctx context.Context, gatewayIntentID, gatewayStatus, chargeID string) (*models.Payment, error) {
	p, err := s.store.FindByIntentID(ctx, gatewayIntentID)
	if err != nil {
		return nil, err
	}
	return s.applyGatewayOutcome(ctx, p.ID, gatewayStatus, chargeID, "")
}

// Retry mints a new idempotency key and gateway intent for a failed payment.
// The dead intent is never reused; the attempt counter lives in metadata.
func (s *SettlementService) Retry(ctx context.Context, paymentID uuid.UUID) (*InitiateResult, error) {
	p, err := s.store.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusFailed {
		return nil, fmt.Errorf("%w: status is %s", ErrPaymentNotFailed, p.Status)
	}

	attempt := retryCount(p) + 1
	newKey := utils.RetryIdempotencyKey(p.IdempotencyKey, attempt)

	meta := map[string]string{
		"patient_id":      p.PatientID.String(),
		"consultation_id": p.ConsultationID.String(),
		"retry_of":        p.ID.String(),
	}
	intent, err := s.gateway.CreateIntent(ctx, p.Amount, p.Currency, meta, newKey)
	if err != nil {
		return nil, err
	}

	retried, err := s.store.Transition(ctx, paymentID, func(p *models.Payment) error {
		if p.Status != models.PaymentStatusFailed {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.Status, models.PaymentStatusPending)
		}
		intentID := intent.ID
		p.Status = models.PaymentStatusPending
		p.IdempotencyKey = newKey
		p.GatewayIntentID = &intentID
		p.GatewayChargeID = nil
		p.GatewayFee = 0
		p.NetAmount = 0
		p.FailureReason = nil
		ensureMetadata(p)
		p.Metadata["retry_count"] = attempt
		p.Metadata["client_secret"] = intent.ClientSecret
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &InitiateResult{Payment: retried, ClientSecret: intent.ClientSecret}, nil
}

// mapIntentStatus maps a gateway intent status onto the local state machine.
// requires_action keeps the payment pending; anything unrecognized is a
// failure.
func mapIntentStatus(gatewayStatus string) models.PaymentStatus {
	switch gatewayStatus {
	case payments.IntentStatusSucceeded:
		return models.PaymentStatusCompleted
	case payments.IntentStatusProcessing:
		return models.PaymentStatusProcessing
	case payments.IntentStatusRequiresAction:
		return models.PaymentStatusPending
	case payments.IntentStatusCanceled:
		return models.PaymentStatusCancelled
	default:
		return models.PaymentStatusFailed
	}
}

// applyGatewayOutcome is the single write path shared by Confirm and
// HandleWebhook, so a client confirm racing a webhook is commutative: the
// row lock makes the read-then-write atomic and ErrUnchanged absorbs the
// duplicate.
func (s *SettlementService) applyGatewayOutcome(ctx context.Context, paymentID uuid.UUID, gatewayStatus, chargeID, failureMsg string) (*models.Payment, error) {
	target := mapIntentStatus(gatewayStatus)

	applied := false
	p, err := s.store.Transition(ctx, paymentID, func(p *models.Payment) error {
		if p.Status == target {
			return ErrUnchanged
		}
		if !p.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.Status, target)
		}
		now := time.Now()
		p.Status = target
		switch target {
		case models.PaymentStatusCompleted:
			p.ProcessedAt = &now
			if chargeID != "" {
				charge := chargeID
				p.GatewayChargeID = &charge
			}
			p.GatewayFee = s.feeRate.FeeFor(p.Amount)
			p.NetAmount = utils.Round2(p.Amount - p.PlatformFee - p.GatewayFee)
		case models.PaymentStatusFailed:
			if failureMsg != "" {
				msg := failureMsg
				p.FailureReason = &msg
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return p, nil
	}

	switch target {
	case models.PaymentStatusCompleted:
		s.creditDoctor(ctx, p)
		s.events.PaymentCompleted(p)
	case models.PaymentStatusFailed:
		s.events.PaymentFailed(p)
	case models.PaymentStatusCancelled:
		s.events.PaymentCancelled(p)
	}
	return p, nil
}

// creditDoctor runs exactly once per completion because only the caller that
// actually flipped the status reaches it. A failure here does not undo the
// payment; it is flagged for the reconciliation sweep.
func (s *SettlementService) creditDoctor(ctx context.Context, p *models.Payment) {
	if p.DoctorID == nil || p.DoctorAmount <= 0 {
		return
	}
	_, err := s.ledger.Mutate(ctx, *p.DoctorID, func(l *models.BalanceLedger) error {
		return l.CreditPending(p.DoctorAmount)
	})
	if err != nil {
		log.Printf("🔥 RECONCILIATION: failed to credit doctor %s for payment %s: %v", p.DoctorID, p.ID, err)
	}
}

func clientSecretOf(p *models.Payment) string {
	if p.Metadata == nil {
		return ""
	}
	if secret, ok := p.Metadata["client_secret"].(string); ok {
		return secret
	}
	return ""
}

func ensureMetadata(p *models.Payment) {
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
}

func retryCount(p *models.Payment) int {
	if p.Metadata == nil {
		return 0
	}
	switch v := p.Metadata["retry_count"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
