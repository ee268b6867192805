package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/payments"
	"github.com/mkamau512/daktari_connect/utils"
)

// RefundService computes refund/fee splits, calls the gateway and debits the
// doctor's ledger. The gateway keeps its processing fee on refunds; that
// share is absorbed by the doctor's balance, never returned to the patient.
type RefundService struct {
	store   PaymentStore
	refunds RefundStore
	ledger  LedgerStore
	gateway payments.Gateway
	events  EventPublisher
	feeRate payments.FeeRate
}

func NewRefundService(store PaymentStore, refunds RefundStore, ledger LedgerStore, gateway payments.Gateway, events EventPublisher, feeRate payments.FeeRate) *RefundService {
	return &RefundService{
		store:   store,
		refunds: refunds,
		ledger:  ledger,
		gateway: gateway,
		events:  events,
		feeRate: feeRate,
	}
}

type RefundInput struct {
	PaymentID   uuid.UUID
	Amount      *float64 // nil means full refund
	Reason      string
	Type        string
	InitiatorID uuid.UUID
}

const refundEpsilon = 0.005

func (s *RefundService) ProcessRefund(ctx context.Context, in RefundInput) (*models.RefundRecord, error) {
	p, err := s.store.FindByID(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrPaymentNotRefundable, p.Status)
	}
	if p.RefundAmount != nil {
		return nil, ErrAlreadyRefunded
	}

	amount := p.Amount
	if in.Amount != nil {
		amount = *in.Amount
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrInvalidAmount)
	}
	alreadyRefunded, err := s.refunds.CompletedTotalForPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if amount+alreadyRefunded > p.Amount+refundEpsilon {
		return nil, ErrRefundExceedsAmount
	}
	if p.GatewayChargeID == nil {
		return nil, ErrNoGatewayCharge
	}

	fee := s.feeRate.RefundFeeFor(amount, p.Amount)
	fraction := amount / p.Amount
	doctorDebit := utils.Round2(p.DoctorAmount * fraction)

	// Check the balance can absorb the debit before money moves at the
	// gateway. Going negative is not allowed; that case needs an operator.
	if p.DoctorID != nil && doctorDebit+fee > 0 {
		l, err := s.ledger.Get(ctx, *p.DoctorID)
		if err != nil {
			return nil, err
		}
		held := 0.0
		if l != nil {
			held = l.PendingBalance + l.AvailableBalance
		}
		if held+refundEpsilon < doctorDebit+fee {
			log.Printf("🔥 RECONCILIATION: refund of payment %s would overdraw doctor %s (held %0.2f, debit %0.2f)",
				p.ID, p.DoctorID, held, doctorDebit+fee)
			return nil, models.ErrInsufficientBalance
		}
	}

	rec := &models.RefundRecord{
		ID:          uuid.New(),
		PaymentID:   p.ID,
		Amount:      amount,
		Fee:         fee,
		Reason:      in.Reason,
		Type:        in.Type,
		InitiatorID: in.InitiatorID,
		Status:      models.RefundStatusPending,
	}
	if err := s.refunds.Create(ctx, rec); err != nil {
		return nil, err
	}

	result, err := s.gateway.Refund(ctx, *p.GatewayChargeID, amount, in.Reason, map[string]string{
		"payment_id": p.ID.String(),
		"type":       in.Type,
	})
	if err != nil {
		// The payment stays completed; the failed attempt is kept.
		msg := err.Error()
		rec.Status = models.RefundStatusFailed
		rec.ErrorMessage = &msg
		if uerr := s.refunds.Update(ctx, rec); uerr != nil {
			log.Printf("🔥 Failed to record failed refund attempt for payment %s: %v", p.ID, uerr)
		}
		return nil, err
	}

	refunded, err := s.store.Transition(ctx, p.ID, func(p *models.Payment) error {
		if !p.Status.CanTransitionTo(models.PaymentStatusRefunded) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.Status, models.PaymentStatusRefunded)
		}
		now := time.Now()
		refundAmount := amount
		refundFee := fee
		p.Status = models.PaymentStatusRefunded
		p.RefundAmount = &refundAmount
		p.RefundFee = &refundFee
		p.RefundedAt = &now
		return nil
	})
	if err != nil {
		log.Printf("🔥 RECONCILIATION: gateway refund %s succeeded but payment %s not flipped: %v", result.ID, p.ID, err)
		return nil, err
	}

	gatewayRefundID := result.ID
	rec.Status = models.RefundStatusCompleted
	rec.GatewayRefundID = &gatewayRefundID
	if err := s.refunds.Update(ctx, rec); err != nil {
		log.Printf("🔥 Failed to finalize refund record %s: %v", rec.ID, err)
	}

	if p.DoctorID != nil && doctorDebit+fee > 0 {
		if _, err := s.ledger.Mutate(ctx, *p.DoctorID, func(l *models.BalanceLedger) error {
			return l.DebitForRefund(doctorDebit, fee)
		}); err != nil {
			// Money already moved at the gateway; flag for an operator.
			log.Printf("🔥 RECONCILIATION: ledger debit failed after refund %s of payment %s: %v", result.ID, p.ID, err)
		}
	}

	s.events.RefundProcessed(refunded, rec)
	return rec, nil
}

// RefundForNoShow forces a full refund when the doctor did not attend.
func (s *RefundService) RefundForNoShow(ctx context.Context, paymentID, initiatorID uuid.UUID) (*models.RefundRecord, error) {
	return s.ProcessRefund(ctx, RefundInput{
		PaymentID:   paymentID,
		Reason:      "consultation not attended",
		Type:        models.RefundTypeNoShow,
		InitiatorID: initiatorID,
	})
}

// RefundForIncompleteConsultation forces a full refund for a consultation
// that started but was not completed.
func (s *RefundService) RefundForIncompleteConsultation(ctx context.Context, paymentID, initiatorID uuid.UUID) (*models.RefundRecord, error) {
	return s.ProcessRefund(ctx, RefundInput{
		PaymentID:   paymentID,
		Reason:      "consultation incomplete",
		Type:        models.RefundTypeIncomplete,
		InitiatorID: initiatorID,
	})
}

// PartialRefund refunds part of a completed payment.
func (s *RefundService) PartialRefund(ctx context.Context, paymentID uuid.UUID, amount float64, reason string, initiatorID uuid.UUID) (*models.RefundRecord, error) {
	return s.ProcessRefund(ctx, RefundInput{
		PaymentID:   paymentID,
		Amount:      &amount,
		Reason:      reason,
		Type:        models.RefundTypePartial,
		InitiatorID: initiatorID,
	})
}
