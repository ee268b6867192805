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

// LedgerService exposes the per-doctor balance and the payout path, and runs
// the settlement sweep that moves funds out of the pending hold window.
type LedgerService struct {
	store         LedgerStore
	paymentsStore PaymentStore
	gateway       payments.Gateway
	events        EventPublisher
}

func NewLedgerService(store LedgerStore, paymentsStore PaymentStore, gateway payments.Gateway, events EventPublisher) *LedgerService {
	return &LedgerService{
		store:         store,
		paymentsStore: paymentsStore,
		gateway:       gateway,
		events:        events,
	}
}

// GetBalance returns the doctor's ledger, or a zeroed one when the doctor
// has never been credited (the row is created lazily on first credit).
func (s *LedgerService) GetBalance(ctx context.Context, doctorID uuid.UUID) (*models.BalanceLedger, error) {
	l, err := s.store.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return &models.BalanceLedger{DoctorID: doctorID}, nil
	}
	return l, nil
}

func (s *LedgerService) CanWithdraw(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	l, err := s.store.Get(ctx, doctorID)
	if err != nil {
		return false, err
	}
	return l != nil && l.CanWithdraw(), nil
}

// Withdraw transfers available funds to the doctor's gateway payout account.
// The eligibility checks run again inside the ledger lock; a concurrent
// withdrawal cannot overdraw.
func (s *LedgerService) Withdraw(ctx context.Context, doctorID uuid.UUID, amount float64) (*models.BalanceLedger, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidAmount)
	}

	l, err := s.store.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrLedgerNotFound
	}
	if !l.PayoutEnabled {
		return nil, models.ErrPayoutDisabled
	}
	if amount < l.MinimumPayout {
		return nil, models.ErrBelowMinimumPayout
	}
	if l.AvailableBalance < amount {
		return nil, models.ErrInsufficientBalance
	}
	if l.GatewayAccountID == nil {
		return nil, ErrPayoutAccountMissing
	}

	transfer, err := s.gateway.Transfer(ctx, amount, *l.GatewayAccountID, map[string]string{
		"doctor_id": doctorID.String(),
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Mutate(ctx, doctorID, func(l *models.BalanceLedger) error {
		return l.Withdraw(amount, time.Now())
	})
	if err != nil {
		// Transfer already left; never silently swallow this.
		log.Printf("🔥 RECONCILIATION: transfer %s sent but ledger debit failed for doctor %s: %v", transfer.ID, doctorID, err)
		return nil, err
	}

	s.events.PayoutProcessed(doctorID, amount, transfer.ID)
	return updated, nil
}

// SettleDue moves doctor earnings from pending to available once their
// payment has aged past the hold window. Per-payment failures are logged and
// skipped so one bad row cannot wedge the sweep.
func (s *LedgerService) SettleDue(ctx context.Context, hold time.Duration) (int, error) {
	cutoff := time.Now().Add(-hold)
	due, err := s.paymentsStore.SettleablePayments(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range due {
		doctorID := *p.DoctorID
		amount := settleableAmount(&p)
		if amount > 0 {
			if _, err := s.store.Mutate(ctx, doctorID, func(l *models.BalanceLedger) error {
				return l.SettlePendingToAvailable(amount)
			}); err != nil {
				log.Printf("🔥 Settlement sweep: could not settle payment %s for doctor %s: %v", p.ID, doctorID, err)
				continue
			}
			settled++
		}
		if err := s.paymentsStore.MarkSettled(ctx, p.ID, time.Now()); err != nil {
			log.Printf("🔥 Settlement sweep: settled payment %s but failed to mark it: %v", p.ID, err)
			continue
		}
	}
	return settled, nil
}

// settleableAmount is the doctor share still held for a payment. A refund
// already pulled the refunded share plus the gateway fee back out of the
// ledger, so only the remainder can move to available; a full refund leaves
// nothing and the payment is just marked settled.
func settleableAmount(p *models.Payment) float64 {
	if p.Status != models.PaymentStatusRefunded || p.RefundAmount == nil || p.Amount <= 0 {
		return p.DoctorAmount
	}
	debited := utils.Round2(p.DoctorAmount * (*p.RefundAmount / p.Amount))
	fee := 0.0
	if p.RefundFee != nil {
		fee = *p.RefundFee
	}
	return utils.Round2(p.DoctorAmount - debited - fee)
}
