package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/mkamau512/daktari_connect/coupons"
	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/utils"
)

// CouponService runs the redemption saga against the administrative service:
// remote validate (read-only, retry-safe) -> local reserve (transactional) ->
// remote mark-used (compensated on failure). There is no shared transaction;
// the ordering bounds the blast radius of partial failure.
type CouponService struct {
	store   PaymentStore
	ledger  LedgerStore
	fees    FeeResolver
	coupons CouponClient
	events  EventPublisher
}

func NewCouponService(store PaymentStore, ledger LedgerStore, fees FeeResolver, couponClient CouponClient, events EventPublisher) *CouponService {
	return &CouponService{
		store:   store,
		ledger:  ledger,
		fees:    fees,
		coupons: couponClient,
		events:  events,
	}
}

type CouponPaymentInput struct {
	PatientID       uuid.UUID
	DoctorID        *uuid.UUID
	ConsultationID  uuid.UUID
	Specialization  string
	CouponCode      string
	BeneficiaryType string
	BeneficiaryID   uuid.UUID
}

func (s *CouponService) ProcessCouponPayment(ctx context.Context, in CouponPaymentInput) (*models.Payment, error) {
	if in.PatientID == uuid.Nil || in.ConsultationID == uuid.Nil || in.CouponCode == "" {
		return nil, fmt.Errorf("%w: patient, consultation and coupon code are required", ErrMissingField)
	}

	fee, err := s.fees.GetApplicableFee(ctx, in.Specialization)
	if err != nil {
		return nil, err
	}
	pct, err := s.fees.PlatformFeePercent(ctx)
	if err != nil {
		return nil, err
	}

	// Step 1: remote validate. No state changes on either side yet.
	validation, err := s.coupons.ValidateCoupon(ctx, coupons.ValidateRequest{
		Code:            in.CouponCode,
		BeneficiaryType: in.BeneficiaryType,
		BeneficiaryID:   in.BeneficiaryID.String(),
		RequestedAmount: fee,
	})
	if err != nil {
		return nil, err
	}

	discount := math.Min(validation.DiscountAmount, fee)
	finalAmount := utils.Round2(fee - discount)
	platformFee := utils.Round2(finalAmount * pct / 100)
	doctorAmount := utils.Round2(finalAmount - platformFee)

	// Step 2: local reserve. The time-bucketed key means a double-click
	// cannot hold two reservations for the same coupon.
	key := utils.CouponIdempotencyKey(in.PatientID, in.ConsultationID, in.CouponCode, time.Now())
	p := &models.Payment{
		ID:             uuid.New(),
		PatientID:      in.PatientID,
		DoctorID:       in.DoctorID,
		ConsultationID: in.ConsultationID,
		Amount:         finalAmount,
		Currency:       "USD",
		PlatformFee:    platformFee,
		DoctorAmount:   doctorAmount,
		Status:         models.PaymentStatusPending,
		Method:         models.PaymentMethodCoupon,
		IdempotencyKey: key,
		Metadata: datatypes.JSONMap{
			"coupon_code":     in.CouponCode,
			"coupon_id":       validation.CouponID,
			"discount_amount": discount,
			"discount_type":   validation.DiscountType,
			"original_fee":    fee,
		},
	}
	if err := s.store.Create(ctx, p); err != nil {
		if err == ErrDuplicateKey {
			return nil, ErrDuplicateCoupon
		}
		return nil, err
	}

	// Step 3: remote mark-used, with the local payment id for audit linkage.
	_, err = s.coupons.MarkCouponUsed(ctx, in.CouponCode, coupons.Usage{
		ConsultationID:  in.ConsultationID.String(),
		PaymentID:       p.ID.String(),
		DiscountApplied: discount,
		AmountCharged:   finalAmount,
		UsedAt:          time.Now().UTC(),
	})
	if err != nil {
		// Compensate the reservation. The coupon stays DISTRIBUTED
		// remotely, so nothing was spent.
		s.compensateReservation(ctx, p.ID, err.Error())
		return nil, err
	}

	// Step 4: finalize locally and credit the ledger. If the process dies
	// between mark-used and here, the reconciliation sweep closes the gap.
	completed, err := s.completeReservation(ctx, p.ID)
	if err != nil {
		log.Printf("🔥 RECONCILIATION GAP: coupon %s consumed remotely but payment %s not finalized: %v",
			in.CouponCode, p.ID, err)
		return nil, err
	}
	return completed, nil
}

func (s *CouponService) compensateReservation(ctx context.Context, paymentID uuid.UUID, reason string) {
	failed, err := s.store.Transition(ctx, paymentID, func(p *models.Payment) error {
		if p.Status == models.PaymentStatusFailed {
			return ErrUnchanged
		}
		if !p.Status.CanTransitionTo(models.PaymentStatusFailed) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.Status, models.PaymentStatusFailed)
		}
		msg := reason
		p.Status = models.PaymentStatusFailed
		p.FailureReason = &msg
		return nil
	})
	if err != nil {
		log.Printf("🔥 Failed to compensate coupon reservation %s: %v", paymentID, err)
		return
	}
	s.events.PaymentFailed(failed)
}

func (s *CouponService) completeReservation(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	applied := false
	completed, err := s.store.Transition(ctx, paymentID, func(p *models.Payment) error {
		if p.Status == models.PaymentStatusCompleted {
			return ErrUnchanged
		}
		if !p.Status.CanTransitionTo(models.PaymentStatusCompleted) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.Status, models.PaymentStatusCompleted)
		}
		now := time.Now()
		p.Status = models.PaymentStatusCompleted
		p.ProcessedAt = &now
		p.NetAmount = utils.Round2(p.Amount - p.PlatformFee)
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// The sweep or a concurrent call already finalized it.
		return completed, nil
	}

	if completed.DoctorID != nil && completed.DoctorAmount > 0 {
		if _, err := s.ledger.Mutate(ctx, *completed.DoctorID, func(l *models.BalanceLedger) error {
			return l.CreditPending(completed.DoctorAmount)
		}); err != nil {
			log.Printf("🔥 RECONCILIATION: failed to credit doctor %s for coupon payment %s: %v",
				completed.DoctorID, completed.ID, err)
		}
	}
	s.events.PaymentCompleted(completed)
	return completed, nil
}

// ReconcileStuck resolves the saga's documented unsafe window: a payment
// reserved locally while the remote mark-used outcome is unknown. Payments
// pending longer than stuckAfter are checked against remote usage state;
// anything unresolved past giveUpAfter is failed and the reservation
// released.
func (s *CouponService) ReconcileStuck(ctx context.Context, stuckAfter, giveUpAfter time.Duration) {
	cutoff := time.Now().Add(-stuckAfter)
	stuck, err := s.store.StuckCouponPayments(ctx, cutoff)
	if err != nil {
		log.Printf("🔥 Coupon reconciliation sweep failed to list stuck payments: %v", err)
		return
	}

	for _, p := range stuck {
		code, _ := p.Metadata["coupon_code"].(string)
		if code == "" {
			continue
		}

		state, err := s.coupons.GetCouponUsage(ctx, code)
		if err != nil {
			log.Printf("Coupon reconciliation: could not fetch usage for %s: %v", code, err)
			continue
		}

		if state.Used && state.PaymentID == p.ID.String() {
			log.Printf("RECONCILIATION GAP resolved: coupon %s was consumed for payment %s, completing", code, p.ID)
			if _, err := s.completeReservation(ctx, p.ID); err != nil {
				log.Printf("🔥 Coupon reconciliation: failed to complete payment %s: %v", p.ID, err)
			}
			continue
		}

		if time.Since(p.CreatedAt) > giveUpAfter {
			s.compensateReservation(ctx, p.ID, "coupon reservation expired without remote confirmation")
		}
	}
}
