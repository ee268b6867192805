package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mkamau512/daktari_connect/coupons"
	"github.com/mkamau512/daktari_connect/models"
)

// PaymentStore is the durable record of every payment attempt. Idempotency
// is enforced here: Create fails with ErrDuplicateKey when the key exists,
// and Transition serializes status read-then-write per row.
//
// FindByIdempotencyKey is an existence probe and returns (nil, nil) when no
// row matches; the other finders return ErrPaymentNotFound.
type PaymentStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	Create(ctx context.Context, p *models.Payment) error
	// Transition loads the row under a write lock, applies fn and saves.
	// fn returning ErrUnchanged commits nothing and is not an error.
	Transition(ctx context.Context, id uuid.UUID, fn func(p *models.Payment) error) (*models.Payment, error)
	StuckCouponPayments(ctx context.Context, cutoff time.Time) ([]models.Payment, error)
	SettleablePayments(ctx context.Context, cutoff time.Time) ([]models.Payment, error)
	MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) error
}

// LedgerStore serializes all mutations for one doctor behind a row lock.
// Get returns (nil, nil) when the doctor has never been credited; Mutate
// creates the row lazily.
type LedgerStore interface {
	Get(ctx context.Context, doctorID uuid.UUID) (*models.BalanceLedger, error)
	Mutate(ctx context.Context, doctorID uuid.UUID, fn func(l *models.BalanceLedger) error) (*models.BalanceLedger, error)
}

type RefundStore interface {
	Create(ctx context.Context, r *models.RefundRecord) error
	Update(ctx context.Context, r *models.RefundRecord) error
	CompletedTotalForPayment(ctx context.Context, paymentID uuid.UUID) (float64, error)
}

// CouponClient is the administrative coupon service boundary.
type CouponClient interface {
	ValidateCoupon(ctx context.Context, req coupons.ValidateRequest) (*coupons.ValidationResult, error)
	MarkCouponUsed(ctx context.Context, code string, usage coupons.Usage) (*coupons.MarkUsedResult, error)
	GetCouponUsage(ctx context.Context, code string) (*coupons.UsageState, error)
}

// EventPublisher is fire-and-forget: delivery failure never rolls back a
// payment, so none of these return errors.
type EventPublisher interface {
	PaymentCompleted(p *models.Payment)
	PaymentFailed(p *models.Payment)
	PaymentCancelled(p *models.Payment)
	RefundProcessed(p *models.Payment, r *models.RefundRecord)
	PayoutProcessed(doctorID uuid.UUID, amount float64, transferID string)
}

// FeeResolver computes applicable consultation fees and platform settings.
type FeeResolver interface {
	GetApplicableFee(ctx context.Context, specialization string) (float64, error)
	PlatformFeePercent(ctx context.Context) (float64, error)
}
