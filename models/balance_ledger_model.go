package models

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrInsufficientPending = errors.New("insufficient pending balance")
	ErrPayoutDisabled      = errors.New("payouts are disabled for this account")
	ErrBelowMinimumPayout  = errors.New("amount is below the minimum payout")
	ErrLedgerOutOfBalance  = errors.New("ledger accounting identity violated")
	ErrNegativeAmount      = errors.New("amount must be positive")
)

// BalanceLedger is the per-doctor running balance. It is created lazily on
// first credit and mutated only through the four operations below, each of
// which re-checks the accounting identity before committing:
//
//	available + pending + withdrawn + refunded + fees == earned
type BalanceLedger struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	DoctorID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	AvailableBalance float64   `gorm:"type:numeric(12,2);not null;default:0"`
	PendingBalance   float64   `gorm:"type:numeric(12,2);not null;default:0"`
	TotalEarned      float64   `gorm:"type:numeric(12,2);not null;default:0"`
	TotalWithdrawn   float64   `gorm:"type:numeric(12,2);not null;default:0"`
	TotalRefunded    float64   `gorm:"type:numeric(12,2);not null;default:0"`
	TotalFeesPaid    float64   `gorm:"type:numeric(12,2);not null;default:0"`

	MinimumPayout    float64 `gorm:"type:numeric(12,2);not null;default:50"`
	PayoutEnabled    bool    `gorm:"not null;default:true"`
	GatewayAccountID *string `gorm:"size:255"`
	LastWithdrawalAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BalanceLedger) TableName() string { return "balance_ledgers" }

const ledgerEpsilon = 0.005

func (l *BalanceLedger) checkInvariant() error {
	held := l.AvailableBalance + l.PendingBalance
	if l.AvailableBalance < 0 || l.PendingBalance < 0 {
		return ErrLedgerOutOfBalance
	}
	accounted := held + l.TotalWithdrawn + l.TotalRefunded + l.TotalFeesPaid
	if math.Abs(accounted-l.TotalEarned) > ledgerEpsilon {
		return ErrLedgerOutOfBalance
	}
	return nil
}

// CreditPending records freshly earned funds. Called on payment completion.
func (l *BalanceLedger) CreditPending(amount float64) error {
	if amount <= 0 {
		return ErrNegativeAmount
	}
	l.PendingBalance += amount
	l.TotalEarned += amount
	return l.checkInvariant()
}

// SettlePendingToAvailable moves funds out of the hold window.
func (l *BalanceLedger) SettlePendingToAvailable(amount float64) error {
	if amount <= 0 {
		return ErrNegativeAmount
	}
	if l.PendingBalance+ledgerEpsilon < amount {
		return ErrInsufficientPending
	}
	l.PendingBalance -= amount
	l.AvailableBalance += amount
	return l.checkInvariant()
}

// DebitForRefund pulls the refunded share plus the non-refundable gateway fee
// back out, pending first, then available. The balance is never allowed to go
// negative; callers treat that as a manual-reconciliation case.
func (l *BalanceLedger) DebitForRefund(amount, fee float64) error {
	if amount < 0 || fee < 0 || amount+fee <= 0 {
		return ErrNegativeAmount
	}
	total := amount + fee
	if l.PendingBalance+l.AvailableBalance+ledgerEpsilon < total {
		return ErrInsufficientBalance
	}
	fromPending := math.Min(l.PendingBalance, total)
	l.PendingBalance -= fromPending
	l.AvailableBalance -= total - fromPending
	l.TotalRefunded += amount
	l.TotalFeesPaid += fee
	return l.checkInvariant()
}

// Withdraw moves available funds to the payout bucket. The gateway transfer
// itself happens outside this mutation.
func (l *BalanceLedger) Withdraw(amount float64, now time.Time) error {
	if amount <= 0 {
		return ErrNegativeAmount
	}
	if !l.PayoutEnabled {
		return ErrPayoutDisabled
	}
	if amount < l.MinimumPayout {
		return ErrBelowMinimumPayout
	}
	if l.AvailableBalance+ledgerEpsilon < amount {
		return ErrInsufficientBalance
	}
	l.AvailableBalance -= amount
	l.TotalWithdrawn += amount
	l.LastWithdrawalAt = &now
	return l.checkInvariant()
}

// CanWithdraw is the payout eligibility query.
func (l *BalanceLedger) CanWithdraw() bool {
	return l.PayoutEnabled && l.AvailableBalance >= l.MinimumPayout
}
