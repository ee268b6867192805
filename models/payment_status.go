package models

import "fmt"

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// paymentTransitions is the full set of legal status edges. Anything not in
// this table is a reconciliation bug, not a user error, and must fail loudly.
// failed -> pending is the retry edge: a retry mints a fresh idempotency key
// and gateway intent on the same row.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {PaymentStatusPending},
	PaymentStatusCancelled:  {},
	PaymentStatusRefunded:   {},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

func (s PaymentStatus) Transition(next PaymentStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("illegal payment status transition %s -> %s", s, next)
	}
	return nil
}
