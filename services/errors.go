package services

import "errors"

// Validation-class errors: rejected before any state change.
var (
	ErrMissingField  = errors.New("required field is missing")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Conflict-class errors: surfaced to the caller without mutation.
var (
	ErrIllegalTransition = errors.New("illegal payment status transition")
	ErrDuplicateKey      = errors.New("idempotency key already exists")
	ErrDuplicateCoupon   = errors.New("a payment for this coupon is already in flight")
	ErrAlreadyRefunded   = errors.New("payment has already been refunded")
)

// Not-found errors.
var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrLedgerNotFound  = errors.New("balance ledger not found")
)

// Business-rule violations.
var (
	ErrPaymentNotPending    = errors.New("payment is not pending")
	ErrPaymentNotFailed     = errors.New("only failed payments can be retried")
	ErrPaymentNotRefundable = errors.New("only completed payments can be refunded")
	ErrRefundExceedsAmount  = errors.New("refund amount exceeds the original payment")
	ErrNoGatewayCharge      = errors.New("payment has no gateway charge to refund")
	ErrPayoutAccountMissing = errors.New("no gateway payout account configured")
)

// ErrUnchanged is returned by transition closures when the target status
// equals the current one. Stores commit nothing and report success; this is
// what absorbs at-least-once webhook delivery.
var ErrUnchanged = errors.New("status unchanged")
