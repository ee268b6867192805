package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkamau512/daktari_connect/utils"
)

// Intent statuses as reported by the gateway.
const (
	IntentStatusSucceeded      = "succeeded"
	IntentStatusProcessing     = "processing"
	IntentStatusRequiresAction = "requires_action"
	IntentStatusCanceled       = "canceled"
)

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       float64
	Currency     string
	ChargeID     string
}

type RefundResult struct {
	ID     string
	Status string
	Amount float64
}

type TransferResult struct {
	ID     string
	Amount float64
}

// Gateway wraps the external payment processor. Implementations may be slow
// and may fail; every call takes a context and carries an explicit timeout.
type Gateway interface {
	CreateIntent(ctx context.Context, amount float64, currency string, metadata map[string]string, idempotencyKey string) (*Intent, error)
	Confirm(ctx context.Context, intentID, paymentMethodRef string) (*Intent, error)
	Cancel(ctx context.Context, intentID string) error
	Refund(ctx context.Context, chargeID string, amount float64, reason string, metadata map[string]string) (*RefundResult, error)
	Transfer(ctx context.Context, amount float64, destinationAccount string, metadata map[string]string) (*TransferResult, error)
}

// GatewayError distinguishes failures the caller may retry (network, 5xx,
// rate limits) from terminal ones (validation, declined).
type GatewayError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *GatewayError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("gateway error (%s, %s): %s", e.Code, kind, e.Message)
}

// IsRetryable reports whether err is a gateway error worth retrying.
func IsRetryable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable
}

// FeeRate is the gateway's processing fee structure. The fee is not returned
// on refunds, so refund engines scale it by the refunded fraction.
type FeeRate struct {
	Percent float64 // e.g. 0.029 for 2.9%
	Fixed   float64 // e.g. 0.30 per charge
}

// FeeFor computes the processing fee for a full charge.
func (r FeeRate) FeeFor(amount float64) float64 {
	return utils.Round2(amount*r.Percent + r.Fixed)
}

// RefundFeeFor computes the non-refundable share for a partial refund: the
// percentage component scales with the refunded amount, the fixed component
// scales by refundAmount / originalAmount.
func (r FeeRate) RefundFeeFor(refundAmount, originalAmount float64) float64 {
	if originalAmount <= 0 {
		return 0
	}
	fraction := refundAmount / originalAmount
	return utils.Round2(refundAmount*r.Percent + r.Fixed*fraction)
}
