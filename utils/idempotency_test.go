package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPaymentIdempotencyKeyIsDeterministic(t *testing.T) {
	patient := uuid.New()
	consultation := uuid.New()
	doctor := uuid.New()

	k1 := PaymentIdempotencyKey(patient, consultation, &doctor)
	k2 := PaymentIdempotencyKey(patient, consultation, &doctor)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	// Any business key change produces a different key.
	assert.NotEqual(t, k1, PaymentIdempotencyKey(uuid.New(), consultation, &doctor))
	assert.NotEqual(t, k1, PaymentIdempotencyKey(patient, uuid.New(), &doctor))
	assert.NotEqual(t, k1, PaymentIdempotencyKey(patient, consultation, nil))
}

func TestCouponIdempotencyKeyBuckets(t *testing.T) {
	patient := uuid.New()
	consultation := uuid.New()
	base := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)

	// A double-click lands in the same bucket.
	k1 := CouponIdempotencyKey(patient, consultation, "SAVE50", base)
	k2 := CouponIdempotencyKey(patient, consultation, "SAVE50", base.Add(2*time.Second))
	assert.Equal(t, k1, k2)

	// A retry minutes later gets a fresh key.
	k3 := CouponIdempotencyKey(patient, consultation, "SAVE50", base.Add(10*time.Minute))
	assert.NotEqual(t, k1, k3)

	// Different coupon, different key.
	assert.NotEqual(t, k1, CouponIdempotencyKey(patient, consultation, "SAVE10", base))
}

func TestRetryIdempotencyKey(t *testing.T) {
	assert.Equal(t, "abc:retry:1", RetryIdempotencyKey("abc", 1))
	assert.Equal(t, "abc:retry:2", RetryIdempotencyKey("abc", 2))
	assert.NotEqual(t, RetryIdempotencyKey("abc", 1), RetryIdempotencyKey("abc", 2))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 6.10, Round2(6.1000000001))
	assert.Equal(t, 173.90, Round2(200-20-6.1))
	assert.Equal(t, 0.30, Round2(0.2999999))
}
