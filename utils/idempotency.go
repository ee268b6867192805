package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// couponKeyBucket bounds how long a duplicate coupon submission collapses
// onto the same reservation. A double-click lands in the same bucket; a
// deliberate retry after a failure minted minutes later gets a fresh key.
const couponKeyBucket = 5 * time.Minute

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// PaymentIdempotencyKey is deterministic over the business keys, never
// wall-clock, so retried client requests resolve to one payment row.
func PaymentIdempotencyKey(patientID, consultationID uuid.UUID, doctorID *uuid.UUID) string {
	doctor := ""
	if doctorID != nil {
		doctor = doctorID.String()
	}
	return digest("payment", patientID.String(), consultationID.String(), doctor)
}

// CouponIdempotencyKey includes a short time bucket so a double-click cannot
// reserve two local payments for the same coupon.
func CouponIdempotencyKey(patientID, consultationID uuid.UUID, couponCode string, at time.Time) string {
	bucket := at.UTC().Truncate(couponKeyBucket).Unix()
	return digest("coupon", patientID.String(), consultationID.String(), couponCode, fmt.Sprintf("%d", bucket))
}

// RetryIdempotencyKey mints the key for a retry of a failed payment: old key
// plus the attempt counter, so the gateway never collapses it onto the dead
// intent.
func RetryIdempotencyKey(previousKey string, attempt int) string {
	return fmt.Sprintf("%s:retry:%d", previousKey, attempt)
}
