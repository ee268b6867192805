package utils

import "math"

// Round2 rounds to cents. All ledger and fee arithmetic goes through this so
// splits like platformFee + doctorAmount == amount survive float math.
func Round2(amount float64) float64 {
	return math.Round(amount*100) / 100
}
