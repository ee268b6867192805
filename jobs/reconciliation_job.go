package jobs

import (
	"context"
	"log"
	"time"

	"github.com/mkamau512/daktari_connect/services"
)

const (
	couponStuckAfter  = 10 * time.Minute
	couponGiveUpAfter = 30 * time.Minute
)

// RunCouponReconciliation resolves coupon payments stranded between the
// remote mark-used call and local finalization. Scheduled every 5 minutes.
func RunCouponReconciliation(couponSvc *services.CouponService) {
	log.Println("Running job: CouponReconciliation...")

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	couponSvc.ReconcileStuck(ctx, couponStuckAfter, couponGiveUpAfter)
}
