package jobs

import (
	"context"
	"log"
	"time"

	"github.com/mkamau512/daktari_connect/services"
)

// RunSettlementSweep moves doctor earnings past the hold window from pending
// to available. Scheduled hourly.
func RunSettlementSweep(ledgers *services.LedgerService, fees *services.FeeService) {
	log.Println("Running job: SettlementSweep...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	hold, err := fees.SettlementHold(ctx)
	if err != nil {
		log.Printf("🔥 Settlement sweep could not resolve hold window: %v", err)
		return
	}

	settled, err := ledgers.SettleDue(ctx, hold)
	if err != nil {
		log.Printf("🔥 Settlement sweep failed: %v", err)
		return
	}
	if settled > 0 {
		log.Printf("✅ Settlement sweep settled %d payments", settled)
	}
}
