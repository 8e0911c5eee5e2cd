package workers

import (
	"context"
	"time"

	"gift-casino-backend/models"
	"gift-casino-backend/services"

	log "github.com/sirupsen/logrus"
)

// PollDeposits runs the periodic reconciliation sweep for one payment rail.
// Each rail gets its own goroutine with its own cadence; both share the
// deposit service's confirm/credit protocol, so overlapping sweeps and
// client-triggered credits cannot double-apply.
func PollDeposits(ctx context.Context, deposits *services.DepositService, provider models.DepositProvider, pollInterval time.Duration) {
	log.WithFields(log.Fields{
		"provider": provider,
		"interval": pollInterval,
	}).Info("Starting deposit reconciliation sweep")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.WithField("provider", provider).Info("Deposit reconciliation stopped")
			return
		case <-ticker.C:
			if err := deposits.SweepPending(ctx, provider); err != nil && ctx.Err() == nil {
				// Batch-level failure (listing broke); individual entry
				// errors are already handled inside the sweep.
				log.WithError(err).WithField("provider", provider).Error("Deposit sweep failed")
			}
		}
	}
}
