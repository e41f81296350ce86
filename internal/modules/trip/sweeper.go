// README: Background sweeper that expires trips no driver picked up.
package trip

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunExpirySweeper ticks until the context is cancelled. Each pass expires
// trips that sat in 'requested' longer than the configured timeout.
func (e *Engine) RunExpirySweeper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.ExpireStale(ctx); err != nil {
				e.log.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// ExpireStale is one sweep pass. Each candidate goes through the same
// conditional write drivers race on, so a concurrent Accept either beats the
// sweep or loses to it, never both.
func (e *Engine) ExpireStale(ctx context.Context) error {
	cutoff := e.now().Add(-e.cfg.RequestTimeout)
	stale, err := e.store.ListRequestedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, t := range stale {
		ok, err := e.store.UpdateStatusIf(ctx, t.ID, StatusRequested, StatusExpired, nil, nil)
		if err != nil {
			return err
		}
		if !ok {
			// A driver grabbed it between the list and the write.
			continue
		}
		t.Status = StatusExpired
		e.teardownOffers(ctx, t.ID)
		e.teardown(ctx, t.ID)
		e.notify(ctx, t.PassengerID, expiredPassengerText(t), nil)
		e.log.Info("trip expired",
			zap.Int64("trip_id", t.ID), zap.Int64("passenger_id", t.PassengerID))
	}
	return nil
}
