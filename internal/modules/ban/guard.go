// README: Ban guard: gates user actions behind a ban check and enforces the
// cancellation strike policy.
package ban

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"taxihub/internal/config"
)

// BanStore is the persistence the guard needs. *Store implements it.
type BanStore interface {
	Create(ctx context.Context, b *Ban) error
	Latest(ctx context.Context, userID int64) (*Ban, error)
	DeleteForUser(ctx context.Context, userID int64) error
}

// Strikes counts cancellations inside a rolling window. The redis-backed
// implementation lives in strikes.go.
type Strikes interface {
	// Incr bumps the user's counter, starting the window on the first hit,
	// and returns the new count.
	Incr(ctx context.Context, userID int64, window time.Duration) (int64, error)
	Reset(ctx context.Context, userID int64) error
}

type Guard struct {
	store   BanStore
	strikes Strikes
	cfg     config.GuardConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewGuard(store BanStore, strikes Strikes, cfg config.GuardConfig, log *zap.Logger) *Guard {
	return &Guard{store: store, strikes: strikes, cfg: cfg, log: log, now: time.Now}
}

// IsBanned reports whether the user currently holds an unexpired ban. An
// expired ban is cleared as a side effect of the check.
func (g *Guard) IsBanned(ctx context.Context, userID int64) (bool, error) {
	_, banned, err := g.lookup(ctx, userID)
	return banned, err
}

// Info returns the active ban, or nil when the user is not banned.
func (g *Guard) Info(ctx context.Context, userID int64) (*Ban, error) {
	b, banned, err := g.lookup(ctx, userID)
	if err != nil || !banned {
		return nil, err
	}
	return b, nil
}

func (g *Guard) lookup(ctx context.Context, userID int64) (*Ban, bool, error) {
	b, err := g.store.Latest(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if b.Expired(g.now()) {
		if err := g.store.DeleteForUser(ctx, userID); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return b, true, nil
}

// RecordCancellation counts a user-initiated cancellation. Exceeding the
// configured limit inside the rolling window issues a short automatic ban.
func (g *Guard) RecordCancellation(ctx context.Context, userID int64) error {
	count, err := g.strikes.Incr(ctx, userID, g.cfg.CancelWindow)
	if err != nil {
		return err
	}
	if count <= int64(g.cfg.CancelLimit) {
		return nil
	}
	until := g.now().AddDate(0, 0, g.cfg.CancelBanDays)
	if err := g.Ban(ctx, userID, SystemCancelReason, &until); err != nil {
		return err
	}
	g.log.Warn("auto-ban after repeated cancellations",
		zap.Int64("user_id", userID),
		zap.Int64("cancellations", count))
	return g.strikes.Reset(ctx, userID)
}

func (g *Guard) Ban(ctx context.Context, userID int64, reason string, until *time.Time) error {
	return g.store.Create(ctx, &Ban{UserID: userID, Reason: reason, BannedUntil: until})
}

func (g *Guard) Unban(ctx context.Context, userID int64) error {
	return g.store.DeleteForUser(ctx, userID)
}
