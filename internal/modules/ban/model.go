// README: Ban records and the system reason used by the strike policy.
package ban

import "time"

// SystemCancelReason is attached to bans the guard issues automatically.
const SystemCancelReason = "Frequent order cancellations"

type Ban struct {
	ID       int64
	UserID   int64
	Reason   string
	BannedAt time.Time
	// BannedUntil is nil for a permanent ban.
	BannedUntil *time.Time
}

func (b Ban) Permanent() bool { return b.BannedUntil == nil }

func (b Ban) Expired(now time.Time) bool {
	return b.BannedUntil != nil && now.After(*b.BannedUntil)
}

// DaysLeft reports the remaining whole days for a temporary ban.
func (b Ban) DaysLeft(now time.Time) int {
	if b.BannedUntil == nil {
		return 0
	}
	d := int(b.BannedUntil.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
