// README: Guard tests over in-memory fakes: strike policy and lazy expiry.
package ban

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"taxihub/internal/config"
)

type memBanStore struct {
	bans   map[int64][]*Ban
	nextID int64
}

func newMemBanStore() *memBanStore {
	return &memBanStore{bans: make(map[int64][]*Ban)}
}

func (m *memBanStore) Create(_ context.Context, b *Ban) error {
	m.nextID++
	b.ID = m.nextID
	b.BannedAt = time.Now()
	m.bans[b.UserID] = append(m.bans[b.UserID], b)
	return nil
}

func (m *memBanStore) Latest(_ context.Context, userID int64) (*Ban, error) {
	list := m.bans[userID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[len(list)-1], nil
}

func (m *memBanStore) DeleteForUser(_ context.Context, userID int64) error {
	delete(m.bans, userID)
	return nil
}

type memStrikes struct {
	counts map[int64]int64
}

func newMemStrikes() *memStrikes {
	return &memStrikes{counts: make(map[int64]int64)}
}

func (m *memStrikes) Incr(_ context.Context, userID int64, _ time.Duration) (int64, error) {
	m.counts[userID]++
	return m.counts[userID], nil
}

func (m *memStrikes) Reset(_ context.Context, userID int64) error {
	delete(m.counts, userID)
	return nil
}

func testGuardConfig() config.GuardConfig {
	return config.GuardConfig{CancelLimit: 3, CancelWindow: 24 * time.Hour, CancelBanDays: 1}
}

func TestStrikePolicyBansAfterLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemBanStore()
	guard := NewGuard(store, newMemStrikes(), testGuardConfig(), zap.NewNop())

	const userID = 42
	for i := 0; i < 3; i++ {
		if err := guard.RecordCancellation(ctx, userID); err != nil {
			t.Fatalf("cancellation %d: %v", i+1, err)
		}
		banned, err := guard.IsBanned(ctx, userID)
		if err != nil {
			t.Fatalf("is banned: %v", err)
		}
		if banned {
			t.Fatalf("banned after only %d cancellations", i+1)
		}
	}

	// The fourth one crosses the limit.
	if err := guard.RecordCancellation(ctx, userID); err != nil {
		t.Fatalf("fourth cancellation: %v", err)
	}
	banned, err := guard.IsBanned(ctx, userID)
	if err != nil {
		t.Fatalf("is banned: %v", err)
	}
	if !banned {
		t.Fatal("expected auto-ban after exceeding the limit")
	}

	b, err := guard.Info(ctx, userID)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if b == nil || b.Reason != SystemCancelReason {
		t.Fatalf("unexpected ban info: %+v", b)
	}
	if b.BannedUntil == nil || b.Permanent() {
		t.Fatal("auto-ban must be temporary")
	}
}

func TestStrikeCounterResetsAfterBan(t *testing.T) {
	ctx := context.Background()
	strikes := newMemStrikes()
	guard := NewGuard(newMemBanStore(), strikes, testGuardConfig(), zap.NewNop())

	const userID = 42
	for i := 0; i < 4; i++ {
		if err := guard.RecordCancellation(ctx, userID); err != nil {
			t.Fatalf("cancellation: %v", err)
		}
	}
	if strikes.counts[userID] != 0 {
		t.Fatalf("counter should reset after the ban, got %d", strikes.counts[userID])
	}
}

func TestExpiredBanIsClearedLazily(t *testing.T) {
	ctx := context.Background()
	store := newMemBanStore()
	guard := NewGuard(store, newMemStrikes(), testGuardConfig(), zap.NewNop())

	const userID = 7
	past := time.Now().Add(-time.Hour)
	if err := guard.Ban(ctx, userID, "manual", &past); err != nil {
		t.Fatalf("ban: %v", err)
	}

	banned, err := guard.IsBanned(ctx, userID)
	if err != nil {
		t.Fatalf("is banned: %v", err)
	}
	if banned {
		t.Fatal("expired ban should not count")
	}
	// The row is gone, not just ignored.
	if _, err := store.Latest(ctx, userID); err != ErrNotFound {
		t.Fatalf("expected the expired ban deleted, got %v", err)
	}
}

func TestPermanentBanNeverExpires(t *testing.T) {
	ctx := context.Background()
	guard := NewGuard(newMemBanStore(), newMemStrikes(), testGuardConfig(), zap.NewNop())

	const userID = 9
	if err := guard.Ban(ctx, userID, "fraud", nil); err != nil {
		t.Fatalf("ban: %v", err)
	}
	banned, err := guard.IsBanned(ctx, userID)
	if err != nil {
		t.Fatalf("is banned: %v", err)
	}
	if !banned {
		t.Fatal("permanent ban must hold")
	}

	if err := guard.Unban(ctx, userID); err != nil {
		t.Fatalf("unban: %v", err)
	}
	banned, _ = guard.IsBanned(ctx, userID)
	if banned {
		t.Fatal("unban did not clear the ban")
	}
}
