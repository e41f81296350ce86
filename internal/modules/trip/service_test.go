// README: Engine tests over in-memory fakes; the accept race runs with -race.
package trip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"taxihub/internal/config"
	"taxihub/internal/modules/user"
)

const testPassengerID = 100

type testEnv struct {
	engine  *Engine
	store   *memStore
	gw      *fakeGateway
	guard   *fakeGuard
	ratings *fakeRatings
}

func newTestEnv(t *testing.T, driverCount int) *testEnv {
	t.Helper()

	users := []user.User{{ID: testPassengerID, FirstName: "Anna", Role: user.RolePassenger}}
	for i := 1; i <= driverCount; i++ {
		users = append(users, user.User{
			ID:        int64(i),
			FirstName: fmt.Sprintf("Driver %d", i),
			Role:      user.RoleDriver,
			Available: true,
			Profile: &user.DriverProfile{
				FullName:     fmt.Sprintf("Driver %d", i),
				CarBrand:     "Lada",
				CarModel:     "Vesta",
				LicensePlate: fmt.Sprintf("A%03dAA", i),
				CarColor:     "white",
				PhoneNumber:  "+70000000000",
			},
		})
	}

	store := newMemStore()
	gw := newFakeGateway()
	guard := newFakeGuard()
	ratings := newFakeRatings()
	cfg := config.TripConfig{RequestTimeout: 10 * time.Minute, SweepInterval: time.Second}
	engine := NewEngine(store, newFakeUsers(users...), guard, ratings, fakeCatalogue{}, gw, cfg, zap.NewNop())
	return &testEnv{engine: engine, store: store, gw: gw, guard: guard, ratings: ratings}
}

func (env *testEnv) createTrip(t *testing.T) *Trip {
	t.Helper()
	tr, err := env.engine.Create(context.Background(), CreateCommand{
		PassengerID: testPassengerID,
		Pickup:      "Lenina 1",
		Dropoff:     "Mira 15",
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return tr
}

func TestCreateRejectsBannedPassenger(t *testing.T) {
	env := newTestEnv(t, 1)
	env.guard.banned[testPassengerID] = true

	_, err := env.engine.Create(context.Background(), CreateCommand{
		PassengerID: testPassengerID, Pickup: "a", Dropoff: "b",
	})
	if !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
}

func TestCreateRejectsDriverRole(t *testing.T) {
	env := newTestEnv(t, 1)

	_, err := env.engine.Create(context.Background(), CreateCommand{
		PassengerID: 1, Pickup: "a", Dropoff: "b",
	})
	if !errors.Is(err, ErrNotPassenger) {
		t.Fatalf("expected ErrNotPassenger for a driver id, got %v", err)
	}
}

func TestCreateRejectsSecondActiveTrip(t *testing.T) {
	env := newTestEnv(t, 1)
	env.createTrip(t)

	_, err := env.engine.Create(context.Background(), CreateCommand{
		PassengerID: testPassengerID, Pickup: "a", Dropoff: "b",
	})
	if !errors.Is(err, ErrActiveTrip) {
		t.Fatalf("expected ErrActiveTrip, got %v", err)
	}
}

func TestBroadcastRecordsOffers(t *testing.T) {
	env := newTestEnv(t, 3)
	tr := env.createTrip(t)

	if err := env.engine.Broadcast(context.Background(), tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if got := env.store.offerCount(tr.ID); got != 3 {
		t.Fatalf("expected 3 offers, got %d", got)
	}
}

func TestBroadcastSkipsUnreachableDrivers(t *testing.T) {
	env := newTestEnv(t, 3)
	env.gw.failFor[2] = true
	tr := env.createTrip(t)

	if err := env.engine.Broadcast(context.Background(), tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if got := env.store.offerCount(tr.ID); got != 2 {
		t.Fatalf("expected 2 offers after one failed delivery, got %d", got)
	}
}

func TestBroadcastIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	tr := env.createTrip(t)

	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("first broadcast: %v", err)
	}
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("second broadcast: %v", err)
	}
	if got := env.store.offerCount(tr.ID); got != 2 {
		t.Fatalf("expected 2 offers after repeat broadcast, got %d", got)
	}
	// Each driver holds exactly one live offer message.
	for driverID := int64(1); driverID <= 2; driverID++ {
		if msgs := env.gw.sentTo(driverID); len(msgs) != 1 {
			t.Fatalf("driver %d holds %d offer messages, want 1", driverID, len(msgs))
		}
	}
}

func TestBroadcastNoDrivers(t *testing.T) {
	env := newTestEnv(t, 0)
	tr := env.createTrip(t)

	if err := env.engine.Broadcast(context.Background(), tr.ID); !errors.Is(err, ErrNoDrivers) {
		t.Fatalf("expected ErrNoDrivers, got %v", err)
	}
	got, err := env.engine.Get(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusRequested {
		t.Fatalf("trip should stay requested, got %s", got.Status)
	}
	var told bool
	for _, m := range env.gw.sentTo(testPassengerID) {
		if strings.Contains(m.Text, "No drivers") {
			told = true
		}
	}
	if !told {
		t.Fatal("passenger should be told no drivers are available")
	}
}

func TestCompleteWithoutArrival(t *testing.T) {
	// Announcing arrival is optional; accepted trips can complete directly.
	env := newTestEnv(t, 1)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: 1}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := env.engine.Complete(ctx, tr.ID, 1); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	const drivers = 8
	env := newTestEnv(t, drivers)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, drivers)
	for i := 1; i <= drivers; i++ {
		wg.Add(1)
		go func(driverID int64) {
			defer wg.Done()
			errs <- env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: driverID})
		}(int64(i))
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyTaken) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", success)
	}

	got, err := env.engine.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if got.DriverID == nil {
		t.Fatal("expected driver_id to be set")
	}
	if n := env.store.offerCount(tr.ID); n != 0 {
		t.Fatalf("expected offers cleared after accept, got %d", n)
	}
}

func TestAcceptTearsDownLosingOffers(t *testing.T) {
	env := newTestEnv(t, 4)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: 2}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// 3 losing offer messages are deleted; the winner's becomes the card.
	if got := env.gw.deletedCount(); got != 3 {
		t.Fatalf("expected 3 deleted offers, got %d", got)
	}
	// The passenger learned who their driver is.
	var gotInfo bool
	for _, m := range env.gw.sentTo(testPassengerID) {
		if strings.Contains(m.Text, "Your driver") {
			gotInfo = true
		}
	}
	if !gotInfo {
		t.Fatal("passenger never received driver info")
	}
	// The winner received the tariff prompt.
	if msgs := env.gw.sentTo(2); len(msgs) < 2 {
		t.Fatalf("winner should hold offer + tariff prompt, got %d messages", len(msgs))
	}
}

func TestAcceptVsExpiry(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	tr := env.createTrip(t)
	env.engine.cfg.RequestTimeout = 0

	var wg sync.WaitGroup
	var acceptErr, sweepErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptErr = env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: 1})
	}()
	go func() {
		defer wg.Done()
		sweepErr = env.engine.ExpireStale(ctx)
	}()
	wg.Wait()

	if sweepErr != nil {
		t.Fatalf("sweep: %v", sweepErr)
	}
	got, err := env.engine.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	switch got.Status {
	case StatusAccepted:
		if acceptErr != nil {
			t.Fatalf("trip accepted but accept returned %v", acceptErr)
		}
	case StatusExpired:
		if acceptErr == nil {
			t.Fatal("trip expired but accept also succeeded")
		}
	default:
		t.Fatalf("unexpected final status %s", got.Status)
	}
}

func TestRideFlow(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: 1}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := env.engine.SetFare(ctx, FareCommand{TripID: tr.ID, DriverID: 1, TariffID: 99}); !errors.Is(err, ErrUnknownTariff) {
		t.Fatalf("expected ErrUnknownTariff, got %v", err)
	}
	if err := env.engine.SetFare(ctx, FareCommand{TripID: tr.ID, DriverID: 1, TariffID: 1}); err != nil {
		t.Fatalf("set fare: %v", err)
	}
	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Fare == nil || got.Fare.Amount != 30000 {
		t.Fatalf("fare not persisted: %+v", got.Fare)
	}

	if err := env.engine.SetEta(ctx, EtaCommand{TripID: tr.ID, DriverID: 1, Minutes: 10}); err != nil {
		t.Fatalf("set eta: %v", err)
	}
	var etaSeen bool
	for _, m := range env.gw.sentTo(testPassengerID) {
		if strings.Contains(m.Text, "10 min") {
			etaSeen = true
		}
	}
	if !etaSeen {
		t.Fatal("passenger never got the arrival estimate")
	}

	if err := env.engine.MarkArrived(ctx, tr.ID, 1); err != nil {
		t.Fatalf("arrived: %v", err)
	}
	got, _ = env.engine.Get(ctx, tr.ID)
	if got.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}

	if err := env.engine.Complete(ctx, tr.ID, 1); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = env.engine.Get(ctx, tr.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if n := env.store.surfaceCount(tr.ID); n != 0 {
		t.Fatalf("ledger must be empty after completion, got %d rows", n)
	}

	if err := env.engine.Rate(ctx, tr.ID, testPassengerID, 5); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if err := env.engine.Rate(ctx, tr.ID, testPassengerID, 4); err == nil {
		t.Fatal("second rating should be rejected")
	}
}

func TestNonParticipantActions(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: 1}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := env.engine.Complete(ctx, tr.ID, 2); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	err := env.engine.Cancel(ctx, CancelCommand{TripID: tr.ID, ActorID: 999, Actor: ActorPassenger})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestCancelRecordsStrike(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	err := env.engine.Cancel(ctx, CancelCommand{
		TripID: tr.ID, ActorID: testPassengerID, Actor: ActorPassenger, Reason: "changed my mind",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Status != StatusCancelledByPassenger {
		t.Fatalf("expected cancelled_by_passenger, got %s", got.Status)
	}
	if got.CancelReason == nil || *got.CancelReason != "changed my mind" {
		t.Fatalf("reason not recorded: %v", got.CancelReason)
	}
	if len(env.guard.cancellations) != 1 || env.guard.cancellations[0] != testPassengerID {
		t.Fatalf("strike not recorded: %v", env.guard.cancellations)
	}
	// The actor's own surfaces are gone, so they get a plain confirmation.
	var confirmed bool
	for _, m := range env.gw.sentTo(testPassengerID) {
		if strings.Contains(m.Text, "cancelled") {
			confirmed = true
		}
	}
	if !confirmed {
		t.Fatal("passenger never got a cancellation confirmation")
	}
	if n := env.store.offerCount(tr.ID); n != 0 {
		t.Fatalf("offers must be torn down, got %d", n)
	}
	if n := env.store.surfaceCount(tr.ID); n != 0 {
		t.Fatalf("ledger must be empty after cancel, got %d rows", n)
	}
}

func TestBannedUserCannotCancel(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	tr := env.createTrip(t)

	// Once the strike counter bans a user, the next cancellation must bounce
	// instead of landing and recording yet another strike.
	env.guard.banned[testPassengerID] = true
	err := env.engine.Cancel(ctx, CancelCommand{
		TripID: tr.ID, ActorID: testPassengerID, Actor: ActorPassenger,
	})
	if !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Status != StatusRequested {
		t.Fatalf("banned cancel must not change the trip, got %s", got.Status)
	}
	if len(env.guard.cancellations) != 0 {
		t.Fatalf("banned cancel must not record a strike: %v", env.guard.cancellations)
	}
}

func TestBannedDriverBlockedMidTrip(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: 1}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	env.guard.banned[1] = true
	if err := env.engine.SetFare(ctx, FareCommand{TripID: tr.ID, DriverID: 1, TariffID: 1}); !errors.Is(err, ErrBanned) {
		t.Fatalf("set fare: expected ErrBanned, got %v", err)
	}
	if err := env.engine.SetEta(ctx, EtaCommand{TripID: tr.ID, DriverID: 1, Minutes: 5}); !errors.Is(err, ErrBanned) {
		t.Fatalf("set eta: expected ErrBanned, got %v", err)
	}
	if err := env.engine.MarkArrived(ctx, tr.ID, 1); !errors.Is(err, ErrBanned) {
		t.Fatalf("arrived: expected ErrBanned, got %v", err)
	}
	if err := env.engine.Complete(ctx, tr.ID, 1); !errors.Is(err, ErrBanned) {
		t.Fatalf("complete: expected ErrBanned, got %v", err)
	}
	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Status != StatusAccepted {
		t.Fatalf("trip must be untouched, got %s", got.Status)
	}
}

func TestPassengerCancelAfterFareAndEta(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: 1}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := env.engine.SetFare(ctx, FareCommand{TripID: tr.ID, DriverID: 1, TariffID: 1}); err != nil {
		t.Fatalf("set fare: %v", err)
	}
	if err := env.engine.SetEta(ctx, EtaCommand{TripID: tr.ID, DriverID: 1, Minutes: 5}); err != nil {
		t.Fatalf("set eta: %v", err)
	}

	err := env.engine.Cancel(ctx, CancelCommand{
		TripID: tr.ID, ActorID: testPassengerID, Actor: ActorPassenger, Reason: "waited too long",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Status != StatusCancelledByPassenger {
		t.Fatalf("expected cancelled_by_passenger, got %s", got.Status)
	}
	// The assigned driver hears about it.
	var driverTold bool
	for _, m := range env.gw.sentTo(1) {
		if strings.Contains(m.Text, "cancelled by the passenger") {
			driverTold = true
		}
	}
	if !driverTold {
		t.Fatal("driver never learned about the cancellation")
	}
	if n := env.store.surfaceCount(tr.ID); n != 0 {
		t.Fatalf("ledger must be empty after cancel, got %d rows", n)
	}
	if len(env.guard.cancellations) != 1 {
		t.Fatalf("strike not recorded: %v", env.guard.cancellations)
	}
}

func TestForceCancelSkipsStrikes(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	tr := env.createTrip(t)

	if err := env.engine.ForceCancel(ctx, tr.ID, "fraud check"); err != nil {
		t.Fatalf("force cancel: %v", err)
	}
	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if len(env.guard.cancellations) != 0 {
		t.Fatal("admin cancellation must not count as a strike")
	}
	if err := env.engine.ForceCancel(ctx, tr.ID, "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on terminal trip, got %v", err)
	}
}

func TestExpireStaleNotifiesPassenger(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	env.engine.cfg.RequestTimeout = 0

	if err := env.engine.ExpireStale(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Status != StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	if n := env.store.offerCount(tr.ID); n != 0 {
		t.Fatalf("offers must be torn down on expiry, got %d", n)
	}
	var told bool
	for _, m := range env.gw.sentTo(testPassengerID) {
		if strings.Contains(m.Text, "expired") {
			told = true
		}
	}
	if !told {
		t.Fatal("passenger never learned the order expired")
	}
}

func TestGatewayFailureDoesNotBlockTransitions(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()
	tr := env.createTrip(t)
	if err := env.engine.Broadcast(ctx, tr.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	// The passenger's chat goes dark; the accept must still land.
	env.gw.mu.Lock()
	env.gw.failFor[testPassengerID] = true
	env.gw.mu.Unlock()

	if err := env.engine.Accept(ctx, AcceptCommand{TripID: tr.ID, DriverID: 1}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got, _ := env.engine.Get(ctx, tr.ID)
	if got.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
}

func TestSystemBroadcastCountsDeliveries(t *testing.T) {
	env := newTestEnv(t, 3)
	env.gw.failFor[2] = true

	sent, err := env.engine.BroadcastSystemMessage(context.Background(), "maintenance tonight", user.RoleDriver)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sent)
	}
}
