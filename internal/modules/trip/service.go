// README: Trip engine: lifecycle transitions, offer broadcast, and the message
// ledger. Gateway delivery is best-effort and never blocks a transition.
package trip

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"taxihub/internal/config"
	"taxihub/internal/gateway"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/user"
	"taxihub/internal/types"
)

var (
	ErrNotFound       = errors.New("trip not found")
	ErrInvalidState   = errors.New("invalid state transition")
	ErrAlreadyTaken   = errors.New("trip already taken")
	ErrBadRequest     = errors.New("bad request")
	ErrBanned         = errors.New("user is banned")
	ErrActiveTrip     = errors.New("passenger has active trip")
	ErrNotParticipant = errors.New("user is not a participant of the trip")
	ErrNotPassenger   = errors.New("only passengers can order trips")
	ErrNoDrivers      = errors.New("no available drivers")
	ErrUnknownTariff  = errors.New("unknown tariff")
)

// Store is the persistence the engine needs. *PgStore implements it; tests
// supply an in-memory one.
type Store interface {
	Create(ctx context.Context, t *Trip) error
	Get(ctx context.Context, id int64) (*Trip, error)
	UpdateStatusIf(ctx context.Context, id int64, from, to Status, driverID *int64, reason *string) (bool, error)
	SetFare(ctx context.Context, id int64, fare types.Money) error
	HasActiveByPassenger(ctx context.Context, passengerID int64) (bool, error)
	ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]*Trip, error)
	ListRecent(ctx context.Context, limit int) ([]*Trip, error)

	SaveSurface(ctx context.Context, tripID int64, role SurfaceRole, h gateway.Handle) error
	Surface(ctx context.Context, tripID int64, role SurfaceRole) (gateway.Handle, error)
	Surfaces(ctx context.Context, tripID int64) ([]Surface, error)
	ClearSurfaces(ctx context.Context, tripID int64) error

	AddOffer(ctx context.Context, o Offer) error
	Offers(ctx context.Context, tripID int64) ([]Offer, error)
	RemoveOffer(ctx context.Context, tripID, driverID int64) error
	ClearOffers(ctx context.Context, tripID int64) error
}

type Users interface {
	Get(ctx context.Context, id int64) (*user.User, error)
	List(ctx context.Context, role user.Role) ([]user.User, error)
	AvailableDrivers(ctx context.Context) ([]user.User, error)
}

type Guard interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
	RecordCancellation(ctx context.Context, userID int64) error
}

type Ratings interface {
	Rate(ctx context.Context, tripID, driverID, passengerID int64, score int) error
	DriverAverage(ctx context.Context, driverID int64) (float64, int, error)
}

type Catalogue interface {
	Tariffs(ctx context.Context) ([]tariff.Tariff, error)
	EtaOptions(ctx context.Context) ([]tariff.EtaOption, error)
}

type Engine struct {
	store     Store
	users     Users
	guard     Guard
	ratings   Ratings
	catalogue Catalogue
	gw        gateway.Client
	cfg       config.TripConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewEngine(store Store, users Users, guard Guard, ratings Ratings, catalogue Catalogue, gw gateway.Client, cfg config.TripConfig, log *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		users:     users,
		guard:     guard,
		ratings:   ratings,
		catalogue: catalogue,
		gw:        gw,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

type CreateCommand struct {
	PassengerID int64
	Pickup      string
	Dropoff     string
	Comment     string
}

type AcceptCommand struct {
	TripID   int64
	DriverID int64
}

type FareCommand struct {
	TripID   int64
	DriverID int64
	TariffID int64
}

type EtaCommand struct {
	TripID   int64
	DriverID int64
	Minutes  int
}

type CancelCommand struct {
	TripID  int64
	ActorID int64
	Actor   Actor
	Reason  string
}

// Create opens a new trip for the passenger and shows them their order card.
// Banned users, drivers, and passengers with a live trip are rejected.
func (e *Engine) Create(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	if cmd.PassengerID == 0 || cmd.Pickup == "" || cmd.Dropoff == "" {
		return nil, ErrBadRequest
	}
	if err := e.ensureNotBanned(ctx, cmd.PassengerID); err != nil {
		return nil, err
	}
	p, err := e.users.Get(ctx, cmd.PassengerID)
	if err != nil {
		return nil, err
	}
	if p.Role != user.RolePassenger {
		return nil, ErrNotPassenger
	}
	active, err := e.store.HasActiveByPassenger(ctx, cmd.PassengerID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveTrip
	}

	t := &Trip{
		PassengerID: cmd.PassengerID,
		Status:      StatusRequested,
		Pickup:      cmd.Pickup,
		Dropoff:     cmd.Dropoff,
	}
	if cmd.Comment != "" {
		t.Comment = &cmd.Comment
	}
	if err := e.store.Create(ctx, t); err != nil {
		return nil, err
	}
	e.track(ctx, t.ID, RolePassengerCard, t.PassengerID,
		passengerCardText(t), passengerCardKeyboard(t.ID))
	return t, nil
}

// Broadcast offers the trip to every available driver not yet holding an
// offer for it, so repeat calls only fill gaps. Delivery failures are logged
// per driver and skipped; the trip stays open either way.
func (e *Engine) Broadcast(ctx context.Context, tripID int64) error {
	t, err := e.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if t.Status != StatusRequested {
		return ErrInvalidState
	}
	passenger, err := e.users.Get(ctx, t.PassengerID)
	if err != nil {
		return err
	}
	drivers, err := e.users.AvailableDrivers(ctx)
	if err != nil {
		return err
	}
	existing, err := e.store.Offers(ctx, t.ID)
	if err != nil {
		return err
	}
	offered := make(map[int64]bool, len(existing))
	for _, o := range existing {
		offered[o.DriverID] = true
	}

	reached := 0
	for _, d := range drivers {
		if offered[d.ID] {
			continue
		}
		if banned, err := e.guard.IsBanned(ctx, d.ID); err != nil || banned {
			continue
		}
		h, err := e.gw.SendMessage(ctx, d.ID, offerText(t, passenger), offerKeyboard(t.ID))
		if err != nil {
			e.log.Warn("offer delivery failed",
				zap.Int64("trip_id", t.ID), zap.Int64("driver_id", d.ID), zap.Error(err))
			continue
		}
		if err := e.store.AddOffer(ctx, Offer{TripID: t.ID, DriverID: d.ID, Handle: h}); err != nil {
			return err
		}
		reached++
	}
	if reached == 0 && len(existing) == 0 {
		e.notify(ctx, t.PassengerID, noDriversText(), nil)
		return ErrNoDrivers
	}
	return nil
}

// Accept is the race: many drivers may tap the same offer, the conditional
// write picks exactly one. Losers get ErrAlreadyTaken and their offer message
// is already gone by the time they retry.
func (e *Engine) Accept(ctx context.Context, cmd AcceptCommand) error {
	t, err := e.store.Get(ctx, cmd.TripID)
	if err != nil {
		return err
	}
	if !CanTransition(t.Status, StatusAccepted) {
		if t.Status.Terminal() || t.Status == StatusAccepted {
			return ErrAlreadyTaken
		}
		return ErrInvalidState
	}
	if err := e.ensureNotBanned(ctx, cmd.DriverID); err != nil {
		return err
	}

	ok, err := e.store.UpdateStatusIf(ctx, t.ID, StatusRequested, StatusAccepted, &cmd.DriverID, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyTaken
	}

	// The winner's offer message becomes the driver card; every other copy
	// is torn down.
	offers, err := e.store.Offers(ctx, t.ID)
	if err != nil {
		return err
	}
	var won gateway.Handle
	for _, o := range offers {
		if o.DriverID == cmd.DriverID {
			won = o.Handle
			continue
		}
		if err := e.gw.DeleteMessage(ctx, o.Handle); err != nil {
			e.log.Warn("offer teardown failed",
				zap.Int64("trip_id", t.ID), zap.Int64("driver_id", o.DriverID), zap.Error(err))
		}
	}
	if err := e.store.ClearOffers(ctx, t.ID); err != nil {
		return err
	}

	t.Status = StatusAccepted
	t.DriverID = &cmd.DriverID

	if !won.Zero() {
		e.edit(ctx, t.ID, won, driverCardText(t), nil)
		if err := e.store.SaveSurface(ctx, t.ID, RoleDriverCard, won); err != nil {
			return err
		}
	}

	driver, err := e.users.Get(ctx, cmd.DriverID)
	if err != nil {
		return err
	}
	avg, ratings, err := e.ratings.DriverAverage(ctx, cmd.DriverID)
	if err != nil {
		e.log.Warn("driver rating lookup failed",
			zap.Int64("driver_id", cmd.DriverID), zap.Error(err))
	}
	e.track(ctx, t.ID, RolePassengerDriverInfo, t.PassengerID,
		driverInfoText(driver, avg, ratings), nil)

	tariffs, err := e.catalogue.Tariffs(ctx)
	if err != nil {
		return err
	}
	e.track(ctx, t.ID, RoleDriverTariffPrompt, cmd.DriverID,
		tariffPromptText(t.ID), tariffPromptKeyboard(t.ID, tariffs))
	return nil
}

// DeclineOffer withdraws one driver's copy of the broadcast without touching
// the trip.
func (e *Engine) DeclineOffer(ctx context.Context, tripID, driverID int64) error {
	if err := e.ensureNotBanned(ctx, driverID); err != nil {
		return err
	}
	offers, err := e.store.Offers(ctx, tripID)
	if err != nil {
		return err
	}
	for _, o := range offers {
		if o.DriverID != driverID {
			continue
		}
		if err := e.gw.DeleteMessage(ctx, o.Handle); err != nil {
			e.log.Warn("offer teardown failed",
				zap.Int64("trip_id", tripID), zap.Int64("driver_id", driverID), zap.Error(err))
		}
		return e.store.RemoveOffer(ctx, tripID, driverID)
	}
	return nil
}

// SetFare records the tariff the driver picked and tells the passenger the
// price along with the driver's payment details.
func (e *Engine) SetFare(ctx context.Context, cmd FareCommand) error {
	if err := e.ensureNotBanned(ctx, cmd.DriverID); err != nil {
		return err
	}
	t, err := e.participantTrip(ctx, cmd.TripID, cmd.DriverID, ActorDriver)
	if err != nil {
		return err
	}
	if t.Status != StatusAccepted {
		return ErrInvalidState
	}

	tariffs, err := e.catalogue.Tariffs(ctx)
	if err != nil {
		return err
	}
	var chosen *tariff.Tariff
	for i := range tariffs {
		if tariffs[i].ID == cmd.TariffID {
			chosen = &tariffs[i]
			break
		}
	}
	if chosen == nil {
		return ErrUnknownTariff
	}
	if err := e.store.SetFare(ctx, t.ID, chosen.Price); err != nil {
		return err
	}

	driver, err := e.users.Get(ctx, cmd.DriverID)
	if err != nil {
		return err
	}
	e.track(ctx, t.ID, RolePassengerFare, t.PassengerID,
		passengerFareText(chosen.Price, driver.Profile), nil)

	if prompt, err := e.store.Surface(ctx, t.ID, RoleDriverTariffPrompt); err == nil && !prompt.Zero() {
		e.edit(ctx, t.ID, prompt, driverFareText(chosen.Price), nil)
		_ = e.store.SaveSurface(ctx, t.ID, RoleDriverFare, prompt)
	}

	options, err := e.catalogue.EtaOptions(ctx)
	if err != nil {
		return err
	}
	e.track(ctx, t.ID, RoleDriverEtaPrompt, cmd.DriverID,
		etaPromptText(t.ID), etaPromptKeyboard(t.ID, options))
	return nil
}

// SetEta relays the driver's arrival estimate. The estimate is a notification,
// not trip state, so nothing is persisted beyond the ledger.
func (e *Engine) SetEta(ctx context.Context, cmd EtaCommand) error {
	if err := e.ensureNotBanned(ctx, cmd.DriverID); err != nil {
		return err
	}
	t, err := e.participantTrip(ctx, cmd.TripID, cmd.DriverID, ActorDriver)
	if err != nil {
		return err
	}
	if t.Status != StatusAccepted {
		return ErrInvalidState
	}

	e.track(ctx, t.ID, RolePassengerEta, t.PassengerID, passengerEtaText(cmd.Minutes), nil)

	if prompt, err := e.store.Surface(ctx, t.ID, RoleDriverEtaPrompt); err == nil && !prompt.Zero() {
		e.edit(ctx, t.ID, prompt, driverEtaText(cmd.Minutes), nil)
		_ = e.store.SaveSurface(ctx, t.ID, RoleDriverEta, prompt)
	}

	e.track(ctx, t.ID, RoleDriverControl, cmd.DriverID,
		driverControlText(t), driverControlKeyboard(t.ID, StatusAccepted))
	return nil
}

// MarkArrived starts the ride: accepted -> in_progress, with the passenger
// told their driver is at the door.
func (e *Engine) MarkArrived(ctx context.Context, tripID, driverID int64) error {
	if err := e.ensureNotBanned(ctx, driverID); err != nil {
		return err
	}
	t, err := e.participantTrip(ctx, tripID, driverID, ActorDriver)
	if err != nil {
		return err
	}
	if !CanTransition(t.Status, StatusInProgress) {
		return ErrInvalidState
	}
	ok, err := e.store.UpdateStatusIf(ctx, t.ID, StatusAccepted, StatusInProgress, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	t.Status = StatusInProgress

	e.track(ctx, t.ID, RolePassengerArrival, t.PassengerID, passengerArrivalText(), nil)

	if control, err := e.store.Surface(ctx, t.ID, RoleDriverControl); err == nil && !control.Zero() {
		e.edit(ctx, t.ID, control, driverControlText(t), driverControlKeyboard(t.ID, StatusInProgress))
	}
	return nil
}

// Complete finishes the ride, clears the ledger, and prompts the passenger
// for a rating.
func (e *Engine) Complete(ctx context.Context, tripID, driverID int64) error {
	if err := e.ensureNotBanned(ctx, driverID); err != nil {
		return err
	}
	t, err := e.participantTrip(ctx, tripID, driverID, ActorDriver)
	if err != nil {
		return err
	}
	if !CanTransition(t.Status, StatusCompleted) {
		return ErrInvalidState
	}
	ok, err := e.store.UpdateStatusIf(ctx, t.ID, t.Status, StatusCompleted, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	t.Status = StatusCompleted

	e.teardown(ctx, t.ID)
	e.notify(ctx, t.PassengerID, completedPassengerText(t), nil)
	e.notify(ctx, driverID, completedDriverText(t), nil)
	e.notify(ctx, t.PassengerID, ratingPromptText(), ratingKeyboard(t.ID))
	return nil
}

// Cancel ends the trip on behalf of one of its participants. Passenger and
// driver cancellations both feed the strike counter; a user the counter has
// already banned cannot keep cancelling.
func (e *Engine) Cancel(ctx context.Context, cmd CancelCommand) error {
	var to Status
	switch cmd.Actor {
	case ActorPassenger:
		to = StatusCancelledByPassenger
	case ActorDriver:
		to = StatusCancelledByDriver
	default:
		return ErrBadRequest
	}
	if err := e.ensureNotBanned(ctx, cmd.ActorID); err != nil {
		return err
	}

	t, err := e.participantTrip(ctx, cmd.TripID, cmd.ActorID, cmd.Actor)
	if err != nil {
		return err
	}
	if !CanTransition(t.Status, to) {
		return ErrInvalidState
	}
	var reason *string
	if cmd.Reason != "" {
		reason = &cmd.Reason
	}
	ok, err := e.store.UpdateStatusIf(ctx, t.ID, t.Status, to, nil, reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	from := t.Status
	t.Status = to
	t.CancelReason = reason

	e.teardownOffers(ctx, t.ID)
	e.teardown(ctx, t.ID)

	// Confirm to the actor, whose surfaces are gone now, and tell the other
	// side if there is one yet.
	e.notify(ctx, cmd.ActorID, cancelConfirmedText(t), nil)
	if cmd.Actor == ActorPassenger && t.DriverID != nil && from != StatusRequested {
		e.notify(ctx, *t.DriverID, cancelledText(t, cmd.Actor), nil)
	}
	if cmd.Actor == ActorDriver {
		e.notify(ctx, t.PassengerID, cancelledText(t, cmd.Actor), nil)
	}

	if err := e.guard.RecordCancellation(ctx, cmd.ActorID); err != nil {
		e.log.Error("cancellation strike not recorded",
			zap.Int64("user_id", cmd.ActorID), zap.Error(err))
	}
	return nil
}

// Rate stores the passenger's score for a completed trip. Exactly one rating
// per trip; repeats surface the store's error unchanged.
func (e *Engine) Rate(ctx context.Context, tripID, passengerID int64, score int) error {
	if err := e.ensureNotBanned(ctx, passengerID); err != nil {
		return err
	}
	t, err := e.participantTrip(ctx, tripID, passengerID, ActorPassenger)
	if err != nil {
		return err
	}
	if t.Status != StatusCompleted || t.DriverID == nil {
		return ErrInvalidState
	}
	if err := e.ratings.Rate(ctx, t.ID, *t.DriverID, passengerID, score); err != nil {
		return err
	}
	avg, count, err := e.ratings.DriverAverage(ctx, *t.DriverID)
	if err != nil {
		e.log.Warn("driver rating lookup failed",
			zap.Int64("driver_id", *t.DriverID), zap.Error(err))
		return nil
	}
	e.notify(ctx, *t.DriverID, ratingReceivedText(score, avg, count), nil)
	return nil
}

// ForceCancel is the admin override: any live trip goes straight to
// cancelled, both sides are told, no strikes are recorded.
func (e *Engine) ForceCancel(ctx context.Context, tripID int64, reason string) error {
	t, err := e.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return ErrInvalidState
	}
	var r *string
	if reason != "" {
		r = &reason
	}
	ok, err := e.store.UpdateStatusIf(ctx, t.ID, t.Status, StatusCancelled, nil, r)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	t.Status = StatusCancelled
	t.CancelReason = r

	e.teardownOffers(ctx, t.ID)
	e.teardown(ctx, t.ID)
	e.notify(ctx, t.PassengerID, cancelledText(t, ActorAdmin), nil)
	if t.DriverID != nil {
		e.notify(ctx, *t.DriverID, cancelledText(t, ActorAdmin), nil)
	}
	return nil
}

// BroadcastSystemMessage fans a plain announcement out to every user with one
// of the given roles. Returns how many deliveries succeeded.
func (e *Engine) BroadcastSystemMessage(ctx context.Context, text string, roles ...user.Role) (int, error) {
	if text == "" {
		return 0, ErrBadRequest
	}
	if len(roles) == 0 {
		roles = []user.Role{user.RolePassenger, user.RoleDriver}
	}
	sent := 0
	for _, role := range roles {
		users, err := e.users.List(ctx, role)
		if err != nil {
			return sent, err
		}
		for _, u := range users {
			if _, err := e.gw.SendMessage(ctx, u.ID, text, nil); err != nil {
				e.log.Warn("announcement delivery failed",
					zap.Int64("user_id", u.ID), zap.Error(err))
				continue
			}
			sent++
		}
	}
	return sent, nil
}

func (e *Engine) Get(ctx context.Context, id int64) (*Trip, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) Recent(ctx context.Context, limit int) ([]*Trip, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return e.store.ListRecent(ctx, limit)
}

// ensureNotBanned gates every user-initiated operation. Admin overrides and
// the sweeper bypass it.
func (e *Engine) ensureNotBanned(ctx context.Context, userID int64) error {
	banned, err := e.guard.IsBanned(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		return ErrBanned
	}
	return nil
}

// participantTrip loads the trip and checks the caller is the party the actor
// claims to be.
func (e *Engine) participantTrip(ctx context.Context, tripID, actorID int64, actor Actor) (*Trip, error) {
	t, err := e.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	switch actor {
	case ActorPassenger:
		if t.PassengerID != actorID {
			return nil, ErrNotParticipant
		}
	case ActorDriver:
		if t.DriverID == nil || *t.DriverID != actorID {
			return nil, ErrNotParticipant
		}
	}
	return t, nil
}

// track sends a message and binds it to a ledger role. Delivery failure is
// logged and the role stays empty; ledger failure after a delivery is an
// error because an untracked message can never be torn down.
func (e *Engine) track(ctx context.Context, tripID int64, role SurfaceRole, chatID int64, text string, kb gateway.Keyboard) {
	h, err := e.gw.SendMessage(ctx, chatID, text, kb)
	if err != nil {
		e.log.Warn("surface delivery failed",
			zap.Int64("trip_id", tripID), zap.String("role", string(role)), zap.Error(err))
		return
	}
	if err := e.store.SaveSurface(ctx, tripID, role, h); err != nil {
		e.log.Error("surface not tracked",
			zap.Int64("trip_id", tripID), zap.String("role", string(role)), zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, chatID int64, text string, kb gateway.Keyboard) {
	if _, err := e.gw.SendMessage(ctx, chatID, text, kb); err != nil {
		e.log.Warn("notification delivery failed",
			zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (e *Engine) edit(ctx context.Context, tripID int64, h gateway.Handle, text string, kb gateway.Keyboard) {
	if err := e.gw.EditMessage(ctx, h, text, kb); err != nil {
		e.log.Warn("surface edit failed",
			zap.Int64("trip_id", tripID), zap.Error(err))
	}
}

// teardown deletes every tracked message of the trip and empties the ledger.
func (e *Engine) teardown(ctx context.Context, tripID int64) {
	surfaces, err := e.store.Surfaces(ctx, tripID)
	if err != nil {
		e.log.Error("ledger read failed", zap.Int64("trip_id", tripID), zap.Error(err))
		return
	}
	for _, sf := range surfaces {
		if err := e.gw.DeleteMessage(ctx, sf.Handle); err != nil {
			e.log.Warn("surface teardown failed",
				zap.Int64("trip_id", tripID), zap.String("role", string(sf.Role)), zap.Error(err))
		}
	}
	if err := e.store.ClearSurfaces(ctx, tripID); err != nil {
		e.log.Error("ledger clear failed", zap.Int64("trip_id", tripID), zap.Error(err))
	}
}

func (e *Engine) teardownOffers(ctx context.Context, tripID int64) {
	offers, err := e.store.Offers(ctx, tripID)
	if err != nil {
		e.log.Error("offers read failed", zap.Int64("trip_id", tripID), zap.Error(err))
		return
	}
	for _, o := range offers {
		if err := e.gw.DeleteMessage(ctx, o.Handle); err != nil {
			e.log.Warn("offer teardown failed",
				zap.Int64("trip_id", tripID), zap.Int64("driver_id", o.DriverID), zap.Error(err))
		}
	}
	if err := e.store.ClearOffers(ctx, tripID); err != nil {
		e.log.Error("offers clear failed", zap.Int64("trip_id", tripID), zap.Error(err))
	}
}
