package trip

import (
	"context"
	"errors"
	"sync"
	"time"

	"taxihub/internal/gateway"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/user"
	"taxihub/internal/types"
)

// memStore is an in-memory Store with the same conditional-write semantics as
// the SQL one, so the engine can be raced without a database.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	trips    map[int64]*Trip
	surfaces map[int64]map[SurfaceRole]gateway.Handle
	offers   map[int64]map[int64]gateway.Handle
}

func newMemStore() *memStore {
	return &memStore{
		trips:    make(map[int64]*Trip),
		surfaces: make(map[int64]map[SurfaceRole]gateway.Handle),
		offers:   make(map[int64]map[int64]gateway.Handle),
	}
}

func (m *memStore) Create(_ context.Context, t *Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = time.Now()
	cp := *t
	m.trips[t.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id int64) (*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) UpdateStatusIf(_ context.Context, id int64, from, to Status, driverID *int64, reason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if driverID != nil {
		d := *driverID
		t.DriverID = &d
	}
	if reason != nil {
		r := *reason
		t.CancelReason = &r
	}
	return true, nil
}

func (m *memStore) SetFare(_ context.Context, id int64, fare types.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	t.Fare = &fare
	return nil
}

func (m *memStore) HasActiveByPassenger(_ context.Context, passengerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.PassengerID == passengerID && !t.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListRecent(_ context.Context, limit int) ([]*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Trip
	for _, t := range m.trips {
		if len(out) == limit {
			break
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ListRequestedBefore(_ context.Context, cutoff time.Time) ([]*Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Trip
	for _, t := range m.trips {
		if t.Status == StatusRequested && t.CreatedAt.Before(cutoff) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) SaveSurface(_ context.Context, tripID int64, role SurfaceRole, h gateway.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.surfaces[tripID] == nil {
		m.surfaces[tripID] = make(map[SurfaceRole]gateway.Handle)
	}
	m.surfaces[tripID][role] = h
	return nil
}

func (m *memStore) Surface(_ context.Context, tripID int64, role SurfaceRole) (gateway.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.surfaces[tripID][role], nil
}

func (m *memStore) Surfaces(_ context.Context, tripID int64) ([]Surface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Surface
	for role, h := range m.surfaces[tripID] {
		out = append(out, Surface{TripID: tripID, Role: role, Handle: h})
	}
	return out, nil
}

func (m *memStore) ClearSurfaces(_ context.Context, tripID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.surfaces, tripID)
	return nil
}

func (m *memStore) AddOffer(_ context.Context, o Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offers[o.TripID] == nil {
		m.offers[o.TripID] = make(map[int64]gateway.Handle)
	}
	m.offers[o.TripID][o.DriverID] = o.Handle
	return nil
}

func (m *memStore) Offers(_ context.Context, tripID int64) ([]Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Offer
	for driverID, h := range m.offers[tripID] {
		out = append(out, Offer{TripID: tripID, DriverID: driverID, Handle: h})
	}
	return out, nil
}

func (m *memStore) RemoveOffer(_ context.Context, tripID, driverID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.offers[tripID], driverID)
	return nil
}

func (m *memStore) ClearOffers(_ context.Context, tripID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.offers, tripID)
	return nil
}

func (m *memStore) surfaceCount(tripID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.surfaces[tripID])
}

func (m *memStore) offerCount(tripID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.offers[tripID])
}

// fakeGateway records every delivery. failFor marks chat ids whose sends
// should error, simulating an unreachable recipient.
type fakeGateway struct {
	mu      sync.Mutex
	nextID  int64
	sent    []sentMessage
	deleted []gateway.Handle
	edited  []gateway.Handle
	failFor map[int64]bool
}

type sentMessage struct {
	ChatID int64
	Text   string
	Kb     gateway.Keyboard
	Handle gateway.Handle
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failFor: make(map[int64]bool)}
}

func (g *fakeGateway) SendMessage(_ context.Context, chatID int64, text string, kb gateway.Keyboard) (gateway.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor[chatID] {
		return gateway.Handle{}, errors.New("recipient unreachable")
	}
	g.nextID++
	h := gateway.Handle{ChatID: chatID, MessageID: g.nextID}
	g.sent = append(g.sent, sentMessage{ChatID: chatID, Text: text, Kb: kb, Handle: h})
	return h, nil
}

func (g *fakeGateway) EditMessage(_ context.Context, h gateway.Handle, _ string, _ gateway.Keyboard) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edited = append(g.edited, h)
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, h gateway.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, h)
	return nil
}

func (g *fakeGateway) sentTo(chatID int64) []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMessage
	for _, m := range g.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (g *fakeGateway) deletedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.deleted)
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]user.User
}

func newFakeUsers(users ...user.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]user.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Get(_ context.Context, id int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUsers) List(_ context.Context, role user.Role) ([]user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []user.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) AvailableDrivers(_ context.Context) ([]user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []user.User
	for _, u := range f.users {
		if u.Role == user.RoleDriver && u.Available {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeGuard struct {
	mu            sync.Mutex
	banned        map[int64]bool
	cancellations []int64
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{banned: make(map[int64]bool)}
}

func (f *fakeGuard) IsBanned(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banned[userID], nil
}

func (f *fakeGuard) RecordCancellation(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancellations = append(f.cancellations, userID)
	return nil
}

type fakeRatings struct {
	mu    sync.Mutex
	rated map[int64]int
}

func newFakeRatings() *fakeRatings {
	return &fakeRatings{rated: make(map[int64]int)}
}

var errAlreadyRated = errors.New("trip already rated")

func (f *fakeRatings) Rate(_ context.Context, tripID, _, _ int64, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rated[tripID]; ok {
		return errAlreadyRated
	}
	f.rated[tripID] = score
	return nil
}

func (f *fakeRatings) DriverAverage(context.Context, int64) (float64, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rated) == 0 {
		return 0, 0, nil
	}
	var sum int
	for _, s := range f.rated {
		sum += s
	}
	return float64(sum) / float64(len(f.rated)), len(f.rated), nil
}

type fakeCatalogue struct{}

func (fakeCatalogue) Tariffs(context.Context) ([]tariff.Tariff, error) {
	return []tariff.Tariff{
		{ID: 1, Name: "City", Price: types.Rub(30000)},
		{ID: 2, Name: "Out of town", Price: types.Rub(50000)},
	}, nil
}

func (fakeCatalogue) EtaOptions(context.Context) ([]tariff.EtaOption, error) {
	return []tariff.EtaOption{
		{ID: 1, Label: "5 min", Minutes: 5},
		{ID: 2, Label: "10 min", Minutes: 10},
	}, nil
}
