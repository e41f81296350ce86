// README: User service: registration, role switching, availability toggle.
package user

import (
	"context"
	"errors"
)

var ErrNotDriver = errors.New("user is not a driver")

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Register records a user on first contact and refreshes contact fields on
// every later one. New users start as passengers.
func (s *Service) Register(ctx context.Context, id int64, username, firstName string) (*User, error) {
	if err := s.store.Upsert(ctx, id, username, firstName); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, role Role) ([]User, error) {
	return s.store.List(ctx, role)
}

func (s *Service) AvailableDrivers(ctx context.Context) ([]User, error) {
	return s.store.AvailableDrivers(ctx)
}

func (s *Service) SetAvailability(ctx context.Context, id int64, available bool) error {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.Role != RoleDriver {
		return ErrNotDriver
	}
	return s.store.SetAvailability(ctx, id, available)
}

func (s *Service) Promote(ctx context.Context, id int64, p DriverProfile) error {
	return s.store.Promote(ctx, id, p)
}

func (s *Service) Demote(ctx context.Context, id int64) error {
	return s.store.Demote(ctx, id)
}
