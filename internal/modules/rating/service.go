// README: Rating service validates scores before persisting.
package rating

import (
	"context"
	"errors"
)

var ErrBadScore = errors.New("score must be between 1 and 5")

// RatingStore is what the service needs from persistence. *Store implements it.
type RatingStore interface {
	Create(ctx context.Context, r *Rating) error
	DriverAverage(ctx context.Context, driverID int64) (float64, int, error)
}

type Service struct {
	store RatingStore
}

func NewService(store RatingStore) *Service {
	return &Service{store: store}
}

func (s *Service) Rate(ctx context.Context, tripID, driverID, passengerID int64, score int) error {
	if score < 1 || score > 5 {
		return ErrBadScore
	}
	r := Rating{TripID: tripID, DriverID: driverID, PassengerID: passengerID, Score: score}
	return s.store.Create(ctx, &r)
}

func (s *Service) DriverAverage(ctx context.Context, driverID int64) (float64, int, error) {
	return s.store.DriverAverage(ctx, driverID)
}
