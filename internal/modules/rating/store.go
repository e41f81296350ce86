// README: Rating store backed by PostgreSQL.
package rating

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAlreadyRated = errors.New("trip already rated")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Create inserts the rating. A second rating for the same trip hits the
// unique constraint and is reported as ErrAlreadyRated, never overwritten.
func (s *Store) Create(ctx context.Context, r *Rating) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO ratings (trip_id, driver_id, passenger_id, rating)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trip_id) DO NOTHING
		RETURNING id, created_at`,
		r.TripID, r.DriverID, r.PassengerID, r.Score,
	).Scan(&r.ID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyRated
	}
	return err
}

// DriverAverage returns the driver's mean score and how many ratings it is
// built from. count == 0 means no ratings yet.
func (s *Store) DriverAverage(ctx context.Context, driverID int64) (float64, int, error) {
	var avg *float64
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT AVG(rating), COUNT(*) FROM ratings WHERE driver_id = $1`, driverID,
	).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	if avg == nil {
		return 0, 0, nil
	}
	return *avg, count, nil
}
