// README: Statistics queries for the bot "my stats" surface and the admin overview.
package stats

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

type DriverStats struct {
	CompletedTrips int
	TotalEarnings  types.Money
	AverageRating  float64
	RatingCount    int
}

type PassengerStats struct {
	CompletedTrips int
}

type SystemOverview struct {
	TotalUsers      int
	TotalDrivers    int
	ActiveDrivers   int
	TripsToday      int
	CompletedTrips  int
	CancelledTrips  int
	RevenueComplete types.Money
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Driver(ctx context.Context, driverID int64) (DriverStats, error) {
	var st DriverStats
	var earnings *int64
	var avg *float64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(t.id), SUM(t.fare),
		       (SELECT AVG(rating) FROM ratings WHERE driver_id = $1),
		       (SELECT COUNT(*) FROM ratings WHERE driver_id = $1)
		FROM trips t
		WHERE t.driver_id = $1 AND t.status = 'completed'`, driverID,
	).Scan(&st.CompletedTrips, &earnings, &avg, &st.RatingCount)
	if err != nil {
		return st, err
	}
	if earnings != nil {
		st.TotalEarnings = types.Rub(*earnings)
	} else {
		st.TotalEarnings = types.Rub(0)
	}
	if avg != nil {
		st.AverageRating = *avg
	}
	return st, nil
}

func (s *Store) Passenger(ctx context.Context, passengerID int64) (PassengerStats, error) {
	var st PassengerStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM trips WHERE passenger_id = $1 AND status = 'completed'`,
		passengerID,
	).Scan(&st.CompletedTrips)
	return st, err
}

func (s *Store) Overview(ctx context.Context) (SystemOverview, error) {
	var o SystemOverview
	var revenue *int64
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE role = 'driver'),
			(SELECT COUNT(*) FROM users WHERE role = 'driver' AND available),
			(SELECT COUNT(*) FROM trips WHERE created_at >= date_trunc('day', now())),
			(SELECT COUNT(*) FROM trips WHERE status = 'completed'),
			(SELECT COUNT(*) FROM trips WHERE status IN
				('cancelled', 'cancelled_by_passenger', 'cancelled_by_driver', 'expired')),
			(SELECT SUM(fare) FROM trips WHERE status = 'completed')`,
	).Scan(&o.TotalUsers, &o.TotalDrivers, &o.ActiveDrivers,
		&o.TripsToday, &o.CompletedTrips, &o.CancelledTrips, &revenue)
	if err != nil {
		return o, err
	}
	if revenue != nil {
		o.RevenueComplete = types.Rub(*revenue)
	} else {
		o.RevenueComplete = types.Rub(0)
	}
	return o, nil
}
