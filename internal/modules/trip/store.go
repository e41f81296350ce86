// README: Trip store backed by PostgreSQL. Status changes go through a single
// conditional UPDATE so concurrent writers race on the WHERE clause, not in Go.
package trip

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/gateway"
	"taxihub/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Create(ctx context.Context, t *Trip) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO trips (passenger_id, status, pickup, dropoff, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		t.PassengerID, string(t.Status), t.Pickup, t.Dropoff, t.Comment,
	).Scan(&t.ID, &t.CreatedAt)
}

func (s *PgStore) Get(ctx context.Context, id int64) (*Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, passenger_id, driver_id, status, pickup, dropoff, comment,
		       fare, cancel_reason,
		       created_at, accepted_at, started_at, completed_at, cancelled_at
		FROM trips
		WHERE id = $1`, id,
	)

	var t Trip
	var driverID sql.NullInt64
	var fare sql.NullInt64
	var comment, cancelReason sql.NullString
	var acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.PassengerID, &driverID, &t.Status, &t.Pickup, &t.Dropoff, &comment,
		&fare, &cancelReason,
		&t.CreatedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		t.DriverID = &driverID.Int64
	}
	if fare.Valid {
		m := types.Rub(fare.Int64)
		t.Fare = &m
	}
	if comment.Valid {
		t.Comment = &comment.String
	}
	if cancelReason.Valid {
		t.CancelReason = &cancelReason.String
	}
	t.AcceptedAt = toTimePtr(acceptedAt)
	t.StartedAt = toTimePtr(startedAt)
	t.CompletedAt = toTimePtr(completedAt)
	t.CancelledAt = toTimePtr(cancelledAt)
	return &t, nil
}

// UpdateStatusIf moves the trip from one status to another only if it still
// holds the expected status. The returned bool is false when someone else got
// there first.
func (s *PgStore) UpdateStatusIf(ctx context.Context, id int64, from, to Status, driverID *int64, reason *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET status = $1,
		    driver_id = COALESCE($2, driver_id),
		    cancel_reason = COALESCE($3, cancel_reason),
		    accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END,
		    started_at = CASE WHEN $1 = 'in_progress' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 IN
		        ('expired', 'cancelled', 'cancelled_by_passenger', 'cancelled_by_driver')
		        THEN NOW() ELSE cancelled_at END
		WHERE id = $4 AND status = $5`,
		string(to), driverID, reason, id, string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) SetFare(ctx context.Context, id int64, fare types.Money) error {
	tag, err := s.db.Exec(ctx, `UPDATE trips SET fare = $1 WHERE id = $2`, fare.Amount, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) HasActiveByPassenger(ctx context.Context, passengerID int64) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM trips
			WHERE passenger_id = $1
			  AND status IN ('requested', 'accepted', 'in_progress')
		)`, passengerID,
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListRequestedBefore returns trips still waiting for a driver that were
// created before the cutoff. The sweeper races each of them through
// UpdateStatusIf afterwards.
func (s *PgStore) ListRequestedBefore(ctx context.Context, cutoff time.Time) ([]*Trip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, passenger_id, pickup, dropoff, created_at
		FROM trips
		WHERE status = 'requested' AND created_at < $1`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trip
	for rows.Next() {
		t := Trip{Status: StatusRequested}
		if err := rows.Scan(&t.ID, &t.PassengerID, &t.Pickup, &t.Dropoff, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ListRecent returns the newest trips for the dispatch overview.
func (s *PgStore) ListRecent(ctx context.Context, limit int) ([]*Trip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, passenger_id, driver_id, status, pickup, dropoff, fare, created_at
		FROM trips
		ORDER BY created_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trip
	for rows.Next() {
		var t Trip
		var driverID, fare sql.NullInt64
		if err := rows.Scan(&t.ID, &t.PassengerID, &driverID, &t.Status,
			&t.Pickup, &t.Dropoff, &fare, &t.CreatedAt); err != nil {
			return nil, err
		}
		if driverID.Valid {
			t.DriverID = &driverID.Int64
		}
		if fare.Valid {
			m := types.Rub(fare.Int64)
			t.Fare = &m
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PgStore) SaveSurface(ctx context.Context, tripID int64, role SurfaceRole, h gateway.Handle) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_messages (trip_id, role, chat_id, message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trip_id, role)
		DO UPDATE SET chat_id = EXCLUDED.chat_id, message_id = EXCLUDED.message_id`,
		tripID, string(role), h.ChatID, h.MessageID,
	)
	return err
}

func (s *PgStore) Surface(ctx context.Context, tripID int64, role SurfaceRole) (gateway.Handle, error) {
	var h gateway.Handle
	err := s.db.QueryRow(ctx, `
		SELECT chat_id, message_id FROM trip_messages
		WHERE trip_id = $1 AND role = $2`, tripID, string(role),
	).Scan(&h.ChatID, &h.MessageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return gateway.Handle{}, nil
	}
	return h, err
}

func (s *PgStore) Surfaces(ctx context.Context, tripID int64) ([]Surface, error) {
	rows, err := s.db.Query(ctx, `
		SELECT role, chat_id, message_id FROM trip_messages WHERE trip_id = $1`, tripID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Surface
	for rows.Next() {
		sf := Surface{TripID: tripID}
		if err := rows.Scan(&sf.Role, &sf.Handle.ChatID, &sf.Handle.MessageID); err != nil {
			return nil, err
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}

func (s *PgStore) ClearSurfaces(ctx context.Context, tripID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM trip_messages WHERE trip_id = $1`, tripID)
	return err
}

func (s *PgStore) AddOffer(ctx context.Context, o Offer) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_offers (trip_id, driver_id, chat_id, message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trip_id, driver_id)
		DO UPDATE SET chat_id = EXCLUDED.chat_id, message_id = EXCLUDED.message_id`,
		o.TripID, o.DriverID, o.Handle.ChatID, o.Handle.MessageID,
	)
	return err
}

func (s *PgStore) Offers(ctx context.Context, tripID int64) ([]Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT driver_id, chat_id, message_id FROM trip_offers WHERE trip_id = $1`, tripID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		o := Offer{TripID: tripID}
		if err := rows.Scan(&o.DriverID, &o.Handle.ChatID, &o.Handle.MessageID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PgStore) RemoveOffer(ctx context.Context, tripID, driverID int64) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM trip_offers WHERE trip_id = $1 AND driver_id = $2`, tripID, driverID)
	return err
}

func (s *PgStore) ClearOffers(ctx context.Context, tripID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM trip_offers WHERE trip_id = $1`, tripID)
	return err
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
