// README: Ban store backed by PostgreSQL.
package ban

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("ban not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, b *Ban) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO bans (user_id, reason, banned_until)
		VALUES ($1, $2, $3)
		RETURNING id, banned_at`,
		b.UserID, b.Reason, b.BannedUntil,
	).Scan(&b.ID, &b.BannedAt)
}

// Latest returns the most recent ban row for the user, expired or not.
func (s *Store) Latest(ctx context.Context, userID int64) (*Ban, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, reason, banned_at, banned_until
		FROM bans WHERE user_id = $1
		ORDER BY banned_at DESC LIMIT 1`, userID,
	)
	var b Ban
	err := row.Scan(&b.ID, &b.UserID, &b.Reason, &b.BannedAt, &b.BannedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM bans WHERE user_id = $1`, userID)
	return err
}
