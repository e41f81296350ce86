// README: Catalogue store backed by PostgreSQL (plain CRUD).
package tariff

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

var ErrNotFound = errors.New("catalogue entry not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Tariffs(ctx context.Context) ([]Tariff, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, price FROM tariffs ORDER BY price`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tariff
	for rows.Next() {
		var t Tariff
		var price int64
		if err := rows.Scan(&t.ID, &t.Name, &price); err != nil {
			return nil, err
		}
		t.Price = types.Rub(price)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTariff(ctx context.Context, name string, price types.Money) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO tariffs (name, price) VALUES ($1, $2) RETURNING id`,
		name, price.Amount).Scan(&id)
	return id, err
}

func (s *Store) UpdateTariff(ctx context.Context, id int64, name string, price types.Money) error {
	tag, err := s.db.Exec(ctx, `UPDATE tariffs SET name = $1, price = $2 WHERE id = $3`,
		name, price.Amount, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTariff(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tariffs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) EtaOptions(ctx context.Context) ([]EtaOption, error) {
	rows, err := s.db.Query(ctx, `SELECT id, label, minutes FROM eta_options ORDER BY minutes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EtaOption
	for rows.Next() {
		var o EtaOption
		if err := rows.Scan(&o.ID, &o.Label, &o.Minutes); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) CancelReasons(ctx context.Context, audience Audience) ([]CancelReason, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, audience, reason_text FROM cancellation_reasons WHERE audience = $1 ORDER BY id`,
		string(audience))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CancelReason
	for rows.Next() {
		var r CancelReason
		if err := rows.Scan(&r.ID, &r.Audience, &r.Text); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateCancelReason(ctx context.Context, audience Audience, text string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO cancellation_reasons (audience, reason_text) VALUES ($1, $2) RETURNING id`,
		string(audience), text).Scan(&id)
	return id, err
}

func (s *Store) UpdateCancelReason(ctx context.Context, id int64, text string) error {
	tag, err := s.db.Exec(ctx, `UPDATE cancellation_reasons SET reason_text = $1 WHERE id = $2`, text, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCancelReason(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM cancellation_reasons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
