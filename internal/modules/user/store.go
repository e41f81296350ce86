// README: User store backed by PostgreSQL.
package user

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const userColumns = `
	id, username, first_name, role, available,
	full_name, car_brand, car_model, license_plate, car_color,
	phone_number, payment_number, bank_name, registered_at`

func (s *Store) Upsert(ctx context.Context, id int64, username, firstName string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, username, first_name, role)
		VALUES ($1, $2, $3, 'passenger')
		ON CONFLICT (id) DO UPDATE SET username = $2, first_name = $3`,
		id, username, firstName,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) List(ctx context.Context, role Role) ([]User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// AvailableDrivers returns drivers that have opted in to receiving offers.
// Ban filtering happens in the engine through the guard.
func (s *Store) AvailableDrivers(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = 'driver' AND available`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *Store) SetAvailability(ctx context.Context, id int64, available bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET available = $1 WHERE id = $2 AND role = 'driver'`, available, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Promote makes the user a driver and writes the profile fields.
func (s *Store) Promote(ctx context.Context, id int64, p DriverProfile) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET role = 'driver',
			full_name = $1, car_brand = $2, car_model = $3, license_plate = $4,
			car_color = $5, phone_number = $6, payment_number = $7, bank_name = $8
		WHERE id = $9`,
		p.FullName, p.CarBrand, p.CarModel, p.LicensePlate,
		p.CarColor, p.PhoneNumber, p.PaymentNumber, p.BankName, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Demote downgrades a driver back to passenger. The driver profile and the
// availability toggle are cleared, not merely the role column.
func (s *Store) Demote(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET role = 'passenger', available = FALSE,
			full_name = NULL, car_brand = NULL, car_model = NULL, license_plate = NULL,
			car_color = NULL, phone_number = NULL, payment_number = NULL, bank_name = NULL
		WHERE id = $1`, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var fullName, carBrand, carModel, plate, color, phone, payment, bank *string
	err := row.Scan(
		&u.ID, &u.Username, &u.FirstName, &u.Role, &u.Available,
		&fullName, &carBrand, &carModel, &plate, &color,
		&phone, &payment, &bank, &u.RegisteredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Role == RoleDriver {
		u.Profile = &DriverProfile{
			FullName:      deref(fullName),
			CarBrand:      deref(carBrand),
			CarModel:      deref(carModel),
			LicensePlate:  deref(plate),
			CarColor:      deref(color),
			PhoneNumber:   deref(phone),
			PaymentNumber: deref(payment),
			BankName:      deref(bank),
		}
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
