package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/lib/pq"

	"github.com/example/ride-lifecycle/internal/models"
)

const uniqueViolation = "23505"

const rideColumns = `id, rider_id, rider_name, rider_phone, driver_id, driver_name, driver_phone,
	status, pickup, destination, fare, distance, duration, cancel_reason, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// ApplyMigration executes the SQL file at path. Statements must be idempotent.
func (p *PostgresStore) ApplyMigration(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("exec migration %s: %w", path, err)
	}
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Create(ctx context.Context, r *models.Ride) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO rides (id, rider_id, rider_name, rider_phone, status, pickup, destination, fare, distance, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		r.ID, r.Rider.ID, r.Rider.Name, r.Rider.Phone, string(r.Status),
		r.Pickup, r.Destination, r.Fare, r.Distance, r.Duration,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateID
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ride{}, models.ErrNotFound
	}
	return r, err
}

// CompareAndTransition applies m in a single conditional UPDATE so the status
// check and the write cannot interleave with another transition.
func (p *PostgresStore) CompareAndTransition(ctx context.Context, id string, expected models.Status, m models.Mutation) (models.Ride, error) {
	var driverID, driverName, driverPhone sql.NullString
	if m.Driver != nil {
		driverID = sql.NullString{String: m.Driver.ID, Valid: true}
		driverName = sql.NullString{String: m.Driver.Name, Valid: true}
		driverPhone = sql.NullString{String: m.Driver.Phone, Valid: true}
	}
	row := p.db.QueryRowContext(ctx, `
		UPDATE rides
		SET status = $3,
			driver_id = COALESCE(driver_id, $4),
			driver_name = COALESCE(driver_name, $5),
			driver_phone = COALESCE(driver_phone, $6),
			cancel_reason = COALESCE(NULLIF($7, ''), cancel_reason),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+rideColumns,
		id, string(expected), string(m.To), driverID, driverName, driverPhone, m.CancelReason,
	)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Nothing matched: either the ride is gone or its status moved on.
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); err != nil {
			return models.Ride{}, err
		}
		if !exists {
			return models.Ride{}, models.ErrNotFound
		}
		return models.Ride{}, models.ErrConflict
	}
	return r, err
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE status = $1 ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, err
	}
	return collectRides(rows)
}

func (p *PostgresStore) ListByParticipant(ctx context.Context, actorID string, role models.Role) ([]models.Ride, error) {
	var query string
	switch role {
	case models.RoleRider:
		query = `SELECT ` + rideColumns + ` FROM rides WHERE rider_id = $1 ORDER BY created_at DESC`
	case models.RoleDriver:
		query = `SELECT ` + rideColumns + ` FROM rides WHERE driver_id = $1 ORDER BY created_at DESC`
	default:
		return []models.Ride{}, nil
	}
	rows, err := p.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return nil, err
	}
	return collectRides(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(s rowScanner) (models.Ride, error) {
	var r models.Ride
	var status string
	var driverID, driverName, driverPhone, cancelReason sql.NullString
	err := s.Scan(
		&r.ID, &r.Rider.ID, &r.Rider.Name, &r.Rider.Phone,
		&driverID, &driverName, &driverPhone,
		&status, &r.Pickup, &r.Destination, &r.Fare, &r.Distance, &r.Duration,
		&cancelReason, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return models.Ride{}, err
	}
	r.Status = models.Status(status)
	if driverID.Valid {
		r.Driver = &models.Participant{ID: driverID.String, Name: driverName.String, Phone: driverPhone.String}
	}
	r.CancelReason = cancelReason.String
	return r, nil
}

func collectRides(rows *sql.Rows) ([]models.Ride, error) {
	defer rows.Close()
	out := make([]models.Ride, 0)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
