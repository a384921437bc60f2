package dmcs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarer-ops/wayfarer/internal/platform/db"
)

// Repository defines DMC persistence.
type Repository interface {
	List(ctx context.Context, agencyID string, status Status) ([]DMC, error)
	Get(ctx context.Context, agencyID, id string) (DMC, error)
	GetMany(ctx context.Context, agencyID string, ids []string) ([]DMC, error)
	Upsert(ctx context.Context, d DMC) (DMC, error)
	SetStatus(ctx context.Context, agencyID, id string, status Status) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const dmcSelect = `SELECT d.id, d.agency_id, d.name, d.contact_person, d.email, d.phone_number, d.designation,
	d.status, d.primary_country,
	COALESCE(ARRAY(SELECT c.label FROM dmc_coverage c WHERE c.dmc_id = d.id AND c.kind = 'destination' ORDER BY c.position), '{}'),
	COALESCE(ARRAY(SELECT c.label FROM dmc_coverage c WHERE c.dmc_id = d.id AND c.kind = 'city' ORDER BY c.position), '{}'),
	d.created_at, d.updated_at
FROM dmcs d`

func scanDMC(row pgx.Row) (DMC, error) {
	var (
		d      DMC
		status string
	)
	err := row.Scan(&d.ID, &d.AgencyID, &d.Name, &d.ContactPerson, &d.Email, &d.PhoneNumber, &d.Designation,
		&status, &d.PrimaryCountry, &d.DestinationsCovered, &d.Cities, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DMC{}, ErrNotFound
		}
		return DMC{}, err
	}
	d.Status = Status(status)
	return d, nil
}

func collect(rows pgx.Rows) ([]DMC, error) {
	defer rows.Close()
	var out []DMC
	for rows.Next() {
		d, err := scanDMC(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// List returns the agency's DMCs, optionally filtered by status.
func (r *PGRepository) List(ctx context.Context, agencyID string, status Status) ([]DMC, error) {
	rows, err := r.pool.Query(ctx, dmcSelect+` WHERE d.agency_id = $1 AND ($2 = '' OR d.status = $2) ORDER BY d.name`, agencyID, string(status))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Get fetches one DMC.
func (r *PGRepository) Get(ctx context.Context, agencyID, id string) (DMC, error) {
	return scanDMC(r.pool.QueryRow(ctx, dmcSelect+` WHERE d.agency_id = $1 AND d.id = $2`, agencyID, id))
}

// GetMany fetches the DMCs whose ids are listed. Unknown ids are skipped.
func (r *PGRepository) GetMany(ctx context.Context, agencyID string, ids []string) ([]DMC, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, dmcSelect+` WHERE d.agency_id = $1 AND d.id = ANY($2) ORDER BY d.name`, agencyID, ids)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Upsert inserts or updates the DMC and rewrites its coverage rows.
func (r *PGRepository) Upsert(ctx context.Context, d DMC) (DMC, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO dmcs (id, agency_id, name, contact_person, email, phone_number, designation, status, primary_country)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, contact_person = EXCLUDED.contact_person, email = EXCLUDED.email,
	phone_number = EXCLUDED.phone_number, designation = EXCLUDED.designation, status = EXCLUDED.status,
	primary_country = EXCLUDED.primary_country, updated_at = NOW()
WHERE dmcs.agency_id = EXCLUDED.agency_id`
		tag, err := tx.Exec(ctx, q, d.ID, d.AgencyID, d.Name, d.ContactPerson, d.Email, d.PhoneNumber, d.Designation, string(d.Status), d.PrimaryCountry)
		if err != nil {
			return fmt.Errorf("upsert dmc: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM dmc_coverage WHERE dmc_id = $1`, d.ID); err != nil {
			return fmt.Errorf("clear coverage: %w", err)
		}
		batch := &pgx.Batch{}
		position := 0
		queue := func(kind, label string) {
			place := normalizePlace(label)
			if place == "" {
				return
			}
			position++
			batch.Queue(`INSERT INTO dmc_coverage (dmc_id, kind, place, label, position) VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
				d.ID, kind, place, label, position)
		}
		queue(KindCountry, d.PrimaryCountry)
		for _, p := range d.DestinationsCovered {
			queue(KindDestination, p)
		}
		for _, p := range d.Cities {
			queue(KindCity, p)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return DMC{}, err
	}
	return r.Get(ctx, d.AgencyID, d.ID)
}

// SetStatus toggles the DMC status.
func (r *PGRepository) SetStatus(ctx context.Context, agencyID, id string, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE dmcs SET status = $3, updated_at = NOW() WHERE agency_id = $1 AND id = $2`, agencyID, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
