package enquiries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarer-ops/wayfarer/internal/platform/db"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Repository defines persistence for enquiries.
type Repository interface {
	Create(ctx context.Context, e Enquiry) error
	Get(ctx context.Context, agencyID, id string) (Enquiry, error)
	List(ctx context.Context, filter ListFilter) ([]Enquiry, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, agencyID, id string) (Enquiry, error)
	Save(ctx context.Context, e Enquiry) error
	Archive(ctx context.Context, agencyID, id string, at time.Time) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const enquiryColumns = `id, agency_id, COALESCE(customer_id, ''), name, phone, email, locations,
tour_type, estimated_dates, currency, budget_minor, notes, COALESCE(assigned_staff_id, ''), point_of_contact,
pickup_location, drop_location, travellers, kids, traveling_with_pets, flights_required, lead_source,
tags, must_see_spots, status, enquiry_date, COALESCE(created_by, ''), archived_at, created_at, updated_at`

func scanEnquiry(row pgx.Row) (Enquiry, error) {
	var (
		e       Enquiry
		budget  int64
		status  string
		enqDate time.Time
	)
	err := row.Scan(
		&e.ID, &e.AgencyID, &e.CustomerID, &e.Name, &e.Phone, &e.Email, &e.Locations,
		&e.TourType, &e.EstimatedDates, &e.Currency, &budget, &e.Notes, &e.AssignedStaffID, &e.PointOfContact,
		&e.PickupLocation, &e.DropLocation, &e.Travellers, &e.Kids, &e.TravelingWithPets, &e.FlightsRequired, &e.LeadSource,
		&e.Tags, &e.MustSeeSpots, &status, &enqDate, &e.CreatedBy, &e.ArchivedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enquiry{}, ErrNotFound
		}
		return Enquiry{}, err
	}
	e.Budget = shared.Money(budget)
	e.Status = Status(status)
	e.EnquiryDate = shared.FormatDate(enqDate)
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if e.MustSeeSpots == nil {
		e.MustSeeSpots = []string{}
	}
	return e, nil
}

// Create inserts a new enquiry.
func (r *PGRepository) Create(ctx context.Context, e Enquiry) error {
	enqDate, err := shared.ParseDate(e.EnquiryDate)
	if err != nil {
		return fmt.Errorf("enquiry date: %w", err)
	}
	const q = `INSERT INTO enquiries (
	id, agency_id, customer_id, name, phone, email, locations, tour_type, estimated_dates, currency, budget_minor,
	notes, assigned_staff_id, point_of_contact, pickup_location, drop_location, travellers, kids,
	traveling_with_pets, flights_required, lead_source, tags, must_see_spots, status, enquiry_date, created_by
) VALUES (
	$1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11,
	$12, NULLIF($13, ''), $14, $15, $16, $17, $18,
	$19, $20, $21, $22, $23, $24, $25, NULLIF($26, '')
)`
	_, err = r.pool.Exec(ctx, q,
		e.ID, e.AgencyID, e.CustomerID, e.Name, e.Phone, e.Email, e.Locations, e.TourType, e.EstimatedDates, e.Currency, int64(e.Budget),
		e.Notes, e.AssignedStaffID, e.PointOfContact, e.PickupLocation, e.DropLocation, e.Travellers, e.Kids,
		e.TravelingWithPets, e.FlightsRequired, e.LeadSource, e.Tags, e.MustSeeSpots, string(e.Status), enqDate, e.CreatedBy,
	)
	return err
}

// Get fetches a non-archived enquiry.
func (r *PGRepository) Get(ctx context.Context, agencyID, id string) (Enquiry, error) {
	return scanEnquiry(r.pool.QueryRow(ctx,
		`SELECT `+enquiryColumns+` FROM enquiries WHERE agency_id = $1 AND id = $2 AND archived_at IS NULL`, agencyID, id))
}

// List returns a page of enquiries and the total count.
func (r *PGRepository) List(ctx context.Context, f ListFilter) ([]Enquiry, int, error) {
	where := []string{"agency_id = $1", "archived_at IS NULL"}
	args := []any{f.AgencyID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.AssignedStaffID != "" {
		args = append(args, f.AssignedStaffID)
		where = append(where, fmt.Sprintf("assigned_staff_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(lower(name) LIKE $%d OR lower(email) LIKE $%d OR phone LIKE $%d OR lower(locations) LIKE $%d)", n, n, n, n))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM enquiries WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := f.Page.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	args = append(args, perPage, f.Page.Offset())
	q := fmt.Sprintf(`SELECT %s FROM enquiries WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		enquiryColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Enquiry
	for rows.Next() {
		e, err := scanEnquiry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// GetForUpdate locks the enquiry row for the rest of the transaction.
func (t *txRepo) GetForUpdate(ctx context.Context, agencyID, id string) (Enquiry, error) {
	return scanEnquiry(t.tx.QueryRow(ctx,
		`SELECT `+enquiryColumns+` FROM enquiries WHERE agency_id = $1 AND id = $2 AND archived_at IS NULL FOR UPDATE`, agencyID, id))
}

// Save persists mutable fields and status.
func (t *txRepo) Save(ctx context.Context, e Enquiry) error {
	const q = `UPDATE enquiries SET
	name = $3, phone = $4, email = $5, locations = $6, tour_type = $7, estimated_dates = $8, currency = $9,
	budget_minor = $10, notes = $11, assigned_staff_id = NULLIF($12, ''), point_of_contact = $13,
	tags = $14, must_see_spots = $15, status = $16, updated_at = NOW()
WHERE agency_id = $1 AND id = $2`
	tag, err := t.tx.Exec(ctx, q, e.AgencyID, e.ID,
		e.Name, e.Phone, e.Email, e.Locations, e.TourType, e.EstimatedDates, e.Currency,
		int64(e.Budget), e.Notes, e.AssignedStaffID, e.PointOfContact,
		e.Tags, e.MustSeeSpots, string(e.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive soft-deletes the enquiry.
func (t *txRepo) Archive(ctx context.Context, agencyID, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE enquiries SET archived_at = $3, updated_at = NOW() WHERE agency_id = $1 AND id = $2 AND archived_at IS NULL`, agencyID, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
