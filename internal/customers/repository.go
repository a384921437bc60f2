package customers

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Repository defines customer and feedback persistence.
type Repository interface {
	Create(ctx context.Context, c Customer) error
	Get(ctx context.Context, agencyID, id string) (Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	ListItineraries(ctx context.Context, agencyID, customerID string) ([]ItinerarySummary, error)
	ListSent(ctx context.Context, agencyID, customerID string) ([]SentItinerary, error)
	ListFeedback(ctx context.Context, agencyID, customerID string) ([]Feedback, error)
	GetFeedback(ctx context.Context, agencyID, id string) (Feedback, error)
	CreateFeedback(ctx context.Context, f Feedback) error
	UpdateFeedback(ctx context.Context, f Feedback) error
	DeleteFeedback(ctx context.Context, agencyID, id string) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const customerColumns = `id, agency_id, name, email, COALESCE(phone, ''), COALESCE(notes, ''), COALESCE(created_by, ''), created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.AgencyID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *PGRepository) Create(ctx context.Context, c Customer) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO customers (id, agency_id, name, email, phone, notes, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))`,
		c.ID, c.AgencyID, c.Name, c.Email, c.Phone, c.Notes, c.CreatedBy)
	if shared.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *PGRepository) Get(ctx context.Context, agencyID, id string) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE agency_id = $1 AND id = $2`, agencyID, id))
}

func (r *PGRepository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	search := "%" + strings.ToLower(strings.TrimSpace(req.Search)) + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers
WHERE agency_id = $1 AND (LOWER(name) LIKE $2 OR LOWER(email) LIKE $2)`, req.AgencyID, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers
WHERE agency_id = $1 AND (LOWER(name) LIKE $2 OR LOWER(email) LIKE $2)
ORDER BY name LIMIT $3 OFFSET $4`, req.AgencyID, search, req.Page.PerPage, req.Page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) ListItineraries(ctx context.Context, agencyID, customerID string) ([]ItinerarySummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.enquiry_id, i.title, i.destination, i.status,
	COALESCE(i.active_pdf_url, ''), i.active_pdf_version, i.updated_at
FROM itineraries i
JOIN enquiries e ON e.id = i.enquiry_id
WHERE i.agency_id = $1 AND e.customer_id = $2 AND e.archived_at IS NULL
ORDER BY i.updated_at DESC`, agencyID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItinerarySummary
	for rows.Next() {
		var it ItinerarySummary
		if err := rows.Scan(&it.ID, &it.EnquiryID, &it.Title, &it.Destination, &it.Status,
			&it.ActivePDFURL, &it.ActivePDFVersion, &it.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PGRepository) ListSent(ctx context.Context, agencyID, customerID string) ([]SentItinerary, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, COALESCE(s.enquiry_id, ''), s.dmc_id, COALESCE(d.name, ''),
	COALESCE(s.itinerary_id, ''), COALESCE(s.pdf_url, ''), s.markup_minor, s.currency, s.email_sent, s.email_sent_at,
	COALESCE(s.notification_id, ''), COALESCE(n.status, ''), COALESCE(s.sent_by, ''), s.created_at
FROM shared_customer_pdfs s
LEFT JOIN dmcs d ON d.id = s.dmc_id
LEFT JOIN notifications n ON n.id = s.notification_id
WHERE s.agency_id = $1 AND s.customer_id = $2
ORDER BY s.created_at DESC`, agencyID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SentItinerary
	for rows.Next() {
		var (
			s      SentItinerary
			markup int64
		)
		if err := rows.Scan(&s.ID, &s.EnquiryID, &s.DMCID, &s.DMCName, &s.ItineraryID, &s.PDFURL, &markup, &s.Currency,
			&s.EmailSent, &s.EmailSentAt, &s.NotificationID, &s.DeliveryStatus, &s.SentBy, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.MarkupPrice = shared.Money(markup)
		out = append(out, s)
	}
	return out, rows.Err()
}

const feedbackColumns = `id, agency_id, customer_id, itinerary_id, rating, COALESCE(comment, ''), COALESCE(created_by, ''), created_at, updated_at`

func scanFeedback(row pgx.Row) (Feedback, error) {
	var f Feedback
	err := row.Scan(&f.ID, &f.AgencyID, &f.CustomerID, &f.ItineraryID, &f.Rating, &f.Comment, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Feedback{}, ErrFeedbackNotFound
	}
	return f, err
}

func (r *PGRepository) ListFeedback(ctx context.Context, agencyID, customerID string) ([]Feedback, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE agency_id = $1 AND customer_id = $2 ORDER BY created_at DESC`, agencyID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PGRepository) GetFeedback(ctx context.Context, agencyID, id string) (Feedback, error) {
	return scanFeedback(r.pool.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE agency_id = $1 AND id = $2`, agencyID, id))
}

func (r *PGRepository) CreateFeedback(ctx context.Context, f Feedback) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO feedback (id, agency_id, customer_id, itinerary_id, rating, comment, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $8)`,
		f.ID, f.AgencyID, f.CustomerID, f.ItineraryID, f.Rating, f.Comment, f.CreatedBy, f.CreatedAt)
	return err
}

func (r *PGRepository) UpdateFeedback(ctx context.Context, f Feedback) error {
	tag, err := r.pool.Exec(ctx, `UPDATE feedback SET rating = $3, comment = $4, updated_at = $5 WHERE agency_id = $1 AND id = $2`,
		f.AgencyID, f.ID, f.Rating, f.Comment, f.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedbackNotFound
	}
	return nil
}

func (r *PGRepository) DeleteFeedback(ctx context.Context, agencyID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM feedback WHERE agency_id = $1 AND id = $2`, agencyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedbackNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
