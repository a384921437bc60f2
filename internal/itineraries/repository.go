package itineraries

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarer-ops/wayfarer/internal/platform/db"
)

// Repository defines itinerary persistence.
type Repository interface {
	Create(ctx context.Context, it Itinerary) error
	Get(ctx context.Context, agencyID, id string) (Itinerary, error)
	ListByEnquiry(ctx context.Context, agencyID, enquiryID string) ([]Itinerary, error)
	ListVersions(ctx context.Context, itineraryID string) ([]PDFVersion, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the versioning operations run under the itinerary row lock.
type TxRepository interface {
	LockItinerary(ctx context.Context, agencyID, id string) (Itinerary, error)
	MaxVersion(ctx context.Context, itineraryID string) (int, error)
	DeactivateVersions(ctx context.Context, itineraryID string) error
	InsertVersion(ctx context.Context, v PDFVersion) error
	GetVersion(ctx context.Context, itineraryID, versionID string) (PDFVersion, error)
	ActivateVersion(ctx context.Context, itineraryID, versionID string) error
	UpdatePDFCache(ctx context.Context, it Itinerary) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction; callers serialise on LockItinerary.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const itineraryColumns = `id, agency_id, enquiry_id, title, destination, status, COALESCE(pdf_url, ''),
	COALESCE(active_pdf_url, ''), COALESCE(active_pdf_key, ''), active_pdf_version, COALESCE(created_by, ''), created_at, updated_at`

func scanItinerary(row pgx.Row) (Itinerary, error) {
	var it Itinerary
	err := row.Scan(&it.ID, &it.AgencyID, &it.EnquiryID, &it.Title, &it.Destination, &it.Status, &it.PDFURL,
		&it.ActivePDFURL, &it.ActivePDFKey, &it.ActivePDFVersion, &it.CreatedBy, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Itinerary{}, ErrNotFound
	}
	return it, err
}

const versionColumns = `id, itinerary_id, version, url, storage_key, filename, file_size, is_edited, is_active, COALESCE(created_by, ''), created_at`

func scanVersion(row pgx.Row) (PDFVersion, error) {
	var v PDFVersion
	err := row.Scan(&v.ID, &v.ItineraryID, &v.Version, &v.URL, &v.StorageKey, &v.Filename, &v.FileSize, &v.IsEdited, &v.IsActive, &v.CreatedBy, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PDFVersion{}, ErrVersionNotFound
	}
	return v, err
}

// Create inserts an itinerary.
func (r *PGRepository) Create(ctx context.Context, it Itinerary) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO itineraries (id, agency_id, enquiry_id, title, destination, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`, it.ID, it.AgencyID, it.EnquiryID, it.Title, it.Destination, it.Status, it.CreatedBy)
	return err
}

// Get loads one itinerary.
func (r *PGRepository) Get(ctx context.Context, agencyID, id string) (Itinerary, error) {
	return scanItinerary(r.pool.QueryRow(ctx, `SELECT `+itineraryColumns+` FROM itineraries WHERE agency_id = $1 AND id = $2`, agencyID, id))
}

// ListByEnquiry returns the itineraries of an enquiry, newest first.
func (r *PGRepository) ListByEnquiry(ctx context.Context, agencyID, enquiryID string) ([]Itinerary, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itineraryColumns+` FROM itineraries WHERE agency_id = $1 AND enquiry_id = $2 ORDER BY created_at DESC`, agencyID, enquiryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Itinerary
	for rows.Next() {
		it, err := scanItinerary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListVersions returns every PDF version, newest first.
func (r *PGRepository) ListVersions(ctx context.Context, itineraryID string) ([]PDFVersion, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+versionColumns+` FROM pdf_versions WHERE itinerary_id = $1 ORDER BY version DESC`, itineraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PDFVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LockItinerary loads the itinerary and holds its row lock until commit.
func (t *txRepo) LockItinerary(ctx context.Context, agencyID, id string) (Itinerary, error) {
	return scanItinerary(t.tx.QueryRow(ctx, `SELECT `+itineraryColumns+` FROM itineraries WHERE agency_id = $1 AND id = $2 FOR UPDATE`, agencyID, id))
}

// MaxVersion returns the highest version number, zero when none exist.
func (t *txRepo) MaxVersion(ctx context.Context, itineraryID string) (int, error) {
	var v int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM pdf_versions WHERE itinerary_id = $1`, itineraryID).Scan(&v)
	return v, err
}

// DeactivateVersions clears the active flag on every version.
func (t *txRepo) DeactivateVersions(ctx context.Context, itineraryID string) error {
	_, err := t.tx.Exec(ctx, `UPDATE pdf_versions SET is_active = FALSE WHERE itinerary_id = $1 AND is_active`, itineraryID)
	return err
}

// InsertVersion stores a new version row.
func (t *txRepo) InsertVersion(ctx context.Context, v PDFVersion) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO pdf_versions (id, itinerary_id, version, url, storage_key, filename, file_size, is_edited, is_active, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`,
		v.ID, v.ItineraryID, v.Version, v.URL, v.StorageKey, v.Filename, v.FileSize, v.IsEdited, v.IsActive, v.CreatedBy, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pdf version: %w", err)
	}
	return nil
}

// GetVersion loads a version of the itinerary.
func (t *txRepo) GetVersion(ctx context.Context, itineraryID, versionID string) (PDFVersion, error) {
	return scanVersion(t.tx.QueryRow(ctx, `SELECT `+versionColumns+` FROM pdf_versions WHERE itinerary_id = $1 AND id = $2`, itineraryID, versionID))
}

// ActivateVersion marks one version active.
func (t *txRepo) ActivateVersion(ctx context.Context, itineraryID, versionID string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE pdf_versions SET is_active = TRUE WHERE itinerary_id = $1 AND id = $2`, itineraryID, versionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

// UpdatePDFCache stores the itinerary's cached PDF pointers and status.
func (t *txRepo) UpdatePDFCache(ctx context.Context, it Itinerary) error {
	_, err := t.tx.Exec(ctx, `UPDATE itineraries SET pdf_url = $2, active_pdf_url = $3, active_pdf_key = $4,
	active_pdf_version = $5, status = $6, updated_at = NOW() WHERE id = $1`,
		it.ID, it.PDFURL, it.ActivePDFURL, it.ActivePDFKey, it.ActivePDFVersion, it.Status)
	return err
}

var _ Repository = (*PGRepository)(nil)
