package sharing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/internal/platform/db"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Repository defines share-round persistence.
type Repository interface {
	ListRounds(ctx context.Context, f RoundFilter) ([]Round, error)
	GetRound(ctx context.Context, agencyID, id string) (Round, error)
	ListCommissions(ctx context.Context, agencyID string, enquiryIDs []string) ([]Commission, error)
	GetCommission(ctx context.Context, agencyID, enquiryID, dmcID string) (Commission, error)
	LatestCustomerCommission(ctx context.Context, agencyID, customerID, dmcID string) (Commission, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository groups writes that commit together.
type TxRepository interface {
	InsertRound(ctx context.Context, r Round) error
	InsertItem(ctx context.Context, it Item) error
	LockRound(ctx context.Context, agencyID, id string) (Round, error)
	SetRoundActive(ctx context.Context, id string, active bool) error
	UpdateItemStatus(ctx context.Context, agencyID, itemID string, status ItemStatus, notes string) (Item, error)
	UpsertCommission(ctx context.Context, c Commission) (Commission, error)
	InsertCustomerShare(ctx context.Context, s CustomerShare) error
	StageNotification(ctx context.Context, n outbox.Notification) error
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

// WithTx runs fn inside a transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const roundColumns = `id, agency_id, enquiry_id, COALESCE(customer_id, ''), COALESCE(assigned_staff_id, ''),
	COALESCE(itinerary_id, ''), COALESCE(pdf_url, ''), is_active, date_generated, COALESCE(created_by, ''), created_at`

func scanRound(row pgx.Row) (Round, error) {
	var r Round
	err := row.Scan(&r.ID, &r.AgencyID, &r.EnquiryID, &r.CustomerID, &r.AssignedStaffID,
		&r.ItineraryID, &r.PDFURL, &r.IsActive, &r.DateGenerated, &r.CreatedBy, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Round{}, ErrRoundNotFound
	}
	return r, err
}

const itemColumns = `i.id, i.shared_dmc_id, i.dmc_id, i.status, COALESCE(i.notes, ''), COALESCE(i.notification_id, ''), i.updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var (
		it     Item
		status string
	)
	err := row.Scan(&it.ID, &it.RoundID, &it.DMCID, &status, &it.Notes, &it.NotificationID, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	it.Status = ItemStatus(status)
	return it, err
}

// ListRounds returns rounds with their items, newest first.
func (r *PGRepository) ListRounds(ctx context.Context, f RoundFilter) ([]Round, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roundColumns+` FROM shared_dmcs
WHERE agency_id = $1 AND ($2 = '' OR enquiry_id = $2) AND ($3 = '' OR customer_id = $3)
ORDER BY created_at DESC`, f.AgencyID, f.EnquiryID, f.CustomerID)
	if err != nil {
		return nil, err
	}
	var (
		rounds []Round
		ids    []string
	)
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		rounds = append(rounds, round)
		ids = append(ids, round.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return rounds, nil
	}
	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range rounds {
		rounds[i].Items = items[rounds[i].ID]
	}
	return rounds, nil
}

func (r *PGRepository) itemsFor(ctx context.Context, roundIDs []string) (map[string][]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM shared_dmc_items i
WHERE i.shared_dmc_id = ANY($1) ORDER BY i.created_at, i.id`, roundIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]Item, len(roundIDs))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.RoundID] = append(out[it.RoundID], it)
	}
	return out, rows.Err()
}

// GetRound loads a round with its items.
func (r *PGRepository) GetRound(ctx context.Context, agencyID, id string) (Round, error) {
	round, err := scanRound(r.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM shared_dmcs WHERE agency_id = $1 AND id = $2`, agencyID, id))
	if err != nil {
		return Round{}, err
	}
	items, err := r.itemsFor(ctx, []string{id})
	if err != nil {
		return Round{}, err
	}
	round.Items = items[id]
	return round, nil
}

const commissionColumns = `id, agency_id, enquiry_id, dmc_id, quotation_minor, commission_type, commission_minor,
	markup_minor, COALESCE(comments, ''), COALESCE(updated_by, ''), created_at, updated_at`

func scanCommission(row pgx.Row) (Commission, error) {
	var c Commission
	var quotation, amount, markup int64
	err := row.Scan(&c.ID, &c.AgencyID, &c.EnquiryID, &c.DMCID, &quotation, &c.CommissionType, &amount,
		&markup, &c.Comments, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Commission{}, ErrCommissionNotFound
	}
	c.QuotationAmount = shared.Money(quotation)
	c.CommissionAmount = shared.Money(amount)
	c.MarkupPrice = shared.Money(markup)
	return c, err
}

// ListCommissions returns the commissions recorded for the given enquiries.
func (r *PGRepository) ListCommissions(ctx context.Context, agencyID string, enquiryIDs []string) ([]Commission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+commissionColumns+` FROM commissions WHERE agency_id = $1 AND enquiry_id = ANY($2)`, agencyID, enquiryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCommission loads the commission for (enquiry, DMC).
func (r *PGRepository) GetCommission(ctx context.Context, agencyID, enquiryID, dmcID string) (Commission, error) {
	return scanCommission(r.pool.QueryRow(ctx, `SELECT `+commissionColumns+` FROM commissions
WHERE agency_id = $1 AND enquiry_id = $2 AND dmc_id = $3`, agencyID, enquiryID, dmcID))
}

// LatestCustomerCommission returns the most recently updated commission for
// dmcID on any of the customer's enquiries.
func (r *PGRepository) LatestCustomerCommission(ctx context.Context, agencyID, customerID, dmcID string) (Commission, error) {
	return scanCommission(r.pool.QueryRow(ctx, `SELECT `+commissionColumns+` FROM commissions
WHERE agency_id = $1 AND dmc_id = $3
  AND enquiry_id IN (SELECT id FROM enquiries WHERE agency_id = $1 AND customer_id = $2)
ORDER BY updated_at DESC, created_at DESC
LIMIT 1`, agencyID, customerID, dmcID))
}

func (t *txRepo) InsertRound(ctx context.Context, r Round) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO shared_dmcs (id, agency_id, enquiry_id, customer_id, assigned_staff_id, itinerary_id, pdf_url, is_active, date_generated, created_by, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, NULLIF($10, ''), $11)`,
		r.ID, r.AgencyID, r.EnquiryID, r.CustomerID, r.AssignedStaffID, r.ItineraryID, r.PDFURL, r.IsActive, r.DateGenerated, r.CreatedBy, r.CreatedAt)
	return err
}

func (t *txRepo) InsertItem(ctx context.Context, it Item) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO shared_dmc_items (id, shared_dmc_id, dmc_id, status, notes, notification_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $7)`,
		it.ID, it.RoundID, it.DMCID, string(it.Status), it.Notes, it.NotificationID, it.UpdatedAt)
	if shared.IsUniqueViolation(err) {
		return ErrAlreadyInRound
	}
	return err
}

func (t *txRepo) LockRound(ctx context.Context, agencyID, id string) (Round, error) {
	round, err := scanRound(t.tx.QueryRow(ctx, `SELECT `+roundColumns+` FROM shared_dmcs WHERE agency_id = $1 AND id = $2 FOR UPDATE`, agencyID, id))
	if err != nil {
		return Round{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM shared_dmc_items i WHERE i.shared_dmc_id = $1 ORDER BY i.created_at, i.id`, id)
	if err != nil {
		return Round{}, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return Round{}, err
		}
		round.Items = append(round.Items, it)
	}
	return round, rows.Err()
}

func (t *txRepo) SetRoundActive(ctx context.Context, id string, active bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE shared_dmcs SET is_active = $2 WHERE id = $1`, id, active)
	return err
}

func (t *txRepo) UpdateItemStatus(ctx context.Context, agencyID, itemID string, status ItemStatus, notes string) (Item, error) {
	return scanItem(t.tx.QueryRow(ctx, `UPDATE shared_dmc_items i SET status = $3, notes = COALESCE(NULLIF($4, ''), i.notes), updated_at = NOW()
FROM shared_dmcs s
WHERE s.id = i.shared_dmc_id AND s.agency_id = $1 AND i.id = $2
RETURNING `+itemColumns, agencyID, itemID, string(status), notes))
}

func (t *txRepo) UpsertCommission(ctx context.Context, c Commission) (Commission, error) {
	return scanCommission(t.tx.QueryRow(ctx, `INSERT INTO commissions (id, agency_id, enquiry_id, dmc_id, quotation_minor, commission_type,
	commission_minor, markup_minor, comments, updated_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $11)
ON CONFLICT (enquiry_id, dmc_id) DO UPDATE SET
	quotation_minor = EXCLUDED.quotation_minor,
	commission_type = EXCLUDED.commission_type,
	commission_minor = EXCLUDED.commission_minor,
	markup_minor = EXCLUDED.markup_minor,
	comments = EXCLUDED.comments,
	updated_by = EXCLUDED.updated_by,
	updated_at = EXCLUDED.updated_at
WHERE commissions.agency_id = EXCLUDED.agency_id
RETURNING `+commissionColumns,
		c.ID, c.AgencyID, c.EnquiryID, c.DMCID, int64(c.QuotationAmount), c.CommissionType,
		int64(c.CommissionAmount), int64(c.MarkupPrice), c.Comments, c.UpdatedBy, c.UpdatedAt))
}

func (t *txRepo) InsertCustomerShare(ctx context.Context, s CustomerShare) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO shared_customer_pdfs (id, agency_id, customer_id, enquiry_id, dmc_id, itinerary_id, recipient,
	pdf_url, markup_minor, currency, email_sent, notification_id, sent_by, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10, FALSE, NULLIF($11, ''), NULLIF($12, ''), $13)`,
		s.ID, s.AgencyID, s.CustomerID, s.EnquiryID, s.DMCID, s.ItineraryID, s.Recipient,
		s.PDFURL, int64(s.MarkupPrice), s.Currency, s.NotificationID, s.SentBy, s.CreatedAt)
	return err
}

func (t *txRepo) StageNotification(ctx context.Context, n outbox.Notification) error {
	return outbox.Insert(ctx, t.tx, n)
}

var _ Repository = (*PGRepository)(nil)
