package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/internal/platform/db"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Repository defines payment persistence.
type Repository interface {
	Get(ctx context.Context, agencyID, id string) (Payment, error)
	List(ctx context.Context, agencyID, enquiryID, dmcID string) ([]Payment, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListMethods(ctx context.Context, agencyID, dmcID string) ([]Method, error)
	GetMethod(ctx context.Context, agencyID, dmcID string) (Method, error)
	CreateMethod(ctx context.Context, m Method) error
	UpdateMethod(ctx context.Context, m Method) (Method, error)
	DeleteMethod(ctx context.Context, agencyID, dmcID string) error
}

// Totals are the prior payments of a pair.
type Totals struct {
	Paid      shared.Money
	TotalCost shared.Money
	Count     int
}

// TxRepository runs under the per-pair advisory lock.
type TxRepository interface {
	LockPair(ctx context.Context, enquiryID, dmcID string) error
	Totals(ctx context.Context, agencyID, enquiryID, dmcID string) (Totals, error)
	Insert(ctx context.Context, p Payment) error
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

// WithTx runs fn in a read-committed transaction so the balance read after
// LockPair sees payments committed by the previous lock holder.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxLevel(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const paymentColumns = `id, agency_id, enquiry_id, dmc_id, amount_paid_minor, payment_date, COALESCE(transaction_id, ''),
	channel, status, total_cost_minor, remaining_minor, currency, COALESCE(receipt_key, ''), COALESCE(receipt_url, ''),
	COALESCE(receipt_filename, ''), COALESCE(receipt_content_type, ''), COALESCE(notification_id, ''),
	COALESCE(recorded_by, ''), created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.AgencyID, &p.EnquiryID, &p.DMCID, &p.AmountPaid, &p.PaymentDate, &p.TransactionID,
		&p.Channel, &p.Status, &p.TotalCost, &p.RemainingBalance, &p.Currency, &p.ReceiptKey, &p.ReceiptURL,
		&p.ReceiptFilename, &p.ReceiptContentType, &p.NotificationID, &p.RecordedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

// Get loads one payment.
func (r *PGRepository) Get(ctx context.Context, agencyID, id string) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE agency_id = $1 AND id = $2`, agencyID, id))
}

// List returns payments in the order they were made.
func (r *PGRepository) List(ctx context.Context, agencyID, enquiryID, dmcID string) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE agency_id = $1 AND ($2 = '' OR enquiry_id = $2) AND ($3 = '' OR dmc_id = $3)
ORDER BY payment_date, created_at`, agencyID, enquiryID, dmcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) LockPair(ctx context.Context, enquiryID, dmcID string) error {
	return db.AdvisoryLock(ctx, t.tx, fmt.Sprintf("payments:%s:%s", enquiryID, dmcID))
}

func (t *txRepo) Totals(ctx context.Context, agencyID, enquiryID, dmcID string) (Totals, error) {
	var out Totals
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount_paid_minor), 0), COUNT(*),
	COALESCE((SELECT total_cost_minor FROM payments WHERE agency_id = $1 AND enquiry_id = $2 AND dmc_id = $3
		ORDER BY created_at DESC LIMIT 1), 0)
FROM payments WHERE agency_id = $1 AND enquiry_id = $2 AND dmc_id = $3`, agencyID, enquiryID, dmcID).
		Scan(&out.Paid, &out.Count, &out.TotalCost)
	return out, err
}

func (t *txRepo) Insert(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payments (id, agency_id, enquiry_id, dmc_id, amount_paid_minor, payment_date,
	transaction_id, channel, status, total_cost_minor, remaining_minor, currency, receipt_key, receipt_url,
	receipt_filename, receipt_content_type, notification_id, recorded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, NULLIF($13, ''), NULLIF($14, ''),
	NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''), $19)`,
		p.ID, p.AgencyID, p.EnquiryID, p.DMCID, p.AmountPaid, p.PaymentDate, p.TransactionID, p.Channel, p.Status,
		p.TotalCost, p.RemainingBalance, p.Currency, p.ReceiptKey, p.ReceiptURL, p.ReceiptFilename,
		p.ReceiptContentType, p.NotificationID, p.RecordedBy, p.CreatedAt)
	return err
}

func (t *txRepo) StageNotification(ctx context.Context, n outbox.Notification) error {
	return outbox.Insert(ctx, t.tx, n)
}

const methodColumns = `id, agency_id, dmc_id, COALESCE(bank_name, ''), COALESCE(account_name, ''), COALESCE(account_number, ''),
	COALESCE(ifsc, ''), COALESCE(upi_id, ''), COALESCE(gateway_link, ''), COALESCE(qr_image_key, ''), COALESCE(notes, ''),
	COALESCE(updated_by, ''), created_at, updated_at`

func scanMethod(row pgx.Row) (Method, error) {
	var m Method
	err := row.Scan(&m.ID, &m.AgencyID, &m.DMCID, &m.BankName, &m.AccountName, &m.AccountNumber, &m.IFSC, &m.UPIID,
		&m.GatewayLink, &m.QRImageKey, &m.Notes, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Method{}, ErrMethodNotFound
	}
	return m, err
}

// ListMethods returns the configured methods, optionally for one DMC.
func (r *PGRepository) ListMethods(ctx context.Context, agencyID, dmcID string) ([]Method, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+methodColumns+` FROM payment_methods
WHERE agency_id = $1 AND ($2 = '' OR dmc_id = $2) ORDER BY updated_at DESC`, agencyID, dmcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Method
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMethod loads the method configured for a DMC.
func (r *PGRepository) GetMethod(ctx context.Context, agencyID, dmcID string) (Method, error) {
	return scanMethod(r.pool.QueryRow(ctx, `SELECT `+methodColumns+` FROM payment_methods WHERE agency_id = $1 AND dmc_id = $2`, agencyID, dmcID))
}

// CreateMethod inserts a method; one per DMC.
func (r *PGRepository) CreateMethod(ctx context.Context, m Method) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payment_methods (id, agency_id, dmc_id, bank_name, account_name, account_number,
	ifsc, upi_id, gateway_link, qr_image_key, notes, updated_by, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
	NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, $13)`,
		m.ID, m.AgencyID, m.DMCID, m.BankName, m.AccountName, m.AccountNumber, m.IFSC, m.UPIID, m.GatewayLink,
		m.QRImageKey, m.Notes, m.UpdatedBy, m.CreatedAt)
	if shared.IsUniqueViolation(err) {
		return ErrMethodExists
	}
	return err
}

// UpdateMethod overwrites the method of a DMC.
func (r *PGRepository) UpdateMethod(ctx context.Context, m Method) (Method, error) {
	return scanMethod(r.pool.QueryRow(ctx, `UPDATE payment_methods SET bank_name = NULLIF($3, ''), account_name = NULLIF($4, ''),
	account_number = NULLIF($5, ''), ifsc = NULLIF($6, ''), upi_id = NULLIF($7, ''), gateway_link = NULLIF($8, ''),
	qr_image_key = NULLIF($9, ''), notes = NULLIF($10, ''), updated_by = NULLIF($11, ''), updated_at = $12
WHERE agency_id = $1 AND dmc_id = $2
RETURNING `+methodColumns, m.AgencyID, m.DMCID, m.BankName, m.AccountName, m.AccountNumber, m.IFSC, m.UPIID,
		m.GatewayLink, m.QRImageKey, m.Notes, m.UpdatedBy, time.Now().UTC()))
}

// DeleteMethod removes the method of a DMC.
func (r *PGRepository) DeleteMethod(ctx context.Context, agencyID, dmcID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payment_methods WHERE agency_id = $1 AND dmc_id = $2`, agencyID, dmcID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMethodNotFound
	}
	return nil
}
