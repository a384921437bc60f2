package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarer-ops/wayfarer/internal/platform/db"
)

// Insert stages n using q, normally the caller's transaction.
func Insert(ctx context.Context, q db.DBTX, n Notification) error {
	attachments, err := json.Marshal(n.Attachments)
	if err != nil {
		return fmt.Errorf("outbox: encode attachments: %w", err)
	}
	const stmt = `INSERT INTO notifications (id, agency_id, kind, recipient, subject, html, attachments, subject_type, subject_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = q.Exec(ctx, stmt, n.ID, n.AgencyID, string(n.Kind), n.Recipient, n.Subject, n.HTML, attachments,
		n.SubjectType, n.SubjectID, string(n.Status), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("outbox: insert notification: %w", err)
	}
	return nil
}

// Store is the PostgreSQL notification repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const notificationColumns = `id, agency_id, kind, recipient, subject, html, attachments, subject_type, subject_id,
	status, attempts, COALESCE(last_error, ''), COALESCE(provider_message_id, ''), created_at, sent_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n           Notification
		kind        string
		status      string
		attachments []byte
	)
	err := row.Scan(&n.ID, &n.AgencyID, &kind, &n.Recipient, &n.Subject, &n.HTML, &attachments, &n.SubjectType, &n.SubjectID,
		&status, &n.Attempts, &n.LastError, &n.ProviderMessageID, &n.CreatedAt, &n.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	n.Kind = Kind(kind)
	n.Status = Status(status)
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &n.Attachments); err != nil {
			return Notification{}, fmt.Errorf("outbox: decode attachments: %w", err)
		}
	}
	return n, nil
}

// Insert stages n outside any caller transaction.
func (s *Store) Insert(ctx context.Context, n Notification) error {
	return Insert(ctx, s.pool, n)
}

// Get loads a notification.
func (s *Store) Get(ctx context.Context, id string) (Notification, error) {
	return scanNotification(s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

// MarkSent records a successful delivery and flags the linked customer share.
func (s *Store) MarkSent(ctx context.Context, id, providerMessageID string, at time.Time) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var subjectType, subjectID string
		err := tx.QueryRow(ctx, `UPDATE notifications SET status = 'SENT', attempts = attempts + 1, provider_message_id = $2,
	sent_at = $3, last_error = NULL WHERE id = $1 RETURNING subject_type, subject_id`, id, providerMessageID, at).Scan(&subjectType, &subjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if subjectType == SubjectSharedCustomerPDF {
			if _, err := tx.Exec(ctx, `UPDATE shared_customer_pdfs SET email_sent = TRUE, email_sent_at = $2 WHERE id = $1`, subjectID, at); err != nil {
				return fmt.Errorf("outbox: flag customer share: %w", err)
			}
		}
		return nil
	})
}

// MarkFailed records a failed attempt. A final failure moves the notification to FAILED.
func (s *Store) MarkFailed(ctx context.Context, id, reason string, final bool) error {
	status := StatusPending
	if final {
		status = StatusFailed
	}
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET status = $2, attempts = attempts + 1, last_error = $3 WHERE id = $1`, id, string(status), reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStale returns ids of pending notifications created before cutoff.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM notifications WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Deliveries returns the delivery status of the given notifications keyed by id.
func (s *Store) Deliveries(ctx context.Context, ids []string) (map[string]Delivery, error) {
	out := make(map[string]Delivery, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, status, attempts, COALESCE(last_error, ''), sent_at FROM notifications WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d      Delivery
			status string
		)
		if err := rows.Scan(&d.NotificationID, &status, &d.Attempts, &d.LastError, &d.SentAt); err != nil {
			return nil, err
		}
		d.Status = Status(status)
		out[d.NotificationID] = d
	}
	return out, rows.Err()
}
