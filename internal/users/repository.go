package users

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, agency_id, name, email, COALESCE(phone, ''), role, is_active, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.AgencyID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// ListByAgency returns all staff belonging to agencyID.
func (r *Repository) ListByAgency(ctx context.Context, agencyID string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE agency_id = $1 ORDER BY created_at`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Get fetches a user scoped to agencyID.
func (r *Repository) Get(ctx context.Context, agencyID, id string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE agency_id = $1 AND id = $2`, agencyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// Create inserts a user with a password hash.
func (r *Repository) Create(ctx context.Context, u User, passwordHash string) (User, error) {
	const q = `INSERT INTO users (id, agency_id, name, email, phone, role, password_hash, is_active)
VALUES ($1, $2, $3, lower($4), NULLIF($5, ''), $6, $7, TRUE)
RETURNING ` + userColumns
	created, err := scanUser(r.pool.QueryRow(ctx, q, u.ID, u.AgencyID, u.Name, strings.TrimSpace(u.Email), u.Phone, u.Role, passwordHash))
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return created, nil
}

// UpdatePassword replaces the stored hash.
func (r *Repository) UpdatePassword(ctx context.Context, agencyID, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $3, updated_at = NOW() WHERE agency_id = $1 AND id = $2`, agencyID, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
