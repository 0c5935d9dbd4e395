package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workmandi/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `
	id, name, phone, photo, role, verification, verification_docs, rejection_reason, public_worker_id,
	wallet_balance, wallet_held, total_earnings, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Photo, &u.Role, &u.Verification, &u.VerificationDocs, &u.RejectionReason, &u.PublicWorkerID,
		&u.WalletBalance, &u.WalletHeld, &u.TotalEarnings, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if u.VerificationDocs == nil {
		u.VerificationDocs = []models.VerificationDocument{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, phone, photo, role, verification, verification_docs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, u.ID, u.Name, u.Phone, u.Photo, u.Role, u.Verification, u.VerificationDocs).Scan(&u.CreatedAt, &u.UpdatedAt)
	return translate(err, "insert user")
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get user")
	}
	return u, nil
}

// SearchByPhone returns users whose phone number contains fragment.
func (r *UserRepo) SearchByPhone(ctx context.Context, fragment string, limit int) ([]*models.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE phone LIKE '%' || $1 || '%' ORDER BY phone LIMIT $2`, fragment, limit)
}

func (r *UserRepo) ListByVerification(ctx context.Context, state string) ([]*models.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE verification = $1 ORDER BY updated_at`, state)
}

func (r *UserRepo) list(ctx context.Context, q string, args ...any) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate(err, "list users")
	}
	defer rows.Close()
	var list []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, translate(err, "scan user")
		}
		list = append(list, u)
	}
	return list, translate(rows.Err(), "list users")
}

func (r *UserRepo) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, role)
	if err != nil {
		return translate(err, "update role")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitVerification stores documents and moves the user to pending review.
// Approved workers cannot resubmit.
func (r *UserRepo) SubmitVerification(ctx context.Context, id uuid.UUID, docs []models.VerificationDocument) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET verification = 'pending', verification_docs = $2, rejection_reason = '', updated_at = now()
		WHERE id = $1 AND verification <> 'approved'
	`, id, docs)
	if err != nil {
		return translate(err, "submit verification")
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

// ApproveVerification assigns the public worker id. A collision on the unique
// index surfaces as ErrDuplicate so the caller can retry with another id.
func (r *UserRepo) ApproveVerification(ctx context.Context, id uuid.UUID, publicWorkerID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET verification = 'approved', public_worker_id = $2, rejection_reason = '', updated_at = now()
		WHERE id = $1 AND verification = 'pending'
	`, id, publicWorkerID)
	if err != nil {
		return translate(err, "approve verification")
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *UserRepo) RejectVerification(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET verification = 'rejected', rejection_reason = $2, updated_at = now()
		WHERE id = $1 AND verification = 'pending'
	`, id, reason)
	if err != nil {
		return translate(err, "reject verification")
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}
