package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workmandi/backend/internal/models"
)

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

const withdrawalColumns = `
	id, user_id, amount, destination, status, transaction_id, utr, failure_reason,
	created_at, approved_at, completed_at, updated_at`

func scanWithdrawal(row pgx.Row) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Destination, &w.Status, &w.TransactionID, &w.UTR, &w.FailureReason,
		&w.CreatedAt, &w.ApprovedAt, &w.CompletedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepo) Create(ctx context.Context, w *models.WithdrawalRequest) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (id, user_id, amount, destination, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, w.ID, w.UserID, w.Amount, w.Destination, w.Status).Scan(&w.CreatedAt, &w.UpdatedAt)
	return translate(err, "insert withdrawal")
}

func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get withdrawal")
	}
	return w, nil
}

func (r *WithdrawalRepo) GetByTransactionID(ctx context.Context, txnID string) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE transaction_id = $1`, txnID))
	if err != nil {
		return nil, translate(err, "get withdrawal by transaction")
	}
	return w, nil
}

// List returns requests newest first. A nil userID or empty status matches all.
func (r *WithdrawalRepo) List(ctx context.Context, userID *uuid.UUID, status string) ([]*models.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE ($1::uuid IS NULL OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`, userID, status)
	if err != nil {
		return nil, translate(err, "list withdrawals")
	}
	defer rows.Close()
	var list []*models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, translate(err, "scan withdrawal")
		}
		list = append(list, w)
	}
	return list, translate(rows.Err(), "list withdrawals")
}

// Update writes w only if the stored status still equals from.
func (r *WithdrawalRepo) Update(ctx context.Context, w *models.WithdrawalRequest, from string) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE withdrawal_requests SET
			status = $3, transaction_id = $4, utr = $5, failure_reason = $6,
			approved_at = $7, completed_at = $8, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`, w.ID, from, w.Status, w.TransactionID, w.UTR, w.FailureReason, w.ApprovedAt, w.CompletedAt).Scan(&w.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrStaleState
	}
	return translate(err, "update withdrawal")
}
