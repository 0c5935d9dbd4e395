package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workmandi/backend/internal/models"
)

// WalletRepo owns the wallet columns on users and the append-only
// wallet_transactions log. Every balance change happens in the same database
// transaction as the entry that explains it.
type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletTxnColumns = `id, user_id, type, amount, description, job_id, external_txn_id, utr, status, created_at, updated_at`

func (r *WalletRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w := models.Wallet{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT wallet_balance, wallet_held, total_earnings, public_worker_id FROM users WHERE id = $1
	`, userID).Scan(&w.Balance, &w.Held, &w.TotalEarnings, &w.WorkerID)
	if err != nil {
		return nil, translate(err, "get wallet")
	}
	w.Available = w.Balance - w.Held

	rows, err := r.pool.Query(ctx, `
		SELECT `+walletTxnColumns+` FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, translate(err, "list wallet transactions")
	}
	defer rows.Close()
	w.Transactions = []models.WalletTransaction{}
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Description, &t.JobID, &t.ExternalTxnID, &t.UTR, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, translate(err, "scan wallet transaction")
		}
		w.Transactions = append(w.Transactions, t)
	}
	return &w, translate(rows.Err(), "list wallet transactions")
}

// Credit appends a completed credit entry and raises balance and lifetime
// earnings by its amount. A job credits a user at most once: a repeat returns
// applied=false and changes nothing.
func (r *WalletRepo) Credit(ctx context.Context, t *models.WalletTransaction) (applied bool, err error) {
	if t.Amount <= 0 {
		return false, errors.Newf("credit amount must be positive, got %s", t.Amount)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, user_id, type, amount, description, job_id, status)
		VALUES ($1, $2, 'credit', $3, $4, $5, 'completed')
		ON CONFLICT (user_id, job_id, type) WHERE job_id IS NOT NULL DO NOTHING
		RETURNING created_at, updated_at
	`, t.ID, t.UserID, t.Amount, t.Description, t.JobID).Scan(&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate(err, "insert credit")
	}
	t.Type, t.Status = models.WalletTxnCredit, models.WalletTxnCompleted

	tag, err := tx.Exec(ctx, `
		UPDATE users SET wallet_balance = wallet_balance + $1, total_earnings = total_earnings + $1, updated_at = now()
		WHERE id = $2
	`, t.Amount, t.UserID)
	if err != nil {
		return false, translate(err, "apply credit")
	}
	if tag.RowsAffected() == 0 {
		return false, errors.Wrap(ErrNotFound, "credit user")
	}
	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit credit")
	}
	return true, nil
}

// Hold reserves -t.Amount of the available balance (balance - held) and
// appends the withdrawal entry in processing state. The balance itself only
// moves on Capture.
func (r *WalletRepo) Hold(ctx context.Context, t *models.WalletTransaction) error {
	amount := -t.Amount
	if amount <= 0 {
		return errors.Newf("withdrawal entry must be negative, got %s", t.Amount)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE users SET wallet_held = wallet_held + $1, updated_at = now()
		WHERE id = $2 AND wallet_balance - wallet_held >= $1
	`, amount, t.UserID)
	if err != nil {
		return translate(err, "place hold")
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, user_id, type, amount, description, external_txn_id, status)
		VALUES ($1, $2, 'withdrawal', $3, $4, $5, 'processing')
		RETURNING created_at, updated_at
	`, t.ID, t.UserID, t.Amount, t.Description, t.ExternalTxnID).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return translate(err, "insert withdrawal entry")
	}
	t.Type, t.Status = models.WalletTxnWithdrawal, models.WalletTxnProcessing
	return errors.Wrap(tx.Commit(ctx), "commit hold")
}

// Capture completes a held withdrawal: balance and hold both drop by its
// amount. applied=false means the entry was already terminal.
func (r *WalletRepo) Capture(ctx context.Context, externalTxnID, utr string) (applied bool, err error) {
	return r.finishHold(ctx, externalTxnID, utr, models.WalletTxnCompleted)
}

// Release fails a held withdrawal and returns the hold to the available balance.
func (r *WalletRepo) Release(ctx context.Context, externalTxnID, utr string) (applied bool, err error) {
	return r.finishHold(ctx, externalTxnID, utr, models.WalletTxnFailed)
}

func (r *WalletRepo) finishHold(ctx context.Context, externalTxnID, utr, status string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	var (
		userID uuid.UUID
		amount models.Money
	)
	err = tx.QueryRow(ctx, `
		UPDATE wallet_transactions SET status = $2, utr = COALESCE(NULLIF($3, ''), utr), updated_at = now()
		WHERE external_txn_id = $1 AND type = 'withdrawal' AND status IN ('pending', 'processing')
		RETURNING user_id, amount
	`, externalTxnID, status, utr).Scan(&userID, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE external_txn_id = $1)`, externalTxnID).Scan(&exists); err != nil {
			return false, translate(err, "find withdrawal entry")
		}
		if !exists {
			return false, errors.Wrapf(ErrNotFound, "withdrawal entry %s", externalTxnID)
		}
		return false, nil
	}
	if err != nil {
		return false, translate(err, "finish withdrawal entry")
	}

	// amount is negative: the hold shrinks on both paths, the balance only on capture.
	balanceDelta := models.Money(0)
	if status == models.WalletTxnCompleted {
		balanceDelta = amount
	}
	if _, err := tx.Exec(ctx, `
		UPDATE users SET wallet_balance = wallet_balance + $1, wallet_held = wallet_held + $2, updated_at = now()
		WHERE id = $3
	`, balanceDelta, amount, userID); err != nil {
		return false, translate(err, "release hold")
	}
	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit")
	}
	return true, nil
}

// RecaptureID is the external id of the correction entry booked against a
// released withdrawal that the rail later reported paid.
func RecaptureID(externalTxnID string) string {
	return externalTxnID + ":recapture"
}

// Recapture handles a SUCCESS for a withdrawal whose hold was already
// released. The withdrawal entry stays failed; a completed debit of the same
// amount is appended and the balance drops by it. The debit is keyed by
// RecaptureID, so a replay returns applied=false. The balance may end below
// the outstanding holds or below zero: the money has left either way.
func (r *WalletRepo) Recapture(ctx context.Context, externalTxnID, utr string) (applied bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	var (
		userID uuid.UUID
		amount models.Money
		status string
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, amount, status FROM wallet_transactions
		WHERE external_txn_id = $1 AND type = 'withdrawal'
		FOR UPDATE
	`, externalTxnID).Scan(&userID, &amount, &status)
	if err != nil {
		return false, translate(err, "find withdrawal entry")
	}
	if status != models.WalletTxnFailed {
		return false, nil
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO wallet_transactions (id, user_id, type, amount, description, external_txn_id, utr, status)
		VALUES ($1, $2, 'debit', $3, $4, $5, NULLIF($6, ''), 'completed')
		ON CONFLICT (external_txn_id) DO NOTHING
	`, uuid.New(), userID, amount, "Withdrawal paid after release: "+externalTxnID, RecaptureID(externalTxnID), utr)
	if err != nil {
		return false, translate(err, "insert recapture entry")
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = now() WHERE id = $2
	`, amount, userID); err != nil {
		return false, translate(err, "apply recapture")
	}
	if err := tx.Commit(ctx); err != nil {
		return false, errors.Wrap(err, "commit recapture")
	}
	return true, nil
}

// MarkInFlight records a non-terminal rail update (utr) on a processing entry.
func (r *WalletRepo) MarkInFlight(ctx context.Context, externalTxnID, utr string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE wallet_transactions SET utr = COALESCE(NULLIF($2, ''), utr), updated_at = now()
		WHERE external_txn_id = $1
	`, externalTxnID, utr)
	if err != nil {
		return translate(err, "touch withdrawal entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "withdrawal entry %s", externalTxnID)
	}
	return nil
}
