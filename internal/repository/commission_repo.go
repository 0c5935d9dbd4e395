package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workmandi/backend/internal/models"
)

type CommissionRepo struct {
	pool *pgxpool.Pool
}

func NewCommissionRepo(pool *pgxpool.Pool) *CommissionRepo {
	return &CommissionRepo{pool: pool}
}

const commissionColumns = `id, worker_id, job_id, job_title, client_name, amount, job_total, status, created_at, paid_at`

func scanCommission(row pgx.Row) (*models.CommissionEntry, error) {
	var c models.CommissionEntry
	if err := row.Scan(&c.ID, &c.WorkerID, &c.JobID, &c.JobTitle, &c.ClientName, &c.Amount, &c.JobTotal, &c.Status, &c.CreatedAt, &c.PaidAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts the entry; a second entry for the same job yields ErrDuplicate.
func (r *CommissionRepo) Create(ctx context.Context, c *models.CommissionEntry) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO commission_entries (id, worker_id, job_id, job_title, client_name, amount, job_total, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, c.ID, c.WorkerID, c.JobID, c.JobTitle, c.ClientName, c.Amount, c.JobTotal, c.Status).Scan(&c.CreatedAt)
	return translate(err, "insert commission")
}

func (r *CommissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CommissionEntry, error) {
	c, err := scanCommission(r.pool.QueryRow(ctx, `SELECT `+commissionColumns+` FROM commission_entries WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get commission")
	}
	return c, nil
}

func (r *CommissionRepo) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.CommissionEntry, error) {
	c, err := scanCommission(r.pool.QueryRow(ctx, `SELECT `+commissionColumns+` FROM commission_entries WHERE job_id = $1`, jobID))
	if err != nil {
		return nil, translate(err, "get commission by job")
	}
	return c, nil
}

func (r *CommissionRepo) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.CommissionEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+commissionColumns+` FROM commission_entries WHERE worker_id = $1 ORDER BY created_at DESC
	`, workerID)
	if err != nil {
		return nil, translate(err, "list commissions")
	}
	defer rows.Close()
	var list []*models.CommissionEntry
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, translate(err, "scan commission")
		}
		list = append(list, c)
	}
	return list, translate(rows.Err(), "list commissions")
}

// MarkPaid moves a pending entry to paid. A paid entry yields ErrStaleState.
func (r *CommissionRepo) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.CommissionEntry, error) {
	c, err := scanCommission(r.pool.QueryRow(ctx, `
		UPDATE commission_entries SET status = 'paid', paid_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+commissionColumns, id, paidAt))
	if err == pgx.ErrNoRows {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, translate(err, "mark commission paid")
	}
	return c, nil
}
