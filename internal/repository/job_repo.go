package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workmandi/backend/internal/models"
)

// Statuses in which a job binds its client and worker to their current role.
var activeJobStatuses = []string{
	models.JobStatusAssigned,
	models.JobStatusInProgress,
	models.JobStatusWorkDone,
	models.JobStatusCompleted,
}

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `
	id, client_id, client_name, title, address, pincode, budget, category, gender, description, status,
	assigned_worker_id, assigned_worker_name, assigned_worker_photo, assigned_worker_public_id,
	payment_method, payment_amount, payment_wallet_credit, payment_commission, paid_at,
	assigned_at, completed_at, created_at, updated_at`

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, client_id, client_name, title, address, pincode, budget, category, gender, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, j.ID, j.ClientID, j.ClientName, j.Title, j.Address, j.Pincode, j.Budget, j.Category, j.Gender, j.Description, j.Status).
		Scan(&j.CreatedAt, &j.UpdatedAt)
	return translate(err, "insert job")
}

func (r *JobRepo) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get job")
	}
	if err := loadChildren(ctx, r.pool, []*models.Job{j}); err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JobRepo) List(ctx context.Context, f models.JobFilter) ([]*models.Job, error) {
	var (
		where []string
		args  []any
	)
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.WorkerID != nil {
		args = append(args, *f.WorkerID)
		where = append(where, fmt.Sprintf("assigned_worker_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, f.Statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate(err, "list jobs")
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, translate(err, "scan job")
		}
		list = append(list, j)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list jobs")
	}
	if err := loadChildren(ctx, r.pool, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Mutate locks the job row (SELECT ... FOR UPDATE), applies fn to the loaded
// aggregate and writes the result back in the same transaction. Concurrent
// callers on the same job are serialized; an error from fn rolls back.
func (r *JobRepo) Mutate(ctx context.Context, id uuid.UUID, fn func(*models.Job) error) (*models.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate(err, "lock job")
	}
	if err := loadChildren(ctx, tx, []*models.Job{j}); err != nil {
		return nil, err
	}
	if err := fn(j); err != nil {
		return nil, err
	}
	if err := saveJob(ctx, tx, j); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit job")
	}
	return j, nil
}

// Delete locks the job, lets check veto the deletion, then removes it.
func (r *JobRepo) Delete(ctx context.Context, id uuid.UUID, check func(*models.Job) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return translate(err, "lock job")
	}
	if err := loadChildren(ctx, tx, []*models.Job{j}); err != nil {
		return err
	}
	if err := check(j); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return translate(err, "delete job")
	}
	return errors.Wrap(tx.Commit(ctx), "commit delete")
}

// HasActiveJobs reports whether the user is client or assigned worker of a job in flight.
func (r *JobRepo) HasActiveJobs(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE (client_id = $1 OR assigned_worker_id = $1) AND status = ANY($2)
		)
	`, userID, activeJobStatuses).Scan(&exists)
	return exists, translate(err, "active jobs")
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j                                   models.Job
		workerID                            *uuid.UUID
		workerName, workerPhoto, workerPub  *string
		payMethod                           *string
		payAmount, payCredit, payCommission *models.Money
		paidAt                              *time.Time
	)
	err := row.Scan(
		&j.ID, &j.ClientID, &j.ClientName, &j.Title, &j.Address, &j.Pincode, &j.Budget, &j.Category, &j.Gender, &j.Description, &j.Status,
		&workerID, &workerName, &workerPhoto, &workerPub,
		&payMethod, &payAmount, &payCredit, &payCommission, &paidAt,
		&j.AssignedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if workerID != nil {
		j.AssignedWorker = &models.WorkerSnapshot{
			ID:       *workerID,
			Name:     deref(workerName),
			Photo:    deref(workerPhoto),
			WorkerID: deref(workerPub),
		}
	}
	if payMethod != nil {
		j.Payment = &models.PaymentDetails{Method: *payMethod}
		if payAmount != nil {
			j.Payment.Amount = *payAmount
		}
		if payCredit != nil {
			j.Payment.WalletCredit = *payCredit
		}
		if payCommission != nil {
			j.Payment.Commission = *payCommission
		}
		if paidAt != nil {
			j.Payment.PaidAt = *paidAt
		}
	}
	j.Offers = []models.Offer{}
	j.Cooldowns = map[uuid.UUID]time.Time{}
	return &j, nil
}

// loadChildren fills offers (in list order) and cooldowns for the given jobs.
func loadChildren(ctx context.Context, q querier, jobs []*models.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Job, len(jobs))
	ids := make([]uuid.UUID, 0, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
		ids = append(ids, j.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT job_id, id, worker_id, amount, message, status, worker_name, worker_photo, worker_public_id, created_at
		FROM job_offers WHERE job_id = ANY($1) ORDER BY job_id, position
	`, ids)
	if err != nil {
		return translate(err, "load offers")
	}
	for rows.Next() {
		var (
			jobID uuid.UUID
			o     models.Offer
		)
		if err := rows.Scan(&jobID, &o.ID, &o.WorkerID, &o.Amount, &o.Message, &o.Status,
			&o.Worker.Name, &o.Worker.Photo, &o.Worker.WorkerID, &o.CreatedAt); err != nil {
			rows.Close()
			return translate(err, "scan offer")
		}
		o.Worker.ID = o.WorkerID
		byID[jobID].Offers = append(byID[jobID].Offers, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return translate(err, "load offers")
	}

	rows, err = q.Query(ctx, `SELECT job_id, worker_id, last_offer_at FROM job_cooldowns WHERE job_id = ANY($1)`, ids)
	if err != nil {
		return translate(err, "load cooldowns")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			jobID, workerID uuid.UUID
			at              time.Time
		)
		if err := rows.Scan(&jobID, &workerID, &at); err != nil {
			return translate(err, "scan cooldown")
		}
		byID[jobID].Cooldowns[workerID] = at
	}
	return translate(rows.Err(), "load cooldowns")
}

// saveJob writes the aggregate back. Offers and cooldowns are replaced
// wholesale; the caller holds the row lock.
func saveJob(ctx context.Context, tx pgx.Tx, j *models.Job) error {
	var (
		workerID                            *uuid.UUID
		workerName, workerPhoto, workerPub  *string
		payMethod                           *string
		payAmount, payCredit, payCommission *models.Money
		paidAt                              *time.Time
	)
	if w := j.AssignedWorker; w != nil {
		workerID, workerName, workerPhoto, workerPub = &w.ID, &w.Name, &w.Photo, &w.WorkerID
	}
	if p := j.Payment; p != nil {
		payMethod, payAmount, payCredit, payCommission, paidAt = &p.Method, &p.Amount, &p.WalletCredit, &p.Commission, &p.PaidAt
	}

	err := tx.QueryRow(ctx, `
		UPDATE jobs SET
			title = $2, address = $3, pincode = $4, budget = $5, category = $6, gender = $7, description = $8, status = $9,
			assigned_worker_id = $10, assigned_worker_name = $11, assigned_worker_photo = $12, assigned_worker_public_id = $13,
			payment_method = $14, payment_amount = $15, payment_wallet_credit = $16, payment_commission = $17, paid_at = $18,
			assigned_at = $19, completed_at = $20, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, j.ID, j.Title, j.Address, j.Pincode, j.Budget, j.Category, j.Gender, j.Description, j.Status,
		workerID, workerName, workerPhoto, workerPub,
		payMethod, payAmount, payCredit, payCommission, paidAt,
		j.AssignedAt, j.CompletedAt).Scan(&j.UpdatedAt)
	if err != nil {
		return translate(err, "update job")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM job_offers WHERE job_id = $1`, j.ID); err != nil {
		return translate(err, "clear offers")
	}
	for i, o := range j.Offers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_offers (id, job_id, worker_id, amount, message, status, worker_name, worker_photo, worker_public_id, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, o.ID, j.ID, o.WorkerID, o.Amount, o.Message, o.Status, o.Worker.Name, o.Worker.Photo, o.Worker.WorkerID, i, o.CreatedAt); err != nil {
			return translate(err, "insert offer")
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM job_cooldowns WHERE job_id = $1`, j.ID); err != nil {
		return translate(err, "clear cooldowns")
	}
	for workerID, at := range j.Cooldowns {
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_cooldowns (job_id, worker_id, last_offer_at) VALUES ($1, $2, $3)
		`, j.ID, workerID, at); err != nil {
			return translate(err, "insert cooldown")
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
