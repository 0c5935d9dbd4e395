package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/workmandi/backend/internal/models"
)

// JobStore is the durable job aggregate store. Mutate and Delete hold the
// job's row lock for the duration of the callback.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, f models.JobFilter) ([]*models.Job, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*models.Job) error) (*models.Job, error)
	Delete(ctx context.Context, id uuid.UUID, check func(*models.Job) error) error
	HasActiveJobs(ctx context.Context, userID uuid.UUID) (bool, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SearchByPhone(ctx context.Context, fragment string, limit int) ([]*models.User, error)
	ListByVerification(ctx context.Context, state string) ([]*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	SubmitVerification(ctx context.Context, id uuid.UUID, docs []models.VerificationDocument) error
	ApproveVerification(ctx context.Context, id uuid.UUID, publicWorkerID string) error
	RejectVerification(ctx context.Context, id uuid.UUID, reason string) error
}

// WalletStore is the per-user append-only subledger.
type WalletStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, t *models.WalletTransaction) (applied bool, err error)
	Hold(ctx context.Context, t *models.WalletTransaction) error
	Capture(ctx context.Context, externalTxnID, utr string) (applied bool, err error)
	Release(ctx context.Context, externalTxnID, utr string) (applied bool, err error)
	Recapture(ctx context.Context, externalTxnID, utr string) (applied bool, err error)
	MarkInFlight(ctx context.Context, externalTxnID, utr string) error
}

type WithdrawalStore interface {
	Create(ctx context.Context, w *models.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	GetByTransactionID(ctx context.Context, txnID string) (*models.WithdrawalRequest, error)
	List(ctx context.Context, userID *uuid.UUID, status string) ([]*models.WithdrawalRequest, error)
	Update(ctx context.Context, w *models.WithdrawalRequest, from string) error
}

type CommissionStore interface {
	Create(ctx context.Context, c *models.CommissionEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CommissionEntry, error)
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.CommissionEntry, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.CommissionEntry, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.CommissionEntry, error)
}
