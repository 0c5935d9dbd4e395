package services

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
)

// Settlement split, in percent of the job budget.
const (
	WorkerSharePercent = 90
	CommissionPercent  = 10
)

// Split returns the wallet credit and the platform commission for a payment.
// UPI money passes through the platform, so the worker is credited the
// budget minus commission. Cash was handed over in person: nothing is
// credited and the commission is owed by the worker.
func Split(budget models.Money, method string) (walletCredit, commission models.Money) {
	if method == models.PaymentMethodUPI {
		walletCredit = budget.Percent(WorkerSharePercent)
		return walletCredit, budget - walletCredit
	}
	return 0, budget.Percent(CommissionPercent)
}

// RetryEnqueuer schedules a background re-run of settlement for a job.
type RetryEnqueuer interface {
	EnqueueSettlementRetry(ctx context.Context, jobID uuid.UUID) error
}

// SettlementService moves money once a job is paid. It runs after the job's
// status change has committed; both of its effects are idempotent per job
// so a retry never pays twice.
type SettlementService struct {
	Jobs        JobStore
	Wallets     WalletStore
	Commissions *CommissionService
	Retry       RetryEnqueuer
	Log         *zap.Logger
}

func NewSettlementService(jobs JobStore, wallets WalletStore, commissions *CommissionService, log *zap.Logger) *SettlementService {
	return &SettlementService{Jobs: jobs, Wallets: wallets, Commissions: commissions, Log: logger.OrNop(log)}
}

// Settle applies the payment recorded on j. On failure the job is left
// completed, a retry is queued and an inconsistency error is returned.
func (s *SettlementService) Settle(ctx context.Context, j *models.Job) error {
	err := s.apply(ctx, j)
	if err == nil {
		return nil
	}
	s.Log.Error("settlement failed after job was completed",
		zap.Bool("settlement_inconsistency", true),
		zap.String("job_id", j.ID.String()),
		zap.Error(err))
	if s.Retry != nil {
		if qerr := s.Retry.EnqueueSettlementRetry(ctx, j.ID); qerr != nil {
			s.Log.Error("enqueue settlement retry",
				zap.Bool("settlement_inconsistency", true),
				zap.String("job_id", j.ID.String()),
				zap.Error(qerr))
		}
	}
	return apperr.Inconsistent(err, "settlement_pending", "payment was recorded but settlement is pending reconciliation")
}

// Resettle re-runs settlement for a completed job. Jobs that were never paid
// are skipped.
func (s *SettlementService) Resettle(ctx context.Context, jobID uuid.UUID) error {
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return errors.Wrapf(err, "load job %s", jobID)
	}
	if j.Payment == nil || (j.Status != models.JobStatusCompleted && j.Status != models.JobStatusFullyCompleted) {
		s.Log.Warn("settlement retry for unpaid job", zap.String("job_id", jobID.String()), zap.String("status", j.Status))
		return nil
	}
	if err := s.apply(ctx, j); err != nil {
		return err
	}
	s.Log.Info("settlement reconciled", zap.String("job_id", jobID.String()))
	return nil
}

func (s *SettlementService) apply(ctx context.Context, j *models.Job) error {
	if j.Payment == nil || j.AssignedWorker == nil {
		return errors.Newf("job %s has no payment or assigned worker", j.ID)
	}
	switch j.Payment.Method {
	case models.PaymentMethodUPI:
		if j.Payment.WalletCredit <= 0 {
			return nil
		}
		jobID := j.ID
		applied, err := s.Wallets.Credit(ctx, &models.WalletTransaction{
			ID:          uuid.New(),
			UserID:      j.AssignedWorker.ID,
			Type:        models.WalletTxnCredit,
			Amount:      j.Payment.WalletCredit,
			Description: "Payment for " + j.Title,
			JobID:       &jobID,
			Status:      models.WalletTxnCompleted,
		})
		if err != nil {
			return errors.Wrap(err, "credit worker wallet")
		}
		if !applied {
			s.Log.Info("wallet already credited for job", zap.String("job_id", j.ID.String()))
		}
		return nil
	case models.PaymentMethodCash:
		_, err := s.Commissions.RecordForJob(ctx, j)
		return errors.Wrap(err, "record commission")
	default:
		return errors.Newf("unknown payment method %q", j.Payment.Method)
	}
}
