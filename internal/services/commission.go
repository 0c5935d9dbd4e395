package services

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository"
)

// CommissionService keeps the ledger of commission workers owe on cash jobs.
type CommissionService struct {
	Commissions CommissionStore
	Jobs        JobStore
	Log         *zap.Logger
	now         func() time.Time
}

func NewCommissionService(commissions CommissionStore, jobs JobStore, log *zap.Logger) *CommissionService {
	return &CommissionService{Commissions: commissions, Jobs: jobs, Log: logger.OrNop(log), now: time.Now}
}

// RecordForJob creates the commission entry for a cash-settled job. Calling
// it again for the same job returns the existing entry.
func (s *CommissionService) RecordForJob(ctx context.Context, j *models.Job) (*models.CommissionEntry, error) {
	if j.Payment == nil || j.Payment.Method != models.PaymentMethodCash {
		return nil, apperr.Precondition("not_cash_settled", "commission entries exist only for cash-settled jobs")
	}
	if j.AssignedWorker == nil {
		return nil, apperr.Precondition("invalid_transition", "job has no assigned worker")
	}
	c := &models.CommissionEntry{
		ID:         uuid.New(),
		WorkerID:   j.AssignedWorker.ID,
		JobID:      j.ID,
		JobTitle:   j.Title,
		ClientName: j.ClientName,
		Amount:     j.Payment.Commission,
		JobTotal:   j.Payment.Amount,
		Status:     models.CommissionPending,
	}
	err := s.Commissions.Create(ctx, c)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, gerr := s.Commissions.GetByJobID(ctx, j.ID)
		if gerr != nil {
			return nil, apperr.Internal(gerr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.Log.Info("commission recorded",
		zap.String("job_id", j.ID.String()),
		zap.String("worker_id", c.WorkerID.String()),
		zap.Stringer("amount", c.Amount))
	return c, nil
}

// AddEntry lets an admin record the commission of a cash job by hand.
func (s *CommissionService) AddEntry(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.CommissionEntry, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	return s.RecordForJob(ctx, j)
}

// Ledger lists a worker's commission entries with pending and paid totals.
// A zero workerID means the caller. Only admins can read other workers.
func (s *CommissionService) Ledger(ctx context.Context, id auth.Identity, workerID uuid.UUID) (*models.CommissionLedger, error) {
	if workerID == uuid.Nil {
		workerID = id.UserID
	}
	if workerID != id.UserID && id.Role != models.RoleAdmin {
		return nil, apperr.Forbidden("role_required", "only admins can view another worker's commissions")
	}
	list, err := s.Commissions.ListByWorker(ctx, workerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	l := &models.CommissionLedger{WorkerID: workerID, Entries: make([]models.CommissionEntry, 0, len(list))}
	for _, c := range list {
		l.Entries = append(l.Entries, *c)
		switch c.Status {
		case models.CommissionPending:
			l.PendingTotal += c.Amount
		case models.CommissionPaid:
			l.PaidTotal += c.Amount
		}
	}
	return l, nil
}

func (s *CommissionService) MarkPaid(ctx context.Context, id auth.Identity, entryID uuid.UUID) (*models.CommissionEntry, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	c, err := s.Commissions.MarkPaid(ctx, entryID, s.now())
	if errors.Is(err, repository.ErrStaleState) {
		return nil, apperr.Precondition("commission_already_paid", "commission entry is already paid")
	}
	if err != nil {
		return nil, storeErr(err, "commission_not_found", "commission entry")
	}
	s.Log.Info("commission paid", zap.String("commission_id", entryID.String()), zap.String("worker_id", c.WorkerID.String()))
	return c, nil
}

// ForJob returns the commission entry of a job to its client, its worker or an admin.
func (s *CommissionService) ForJob(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.CommissionEntry, error) {
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	if id.Role != models.RoleAdmin && j.ClientID != id.UserID && !j.IsAssignedTo(id.UserID) {
		return nil, apperr.Forbidden("not_job_owner", "job belongs to someone else")
	}
	c, err := s.Commissions.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, storeErr(err, "commission_not_found", "commission entry")
	}
	return c, nil
}
