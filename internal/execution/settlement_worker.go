package execution

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/logger"
)

const (
	settlementMaxAttempts = 20
	settlementTimeout     = 30 * time.Second
)

// SettlementRetryArgs re-runs settlement for a paid job whose wallet credit
// or commission entry failed to apply.
type SettlementRetryArgs struct {
	JobID uuid.UUID `json:"job_id"`
}

func (SettlementRetryArgs) Kind() string { return "settlement_retry" }

// InsertOpts dedupes retries per job while one is still queued.
func (SettlementRetryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: settlementMaxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStatePending,
				rivertype.JobStateRetryable,
				rivertype.JobStateRunning,
				rivertype.JobStateScheduled,
			},
		},
	}
}

// Resettler defines the contract the worker needs to reapply a settlement.
type Resettler interface {
	Resettle(ctx context.Context, jobID uuid.UUID) error
}

type SettlementRetryWorker struct {
	river.WorkerDefaults[SettlementRetryArgs]
	settlement Resettler
	log        *zap.Logger
}

func NewSettlementRetryWorker(s Resettler, log *zap.Logger) *SettlementRetryWorker {
	return &SettlementRetryWorker{settlement: s, log: logger.OrNop(log)}
}

func (w *SettlementRetryWorker) Timeout(*river.Job[SettlementRetryArgs]) time.Duration {
	return settlementTimeout
}

func (w *SettlementRetryWorker) Work(ctx context.Context, job *river.Job[SettlementRetryArgs]) error {
	err := w.settlement.Resettle(ctx, job.Args.JobID)
	if err == nil {
		return nil
	}
	w.log.Warn("settlement retry failed",
		zap.Bool("settlement_inconsistency", true),
		zap.String("job_id", job.Args.JobID.String()),
		zap.Int("attempt", job.Attempt),
		zap.Error(err))
	return errors.Wrapf(err, "resettle job %s", job.Args.JobID)
}

// Inserter is the part of *river.Client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// SettlementQueue enqueues settlement retries on River.
type SettlementQueue struct {
	client Inserter
	log    *zap.Logger
}

func NewSettlementQueue(client Inserter, log *zap.Logger) *SettlementQueue {
	return &SettlementQueue{client: client, log: logger.OrNop(log)}
}

func (q *SettlementQueue) EnqueueSettlementRetry(ctx context.Context, jobID uuid.UUID) error {
	res, err := q.client.Insert(ctx, SettlementRetryArgs{JobID: jobID}, nil)
	if err != nil {
		return errors.Wrap(err, "insert settlement retry")
	}
	if res != nil && res.UniqueSkippedAsDuplicate {
		q.log.Info("settlement retry already queued", zap.String("job_id", jobID.String()))
	}
	return nil
}
