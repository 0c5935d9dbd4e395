package services

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository"
)

// DefaultOfferCooldown is the minimum gap between two offers by one worker on one job.
const DefaultOfferCooldown = 5 * time.Minute

const maxOfferMessage = 500

type SubmitOfferInput struct {
	Amount  models.Money `json:"amount"`
	Message string       `json:"message"`
}

// OfferService implements offer negotiation. Every mutation runs inside the
// job store's per-job lock, so two accepts on one job serialize and the
// second sees the job already assigned.
type OfferService struct {
	Jobs     JobStore
	Users    UserStore
	Cooldown time.Duration
	Log      *zap.Logger
	now      func() time.Time
}

func NewOfferService(jobs JobStore, users UserStore, cooldown time.Duration, log *zap.Logger) *OfferService {
	if cooldown <= 0 {
		cooldown = DefaultOfferCooldown
	}
	return &OfferService{Jobs: jobs, Users: users, Cooldown: cooldown, Log: logger.OrNop(log), now: time.Now}
}

// Submit places the worker's offer at the head of the job's list, replacing
// any earlier offer by the same worker.
func (s *OfferService) Submit(ctx context.Context, id auth.Identity, jobID uuid.UUID, in SubmitOfferInput) (*models.Offer, error) {
	if in.Amount <= 0 {
		return nil, apperr.Validation("invalid_amount", "offer amount must be greater than zero")
	}
	if utf8.RuneCountInString(in.Message) > maxOfferMessage {
		return nil, apperr.Validation("invalid_request", "offer message is too long")
	}
	worker, err := s.verifiedWorker(ctx, id)
	if err != nil {
		return nil, err
	}

	var offer models.Offer
	_, err = s.Jobs.Mutate(ctx, jobID, func(j *models.Job) error {
		if j.ClientID == id.UserID {
			return apperr.Forbidden("own_job", "cannot make an offer on your own job")
		}
		if j.Status != models.JobStatusOpen {
			return apperr.Precondition("job_not_open", "job is no longer accepting offers")
		}
		now := s.now()
		if wait := s.remaining(j, id.UserID, now); wait > 0 {
			return apperr.RateLimited("offer_cooldown", "wait before making another offer on this job", wait)
		}
		if i := j.OfferBy(id.UserID); i >= 0 {
			j.Offers = append(j.Offers[:i], j.Offers[i+1:]...)
		}
		offer = models.Offer{
			ID:        uuid.New(),
			WorkerID:  id.UserID,
			Amount:    in.Amount,
			Message:   in.Message,
			Status:    models.OfferStatusPending,
			Worker:    worker.Snapshot(),
			CreatedAt: now,
		}
		j.Offers = append([]models.Offer{offer}, j.Offers...)
		if j.Cooldowns == nil {
			j.Cooldowns = map[uuid.UUID]time.Time{}
		}
		j.Cooldowns[id.UserID] = now
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	s.Log.Info("offer submitted",
		zap.String("job_id", jobID.String()),
		zap.String("worker_id", id.UserID.String()),
		zap.Stringer("amount", in.Amount))
	return &offer, nil
}

// Accept assigns the job to workerID. The chosen offer becomes accepted,
// every other offer is rejected and the worker's profile is frozen onto
// the job, all in one write.
func (s *OfferService) Accept(ctx context.Context, id auth.Identity, jobID, workerID uuid.UUID) (*models.Job, error) {
	profile, err := s.Users.GetByID(ctx, workerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err)
	}
	j, err := s.Jobs.Mutate(ctx, jobID, func(j *models.Job) error {
		if err := checkOwner(j, id); err != nil {
			return err
		}
		if j.Status != models.JobStatusOpen {
			return apperr.Precondition("invalid_transition", "offers can only be accepted on an open job")
		}
		i := j.OfferBy(workerID)
		if i < 0 {
			return apperr.NotFound("offer_not_found", "no offer from this worker")
		}
		if j.Offers[i].Status != models.OfferStatusPending {
			return apperr.Precondition("offer_not_pending", "offer is no longer pending")
		}
		if err := advance(j, EventAcceptOffer); err != nil {
			return err
		}
		for k := range j.Offers {
			if k == i {
				j.Offers[k].Status = models.OfferStatusAccepted
			} else {
				j.Offers[k].Status = models.OfferStatusRejected
			}
		}
		snap := j.Offers[i].Worker
		if profile != nil {
			snap = profile.Snapshot()
		}
		now := s.now()
		j.AssignedWorker = &snap
		j.AssignedAt = &now
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	s.Log.Info("offer accepted", zap.String("job_id", jobID.String()), zap.String("worker_id", workerID.String()))
	return j, nil
}

// Reject turns down one pending offer. The job stays open.
func (s *OfferService) Reject(ctx context.Context, id auth.Identity, jobID, workerID uuid.UUID) (*models.Job, error) {
	j, err := s.Jobs.Mutate(ctx, jobID, func(j *models.Job) error {
		if err := checkOwner(j, id); err != nil {
			return err
		}
		if j.Status != models.JobStatusOpen {
			return apperr.Precondition("invalid_transition", "offers can only be rejected on an open job")
		}
		i := j.OfferBy(workerID)
		if i < 0 {
			return apperr.NotFound("offer_not_found", "no offer from this worker")
		}
		if j.Offers[i].Status != models.OfferStatusPending {
			return apperr.Precondition("offer_not_pending", "offer is no longer pending")
		}
		j.Offers[i].Status = models.OfferStatusRejected
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	return j, nil
}

// Pickup assigns an open job to the calling worker without an offer.
func (s *OfferService) Pickup(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.Job, error) {
	worker, err := s.verifiedWorker(ctx, id)
	if err != nil {
		return nil, err
	}
	j, err := s.Jobs.Mutate(ctx, jobID, func(j *models.Job) error {
		if j.ClientID == id.UserID {
			return apperr.Forbidden("own_job", "cannot pick up your own job")
		}
		if j.HasAcceptedOffer() {
			return apperr.Precondition("job_locked", "job already has an accepted offer")
		}
		if err := advance(j, EventPickup); err != nil {
			return err
		}
		rejectPending(j, -1)
		snap := worker.Snapshot()
		now := s.now()
		j.AssignedWorker = &snap
		j.AssignedAt = &now
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	s.Log.Info("job picked up", zap.String("job_id", jobID.String()), zap.String("worker_id", id.UserID.String()))
	return j, nil
}

// CooldownRemaining reports how long the caller must wait before offering
// on the job again. Zero means an offer can be made now.
func (s *OfferService) CooldownRemaining(ctx context.Context, id auth.Identity, jobID uuid.UUID) (time.Duration, error) {
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return 0, storeErr(err, "job_not_found", "job")
	}
	return s.remaining(j, id.UserID, s.now()), nil
}

func (s *OfferService) remaining(j *models.Job, workerID uuid.UUID, now time.Time) time.Duration {
	last, ok := j.Cooldowns[workerID]
	if !ok {
		return 0
	}
	if wait := last.Add(s.Cooldown).Sub(now); wait > 0 {
		return wait
	}
	return 0
}

func (s *OfferService) verifiedWorker(ctx context.Context, id auth.Identity) (*models.User, error) {
	u, err := s.Users.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, storeErr(err, "user_not_found", "user")
	}
	if u.Role != models.RoleWorker {
		return nil, apperr.Forbidden("role_required", "this action requires role worker")
	}
	if !u.IsVerifiedWorker() {
		return nil, apperr.Forbidden("worker_not_verified", "worker verification is not approved")
	}
	return u, nil
}
