package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
)

var pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// Gender preferences a client can state for a job.
const (
	GenderAny    = "any"
	GenderMale   = "male"
	GenderFemale = "female"
)

var knownStatuses = map[string]bool{
	models.JobStatusOpen:           true,
	models.JobStatusAssigned:       true,
	models.JobStatusInProgress:     true,
	models.JobStatusWorkDone:       true,
	models.JobStatusCompleted:      true,
	models.JobStatusFullyCompleted: true,
	models.JobStatusCancelled:      true,
}

// CreateJobInput is the client-supplied part of a new job.
type CreateJobInput struct {
	Title       string       `json:"title"`
	Address     string       `json:"address"`
	Pincode     string       `json:"pincode"`
	Budget      models.Money `json:"budget"`
	Category    string       `json:"category"`
	Gender      string       `json:"gender"`
	Description string       `json:"description"`
}

// UpdateJobInput carries the fields to change. Nil fields are left alone.
type UpdateJobInput struct {
	Title       *string       `json:"title"`
	Address     *string       `json:"address"`
	Pincode     *string       `json:"pincode"`
	Budget      *models.Money `json:"budget"`
	Category    *string       `json:"category"`
	Gender      *string       `json:"gender"`
	Description *string       `json:"description"`
}

// ListJobsParams selects which jobs a caller sees. Owned and Assigned scope
// the list to the caller; without either, non-admins browse open jobs.
type ListJobsParams struct {
	Owned    bool
	Assigned bool
	Statuses []string
	Limit    int
	Offset   int
}

// JobService runs the job lifecycle: posting, editing and every status
// transition except the offer protocol.
type JobService struct {
	Jobs       JobStore
	Settlement *SettlementService
	Log        *zap.Logger
	now        func() time.Time
}

func NewJobService(jobs JobStore, settlement *SettlementService, log *zap.Logger) *JobService {
	return &JobService{Jobs: jobs, Settlement: settlement, Log: logger.OrNop(log), now: time.Now}
}

func (s *JobService) Create(ctx context.Context, id auth.Identity, in CreateJobInput) (*models.Job, error) {
	if err := requireRole(id, models.RoleClient); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Address = strings.TrimSpace(in.Address)
	in.Pincode = strings.TrimSpace(in.Pincode)
	in.Category = strings.TrimSpace(in.Category)
	in.Gender = strings.ToLower(strings.TrimSpace(in.Gender))
	if in.Gender == "" {
		in.Gender = GenderAny
	}
	if err := validateJobFields(in.Title, in.Address, in.Pincode, in.Category, in.Gender, in.Budget); err != nil {
		return nil, err
	}

	j := &models.Job{
		ID:          uuid.New(),
		ClientID:    id.UserID,
		ClientName:  id.Name,
		Title:       in.Title,
		Address:     in.Address,
		Pincode:     in.Pincode,
		Budget:      in.Budget,
		Category:    in.Category,
		Gender:      in.Gender,
		Description: strings.TrimSpace(in.Description),
		Status:      models.JobStatusOpen,
		Offers:      []models.Offer{},
		Cooldowns:   map[uuid.UUID]time.Time{},
	}
	if err := s.Jobs.Create(ctx, j); err != nil {
		return nil, apperr.Internal(err)
	}
	s.Log.Info("job created", zap.String("job_id", j.ID.String()), zap.String("client_id", id.UserID.String()))
	return j, nil
}

func validateJobFields(title, address, pincode, category, gender string, budget models.Money) error {
	switch {
	case title == "":
		return apperr.Validation("invalid_request", "title is required")
	case address == "":
		return apperr.Validation("invalid_request", "address is required")
	case !pincodePattern.MatchString(pincode):
		return apperr.Validation("invalid_pincode", "pincode must be 6 digits")
	case category == "":
		return apperr.Validation("invalid_request", "category is required")
	case gender != GenderAny && gender != GenderMale && gender != GenderFemale:
		return apperr.Validation("invalid_request", "gender must be any, male or female")
	case budget <= 0:
		return apperr.Validation("invalid_amount", "budget must be greater than zero")
	}
	return nil
}

func (s *JobService) Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	j, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	return j, nil
}

func (s *JobService) List(ctx context.Context, id auth.Identity, p ListJobsParams) ([]*models.Job, error) {
	for _, st := range p.Statuses {
		if !knownStatuses[st] {
			return nil, apperr.Validation("invalid_request", "unknown status "+st)
		}
	}
	f := models.JobFilter{Statuses: p.Statuses, Limit: p.Limit, Offset: p.Offset}
	switch {
	case p.Owned:
		f.ClientID = &id.UserID
	case p.Assigned:
		f.WorkerID = &id.UserID
	case id.Role == models.RoleAdmin:
	default:
		for _, st := range p.Statuses {
			if st != models.JobStatusOpen {
				return nil, apperr.Forbidden("not_job_owner", "only open jobs can be browsed")
			}
		}
		f.Statuses = []string{models.JobStatusOpen}
	}
	list, err := s.Jobs.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if list == nil {
		list = []*models.Job{}
	}
	return list, nil
}

// Update edits an open job that no worker has committed to.
func (s *JobService) Update(ctx context.Context, id auth.Identity, jobID uuid.UUID, in UpdateJobInput) (*models.Job, error) {
	j, err := s.Jobs.Mutate(ctx, jobID, func(j *models.Job) error {
		if err := checkOwner(j, id); err != nil {
			return err
		}
		if err := checkEditable(j); err != nil {
			return err
		}
		next := *j
		if in.Title != nil {
			next.Title = strings.TrimSpace(*in.Title)
		}
		if in.Address != nil {
			next.Address = strings.TrimSpace(*in.Address)
		}
		if in.Pincode != nil {
			next.Pincode = strings.TrimSpace(*in.Pincode)
		}
		if in.Budget != nil {
			next.Budget = *in.Budget
		}
		if in.Category != nil {
			next.Category = strings.TrimSpace(*in.Category)
		}
		if in.Gender != nil {
			next.Gender = strings.ToLower(strings.TrimSpace(*in.Gender))
		}
		if in.Description != nil {
			next.Description = strings.TrimSpace(*in.Description)
		}
		if err := validateJobFields(next.Title, next.Address, next.Pincode, next.Category, next.Gender, next.Budget); err != nil {
			return err
		}
		*j = next
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	return j, nil
}

func (s *JobService) Delete(ctx context.Context, id auth.Identity, jobID uuid.UUID) error {
	err := s.Jobs.Delete(ctx, jobID, func(j *models.Job) error {
		if err := checkOwner(j, id); err != nil {
			return err
		}
		return checkEditable(j)
	})
	if err != nil {
		return storeErr(err, "job_not_found", "job")
	}
	s.Log.Info("job deleted", zap.String("job_id", jobID.String()))
	return nil
}

// Cancel closes an open job for good. Pending offers are rejected.
func (s *JobService) Cancel(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.Job, error) {
	return s.mutate(ctx, jobID, func(j *models.Job) error {
		if err := checkOwner(j, id); err != nil {
			return err
		}
		if err := checkEditable(j); err != nil {
			return err
		}
		if err := advance(j, EventCancel); err != nil {
			return err
		}
		rejectPending(j, -1)
		return nil
	})
}

func (s *JobService) Start(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.Job, error) {
	return s.workerStep(ctx, id, jobID, EventStart)
}

func (s *JobService) MarkDone(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.Job, error) {
	return s.workerStep(ctx, id, jobID, EventMarkDone)
}

func (s *JobService) MarkFullyCompleted(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.Job, error) {
	return s.workerStep(ctx, id, jobID, EventFullyComplete)
}

func (s *JobService) workerStep(ctx context.Context, id auth.Identity, jobID uuid.UUID, ev Event) (*models.Job, error) {
	return s.mutate(ctx, jobID, func(j *models.Job) error {
		if j.AssignedWorker != nil && !j.IsAssignedTo(id.UserID) {
			return apperr.Forbidden("not_assigned_worker", "job is assigned to another worker")
		}
		return advance(j, ev)
	})
}

// Pay records the client's payment and settles it. The status change to
// completed commits first; settlement runs after and its failure is
// reported, not rolled back.
func (s *JobService) Pay(ctx context.Context, id auth.Identity, jobID uuid.UUID, method string) (*models.Job, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method != models.PaymentMethodCash && method != models.PaymentMethodUPI {
		return nil, apperr.Validation("invalid_payment_method", "payment method must be cash or upi")
	}
	j, err := s.mutate(ctx, jobID, func(j *models.Job) error {
		if err := checkOwner(j, id); err != nil {
			return err
		}
		if err := advance(j, EventPay); err != nil {
			return err
		}
		now := s.now()
		credit, commission := Split(j.Budget, method)
		j.Payment = &models.PaymentDetails{
			Method:       method,
			Amount:       j.Budget,
			WalletCredit: credit,
			Commission:   commission,
			PaidAt:       now,
		}
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("job paid",
		zap.String("job_id", j.ID.String()),
		zap.String("method", method),
		zap.Stringer("amount", j.Budget))
	if err := s.Settlement.Settle(ctx, j); err != nil {
		return j, err
	}
	return j, nil
}

func (s *JobService) mutate(ctx context.Context, jobID uuid.UUID, fn func(*models.Job) error) (*models.Job, error) {
	j, err := s.Jobs.Mutate(ctx, jobID, fn)
	if err != nil {
		return nil, storeErr(err, "job_not_found", "job")
	}
	return j, nil
}

func checkOwner(j *models.Job, id auth.Identity) error {
	if j.ClientID != id.UserID {
		return apperr.Forbidden("not_job_owner", "job belongs to another client")
	}
	return nil
}

// rejectPending rejects every pending offer except the one at keep.
func rejectPending(j *models.Job, keep int) {
	for i := range j.Offers {
		if i != keep && j.Offers[i].Status == models.OfferStatusPending {
			j.Offers[i].Status = models.OfferStatusRejected
		}
	}
}
