package services

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository"
)

const (
	workerIDAttempts    = 5
	phoneSearchLimit    = 20
	minPhoneFragment    = 3
	maxVerificationDocs = 10
)

// VerificationView is what a worker sees about their own verification.
type VerificationView struct {
	Status          string                        `json:"status"`
	Documents       []models.VerificationDocument `json:"documents"`
	RejectionReason string                        `json:"rejection_reason,omitempty"`
	WorkerID        *string                       `json:"worker_id,omitempty"`
}

// UserService covers the user-facing account operations and the admin
// verification queue.
type UserService struct {
	Users       UserStore
	Jobs        JobStore
	Log         *zap.Logger
	newWorkerID func() string
}

func NewUserService(users UserStore, jobs JobStore, log *zap.Logger) *UserService {
	return &UserService{Users: users, Jobs: jobs, Log: logger.OrNop(log), newWorkerID: randomWorkerID}
}

func (s *UserService) Me(ctx context.Context, id auth.Identity) (*models.User, error) {
	return s.get(ctx, id.UserID)
}

// SwitchRole moves a user between client and worker. Not allowed while a
// job the user takes part in is under way.
func (s *UserService) SwitchRole(ctx context.Context, id auth.Identity, role string) (*models.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != models.RoleClient && role != models.RoleWorker {
		return nil, apperr.Validation("invalid_role", "role must be client or worker")
	}
	if id.Role == models.RoleAdmin {
		return nil, apperr.Forbidden("role_required", "admin accounts cannot switch role")
	}
	if role == id.Role {
		return s.get(ctx, id.UserID)
	}
	active, err := s.Jobs.HasActiveJobs(ctx, id.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if active {
		return nil, apperr.Precondition("active_job", "finish your active jobs before switching role")
	}
	if err := s.Users.UpdateRole(ctx, id.UserID, role); err != nil {
		return nil, storeErr(err, "user_not_found", "user")
	}
	s.Log.Info("role switched", zap.String("user_id", id.UserID.String()), zap.String("from", id.Role), zap.String("to", role))
	return s.get(ctx, id.UserID)
}

func (s *UserService) SubmitVerification(ctx context.Context, id auth.Identity, docs []models.VerificationDocument) (*VerificationView, error) {
	if err := requireRole(id, models.RoleWorker); err != nil {
		return nil, err
	}
	if len(docs) == 0 || len(docs) > maxVerificationDocs {
		return nil, apperr.Validation("invalid_request", "between 1 and 10 documents are required")
	}
	for i := range docs {
		docs[i].Kind = strings.TrimSpace(docs[i].Kind)
		docs[i].Reference = strings.TrimSpace(docs[i].Reference)
		if docs[i].Kind == "" || docs[i].Reference == "" {
			return nil, apperr.Validation("invalid_request", "every document needs a kind and a reference")
		}
	}
	err := s.Users.SubmitVerification(ctx, id.UserID, docs)
	if errors.Is(err, repository.ErrStaleState) {
		return nil, apperr.Precondition("already_verified", "worker is already verified")
	}
	if err != nil {
		return nil, storeErr(err, "user_not_found", "user")
	}
	return s.VerificationStatus(ctx, id)
}

func (s *UserService) VerificationStatus(ctx context.Context, id auth.Identity) (*VerificationView, error) {
	u, err := s.get(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	v := &VerificationView{
		Status:          u.Verification,
		Documents:       u.VerificationDocs,
		RejectionReason: u.RejectionReason,
		WorkerID:        u.PublicWorkerID,
	}
	if v.Documents == nil {
		v.Documents = []models.VerificationDocument{}
	}
	return v, nil
}

func (s *UserService) PendingVerifications(ctx context.Context, id auth.Identity) ([]*models.User, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	list, err := s.Users.ListByVerification(ctx, models.VerificationPending)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if list == nil {
		list = []*models.User{}
	}
	return list, nil
}

// ApproveVerification approves a pending worker and assigns a fresh public
// worker id. The store enforces uniqueness; a collision is retried with a
// new id a bounded number of times.
func (s *UserService) ApproveVerification(ctx context.Context, id auth.Identity, userID uuid.UUID) (*models.User, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < workerIDAttempts; attempt++ {
		wid := s.newWorkerID()
		err := s.Users.ApproveVerification(ctx, userID, wid)
		switch {
		case err == nil:
			s.Log.Info("worker verified", zap.String("user_id", userID.String()), zap.String("worker_id", wid))
			return s.get(ctx, userID)
		case errors.Is(err, repository.ErrDuplicate):
			s.Log.Debug("worker id collision", zap.String("worker_id", wid), zap.Int("attempt", attempt+1))
		case errors.Is(err, repository.ErrStaleState):
			return nil, s.notPending(ctx, userID)
		default:
			return nil, apperr.Internal(err)
		}
	}
	return nil, apperr.Conflict("duplicate_worker_id", "could not allocate a unique worker id, try again")
}

func (s *UserService) RejectVerification(ctx context.Context, id auth.Identity, userID uuid.UUID, reason string) (*models.User, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("invalid_request", "a rejection reason is required")
	}
	err := s.Users.RejectVerification(ctx, userID, reason)
	if errors.Is(err, repository.ErrStaleState) {
		return nil, s.notPending(ctx, userID)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.get(ctx, userID)
}

// SearchByPhone finds users whose phone number contains the digits given.
func (s *UserService) SearchByPhone(ctx context.Context, id auth.Identity, fragment string) ([]*models.User, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	fragment = strings.TrimSpace(fragment)
	if len(fragment) < minPhoneFragment || strings.Trim(fragment, "+0123456789") != "" {
		return nil, apperr.Validation("invalid_request", "phone search needs at least 3 digits")
	}
	list, err := s.Users.SearchByPhone(ctx, fragment, phoneSearchLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if list == nil {
		list = []*models.User{}
	}
	return list, nil
}

func (s *UserService) get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user_not_found", "user")
	}
	return u, nil
}

func (s *UserService) notPending(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.get(ctx, userID); err != nil {
		return err
	}
	return apperr.Precondition("verification_not_pending", "verification is not pending")
}

// randomWorkerID returns a 5 to 9 digit number without a leading zero.
func randomWorkerID() string {
	digits := 5 + rand.IntN(5)
	lo := 1
	for i := 1; i < digits; i++ {
		lo *= 10
	}
	return strconv.Itoa(lo + rand.IntN(9*lo))
}
