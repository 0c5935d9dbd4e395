// Package memrepo is an in-memory implementation of the repository layer.
// It mirrors the conditional-update semantics of the Postgres repositories
// (row locks become one store-wide mutex) and is used by service and
// handler tests.
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository"
)

type Store struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	jobs        map[uuid.UUID]*models.Job
	txns        []*models.WalletTransaction
	withdrawals map[uuid.UUID]*models.WithdrawalRequest
	commissions map[uuid.UUID]*models.CommissionEntry

	creditErr     error
	commissionErr error
}

func New() *Store {
	return &Store{
		users:       make(map[uuid.UUID]*models.User),
		jobs:        make(map[uuid.UUID]*models.Job),
		withdrawals: make(map[uuid.UUID]*models.WithdrawalRequest),
		commissions: make(map[uuid.UUID]*models.CommissionEntry),
	}
}

func (s *Store) Jobs() *Jobs               { return &Jobs{s} }
func (s *Store) Users() *Users             { return &Users{s} }
func (s *Store) Wallets() *Wallets         { return &Wallets{s} }
func (s *Store) Withdrawals() *Withdrawals { return &Withdrawals{s} }
func (s *Store) Commissions() *Commissions { return &Commissions{s} }

// FailCredits makes every wallet credit return err until called with nil.
func (s *Store) FailCredits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creditErr = err
}

// FailCommissions makes every commission insert return err until called with nil.
func (s *Store) FailCommissions(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commissionErr = err
}

// AddUser seeds a user. Missing defaults are filled in.
func (s *Store) AddUser(u *models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.Verification == "" {
		cp.Verification = models.VerificationNone
	}
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.users[cp.ID] = &cp
	out := cp
	return &out
}

// SeedCredit puts a completed credit in the user's wallet, as settlement would.
func (s *Store) SeedCredit(userID uuid.UUID, amount models.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.txns = append(s.txns, &models.WalletTransaction{
		ID: uuid.New(), UserID: userID, Type: models.WalletTxnCredit, Amount: amount,
		Description: "seed", Status: models.WalletTxnCompleted, CreatedAt: now, UpdatedAt: now,
	})
	u := s.users[userID]
	u.WalletBalance += amount
	u.TotalEarnings += amount
}

// Jobs implements the job store.
type Jobs struct{ s *Store }

func (r *Jobs) Create(_ context.Context, j *models.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[j.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Offers == nil {
		j.Offers = []models.Offer{}
	}
	if j.Cooldowns == nil {
		j.Cooldowns = map[uuid.UUID]time.Time{}
	}
	r.s.jobs[j.ID] = j.Clone()
	return nil
}

func (r *Jobs) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return j.Clone(), nil
}

func (r *Jobs) List(_ context.Context, f models.JobFilter) ([]*models.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.Job
	for _, j := range r.s.jobs {
		if f.ClientID != nil && j.ClientID != *f.ClientID {
			continue
		}
		if f.WorkerID != nil && !j.IsAssignedTo(*f.WorkerID) {
			continue
		}
		if len(f.Statuses) > 0 && !contains(f.Statuses, j.Status) {
			continue
		}
		list = append(list, j.Clone())
	}
	sort.Slice(list, func(a, b int) bool { return list[a].CreatedAt.After(list[b].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(list) {
			return nil, nil
		}
		list = list[f.Offset:]
	}
	if f.Limit > 0 && len(list) > f.Limit {
		list = list[:f.Limit]
	}
	return list, nil
}

func (r *Jobs) Mutate(_ context.Context, id uuid.UUID, fn func(*models.Job) error) (*models.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	j := stored.Clone()
	if err := fn(j); err != nil {
		return nil, err
	}
	j.UpdatedAt = time.Now()
	r.s.jobs[id] = j.Clone()
	return j, nil
}

func (r *Jobs) Delete(_ context.Context, id uuid.UUID, check func(*models.Job) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := check(stored.Clone()); err != nil {
		return err
	}
	delete(r.s.jobs, id)
	return nil
}

func (r *Jobs) HasActiveJobs(_ context.Context, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	active := []string{models.JobStatusAssigned, models.JobStatusInProgress, models.JobStatusWorkDone, models.JobStatusCompleted}
	for _, j := range r.s.jobs {
		if (j.ClientID == userID || j.IsAssignedTo(userID)) && contains(active, j.Status) {
			return true, nil
		}
	}
	return false, nil
}

// Users implements the user store.
type Users struct{ s *Store }

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *Users) SearchByPhone(_ context.Context, fragment string, limit int) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.User
	for _, u := range r.s.users {
		if strings.Contains(u.Phone, fragment) {
			cp := *u
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Phone < list[b].Phone })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *Users) ListByVerification(_ context.Context, state string) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.User
	for _, u := range r.s.users {
		if u.Verification == state {
			cp := *u
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(a, b int) bool { return list[a].UpdatedAt.Before(list[b].UpdatedAt) })
	return list, nil
}

func (r *Users) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role, u.UpdatedAt = role, time.Now()
	return nil
}

func (r *Users) SubmitVerification(_ context.Context, id uuid.UUID, docs []models.VerificationDocument) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.Verification == models.VerificationApproved {
		return repository.ErrStaleState
	}
	u.Verification = models.VerificationPending
	u.VerificationDocs = append([]models.VerificationDocument(nil), docs...)
	u.RejectionReason = ""
	u.UpdatedAt = time.Now()
	return nil
}

func (r *Users) ApproveVerification(_ context.Context, id uuid.UUID, publicWorkerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.Verification != models.VerificationPending {
		return repository.ErrStaleState
	}
	for _, other := range r.s.users {
		if other.PublicWorkerID != nil && *other.PublicWorkerID == publicWorkerID {
			return repository.ErrDuplicate
		}
	}
	u.Verification = models.VerificationApproved
	u.PublicWorkerID = &publicWorkerID
	u.RejectionReason = ""
	u.UpdatedAt = time.Now()
	return nil
}

func (r *Users) RejectVerification(_ context.Context, id uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.Verification != models.VerificationPending {
		return repository.ErrStaleState
	}
	u.Verification = models.VerificationRejected
	u.RejectionReason = reason
	u.UpdatedAt = time.Now()
	return nil
}

// Wallets implements the wallet subledger.
type Wallets struct{ s *Store }

func (r *Wallets) Get(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	w := &models.Wallet{
		UserID:        userID,
		Balance:       u.WalletBalance,
		Held:          u.WalletHeld,
		Available:     u.WalletBalance - u.WalletHeld,
		TotalEarnings: u.TotalEarnings,
		WorkerID:      u.PublicWorkerID,
		Transactions:  []models.WalletTransaction{},
	}
	for i := len(r.s.txns) - 1; i >= 0; i-- {
		if t := r.s.txns[i]; t.UserID == userID {
			w.Transactions = append(w.Transactions, *t)
		}
	}
	return w, nil
}

func (r *Wallets) Credit(_ context.Context, t *models.WalletTransaction) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.creditErr != nil {
		return false, r.s.creditErr
	}
	if t.Amount <= 0 {
		return false, errors.Newf("credit amount must be positive, got %s", t.Amount)
	}
	u, ok := r.s.users[t.UserID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if t.JobID != nil {
		for _, existing := range r.s.txns {
			if existing.UserID == t.UserID && existing.Type == models.WalletTxnCredit &&
				existing.JobID != nil && *existing.JobID == *t.JobID {
				return false, nil
			}
		}
	}
	now := time.Now()
	cp := *t
	cp.Type, cp.Status, cp.CreatedAt, cp.UpdatedAt = models.WalletTxnCredit, models.WalletTxnCompleted, now, now
	r.s.txns = append(r.s.txns, &cp)
	*t = cp
	u.WalletBalance += t.Amount
	u.TotalEarnings += t.Amount
	return true, nil
}

func (r *Wallets) Hold(_ context.Context, t *models.WalletTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	amount := -t.Amount
	if amount <= 0 {
		return errors.Newf("withdrawal entry must be negative, got %s", t.Amount)
	}
	u, ok := r.s.users[t.UserID]
	if !ok || u.WalletBalance-u.WalletHeld < amount {
		return repository.ErrInsufficientFunds
	}
	u.WalletHeld += amount
	now := time.Now()
	cp := *t
	cp.Type, cp.Status, cp.CreatedAt, cp.UpdatedAt = models.WalletTxnWithdrawal, models.WalletTxnProcessing, now, now
	r.s.txns = append(r.s.txns, &cp)
	*t = cp
	return nil
}

func (r *Wallets) Capture(_ context.Context, externalTxnID, utr string) (bool, error) {
	return r.finish(externalTxnID, utr, models.WalletTxnCompleted)
}

func (r *Wallets) Release(_ context.Context, externalTxnID, utr string) (bool, error) {
	return r.finish(externalTxnID, utr, models.WalletTxnFailed)
}

func (r *Wallets) finish(externalTxnID, utr, status string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.findExternal(externalTxnID)
	if t == nil {
		return false, repository.ErrNotFound
	}
	if t.Status != models.WalletTxnPending && t.Status != models.WalletTxnProcessing {
		return false, nil
	}
	t.Status, t.UpdatedAt = status, time.Now()
	if utr != "" {
		t.UTR = &utr
	}
	u := r.s.users[t.UserID]
	u.WalletHeld += t.Amount
	if status == models.WalletTxnCompleted {
		u.WalletBalance += t.Amount
	}
	return true, nil
}

func (r *Wallets) Recapture(_ context.Context, externalTxnID, utr string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.findExternal(externalTxnID)
	if t == nil {
		return false, repository.ErrNotFound
	}
	if t.Type != models.WalletTxnWithdrawal || t.Status != models.WalletTxnFailed {
		return false, nil
	}
	correctionID := repository.RecaptureID(externalTxnID)
	if r.s.findExternal(correctionID) != nil {
		return false, nil
	}
	now := time.Now()
	entry := &models.WalletTransaction{
		ID:            uuid.New(),
		UserID:        t.UserID,
		Type:          models.WalletTxnDebit,
		Amount:        t.Amount,
		Description:   "Withdrawal paid after release: " + externalTxnID,
		ExternalTxnID: &correctionID,
		Status:        models.WalletTxnCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if utr != "" {
		entry.UTR = &utr
	}
	r.s.txns = append(r.s.txns, entry)
	r.s.users[t.UserID].WalletBalance += t.Amount
	return true, nil
}

func (r *Wallets) MarkInFlight(_ context.Context, externalTxnID, utr string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.findExternal(externalTxnID)
	if t == nil {
		return repository.ErrNotFound
	}
	if utr != "" {
		t.UTR = &utr
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (s *Store) findExternal(externalTxnID string) *models.WalletTransaction {
	for _, t := range s.txns {
		if t.ExternalTxnID != nil && *t.ExternalTxnID == externalTxnID {
			return t
		}
	}
	return nil
}

// Withdrawals implements the withdrawal request store.
type Withdrawals struct{ s *Store }

func (r *Withdrawals) Create(_ context.Context, w *models.WithdrawalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	w.CreatedAt, w.UpdatedAt = now, now
	cp := *w
	r.s.withdrawals[w.ID] = &cp
	return nil
}

func (r *Withdrawals) GetByID(_ context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.withdrawals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *Withdrawals) GetByTransactionID(_ context.Context, txnID string) (*models.WithdrawalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.withdrawals {
		if w.TransactionID != nil && *w.TransactionID == txnID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Withdrawals) List(_ context.Context, userID *uuid.UUID, status string) ([]*models.WithdrawalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.WithdrawalRequest
	for _, w := range r.s.withdrawals {
		if userID != nil && w.UserID != *userID {
			continue
		}
		if status != "" && w.Status != status {
			continue
		}
		cp := *w
		list = append(list, &cp)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].CreatedAt.After(list[b].CreatedAt) })
	return list, nil
}

func (r *Withdrawals) Update(_ context.Context, w *models.WithdrawalRequest, from string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.withdrawals[w.ID]
	if !ok || stored.Status != from {
		return repository.ErrStaleState
	}
	w.UpdatedAt = time.Now()
	cp := *w
	r.s.withdrawals[w.ID] = &cp
	return nil
}

// Commissions implements the commission ledger store.
type Commissions struct{ s *Store }

func (r *Commissions) Create(_ context.Context, c *models.CommissionEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.commissionErr != nil {
		return r.s.commissionErr
	}
	for _, existing := range r.s.commissions {
		if existing.JobID == c.JobID {
			return repository.ErrDuplicate
		}
	}
	c.CreatedAt = time.Now()
	cp := *c
	r.s.commissions[c.ID] = &cp
	return nil
}

func (r *Commissions) GetByID(_ context.Context, id uuid.UUID) (*models.CommissionEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.commissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *Commissions) GetByJobID(_ context.Context, jobID uuid.UUID) (*models.CommissionEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.commissions {
		if c.JobID == jobID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Commissions) ListByWorker(_ context.Context, workerID uuid.UUID) ([]*models.CommissionEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*models.CommissionEntry
	for _, c := range r.s.commissions {
		if c.WorkerID == workerID {
			cp := *c
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(a, b int) bool { return list[a].CreatedAt.After(list[b].CreatedAt) })
	return list, nil
}

func (r *Commissions) MarkPaid(_ context.Context, id uuid.UUID, paidAt time.Time) (*models.CommissionEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.commissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if c.Status != models.CommissionPending {
		return nil, repository.ErrStaleState
	}
	c.Status = models.CommissionPaid
	c.PaidAt = &paidAt
	cp := *c
	return &cp, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
