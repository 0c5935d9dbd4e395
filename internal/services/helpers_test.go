package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository/memrepo"
)

// ---------------------------------------------------------------------------
// Fakes for the collaborators that sit outside the store.
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRail struct {
	mu    sync.Mutex
	calls []PayoutInstruction
	err   error
}

func (r *fakeRail) Initiate(_ context.Context, in PayoutInstruction) (*PayoutAck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, in)
	if r.err != nil {
		return nil, r.err
	}
	return &PayoutAck{TransactionID: in.TransactionID, Status: PayoutStatusPending}, nil
}

func (r *fakeRail) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeRetry struct {
	mu   sync.Mutex
	jobs []uuid.UUID
}

func (q *fakeRetry) EnqueueSettlementRetry(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, jobID)
	return nil
}

// ---------------------------------------------------------------------------
// Fixture wiring every service over one in-memory store.
// ---------------------------------------------------------------------------

type fixture struct {
	store       *memrepo.Store
	clock       *fakeClock
	rail        *fakeRail
	retry       *fakeRetry
	jobs        *JobService
	offers      *OfferService
	settlement  *SettlementService
	commissions *CommissionService
	payouts     *PayoutService
	users       *UserService
	wallets     *WalletService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memrepo.New()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	f := &fixture{store: store, clock: clock, rail: &fakeRail{}, retry: &fakeRetry{}}

	f.commissions = NewCommissionService(store.Commissions(), store.Jobs(), nil)
	f.commissions.now = clock.Now
	f.settlement = NewSettlementService(store.Jobs(), store.Wallets(), f.commissions, nil)
	f.settlement.Retry = f.retry
	f.jobs = NewJobService(store.Jobs(), f.settlement, nil)
	f.jobs.now = clock.Now
	f.offers = NewOfferService(store.Jobs(), store.Users(), DefaultOfferCooldown, nil)
	f.offers.now = clock.Now
	f.payouts = NewPayoutService(store.Withdrawals(), store.Wallets(), f.rail, nil)
	f.payouts.now = clock.Now
	f.users = NewUserService(store.Users(), store.Jobs(), nil)
	f.wallets = NewWalletService(store.Wallets())
	return f
}

func identityOf(u *models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Name: u.Name, Role: u.Role}
}

func (f *fixture) client(name string) auth.Identity {
	return identityOf(f.store.AddUser(&models.User{Name: name, Phone: "98" + uuid.NewString()[:8], Role: models.RoleClient}))
}

func (f *fixture) worker(name string) auth.Identity {
	wid := uuid.NewString()[:6]
	return identityOf(f.store.AddUser(&models.User{
		Name:           name,
		Role:           models.RoleWorker,
		Verification:   models.VerificationApproved,
		PublicWorkerID: &wid,
	}))
}

func (f *fixture) admin() auth.Identity {
	return identityOf(f.store.AddUser(&models.User{Name: "admin", Role: models.RoleAdmin}))
}

func rupees(n int64) models.Money { return models.Money(n * 100) }

func (f *fixture) openJob(t *testing.T, client auth.Identity, budget models.Money) *models.Job {
	t.Helper()
	j, err := f.jobs.Create(context.Background(), client, CreateJobInput{
		Title:    "Fix kitchen tap",
		Address:  "12 MG Road",
		Pincode:  "560001",
		Budget:   budget,
		Category: "plumbing",
	})
	require.NoError(t, err)
	return j
}

// assignedJob returns a job the worker's offer was accepted on.
func (f *fixture) assignedJob(t *testing.T, client, worker auth.Identity, budget models.Money) *models.Job {
	t.Helper()
	ctx := context.Background()
	j := f.openJob(t, client, budget)
	_, err := f.offers.Submit(ctx, worker, j.ID, SubmitOfferInput{Amount: budget})
	require.NoError(t, err)
	j, err = f.offers.Accept(ctx, client, j.ID, worker.UserID)
	require.NoError(t, err)
	return j
}

func (f *fixture) workDoneJob(t *testing.T, client, worker auth.Identity, budget models.Money) *models.Job {
	t.Helper()
	j := f.assignedJob(t, client, worker, budget)
	j, err := f.jobs.MarkDone(context.Background(), worker, j.ID)
	require.NoError(t, err)
	return j
}

func requireCode(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	e := apperr.From(err)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	require.Equal(t, code, e.Code, "error: %v", err)
}
