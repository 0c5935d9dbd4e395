//go:build integration

package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmandi/backend/db/migrations"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository"
)

// testPool connects to WORKMANDI_TEST_DATABASE_URL and migrates it. Tests
// create their own users and jobs, so they can share one database.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("WORKMANDI_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WORKMANDI_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, migrations.Run(ctx, pool, nil))
	return pool
}

func createUser(t *testing.T, pool *pgxpool.Pool, role string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.New(), Name: "u-" + role, Role: role, Verification: models.VerificationNone}
	require.NoError(t, repository.NewUserRepo(pool).Create(context.Background(), u))
	return u
}

func TestJobRepo_MutateSerializesConcurrentAccepts(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	jobs := repository.NewJobRepo(pool)
	client := createUser(t, pool, models.RoleClient)

	job := &models.Job{
		ID: uuid.New(), ClientID: client.ID, Title: "Fix tap", Address: "12 MG Road",
		Pincode: "560001", Budget: 50000, Category: "plumbing", Gender: "any", Status: models.JobStatusOpen,
	}
	require.NoError(t, jobs.Create(ctx, job))

	errStale := errors.New("job already assigned")
	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := jobs.Mutate(ctx, job.ID, func(j *models.Job) error {
				if j.Status != models.JobStatusOpen {
					return errStale
				}
				j.Status = models.JobStatusAssigned
				return nil
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, errStale)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)

	got, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAssigned, got.Status)

	_, err = jobs.Mutate(ctx, uuid.New(), func(*models.Job) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWalletRepo_CreditIsIdempotentPerJob(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	wallets := repository.NewWalletRepo(pool)
	client := createUser(t, pool, models.RoleClient)
	worker := createUser(t, pool, models.RoleWorker)
	job := &models.Job{
		ID: uuid.New(), ClientID: client.ID, Title: "Paint", Address: "4 Park Street",
		Pincode: "700016", Budget: 100000, Category: "painting", Gender: "any", Status: models.JobStatusCompleted,
	}
	require.NoError(t, repository.NewJobRepo(pool).Create(ctx, job))

	credit := func() (bool, error) {
		return wallets.Credit(ctx, &models.WalletTransaction{
			ID: uuid.New(), UserID: worker.ID, Amount: 90000, Description: "job payment", JobID: &job.ID,
		})
	}
	applied, err := credit()
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = credit()
	require.NoError(t, err)
	assert.False(t, applied)

	w, err := wallets.Get(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(90000), w.Balance)
	assert.Equal(t, models.Money(90000), w.TotalEarnings)
	assert.Len(t, w.Transactions, 1)
}

func TestWalletRepo_HoldCaptureRelease(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	wallets := repository.NewWalletRepo(pool)
	client := createUser(t, pool, models.RoleClient)
	worker := createUser(t, pool, models.RoleWorker)
	job := &models.Job{
		ID: uuid.New(), ClientID: client.ID, Title: "Wiring", Address: "7 Ring Road",
		Pincode: "110001", Budget: 100000, Category: "electrical", Gender: "any", Status: models.JobStatusCompleted,
	}
	require.NoError(t, repository.NewJobRepo(pool).Create(ctx, job))
	_, err := wallets.Credit(ctx, &models.WalletTransaction{ID: uuid.New(), UserID: worker.ID, Amount: 100000, JobID: &job.ID})
	require.NoError(t, err)

	hold := func(amount models.Money) (string, error) {
		ext := "wd_" + uuid.NewString()
		return ext, wallets.Hold(ctx, &models.WalletTransaction{
			ID: uuid.New(), UserID: worker.ID, Amount: -amount, ExternalTxnID: &ext,
		})
	}
	first, err := hold(70000)
	require.NoError(t, err)
	_, err = hold(40000)
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds, "holds never exceed the available balance")
	second, err := hold(30000)
	require.NoError(t, err)

	w, err := wallets.Get(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(100000), w.Held)
	assert.Equal(t, models.Money(0), w.Available)

	applied, err := wallets.Capture(ctx, first, "UTR1")
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = wallets.Capture(ctx, first, "UTR1")
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = wallets.Release(ctx, second, "")
	require.NoError(t, err)
	assert.True(t, applied)

	w, err = wallets.Get(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(30000), w.Balance)
	assert.Equal(t, models.Money(0), w.Held)

	// The rail pays the released withdrawal after all.
	applied, err = wallets.Recapture(ctx, second, "UTR2")
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = wallets.Recapture(ctx, second, "UTR2")
	require.NoError(t, err)
	assert.False(t, applied)
	applied, err = wallets.Recapture(ctx, first, "UTR1")
	require.NoError(t, err)
	assert.False(t, applied, "captured withdrawals need no correction")

	w, err = wallets.Get(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Money(0), w.Balance)

	_, err = wallets.Capture(ctx, "wd_missing", "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithdrawalRepo_UpdateIsConditional(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	withdrawals := repository.NewWithdrawalRepo(pool)
	worker := createUser(t, pool, models.RoleWorker)

	req := &models.WithdrawalRequest{
		ID: uuid.New(), UserID: worker.ID, Amount: 10000, Status: models.WithdrawalPending,
		Destination: models.PayoutDestination{Mode: models.PayoutModeUPI, UPIID: "ravi@okbank"},
	}
	require.NoError(t, withdrawals.Create(ctx, req))

	req.Status = models.WithdrawalRejected
	require.NoError(t, withdrawals.Update(ctx, req, models.WithdrawalPending))
	req.Status = models.WithdrawalProcessing
	assert.ErrorIs(t, withdrawals.Update(ctx, req, models.WithdrawalPending), repository.ErrStaleState)
}
