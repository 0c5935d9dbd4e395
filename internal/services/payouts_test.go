package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/models"
)

var upiDest = models.PayoutDestination{Mode: models.PayoutModeUPI, UPIID: "ravi@okbank"}

func (f *fixture) fundedWorker(t *testing.T, balance models.Money) auth.Identity {
	t.Helper()
	w := f.worker("Ravi")
	f.store.SeedCredit(w.UserID, balance)
	return w
}

func (f *fixture) approvedWithdrawal(t *testing.T, worker auth.Identity, amount models.Money) *models.WithdrawalRequest {
	t.Helper()
	ctx := context.Background()
	req, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: amount, Destination: upiDest})
	require.NoError(t, err)
	req, err = f.payouts.Approve(ctx, f.admin(), req.ID)
	require.NoError(t, err)
	require.Equal(t, models.WithdrawalProcessing, req.Status)
	require.NotNil(t, req.TransactionID)
	return req
}

func TestPayoutService_RequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(500))

	_, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: 0, Destination: upiDest})
	requireCode(t, err, apperr.KindValidation, "invalid_amount")

	_, err = f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{
		Amount:      rupees(10),
		Destination: models.PayoutDestination{Mode: models.PayoutModeBank, AccountNumber: "12"},
	})
	requireCode(t, err, apperr.KindValidation, "invalid_destination")

	_, err = f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: rupees(501), Destination: upiDest})
	requireCode(t, err, apperr.KindPrecondition, "insufficient_balance")

	_, err = f.payouts.RequestWithdrawal(ctx, f.client("Asha"), WithdrawalInput{Amount: rupees(1), Destination: upiDest})
	requireCode(t, err, apperr.KindForbidden, "role_required")

	req, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{
		Amount: rupees(100),
		Destination: models.PayoutDestination{
			Mode: "BANK", AccountNumber: "123456789012", IFSC: "hdfc0001234", AccountHolder: "Ravi Kumar",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, req.Status)
	assert.Equal(t, "HDFC0001234", req.Destination.IFSC)
	assert.Zero(t, f.rail.callCount())
}

func TestPayoutService_ApproveWithoutFundsNeverCallsRail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(500))

	first, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: rupees(400), Destination: upiDest})
	require.NoError(t, err)
	second, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: rupees(400), Destination: upiDest})
	require.NoError(t, err)

	admin := f.admin()
	_, err = f.payouts.Approve(ctx, admin, first.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.rail.callCount())

	_, err = f.payouts.Approve(ctx, admin, second.ID)
	requireCode(t, err, apperr.KindPrecondition, "insufficient_balance")
	assert.Equal(t, 1, f.rail.callCount())

	still, err := f.store.Withdrawals().GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, still.Status)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(500), w.Balance)
	assert.Equal(t, rupees(400), w.Held)
	assert.Equal(t, rupees(100), w.Available)
}

func TestPayoutService_WebhookSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req := f.approvedWithdrawal(t, worker, rupees(300))

	got, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{
		TransactionID: *req.TransactionID, Status: "success", UTR: "UTR123", Amount: rupees(300), PaymentMode: "UPI",
	})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.UTR)
	assert.Equal(t, "UTR123", *got.UTR)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(700), w.Balance)
	assert.Equal(t, models.Money(0), w.Held)
	assert.Equal(t, rupees(1000), w.TotalEarnings)
	txn := w.Transactions[0]
	assert.Equal(t, models.WalletTxnWithdrawal, txn.Type)
	assert.Equal(t, models.WalletTxnCompleted, txn.Status)
	assert.Equal(t, -rupees(300), txn.Amount)
	require.NotNil(t, txn.UTR)
	assert.Equal(t, "UTR123", *txn.UTR)

	// Replays change nothing.
	_, err = f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: PayoutStatusSuccess, UTR: "UTR123"})
	require.NoError(t, err)
	_, err = f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: PayoutStatusFailed})
	require.NoError(t, err)
	w, err = f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(700), w.Balance)
	assert.Equal(t, rupees(700), w.Available)
	final, err := f.store.Withdrawals().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, final.Status)
}

func TestPayoutService_WebhookFailedReleasesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req := f.approvedWithdrawal(t, worker, rupees(300))

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(700), w.Available)

	got, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: PayoutStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalFailed, got.Status)

	w, err = f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(1000), w.Balance)
	assert.Equal(t, rupees(1000), w.Available)
	assert.Equal(t, models.WalletTxnFailed, w.Transactions[0].Status)
}

func TestPayoutService_WebhookPendingKeepsProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req := f.approvedWithdrawal(t, worker, rupees(300))

	got, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: PayoutStatusPending, UTR: "UTR9"})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, got.Status)
	require.NotNil(t, got.UTR)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, models.WalletTxnProcessing, w.Transactions[0].Status)
	assert.Equal(t, rupees(300), w.Held)
}

func TestPayoutService_WebhookUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req := f.approvedWithdrawal(t, worker, rupees(300))

	_, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: "wd_nope", Status: PayoutStatusSuccess})
	requireCode(t, err, apperr.KindNotFound, "withdrawal_not_found")

	_, err = f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: "wd_nope", Status: "MAYBE"})
	requireCode(t, err, apperr.KindNotFound, "withdrawal_not_found")

	_, err = f.payouts.HandleWebhook(ctx, PayoutWebhook{Status: PayoutStatusSuccess})
	requireCode(t, err, apperr.KindValidation, "invalid_request")

	// An unrecognised status for a known transaction is acknowledged and ignored.
	got, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: "REVERSED"})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, got.Status)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(300), w.Held)
	assert.Equal(t, rupees(1000), w.Balance)

	still, err := f.store.Withdrawals().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, still.Status)
}

func TestPayoutService_RailRejectionFailsWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: rupees(300), Destination: upiDest})
	require.NoError(t, err)

	f.rail.err = errors.Mark(errors.New("account closed"), ErrPayoutRejected)
	_, err = f.payouts.Approve(ctx, f.admin(), req.ID)
	requireCode(t, err, apperr.KindExternal, "payout_rail_error")

	got, err := f.store.Withdrawals().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalFailed, got.Status)
	assert.NotEmpty(t, got.FailureReason)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(1000), w.Available)
}

func TestPayoutService_RailTimeoutStaysProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: rupees(300), Destination: upiDest})
	require.NoError(t, err)

	f.rail.err = errors.Mark(context.DeadlineExceeded, ErrPayoutUnknown)
	got, err := f.payouts.Approve(ctx, f.admin(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, got.Status)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(300), w.Held)
}

func TestPayoutService_RejectAndLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	admin := f.admin()
	req, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: rupees(300), Destination: upiDest})
	require.NoError(t, err)

	pending, err := f.payouts.List(ctx, admin, models.WithdrawalPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.payouts.List(ctx, worker, "")
	requireCode(t, err, apperr.KindForbidden, "role_required")

	got, err := f.payouts.Reject(ctx, admin, req.ID, "name mismatch")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRejected, got.Status)

	_, err = f.payouts.Approve(ctx, admin, req.ID)
	requireCode(t, err, apperr.KindPrecondition, "withdrawal_not_pending")

	history, err := f.payouts.History(ctx, worker)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "name mismatch", history[0].FailureReason)
	assert.Zero(t, f.rail.callCount())
}

func TestPayoutService_GatewayTimeoutThenSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()
	f.payouts.Rail = NewHTTPPayoutRail(srv.URL, "", time.Second, nil)

	worker := f.fundedWorker(t, rupees(1000))
	req := f.approvedWithdrawal(t, worker, rupees(300))

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(300), w.Held)

	got, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: PayoutStatusSuccess, UTR: "UTR504"})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, got.Status)

	w, err = f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(700), w.Balance)
	assert.Equal(t, models.Money(0), w.Held)
}

func TestPayoutService_SuccessAfterRejectionDebitsWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req, err := f.payouts.RequestWithdrawal(ctx, worker, WithdrawalInput{Amount: rupees(300), Destination: upiDest})
	require.NoError(t, err)

	f.rail.err = errors.Mark(errors.New("invalid vpa"), ErrPayoutRejected)
	_, err = f.payouts.Approve(ctx, f.admin(), req.ID)
	requireCode(t, err, apperr.KindExternal, "payout_rail_error")

	failed, err := f.store.Withdrawals().GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.WithdrawalFailed, failed.Status)
	require.NotNil(t, failed.TransactionID)
	txnID := *failed.TransactionID

	got, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: txnID, Status: PayoutStatusSuccess, UTR: "UTR77"})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, got.Status)
	assert.Empty(t, got.FailureReason)
	require.NotNil(t, got.CompletedAt)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(700), w.Balance)
	assert.Equal(t, models.Money(0), w.Held)
	require.Len(t, w.Transactions, 3)
	debit := w.Transactions[0]
	assert.Equal(t, models.WalletTxnDebit, debit.Type)
	assert.Equal(t, models.WalletTxnCompleted, debit.Status)
	assert.Equal(t, -rupees(300), debit.Amount)
	require.NotNil(t, debit.UTR)
	assert.Equal(t, "UTR77", *debit.UTR)
	assert.Equal(t, models.WalletTxnFailed, w.Transactions[1].Status, "the released withdrawal entry is never rewritten")

	// Replays debit once.
	_, err = f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: txnID, Status: PayoutStatusSuccess, UTR: "UTR77"})
	require.NoError(t, err)
	w, err = f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(700), w.Balance)
	assert.Len(t, w.Transactions, 3)
}

func TestPayoutService_SuccessAfterFailedWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req := f.approvedWithdrawal(t, worker, rupees(300))

	_, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: PayoutStatusFailed})
	require.NoError(t, err)
	got, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: PayoutStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, got.Status)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(700), w.Balance)
	assert.Equal(t, rupees(700), w.Available)
}

func TestPayoutService_SuccessForProcessingWithReleasedHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := f.fundedWorker(t, rupees(1000))
	req := f.approvedWithdrawal(t, worker, rupees(300))

	// The hold was released but the request never left processing.
	applied, err := f.store.Wallets().Release(ctx, *req.TransactionID, "")
	require.NoError(t, err)
	require.True(t, applied)

	got, err := f.payouts.HandleWebhook(ctx, PayoutWebhook{TransactionID: *req.TransactionID, Status: PayoutStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, got.Status)

	w, err := f.wallets.Get(ctx, worker)
	require.NoError(t, err)
	assert.Equal(t, rupees(700), w.Balance)
	assert.Equal(t, models.Money(0), w.Held)
}
