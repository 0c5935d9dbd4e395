package services

import (
	"context"
	"strings"
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

// Statuses reported by the payout rail webhook.
const (
	PayoutStatusSuccess = "SUCCESS"
	PayoutStatusFailed  = "FAILED"
	PayoutStatusPending = "PENDING"
)

type WithdrawalInput struct {
	Amount      models.Money             `json:"amount"`
	Destination models.PayoutDestination `json:"destination"`
}

// PayoutWebhook is the rail's status report for one transaction.
type PayoutWebhook struct {
	TransactionID string       `json:"transaction_id"`
	Status        string       `json:"status"`
	UTR           string       `json:"utr"`
	Amount        models.Money `json:"amount"`
	PaymentMode   string       `json:"payment_mode"`
}

// PayoutService runs withdrawals from request to reconciliation.
//
// Money leaves the wallet only on a confirmed SUCCESS. Approval places a
// hold (held += amount) that keeps the funds from being spent twice; the
// webhook then captures the hold (balance and held both drop) or releases
// it (held drops, balance untouched).
type PayoutService struct {
	Withdrawals WithdrawalStore
	Wallets     WalletStore
	Rail        PayoutRail
	Log         *zap.Logger
	now         func() time.Time
}

func NewPayoutService(withdrawals WithdrawalStore, wallets WalletStore, rail PayoutRail, log *zap.Logger) *PayoutService {
	return &PayoutService{Withdrawals: withdrawals, Wallets: wallets, Rail: rail, Log: logger.OrNop(log), now: time.Now}
}

// RequestWithdrawal files a pending withdrawal for the calling worker.
func (s *PayoutService) RequestWithdrawal(ctx context.Context, id auth.Identity, in WithdrawalInput) (*models.WithdrawalRequest, error) {
	if err := requireRole(id, models.RoleWorker); err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, apperr.Validation("invalid_amount", "withdrawal amount must be greater than zero")
	}
	in.Destination.Mode = strings.ToLower(strings.TrimSpace(in.Destination.Mode))
	in.Destination.IFSC = strings.ToUpper(strings.TrimSpace(in.Destination.IFSC))
	if !in.Destination.Valid() {
		return nil, apperr.Validation("invalid_destination", "payout destination is incomplete or malformed")
	}
	w, err := s.Wallets.Get(ctx, id.UserID)
	if err != nil {
		return nil, storeErr(err, "user_not_found", "user")
	}
	if in.Amount > w.Available {
		return nil, apperr.Precondition("insufficient_balance", "withdrawal amount exceeds available balance")
	}
	req := &models.WithdrawalRequest{
		ID:          uuid.New(),
		UserID:      id.UserID,
		Amount:      in.Amount,
		Destination: in.Destination,
		Status:      models.WithdrawalPending,
	}
	if err := s.Withdrawals.Create(ctx, req); err != nil {
		return nil, apperr.Internal(err)
	}
	s.Log.Info("withdrawal requested",
		zap.String("withdrawal_id", req.ID.String()),
		zap.String("user_id", id.UserID.String()),
		zap.Stringer("amount", req.Amount))
	return req, nil
}

// History lists the caller's withdrawals, newest first.
func (s *PayoutService) History(ctx context.Context, id auth.Identity) ([]*models.WithdrawalRequest, error) {
	return s.list(ctx, &id.UserID, "")
}

// List is the admin view over all withdrawals, optionally by status.
func (s *PayoutService) List(ctx context.Context, id auth.Identity, status string) ([]*models.WithdrawalRequest, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.list(ctx, nil, status)
}

func (s *PayoutService) list(ctx context.Context, userID *uuid.UUID, status string) ([]*models.WithdrawalRequest, error) {
	list, err := s.Withdrawals.List(ctx, userID, status)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if list == nil {
		list = []*models.WithdrawalRequest{}
	}
	return list, nil
}

// Approve holds the funds, moves the request to processing and sends the
// payout instruction. A rail timeout leaves the request processing; only an
// explicit refusal fails it.
func (s *PayoutService) Approve(ctx context.Context, id auth.Identity, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	req, err := s.Withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, storeErr(err, "withdrawal_not_found", "withdrawal")
	}
	if req.Status != models.WithdrawalPending {
		return nil, apperr.Precondition("withdrawal_not_pending", "withdrawal is not pending")
	}

	txnID := newTransactionID()
	hold := &models.WalletTransaction{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Type:          models.WalletTxnWithdrawal,
		Amount:        -req.Amount,
		Description:   "Withdrawal to " + destinationLabel(req.Destination),
		ExternalTxnID: &txnID,
		Status:        models.WalletTxnProcessing,
	}
	if err := s.Wallets.Hold(ctx, hold); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, apperr.Precondition("insufficient_balance", "available balance no longer covers this withdrawal")
		}
		return nil, apperr.Internal(err)
	}

	now := s.now()
	req.Status = models.WithdrawalProcessing
	req.TransactionID = &txnID
	req.ApprovedAt = &now
	if err := s.Withdrawals.Update(ctx, req, models.WithdrawalPending); err != nil {
		s.release(ctx, txnID)
		if errors.Is(err, repository.ErrStaleState) {
			return nil, apperr.Precondition("withdrawal_not_pending", "withdrawal is not pending")
		}
		return nil, apperr.Internal(err)
	}
	log := s.Log.With(zap.String("withdrawal_id", req.ID.String()), zap.String("transaction_id", txnID))

	ack, err := s.Rail.Initiate(ctx, PayoutInstruction{
		TransactionID: txnID,
		Amount:        req.Amount,
		Mode:          req.Destination.Mode,
		UPIID:         req.Destination.UPIID,
		AccountNumber: req.Destination.AccountNumber,
		IFSC:          req.Destination.IFSC,
		AccountHolder: req.Destination.AccountHolder,
		Narration:     "Withdrawal " + req.ID.String(),
	})
	switch {
	case err == nil:
		log.Info("payout initiated", zap.String("rail_status", ack.Status))
		return req, nil
	case !errors.Is(err, ErrPayoutRejected):
		log.Warn("payout initiation unknown, waiting for webhook", zap.Error(err))
		return req, nil
	}

	log.Warn("payout rejected by rail", zap.Error(err))
	s.release(ctx, txnID)
	req.Status = models.WithdrawalFailed
	req.FailureReason = err.Error()
	if uerr := s.Withdrawals.Update(ctx, req, models.WithdrawalProcessing); uerr != nil {
		log.Error("mark withdrawal failed", zap.Error(uerr))
	}
	return nil, apperr.External(err, "payout_rail_error", "payout rail rejected the withdrawal")
}

// Reject declines a pending withdrawal. No money has moved yet.
func (s *PayoutService) Reject(ctx context.Context, id auth.Identity, withdrawalID uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	if err := requireRole(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	req, err := s.Withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, storeErr(err, "withdrawal_not_found", "withdrawal")
	}
	if req.Status != models.WithdrawalPending {
		return nil, apperr.Precondition("withdrawal_not_pending", "withdrawal is not pending")
	}
	req.Status = models.WithdrawalRejected
	req.FailureReason = strings.TrimSpace(reason)
	if err := s.Withdrawals.Update(ctx, req, models.WithdrawalPending); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, apperr.Precondition("withdrawal_not_pending", "withdrawal is not pending")
		}
		return nil, apperr.Internal(err)
	}
	return req, nil
}

// HandleWebhook reconciles a rail status report. Unknown transaction ids
// are not found and change nothing. A status this service does not know is
// logged and acknowledged without effect, so the rail does not keep
// retrying it. Replays against a final request are no-ops, except a SUCCESS
// for a failed request, which completes it and debits the wallet.
func (s *PayoutService) HandleWebhook(ctx context.Context, ev PayoutWebhook) (*models.WithdrawalRequest, error) {
	ev.TransactionID = strings.TrimSpace(ev.TransactionID)
	ev.Status = strings.ToUpper(strings.TrimSpace(ev.Status))
	ev.UTR = strings.TrimSpace(ev.UTR)
	if ev.TransactionID == "" {
		return nil, apperr.Validation("invalid_request", "transaction_id is required")
	}

	req, err := s.Withdrawals.GetByTransactionID(ctx, ev.TransactionID)
	if err != nil {
		return nil, storeErr(err, "withdrawal_not_found", "withdrawal")
	}
	log := s.Log.With(
		zap.String("withdrawal_id", req.ID.String()),
		zap.String("transaction_id", ev.TransactionID),
		zap.String("status", ev.Status))
	if ev.Amount != 0 && ev.Amount != req.Amount {
		log.Warn("webhook amount differs from request", zap.Stringer("reported", ev.Amount), zap.Stringer("requested", req.Amount))
	}

	switch ev.Status {
	case PayoutStatusSuccess:
		err = s.settleWithdrawal(ctx, log, req, ev, true)
	case PayoutStatusFailed:
		err = s.settleWithdrawal(ctx, log, req, ev, false)
	case PayoutStatusPending:
		err = s.markInFlight(ctx, req, ev)
	default:
		log.Warn("ignoring unrecognised payout status")
	}
	if err != nil {
		return req, apperr.Internal(err)
	}
	return req, nil
}

func (s *PayoutService) settleWithdrawal(ctx context.Context, log *zap.Logger, req *models.WithdrawalRequest, ev PayoutWebhook, success bool) error {
	var err error
	if success {
		err = s.captureWithdrawal(ctx, log, req, ev)
	} else {
		var applied bool
		applied, err = s.Wallets.Release(ctx, ev.TransactionID, ev.UTR)
		if err == nil && !applied {
			log.Info("wallet entry already final")
		}
	}
	if err != nil {
		return errors.Wrap(err, "finish wallet hold")
	}

	// SUCCESS also completes a request failed locally; the wallet was corrected above.
	from := req.Status
	movable := from == models.WithdrawalProcessing || (success && from == models.WithdrawalFailed)
	if !movable {
		if (success && from != models.WithdrawalCompleted) || (!success && from != models.WithdrawalFailed) {
			log.Warn("webhook conflicts with final withdrawal status",
				zap.String("withdrawal_status", from),
				zap.Bool("settlement_inconsistency", true))
		}
		return nil
	}

	now := s.now()
	if ev.UTR != "" {
		req.UTR = &ev.UTR
	}
	if success {
		req.Status = models.WithdrawalCompleted
		req.CompletedAt = &now
		req.FailureReason = ""
	} else {
		req.Status = models.WithdrawalFailed
		req.FailureReason = "payout failed at rail"
	}
	err = s.Withdrawals.Update(ctx, req, from)
	if errors.Is(err, repository.ErrStaleState) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "update withdrawal")
	}
	log.Info("withdrawal reconciled", zap.String("from", from))
	return nil
}

// captureWithdrawal takes the money out of the wallet for a SUCCESS. When
// the hold was already released (the rail refused on initiation or reported
// FAILED first) the balance is debited by a correction entry instead.
func (s *PayoutService) captureWithdrawal(ctx context.Context, log *zap.Logger, req *models.WithdrawalRequest, ev PayoutWebhook) error {
	applied, err := s.Wallets.Capture(ctx, ev.TransactionID, ev.UTR)
	if err != nil || applied {
		return err
	}
	recaptured, err := s.Wallets.Recapture(ctx, ev.TransactionID, ev.UTR)
	if err != nil {
		return errors.Wrap(err, "recapture released withdrawal")
	}
	if !recaptured {
		log.Info("wallet entry already final")
		return nil
	}
	log.Error("payout succeeded after its hold was released, wallet debited",
		zap.Stringer("amount", req.Amount),
		zap.String("withdrawal_status", req.Status),
		zap.Bool("settlement_inconsistency", true))
	return nil
}

func (s *PayoutService) markInFlight(ctx context.Context, req *models.WithdrawalRequest, ev PayoutWebhook) error {
	if err := s.Wallets.MarkInFlight(ctx, ev.TransactionID, ev.UTR); err != nil {
		return errors.Wrap(err, "mark wallet entry in flight")
	}
	if ev.UTR == "" || req.Status != models.WithdrawalProcessing {
		return nil
	}
	req.UTR = &ev.UTR
	err := s.Withdrawals.Update(ctx, req, models.WithdrawalProcessing)
	if errors.Is(err, repository.ErrStaleState) {
		return nil
	}
	return errors.Wrap(err, "update withdrawal utr")
}

func (s *PayoutService) release(ctx context.Context, txnID string) {
	if _, err := s.Wallets.Release(ctx, txnID, ""); err != nil {
		s.Log.Error("release wallet hold", zap.String("transaction_id", txnID), zap.Error(err))
	}
}

func newTransactionID() string {
	return "wd_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func destinationLabel(d models.PayoutDestination) string {
	if d.Mode == models.PayoutModeUPI {
		return d.UPIID
	}
	n := d.AccountNumber
	if len(n) > 4 {
		n = n[len(n)-4:]
	}
	return "bank account ending " + n
}
