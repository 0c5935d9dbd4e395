package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
)

const defaultPayoutTimeout = 10 * time.Second

var (
	// ErrPayoutUnknown means the rail may or may not have taken the
	// instruction. Only its webhook can tell.
	ErrPayoutUnknown = errors.New("payout initiation unknown")
	// ErrPayoutRejected means the rail refused the instruction and will not pay it.
	ErrPayoutRejected = errors.New("payout rejected by rail")
)

// PayoutInstruction is the JSON body sent to the rail.
type PayoutInstruction struct {
	TransactionID string       `json:"transaction_id"`
	Amount        models.Money `json:"amount"`
	Mode          string       `json:"payment_mode"`
	UPIID         string       `json:"upi_id,omitempty"`
	AccountNumber string       `json:"account_number,omitempty"`
	IFSC          string       `json:"ifsc,omitempty"`
	AccountHolder string       `json:"account_holder,omitempty"`
	Narration     string       `json:"narration,omitempty"`
}

type PayoutAck struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	UTR           string `json:"utr,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// PayoutRail sends money to a worker's bank or UPI account.
type PayoutRail interface {
	Initiate(ctx context.Context, in PayoutInstruction) (*PayoutAck, error)
}

// HTTPPayoutRail calls the payout gateway's REST API. The transaction id is
// sent as the idempotency key so a retried call cannot pay twice.
type HTTPPayoutRail struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Log        *zap.Logger
}

func NewHTTPPayoutRail(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *HTTPPayoutRail {
	if timeout <= 0 {
		timeout = defaultPayoutTimeout
	}
	return &HTTPPayoutRail{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Log:        logger.OrNop(log),
	}
}

func (r *HTTPPayoutRail) Initiate(ctx context.Context, in PayoutInstruction) (*PayoutAck, error) {
	if r.BaseURL == "" {
		return nil, errors.Mark(errors.New("payout rail is not configured"), ErrPayoutRejected)
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "marshal payout instruction"), ErrPayoutRejected)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "create payout request"), ErrPayoutRejected)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", in.TransactionID)
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		r.Log.Warn("payout rail unreachable", zap.String("transaction_id", in.TransactionID), zap.Error(err))
		return nil, errors.Mark(errors.Wrap(err, "call payout rail"), ErrPayoutUnknown)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := errors.Newf("payout rail returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if outcomeUnknown(resp.StatusCode) {
			r.Log.Warn("payout rail answered without a verdict", zap.String("transaction_id", in.TransactionID), zap.Int("status", resp.StatusCode))
			return nil, errors.Mark(err, ErrPayoutUnknown)
		}
		return nil, errors.Mark(err, ErrPayoutRejected)
	}

	var ack PayoutAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode payout ack"), ErrPayoutUnknown)
	}
	if strings.EqualFold(ack.Status, PayoutStatusFailed) {
		return &ack, errors.Mark(errors.Newf("payout rail refused: %s", ack.Reason), ErrPayoutRejected)
	}
	return &ack, nil
}

// outcomeUnknown reports whether an HTTP status leaves open that the rail
// took the instruction. Only the remaining 4xx answers are refusals.
func outcomeUnknown(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}
