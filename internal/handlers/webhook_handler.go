package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/services"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Payout-Signature"

// WebhookHandler receives payout status reports from the rail. It sits
// outside user authentication; when Secret is set every body must be signed.
type WebhookHandler struct {
	Payouts *services.PayoutService
	Secret  string
	Log     *zap.Logger
}

func NewWebhookHandler(payouts *services.PayoutService, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Payouts: payouts, Secret: secret, Log: logger.OrNop(log)}
}

// Payout handles POST /webhooks/payout.
func (h *WebhookHandler) Payout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		apperr.Write(w, h.Log, apperr.Wrap(err, apperr.KindValidation, "invalid_request", "unreadable body"))
		return
	}
	if h.Secret != "" && !validSignature(h.Secret, body, r.Header.Get(SignatureHeader)) {
		apperr.Write(w, h.Log, apperr.Unauthenticated("invalid webhook signature"))
		return
	}

	var ev services.PayoutWebhook
	if err := json.Unmarshal(body, &ev); err != nil {
		apperr.Write(w, h.Log, apperr.Wrap(err, apperr.KindValidation, "invalid_request", "invalid JSON body"))
		return
	}

	_, err = h.Payouts.HandleWebhook(r.Context(), ev)
	switch {
	case err == nil:
	case apperr.IsKind(err, apperr.KindValidation), apperr.IsKind(err, apperr.KindNotFound):
		apperr.Write(w, h.Log, err)
		return
	default:
		// The rail retries on non-2xx; a failed local update is retried by
		// the next report for the same transaction.
		h.Log.Error("payout webhook reconcile failed",
			zap.String("transaction_id", ev.TransactionID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validSignature(secret string, body []byte, got string) bool {
	sig, err := hex.DecodeString(got)
	if err != nil || len(sig) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// SignPayload returns the signature header value for body. Used by tests
// and local tooling that replays rail callbacks.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
