package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/services"
)

// UserHandler serves the caller's own account: profile, role, wallet,
// verification and withdrawals.
type UserHandler struct {
	Users   *services.UserService
	Wallets *services.WalletService
	Payouts *services.PayoutService
	Log     *zap.Logger
}

func NewUserHandler(users *services.UserService, wallets *services.WalletService, payouts *services.PayoutService, log *zap.Logger) *UserHandler {
	return &UserHandler{Users: users, Wallets: wallets, Payouts: payouts, Log: logger.OrNop(log)}
}

// GetMe handles GET /me.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	u, err := h.Users.Me(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type switchRoleRequest struct {
	Role string `json:"role"`
}

// SwitchRole handles POST /me/role.
func (h *UserHandler) SwitchRole(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	var req switchRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	u, err := h.Users.SwitchRole(r.Context(), id, req.Role)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetWallet handles GET /wallet.
func (h *UserHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	wallet, err := h.Wallets.Get(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

type verificationRequest struct {
	Documents []models.VerificationDocument `json:"documents"`
}

// SubmitVerification handles POST /verification.
func (h *UserHandler) SubmitVerification(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	var req verificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	v, err := h.Users.SubmitVerification(r.Context(), id, req.Documents)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

// GetVerification handles GET /verification.
func (h *UserHandler) GetVerification(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	v, err := h.Users.VerificationStatus(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RequestWithdrawal handles POST /withdrawals.
func (h *UserHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	var in services.WithdrawalInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	req, err := h.Payouts.RequestWithdrawal(r.Context(), id, in)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListWithdrawals handles GET /withdrawals.
func (h *UserHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	list, err := h.Payouts.History(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": list})
}
