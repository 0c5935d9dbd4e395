package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/services"
)

// AdminHandler serves /api/v1/admin. The router restricts it to admins;
// the services check the role again.
type AdminHandler struct {
	Users       *services.UserService
	Payouts     *services.PayoutService
	Commissions *services.CommissionService
	Log         *zap.Logger
}

func NewAdminHandler(users *services.UserService, payouts *services.PayoutService, commissions *services.CommissionService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{Users: users, Payouts: payouts, Commissions: commissions, Log: logger.OrNop(log)}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// --- verifications ---

func (h *AdminHandler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	list, err := h.Users.PendingVerifications(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

func (h *AdminHandler) ApproveVerification(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.target(w, r, "userID")
	if !ok {
		return
	}
	u, err := h.Users.ApproveVerification(r.Context(), id, userID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AdminHandler) RejectVerification(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.target(w, r, "userID")
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	u, err := h.Users.RejectVerification(r.Context(), id, userID, req.Reason)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- GET /admin/users?phone= ---

func (h *AdminHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	list, err := h.Users.SearchByPhone(r.Context(), id, r.URL.Query().Get("phone"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

// --- withdrawals ---

func (h *AdminHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	list, err := h.Payouts.List(r.Context(), id, r.URL.Query().Get("status"))
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": list})
}

func (h *AdminHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, withdrawalID, ok := h.target(w, r, "withdrawalID")
	if !ok {
		return
	}
	req, err := h.Payouts.Approve(r.Context(), id, withdrawalID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *AdminHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, withdrawalID, ok := h.target(w, r, "withdrawalID")
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	wr, err := h.Payouts.Reject(r.Context(), id, withdrawalID, req.Reason)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// --- commissions ---

type addCommissionRequest struct {
	JobID uuid.UUID `json:"job_id"`
}

func (h *AdminHandler) AddCommission(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	var req addCommissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if req.JobID == uuid.Nil {
		apperr.Write(w, h.Log, apperr.Validation("invalid_request", "job_id is required"))
		return
	}
	c, err := h.Commissions.AddEntry(r.Context(), id, req.JobID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AdminHandler) MarkCommissionPaid(w http.ResponseWriter, r *http.Request) {
	id, entryID, ok := h.target(w, r, "commissionID")
	if !ok {
		return
	}
	c, err := h.Commissions.MarkPaid(r.Context(), id, entryID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// target resolves the caller and the uuid path parameter the action
// applies to. It writes the error response itself when either is missing.
func (h *AdminHandler) target(w http.ResponseWriter, r *http.Request, param string) (auth.Identity, uuid.UUID, bool) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return auth.Identity{}, uuid.Nil, false
	}
	target, err := pathUUID(r, param)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return auth.Identity{}, uuid.Nil, false
	}
	return id, target, true
}
