package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/services"
)

type CommissionHandler struct {
	Commissions *services.CommissionService
	Log         *zap.Logger
}

func NewCommissionHandler(commissions *services.CommissionService, log *zap.Logger) *CommissionHandler {
	return &CommissionHandler{Commissions: commissions, Log: logger.OrNop(log)}
}

// Ledger handles GET /commissions. Admins may pass ?worker_id= to read
// another worker's ledger.
func (h *CommissionHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	workerID := uuid.Nil
	if s := r.URL.Query().Get("worker_id"); s != "" {
		if workerID, err = uuid.Parse(s); err != nil {
			apperr.Write(w, h.Log, apperr.Validation("invalid_request", "invalid worker_id"))
			return
		}
	}
	ledger, err := h.Commissions.Ledger(r.Context(), id, workerID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

// ForJob handles GET /commissions/jobs/{jobID}.
func (h *CommissionHandler) ForJob(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	jobID, err := pathUUID(r, "jobID")
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	entry, err := h.Commissions.ForJob(r.Context(), id, jobID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
