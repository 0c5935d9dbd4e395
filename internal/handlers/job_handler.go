package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/services"
)

// JobHandler serves /api/v1/jobs: posting, the offer protocol and every
// lifecycle step.
type JobHandler struct {
	Jobs   *services.JobService
	Offers *services.OfferService
	Log    *zap.Logger
}

func NewJobHandler(jobs *services.JobService, offers *services.OfferService, log *zap.Logger) *JobHandler {
	return &JobHandler{Jobs: jobs, Offers: offers, Log: logger.OrNop(log)}
}

// --- POST /jobs ---

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	var in services.CreateJobInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	j, err := h.Jobs.Create(r.Context(), id, in)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

// --- GET /jobs?owner=me&assigned=me&status=open&limit=&offset= ---

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	q := r.URL.Query()
	p := services.ListJobsParams{
		Owned:    q.Get("owner") == "me",
		Assigned: q.Get("assigned") == "me",
		Statuses: q["status"],
	}
	if p.Limit, err = intParam(q.Get("limit")); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if p.Offset, err = intParam(q.Get("offset")); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	list, err := h.Jobs.List(r.Context(), id, p)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

// --- GET /jobs/{jobID} ---

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "jobID")
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	j, err := h.Jobs.Get(r.Context(), jobID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// --- PATCH /jobs/{jobID} ---

func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in services.UpdateJobInput
	h.jobAction(w, r, &in, func(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.Job, error) {
		return h.Jobs.Update(ctx, id, jobID, in)
	})
}

// --- DELETE /jobs/{jobID} ---

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Jobs.Delete(r.Context(), id, jobID); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- POST /jobs/{jobID}/offers ---

func (h *JobHandler) SubmitOffer(w http.ResponseWriter, r *http.Request) {
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
	var in services.SubmitOfferInput
	if err := decodeJSON(w, r, &in); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	offer, err := h.Offers.Submit(r.Context(), id, jobID, in)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// --- GET /jobs/{jobID}/cooldown ---

type cooldownResponse struct {
	CanOffer   bool  `json:"can_offer"`
	RetryAfter int64 `json:"retry_after"`
}

func (h *JobHandler) Cooldown(w http.ResponseWriter, r *http.Request) {
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
	wait, err := h.Offers.CooldownRemaining(r.Context(), id, jobID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	resp := cooldownResponse{CanOffer: wait <= 0}
	if wait > 0 {
		resp.RetryAfter = apperr.RetryAfterSeconds(wait)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- POST /jobs/{jobID}/offers/{workerID}/accept|reject ---

func (h *JobHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	h.offerAction(w, r, h.Offers.Accept)
}

func (h *JobHandler) RejectOffer(w http.ResponseWriter, r *http.Request) {
	h.offerAction(w, r, h.Offers.Reject)
}

func (h *JobHandler) offerAction(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, auth.Identity, uuid.UUID, uuid.UUID) (*models.Job, error)) {
	workerID, err := pathUUID(r, "workerID")
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	h.jobAction(w, r, nil, func(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.Job, error) {
		return fn(ctx, id, jobID, workerID)
	})
}

// --- POST /jobs/{jobID}/{pickup,start,done,complete,cancel} ---

func (h *JobHandler) Pickup(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, nil, h.Offers.Pickup)
}

func (h *JobHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, nil, h.Jobs.Start)
}

func (h *JobHandler) MarkDone(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, nil, h.Jobs.MarkDone)
}

func (h *JobHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, nil, h.Jobs.MarkFullyCompleted)
}

func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, nil, h.Jobs.Cancel)
}

// --- POST /jobs/{jobID}/pay ---

type payRequest struct {
	Method string `json:"method"`
}

func (h *JobHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	h.jobAction(w, r, &req, func(ctx context.Context, id auth.Identity, jobID uuid.UUID) (*models.Job, error) {
		return h.Jobs.Pay(ctx, id, jobID, req.Method)
	})
}

// jobAction resolves the caller and job id, decodes body into in when
// given, runs fn and renders the resulting job.
func (h *JobHandler) jobAction(w http.ResponseWriter, r *http.Request, in any,
	fn func(context.Context, auth.Identity, uuid.UUID) (*models.Job, error)) {
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
	if in != nil {
		if err := decodeJSON(w, r, in); err != nil {
			apperr.Write(w, h.Log, err)
			return
		}
	}
	j, err := fn(r.Context(), id, jobID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.Validation("invalid_request", "limit and offset must be non-negative integers")
	}
	return n, nil
}
