package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/handlers"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/middleware"
	"github.com/workmandi/backend/internal/models"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups the HTTP handlers mounted under /api/v1.
type Handlers struct {
	Jobs        *handlers.JobHandler
	Users       *handlers.UserHandler
	Admin       *handlers.AdminHandler
	Commissions *handlers.CommissionHandler
	Webhooks    *handlers.WebhookHandler
}

// Deps are the cross-cutting collaborators of the router.
type Deps struct {
	Tokens  middleware.TokenValidator
	Users   middleware.UserLookup
	Limiter middleware.Limiter
	Health  Pinger
	Log     *zap.Logger
}

// New returns an http.Handler that serves API under /api/v1.
func New(h Handlers, d Deps) http.Handler {
	log := logger.OrNop(d.Log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(logger.RequestLogger(log))

	r.Get("/healthz", healthz(d.Health))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/payout", h.Webhooks.Payout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(d.Tokens, d.Users, log))
			if d.Limiter != nil {
				r.Use(middleware.RateLimit(d.Limiter, log))
			}

			r.Get("/me", h.Users.GetMe)
			r.Post("/me/role", h.Users.SwitchRole)
			r.Get("/wallet", h.Users.GetWallet)
			r.Post("/verification", h.Users.SubmitVerification)
			r.Get("/verification", h.Users.GetVerification)
			r.Post("/withdrawals", h.Users.RequestWithdrawal)
			r.Get("/withdrawals", h.Users.ListWithdrawals)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", h.Jobs.Create)
				r.Get("/", h.Jobs.List)
				r.Route("/{jobID}", func(r chi.Router) {
					r.Get("/", h.Jobs.Get)
					r.Patch("/", h.Jobs.Update)
					r.Delete("/", h.Jobs.Delete)
					r.Post("/offers", h.Jobs.SubmitOffer)
					r.Get("/cooldown", h.Jobs.Cooldown)
					r.Post("/offers/{workerID}/accept", h.Jobs.AcceptOffer)
					r.Post("/offers/{workerID}/reject", h.Jobs.RejectOffer)
					r.Post("/pickup", h.Jobs.Pickup)
					r.Post("/start", h.Jobs.Start)
					r.Post("/done", h.Jobs.MarkDone)
					r.Post("/pay", h.Jobs.Pay)
					r.Post("/complete", h.Jobs.Complete)
					r.Post("/cancel", h.Jobs.Cancel)
				})
			})

			r.Get("/commissions", h.Commissions.Ledger)
			r.Get("/commissions/jobs/{jobID}", h.Commissions.ForJob)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(log, models.RoleAdmin))

				r.Get("/verifications", h.Admin.ListVerifications)
				r.Post("/verifications/{userID}/approve", h.Admin.ApproveVerification)
				r.Post("/verifications/{userID}/reject", h.Admin.RejectVerification)
				r.Get("/withdrawals", h.Admin.ListWithdrawals)
				r.Post("/withdrawals/{withdrawalID}/approve", h.Admin.ApproveWithdrawal)
				r.Post("/withdrawals/{withdrawalID}/reject", h.Admin.RejectWithdrawal)
				r.Get("/users", h.Admin.SearchUsers)
				r.Post("/commissions", h.Admin.AddCommission)
				r.Post("/commissions/{commissionID}/paid", h.Admin.MarkCommissionPaid)
			})
		})
	})

	return r
}

func healthz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
