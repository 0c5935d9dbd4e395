package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"

	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/handlers"
	"github.com/workmandi/backend/internal/middleware"
	"github.com/workmandi/backend/internal/repository"
	"github.com/workmandi/backend/internal/router"
	"github.com/workmandi/backend/internal/services"
)

// domain bundles the services built over one pool.
type domain struct {
	users       *repository.UserRepo
	jobs        *services.JobService
	offers      *services.OfferService
	settlement  *services.SettlementService
	commissions *services.CommissionService
	payouts     *services.PayoutService
	userSvc     *services.UserService
	wallets     *services.WalletService
}

func (a *app) buildDomain(pool *pgxpool.Pool) *domain {
	userRepo := repository.NewUserRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	walletRepo := repository.NewWalletRepo(pool)
	withdrawalRepo := repository.NewWithdrawalRepo(pool)
	commissionRepo := repository.NewCommissionRepo(pool)

	rail := services.NewHTTPPayoutRail(a.cfg.Payout.BaseURL, a.cfg.Payout.APIKey, a.cfg.Payout.Timeout, a.log)
	if a.cfg.Payout.BaseURL == "" {
		a.log.Warn("payout.base_url not set: withdrawal approvals will fail at the rail")
	}

	commissions := services.NewCommissionService(commissionRepo, jobRepo, a.log)
	settlement := services.NewSettlementService(jobRepo, walletRepo, commissions, a.log)
	return &domain{
		users:       userRepo,
		jobs:        services.NewJobService(jobRepo, settlement, a.log),
		offers:      services.NewOfferService(jobRepo, userRepo, a.cfg.Offers.Cooldown, a.log),
		settlement:  settlement,
		commissions: commissions,
		payouts:     services.NewPayoutService(withdrawalRepo, walletRepo, rail, a.log),
		userSvc:     services.NewUserService(userRepo, jobRepo, a.log),
		wallets:     services.NewWalletService(walletRepo),
	}
}

// buildHandler mounts the API and wraps it in CORS.
func (a *app) buildHandler(d *domain, pool *pgxpool.Pool, limiter middleware.Limiter) http.Handler {
	api := router.New(router.Handlers{
		Jobs:        handlers.NewJobHandler(d.jobs, d.offers, a.log),
		Users:       handlers.NewUserHandler(d.userSvc, d.wallets, d.payouts, a.log),
		Admin:       handlers.NewAdminHandler(d.userSvc, d.payouts, d.commissions, a.log),
		Commissions: handlers.NewCommissionHandler(d.commissions, a.log),
		Webhooks:    handlers.NewWebhookHandler(d.payouts, a.cfg.Payout.WebhookSecret, a.log),
	}, router.Deps{
		Tokens:  auth.NewService(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL),
		Users:   d.users,
		Limiter: limiter,
		Health:  pool,
		Log:     a.log,
	})

	return cors.New(cors.Options{
		AllowedOrigins:   a.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	}).Handler(api)
}
