package main

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/execution"
	"github.com/workmandi/backend/internal/middleware"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the settlement retry workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	pool, err := a.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	d := a.buildDomain(pool)

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewSettlementRetryWorker(d.settlement, a.log))
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: a.cfg.River.MaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return errors.Wrap(err, "create River client")
	}
	d.settlement.Retry = execution.NewSettlementQueue(riverClient, a.log)

	limiter, closeLimiter, err := a.rateLimiter(ctx)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// Start River client (processes settlement retries)
	if err := riverClient.Start(ctx); err != nil {
		return errors.Wrap(err, "start River client")
	}
	defer a.stopRiver(riverClient)

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.buildHandler(d, pool, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		a.log.Info("starting HTTP server", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "HTTP server failed")
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down", zap.Duration("timeout", a.cfg.HTTP.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP shutdown")
	}
	return nil
}

func (a *app) stopRiver(c *river.Client[pgx.Tx]) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		a.log.Error("River client stop", zap.Error(err))
	}
}

// rateLimiter uses Redis when redis.url is set so limits hold across
// replicas, and an in-process limiter otherwise.
func (a *app) rateLimiter(ctx context.Context) (middleware.Limiter, func(), error) {
	rps, burst := a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst
	if a.cfg.Redis.URL == "" {
		a.log.Info("rate limiting in-process", zap.Float64("rps", rps), zap.Int("burst", burst))
		return middleware.NewLocalLimiter(rps, burst), func() {}, nil
	}
	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse redis.url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Wrap(err, "cannot reach Redis")
	}
	a.log.Info("rate limiting via Redis", zap.Float64("rps", rps), zap.Int("burst", burst))
	return middleware.NewRedisLimiter(rdb, rps, burst), func() { _ = rdb.Close() }, nil
}
