package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/config"
	"github.com/workmandi/backend/internal/logger"
)

// app carries what PersistentPreRunE loads for every subcommand.
type app struct {
	configFile string
	cfg        *config.Config
	log        *zap.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "workmandi",
		Short:         "Workmandi marketplace API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to a config file (yaml, json or toml)")
	root.AddCommand(a.serveCommand(), a.migrateCommand(), a.tokenCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if a.log != nil {
		_ = a.log.Sync()
	}
	if err != nil {
		if a.log != nil {
			a.log.Error("command failed", zap.Error(err))
		} else {
			os.Stderr.WriteString(err.Error() + "\n")
		}
		os.Exit(1)
	}
}

func (a *app) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.cfg.Database.URL == "" {
		return nil, errors.New("database.url is required (set WORKMANDI_DATABASE_URL or DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "create database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "cannot reach PostgreSQL")
	}
	a.log.Info("connected to PostgreSQL")
	return pool, nil
}
