package main

import (
	"github.com/cockroachdb/errors"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/workmandi/backend/db/migrations"
)

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the application and River schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := a.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := migrations.Run(ctx, pool, a.log); err != nil {
				return err
			}

			migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
			if err != nil {
				return errors.Wrap(err, "create River migrator")
			}
			res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
			if err != nil {
				return errors.Wrap(err, "River migrate up")
			}
			a.log.Info("River migrations applied", zap.Int("versions", len(res.Versions)))
			return nil
		},
	}
}
