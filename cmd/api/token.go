package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository"
)

// tokenCommand mints a bearer token for local use. Production tokens come
// from the identity provider.
func (a *app) tokenCommand() *cobra.Command {
	var (
		userID string
		create bool
		name   string
		phone  string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !a.cfg.IsDevelopment() {
				return errors.New("token minting is only available with env=development")
			}
			pool, err := a.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			users := repository.NewUserRepo(pool)

			var u *models.User
			switch {
			case create:
				u = &models.User{ID: uuid.New(), Name: name, Phone: phone, Role: role, Verification: models.VerificationNone}
				if err := users.Create(ctx, u); err != nil {
					return errors.Wrap(err, "create user")
				}
			case userID != "":
				id, err := uuid.Parse(userID)
				if err != nil {
					return errors.Wrap(err, "parse --user")
				}
				if u, err = users.GetByID(ctx, id); err != nil {
					return errors.Wrapf(err, "load user %s", id)
				}
			default:
				return errors.New("pass --user <id> or --create")
			}

			tok, err := auth.NewService(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL).IssueToken(ctx, u.ID, u.Role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user_id=%s role=%s\n%s\n", u.ID, u.Role, tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Existing user id")
	cmd.Flags().BoolVar(&create, "create", false, "Create a new user first")
	cmd.Flags().StringVar(&name, "name", "Dev User", "Name for --create")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone for --create")
	cmd.Flags().StringVar(&role, "role", models.RoleClient, "Role for --create (client, worker, admin)")
	return cmd
}
