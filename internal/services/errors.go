package services

import (
	"github.com/cockroachdb/errors"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/repository"
)

// storeErr turns a repository error into a taxonomy error. Errors that are
// already classified pass through untouched.
func storeErr(err error, notFoundCode, what string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(notFoundCode, what+" not found")
	}
	return apperr.Internal(err)
}

func requireRole(id auth.Identity, roles ...string) error {
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return apperr.Forbidden("role_required", "this action requires role "+roles[0])
}
