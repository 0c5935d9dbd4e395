package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/logger"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository"
)

type contextKey string

const ctxIdentityKey contextKey = "identity"

// TokenValidator checks a bearer token and returns its subject.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
}

// UserLookup resolves the token subject to the stored user.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authenticate validates the Bearer token and attaches the caller's
// auth.Identity to the request context. The role comes from the stored
// user, so a role switch takes effect without a new token.
func Authenticate(tokens TokenValidator, users UserLookup, log *zap.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				apperr.Write(w, log, apperr.Unauthenticated("missing or malformed Authorization header"))
				return
			}

			userID, _, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				apperr.Write(w, log, apperr.Wrap(err, apperr.KindUnauthenticated, "unauthenticated", "invalid or expired token"))
				return
			}

			u, err := users.GetByID(r.Context(), userID)
			if errors.Is(err, repository.ErrNotFound) {
				apperr.Write(w, log, apperr.Unauthenticated("unknown user"))
				return
			}
			if err != nil {
				apperr.Write(w, log, apperr.Internal(err))
				return
			}

			id := auth.Identity{UserID: u.ID, Name: u.Name, Role: u.Role}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(log *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromCtx(r.Context())
			if !ok {
				apperr.Write(w, log, apperr.Unauthenticated("authentication required"))
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			apperr.Write(w, log, apperr.Forbidden("role_required", "this action requires role "+strings.Join(roles, " or ")))
		})
	}
}

// IdentityFromCtx returns the authenticated caller.
func IdentityFromCtx(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(ctxIdentityKey).(auth.Identity)
	return id, ok
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
