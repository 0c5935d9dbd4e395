package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubTokens struct {
	userID uuid.UUID
	err    error
}

func (s *stubTokens) ValidateToken(_ context.Context, _ string) (uuid.UUID, string, error) {
	return s.userID, models.RoleClient, s.err
}

type stubUsers map[uuid.UUID]*models.User

func (s stubUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

// identityHandler writes the caller's role (for assertions).
var identityHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromCtx(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(id.Role))
})

func serve(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAuthenticate_UsesStoredRole(t *testing.T) {
	u := &models.User{ID: uuid.New(), Name: "Ravi", Role: models.RoleWorker}
	h := Authenticate(&stubTokens{userID: u.ID}, stubUsers{u.ID: u}, nil)(identityHandler)

	rec := serve(h, "Bearer good")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.RoleWorker, rec.Body.String())
}

func TestAuthenticate_Rejects(t *testing.T) {
	known := uuid.New()
	users := stubUsers{known: {ID: known, Role: models.RoleClient}}

	tests := []struct {
		name   string
		tokens *stubTokens
		authz  string
	}{
		{"missing header", &stubTokens{userID: known}, ""},
		{"wrong scheme", &stubTokens{userID: known}, "Basic abc"},
		{"invalid token", &stubTokens{err: auth.ErrInvalidToken}, "Bearer bad"},
		{"unknown user", &stubTokens{userID: uuid.New()}, "Bearer good"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(Authenticate(tt.tokens, users, nil)(identityHandler), tt.authz)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"unauthenticated"`)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(nil, models.RoleAdmin)(identityHandler)

	rec := serve(h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), auth.Identity{UserID: uuid.New(), Role: models.RoleWorker}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "role_required")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), auth.Identity{UserID: uuid.New(), Role: models.RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
