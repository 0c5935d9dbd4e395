package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/workmandi/backend/internal/apperr"
	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/middleware"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, "invalid_request", "invalid JSON body")
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid_request", "invalid "+name)
	}
	return id, nil
}

func identity(r *http.Request) (auth.Identity, error) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		return auth.Identity{}, apperr.Unauthenticated("authentication required")
	}
	return id, nil
}
