package apperr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFrom_WrappedTaxonomyError(t *testing.T) {
	base := NotFound("job_not_found", "job not found")
	wrapped := errors.Wrap(base, "load job")

	got := From(wrapped)
	require.Equal(t, KindNotFound, got.Kind)
	assert.Equal(t, "job_not_found", got.Code)
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindForbidden))
}

func TestFrom_PlainErrorIsInternal(t *testing.T) {
	got := From(errors.New("connection reset"))
	assert.Equal(t, KindInternal, got.Kind)
	assert.Equal(t, "internal", got.Code)
}

func TestWrite_HidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	err := External(errors.New("dial tcp 10.0.0.1:443: i/o timeout"), "payout_rail_error", "payout rail unavailable")

	Write(rec, zap.NewNop(), err)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")

	var b struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "payout_rail_error", b.Error.Code)
	assert.Equal(t, "payout rail unavailable", b.Error.Message)
}

func TestWrite_RetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, nil, RateLimited("offer_cooldown", "wait", 90*time.Second+200*time.Millisecond))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "91", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"retry_after":91`)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindUnauthenticated: http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindPrecondition:    http.StatusConflict,
		KindConflict:        http.StatusConflict,
		KindRateLimited:     http.StatusTooManyRequests,
		KindExternal:        http.StatusBadGateway,
		KindInconsistent:    http.StatusInternalServerError,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind)
	}
}
