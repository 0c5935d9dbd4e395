package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmandi/backend/internal/auth"
	"github.com/workmandi/backend/internal/handlers"
	"github.com/workmandi/backend/internal/models"
	"github.com/workmandi/backend/internal/repository/memrepo"
	"github.com/workmandi/backend/internal/services"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type nopRail struct{}

func (nopRail) Initiate(_ context.Context, in services.PayoutInstruction) (*services.PayoutAck, error) {
	return &services.PayoutAck{TransactionID: in.TransactionID, Status: services.PayoutStatusPending}, nil
}

type testServer struct {
	*httptest.Server
	store  *memrepo.Store
	tokens auth.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memrepo.New()
	tokens := auth.NewService("test-secret", time.Hour)

	commissions := services.NewCommissionService(store.Commissions(), store.Jobs(), nil)
	settlement := services.NewSettlementService(store.Jobs(), store.Wallets(), commissions, nil)
	jobs := services.NewJobService(store.Jobs(), settlement, nil)
	offers := services.NewOfferService(store.Jobs(), store.Users(), services.DefaultOfferCooldown, nil)
	users := services.NewUserService(store.Users(), store.Jobs(), nil)
	wallets := services.NewWalletService(store.Wallets())
	payouts := services.NewPayoutService(store.Withdrawals(), store.Wallets(), nopRail{}, nil)

	h := New(Handlers{
		Jobs:        handlers.NewJobHandler(jobs, offers, nil),
		Users:       handlers.NewUserHandler(users, wallets, payouts, nil),
		Admin:       handlers.NewAdminHandler(users, payouts, commissions, nil),
		Commissions: handlers.NewCommissionHandler(commissions, nil),
		Webhooks:    handlers.NewWebhookHandler(payouts, "", nil),
	}, Deps{Tokens: tokens, Users: store.Users(), Health: stubPinger{}})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, tokens: tokens}
}

func (s *testServer) user(t *testing.T, u *models.User) string {
	t.Helper()
	stored := s.store.AddUser(u)
	tok, err := s.tokens.IssueToken(context.Background(), stored.ID, stored.Role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, resp, &body)
	return body.Error.Code
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp := srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := httptest.NewServer(New(Handlers{}, Deps{Health: stubPinger{err: errors.New("db down")}}))
	defer down.Close()
	r, err := http.Get(down.URL + "/healthz")
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, r.StatusCode)
}

func TestAuthenticationRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", errorCode(t, resp))

	resp = srv.do(t, http.MethodGet, "/api/v1/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv := newTestServer(t)
	client := srv.user(t, &models.User{Name: "Asha", Role: models.RoleClient})
	admin := srv.user(t, &models.User{Name: "Ops", Role: models.RoleAdmin})

	resp := srv.do(t, http.MethodGet, "/api/v1/admin/withdrawals", client, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/v1/admin/withdrawals?status=pending", admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJobFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	wid := "48213"
	client := srv.user(t, &models.User{Name: "Asha", Role: models.RoleClient})
	workerUser := srv.store.AddUser(&models.User{
		Name:           "Ravi",
		Role:           models.RoleWorker,
		Verification:   models.VerificationApproved,
		PublicWorkerID: &wid,
	})
	worker, err := srv.tokens.IssueToken(context.Background(), workerUser.ID, workerUser.Role)
	require.NoError(t, err)

	resp := srv.do(t, http.MethodPost, "/api/v1/jobs", client, map[string]any{
		"title":    "Paint bedroom",
		"address":  "4 Park Street",
		"pincode":  "700016",
		"budget":   1000,
		"category": "painting",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var job models.Job
	decode(t, resp, &job)
	require.Equal(t, models.JobStatusOpen, job.Status)
	base := "/api/v1/jobs/" + job.ID.String()

	resp = srv.do(t, http.MethodPost, base+"/offers", worker, map[string]any{"amount": 950, "message": "tomorrow 9am"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, base+"/offers", worker, map[string]any{"amount": 900})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "offer_cooldown", errorCode(t, resp))

	resp = srv.do(t, http.MethodGet, base+"/cooldown", worker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cd struct {
		CanOffer   bool  `json:"can_offer"`
		RetryAfter int64 `json:"retry_after"`
	}
	decode(t, resp, &cd)
	assert.False(t, cd.CanOffer)
	assert.Greater(t, cd.RetryAfter, int64(0))

	resp = srv.do(t, http.MethodPost, base+"/offers/"+workerUser.ID.String()+"/accept", worker, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "only the owner accepts")

	resp = srv.do(t, http.MethodPost, base+"/offers/"+workerUser.ID.String()+"/accept", client, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &job)
	assert.Equal(t, models.JobStatusAssigned, job.Status)

	resp = srv.do(t, http.MethodPatch, base, client, map[string]any{"title": "Paint two rooms"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "job_locked", errorCode(t, resp))

	resp = srv.do(t, http.MethodPost, base+"/done", worker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, base+"/pay", client, map[string]string{"method": "upi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &job)
	assert.Equal(t, models.JobStatusCompleted, job.Status)

	resp = srv.do(t, http.MethodPost, base+"/pay", client, map[string]string{"method": "upi"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/v1/wallet", worker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var wallet models.Wallet
	decode(t, resp, &wallet)
	assert.Equal(t, models.Money(90000), wallet.Balance)
	assert.Equal(t, models.Money(90000), wallet.Available)
}

func TestWebhookIsPublic(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/api/v1/webhooks/payout", "", map[string]string{
		"transaction_id": "wd_" + uuid.NewString(),
		"status":         "SUCCESS",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "withdrawal_not_found", errorCode(t, resp))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	resp := srv.do(t, http.MethodGet, "/api/v1/nope", srv.user(t, &models.User{Name: "A", Role: models.RoleClient}), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
