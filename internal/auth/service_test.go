package auth

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	id := uuid.New()

	tok, err := svc.IssueToken(context.Background(), id, "worker")
	require.NoError(t, err)

	gotID, role, err := svc.ValidateToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "worker", role)
}

func TestValidate_Expired(t *testing.T) {
	svc := NewService("test-secret", time.Minute)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := svc.IssueToken(context.Background(), uuid.New(), "client")
	require.NoError(t, err)

	svc.now = time.Now
	_, _, err = svc.ValidateToken(context.Background(), tok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestValidate_WrongSecret(t *testing.T) {
	tok, err := NewService("one", time.Hour).IssueToken(context.Background(), uuid.New(), "client")
	require.NoError(t, err)

	_, _, err = NewService("two", time.Hour).ValidateToken(context.Background(), tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestValidate_RejectsNoneAlg(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: uuid.NewString()})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = NewService("s", time.Hour).ValidateToken(context.Background(), raw)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
