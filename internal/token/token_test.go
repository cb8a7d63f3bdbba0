package token_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solstice-id/authcore/internal/clock"
	"github.com/solstice-id/authcore/internal/token"
)

func newService(t *testing.T, c *clock.Fixed) *token.Service {
	t.Helper()
	return token.New(token.Config{
		SigningKey: []byte("test-signing-key-not-for-prod"),
		KeyID:      "v1",
		Clock:      c,
	})
}

func TestAccessToken_RoundTrip(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, c)
	id := uuid.New()

	tok, err := svc.IssueAccessToken(id, "a@x.test")
	require.NoError(t, err)

	claims, err := svc.Verify(tok, token.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Subject)
	assert.Equal(t, "a@x.test", claims.Email)
}

func TestVerify_CrossFamilyRejected(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, c)
	id := uuid.New()

	refresh, err := svc.IssueRefreshToken(id, "a@x.test")
	require.NoError(t, err)

	_, err = svc.Verify(refresh, token.TypeAccess)
	assert.ErrorIs(t, err, token.ErrWrongFamily)
}

func TestChallengeToken_ExpiresAfterFiveMinutes(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, c)
	id := uuid.New()

	tok, err := svc.IssueChallengeToken(id, "a@x.test", token.FactorTOTP)
	require.NoError(t, err)

	c.Set(c.Now().Add(5*time.Minute - time.Second))
	claims, err := svc.Verify(tok, token.TypeTemp)
	require.NoError(t, err)
	assert.Equal(t, token.FactorTOTP, claims.MFAType)
	assert.True(t, claims.MFAPending)

	c.Set(c.Now().Add(2 * time.Second))
	_, err = svc.Verify(tok, token.TypeTemp)
	assert.ErrorIs(t, err, token.ErrExpiredToken)
}

func TestRefreshToken_HasFreshJTI(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, c)
	id := uuid.New()

	a, err := svc.IssueRefreshToken(id, "a@x.test")
	require.NoError(t, err)
	b, err := svc.IssueRefreshToken(id, "a@x.test")
	require.NoError(t, err)

	claimsA, err := svc.Verify(a, token.TypeRefresh)
	require.NoError(t, err)
	claimsB, err := svc.Verify(b, token.TypeRefresh)
	require.NoError(t, err)

	assert.NotEqual(t, claimsA.JTI, claimsB.JTI)
}

func TestDeviceTrustToken_CarriesMFAVerified(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, c)
	id := uuid.New()

	tok, err := svc.IssueDeviceTrustToken(id, "a@x.test")
	require.NoError(t, err)

	claims, err := svc.Verify(tok, token.TypeMFASession)
	require.NoError(t, err)
	assert.True(t, claims.MFAVerified)
	assert.Equal(t, id, claims.Subject)
}

func TestHashRefreshToken_Deterministic(t *testing.T) {
	h1 := token.HashRefreshToken("opaque-value")
	h2 := token.HashRefreshToken("opaque-value")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex-encoded sha256
}
