package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solstice-id/authcore/internal/auth"
	"github.com/solstice-id/authcore/internal/clock"
	"github.com/solstice-id/authcore/internal/store"
	"github.com/solstice-id/authcore/internal/store/memory"
)

func setup(t *testing.T) (*auth.Authenticator, *memory.Store, *clock.Fixed) {
	t.Helper()
	st := memory.New()
	c := clock.NewFixed(time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC))
	hasher := auth.NewBcryptHasher(4) // low cost for fast tests
	a := auth.New(st, hasher, c, auth.Config{LockoutThreshold: 5, LockoutDuration: 15 * time.Minute})
	return a, st, c
}

func seedActiveIdentity(t *testing.T, st *memory.Store, hasher auth.PasswordHasher, email, password string) store.Identity {
	t.Helper()
	hash, err := hasher.Hash(password)
	require.NoError(t, err)
	status := store.StatusActive
	id, err := st.CreateIdentity(context.Background(), store.Identity{
		Email:        email,
		PasswordHash: hash,
		Status:       status,
	})
	require.NoError(t, err)
	return id
}

func TestAuthenticate_UnknownEmail_NoEnumeration(t *testing.T) {
	a, _, _ := setup(t)
	outcome, err := a.Authenticate(context.Background(), "nobody@x.test", "whatever")
	require.NoError(t, err)
	assert.IsType(t, auth.InvalidCredentials{}, outcome)
}

func TestAuthenticate_WrongPassword_SameOutcomeAsUnknownEmail(t *testing.T) {
	a, st, _ := setup(t)
	hasher := auth.NewBcryptHasher(4)
	seedActiveIdentity(t, st, hasher, "a@x.test", "CorrectHorse1!")

	outcome, err := a.Authenticate(context.Background(), "a@x.test", "wrong")
	require.NoError(t, err)
	assert.IsType(t, auth.InvalidCredentials{}, outcome)
}

func TestAuthenticate_Success(t *testing.T) {
	a, st, _ := setup(t)
	hasher := auth.NewBcryptHasher(4)
	identity := seedActiveIdentity(t, st, hasher, "a@x.test", "CorrectHorse1!")

	outcome, err := a.Authenticate(context.Background(), "a@x.test", "CorrectHorse1!")
	require.NoError(t, err)
	ok, isOK := outcome.(auth.OK)
	require.True(t, isOK)
	assert.Equal(t, identity.ID, ok.Identity.ID)
}

func TestAuthenticate_PendingVerification(t *testing.T) {
	a, st, _ := setup(t)
	hasher := auth.NewBcryptHasher(4)
	hash, _ := hasher.Hash("CorrectHorse1!")
	_, err := st.CreateIdentity(context.Background(), store.Identity{
		Email:        "pending@x.test",
		PasswordHash: hash,
		Status:       store.StatusPendingVerification,
	})
	require.NoError(t, err)

	outcome, err := a.Authenticate(context.Background(), "pending@x.test", "CorrectHorse1!")
	require.NoError(t, err)
	assert.IsType(t, auth.EmailNotVerified{}, outcome)
}

func TestAuthenticate_Suspended(t *testing.T) {
	a, st, _ := setup(t)
	hasher := auth.NewBcryptHasher(4)
	hash, _ := hasher.Hash("CorrectHorse1!")
	_, err := st.CreateIdentity(context.Background(), store.Identity{
		Email:        "suspended@x.test",
		PasswordHash: hash,
		Status:       store.StatusSuspended,
	})
	require.NoError(t, err)

	outcome, err := a.Authenticate(context.Background(), "suspended@x.test", "CorrectHorse1!")
	require.NoError(t, err)
	assert.IsType(t, auth.AccountInactive{}, outcome)
}

func TestAuthenticate_LockoutAfterThreshold(t *testing.T) {
	a, st, c := setup(t)
	hasher := auth.NewBcryptHasher(4)
	seedActiveIdentity(t, st, hasher, "a@x.test", "CorrectHorse1!")

	for i := 0; i < 5; i++ {
		outcome, err := a.Authenticate(context.Background(), "a@x.test", "wrong")
		require.NoError(t, err)
		assert.IsType(t, auth.InvalidCredentials{}, outcome)
	}

	// Sixth attempt, even with the correct password, observes the lock.
	outcome, err := a.Authenticate(context.Background(), "a@x.test", "CorrectHorse1!")
	require.NoError(t, err)
	locked, isLocked := outcome.(auth.AccountLocked)
	require.True(t, isLocked)

	expectedUntil := c.Now().Truncate(time.Minute).Add(15 * time.Minute)
	assert.WithinDuration(t, expectedUntil, locked.LockedUntil, time.Second)
}

func TestAuthenticate_LockClearsAfterDuration(t *testing.T) {
	a, st, c := setup(t)
	hasher := auth.NewBcryptHasher(4)
	seedActiveIdentity(t, st, hasher, "a@x.test", "CorrectHorse1!")

	for i := 0; i < 5; i++ {
		_, err := a.Authenticate(context.Background(), "a@x.test", "wrong")
		require.NoError(t, err)
	}

	c.Advance(16 * time.Minute)

	outcome, err := a.Authenticate(context.Background(), "a@x.test", "CorrectHorse1!")
	require.NoError(t, err)
	assert.IsType(t, auth.OK{}, outcome)
}
