package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solstice-id/authcore/internal/store"
	"github.com/solstice-id/authcore/internal/store/memory"
)

func TestCreateIdentity_DuplicateEmail(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.CreateIdentity(ctx, store.Identity{Email: "a@x.test"})
	require.NoError(t, err)

	_, err = s.CreateIdentity(ctx, store.Identity{Email: "a@x.test"})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestRotateSession_ExactlyOneWinner(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	identityID := uuid.New()

	root, err := s.InsertSession(ctx, store.Session{
		IdentityID:       identityID,
		RefreshTokenHash: "hash-root",
		ExpiresAt:        time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_ = root

	const n = 20
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.RotateSession(ctx, "hash-root", store.Session{
				IdentityID:       identityID,
				RefreshTokenHash: uuid.NewString(),
				ExpiresAt:        time.Now().Add(time.Hour),
			})
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one concurrent rotation should succeed")

	_, err = s.FindActiveSession(ctx, "hash-root", time.Now())
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestConsumeEmailOTP_SingleUse(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	identityID := uuid.New()

	otp, err := s.InsertEmailOTP(ctx, store.EmailOTP{
		IdentityID: identityID,
		CodeHash:   "hash-of-123456",
		ExpiresAt:  time.Now().Add(5 * time.Minute),
	})
	require.NoError(t, err)

	verify := func(hash string) bool { return hash == otp.CodeHash }

	consumed, err := s.ConsumeEmailOTP(ctx, identityID, time.Now(), verify)
	require.NoError(t, err)
	assert.True(t, consumed.Used)

	_, err = s.ConsumeEmailOTP(ctx, identityID, time.Now(), verify)
	assert.ErrorIs(t, err, store.ErrEmailOTPNotFound, "second verification of the same code must fail")
}

func TestConsumeEmailOTP_PicksMostRecentUsable(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	identityID := uuid.New()

	_, err := s.InsertEmailOTP(ctx, store.EmailOTP{
		IdentityID: identityID,
		CodeHash:   "old",
		ExpiresAt:  time.Now().Add(5 * time.Minute),
	})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = s.InsertEmailOTP(ctx, store.EmailOTP{
		IdentityID: identityID,
		CodeHash:   "new",
		ExpiresAt:  time.Now().Add(5 * time.Minute),
	})
	require.NoError(t, err)

	consumed, err := s.ConsumeEmailOTP(ctx, identityID, time.Now(), func(hash string) bool {
		return hash == "new"
	})
	require.NoError(t, err)
	assert.Equal(t, "new", consumed.CodeHash)
}

func TestConsumeEmailOTP_ExpiredRejected(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	identityID := uuid.New()

	_, err := s.InsertEmailOTP(ctx, store.EmailOTP{
		IdentityID: identityID,
		CodeHash:   "hash",
		ExpiresAt:  time.Now().Add(-time.Second),
	})
	require.NoError(t, err)

	_, err = s.ConsumeEmailOTP(ctx, identityID, time.Now(), func(string) bool { return true })
	assert.ErrorIs(t, err, store.ErrEmailOTPNotFound)
}

func TestApplyProfileUpdate_NotFound(t *testing.T) {
	s := memory.New()
	_, err := s.ApplyProfileUpdate(context.Background(), uuid.New(), store.IdentityPatch{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSoftDeleteIdentity_HidesFromLookups(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	id, err := s.CreateIdentity(ctx, store.Identity{Email: "gone@x.test"})
	require.NoError(t, err)

	require.NoError(t, s.SoftDeleteIdentity(ctx, id.ID))

	_, err = s.FindIdentityByEmail(ctx, "gone@x.test")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindIdentityByID(ctx, id.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateIdentity_AllowsEmailAndFederatedIDReuseAfterSoftDelete(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	first, err := s.CreateIdentity(ctx, store.Identity{
		Email:       "reuse@x.test",
		FederatedID: "google-uid-reuse",
	})
	require.NoError(t, err)
	require.NoError(t, s.SoftDeleteIdentity(ctx, first.ID))

	second, err := s.CreateIdentity(ctx, store.Identity{
		Email:       "reuse@x.test",
		FederatedID: "google-uid-reuse",
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}
