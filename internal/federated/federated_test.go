package federated_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solstice-id/authcore/internal/federated"
	"github.com/solstice-id/authcore/internal/store"
	"github.com/solstice-id/authcore/internal/store/memory"
)

type fakeVerifier struct {
	assertion federated.Assertion
	err       error
}

func (f fakeVerifier) Verify(ctx context.Context, opaqueToken string) (federated.Assertion, error) {
	return f.assertion, f.err
}

func TestResolve_AutoProvisionsNewIdentity(t *testing.T) {
	st := memory.New()
	verifier := fakeVerifier{assertion: federated.Assertion{
		ProviderUID:   "google-uid-1",
		Email:         "new@example.com",
		EmailVerified: true,
		DisplayName:   "New Person",
		PictureURL:    "https://example.com/pic.png",
	}}
	adapter := federated.New(st, map[string]federated.Verifier{"google": verifier})

	identity, err := adapter.Resolve(context.Background(), "google", "auth-code")
	require.NoError(t, err)
	require.Equal(t, "new@example.com", identity.Email)
	require.Equal(t, store.StatusActive, identity.Status)
	require.True(t, identity.EmailVerified)
	require.Equal(t, "google-uid-1", identity.FederatedID)
	require.Equal(t, store.Provider("google"), identity.Provider)
	require.Equal(t, "en", identity.Locale)
	require.Equal(t, "USD", identity.Currency)
}

func TestResolve_AutoProvisionHonorsUnverifiedAssertion(t *testing.T) {
	st := memory.New()
	verifier := fakeVerifier{assertion: federated.Assertion{
		ProviderUID:   "google-uid-unverified",
		Email:         "unverified@example.com",
		EmailVerified: false,
		DisplayName:   "Unverified Person",
	}}
	adapter := federated.New(st, map[string]federated.Verifier{"google": verifier})

	identity, err := adapter.Resolve(context.Background(), "google", "auth-code")
	require.NoError(t, err)
	require.False(t, identity.EmailVerified)
}

func TestResolve_FindsByFederatedIDOnSecondLogin(t *testing.T) {
	st := memory.New()
	verifier := fakeVerifier{assertion: federated.Assertion{
		ProviderUID: "google-uid-2",
		Email:       "repeat@example.com",
	}}
	adapter := federated.New(st, map[string]federated.Verifier{"google": verifier})
	ctx := context.Background()

	first, err := adapter.Resolve(ctx, "google", "code-1")
	require.NoError(t, err)

	second, err := adapter.Resolve(ctx, "google", "code-2")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestResolve_LinksExistingEmailAndPromotesToBoth(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	existing, err := st.CreateIdentity(ctx, store.Identity{
		Email:        "linked@example.com",
		Status:       store.StatusActive,
		PasswordHash: "bcrypt-hash",
		Provider:     store.ProviderLocal,
	})
	require.NoError(t, err)

	verifier := fakeVerifier{assertion: federated.Assertion{
		ProviderUID: "google-uid-3",
		Email:       "linked@example.com",
	}}
	adapter := federated.New(st, map[string]federated.Verifier{"google": verifier})

	identity, err := adapter.Resolve(ctx, "google", "code")
	require.NoError(t, err)
	require.Equal(t, existing.ID, identity.ID)
	require.Equal(t, "google-uid-3", identity.FederatedID)
	require.Equal(t, store.ProviderBoth, identity.Provider)
}

func TestResolve_LinksExistingEmailWithoutPassword(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	existing, err := st.CreateIdentity(ctx, store.Identity{
		Email:  "nopass@example.com",
		Status: store.StatusActive,
	})
	require.NoError(t, err)

	verifier := fakeVerifier{assertion: federated.Assertion{
		ProviderUID: "google-uid-4",
		Email:       "nopass@example.com",
	}}
	adapter := federated.New(st, map[string]federated.Verifier{"google": verifier})

	identity, err := adapter.Resolve(ctx, "google", "code")
	require.NoError(t, err)
	require.Equal(t, existing.ID, identity.ID)
	require.Equal(t, store.Provider("google"), identity.Provider)
}

func TestResolve_UnknownProviderRejected(t *testing.T) {
	st := memory.New()
	adapter := federated.New(st, map[string]federated.Verifier{})

	_, err := adapter.Resolve(context.Background(), "facebook", "code")
	require.ErrorIs(t, err, federated.ErrAssertionInvalid)
}

func TestResolve_VerifierFailureRejected(t *testing.T) {
	st := memory.New()
	verifier := fakeVerifier{err: assertionErr{}}
	adapter := federated.New(st, map[string]federated.Verifier{"google": verifier})

	_, err := adapter.Resolve(context.Background(), "google", "bad-code")
	require.ErrorIs(t, err, federated.ErrAssertionInvalid)
}

type assertionErr struct{}

func (assertionErr) Error() string { return "verifier failed" }
