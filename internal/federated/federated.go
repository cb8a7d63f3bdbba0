// Package federated implements the Federated Login Adapter: it takes a
// verified assertion from an external IdP verifier and resolves it to a
// local Identity (spec §4.5).
package federated

import (
	"context"
	"errors"
	"fmt"

	"github.com/solstice-id/authcore/internal/store"
)

// ErrAssertionInvalid is returned when the IdP verifier rejects the token.
var ErrAssertionInvalid = errors.New("federated: assertion invalid")

// Assertion is the verified IdP claim set the adapter resolves from. The
// adapter never talks to the IdP itself; it only consumes what a Verifier
// already validated. A Verifier that cannot determine whether the IdP's
// email is verified must report EmailVerified: true itself (spec §4.5's
// fallback), since the adapter trusts this field as given.
type Assertion struct {
	ProviderUID   string
	Email         string
	EmailVerified bool
	DisplayName   string
	PictureURL    string
}

// Verifier is the external IdP verifier contract (spec §1): exchange an
// opaque provider token for a verified Assertion.
type Verifier interface {
	Verify(ctx context.Context, opaqueToken string) (Assertion, error)
}

// Adapter resolves verified assertions to Identities.
type Adapter struct {
	store     store.Store
	verifiers map[string]Verifier
}

// New constructs an Adapter. verifiers maps a provider name (e.g. "google")
// to the Verifier that understands its tokens.
func New(st store.Store, verifiers map[string]Verifier) *Adapter {
	return &Adapter{store: st, verifiers: verifiers}
}

// Resolve verifies opaqueToken with the named provider's Verifier, then
// resolves the assertion to a local Identity using the precedence rule of
// spec §4.5: find-by-provider-id, else find-by-email-and-link, else
// auto-provision.
func (a *Adapter) Resolve(ctx context.Context, provider, opaqueToken string) (store.Identity, error) {
	verifier, ok := a.verifiers[provider]
	if !ok {
		return store.Identity{}, ErrAssertionInvalid
	}

	assertion, err := verifier.Verify(ctx, opaqueToken)
	if err != nil {
		return store.Identity{}, ErrAssertionInvalid
	}
	if assertion.ProviderUID == "" || assertion.Email == "" {
		return store.Identity{}, ErrAssertionInvalid
	}

	return a.resolveAssertion(ctx, provider, assertion)
}

func (a *Adapter) resolveAssertion(ctx context.Context, provider string, assertion Assertion) (store.Identity, error) {
	if identity, err := a.store.FindIdentityByFederatedID(ctx, assertion.ProviderUID); err == nil {
		return identity, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.Identity{}, fmt.Errorf("federated: lookup by federated id: %w", err)
	}

	if identity, err := a.store.FindIdentityByEmail(ctx, assertion.Email); err == nil {
		return a.linkExisting(ctx, identity, provider, assertion)
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.Identity{}, fmt.Errorf("federated: lookup by email: %w", err)
	}

	return a.autoProvision(ctx, provider, assertion)
}

// linkExisting sets federated_id/provider on an existing email match,
// promoting provider to "both" if a password credential is already present
// (spec §4.5 step 2).
func (a *Adapter) linkExisting(ctx context.Context, identity store.Identity, provider string, assertion Assertion) (store.Identity, error) {
	newProvider := store.Provider(provider)
	if identity.PasswordHash != "" {
		newProvider = store.ProviderBoth
	}

	federatedID := assertion.ProviderUID
	updated, err := a.store.ApplyProfileUpdate(ctx, identity.ID, store.IdentityPatch{
		FederatedID: &federatedID,
		Provider:    &newProvider,
	})
	if err != nil {
		return store.Identity{}, fmt.Errorf("federated: link existing identity: %w", err)
	}
	return updated, nil
}

// autoProvision creates a new active Identity from the assertion, with
// email_verified taken from the assertion (spec §4.5 step 3), using the
// defaults established in
// original_source's create_user_from_google: placeholder phone, locale
// "en", currency "USD".
func (a *Adapter) autoProvision(ctx context.Context, provider string, assertion Assertion) (store.Identity, error) {
	identity, err := a.store.CreateIdentity(ctx, store.Identity{
		Email:         assertion.Email,
		Phone:         "+0000000000",
		DisplayName:   assertion.DisplayName,
		Kind:          store.KindIndividual,
		Status:        store.StatusActive,
		Locale:        "en",
		Currency:      "USD",
		PictureURL:    assertion.PictureURL,
		EmailVerified: assertion.EmailVerified,
		FederatedID:   assertion.ProviderUID,
		Provider:      store.Provider(provider),
	})
	if err != nil {
		return store.Identity{}, fmt.Errorf("federated: auto-provision: %w", err)
	}
	return identity, nil
}
