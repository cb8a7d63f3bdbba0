package orchestrator

import "github.com/solstice-id/authcore/internal/store"

// UserProjection is the non-sensitive view of an Identity returned to
// callers (spec §6: "created Identity projection (no secrets)").
type UserProjection struct {
	ID            string
	Email         string
	DisplayName   string
	Kind          store.IdentityKind
	Status        store.IdentityStatus
	Locale        string
	Currency      string
	PictureURL    string
	EmailVerified bool
}

func projectUser(identity store.Identity) UserProjection {
	return UserProjection{
		ID:            identity.ID.String(),
		Email:         identity.Email,
		DisplayName:   identity.DisplayName,
		Kind:          identity.Kind,
		Status:        identity.Status,
		Locale:        identity.Locale,
		Currency:      identity.Currency,
		PictureURL:    identity.PictureURL,
		EmailVerified: identity.EmailVerified,
	}
}

// LoginOutcome is the tagged union returned by Login, VerifyMFA, and
// FederatedLogin (spec §9: "replace dynamic payload maps with tagged
// variants" for LoginResult).
type LoginOutcome interface {
	isLoginOutcome()
}

// Challenged is returned when a second factor must be verified before
// tokens are issued. No access or refresh token is present.
type Challenged struct {
	ChallengeToken string
	MFAType        string
	User           UserProjection
}

func (Challenged) isLoginOutcome() {}

// Authenticated is returned on full success: an access/refresh pair has
// been issued and a Session persisted.
type Authenticated struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	User             UserProjection
	DeviceTrustToken string // "" unless remember-device was requested
}

func (Authenticated) isLoginOutcome() {}

// RegistrationInput is the payload for Register (spec §6 register op).
type RegistrationInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Kind     store.IdentityKind
	Locale   string
	Currency string
}
