package auth

import (
	"time"

	"github.com/solstice-id/authcore/internal/store"
)

// Outcome is the tagged union the Authenticator returns, replacing the
// dynamic result maps the teacher's AuthService builds ad hoc.
type Outcome interface {
	isAuthOutcome()
}

// OK carries the verified identity.
type OK struct {
	Identity store.Identity
}

func (OK) isAuthOutcome() {}

// InvalidCredentials covers both "no such user" and "wrong password", by
// design indistinguishable to the caller (spec §4.2: no user-enumeration
// side channel).
type InvalidCredentials struct{}

func (InvalidCredentials) isAuthOutcome() {}

// EmailNotVerified is the more specific outcome for pending_verification
// identities.
type EmailNotVerified struct{}

func (EmailNotVerified) isAuthOutcome() {}

// AccountLocked reports when the lockout window clears.
type AccountLocked struct {
	LockedUntil time.Time
}

func (AccountLocked) isAuthOutcome() {}

// AccountInactive covers any other non-active status.
type AccountInactive struct{}

func (AccountInactive) isAuthOutcome() {}
