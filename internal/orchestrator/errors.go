package orchestrator

import (
	"errors"
	"time"
)

// Sentinel errors matching the wire taxonomy of spec §6/§7 for the
// stateful login/session operations. MFA-enrollment pass-throughs surface
// internal/mfa's own sentinels (ErrAlreadyEnabled, ErrNotEnabled,
// ErrInvalidCode) directly rather than re-wrapping them.
var (
	ErrInvalidCredentials = errors.New("orchestrator: invalid_credentials")
	ErrEmailNotVerified   = errors.New("orchestrator: email_not_verified")
	ErrAccountInactive    = errors.New("orchestrator: account_inactive")
	ErrInvalidMFA         = errors.New("orchestrator: invalid_mfa")
	ErrChallengeExpired   = errors.New("orchestrator: challenge_expired")
	ErrInvalidRefresh     = errors.New("orchestrator: invalid_refresh")
	ErrAssertionInvalid   = errors.New("orchestrator: assertion_invalid")

	ErrDuplicateEmail   = errors.New("orchestrator: duplicate_email")
	ErrInvalidInput     = errors.New("orchestrator: invalid_input")
	ErrTokenInvalid     = errors.New("orchestrator: token_invalid")
	ErrTokenExpired     = errors.New("orchestrator: token_expired")
	ErrAlreadyVerified  = errors.New("orchestrator: already_verified")
	ErrIdentityNotFound = errors.New("orchestrator: not_found")
)

// AccountLockedError carries the lockout expiry (spec §6: account_locked
// "carries enough detail for the user to proceed").
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string { return "orchestrator: account_locked" }
