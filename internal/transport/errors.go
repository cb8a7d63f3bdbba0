package transport

import (
	"errors"
	"net/http"

	"github.com/solstice-id/authcore/internal/auth"
	"github.com/solstice-id/authcore/internal/mfa"
	"github.com/solstice-id/authcore/internal/orchestrator"
)

// writeDomainError maps a domain error onto the wire code + HTTP status of
// spec §7's taxonomy. Anything unrecognized is an Internal error: logged
// with a correlation id via observability.Capture by the caller and never
// disclosed verbatim.
func writeDomainError(w http.ResponseWriter, err error) {
	var locked *orchestrator.AccountLockedError
	switch {
	case errors.As(err, &locked):
		respondJSON(w, http.StatusForbidden, map[string]any{
			"error":        "account_locked",
			"locked_until": locked.LockedUntil,
		})
	case errors.Is(err, orchestrator.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, orchestrator.ErrEmailNotVerified):
		respondError(w, http.StatusForbidden, "email_not_verified")
	case errors.Is(err, orchestrator.ErrAccountInactive):
		respondError(w, http.StatusForbidden, "account_inactive")
	case errors.Is(err, orchestrator.ErrInvalidMFA):
		respondError(w, http.StatusUnauthorized, "invalid_mfa")
	case errors.Is(err, orchestrator.ErrChallengeExpired):
		respondError(w, http.StatusUnauthorized, "challenge_expired")
	case errors.Is(err, orchestrator.ErrInvalidRefresh):
		respondError(w, http.StatusUnauthorized, "invalid_refresh")
	case errors.Is(err, orchestrator.ErrAssertionInvalid):
		respondError(w, http.StatusBadRequest, "assertion_invalid")
	case errors.Is(err, orchestrator.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, "duplicate_email")
	case errors.Is(err, orchestrator.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid_input")
	case errors.Is(err, orchestrator.ErrTokenInvalid):
		respondError(w, http.StatusBadRequest, "token_invalid")
	case errors.Is(err, orchestrator.ErrTokenExpired):
		respondError(w, http.StatusBadRequest, "token_expired")
	case errors.Is(err, orchestrator.ErrAlreadyVerified):
		respondError(w, http.StatusConflict, "already_verified")
	case errors.Is(err, orchestrator.ErrIdentityNotFound):
		respondError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, mfa.ErrAlreadyEnabled):
		respondError(w, http.StatusConflict, "already_enabled")
	case errors.Is(err, mfa.ErrNotEnabled):
		respondError(w, http.StatusConflict, "not_enabled")
	case errors.Is(err, mfa.ErrInvalidCode):
		respondError(w, http.StatusUnauthorized, "invalid_mfa")
	case errors.Is(err, auth.ErrWeakPassword):
		respondError(w, http.StatusBadRequest, "invalid_input")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

// isInternalError reports whether err falls outside spec §7's recognized
// domain taxonomy, meaning it must be logged with a correlation id rather
// than silently mapped to a 4xx.
func isInternalError(err error) bool {
	var locked *orchestrator.AccountLockedError
	switch {
	case errors.As(err, &locked),
		errors.Is(err, orchestrator.ErrInvalidCredentials),
		errors.Is(err, orchestrator.ErrEmailNotVerified),
		errors.Is(err, orchestrator.ErrAccountInactive),
		errors.Is(err, orchestrator.ErrInvalidMFA),
		errors.Is(err, orchestrator.ErrChallengeExpired),
		errors.Is(err, orchestrator.ErrInvalidRefresh),
		errors.Is(err, orchestrator.ErrAssertionInvalid),
		errors.Is(err, orchestrator.ErrDuplicateEmail),
		errors.Is(err, orchestrator.ErrInvalidInput),
		errors.Is(err, orchestrator.ErrTokenInvalid),
		errors.Is(err, orchestrator.ErrTokenExpired),
		errors.Is(err, orchestrator.ErrAlreadyVerified),
		errors.Is(err, orchestrator.ErrIdentityNotFound),
		errors.Is(err, mfa.ErrAlreadyEnabled),
		errors.Is(err, mfa.ErrNotEnabled),
		errors.Is(err, mfa.ErrInvalidCode),
		errors.Is(err, auth.ErrWeakPassword):
		return false
	default:
		return true
	}
}
