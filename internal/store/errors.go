package store

import "errors"

// Sentinel errors returned by Store implementations. Callers (internal/auth,
// internal/mfa, internal/orchestrator) translate these into the domain error
// taxonomy of spec §7; they are never surfaced to a client verbatim.
var (
	ErrDuplicateEmail      = errors.New("store: duplicate email")
	ErrDuplicateFederated  = errors.New("store: duplicate federated id")
	ErrNotFound            = errors.New("store: not found")
	ErrSessionNotFound     = errors.New("store: session not found")
	ErrSessionInactive     = errors.New("store: session inactive")
	ErrEmailOTPNotFound    = errors.New("store: no usable email otp")
)
