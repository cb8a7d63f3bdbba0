// Package mfa implements the MFA Engine: TOTP enrollment/verification,
// encrypted backup codes, and transient email-OTP codes (spec §4.3).
package mfa

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/solstice-id/authcore/internal/clock"
	"github.com/solstice-id/authcore/internal/crypto"
	"github.com/solstice-id/authcore/internal/mailer"
	"github.com/solstice-id/authcore/internal/store"
)

// Errors surfaced by Engine methods; domain callers translate these into
// the wire error taxonomy of spec §7.
var (
	ErrAlreadyEnabled = errors.New("mfa: already enabled")
	ErrNotEnabled     = errors.New("mfa: not enabled")
	ErrInvalidCode    = errors.New("mfa: invalid code")
)

// Config carries the settings the Engine needs beyond its collaborators.
type Config struct {
	Issuer string
}

// Engine owns TOTP, backup-code, and email-OTP state for identities.
type Engine struct {
	store  store.Store
	keys   *crypto.KeyRing
	mailer mailer.Mailer
	clock  clock.Clock
	cfg    Config
}

// New constructs an Engine.
func New(st store.Store, keys *crypto.KeyRing, m mailer.Mailer, c clock.Clock, cfg Config) *Engine {
	if c == nil {
		c = clock.Real{}
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "Solstice"
	}
	return &Engine{store: st, keys: keys, mailer: m, clock: c, cfg: cfg}
}

// Status summarizes which factors are active for an identity.
type Status struct {
	TOTPEnabled           bool
	EmailMFAEnabled       bool
	BackupCodesRemaining  int
}

// StatusFor returns the current MFA status for identityID.
func (e *Engine) StatusFor(ctx context.Context, identityID uuid.UUID) (Status, error) {
	identity, err := e.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return Status{}, fmt.Errorf("mfa: load identity: %w", err)
	}

	remaining := 0
	if identity.TOTPEnabled && identity.BackupCodesCT != "" {
		codes, err := e.decryptBackupCodes(identity)
		if err == nil {
			remaining = len(codes)
		}
	}

	return Status{
		TOTPEnabled:          identity.TOTPEnabled,
		EmailMFAEnabled:      identity.EmailMFAEnabled,
		BackupCodesRemaining: remaining,
	}, nil
}

// appendAttempt records a verification attempt and returns any storage
// failure; the Engine's callers discard that error, so the audit write
// never changes a caller's success/failure determination.
func (e *Engine) appendAttempt(ctx context.Context, identityID uuid.UUID, method store.MFAMethod, success bool, ip, userAgent string) error {
	return e.store.AppendMFAAttempt(ctx, store.MFAAttempt{
		IdentityID: identityID,
		Method:     method,
		Success:    success,
		IP:         ip,
		UserAgent:  userAgent,
	})
}
