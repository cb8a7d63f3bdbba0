package mfa

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/solstice-id/authcore/internal/store"
)

// TOTPEnrollment is returned by BeginTOTPEnrollment; Secret is plaintext
// and must never be persisted or logged, only shown once to the user.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
	BackupCodes     []string
}

// BeginTOTPEnrollment generates a fresh TOTP secret and ten backup codes,
// encrypts both, and persists them without enabling TOTP (spec §4.3
// "Enrollment"). A subsequent FinalizeTOTPEnrollment call with a fresh code
// is required before totp_enabled flips true.
func (e *Engine) BeginTOTPEnrollment(ctx context.Context, identityID uuid.UUID, email string) (TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.cfg.Issuer,
		AccountName: email,
	})
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("mfa: generate totp key: %w", err)
	}

	qr, err := renderQR(key)
	if err != nil {
		return TOTPEnrollment{}, err
	}

	codes, err := generateBackupCodes(10)
	if err != nil {
		return TOTPEnrollment{}, err
	}

	secretCT, secretKeyID, err := e.keys.SealCurrent(key.Secret())
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("mfa: seal totp secret: %w", err)
	}
	backupCT, backupKeyID, err := e.keys.SealCurrent(strings.Join(codes, ","))
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("mfa: seal backup codes: %w", err)
	}

	disabled := false
	if _, err := e.store.ApplyProfileUpdate(ctx, identityID, store.IdentityPatch{
		TOTPSecretCT:     &secretCT,
		TOTPKeyID:        &secretKeyID,
		TOTPEnabled:      &disabled,
		BackupCodesCT:    &backupCT,
		BackupCodesKeyID: &backupKeyID,
	}); err != nil {
		return TOTPEnrollment{}, fmt.Errorf("mfa: persist enrollment: %w", err)
	}

	return TOTPEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodePNG:       qr,
		BackupCodes:     codes,
	}, nil
}

// FinalizeTOTPEnrollment verifies a fresh code against the pending secret
// and, on success, flips totp_enabled. Returns ErrAlreadyEnabled (not a
// silent re-enroll) if TOTP is already active.
func (e *Engine) FinalizeTOTPEnrollment(ctx context.Context, identityID uuid.UUID, code string) error {
	identity, err := e.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("mfa: load identity: %w", err)
	}
	if identity.TOTPEnabled {
		return ErrAlreadyEnabled
	}
	if identity.TOTPSecretCT == "" {
		return ErrNotEnabled
	}

	secret, err := e.keys.OpenWithKeyID(identity.TOTPKeyID, identity.TOTPSecretCT)
	if err != nil {
		return fmt.Errorf("mfa: decrypt totp secret: %w", err)
	}

	if !e.validateTOTP(code, secret) {
		return ErrInvalidCode
	}

	enabled := true
	if _, err := e.store.ApplyProfileUpdate(ctx, identityID, store.IdentityPatch{TOTPEnabled: &enabled}); err != nil {
		return fmt.Errorf("mfa: enable totp: %w", err)
	}
	return nil
}

// DisableTOTP requires a currently valid code; on success it clears both
// the TOTP secret and the backup codes (spec §4.3 "Disable").
func (e *Engine) DisableTOTP(ctx context.Context, identityID uuid.UUID, code string) error {
	identity, err := e.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("mfa: load identity: %w", err)
	}
	if !identity.TOTPEnabled || identity.TOTPSecretCT == "" {
		return ErrInvalidCode
	}

	secret, err := e.keys.OpenWithKeyID(identity.TOTPKeyID, identity.TOTPSecretCT)
	if err != nil {
		return fmt.Errorf("mfa: decrypt totp secret: %w", err)
	}
	if !e.validateTOTP(code, secret) {
		return ErrInvalidCode
	}

	if _, err := e.store.ApplyProfileUpdate(ctx, identityID, store.IdentityPatch{
		ClearTOTPSecret:  true,
		ClearBackupCodes: true,
	}); err != nil {
		return fmt.Errorf("mfa: disable totp: %w", err)
	}
	return nil
}

// VerifyTOTPOrBackup implements spec §4.3's precedence rule: try the TOTP
// code first; on failure, try it as a backup code. Logs exactly one
// MfaAttempt per call, tagged with whichever method actually matched (or
// "totp" if neither did).
func (e *Engine) VerifyTOTPOrBackup(ctx context.Context, identityID uuid.UUID, code, ip, userAgent string) (bool, error) {
	identity, err := e.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("mfa: load identity: %w", err)
	}
	if !identity.TOTPEnabled || identity.TOTPSecretCT == "" {
		return false, ErrNotEnabled
	}

	secret, err := e.keys.OpenWithKeyID(identity.TOTPKeyID, identity.TOTPSecretCT)
	if err != nil {
		return false, fmt.Errorf("mfa: decrypt totp secret: %w", err)
	}

	if e.validateTOTP(code, secret) {
		_ = e.appendAttempt(ctx, identityID, store.MethodTOTP, true, ip, userAgent)
		return true, nil
	}

	ok, err := e.verifyBackupCode(ctx, identity, code)
	if err != nil {
		return false, err
	}
	if ok {
		_ = e.appendAttempt(ctx, identityID, store.MethodBackup, true, ip, userAgent)
		return true, nil
	}

	_ = e.appendAttempt(ctx, identityID, store.MethodTOTP, false, ip, userAgent)
	return false, nil
}

// validateTOTP checks code against secret within a +/-1 step (30s) window,
// evaluated at the Engine's injected clock time rather than time.Now().
func (e *Engine) validateTOTP(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, e.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

func renderQR(key *otp.Key) ([]byte, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("mfa: render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("mfa: encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}
