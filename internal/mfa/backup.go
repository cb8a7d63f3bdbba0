package mfa

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/solstice-id/authcore/internal/auth"
	"github.com/solstice-id/authcore/internal/store"
)

// generateBackupCodes returns count cryptographically random 8-digit
// numeric codes (spec §4.3: "ten 8-digit numeric backup codes").
func generateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := 0; i < count; i++ {
		var b strings.Builder
		for d := 0; d < 8; d++ {
			n, err := rand.Int(rand.Reader, big.NewInt(10))
			if err != nil {
				return nil, fmt.Errorf("mfa: generate backup code: %w", err)
			}
			b.WriteByte(byte('0') + byte(n.Int64()))
		}
		codes[i] = b.String()
	}
	return codes, nil
}

func (e *Engine) decryptBackupCodes(identity store.Identity) ([]string, error) {
	if identity.BackupCodesCT == "" {
		return nil, nil
	}
	plaintext, err := e.keys.OpenWithKeyID(identity.BackupCodesKeyID, identity.BackupCodesCT)
	if err != nil {
		return nil, fmt.Errorf("mfa: decrypt backup codes: %w", err)
	}
	if plaintext == "" {
		return nil, nil
	}
	return strings.Split(plaintext, ","), nil
}

// verifyBackupCode performs a constant-time membership check against the
// decrypted code list and, on a match, re-encrypts and persists the list
// with the used code removed (spec §4.3: "each code is usable exactly
// once").
func (e *Engine) verifyBackupCode(ctx context.Context, identity store.Identity, code string) (bool, error) {
	codes, err := e.decryptBackupCodes(identity)
	if err != nil {
		return false, err
	}

	matchIdx := -1
	for i, c := range codes {
		if auth.SecureCompare(c, code) {
			matchIdx = i
		}
	}
	if matchIdx == -1 {
		return false, nil
	}

	remaining := append(codes[:matchIdx:matchIdx], codes[matchIdx+1:]...)
	ciphertext, keyID, err := e.keys.SealCurrent(strings.Join(remaining, ","))
	if err != nil {
		return false, fmt.Errorf("mfa: reseal backup codes: %w", err)
	}

	if _, err := e.store.ApplyProfileUpdate(ctx, identity.ID, store.IdentityPatch{
		BackupCodesCT:    &ciphertext,
		BackupCodesKeyID: &keyID,
	}); err != nil {
		return false, fmt.Errorf("mfa: persist backup codes: %w", err)
	}
	return true, nil
}

// VerifyBackupCode exposes a standalone backup-code check (the
// `backup_verify` operation of spec §6), independent of TOTP fallback.
func (e *Engine) VerifyBackupCode(ctx context.Context, identityID uuid.UUID, code, ip, userAgent string) (bool, error) {
	identity, err := e.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("mfa: load identity: %w", err)
	}

	ok, err := e.verifyBackupCode(ctx, identity, code)
	if err != nil {
		return false, err
	}
	_ = e.appendAttempt(ctx, identityID, store.MethodBackup, ok, ip, userAgent)
	return ok, nil
}
