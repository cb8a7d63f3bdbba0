package mfa

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/solstice-id/authcore/internal/store"
)

const emailOTPTTL = 5 * time.Minute

// EnableEmailMFA flips email_mfa_enabled; no secret material is required
// (spec §4.3 "Email OTP").
func (e *Engine) EnableEmailMFA(ctx context.Context, identityID uuid.UUID) error {
	enabled := true
	_, err := e.store.ApplyProfileUpdate(ctx, identityID, store.IdentityPatch{EmailMFAEnabled: &enabled})
	if err != nil {
		return fmt.Errorf("mfa: enable email mfa: %w", err)
	}
	return nil
}

// DisableEmailMFA flips email_mfa_enabled off.
func (e *Engine) DisableEmailMFA(ctx context.Context, identityID uuid.UUID) error {
	identity, err := e.store.FindIdentityByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("mfa: load identity: %w", err)
	}
	if !identity.EmailMFAEnabled {
		return ErrNotEnabled
	}
	disabled := false
	if _, err := e.store.ApplyProfileUpdate(ctx, identityID, store.IdentityPatch{EmailMFAEnabled: &disabled}); err != nil {
		return fmt.Errorf("mfa: disable email mfa: %w", err)
	}
	return nil
}

// SendEmailOTP generates a uniformly random 6-digit code, stores its slow
// hash with a 5-minute expiry, and hands the plaintext to the Mailer.
// Delivery is best-effort: the code is stored before delivery, so a mail
// failure (returned as an error) does not prevent the code from existing and
// being verifiable (spec §4.6 step 4, §7).
func (e *Engine) SendEmailOTP(ctx context.Context, identityID uuid.UUID, email string) error {
	code, err := randomNumericCode(6)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("mfa: hash email otp: %w", err)
	}

	if _, err := e.store.InsertEmailOTP(ctx, store.EmailOTP{
		IdentityID: identityID,
		CodeHash:   string(hash),
		ExpiresAt:  e.clock.Now().Add(emailOTPTTL),
	}); err != nil {
		return fmt.Errorf("mfa: store email otp: %w", err)
	}

	if e.mailer != nil {
		subject := "Your verification code"
		text := fmt.Sprintf("Your verification code is %s. It expires in 5 minutes.", code)
		if _, mailErr := e.mailer.Deliver(ctx, email, subject, "", text); mailErr != nil {
			return fmt.Errorf("mfa: deliver email otp (code was still issued): %w", mailErr)
		}
	}
	return nil
}

// VerifyEmailOTP consumes at most one code per identity, preferring the
// most recent usable one (spec §4.3).
func (e *Engine) VerifyEmailOTP(ctx context.Context, identityID uuid.UUID, code, ip, userAgent string) (bool, error) {
	_, err := e.store.ConsumeEmailOTP(ctx, identityID, e.clock.Now(), func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
	})

	success := err == nil
	_ = e.appendAttempt(ctx, identityID, store.MethodEmail, success, ip, userAgent)

	if err != nil {
		if err == store.ErrEmailOTPNotFound {
			return false, nil
		}
		return false, fmt.Errorf("mfa: verify email otp: %w", err)
	}
	return true, nil
}

func randomNumericCode(digits int) (string, error) {
	var b strings.Builder
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("mfa: generate code: %w", err)
		}
		b.WriteByte(byte('0') + byte(n.Int64()))
	}
	return b.String(), nil
}
