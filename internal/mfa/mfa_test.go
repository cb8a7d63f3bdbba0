package mfa_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/solstice-id/authcore/internal/clock"
	"github.com/solstice-id/authcore/internal/crypto"
	"github.com/solstice-id/authcore/internal/mailer"
	"github.com/solstice-id/authcore/internal/mfa"
	"github.com/solstice-id/authcore/internal/store"
	"github.com/solstice-id/authcore/internal/store/memory"
)

// recordingMailer captures the last message sent, for tests that need to
// recover the plaintext OTP code handed to the Mailer.
type recordingMailer struct {
	mu       sync.Mutex
	lastText string
}

func (m *recordingMailer) Deliver(ctx context.Context, to, subject, bodyHTML, bodyText string) (mailer.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastText = bodyText
	return mailer.StatusOK, nil
}

func (m *recordingMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastText
}

func setup(t *testing.T) (*mfa.Engine, *memory.Store, *recordingMailer, *clock.Fixed) {
	t.Helper()
	st := memory.New()
	key, err := crypto.GenerateKeyHex()
	require.NoError(t, err)
	dek, err := crypto.ParseKeyHex("k1", key)
	require.NoError(t, err)
	ring := crypto.NewKeyRing(dek)
	m := &recordingMailer{}
	c := clock.NewFixed(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	engine := mfa.New(st, ring, m, c, mfa.Config{Issuer: "Solstice Test"})
	return engine, st, m, c
}

func seedIdentity(t *testing.T, st *memory.Store, email string) store.Identity {
	t.Helper()
	id, err := st.CreateIdentity(context.Background(), store.Identity{
		Email:  email,
		Status: store.StatusActive,
	})
	require.NoError(t, err)
	return id
}

func TestTOTPEnroll_FinalizeRequiresFreshCode(t *testing.T) {
	engine, st, _, c := setup(t)
	identity := seedIdentity(t, st, "totp@example.com")
	ctx := context.Background()

	enrollment, err := engine.BeginTOTPEnrollment(ctx, identity.ID, identity.Email)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.NotEmpty(t, enrollment.ProvisioningURI)
	require.NotEmpty(t, enrollment.QRCodePNG)
	require.Len(t, enrollment.BackupCodes, 10)

	status, err := engine.StatusFor(ctx, identity.ID)
	require.NoError(t, err)
	require.False(t, status.TOTPEnabled)

	code, err := totp.GenerateCodeCustom(enrollment.Secret, c.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	require.NoError(t, engine.FinalizeTOTPEnrollment(ctx, identity.ID, code))

	status, err = engine.StatusFor(ctx, identity.ID)
	require.NoError(t, err)
	require.True(t, status.TOTPEnabled)
	require.Equal(t, 10, status.BackupCodesRemaining)
}

func TestTOTPFinalize_WrongCodeFails(t *testing.T) {
	engine, st, _, _ := setup(t)
	identity := seedIdentity(t, st, "wrong@example.com")
	ctx := context.Background()

	_, err := engine.BeginTOTPEnrollment(ctx, identity.ID, identity.Email)
	require.NoError(t, err)

	err = engine.FinalizeTOTPEnrollment(ctx, identity.ID, "000000")
	require.ErrorIs(t, err, mfa.ErrInvalidCode)
}

func TestTOTPFinalize_AlreadyEnabledRejected(t *testing.T) {
	engine, st, _, c := setup(t)
	identity := seedIdentity(t, st, "already@example.com")
	ctx := context.Background()

	enrollment, err := engine.BeginTOTPEnrollment(ctx, identity.ID, identity.Email)
	require.NoError(t, err)
	code, err := totp.GenerateCodeCustom(enrollment.Secret, c.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	require.NoError(t, engine.FinalizeTOTPEnrollment(ctx, identity.ID, code))

	err = engine.FinalizeTOTPEnrollment(ctx, identity.ID, code)
	require.ErrorIs(t, err, mfa.ErrAlreadyEnabled)
}

func TestVerifyTOTPOrBackup_StepSkewAndFallback(t *testing.T) {
	engine, st, _, c := setup(t)
	identity := seedIdentity(t, st, "skew@example.com")
	ctx := context.Background()

	enrollment, err := engine.BeginTOTPEnrollment(ctx, identity.ID, identity.Email)
	require.NoError(t, err)
	code, err := totp.GenerateCodeCustom(enrollment.Secret, c.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	require.NoError(t, engine.FinalizeTOTPEnrollment(ctx, identity.ID, code))

	// One step (30s) behind still validates within the +/-1 skew window.
	lateCode, err := totp.GenerateCodeCustom(enrollment.Secret, c.Now().Add(-30*time.Second), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	ok, err := engine.VerifyTOTPOrBackup(ctx, identity.ID, lateCode, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.True(t, ok)

	// Three steps (90s) away is outside the skew window and falls through to the
	// backup-code path, which also fails for a non-matching code.
	farCode, err := totp.GenerateCodeCustom(enrollment.Secret, c.Now().Add(-90*time.Second), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	ok, err = engine.VerifyTOTPOrBackup(ctx, identity.ID, farCode, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.False(t, ok)

	// A valid backup code succeeds via the fallback path.
	ok, err = engine.VerifyTOTPOrBackup(ctx, identity.ID, enrollment.BackupCodes[0], "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.True(t, ok)

	attempts := st.Attempts()
	require.Len(t, attempts, 3)
	require.Equal(t, store.MethodTOTP, attempts[0].Method)
	require.True(t, attempts[0].Success)
	require.Equal(t, store.MethodTOTP, attempts[1].Method)
	require.False(t, attempts[1].Success)
	require.Equal(t, store.MethodBackup, attempts[2].Method)
	require.True(t, attempts[2].Success)
}

func TestBackupCode_SingleUse(t *testing.T) {
	engine, st, _, c := setup(t)
	identity := seedIdentity(t, st, "backup@example.com")
	ctx := context.Background()

	enrollment, err := engine.BeginTOTPEnrollment(ctx, identity.ID, identity.Email)
	require.NoError(t, err)
	code, err := totp.GenerateCodeCustom(enrollment.Secret, c.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	require.NoError(t, engine.FinalizeTOTPEnrollment(ctx, identity.ID, code))

	used := enrollment.BackupCodes[3]
	ok, err := engine.VerifyBackupCode(ctx, identity.ID, used, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.VerifyBackupCode(ctx, identity.ID, used, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.False(t, ok)

	status, err := engine.StatusFor(ctx, identity.ID)
	require.NoError(t, err)
	require.Equal(t, 9, status.BackupCodesRemaining)
}

func TestDisableTOTP_ClearsSecretAndBackupCodes(t *testing.T) {
	engine, st, _, c := setup(t)
	identity := seedIdentity(t, st, "disable@example.com")
	ctx := context.Background()

	enrollment, err := engine.BeginTOTPEnrollment(ctx, identity.ID, identity.Email)
	require.NoError(t, err)
	code, err := totp.GenerateCodeCustom(enrollment.Secret, c.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	require.NoError(t, engine.FinalizeTOTPEnrollment(ctx, identity.ID, code))

	disableCode, err := totp.GenerateCodeCustom(enrollment.Secret, c.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	require.NoError(t, engine.DisableTOTP(ctx, identity.ID, disableCode))

	status, err := engine.StatusFor(ctx, identity.ID)
	require.NoError(t, err)
	require.False(t, status.TOTPEnabled)
	require.Equal(t, 0, status.BackupCodesRemaining)

	// A second disable fails: there is no enabled TOTP left to verify against.
	err = engine.DisableTOTP(ctx, identity.ID, disableCode)
	require.ErrorIs(t, err, mfa.ErrInvalidCode)
}

func TestEmailOTP_SendVerifyAndExpiry(t *testing.T) {
	engine, st, mail, c := setup(t)
	identity := seedIdentity(t, st, "otp@example.com")
	ctx := context.Background()

	require.NoError(t, engine.EnableEmailMFA(ctx, identity.ID))
	status, err := engine.StatusFor(ctx, identity.ID)
	require.NoError(t, err)
	require.True(t, status.EmailMFAEnabled)

	require.NoError(t, engine.SendEmailOTP(ctx, identity.ID, identity.Email))
	sent := mail.last()
	require.Contains(t, sent, "verification code is")

	code := extractCode(sent)
	require.Len(t, code, 6)

	ok, err := engine.VerifyEmailOTP(ctx, identity.ID, "000000", "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = engine.VerifyEmailOTP(ctx, identity.ID, code, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.True(t, ok)

	// Same code cannot be consumed twice.
	ok, err = engine.VerifyEmailOTP(ctx, identity.ID, code, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.False(t, ok)

	// A fresh code expires after 5 minutes.
	require.NoError(t, engine.SendEmailOTP(ctx, identity.ID, identity.Email))
	expiredCode := extractCode(mail.last())
	c.Advance(6 * time.Minute)
	ok, err = engine.VerifyEmailOTP(ctx, identity.ID, expiredCode, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmailOTP_ResendKeepsPriorCodeValid(t *testing.T) {
	engine, st, mail, _ := setup(t)
	identity := seedIdentity(t, st, "resend@example.com")
	ctx := context.Background()

	require.NoError(t, engine.SendEmailOTP(ctx, identity.ID, identity.Email))
	firstCode := extractCode(mail.last())

	require.NoError(t, engine.SendEmailOTP(ctx, identity.ID, identity.Email))
	secondCode := extractCode(mail.last())
	require.NotEqual(t, firstCode, secondCode)

	// VerifyEmailOTP compares only against the most recent usable code, so
	// the newer code verifies first. Resending does not mark the older code
	// used: once the newer one is consumed, the older one is the most recent
	// usable code and verifies until its own expiry.
	ok, err := engine.VerifyEmailOTP(ctx, identity.ID, secondCode, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.VerifyEmailOTP(ctx, identity.ID, firstCode, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, engine.SendEmailOTP(ctx, identity.ID, identity.Email))
	thirdCode := extractCode(mail.last())
	ok, err = engine.VerifyEmailOTP(ctx, identity.ID, thirdCode, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDisableEmailMFA_RequiresEnabled(t *testing.T) {
	engine, st, _, _ := setup(t)
	identity := seedIdentity(t, st, "noenable@example.com")
	ctx := context.Background()

	err := engine.DisableEmailMFA(ctx, identity.ID)
	require.ErrorIs(t, err, mfa.ErrNotEnabled)

	require.NoError(t, engine.EnableEmailMFA(ctx, identity.ID))
	require.NoError(t, engine.DisableEmailMFA(ctx, identity.ID))

	status, err := engine.StatusFor(ctx, identity.ID)
	require.NoError(t, err)
	require.False(t, status.EmailMFAEnabled)
}

func extractCode(body string) string {
	const marker = "verification code is "
	idx := -1
	for i := 0; i+len(marker) <= len(body); i++ {
		if body[i:i+len(marker)] == marker {
			idx = i + len(marker)
			break
		}
	}
	if idx == -1 || idx+6 > len(body) {
		return ""
	}
	return body[idx : idx+6]
}
