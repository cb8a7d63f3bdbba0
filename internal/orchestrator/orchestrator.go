// Package orchestrator implements the Login Orchestrator: the public state
// machine combining the Authenticator, MFA Engine, Token Service, and
// Federated Login Adapter into the login/verify_mfa/refresh/logout protocol
// of spec §4.6.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/solstice-id/authcore/internal/auth"
	"github.com/solstice-id/authcore/internal/clock"
	"github.com/solstice-id/authcore/internal/federated"
	"github.com/solstice-id/authcore/internal/mailer"
	"github.com/solstice-id/authcore/internal/mfa"
	"github.com/solstice-id/authcore/internal/store"
	"github.com/solstice-id/authcore/internal/token"
)

// Config carries the settings the Orchestrator needs beyond its
// collaborators.
type Config struct {
	RefreshTTL time.Duration
	// VerificationTTL bounds how long an email_verification_token stays
	// redeemable; zero defaults to 24h (spec: original_source's
	// verification_expires window).
	VerificationTTL time.Duration
}

// Orchestrator is the composition root tying the Credential Store,
// Authenticator, MFA Engine, Token Service, and Federated Login Adapter
// together (spec §2: "Control flow: the Transport invokes the
// Orchestrator; the Orchestrator drives the Authenticator, then the MFA
// Engine, then the Token Service").
type Orchestrator struct {
	store         store.Store
	authenticator *auth.Authenticator
	hasher        auth.PasswordHasher
	mfa           *mfa.Engine
	tokens        *token.Service
	federated     *federated.Adapter
	mailer        mailer.Mailer
	clock         clock.Clock
	cfg           Config
}

// New constructs an Orchestrator.
func New(st store.Store, authenticator *auth.Authenticator, hasher auth.PasswordHasher, mfaEngine *mfa.Engine, tokens *token.Service, fed *federated.Adapter, m mailer.Mailer, c clock.Clock, cfg Config) *Orchestrator {
	if c == nil {
		c = clock.Real{}
	}
	if cfg.VerificationTTL == 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Orchestrator{store: st, authenticator: authenticator, hasher: hasher, mfa: mfaEngine, tokens: tokens, federated: fed, mailer: m, clock: c, cfg: cfg}
}

// Login implements the login operation (spec §4.6 "Transitions on
// login").
func (o *Orchestrator) Login(ctx context.Context, email, password, deviceTrustToken string) (LoginOutcome, error) {
	outcome, err := o.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: authenticate: %w", err)
	}

	identity, err := translateAuthOutcome(outcome)
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	if err := auth.ResetFailures(ctx, o.store, identity.ID, now); err != nil {
		return nil, fmt.Errorf("orchestrator: reset failures: %w", err)
	}

	if deviceTrustToken != "" {
		if claims, err := o.tokens.Verify(deviceTrustToken, token.TypeMFASession); err == nil && claims.Subject == identity.ID {
			return o.issueAuthenticated(ctx, identity, false)
		}
	}

	return o.challengeOrIssue(ctx, identity)
}

// translateAuthOutcome maps the Authenticator's tagged union onto either
// the resolved Identity or a spec §6 sentinel error.
func translateAuthOutcome(outcome auth.Outcome) (store.Identity, error) {
	switch o := outcome.(type) {
	case auth.OK:
		return o.Identity, nil
	case auth.InvalidCredentials:
		return store.Identity{}, ErrInvalidCredentials
	case auth.EmailNotVerified:
		return store.Identity{}, ErrEmailNotVerified
	case auth.AccountLocked:
		return store.Identity{}, &AccountLockedError{LockedUntil: o.LockedUntil}
	case auth.AccountInactive:
		return store.Identity{}, ErrAccountInactive
	default:
		return store.Identity{}, fmt.Errorf("orchestrator: unrecognized auth outcome %T", outcome)
	}
}

// challengeOrIssue implements spec §4.6 login steps 4-6: it queries MFA
// status and either emits a challenge or issues tokens directly.
func (o *Orchestrator) challengeOrIssue(ctx context.Context, identity store.Identity) (LoginOutcome, error) {
	status, err := o.mfa.StatusFor(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load mfa status: %w", err)
	}

	switch {
	case status.TOTPEnabled:
		return o.issueChallengeOutcome(ctx, identity, token.FactorTOTP)
	case status.EmailMFAEnabled:
		outcome, err := o.issueChallengeOutcome(ctx, identity, token.FactorEmail)
		if err != nil {
			return nil, err
		}
		if sendErr := o.mfa.SendEmailOTP(ctx, identity.ID, identity.Email); sendErr != nil {
			slog.Warn("email mfa otp delivery failed, login challenge still issued", "identity_id", identity.ID, "error", sendErr)
		}
		return outcome, nil
	default:
		return o.issueAuthenticated(ctx, identity, false)
	}
}

func (o *Orchestrator) issueChallengeOutcome(ctx context.Context, identity store.Identity, factor token.MFAFactor) (LoginOutcome, error) {
	challengeToken, err := o.tokens.IssueChallengeToken(identity.ID, identity.Email, factor)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: issue challenge token: %w", err)
	}
	return Challenged{
		ChallengeToken: challengeToken,
		MFAType:        string(factor),
		User:           projectUser(identity),
	}, nil
}

// issueAuthenticated mints an access/refresh pair, persists the Session,
// and optionally mints a device-trust token (spec §4.6 step 6).
func (o *Orchestrator) issueAuthenticated(ctx context.Context, identity store.Identity, rememberDevice bool) (LoginOutcome, error) {
	accessToken, err := o.tokens.IssueAccessToken(identity.ID, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: issue access token: %w", err)
	}
	refreshToken, err := o.tokens.IssueRefreshToken(identity.ID, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: issue refresh token: %w", err)
	}

	now := o.clock.Now()
	if _, err := o.store.InsertSession(ctx, store.Session{
		IdentityID:       identity.ID,
		RefreshTokenHash: token.HashRefreshToken(refreshToken),
		ExpiresAt:        now.Add(o.cfg.RefreshTTL),
	}); err != nil {
		return nil, fmt.Errorf("orchestrator: persist session: %w", err)
	}

	result := Authenticated{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		User:         projectUser(identity),
	}

	if rememberDevice {
		deviceTrustToken, err := o.tokens.IssueDeviceTrustToken(identity.ID, identity.Email)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: issue device trust token: %w", err)
		}
		result.DeviceTrustToken = deviceTrustToken
	}
	return result, nil
}

// VerifyMFA implements "Transitions on verify_mfa" (spec §4.6).
func (o *Orchestrator) VerifyMFA(ctx context.Context, challengeToken, code, ip, userAgent string, rememberDevice bool) (LoginOutcome, error) {
	claims, err := o.tokens.Verify(challengeToken, token.TypeTemp)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return nil, ErrChallengeExpired
		}
		return nil, ErrInvalidMFA
	}

	identity, err := o.store.FindIdentityByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidMFA
	}
	if identity.Status != store.StatusActive {
		return nil, ErrInvalidMFA
	}

	var ok bool
	switch claims.MFAType {
	case token.FactorTOTP:
		ok, err = o.mfa.VerifyTOTPOrBackup(ctx, identity.ID, code, ip, userAgent)
	case token.FactorEmail:
		ok, err = o.mfa.VerifyEmailOTP(ctx, identity.ID, code, ip, userAgent)
	default:
		return nil, ErrInvalidMFA
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: verify mfa code: %w", err)
	}
	if !ok {
		return nil, ErrInvalidMFA
	}

	return o.issueAuthenticated(ctx, identity, rememberDevice)
}

// Refresh implements "refresh": rotates a single-use refresh token (spec
// §4.4 row 2, §5 "exactly one success"). On detected reuse of a
// rotated/logged-out token, every active session for the identity is
// revoked rather than just the one token (the stronger REDESIGN FLAG
// policy of spec §9, chosen over the source's narrower behavior).
func (o *Orchestrator) Refresh(ctx context.Context, refreshToken string) (LoginOutcome, error) {
	claims, err := o.tokens.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	oldHash := token.HashRefreshToken(refreshToken)
	now := o.clock.Now()

	if _, err := o.store.FindActiveSession(ctx, oldHash, now); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			if revokeErr := o.store.RevokeAllSessions(ctx, claims.Subject); revokeErr != nil {
				return nil, fmt.Errorf("orchestrator: cascade revoke on reuse: %w", revokeErr)
			}
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("orchestrator: load session: %w", err)
	}

	identity, err := o.store.FindIdentityByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	newAccessToken, err := o.tokens.IssueAccessToken(identity.ID, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: issue access token: %w", err)
	}
	newRefreshToken, err := o.tokens.IssueRefreshToken(identity.ID, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: issue refresh token: %w", err)
	}

	if _, err := o.store.RotateSession(ctx, oldHash, store.Session{
		IdentityID:       identity.ID,
		RefreshTokenHash: token.HashRefreshToken(newRefreshToken),
		ExpiresAt:        now.Add(o.cfg.RefreshTTL),
	}); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("orchestrator: rotate session: %w", err)
	}

	return Authenticated{
		AccessToken:  newAccessToken,
		RefreshToken: newRefreshToken,
		TokenType:    "bearer",
		User:         projectUser(identity),
	}, nil
}

// Logout implements "logout": deactivating an already-inactive or unknown
// session is idempotent (spec §6 lists no errors for this operation).
func (o *Orchestrator) Logout(ctx context.Context, refreshToken string) error {
	hash := token.HashRefreshToken(refreshToken)
	if err := o.store.DeactivateSessionByHash(ctx, hash); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("orchestrator: logout: %w", err)
	}
	return nil
}

// FederatedLogin implements "Transitions on federated_login": resolve via
// the Federated Login Adapter, then proceed from step 3 of login.
func (o *Orchestrator) FederatedLogin(ctx context.Context, provider, opaqueToken, deviceTrustToken string) (LoginOutcome, error) {
	identity, err := o.federated.Resolve(ctx, provider, opaqueToken)
	if err != nil {
		if errors.Is(err, federated.ErrAssertionInvalid) {
			return nil, ErrAssertionInvalid
		}
		return nil, fmt.Errorf("orchestrator: resolve federated identity: %w", err)
	}

	now := o.clock.Now()
	if err := auth.ResetFailures(ctx, o.store, identity.ID, now); err != nil {
		return nil, fmt.Errorf("orchestrator: reset failures: %w", err)
	}

	if deviceTrustToken != "" {
		if claims, err := o.tokens.Verify(deviceTrustToken, token.TypeMFASession); err == nil && claims.Subject == identity.ID {
			return o.issueAuthenticated(ctx, identity, false)
		}
	}

	return o.challengeOrIssue(ctx, identity)
}

// TOTPSetup, TOTPFinalize, TOTPDisable, and the email-MFA/backup-code
// passthroughs below delegate directly to the MFA Engine; they exist so
// the Transport layer has a single collaborator (this Orchestrator)
// rather than needing direct access to internal/mfa.

func (o *Orchestrator) TOTPSetup(ctx context.Context, identityID uuid.UUID, email string) (mfa.TOTPEnrollment, error) {
	return o.mfa.BeginTOTPEnrollment(ctx, identityID, email)
}

func (o *Orchestrator) TOTPFinalize(ctx context.Context, identityID uuid.UUID, code string) error {
	return o.mfa.FinalizeTOTPEnrollment(ctx, identityID, code)
}

func (o *Orchestrator) TOTPDisable(ctx context.Context, identityID uuid.UUID, code string) error {
	return o.mfa.DisableTOTP(ctx, identityID, code)
}

func (o *Orchestrator) EmailMFAEnable(ctx context.Context, identityID uuid.UUID) error {
	return o.mfa.EnableEmailMFA(ctx, identityID)
}

func (o *Orchestrator) EmailMFADisable(ctx context.Context, identityID uuid.UUID) error {
	return o.mfa.DisableEmailMFA(ctx, identityID)
}

func (o *Orchestrator) EmailMFASend(ctx context.Context, identityID uuid.UUID, email string) error {
	return o.mfa.SendEmailOTP(ctx, identityID, email)
}

func (o *Orchestrator) EmailMFAVerify(ctx context.Context, identityID uuid.UUID, code, ip, userAgent string) (bool, error) {
	return o.mfa.VerifyEmailOTP(ctx, identityID, code, ip, userAgent)
}

func (o *Orchestrator) BackupVerify(ctx context.Context, identityID uuid.UUID, code, ip, userAgent string) (bool, error) {
	return o.mfa.VerifyBackupCode(ctx, identityID, code, ip, userAgent)
}

// Register creates a pending_verification Identity and dispatches a
// verification email (spec §6 register op; spec §8: "Identity is created
// by registration (status = pending_verification)").
func (o *Orchestrator) Register(ctx context.Context, in RegistrationInput) (UserProjection, error) {
	if in.Email == "" || in.Password == "" {
		return UserProjection{}, ErrInvalidInput
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return UserProjection{}, ErrInvalidInput
	}

	hash, err := o.hasher.Hash(in.Password)
	if err != nil {
		return UserProjection{}, fmt.Errorf("orchestrator: hash password: %w", err)
	}

	verificationToken := uuid.New().String()
	now := o.clock.Now()
	expires := now.Add(o.cfg.VerificationTTL)

	kind := in.Kind
	if kind == "" {
		kind = store.KindIndividual
	}

	identity, err := o.store.CreateIdentity(ctx, store.Identity{
		Email:                    in.Email,
		Phone:                    in.Phone,
		DisplayName:              in.FullName,
		Kind:                     kind,
		Status:                   store.StatusPendingVerification,
		Locale:                   in.Locale,
		Currency:                 in.Currency,
		PasswordHash:             hash,
		EmailVerified:            false,
		EmailVerificationToken:   verificationToken,
		EmailVerificationExpires: &expires,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return UserProjection{}, ErrDuplicateEmail
		}
		return UserProjection{}, fmt.Errorf("orchestrator: create identity: %w", err)
	}

	subject, bodyHTML, bodyText := verificationEmail(identity.DisplayName, verificationToken)
	if _, sendErr := o.mailer.Deliver(ctx, identity.Email, subject, bodyHTML, bodyText); sendErr != nil {
		slog.Warn("verification email delivery failed, registration still created", "identity_id", identity.ID, "error", sendErr)
	}

	return projectUser(identity), nil
}

// VerifyEmail redeems a verification token, flipping the Identity to
// active/email_verified (spec §6 verify_email op).
func (o *Orchestrator) VerifyEmail(ctx context.Context, tok string) error {
	if tok == "" {
		return ErrTokenInvalid
	}
	identity, err := o.store.FindIdentityByVerificationToken(ctx, tok)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("orchestrator: load identity by verification token: %w", err)
	}
	if identity.EmailVerified {
		return ErrAlreadyVerified
	}
	if identity.EmailVerificationExpires == nil || identity.EmailVerificationExpires.Before(o.clock.Now()) {
		return ErrTokenExpired
	}

	verified := true
	active := store.StatusActive
	if _, err := o.store.ApplyProfileUpdate(ctx, identity.ID, store.IdentityPatch{
		EmailVerified:          &verified,
		Status:                 &active,
		ClearEmailVerification: true,
	}); err != nil {
		return fmt.Errorf("orchestrator: apply verification: %w", err)
	}
	return nil
}

// ResendVerification reissues a verification token and re-sends the email
// (spec §6 resend_verification op).
func (o *Orchestrator) ResendVerification(ctx context.Context, email string) error {
	identity, err := o.store.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("orchestrator: load identity: %w", err)
	}
	if identity.EmailVerified {
		return ErrAlreadyVerified
	}

	verificationToken := uuid.New().String()
	expires := o.clock.Now().Add(o.cfg.VerificationTTL)
	if _, err := o.store.ApplyProfileUpdate(ctx, identity.ID, store.IdentityPatch{
		EmailVerificationToken:   &verificationToken,
		EmailVerificationExpires: &expires,
	}); err != nil {
		return fmt.Errorf("orchestrator: reissue verification token: %w", err)
	}

	subject, bodyHTML, bodyText := verificationEmail(identity.DisplayName, verificationToken)
	if _, err := o.mailer.Deliver(ctx, identity.Email, subject, bodyHTML, bodyText); err != nil {
		slog.Warn("verification email resend failed", "identity_id", identity.ID, "error", err)
	}
	return nil
}

func verificationEmail(displayName, verificationToken string) (subject, bodyHTML, bodyText string) {
	subject = "Verify your email"
	bodyText = fmt.Sprintf("Hi %s,\n\nYour verification token is: %s\n", displayName, verificationToken)
	bodyHTML = fmt.Sprintf("<p>Hi %s,</p><p>Your verification token is: <strong>%s</strong></p>", displayName, verificationToken)
	return subject, bodyHTML, bodyText
}
