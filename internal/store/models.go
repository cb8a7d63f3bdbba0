// Package store defines the Credential Store contract: transactional
// access to identities, sessions, email OTPs, and MFA attempt records.
package store

import (
	"time"

	"github.com/google/uuid"
)

// IdentityKind mirrors the identities.kind check constraint.
type IdentityKind string

const (
	KindIndividual IdentityKind = "individual"
	KindBusiness   IdentityKind = "business"
)

// IdentityStatus mirrors the identities.status check constraint.
type IdentityStatus string

const (
	StatusPendingVerification IdentityStatus = "pending_verification"
	StatusActive              IdentityStatus = "active"
	StatusInactive            IdentityStatus = "inactive"
	StatusSuspended           IdentityStatus = "suspended"
)

// Provider records how an Identity authenticates.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderBoth   Provider = "both"
)

// Identity is the persistent user record (spec §3).
type Identity struct {
	ID          uuid.UUID
	Email       string
	Phone       string
	DisplayName string
	Kind        IdentityKind
	Status      IdentityStatus
	Locale      string
	Currency    string
	PictureURL  string

	PasswordHash string // empty for federated-only identities

	EmailVerified            bool
	EmailVerificationToken   string
	EmailVerificationExpires *time.Time

	FederatedID string // IdP's provider_uid, empty if not linked
	Provider    Provider

	TOTPSecretCT    string // ciphertext, base64, "" if not enrolled
	TOTPKeyID       string
	TOTPEnabled     bool
	BackupCodesCT   string // ciphertext over comma-joined plaintext codes
	BackupCodesKeyID string
	EmailMFAEnabled bool

	FailedLoginCount int
	LockedUntil      *time.Time

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
	DeletedAt    *time.Time
}

// IsDeleted reports whether the identity is soft-deleted.
func (i Identity) IsDeleted() bool { return i.DeletedAt != nil }

// Session is a server-side row for one issued refresh token (spec §3).
type Session struct {
	ID               uuid.UUID
	IdentityID       uuid.UUID
	RefreshTokenHash string // hex SHA-256
	IsActive         bool
	ExpiresAt        time.Time
	DeviceMeta       []byte // opaque JSON, may be nil
	CreatedAt        time.Time
	LastUsedAt       time.Time
}

// EmailOTP is a pending email-delivered MFA code (spec §3).
type EmailOTP struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	CodeHash   string
	ExpiresAt  time.Time
	Used       bool
	CreatedAt  time.Time
}

// MFAMethod enumerates the factor used in an MfaAttempt.
type MFAMethod string

const (
	MethodTOTP   MFAMethod = "totp"
	MethodEmail  MFAMethod = "email"
	MethodBackup MFAMethod = "backup"
)

// MFAAttempt is an append-only audit row (spec §3).
type MFAAttempt struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Method     MFAMethod
	Success    bool
	IP         string
	UserAgent  string
	CreatedAt  time.Time
}

// IdentityPatch is a partial update to an Identity; nil fields are left
// unchanged. Used by apply_profile_update and the various MFA/lockout
// mutation paths so the Store never needs a bespoke method per field.
type IdentityPatch struct {
	DisplayName *string
	Phone       *string
	Locale      *string
	Currency    *string
	PictureURL  *string

	PasswordHash *string

	Status                   *IdentityStatus
	EmailVerified            *bool
	EmailVerificationToken   *string
	EmailVerificationExpires *time.Time
	ClearEmailVerification   bool

	FederatedID *string
	Provider    *Provider

	TOTPSecretCT     *string
	TOTPKeyID        *string
	TOTPEnabled      *bool
	BackupCodesCT    *string
	BackupCodesKeyID *string
	EmailMFAEnabled  *bool
	ClearTOTPSecret  bool
	ClearBackupCodes bool

	FailedLoginCount *int
	LockedUntil      *time.Time
	ClearLockedUntil bool

	LastLoginAt *time.Time
}
