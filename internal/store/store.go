package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the Credential Store contract (spec §4.1). Every method that
// spans more than one row executes atomically from the caller's point of
// view. Extracting this interface (rather than depending on a concrete pool
// or generated query struct) is what lets internal/auth, internal/mfa, and
// internal/orchestrator be unit tested without a database; the teacher's
// AuthService could not do this, since it held a concrete *db.Queries.
type Store interface {
	// CreateIdentity fails with ErrDuplicateEmail if an active identity
	// already holds the email.
	CreateIdentity(ctx context.Context, identity Identity) (Identity, error)

	FindIdentityByEmail(ctx context.Context, email string) (Identity, error)
	FindIdentityByID(ctx context.Context, id uuid.UUID) (Identity, error)
	FindIdentityByFederatedID(ctx context.Context, federatedID string) (Identity, error)
	FindIdentityByVerificationToken(ctx context.Context, token string) (Identity, error)

	// ApplyProfileUpdate patches an identity; it is a no-op error
	// (ErrNotFound) if the identity is absent or soft-deleted.
	ApplyProfileUpdate(ctx context.Context, id uuid.UUID, patch IdentityPatch) (Identity, error)

	SoftDeleteIdentity(ctx context.Context, id uuid.UUID) error

	// InsertSession creates a new active session row.
	InsertSession(ctx context.Context, s Session) (Session, error)

	// FindActiveSession returns the session for the given refresh-token
	// hash iff it is active and unexpired as of now.
	FindActiveSession(ctx context.Context, refreshHash string, now time.Time) (Session, error)

	DeactivateSessionByHash(ctx context.Context, refreshHash string) error

	// RotateSession atomically deactivates the session for oldHash and
	// inserts newSession, so two concurrent rotations of the same refresh
	// token can never both succeed (spec §5).
	RotateSession(ctx context.Context, oldHash string, newSession Session) (Session, error)

	// RevokeAllSessions deactivates every active session for an identity;
	// used on detected refresh-token reuse (spec §9 REDESIGN FLAG).
	RevokeAllSessions(ctx context.Context, identityID uuid.UUID) error

	InsertEmailOTP(ctx context.Context, o EmailOTP) (EmailOTP, error)

	// ConsumeEmailOTP atomically verifies plaintext against the most
	// recent usable (unused, unexpired) code for identityID and flips
	// used=true iff it matches. verify is called with the stored hash and
	// must perform the slow-hash comparison.
	ConsumeEmailOTP(ctx context.Context, identityID uuid.UUID, now time.Time, verify func(codeHash string) bool) (EmailOTP, error)

	AppendMFAAttempt(ctx context.Context, a MFAAttempt) error
}
