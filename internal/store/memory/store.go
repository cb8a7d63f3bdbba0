// Package memory implements store.Store in-process, for unit tests that
// need the Store's transactional/serialization semantics without a
// database (spec §8's rotation-race and otp-consumption properties).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solstice-id/authcore/internal/store"
)

// Store is a mutex-guarded in-memory store.Store.
type Store struct {
	mu sync.Mutex

	identities map[uuid.UUID]store.Identity
	sessions   map[uuid.UUID]store.Session
	emailOTPs  map[uuid.UUID]store.EmailOTP
	attempts   []store.MFAAttempt
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		identities: make(map[uuid.UUID]store.Identity),
		sessions:   make(map[uuid.UUID]store.Session),
		emailOTPs:  make(map[uuid.UUID]store.EmailOTP),
	}
}

func (s *Store) CreateIdentity(ctx context.Context, in store.Identity) (store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.identities {
		if existing.DeletedAt == nil && existing.Email == in.Email {
			return store.Identity{}, store.ErrDuplicateEmail
		}
	}

	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.Kind == "" {
		in.Kind = store.KindIndividual
	}
	if in.Status == "" {
		in.Status = store.StatusPendingVerification
	}
	if in.Provider == "" {
		in.Provider = store.ProviderLocal
	}
	now := time.Now()
	in.CreatedAt = now
	in.UpdatedAt = now

	s.identities[in.ID] = in
	return in, nil
}

func (s *Store) FindIdentityByEmail(ctx context.Context, email string) (store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.DeletedAt == nil && i.Email == email {
			return i, nil
		}
	}
	return store.Identity{}, store.ErrNotFound
}

func (s *Store) FindIdentityByID(ctx context.Context, id uuid.UUID) (store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[id]
	if !ok || i.DeletedAt != nil {
		return store.Identity{}, store.ErrNotFound
	}
	return i, nil
}

func (s *Store) FindIdentityByFederatedID(ctx context.Context, federatedID string) (store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.DeletedAt == nil && i.FederatedID == federatedID && federatedID != "" {
			return i, nil
		}
	}
	return store.Identity{}, store.ErrNotFound
}

func (s *Store) FindIdentityByVerificationToken(ctx context.Context, token string) (store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.identities {
		if i.DeletedAt == nil && i.EmailVerificationToken == token && token != "" {
			return i, nil
		}
	}
	return store.Identity{}, store.ErrNotFound
}

func (s *Store) ApplyProfileUpdate(ctx context.Context, id uuid.UUID, p store.IdentityPatch) (store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.identities[id]
	if !ok || i.DeletedAt != nil {
		return store.Identity{}, store.ErrNotFound
	}

	if p.DisplayName != nil {
		i.DisplayName = *p.DisplayName
	}
	if p.Phone != nil {
		i.Phone = *p.Phone
	}
	if p.Locale != nil {
		i.Locale = *p.Locale
	}
	if p.Currency != nil {
		i.Currency = *p.Currency
	}
	if p.PictureURL != nil {
		i.PictureURL = *p.PictureURL
	}
	if p.PasswordHash != nil {
		i.PasswordHash = *p.PasswordHash
	}
	if p.Status != nil {
		i.Status = *p.Status
	}
	if p.EmailVerified != nil {
		i.EmailVerified = *p.EmailVerified
	}
	if p.ClearEmailVerification {
		i.EmailVerificationToken = ""
		i.EmailVerificationExpires = nil
	} else {
		if p.EmailVerificationToken != nil {
			i.EmailVerificationToken = *p.EmailVerificationToken
		}
		if p.EmailVerificationExpires != nil {
			i.EmailVerificationExpires = p.EmailVerificationExpires
		}
	}
	if p.FederatedID != nil {
		i.FederatedID = *p.FederatedID
	}
	if p.Provider != nil {
		i.Provider = *p.Provider
	}
	if p.ClearTOTPSecret {
		i.TOTPSecretCT = ""
		i.TOTPKeyID = ""
		i.TOTPEnabled = false
	} else {
		if p.TOTPSecretCT != nil {
			i.TOTPSecretCT = *p.TOTPSecretCT
		}
		if p.TOTPKeyID != nil {
			i.TOTPKeyID = *p.TOTPKeyID
		}
		if p.TOTPEnabled != nil {
			i.TOTPEnabled = *p.TOTPEnabled
		}
	}
	if p.ClearBackupCodes {
		i.BackupCodesCT = ""
		i.BackupCodesKeyID = ""
	} else {
		if p.BackupCodesCT != nil {
			i.BackupCodesCT = *p.BackupCodesCT
		}
		if p.BackupCodesKeyID != nil {
			i.BackupCodesKeyID = *p.BackupCodesKeyID
		}
	}
	if p.EmailMFAEnabled != nil {
		i.EmailMFAEnabled = *p.EmailMFAEnabled
	}
	if p.FailedLoginCount != nil {
		i.FailedLoginCount = *p.FailedLoginCount
	}
	if p.ClearLockedUntil {
		i.LockedUntil = nil
	} else if p.LockedUntil != nil {
		i.LockedUntil = p.LockedUntil
	}
	if p.LastLoginAt != nil {
		i.LastLoginAt = p.LastLoginAt
	}

	i.UpdatedAt = time.Now()
	s.identities[id] = i
	return i, nil
}

func (s *Store) SoftDeleteIdentity(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[id]
	if !ok || i.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now()
	i.DeletedAt = &now
	i.UpdatedAt = now
	s.identities[id] = i
	return nil
}

func (s *Store) InsertSession(ctx context.Context, in store.Session) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertSessionLocked(in)
}

func (s *Store) insertSessionLocked(in store.Session) (store.Session, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	now := time.Now()
	in.IsActive = true
	in.CreatedAt = now
	in.LastUsedAt = now
	s.sessions[in.ID] = in
	return in, nil
}

func (s *Store) findActiveSessionLocked(refreshHash string, now time.Time) (store.Session, bool) {
	for _, sess := range s.sessions {
		if sess.RefreshTokenHash == refreshHash && sess.IsActive && sess.ExpiresAt.After(now) {
			return sess, true
		}
	}
	return store.Session{}, false
}

func (s *Store) FindActiveSession(ctx context.Context, refreshHash string, now time.Time) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.findActiveSessionLocked(refreshHash, now)
	if !ok {
		return store.Session{}, store.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) DeactivateSessionByHash(ctx context.Context, refreshHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.RefreshTokenHash == refreshHash && sess.IsActive {
			sess.IsActive = false
			s.sessions[id] = sess
			return nil
		}
	}
	return store.ErrSessionNotFound
}

// RotateSession holds the single mutex across deactivate+insert, giving the
// same "exactly one winner" serialization the Postgres row lock gives.
func (s *Store) RotateSession(ctx context.Context, oldHash string, newSession store.Session) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for id, sess := range s.sessions {
		if sess.RefreshTokenHash == oldHash && sess.IsActive {
			sess.IsActive = false
			s.sessions[id] = sess
			found = true
			break
		}
	}
	if !found {
		return store.Session{}, store.ErrSessionNotFound
	}

	return s.insertSessionLocked(newSession)
}

func (s *Store) RevokeAllSessions(ctx context.Context, identityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.IdentityID == identityID && sess.IsActive {
			sess.IsActive = false
			s.sessions[id] = sess
		}
	}
	return nil
}

func (s *Store) InsertEmailOTP(ctx context.Context, in store.EmailOTP) (store.EmailOTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	in.CreatedAt = time.Now()
	s.emailOTPs[in.ID] = in
	return in, nil
}

// ConsumeEmailOTP picks the most recently created usable code, same
// selection rule as the Postgres implementation, and holds the mutex across
// the verify callback so two concurrent callers cannot both succeed.
func (s *Store) ConsumeEmailOTP(ctx context.Context, identityID uuid.UUID, now time.Time, verify func(codeHash string) bool) (store.EmailOTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best store.EmailOTP
	found := false
	for _, o := range s.emailOTPs {
		if o.IdentityID != identityID || o.Used || !o.ExpiresAt.After(now) {
			continue
		}
		if !found || o.CreatedAt.After(best.CreatedAt) {
			best = o
			found = true
		}
	}
	if !found {
		return store.EmailOTP{}, store.ErrEmailOTPNotFound
	}
	if !verify(best.CodeHash) {
		return store.EmailOTP{}, store.ErrEmailOTPNotFound
	}

	best.Used = true
	s.emailOTPs[best.ID] = best
	return best, nil
}

func (s *Store) AppendMFAAttempt(ctx context.Context, a store.MFAAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	s.attempts = append(s.attempts, a)
	return nil
}

// Attempts returns a copy of the recorded attempt log, for tests asserting
// on attempt-logging behavior.
func (s *Store) Attempts() []store.MFAAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.MFAAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}
