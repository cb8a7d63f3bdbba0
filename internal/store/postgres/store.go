// Package postgres implements store.Store against PostgreSQL via pgx/v5.
// Queries are hand-written (no sqlc generation step in this tree) but follow
// the same pgx/pgtype idiom the teacher's generated db.Queries use.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solstice-id/authcore/internal/store"
)

// Store is a store.Store backed by a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool opens a pgxpool.Pool and pings it, mirroring the teacher's
// storage.NewPostgres.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxConns < 5 {
		cfg.MaxConns = 20
	}
	if cfg.MinConns < 1 {
		cfg.MinConns = 5
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}
	return pool, nil
}

const identityColumns = `
	id, email, phone, display_name, kind, status, locale, currency, picture_url,
	password_hash, email_verified, email_verification_token, email_verification_expires,
	federated_id, provider, totp_secret_ct, totp_key_id, totp_enabled,
	backup_codes_ct, backup_codes_key_id, email_mfa_enabled,
	failed_login_count, locked_until,
	created_at, updated_at, last_login_at, deleted_at`

func scanIdentity(row pgx.Row) (store.Identity, error) {
	var i store.Identity
	var kind, status, provider string
	var federatedID, passwordHash, verifToken, totpSecretCT, totpKeyID, backupCT, backupKeyID *string
	var verifExpires, lockedUntil, lastLoginAt, deletedAt *time.Time

	err := row.Scan(
		&i.ID, &i.Email, &i.Phone, &i.DisplayName, &kind, &status, &i.Locale, &i.Currency, &i.PictureURL,
		&passwordHash, &i.EmailVerified, &verifToken, &verifExpires,
		&federatedID, &provider, &totpSecretCT, &totpKeyID, &i.TOTPEnabled,
		&backupCT, &backupKeyID, &i.EmailMFAEnabled,
		&i.FailedLoginCount, &lockedUntil,
		&i.CreatedAt, &i.UpdatedAt, &lastLoginAt, &deletedAt,
	)
	if err != nil {
		return store.Identity{}, err
	}

	i.Kind = store.IdentityKind(kind)
	i.Status = store.IdentityStatus(status)
	i.Provider = store.Provider(provider)
	if passwordHash != nil {
		i.PasswordHash = *passwordHash
	}
	if verifToken != nil {
		i.EmailVerificationToken = *verifToken
	}
	i.EmailVerificationExpires = verifExpires
	if federatedID != nil {
		i.FederatedID = *federatedID
	}
	if totpSecretCT != nil {
		i.TOTPSecretCT = *totpSecretCT
	}
	if totpKeyID != nil {
		i.TOTPKeyID = *totpKeyID
	}
	if backupCT != nil {
		i.BackupCodesCT = *backupCT
	}
	if backupKeyID != nil {
		i.BackupCodesKeyID = *backupKeyID
	}
	i.LockedUntil = lockedUntil
	i.LastLoginAt = lastLoginAt
	i.DeletedAt = deletedAt

	return i, nil
}

func (s *Store) CreateIdentity(ctx context.Context, in store.Identity) (store.Identity, error) {
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

	row := s.pool.QueryRow(ctx, `
		INSERT INTO identities (
			id, email, phone, display_name, kind, status, locale, currency, picture_url,
			password_hash, email_verified, email_verification_token, email_verification_expires,
			federated_id, provider
		) VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $15)
		ON CONFLICT (email) WHERE deleted_at IS NULL DO NOTHING
		RETURNING `+identityColumns,
		in.ID, in.Email, in.Phone, in.DisplayName, in.Kind, in.Status, in.Locale, in.Currency, in.PictureURL,
		nullIfEmpty(in.PasswordHash), in.EmailVerified, nullIfEmpty(in.EmailVerificationToken), in.EmailVerificationExpires,
		in.FederatedID, in.Provider,
	)

	out, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Identity{}, store.ErrDuplicateEmail
	}
	if err != nil {
		return store.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return out, nil
}

func (s *Store) FindIdentityByEmail(ctx context.Context, email string) (store.Identity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+identityColumns+` FROM identities
		WHERE email = lower($1) AND deleted_at IS NULL`, email)
	out, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Identity{}, store.ErrNotFound
	}
	return out, err
}

func (s *Store) FindIdentityByID(ctx context.Context, id uuid.UUID) (store.Identity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+identityColumns+` FROM identities
		WHERE id = $1 AND deleted_at IS NULL`, id)
	out, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Identity{}, store.ErrNotFound
	}
	return out, err
}

func (s *Store) FindIdentityByFederatedID(ctx context.Context, federatedID string) (store.Identity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+identityColumns+` FROM identities
		WHERE federated_id = $1 AND deleted_at IS NULL`, federatedID)
	out, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Identity{}, store.ErrNotFound
	}
	return out, err
}

func (s *Store) FindIdentityByVerificationToken(ctx context.Context, token string) (store.Identity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+identityColumns+` FROM identities
		WHERE email_verification_token = $1 AND deleted_at IS NULL`, token)
	out, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Identity{}, store.ErrNotFound
	}
	return out, err
}

// ApplyProfileUpdate builds a dynamic SET list from the non-nil patch
// fields. Kept to a single statement so the update stays atomic.
func (s *Store) ApplyProfileUpdate(ctx context.Context, id uuid.UUID, p store.IdentityPatch) (store.Identity, error) {
	sets := []string{"updated_at = now()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.DisplayName != nil {
		sets = append(sets, "display_name = "+arg(*p.DisplayName))
	}
	if p.Phone != nil {
		sets = append(sets, "phone = "+arg(*p.Phone))
	}
	if p.Locale != nil {
		sets = append(sets, "locale = "+arg(*p.Locale))
	}
	if p.Currency != nil {
		sets = append(sets, "currency = "+arg(*p.Currency))
	}
	if p.PictureURL != nil {
		sets = append(sets, "picture_url = "+arg(*p.PictureURL))
	}
	if p.PasswordHash != nil {
		sets = append(sets, "password_hash = "+arg(*p.PasswordHash))
	}
	if p.Status != nil {
		sets = append(sets, "status = "+arg(*p.Status))
	}
	if p.EmailVerified != nil {
		sets = append(sets, "email_verified = "+arg(*p.EmailVerified))
	}
	if p.ClearEmailVerification {
		sets = append(sets, "email_verification_token = NULL, email_verification_expires = NULL")
	} else {
		if p.EmailVerificationToken != nil {
			sets = append(sets, "email_verification_token = "+arg(*p.EmailVerificationToken))
		}
		if p.EmailVerificationExpires != nil {
			sets = append(sets, "email_verification_expires = "+arg(*p.EmailVerificationExpires))
		}
	}
	if p.FederatedID != nil {
		sets = append(sets, "federated_id = "+arg(*p.FederatedID))
	}
	if p.Provider != nil {
		sets = append(sets, "provider = "+arg(*p.Provider))
	}
	if p.ClearTOTPSecret {
		sets = append(sets, "totp_secret_ct = NULL, totp_key_id = NULL, totp_enabled = false")
	} else {
		if p.TOTPSecretCT != nil {
			sets = append(sets, "totp_secret_ct = "+arg(*p.TOTPSecretCT))
		}
		if p.TOTPKeyID != nil {
			sets = append(sets, "totp_key_id = "+arg(*p.TOTPKeyID))
		}
		if p.TOTPEnabled != nil {
			sets = append(sets, "totp_enabled = "+arg(*p.TOTPEnabled))
		}
	}
	if p.ClearBackupCodes {
		sets = append(sets, "backup_codes_ct = NULL, backup_codes_key_id = NULL")
	} else {
		if p.BackupCodesCT != nil {
			sets = append(sets, "backup_codes_ct = "+arg(*p.BackupCodesCT))
		}
		if p.BackupCodesKeyID != nil {
			sets = append(sets, "backup_codes_key_id = "+arg(*p.BackupCodesKeyID))
		}
	}
	if p.EmailMFAEnabled != nil {
		sets = append(sets, "email_mfa_enabled = "+arg(*p.EmailMFAEnabled))
	}
	if p.FailedLoginCount != nil {
		sets = append(sets, "failed_login_count = "+arg(*p.FailedLoginCount))
	}
	if p.ClearLockedUntil {
		sets = append(sets, "locked_until = NULL")
	} else if p.LockedUntil != nil {
		sets = append(sets, "locked_until = "+arg(*p.LockedUntil))
	}
	if p.LastLoginAt != nil {
		sets = append(sets, "last_login_at = "+arg(*p.LastLoginAt))
	}

	idPos := len(args) + 1
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE identities SET %s
		WHERE id = $%d AND deleted_at IS NULL
		RETURNING %s`, joinComma(sets), idPos, identityColumns)

	row := s.pool.QueryRow(ctx, query, args...)
	out, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Identity{}, store.ErrNotFound
	}
	return out, err
}

func (s *Store) SoftDeleteIdentity(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE identities SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete identity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertSession(ctx context.Context, in store.Session) (store.Session, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	var deviceMeta []byte
	if in.DeviceMeta != nil {
		deviceMeta = in.DeviceMeta
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, identity_id, refresh_token_hash, is_active, expires_at, device_meta)
		VALUES ($1, $2, $3, true, $4, $5)
		RETURNING id, identity_id, refresh_token_hash, is_active, expires_at, device_meta, created_at, last_used_at`,
		in.ID, in.IdentityID, in.RefreshTokenHash, in.ExpiresAt, deviceMeta,
	)
	return scanSession(row)
}

func scanSession(row pgx.Row) (store.Session, error) {
	var s store.Session
	var deviceMeta []byte
	err := row.Scan(&s.ID, &s.IdentityID, &s.RefreshTokenHash, &s.IsActive, &s.ExpiresAt, &deviceMeta, &s.CreatedAt, &s.LastUsedAt)
	if err != nil {
		return store.Session{}, err
	}
	s.DeviceMeta = deviceMeta
	return s, nil
}

func (s *Store) FindActiveSession(ctx context.Context, refreshHash string, now time.Time) (store.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, identity_id, refresh_token_hash, is_active, expires_at, device_meta, created_at, last_used_at
		FROM sessions
		WHERE refresh_token_hash = $1 AND is_active = true AND expires_at > $2`,
		refreshHash, now)
	out, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return out, err
}

func (s *Store) DeactivateSessionByHash(ctx context.Context, refreshHash string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE sessions SET is_active = false
		WHERE refresh_token_hash = $1 AND is_active = true`, refreshHash)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

// RotateSession deactivates the session for oldHash and inserts newSession
// in one transaction. The UPDATE ... WHERE is_active = true clause takes a
// row lock, so a concurrent rotation attempt for the same oldHash blocks
// until the first commits, then observes zero rows affected and fails,
// giving the spec's "exactly one of two concurrent rotations succeeds".
func (s *Store) RotateSession(ctx context.Context, oldHash string, newSession store.Session) (store.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Session{}, fmt.Errorf("begin rotate: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE sessions SET is_active = false
		WHERE refresh_token_hash = $1 AND is_active = true`, oldHash)
	if err != nil {
		return store.Session{}, fmt.Errorf("deactivate old session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return store.Session{}, store.ErrSessionNotFound
	}

	if newSession.ID == uuid.Nil {
		newSession.ID = uuid.New()
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO sessions (id, identity_id, refresh_token_hash, is_active, expires_at, device_meta)
		VALUES ($1, $2, $3, true, $4, $5)
		RETURNING id, identity_id, refresh_token_hash, is_active, expires_at, device_meta, created_at, last_used_at`,
		newSession.ID, newSession.IdentityID, newSession.RefreshTokenHash, newSession.ExpiresAt, newSession.DeviceMeta,
	)
	out, err := scanSession(row)
	if err != nil {
		return store.Session{}, fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Session{}, fmt.Errorf("commit rotate: %w", err)
	}
	return out, nil
}

func (s *Store) RevokeAllSessions(ctx context.Context, identityID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET is_active = false
		WHERE identity_id = $1 AND is_active = true`, identityID)
	if err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

func (s *Store) InsertEmailOTP(ctx context.Context, in store.EmailOTP) (store.EmailOTP, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO email_otps (id, identity_id, code_hash, expires_at, used)
		VALUES ($1, $2, $3, $4, false)
		RETURNING id, identity_id, code_hash, expires_at, used, created_at`,
		in.ID, in.IdentityID, in.CodeHash, in.ExpiresAt,
	)
	return scanEmailOTP(row)
}

func scanEmailOTP(row pgx.Row) (store.EmailOTP, error) {
	var o store.EmailOTP
	err := row.Scan(&o.ID, &o.IdentityID, &o.CodeHash, &o.ExpiresAt, &o.Used, &o.CreatedAt)
	return o, err
}

// ConsumeEmailOTP selects the most recent usable code for identityID FOR
// UPDATE (row lock), lets the caller-supplied verify closure compare the
// plaintext against the stored hash, and flips used=true only on a match,
// all within one transaction — so two concurrent verification attempts for
// the same identity can never both succeed against the same row.
func (s *Store) ConsumeEmailOTP(ctx context.Context, identityID uuid.UUID, now time.Time, verify func(codeHash string) bool) (store.EmailOTP, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.EmailOTP{}, fmt.Errorf("begin consume otp: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT id, identity_id, code_hash, expires_at, used, created_at
		FROM email_otps
		WHERE identity_id = $1 AND used = false AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, identityID, now)

	otp, err := scanEmailOTP(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.EmailOTP{}, store.ErrEmailOTPNotFound
	}
	if err != nil {
		return store.EmailOTP{}, fmt.Errorf("select email otp: %w", err)
	}

	if !verify(otp.CodeHash) {
		return store.EmailOTP{}, store.ErrEmailOTPNotFound
	}

	if _, err := tx.Exec(ctx, `UPDATE email_otps SET used = true WHERE id = $1`, otp.ID); err != nil {
		return store.EmailOTP{}, fmt.Errorf("mark email otp used: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return store.EmailOTP{}, fmt.Errorf("commit consume otp: %w", err)
	}

	otp.Used = true
	return otp, nil
}

func (s *Store) AppendMFAAttempt(ctx context.Context, a store.MFAAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mfa_attempts (id, identity_id, method, success, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::inet, NULLIF($6, ''))`,
		a.ID, a.IdentityID, a.Method, a.Success, a.IP, a.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("append mfa attempt: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
