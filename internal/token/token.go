// Package token issues and verifies the four disjoint token families of
// the authentication protocol, all HMAC-SHA256-signed.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/solstice-id/authcore/internal/clock"
)

// Errors returned by Verify.
var (
	ErrInvalidToken  = errors.New("token: invalid")
	ErrExpiredToken  = errors.New("token: expired")
	ErrWrongFamily   = errors.New("token: wrong family")
)

// Type is the wire discriminator carried in every token's "type" claim.
// These four values are the ones the source system's token module uses;
// the glossary's "challenge" and "device-trust" names map onto TypeTemp and
// TypeMFASession respectively.
type Type string

const (
	TypeAccess     Type = "access"
	TypeRefresh    Type = "refresh"
	TypeTemp       Type = "temp"        // challenge token
	TypeMFASession Type = "mfa_session" // device-trust token
)

// MFAFactor tags which second factor a challenge token gates.
type MFAFactor string

const (
	FactorTOTP  MFAFactor = "totp"
	FactorEmail MFAFactor = "email"
)

// Claims is the union of fields any of the four families may carry; unused
// fields are omitted from the wire encoding via `omitempty`.
type Claims struct {
	Subject     uuid.UUID `json:"sub"`
	Email       string    `json:"email,omitempty"`
	Type        Type      `json:"type"`
	JTI         string    `json:"jti,omitempty"`
	MFAType     MFAFactor `json:"mfa_type,omitempty"`
	MFAPending  bool      `json:"mfa_pending,omitempty"`
	MFAVerified bool      `json:"mfa_verified,omitempty"`
	jwt.RegisteredClaims
}

// Config controls TTLs for each family; defaults match spec §4.4/§6.
type Config struct {
	SigningKey          []byte
	KeyID               string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	ChallengeTTL        time.Duration
	DeviceTrustTTL      time.Duration
	Clock               clock.Clock
}

// Service issues and verifies tokens for all four families.
type Service struct {
	cfg Config
}

// New constructs a Service, filling in spec-mandated defaults for any zero
// TTL field.
func New(cfg Config) *Service {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.ChallengeTTL == 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.DeviceTrustTTL == 0 {
		cfg.DeviceTrustTTL = 7 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Service{cfg: cfg}
}

func (s *Service) now() time.Time { return s.cfg.Clock.Now() }

func (s *Service) sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.cfg.KeyID != "" {
		t.Header["kid"] = s.cfg.KeyID
	}
	signed, err := t.SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// IssueAccessToken mints an access token (spec §4.4 row 1).
func (s *Service) IssueAccessToken(identityID uuid.UUID, email string) (string, error) {
	now := s.now()
	return s.sign(Claims{
		Subject: identityID,
		Email:   email,
		Type:    TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	})
}

// IssueRefreshToken mints a refresh token with a fresh jti (spec §4.4 row
// 2); callers persist SHA-256(token) as the Session's refresh_token_hash.
func (s *Service) IssueRefreshToken(identityID uuid.UUID, email string) (string, error) {
	now := s.now()
	jti, err := randomJTI()
	if err != nil {
		return "", err
	}
	return s.sign(Claims{
		Subject: identityID,
		Email:   email,
		Type:    TypeRefresh,
		JTI:     jti,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
		},
	})
}

// IssueChallengeToken mints a "temp" token gating one MFA verification
// attempt (spec §4.4 row 3).
func (s *Service) IssueChallengeToken(identityID uuid.UUID, email string, factor MFAFactor) (string, error) {
	now := s.now()
	return s.sign(Claims{
		Subject:    identityID,
		Email:      email,
		Type:       TypeTemp,
		MFAType:    factor,
		MFAPending: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ChallengeTTL)),
		},
	})
}

// IssueDeviceTrustToken mints an "mfa_session" token letting the bearer
// skip MFA on a future login (spec §4.4 row 4).
func (s *Service) IssueDeviceTrustToken(identityID uuid.UUID, email string) (string, error) {
	now := s.now()
	return s.sign(Claims{
		Subject:     identityID,
		Email:       email,
		Type:        TypeMFASession,
		MFAVerified: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.DeviceTrustTTL)),
		},
	})
}

// Verify parses tokenString and checks it belongs to family want, rejecting
// any other family even if the signature is valid (spec §4.4: "verification
// rejects any token whose type does not match the expected family").
func (s *Service) Verify(tokenString string, want Type) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("token: unexpected signing method %v", t.Header["alg"])
		}
		return s.cfg.SigningKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != want {
		return nil, ErrWrongFamily
	}
	return claims, nil
}

// HashRefreshToken returns the hex SHA-256 digest persisted as
// Session.RefreshTokenHash (spec §6: "Refresh-token persistence: SHA-256
// hex digest of the opaque token string").
func HashRefreshToken(token string) string {
	return hashHex(token)
}

func randomJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: generate jti: %w", err)
	}
	return hex.EncodeToString(b), nil
}
