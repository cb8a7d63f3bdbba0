// Package crypto provides authenticated encryption for secret material
// (TOTP secrets, backup codes) at rest. Uses AES-256-GCM, the same
// construction as the teacher's per-tenant secret encryption, generalized
// to take the key explicitly instead of reading it from the environment
// inside the encrypt/decrypt calls, so callers can hold a versioned key and
// rotate it without touching this package.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// DataEncryptionKey is a versioned AES-256 key. ID is persisted alongside
// ciphertext (spec §9: "record the key-id alongside ciphertext") so that a
// later key rotation can identify which key decrypts a given row.
type DataEncryptionKey struct {
	ID  string
	Key []byte // must be 32 bytes
}

// ParseKeyHex decodes a 64-hex-character key into a DataEncryptionKey with
// the given id.
func ParseKeyHex(id, keyHex string) (DataEncryptionKey, error) {
	if len(keyHex) != 64 {
		return DataEncryptionKey{}, fmt.Errorf("crypto: key must be 64 hex characters (32 bytes), got %d", len(keyHex))
	}
	key := make([]byte, 32)
	n, err := hex.Decode(key, []byte(keyHex))
	if err != nil {
		return DataEncryptionKey{}, fmt.Errorf("crypto: invalid key hex: %w", err)
	}
	if n != 32 {
		return DataEncryptionKey{}, fmt.Errorf("crypto: key decoded to %d bytes, expected 32", n)
	}
	return DataEncryptionKey{ID: id, Key: key}, nil
}

// GenerateKeyHex returns a fresh random 32-byte key, hex-encoded.
func GenerateKeyHex() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("crypto: generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Seal encrypts plaintext with dek, returning base64-encoded
// nonce||ciphertext||tag, "enc:"-prefixed as the teacher's format does.
func Seal(dek DataEncryptionKey, plaintext string) (string, error) {
	gcm, err := newGCM(dek.Key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return "enc:" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal with the matching key.
func Open(dek DataEncryptionKey, ciphertextB64 string) (string, error) {
	if len(ciphertextB64) < 4 || ciphertextB64[:4] != "enc:" {
		return "", fmt.Errorf("crypto: missing enc: prefix")
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertextB64[4:])
	if err != nil {
		return "", fmt.Errorf("crypto: invalid base64: %w", err)
	}

	gcm, err := newGCM(dek.Key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("crypto: ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return gcm, nil
}

// KeyRing resolves a key-id to the key that can decrypt it, so callers can
// hold multiple DataEncryptionKeys during rotation. The active key (used
// for new Seal calls) is always Current.
type KeyRing struct {
	Current DataEncryptionKey
	byID    map[string]DataEncryptionKey
}

// NewKeyRing builds a KeyRing whose active key is current; previous keys
// (still needed to Open old ciphertext) are supplied via retired.
func NewKeyRing(current DataEncryptionKey, retired ...DataEncryptionKey) *KeyRing {
	byID := map[string]DataEncryptionKey{current.ID: current}
	for _, k := range retired {
		byID[k.ID] = k
	}
	return &KeyRing{Current: current, byID: byID}
}

// SealCurrent encrypts with the ring's active key and returns the
// ciphertext alongside the key-id used.
func (r *KeyRing) SealCurrent(plaintext string) (ciphertext, keyID string, err error) {
	ct, err := Seal(r.Current, plaintext)
	if err != nil {
		return "", "", err
	}
	return ct, r.Current.ID, nil
}

// OpenWithKeyID decrypts ciphertext using the key registered under keyID.
func (r *KeyRing) OpenWithKeyID(keyID, ciphertext string) (string, error) {
	dek, ok := r.byID[keyID]
	if !ok {
		return "", fmt.Errorf("crypto: unknown key id %q", keyID)
	}
	return Open(dek, ciphertext)
}
