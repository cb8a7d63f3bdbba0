package auth

import "crypto/subtle"

// SecureCompare performs a constant-time comparison, used anywhere a
// verification result must not leak timing information (backup codes,
// email-OTP plaintext comparisons done outside the slow hash).
func SecureCompare(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
