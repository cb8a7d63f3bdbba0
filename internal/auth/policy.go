package auth

import "errors"

// ErrWeakPassword is returned by ValidatePassword when the candidate fails
// the registration password policy (spec §4.2: "enforced at registration,
// not here").
var ErrWeakPassword = errors.New("auth: password does not meet policy")

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	symbolSet         = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// ValidatePassword enforces length in [8, 128] and at least one upper-case,
// one lower-case, one digit, and one symbol from symbolSet.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrWeakPassword
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			for _, s := range symbolSet {
				if r == s {
					hasSymbol = true
					break
				}
			}
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return ErrWeakPassword
	}
	return nil
}
