package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solstice-id/authcore/internal/auth"
)

func TestValidatePassword_AcceptsPolicyCompliant(t *testing.T) {
	require.NoError(t, auth.ValidatePassword("SecurePass123!"))
}

func TestValidatePassword_RejectsTooShort(t *testing.T) {
	require.ErrorIs(t, auth.ValidatePassword("Sh0rt!"), auth.ErrWeakPassword)
}

func TestValidatePassword_RejectsMissingSymbol(t *testing.T) {
	require.ErrorIs(t, auth.ValidatePassword("SecurePass123"), auth.ErrWeakPassword)
}

func TestValidatePassword_RejectsMissingDigit(t *testing.T) {
	require.ErrorIs(t, auth.ValidatePassword("SecurePassword!"), auth.ErrWeakPassword)
}

func TestValidatePassword_RejectsMissingUpper(t *testing.T) {
	require.ErrorIs(t, auth.ValidatePassword("securepass123!"), auth.ErrWeakPassword)
}

func TestValidatePassword_RejectsMissingLower(t *testing.T) {
	require.ErrorIs(t, auth.ValidatePassword("SECUREPASS123!"), auth.ErrWeakPassword)
}

func TestValidatePassword_RejectsTooLong(t *testing.T) {
	long := ""
	for i := 0; i < 130; i++ {
		long += "A"
	}
	long += "a1!"
	require.ErrorIs(t, auth.ValidatePassword(long), auth.ErrWeakPassword)
}
