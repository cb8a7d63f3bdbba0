package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solstice-id/authcore/internal/crypto"
)

func mustKey(t *testing.T, id string) crypto.DataEncryptionKey {
	t.Helper()
	hex, err := crypto.GenerateKeyHex()
	require.NoError(t, err)
	dek, err := crypto.ParseKeyHex(id, hex)
	require.NoError(t, err)
	return dek
}

func TestSealOpen_RoundTrip(t *testing.T) {
	dek := mustKey(t, "v1")
	ct, err := crypto.Seal(dek, "JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.Contains(t, ct, "enc:")

	pt, err := crypto.Open(dek, ct)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", pt)
}

func TestOpen_WrongKeyFails(t *testing.T) {
	dek1 := mustKey(t, "v1")
	dek2 := mustKey(t, "v2")

	ct, err := crypto.Seal(dek1, "secret")
	require.NoError(t, err)

	_, err = crypto.Open(dek2, ct)
	assert.Error(t, err)
}

func TestOpen_RejectsMissingPrefix(t *testing.T) {
	dek := mustKey(t, "v1")
	_, err := crypto.Open(dek, "not-encrypted")
	assert.Error(t, err)
}

func TestKeyRing_RotatesWithoutBreakingOldCiphertext(t *testing.T) {
	old := mustKey(t, "v1")
	next := mustKey(t, "v2")

	ring := crypto.NewKeyRing(old)
	ct, keyID, err := ring.SealCurrent("alpha")
	require.NoError(t, err)
	assert.Equal(t, "v1", keyID)

	ring = crypto.NewKeyRing(next, old)
	pt, err := ring.OpenWithKeyID(keyID, ct)
	require.NoError(t, err)
	assert.Equal(t, "alpha", pt)

	newCT, newKeyID, err := ring.SealCurrent("beta")
	require.NoError(t, err)
	assert.Equal(t, "v2", newKeyID)
	pt2, err := ring.OpenWithKeyID(newKeyID, newCT)
	require.NoError(t, err)
	assert.Equal(t, "beta", pt2)
}
