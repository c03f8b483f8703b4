package keyring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/fixtures"
	"github.com/innodb-tools/ibdproc/internal/keyring"
)

func TestLoadAndLookup(t *testing.T) {
	keyBytes := make([]byte, 32)
	for i := range keyBytes {
		keyBytes[i] = byte(i)
	}
	data := fixtures.KeyringFile("550e8400-e29b-41d4-a716-446655440000", 7, keyBytes)

	kr, err := keyring.Load(data)
	require.NoError(t, err)
	require.Equal(t, 1, kr.Len())

	mk, err := kr.Lookup("550e8400-e29b-41d4-a716-446655440000", 7)
	require.NoError(t, err)
	require.Equal(t, keyBytes, mk.KeyBytes)
}

func TestLookupMissingKey(t *testing.T) {
	data := fixtures.KeyringFile("uuid-a", 1, []byte("x"))
	kr, err := keyring.Load(data)
	require.NoError(t, err)

	_, err = kr.Lookup("uuid-a", 2)
	require.Error(t, err)
}

func TestLoadRejectsMissingMagic(t *testing.T) {
	_, err := keyring.Load([]byte("not a keyring file"))
	require.Error(t, err)
}
