package encryption_test

import (
	"crypto/aes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/codec"
	"github.com/innodb-tools/ibdproc/internal/encryption"
	"github.com/innodb-tools/ibdproc/internal/fixtures"
	"github.com/innodb-tools/ibdproc/internal/keyring"
)

// buildEncryptionHeader assembles a valid 107-byte encryption header
// blob (magic + master_key_id + server_uuid + wrapped key/iv/checksum)
// wrapped with masterKey, for testing Parse end to end.
func buildEncryptionHeader(t *testing.T, masterKey []byte, masterKeyID uint32, serverUUID string, tsKey [32]byte, tsIV [16]byte) []byte {
	t.Helper()

	plain := make([]byte, 64)
	copy(plain[0:32], tsKey[:])
	copy(plain[32:48], tsIV[:])
	crc := codec.CRC32C(plain[0:48])
	codec.PutUint32(plain, 48, crc)

	block, err := aes.NewCipher(normalize(masterKey))
	require.NoError(t, err)
	wrapped := make([]byte, 64)
	for off := 0; off < 64; off += aes.BlockSize {
		block.Encrypt(wrapped[off:off+aes.BlockSize], plain[off:off+aes.BlockSize])
	}

	header := make([]byte, 3+4+36+64)
	copy(header[0:3], []byte("lCA"))
	codec.PutUint32(header, 3, masterKeyID)
	copy(header[7:7+len(serverUUID)], serverUUID)
	copy(header[43:43+64], wrapped)
	return header
}

func normalize(k []byte) []byte {
	out := make([]byte, 32)
	copy(out, k)
	return out
}

func TestParseEncryptionHeaderRoundTrip(t *testing.T) {
	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i + 1)
	}
	serverUUID := "550e8400-e29b-41d4-a716-446655440000"

	var tsKey [32]byte
	var tsIV [16]byte
	for i := range tsKey {
		tsKey[i] = byte(100 + i)
	}
	for i := range tsIV {
		tsIV[i] = byte(200 + i)
	}

	header := buildEncryptionHeader(t, masterKey, 3, serverUUID, tsKey, tsIV)

	page0 := make([]byte, 16384)
	copy(page0[200:], header)

	krData := fixtures.KeyringFile(serverUUID, 3, masterKey)
	kr, err := keyring.Load(krData)
	require.NoError(t, err)

	off, err := encryption.FindHeader(page0)
	require.NoError(t, err)
	require.Equal(t, 200, off)

	hdr, err := encryption.Parse(page0, off, kr)
	require.NoError(t, err)
	require.Equal(t, tsKey[:32], hdr.Key[:])
}

func TestFindHeaderMissing(t *testing.T) {
	_, err := encryption.FindHeader(make([]byte, 16384))
	require.Error(t, err)
}
