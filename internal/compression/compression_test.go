package compression_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/compression"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	codec := compression.NewCodec()

	logical := make([]byte, compression.LogicalPageSize)
	for i := range logical {
		logical[i] = byte(i % 251)
	}

	physical, err := codec.Compress(logical, 8192)
	require.NoError(t, err)
	require.Len(t, physical, 8192)

	out, err := codec.Decompress(physical)
	require.NoError(t, err)
	require.Equal(t, logical, out)
}

func TestCompressRejectsInvalidPhysicalSize(t *testing.T) {
	codec := compression.NewCodec()
	_, err := codec.Compress(make([]byte, compression.LogicalPageSize), 3000)
	require.Error(t, err)
}

func TestIsCompressedSize(t *testing.T) {
	require.True(t, compression.IsCompressedSize(512))
	require.True(t, compression.IsCompressedSize(8192))
	require.False(t, compression.IsCompressedSize(16384))
	require.False(t, compression.IsCompressedSize(300))
}

func TestDecompressRejectsGarbage(t *testing.T) {
	codec := compression.NewCodec()
	_, err := codec.Decompress([]byte{0x00, 0x01, 0x02, 0x03})
	require.Error(t, err)
}
