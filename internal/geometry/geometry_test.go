package geometry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/fixtures"
	"github.com/innodb-tools/ibdproc/internal/geometry"
)

func TestDecodeFlagsUncompressed(t *testing.T) {
	flags := geometry.DecodeFlags(0)
	require.Equal(t, uint32(0), flags.ZipSSize)

	size, err := geometry.PhysicalPageSize(flags)
	require.NoError(t, err)
	require.Equal(t, 16384, size)
}

func TestDecodeFlagsCompressed(t *testing.T) {
	// ZIP_SSIZE=3 -> 512 << (3-1) = 2048
	raw := uint32(3) << 1
	flags := geometry.DecodeFlags(raw)
	require.Equal(t, uint32(3), flags.ZipSSize)

	size, err := geometry.PhysicalPageSize(flags)
	require.NoError(t, err)
	require.Equal(t, 2048, size)
}

func TestReadFSPHeader(t *testing.T) {
	page0 := fixtures.FSPHeaderPage(42, 100, 0)
	spaceID, pageCount, flags, err := geometry.ReadFSPHeader(page0)
	require.NoError(t, err)
	require.Equal(t, uint32(42), spaceID)
	require.Equal(t, uint32(100), pageCount)
	require.Equal(t, uint32(0), flags.Raw)
}

func TestReadFSPHeaderTooShort(t *testing.T) {
	_, _, _, err := geometry.ReadFSPHeader(make([]byte, 10))
	require.Error(t, err)
}
