package rebuild

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/codec"
	"github.com/innodb-tools/ibdproc/internal/compression"
	"github.com/innodb-tools/ibdproc/internal/model"
)

func TestStampPageWritesConsistentChecksum(t *testing.T) {
	page := make([]byte, compression.LogicalPageSize)
	for i := range page {
		page[i] = byte(i % 256)
	}

	stampPage(page, 7, 3)

	size := len(page)
	require.Equal(t, uint32(3), beUint32(page, 4))
	require.Equal(t, uint32(7), beUint32(page, 34))

	want := codec.CRC32C(page[4:38]) ^ codec.CRC32C(page[38:size-8])
	require.Equal(t, want, beUint32(page, 0))
	require.Equal(t, want, beUint32(page, size-8))
}

func TestRemapIndexIDOnlyTouchesIndexPages(t *testing.T) {
	remap := IndexIDRemap{100: 200}

	indexPage := make([]byte, compression.LogicalPageSize)
	codec.PutUint16(indexPage, 24, uint16(model.PageTypeIndex))
	codec.PutUint64(indexPage, 38+28, 100)
	remapIndexID(indexPage, remap)
	require.Equal(t, uint64(200), beUint64(indexPage, 38+28))

	otherPage := make([]byte, compression.LogicalPageSize)
	codec.PutUint16(otherPage, 24, uint16(model.PageTypeFspHdr))
	codec.PutUint64(otherPage, 38+28, 100)
	remapIndexID(otherPage, remap)
	require.Equal(t, uint64(100), beUint64(otherPage, 38+28))
}

func TestClearZipSSizeFlagPreservesOtherBits(t *testing.T) {
	page0 := make([]byte, compression.LogicalPageSize)
	const fspSpaceFlagsOff = 54
	raw := uint32(1) | (uint32(3) << 1) | (uint32(1) << 5) // post-antelope + zip_ssize=3 + atomic_blobs
	codec.PutUint32(page0, fspSpaceFlagsOff, raw)

	clearZipSSizeFlag(page0)

	got := beUint32(page0, fspSpaceFlagsOff)
	require.Equal(t, uint32(0), (got>>1)&0xF, "zip_ssize bits should be cleared")
	require.Equal(t, uint32(1), got&1, "post-antelope bit should survive")
	require.Equal(t, uint32(1), (got>>5)&1, "atomic_blobs bit should survive")
}

func TestParseSDIEntriesRoundTripsInlinePayloads(t *testing.T) {
	entries := []SDIEntry{
		{Type: 1, ID: 1, Payload: []byte("first sdi entry")},
		{Type: 1, ID: 2, Payload: []byte("second sdi entry, a bit longer")},
	}

	result := BuildSDIRoot(entries)
	require.Empty(t, result.External)

	inline, external, err := parseSDIEntries(result.Page)
	require.NoError(t, err)
	require.Empty(t, external)
	require.Len(t, inline, 2)
	require.Equal(t, uint64(1), inline[0].ID)
	require.Equal(t, []byte("first sdi entry"), inline[0].Payload)
	require.Equal(t, uint64(2), inline[1].ID)
	require.Equal(t, []byte("second sdi entry, a bit longer"), inline[1].Payload)
}

func TestParseSDIEntriesRecognizesExternalPlaceholder(t *testing.T) {
	entries := []SDIEntry{
		{Type: 1, ID: 7, Payload: make([]byte, 0x4000)},
	}
	result := BuildSDIRoot(entries)
	require.Len(t, result.External, 1)

	inline, external, err := parseSDIEntries(result.Page)
	require.NoError(t, err)
	require.Empty(t, inline)
	require.Len(t, external, 1)
	require.Equal(t, uint64(7), external[0].ID)
	require.Len(t, external[0].Ref, sdiExternalRefSize)
}

func TestSDIFieldOffsetDependsOnPageSize(t *testing.T) {
	compressed := sdiFieldOffset(4096)
	uncompressed := sdiFieldOffset(compression.LogicalPageSize)
	require.NotEqual(t, compressed, uncompressed)
	require.Equal(t, 4096-16, compressed)
	require.Equal(t, compression.LogicalPageSize-16, uncompressed)
}

func TestDecodeSDIExternalRef(t *testing.T) {
	raw := make([]byte, 20)
	raw[3] = 5    // space id = 5
	raw[7] = 9    // page no = 9
	raw[11] = 200 // offset = 200
	raw[19] = 42  // length = 42

	ref := decodeSDIExternalRef(raw)
	require.Equal(t, uint32(5), ref.SpaceID)
	require.Equal(t, uint32(9), ref.PageNo)
	require.Equal(t, uint32(200), ref.Offset)
	require.Equal(t, uint64(42), ref.Length)
}
