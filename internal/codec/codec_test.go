package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/codec"
)

func TestSliceBigEndianReads(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	s := codec.NewSlice(buf)

	v16, err := s.Uint16(0)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0001), v16)

	v32, err := s.Uint32(1)
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), v32)

	v64, err := s.Uint64(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v64)
}

func TestSliceOutOfRange(t *testing.T) {
	s := codec.NewSlice([]byte{1, 2})
	_, err := s.Uint32(0)
	require.Error(t, err)
}

func TestCRC32CKnownValue(t *testing.T) {
	// "123456789" is the standard CRC32C check string; its checksum is
	// well known (0xE3069283) across every Castagnoli implementation.
	got := codec.CRC32C([]byte("123456789"))
	require.Equal(t, uint32(0xE3069283), got)
}

func TestPutGetRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	codec.PutUint32(buf, 0, 0xdeadbeef)
	s := codec.NewSlice(buf)
	v, err := s.Uint32(0)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)
}
