package lob_test

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/lob"
	"github.com/innodb-tools/ibdproc/internal/model"
)

type fakeSource map[uint32][]byte

func (f fakeSource) ReadPage(pageNo uint32) ([]byte, error) {
	p, ok := f[pageNo]
	if !ok {
		return nil, bytes.ErrTooLarge
	}
	return p, nil
}

func putU16(b []byte, off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

func putU32(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

func oldBlobPage(pageType uint16, partLen, nextPage uint32, payload string) []byte {
	page := make([]byte, 46+len(payload))
	putU16(page, 24, pageType)
	putU32(page, 38, partLen)
	putU32(page, 42, nextPage)
	copy(page[46:], payload)
	return page
}

func TestReadOldBlobChain(t *testing.T) {
	pages := fakeSource{
		1: oldBlobPage(uint16(model.PageTypeBlob), 6, 2, "hello "),
		2: oldBlobPage(uint16(model.PageTypeBlob), 5, 0xFFFFFFFF, "world"),
	}
	r := lob.NewReader(pages, 0)
	data, truncated, err := r.Read(model.LOBRef{PageNo: 1})
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, "hello world", string(data))
}

func TestReadOldBlobTruncates(t *testing.T) {
	pages := fakeSource{
		1: oldBlobPage(uint16(model.PageTypeBlob), 6, 0xFFFFFFFF, "hello!"),
	}
	r := lob.NewReader(pages, 3)
	data, truncated, err := r.Read(model.LOBRef{PageNo: 1})
	require.NoError(t, err)
	require.True(t, truncated)
	require.Equal(t, "hel", string(data[:3]))
}

func newLobFirstPage(dataPage uint32) []byte {
	page := make([]byte, 60)
	putU16(page, 24, uint16(model.PageTypeLobFirst))
	putU32(page, 38+4, dataPage)
	return page
}

func newLobDataPage(dataLen, next uint32, payload string) []byte {
	page := make([]byte, 38+14+len(payload))
	putU16(page, 24, uint16(model.PageTypeLobData))
	putU32(page, 38+4, dataLen)
	putU32(page, 38+8, next)
	copy(page[38+14:], payload)
	return page
}

func TestReadNewLobChain(t *testing.T) {
	pages := fakeSource{
		1: newLobFirstPage(2),
		2: newLobDataPage(4, 3, "abcd"),
		3: newLobDataPage(2, 0, "ef"),
	}
	r := lob.NewReader(pages, 0)
	data, truncated, err := r.Read(model.LOBRef{PageNo: 1})
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, "abcdef", string(data))
}

func TestReadUnknownPageType(t *testing.T) {
	pages := fakeSource{
		1: oldBlobPage(uint16(model.PageTypeIndex), 0, 0, ""),
	}
	r := lob.NewReader(pages, 0)
	_, _, err := r.Read(model.LOBRef{PageNo: 1})
	require.Error(t, err)
}

func zblobPage(pageType uint16, partLen, nextPage uint32, compressed []byte) []byte {
	page := make([]byte, 46+len(compressed))
	putU16(page, 24, pageType)
	putU32(page, 38, partLen)
	putU32(page, 42, nextPage)
	copy(page[46:], compressed)
	return page
}

func TestReadCompressedBlob(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte("compressed payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	pages := fakeSource{
		1: zblobPage(uint16(model.PageTypeZblob), uint32(buf.Len()), 0xFFFFFFFF, buf.Bytes()),
	}
	r := lob.NewReader(pages, 0)
	data, truncated, err := r.Read(model.LOBRef{PageNo: 1})
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, "compressed payload", string(data))
}
