// Package codec implements the low-level byte access and checksum
// primitives every higher layer builds on: big-endian integer reads over
// a page buffer, and the CRC32C (Castagnoli) checksum InnoDB uses for
// both page checksums and the per-tablespace encryption header. InnoDB
// pages are big-endian and randomly addressed, so this wraps a []byte
// slice with bounds-checked absolute-offset accessors rather than a
// cursor over an io.Reader.
package codec

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/innodb-tools/ibdproc/internal/errs"
)

// castagnoliTable is computed once; hash/crc32 already uses the CPU's
// CRC32C instruction via MakeTable when available, so there is no
// ecosystem library that does meaningfully better than the standard
// library here (documented in DESIGN.md).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the InnoDB page/encryption-header checksum.
func CRC32C(b []byte) uint32 {
	return crc32.Checksum(b, castagnoliTable)
}

// Slice is a bounds-checked big-endian view over a page or header
// buffer. Sub and the Uint* accessors return a *errs.Error with errs.KindIO on
// out-of-range access instead of panicking, so a truncated or corrupt
// page degrades into a reported error rather than a crash.
type Slice struct {
	b []byte
}

// NewSlice wraps b for bounds-checked big-endian reads.
func NewSlice(b []byte) Slice { return Slice{b: b} }

// Len returns the length of the underlying buffer.
func (s Slice) Len() int { return len(s.b) }

// Bytes returns the raw buffer (callers must not retain across a reused
// buffer's next fill).
func (s Slice) Bytes() []byte { return s.b }

// Sub returns a bounds-checked sub-slice [off, off+n).
func (s Slice) Sub(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(s.b) {
		return nil, errs.New(errs.KindIO, "slice out of range: off=%d n=%d len=%d", off, n, len(s.b))
	}
	return s.b[off : off+n], nil
}

func (s Slice) Uint8(off int) (uint8, error) {
	b, err := s.Sub(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s Slice) Uint16(off int) (uint16, error) {
	b, err := s.Sub(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (s Slice) Uint24(off int) (uint32, error) {
	b, err := s.Sub(off, 3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func (s Slice) Uint32(off int) (uint32, error) {
	b, err := s.Sub(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (s Slice) Uint64(off int) (uint64, error) {
	b, err := s.Sub(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// PutUint32 writes a big-endian uint32 at off, used by the rebuild
// engine and CFG writer when re-stamping header fields.
func PutUint32(b []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(b[off:off+4], v)
}

// PutUint64 writes a big-endian uint64 at off.
func PutUint64(b []byte, off int, v uint64) {
	binary.BigEndian.PutUint64(b[off:off+8], v)
}

// PutUint16 writes a big-endian uint16 at off.
func PutUint16(b []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(b[off:off+2], v)
}
