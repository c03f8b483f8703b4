// Package geometry decodes the FSP_SPACE_FLAGS word stored in a
// tablespace's FSP_HDR page (page 0) into the page-size/feature bits
// the rest of the pipeline needs, and derives both the logical and
// physical page size actually used on disk. Grounded on the go-innodb
// reference snippet's flat page-geometry constants, restructured as
// flag decoding rather than bare constants since this tool must handle
// both compressed and uncompressed tablespaces from the same code path.
package geometry

import (
	"github.com/innodb-tools/ibdproc/internal/errs"
	"github.com/innodb-tools/ibdproc/internal/model"
)

// FSP header field offsets within page 0.
const (
	fspHdrOffset     = 38
	fspSpaceIDOff    = fspHdrOffset + 0
	fspSizeOff       = fspHdrOffset + 8
	fspSpaceFlagsOff = 54 // FSP_SPACE_FLAGS, a fixed offset in page 0
)

const (
	flagPostAntelopeMask = 1 << 0
	flagZipSSizeShift    = 1
	flagZipSSizeMask     = 0xF << flagZipSSizeShift
	flagAtomicBlobsMask  = 1 << 5
	flagPageSSizeShift   = 6
	flagPageSSizeMask    = 0xF << flagPageSSizeShift
	flagDataDirMask      = 1 << 10
	flagSharedMask       = 1 << 11
	flagTemporaryMask    = 1 << 12
	flagEncryptionMask   = 1 << 13
	flagSDIMask          = 1 << 14
	flagReservedMask     = ^uint32(0) << 15 // every bit above SDI must be zero
)

// maxSSize bounds PAGE_SSIZE/ZIP_SSIZE to their legal domain: under
// 512 << (ssize-1), 5 derives 8 KiB and any larger value derives 16 KiB
// or more.
const maxSSize = 5

// DecodeFlags splits a raw FSP_SPACE_FLAGS word into its component
// bits without validating it; callers that need validation call
// Validate separately (ReadFSPHeader always validates).
func DecodeFlags(raw uint32) model.FspFlags {
	return model.FspFlags{
		Raw:           raw,
		PostAntelope:  raw&flagPostAntelopeMask != 0,
		ZipSSize:      (raw & flagZipSSizeMask) >> flagZipSSizeShift,
		AtomicBlobs:   raw&flagAtomicBlobsMask != 0,
		PageSSize:     (raw & flagPageSSizeMask) >> flagPageSSizeShift,
		DataDirectory: raw&flagDataDirMask != 0,
		Shared:        raw&flagSharedMask != 0,
		Temporary:     raw&flagTemporaryMask != 0,
		Encryption:    raw&flagEncryptionMask != 0,
		SDIFlag:       raw&flagSDIMask != 0,
	}
}

// Validate checks that reserved bits are zero and PAGE_SSIZE/ZIP_SSIZE
// fall within their legal domain.
func Validate(f model.FspFlags) error {
	if f.Raw&flagReservedMask != 0 {
		return errs.New(errs.KindInvalidFspFlags, "reserved bits set in FSP flags %#x", f.Raw)
	}
	if f.PageSSize > maxSSize {
		return errs.New(errs.KindInvalidFspFlags, "PAGE_SSIZE %d out of legal domain", f.PageSSize)
	}
	if f.ZipSSize > maxSSize {
		return errs.New(errs.KindInvalidFspFlags, "ZIP_SSIZE %d out of legal domain", f.ZipSSize)
	}
	return nil
}

// LogicalPageSize derives the uncompressed page size from PAGE_SSIZE:
// 0 means 16384, otherwise 512 << (PAGE_SSIZE-1), bounded to 16384.
func LogicalPageSize(f model.FspFlags) int {
	if f.PageSSize == 0 {
		return 16384
	}
	size := 512 << (f.PageSSize - 1)
	if size > 16384 {
		size = 16384
	}
	return size
}

// PhysicalPageSize derives the on-disk page size from ZIP_SSIZE: 0
// means uncompressed (equal to the logical size), otherwise
// 512 << (ZIP_SSIZE-1).
func PhysicalPageSize(f model.FspFlags) (int, error) {
	if f.ZipSSize == 0 {
		return LogicalPageSize(f), nil
	}
	size := 512 << (f.ZipSSize - 1)
	if size <= 0 || size > 16384 {
		return 0, errs.New(errs.KindInvalidFspFlags, "decoded physical page size %d is not valid", size)
	}
	return size, nil
}

// ReadFSPHeader parses page 0's FSP header fields needed to drive the
// rest of the pipeline: space id, page count and validated flags.
func ReadFSPHeader(page0 []byte) (spaceID uint32, pageCount uint32, flags model.FspFlags, err error) {
	if len(page0) < fspSpaceFlagsOff+4 {
		return 0, 0, model.FspFlags{}, errs.New(errs.KindIO, "page 0 too short for FSP header: %d bytes", len(page0))
	}
	spaceID = beUint32(page0, fspSpaceIDOff)
	pageCount = beUint32(page0, fspSizeOff)
	raw := beUint32(page0, fspSpaceFlagsOff)
	flags = DecodeFlags(raw)
	if err := Validate(flags); err != nil {
		return 0, 0, model.FspFlags{}, err
	}
	return spaceID, pageCount, flags, nil
}

func beUint32(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}
