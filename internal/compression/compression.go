// Package compression implements InnoDB page (de)compression: a
// compressed physical page (512 bytes to 8K) holds a zlib stream that
// inflates to a full 16 KiB logical page. Grounded on the mebo repo's
// compress.Codec wrapper pattern (an interface wrapping a real
// third-party codec rather than a hand-rolled one) and the go-innodb
// reference snippets (compressed.go, types.go) for the page-size table
// and compressed-page detection heuristic.
package compression

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/innodb-tools/ibdproc/internal/errs"
)

// LogicalPageSize is the uncompressed (logical) InnoDB page size this
// tool supports.
const LogicalPageSize = 16384

// CompressedPageSizes enumerates the physical page sizes a
// ROW_FORMAT=COMPRESSED tablespace may use, smallest first, per the
// ZIP_SSIZE domain (512 << (ZIP_SSIZE-1), ZIP_SSIZE 1..5).
var CompressedPageSizes = [...]int{512, 1024, 2048, 4096, 8192}

// IsCompressedSize reports whether n is one of the valid compressed
// physical page sizes.
func IsCompressedSize(n int) bool {
	for _, s := range CompressedPageSizes {
		if s == n {
			return true
		}
	}
	return false
}

// Codec is the narrow compression capability the pipeline depends on,
// mirroring the mebo repo's Compress/Decompress interface shape so the
// zlib implementation below can be swapped in tests.
type Codec interface {
	Decompress(physical []byte) ([]byte, error)
	Compress(logical []byte, physicalSize int) ([]byte, error)
}

type zlibCodec struct{}

// NewCodec returns the production Codec backed by klauspost/compress/zlib.
func NewCodec() Codec { return zlibCodec{} }

// Decompress inflates an INDEX/RTREE/SDI page's compressed payload
// (everything past the FIL header's page-modification-log prefix is
// handled by the caller; this only wraps the raw zlib stream) into a
// full logical-size page. The trailing bytes beyond the inflated output
// are left zero, matching how InnoDB itself pads a decompressed page.
func (zlibCodec) Decompress(physical []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(physical))
	if err != nil {
		return nil, errs.Wrap(errs.KindDecompressionFailed, err, "open zlib stream")
	}
	defer r.Close()

	out := make([]byte, LogicalPageSize)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errs.Wrap(errs.KindDecompressionFailed, err, "inflate page")
	}
	if n == 0 {
		return nil, errs.New(errs.KindDecompressionFailed, "inflate produced zero bytes")
	}
	return out, nil
}

// Compress deflates a logical page into a zero-padded buffer of
// physicalSize bytes. It produces the raw zlib stream only: unlike real
// InnoDB recompression, it does not rewrite the page directory for the
// smaller physical footprint.
func (zlibCodec) Compress(logical []byte, physicalSize int) ([]byte, error) {
	if !IsCompressedSize(physicalSize) {
		return nil, errs.New(errs.KindDecompressionFailed, "invalid target physical size %d", physicalSize)
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecompressionFailed, err, "open zlib writer")
	}
	if _, err := w.Write(logical); err != nil {
		_ = w.Close()
		return nil, errs.Wrap(errs.KindDecompressionFailed, err, "deflate page")
	}
	if err := w.Close(); err != nil {
		return nil, errs.Wrap(errs.KindDecompressionFailed, err, "close zlib writer")
	}
	if buf.Len() > physicalSize {
		return nil, errs.New(errs.KindDecompressionFailed,
			"compressed page %d bytes exceeds target physical size %d", buf.Len(), physicalSize)
	}
	out := make([]byte, physicalSize)
	copy(out, buf.Bytes())
	return out, nil
}
