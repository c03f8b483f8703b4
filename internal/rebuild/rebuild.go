// Package rebuild implements the compressed-to-uncompressed tablespace
// transform: decompress every page to 16 KiB, rebuild the SDI root as a
// fresh INDEX page, optionally remap index ids, and restamp every
// page's checksum/LSN before writing it out.
package rebuild

import (
	"bytes"
	"os"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/innodb-tools/ibdproc/internal/codec"
	"github.com/innodb-tools/ibdproc/internal/compression"
	"github.com/innodb-tools/ibdproc/internal/errs"
	"github.com/innodb-tools/ibdproc/internal/geometry"
	"github.com/innodb-tools/ibdproc/internal/lob"
	"github.com/innodb-tools/ibdproc/internal/model"
	"github.com/innodb-tools/ibdproc/internal/obslog"
)

// Page directory / record layout constants used when emitting a fresh
// SDI root page.
const (
	pageNewInfimum  = 99
	pageNewSupremum = 112
	dirSlotMaxOwned = 8
	pageDirOff      = compression.LogicalPageSize - 8 // PAGE_DIR grows backward from the 8-byte trailer

	// sdiRecordPrologueSize is the fixed portion of an SDI record ahead
	// of its payload: type(4) id(8) trx_id(6) roll_ptr(7) uncomp_len(4)
	// comp_len(4).
	sdiRecordPrologueSize = 33
	// sdiExternalRefSize is the width of the external LOB reference an
	// oversized SDI record carries in place of an inline payload.
	sdiExternalRefSize = 20
	// sdiPointerFieldSize is the width of the (version, root_page) SDI
	// pointer field stamped into page 0.
	sdiPointerFieldSize = 8
)

// IndexIDRemap maps a source index id to its target id, used when the
// rebuilt tablespace's dictionary assigns new index ids to the same
// logical indexes.
type IndexIDRemap map[uint64]uint64

// Options configures one rebuild run.
type Options struct {
	Remap          IndexIDRemap
	UseSourceRoot  bool // --use-source-sdi-root
	UseTargetRoot  bool // --use-target-sdi-root
}

// Engine rebuilds a compressed tablespace file into an uncompressed one.
type Engine struct {
	log   obslog.Logger
	codec compression.Codec
}

// NewEngine builds a rebuild Engine.
func NewEngine(log obslog.Logger) *Engine {
	return &Engine{log: log, codec: compression.NewCodec()}
}

// Rebuild reads srcPath (a compressed tablespace) and writes a fully
// uncompressed 16 KiB-page tablespace to dstPath.
func (e *Engine) Rebuild(srcPath, dstPath string, opts Options) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errs.Wrap(errs.KindIO, err, "open source %s", srcPath)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return errs.Wrap(errs.KindIO, err, "create destination %s", dstPath)
	}
	defer dst.Close()

	info, err := src.Stat()
	if err != nil {
		return errs.Wrap(errs.KindIO, err, "stat %s", srcPath)
	}

	page0Physical := make([]byte, compression.LogicalPageSize)
	if _, err := src.ReadAt(page0Physical, 0); err != nil {
		return errs.Wrap(errs.KindIO, err, "read source page 0")
	}
	spaceID, pageCount, flags, err := geometry.ReadFSPHeader(page0Physical)
	if err != nil {
		return err
	}
	physSize, err := geometry.PhysicalPageSize(flags)
	if err != nil {
		return err
	}
	if physSize == compression.LogicalPageSize {
		return errs.New(errs.KindRebuildImpossible, "%s is not a compressed tablespace", srcPath)
	}

	expectedPages := uint32(info.Size() / int64(physSize))
	if expectedPages < pageCount {
		e.log.Warn("file shorter than FSP page count, truncating", "fsp_pages", pageCount, "file_pages", expectedPages)
		pageCount = expectedPages
	}

	srcPages := &sourcePageSource{src: src, physSize: physSize, codec: e.codec}
	lobReader := lob.NewReader(srcPages, 0)

	var sdiRootPage uint32
	var sdiPointerOldOff int
	var sdiPointerOldVal []byte

	for pageNo := uint32(0); pageNo < pageCount; pageNo++ {
		physical := make([]byte, physSize)
		if _, err := src.ReadAt(physical, int64(pageNo)*int64(physSize)); err != nil {
			return errs.OnPage(errs.KindIO, errs.Fatal, int64(pageNo), err)
		}

		logical, err := e.expandPage(physical, flags)
		if err != nil {
			return errs.OnPage(errs.KindRebuildImpossible, errs.Fatal, int64(pageNo), err)
		}

		if pageNo == 0 {
			clearZipSSizeFlag(logical)
			if flags.SDIFlag {
				sdiPointerOldOff = sdiFieldOffset(physSize)
				sdiPointerOldVal = append([]byte(nil), logical[sdiPointerOldOff:sdiPointerOldOff+sdiPointerFieldSize]...)
			}
		}
		if model.PageType(beUint16(logical, 24)) == model.PageTypeSDI {
			sdiRootPage = pageNo
			logical, err = e.rebuildSDIRoot(logical, lobReader)
			if err != nil {
				return errs.OnPage(errs.KindRebuildImpossible, errs.Fatal, int64(pageNo), err)
			}
		}
		if len(opts.Remap) > 0 {
			remapIndexID(logical, opts.Remap)
		}

		stampPage(logical, spaceID, pageNo)

		if _, err := dst.WriteAt(logical, int64(pageNo)*int64(compression.LogicalPageSize)); err != nil {
			return errs.OnPage(errs.KindIO, errs.Fatal, int64(pageNo), err)
		}
	}

	if flags.SDIFlag && sdiPointerOldVal != nil {
		if err := migrateSDIPointer(dst, sdiPointerOldVal, sdiRootPage); err != nil {
			return err
		}
	}

	return nil
}

// rebuildSDIRoot parses the SDI entries out of an already-decompressed
// SDI root page and lays them out fresh via BuildSDIRoot, resolving any
// entry that was stored externally through the LOB chain it lives on so
// its JSON payload can be re-packed as a single zlib record. Entries
// that still do not fit inline are logged; BuildSDIRoot leaves each of
// them on the page as a record with a zeroed 20-byte external reference,
// and no SDI BLOB pages are written for their payload.
func (e *Engine) rebuildSDIRoot(page []byte, lobReader *lob.Reader) ([]byte, error) {
	entries, externalRefs, err := parseSDIEntries(page)
	if err != nil {
		return nil, err
	}
	for _, ext := range externalRefs {
		data, _, err := lobReader.Read(decodeSDIExternalRef(ext.Ref))
		if err != nil {
			e.log.Warn("sdi entry external payload unavailable, dropping from rebuilt root", "id", ext.ID, "error", err.Error())
			continue
		}
		var recompressed bytes.Buffer
		zw := zlib.NewWriter(&recompressed)
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, errs.Wrap(errs.KindRebuildImpossible, err, "recompress sdi entry %d", ext.ID)
		}
		if err := zw.Close(); err != nil {
			return nil, errs.Wrap(errs.KindRebuildImpossible, err, "recompress sdi entry %d", ext.ID)
		}
		entries = append(entries, SDIEntry{Type: ext.Type, ID: ext.ID, Payload: recompressed.Bytes()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type < entries[j].Type
		}
		return entries[i].ID < entries[j].ID
	})
	result := BuildSDIRoot(entries)
	if len(result.External) > 0 {
		e.log.Warn("sdi entries spilled past the rebuilt root's inline budget, dropped", "count", len(result.External))
	}
	const pageTypeOff = 24
	codec.PutUint16(result.Page, pageTypeOff, uint16(model.PageTypeSDI))
	return result.Page, nil
}

// expandPage decompresses INDEX/RTREE/SDI pages to full logical size
// and copies everything else (stored at physical size on disk in a
// COMPRESSED tablespace) into a zero-padded logical-size buffer.
func (e *Engine) expandPage(physical []byte, flags model.FspFlags) ([]byte, error) {
	pageType := model.PageType(beUint16(physical, 24))
	if !pageType.IsIndexLike() {
		out := make([]byte, compression.LogicalPageSize)
		copy(out, physical)
		return out, nil
	}
	out, err := e.codec.Decompress(physical)
	if err != nil {
		if pageType == model.PageTypeRTree {
			e.log.Warn("rtree page decompress failed during rebuild, copying as-is")
			padded := make([]byte, compression.LogicalPageSize)
			copy(padded, physical)
			return padded, nil
		}
		return nil, err
	}
	return out, nil
}

// clearZipSSizeFlag zeroes the ZIP_SSIZE bits of the FSP flags word in
// a freshly expanded page 0, marking the rebuilt tablespace as
// uncompressed.
func clearZipSSizeFlag(page0 []byte) {
	const fspSpaceFlagsOff = 38 + 16
	raw := beUint32(page0, fspSpaceFlagsOff)
	raw &^= 0xF << 1 // ZIP_SSIZE occupies bits 1..4
	codec.PutUint32(page0, fspSpaceFlagsOff, raw)
}

// remapIndexID rewrites PAGE_INDEX_ID (8 bytes at offset 38+28 in the
// page header) for INDEX/RTREE pages per the configured remap table.
func remapIndexID(page []byte, remap IndexIDRemap) {
	pageType := model.PageType(beUint16(page, 24))
	if pageType != model.PageTypeIndex && pageType != model.PageTypeRTree {
		return
	}
	const pageIndexIDOff = 38 + 28
	if len(page) < pageIndexIDOff+8 {
		return
	}
	cur := beUint64(page, pageIndexIDOff)
	if dst, ok := remap[cur]; ok {
		codec.PutUint64(page, pageIndexIDOff, dst)
	}
}

// stampPage writes the space id into the page header, zeroes the LSN
// (rebuilt pages are not replayable against any redo log) and
// recomputes the CRC32C checksum the same way the parser's page
// validation expects.
func stampPage(page []byte, spaceID, pageNo uint32) {
	const filSpaceIDOff = 34
	const filPageNoOff = 4
	const filLSNOff = 16
	codec.PutUint32(page, filPageNoOff, pageNo)
	codec.PutUint32(page, filSpaceIDOff, spaceID)
	codec.PutUint64(page, filLSNOff, 0)

	size := len(page)
	codec.PutUint64(page, size-8, 0) // trailer LSN stamp

	crc := codec.CRC32C(page[4:38]) ^ codec.CRC32C(page[38:size-8])
	codec.PutUint32(page, 0, crc)
	codec.PutUint32(page, size-8, crc)
}

// SDIEntry is one SDI record to lay out on a rebuilt root page: its
// (type, id) key and its zlib-compressed JSON payload. BuildSDIRoot
// writes one COMPACT record per entry in the order given; entries whose
// payload does not fit inline are returned in BuildResult.External, and
// no fragment pages are allocated for them.
type SDIEntry struct {
	Type uint32
	ID   uint64
	Payload []byte // zlib-compressed SDI JSON for this single entry
}

type BuildResult struct {
	Page     []byte
	External []SDIEntry
}

// BuildSDIRoot lays out entries, in the order given (rebuildSDIRoot
// sorts them ascending by (type, id) first), into a single fresh INDEX page,
// spilling any entry whose inline record would overflow the page to
// the External list.
func BuildSDIRoot(entries []SDIEntry) BuildResult {
	page := make([]byte, compression.LogicalPageSize)
	installInfimumSupremum(page)

	const pageDataStart = 120 // first byte after PAGE_NEW_SUPREMUM's record body
	cursor := pageDataStart
	recordBudget := pageDirOff - 2 // leave room for the minimal 2-slot directory

	var external []SDIEntry
	var recordOrigins []int

	prevOrigin := pageNewInfimum
	for _, e := range entries {
		recLen := sdiRecordPrologueSize + len(e.Payload)
		useExternal := len(e.Payload) > 0x3fff || cursor+recLen+6 > recordBudget

		var body []byte
		if useExternal {
			external = append(external, e)
			body = encodeRecordPrologue(e, nil, true)
		} else {
			body = encodeRecordPrologue(e, e.Payload, false)
		}

		origin := cursor + 6 // 6-byte header prologue precedes the record origin
		if origin+len(body) > recordBudget {
			external = append(external, e)
			continue
		}
		copy(page[origin:], body)
		linkRecord(page, prevOrigin, origin)
		recordOrigins = append(recordOrigins, origin)
		prevOrigin = origin
		cursor = origin + len(body)
	}
	linkRecord(page, prevOrigin, pageNewSupremum)

	buildPageDirectory(page, recordOrigins)

	return BuildResult{Page: page, External: external}
}

func installInfimumSupremum(page []byte) {
	copy(page[pageNewInfimum:], []byte("infimum\x00"))
	copy(page[pageNewSupremum:], []byte("supremum"))
}

// encodeRecordPrologue builds an SDI record's fixed fields
// (type, id, trx_id, roll_ptr, uncomp_len, comp_len) followed by either
// the inline payload or a placeholder for a 20-byte external reference.
func encodeRecordPrologue(e SDIEntry, inlinePayload []byte, external bool) []byte {
	buf := make([]byte, 0, sdiRecordPrologueSize+len(inlinePayload))
	var tmp [8]byte

	codec.PutUint32(tmp[:4], 0, e.Type)
	buf = append(buf, tmp[:4]...)
	codec.PutUint64(tmp[:8], 0, e.ID)
	buf = append(buf, tmp[:8]...)
	buf = append(buf, make([]byte, 6)...) // trx_id, zeroed
	buf = append(buf, make([]byte, 7)...) // roll_ptr, zeroed

	uncompLen := uint32(0)
	compLen := uint32(len(inlinePayload))
	codec.PutUint32(tmp[:4], 0, uncompLen)
	buf = append(buf, tmp[:4]...)
	codec.PutUint32(tmp[:4], 0, compLen)
	buf = append(buf, tmp[:4]...)

	if external {
		buf = append(buf, make([]byte, sdiExternalRefSize)...) // LOBRef placeholder
	} else {
		buf = append(buf, inlinePayload...)
	}
	return buf
}

// linkRecord writes the REC_NEXT relative delta from prevOrigin to
// nextOrigin.
func linkRecord(page []byte, prevOrigin, nextOrigin int) {
	delta := int16(nextOrigin - prevOrigin)
	codec.PutUint16(page, prevOrigin-2, uint16(delta))
}

// buildPageDirectory groups record origins into PAGE_DIR_SLOT_MAX_N_OWNED
// slots and writes the 2-byte per-slot offsets growing backward from
// the page trailer.
func buildPageDirectory(page []byte, origins []int) {
	slots := []int{pageNewSupremum}
	for i := len(origins) - 1; i >= 0; i -= dirSlotMaxOwned {
		slots = append(slots, origins[i])
	}
	slots = append(slots, pageNewInfimum)

	nSlots := len(slots)
	const pageNDirSlotsOff = 38 + 0 // PAGE_HEADER + PAGE_N_DIR_SLOTS, the page header's first field
	codec.PutUint16(page, pageNDirSlotsOff, uint16(nSlots))

	dirBase := pageDirOff
	for i, off := range slots {
		slotOff := dirBase - (i+1)*2
		codec.PutUint16(page, slotOff, uint16(off))
	}
}

func beUint16(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

func beUint32(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

func beUint64(b []byte, off int) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[off+i])
	}
	return v
}

// externalSDIEntryRef is an SDI record whose payload was stored
// off-page; Ref is the raw 20-byte LOB reference exactly as it appears
// in the record, decoded lazily by decodeSDIExternalRef.
type externalSDIEntryRef struct {
	Type uint32
	ID   uint64
	Ref  []byte
}

// parseSDIEntries walks an SDI root page's record chain from
// PAGE_NEW_INFIMUM, splitting entries into ones whose payload is inline
// (comp_len > 0) and ones stored externally (comp_len == 0, followed by
// a 20-byte LOB reference instead of payload bytes) — the mirror image
// of encodeRecordPrologue/BuildSDIRoot's own write-side layout.
func parseSDIEntries(page []byte) (inline []SDIEntry, external []externalSDIEntryRef, err error) {
	origin := pageNewInfimum
	for steps := 0; steps < 1<<20; steps++ {
		if origin-2 < 0 || origin-2+2 > len(page) {
			return nil, nil, errs.New(errs.KindRebuildImpossible, "sdi page record chain ran off the page")
		}
		delta := int16(beUint16(page, origin-2))
		next := origin + int(delta)
		if next == pageNewSupremum {
			return inline, external, nil
		}
		if next < 0 || next+sdiRecordPrologueSize > len(page) {
			return nil, nil, errs.New(errs.KindRebuildImpossible, "sdi record at offset %d runs past the page", next)
		}
		rec := page[next:]
		typ := beUint32(rec, 0)
		id := beUint64(rec, 4)
		compLen := beUint32(rec, 29)
		payloadOff := next + sdiRecordPrologueSize
		if compLen == 0 {
			if payloadOff+sdiExternalRefSize > len(page) {
				return nil, nil, errs.New(errs.KindRebuildImpossible, "sdi external record at offset %d runs past the page", next)
			}
			ref := append([]byte(nil), page[payloadOff:payloadOff+sdiExternalRefSize]...)
			external = append(external, externalSDIEntryRef{Type: typ, ID: id, Ref: ref})
		} else {
			if payloadOff+int(compLen) > len(page) {
				return nil, nil, errs.New(errs.KindRebuildImpossible, "sdi record at offset %d overruns the page", next)
			}
			payload := append([]byte(nil), page[payloadOff:payloadOff+int(compLen)]...)
			inline = append(inline, SDIEntry{Type: typ, ID: id, Payload: payload})
		}
		origin = next
	}
	return nil, nil, errs.New(errs.KindRebuildImpossible, "sdi page record chain did not terminate")
}

// decodeSDIExternalRef parses the 20-byte off-page reference an
// external SDI record carries (space_id: u32, page_no: u32, offset:
// u32, length: u64 with the top bit marking a being-modified LOB,
// mirroring record.externalRef's field layout for ordinary off-page
// columns).
func decodeSDIExternalRef(raw []byte) model.LOBRef {
	const beingModifiedFlag = uint64(1) << 63
	rawLen := beUint64(raw, 12) &^ beingModifiedFlag
	return model.LOBRef{
		SpaceID: beUint32(raw, 0),
		PageNo:  beUint32(raw, 4),
		Offset:  beUint32(raw, 8),
		Length:  rawLen,
	}
}

// sdiFieldOffset locates the 8-byte (version: u32, root_page: u32) SDI
// pointer field in page 0. It is anchored to the page trailer the same
// way pageDirOff anchors PAGE_DIR: immediately before the 8-byte
// checksum/LSN trailer. Its absolute byte offset therefore depends on
// the page's physical size, which is why rebuilding into a larger
// uncompressed page requires moving the field rather than leaving it in
// place.
func sdiFieldOffset(pageSize int) int {
	return pageSize - 8 - sdiPointerFieldSize
}

// migrateSDIPointer copies the SDI (version, root_page) field read
// earlier from the source page 0 into the rebuilt page 0's offset for
// the logical (always 16 KiB) page size, leaving the field's bytes
// themselves unchanged — only its position moves. oldVal is the 8-byte
// value already captured from the source page before it was expanded
// and overwritten in place.
func migrateSDIPointer(dst *os.File, oldVal []byte, sdiRootPage uint32) error {
	newOff := sdiFieldOffset(compression.LogicalPageSize)
	page0 := make([]byte, compression.LogicalPageSize)
	if _, err := dst.ReadAt(page0, 0); err != nil {
		return errs.Wrap(errs.KindIO, err, "read rebuilt page 0 for sdi pointer migration")
	}
	copy(page0[newOff:newOff+sdiPointerFieldSize], oldVal)
	codec.PutUint32(page0, newOff+4, sdiRootPage)
	stampTrailerChecksum(page0)
	if _, err := dst.WriteAt(page0, 0); err != nil {
		return errs.Wrap(errs.KindIO, err, "write migrated sdi pointer")
	}
	return nil
}

// stampTrailerChecksum recomputes page 0's CRC32C after the SDI
// pointer migration patches bytes in place post-stampPage.
func stampTrailerChecksum(page []byte) {
	size := len(page)
	crc := codec.CRC32C(page[4:38]) ^ codec.CRC32C(page[38:size-8])
	codec.PutUint32(page, 0, crc)
	codec.PutUint32(page, size-8, crc)
}

// sourcePageSource gives the LOB reader random access to any page of
// the source tablespace (decrypting is not needed here: SDI external
// fragments are read straight from the compressed source, same as
// every other page the main rebuild loop walks), decompressing
// index-like pages transparently.
type sourcePageSource struct {
	src      *os.File
	physSize int
	codec    compression.Codec
}

func (s *sourcePageSource) ReadPage(pageNo uint32) ([]byte, error) {
	physical := make([]byte, s.physSize)
	if _, err := s.src.ReadAt(physical, int64(pageNo)*int64(s.physSize)); err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "read source page %d for sdi lob chain", pageNo)
	}
	pageType := model.PageType(beUint16(physical, 24))
	if !pageType.IsIndexLike() {
		return physical, nil
	}
	out, err := s.codec.Decompress(physical)
	if err != nil {
		return nil, err
	}
	return out, nil
}
