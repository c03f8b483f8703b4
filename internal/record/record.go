// Package record decodes COMPACT-format InnoDB index records into typed
// column values by hand-walking the documented binary record layout:
// explicit offset arithmetic plus a type-dispatch switch (decodeValue)
// keyed on each column's declared SQL type.
package record

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/innodb-tools/ibdproc/internal/codec"
	"github.com/innodb-tools/ibdproc/internal/errs"
	"github.com/innodb-tools/ibdproc/internal/lob"
	"github.com/innodb-tools/ibdproc/internal/model"
)

// externalRefSize is the width of the off-page reference InnoDB appends
// to the locally stored part of an externally stored column.
const externalRefSize = 20

// Record layout offsets, relative to a record's origin (the first byte
// after its variable-length/null-bitmap prologue).
const (
	recNextOff  = -2 // 2-byte signed delta to next record
	recInfoOff  = -6 // info_bits + n_owned + record type packed into 1 byte here
	PageNewInfimum  = 99
	PageNewSupremum = 112
)

const (
	infoVersionFlag = 1 << 4
	infoInstantFlag = 1 << 5
	infoDeletedFlag = 1 << 5 // bit 5 of the record header flags byte (REC_INFO_DELETED_FLAG)
)

// Decoder walks a leaf page's singly linked record list and decodes
// each record into a model.Row using a table's column list.
type Decoder struct {
	Table   model.Table
	Index   model.Index
	Loc     *time.Location

	// Lob resolves externally stored column values through the page
	// chain they live on. A nil Lob (the zero value) means external
	// fields render as the "<extern:len:hex>" placeholder instead of
	// being followed.
	Lob *lob.Reader
}

// NewDecoder builds a Decoder bound to one table/index pair.
func NewDecoder(t model.Table, idx model.Index, loc *time.Location) *Decoder {
	if loc == nil {
		loc = time.UTC
	}
	return &Decoder{Table: t, Index: idx, Loc: loc}
}

// DecodeLeafPage walks every user record on an INDEX leaf page (skips
// the infimum/supremum pseudo-records) and returns one model.Row per
// record, in page order.
func (d *Decoder) DecodeLeafPage(pageNo uint32, page []byte) ([]model.Row, error) {
	var rows []model.Row

	origin := PageNewInfimum
	for {
		nextOrigin, err := d.nextRecordOrigin(page, origin)
		if err != nil {
			return rows, err
		}
		if nextOrigin == PageNewSupremum {
			break
		}
		row, err := d.decodeRecord(pageNo, page, nextOrigin)
		if err != nil {
			return rows, errs.OnPage(errs.KindRecordCorrupted, errs.Recoverable, int64(pageNo), err)
		}
		rows = append(rows, row)
		origin = nextOrigin

		if len(rows) > 1<<20 {
			return rows, errs.New(errs.KindRecordCorrupted, "page %d: record chain exceeds sanity bound", pageNo)
		}
	}
	return rows, nil
}

// nextRecordOrigin follows the REC_NEXT relative pointer stored 2 bytes
// before a record's origin.
func (d *Decoder) nextRecordOrigin(page []byte, origin int) (int, error) {
	s := codec.NewSlice(page)
	raw, err := s.Uint16(origin + recNextOff)
	if err != nil {
		return 0, err
	}
	delta := int(int16(raw))
	next := origin + delta
	if next < 0 || next >= len(page) {
		return 0, errs.New(errs.KindRecordCorrupted, "record next-pointer %d out of page bounds", next)
	}
	return next, nil
}

// decodeRecord reads one record's null bitmap, variable-length list and
// field values starting at origin.
func (d *Decoder) decodeRecord(pageNo uint32, page []byte, origin int) (model.Row, error) {
	cols := d.effectiveColumns()

	infoByte := page[origin+recInfoOff]
	nullBitmapEnd := origin + recInfoOff
	if infoByte&infoVersionFlag != 0 {
		nullBitmapEnd--
	}
	if infoByte&infoInstantFlag != 0 {
		nullBitmapEnd-- // simplification: assumes N_FIELDS fits one byte
	}

	nullableCount := 0
	for _, c := range cols {
		if c.IsNullable {
			nullableCount++
		}
	}
	nullBitmapBytes := (nullableCount + 7) / 8
	nullBitmapStart := nullBitmapEnd - nullBitmapBytes

	varLenCursor := nullBitmapStart // variable-length list grows backward from here too
	nullBit := 0

	fields := make([]model.FieldValue, 0, len(cols))
	valueOff := origin

	for _, col := range cols {
		isNull := false
		if col.IsNullable {
			byteIdx := nullBit / 8
			bitIdx := uint(nullBit % 8)
			if nullBitmapStart+byteIdx >= 0 && nullBitmapStart+byteIdx < len(page) {
				b := page[nullBitmapStart+byteIdx]
				isNull = b&(1<<bitIdx) != 0
			}
			nullBit++
		}

		fv := model.FieldValue{Column: col.Name, IsNull: isNull}
		if isNull {
			fields = append(fields, fv)
			continue
		}

		fixedLen, isFixed := fixedLength(col)
		var fieldLen int
		var isExternal bool
		if isFixed {
			fieldLen = fixedLen
		} else {
			n, ext, newCursor, err := readVarLen(page, varLenCursor, col)
			if err != nil {
				return model.Row{}, err
			}
			fieldLen = n
			isExternal = ext
			varLenCursor = newCursor
		}

		if valueOff+fieldLen > len(page) || fieldLen < 0 {
			return model.Row{}, errs.New(errs.KindRecordCorrupted,
				"field %s length %d exceeds page bounds at offset %d", col.Name, fieldLen, valueOff)
		}
		raw := page[valueOff : valueOff+fieldLen]

		if isExternal {
			fv.Value = d.decodeExternal(col, raw)
		} else {
			v, err := decodeValue(col, raw, d.Loc)
			if err != nil {
				return model.Row{}, errs.Wrap(errs.KindRecordCorrupted, err, "decode column %s", col.Name)
			}
			fv.Value = v
		}
		fields = append(fields, fv)
		valueOff += fieldLen
	}

	return model.Row{PageNo: pageNo, Fields: fields}, nil
}

// decodeExternal resolves an externally stored column's value through
// the LOB reader, falling back to the "<extern:len:hex>" placeholder
// when no reader is configured, the reference is still being modified,
// or the chain walk itself fails.
func (d *Decoder) decodeExternal(col model.Column, raw []byte) string {
	ref, ok := externalRef(raw)
	if !ok || d.Lob == nil {
		return externalPlaceholder(raw, ref.Length)
	}

	data, _, err := d.Lob.Read(ref)
	if err != nil {
		return externalPlaceholder(raw, ref.Length)
	}
	if isBinaryLobType(col) {
		return hex.EncodeToString(data)
	}
	return convertCharset(col.Collation, data)
}

// externalPlaceholder renders the fallback for a LOB field that could
// not be resolved: the reference's declared logical length and the raw
// locally stored bytes, hex-encoded.
func externalPlaceholder(raw []byte, length uint64) string {
	return "<extern:" + strconv.FormatUint(length, 10) + ":" + hex.EncodeToString(raw) + ">"
}

// isBinaryLobType reports whether col's declared type is one of the
// BLOB family (hex-rendered) as opposed to the TEXT/JSON family
// (charset-decoded), mirroring decodeString's binary/text split.
func isBinaryLobType(col model.Column) bool {
	switch baseType(col.FieldType) {
	case "tinyblob", "blob", "mediumblob", "longblob":
		return true
	default:
		return false
	}
}

// externalRef parses the 20-byte off-page reference InnoDB appends to
// an externally stored column's locally stored part: space id, page
// number, offset within that page, and an 8-byte length whose top bit
// is the "being modified" flag. ok is false if raw is too short to
// carry a reference, or if the being-modified flag is set (the chain
// is not safe to follow).
func externalRef(raw []byte) (ref model.LOBRef, ok bool) {
	if len(raw) < externalRefSize {
		return model.LOBRef{}, false
	}
	tail := codec.NewSlice(raw[len(raw)-externalRefSize:])
	spaceID, _ := tail.Uint32(0)
	pageNo, _ := tail.Uint32(4)
	offset, _ := tail.Uint32(8)
	rawLen, _ := tail.Uint64(12)
	const beingModifiedFlag = uint64(1) << 63
	beingModified := rawLen&beingModifiedFlag != 0
	ref = model.LOBRef{SpaceID: spaceID, PageNo: pageNo, Offset: offset, Length: rawLen &^ beingModifiedFlag}
	return ref, !beingModified
}
