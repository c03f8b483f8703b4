// Package cfg writes the binary .cfg file format MySQL reads back
// during ALTER TABLE ... IMPORT TABLESPACE. The layout is a fixed
// sequence of big-endian fields followed by per-column and per-index
// tables, appended field by field in order rather than through a
// generic encoder.
package cfg

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/innodb-tools/ibdproc/internal/errs"
	"github.com/innodb-tools/ibdproc/internal/model"
)

// Version is the IB_EXPORT_CFG_VERSION this writer emits.
const Version = 7

// CompressionType mirrors the compression_type byte MySQL's importer
// expects (0 none, 1 zlib, 2 lz4). This tool only ever emits 0 or 1
// since rebuild always targets an uncompressed or zlib-compressed
// tablespace.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionZlib CompressionType = 1
)

// Column is one exported column's CFG metadata.
type Column struct {
	PrType, MType, Len, MBMinMaxLen, Ind, OrdPart, MaxPrefix uint32
	Name                                                     string
	VersionAdded, VersionDropped                             uint8
	PhysicalPos                                              uint32

	// InstantDropped marks a column an instant ADD/DROP sequence
	// removed; it is written as a 22-byte dropped-column block right
	// after the column's usual prologue. DroppedElements carries
	// ENUM/SET member names for a dropped enum/set column.
	InstantDropped  bool
	DroppedElements []string

	// HasInstantDefault marks a column added via instant ADD COLUMN,
	// carrying the default value new rows backfill it with.
	// InstantDefaultNull distinguishes a NULL default from an empty
	// non-null one.
	HasInstantDefault  bool
	InstantDefaultNull bool
	InstantDefault     []byte
}

// IndexField is one key part of an exported index.
type IndexField struct {
	PrefixLen   uint32
	FixedLen    uint32
	IsAscending uint32
	Name        string
}

// Index is one exported index's CFG metadata.
type Index struct {
	ID               uint64
	Space            uint32
	Page             uint32
	Type             uint32
	TrxIDOffset      uint32
	NUserDefinedCols uint32
	NUniq            uint32
	NNullable        uint32
	NFields          uint32
	Name             string
	Fields           []IndexField
}

// Index type bits, mirroring InnoDB's dict0mem.h DICT_* flags.
const (
	IndexClustered uint32 = 1 << 0
	IndexUnique    uint32 = 1 << 1
	IndexSDI       uint32 = 1 << 8
)

// Document is everything needed to emit one .cfg file.
type Document struct {
	Hostname        string
	TableName       string
	AutoInc         uint64
	DictTableFlags  uint32
	NInstantNullable uint32
	InitialColCount uint32
	CurrentColCount uint32
	TotalColCount   uint32
	NInstantDropCols uint32
	CurrentRowVersion uint32
	SpaceFlags      model.FspFlags
	Compression     CompressionType
	Columns         []Column
	Indexes         []Index
}

// Write serializes doc to path in the fixed big-endian layout the
// importer expects.
func Write(path string, doc Document) error {
	var buf bytes.Buffer

	putU32(&buf, Version)
	putString(&buf, doc.Hostname)
	putString(&buf, doc.TableName)
	putU64(&buf, doc.AutoInc)
	putU32(&buf, 16384)
	putU32(&buf, doc.DictTableFlags)
	putU32(&buf, uint32(len(doc.Columns)))
	putU32(&buf, doc.NInstantNullable)
	putU32(&buf, doc.InitialColCount)
	putU32(&buf, doc.CurrentColCount)
	putU32(&buf, doc.TotalColCount)
	putU32(&buf, doc.NInstantDropCols)
	putU32(&buf, doc.CurrentRowVersion)
	putU32(&buf, doc.SpaceFlags.Raw)
	buf.WriteByte(byte(doc.Compression))

	for _, c := range doc.Columns {
		putU32(&buf, c.PrType)
		putU32(&buf, c.MType)
		putU32(&buf, c.Len)
		putU32(&buf, c.MBMinMaxLen)
		putU32(&buf, c.Ind)
		putU32(&buf, c.OrdPart)
		putU32(&buf, c.MaxPrefix)
		putString(&buf, c.Name)
		buf.WriteByte(c.VersionAdded)
		buf.WriteByte(c.VersionDropped)
		putU32(&buf, c.PhysicalPos)

		if c.InstantDropped {
			putDroppedColumnBlock(&buf, c)
		}

		if c.HasInstantDefault {
			buf.WriteByte(1)
			if c.InstantDefaultNull {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
				putU32(&buf, uint32(len(c.InstantDefault)))
				buf.Write(c.InstantDefault)
			}
		} else {
			buf.WriteByte(0)
		}
	}

	putU32(&buf, uint32(len(doc.Indexes)))
	for _, idx := range doc.Indexes {
		putU64(&buf, idx.ID)
		putU32(&buf, idx.Space)
		putU32(&buf, idx.Page)
		putU32(&buf, idx.Type)
		putU32(&buf, idx.TrxIDOffset)
		putU32(&buf, idx.NUserDefinedCols)
		putU32(&buf, idx.NUniq)
		putU32(&buf, idx.NNullable)
		putU32(&buf, idx.NFields)
		putString(&buf, idx.Name)
		for _, f := range idx.Fields {
			putU32(&buf, f.PrefixLen)
			putU32(&buf, f.FixedLen)
			putU32(&buf, f.IsAscending)
			putString(&buf, f.Name)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errs.Wrap(errs.KindIO, err, "write cfg file %s", path)
	}
	return nil
}

// putDroppedColumnBlock writes the 22-byte dropped-column block: the
// column's mtype/prtype/len/mbminmaxlen/phy_pos, its version_dropped,
// and a one-byte enum/set marker, followed by its element names when
// that marker is set.
func putDroppedColumnBlock(buf *bytes.Buffer, c Column) {
	putU32(buf, c.PrType)
	putU32(buf, c.MType)
	putU32(buf, c.Len)
	putU32(buf, c.MBMinMaxLen)
	putU32(buf, c.PhysicalPos)
	buf.WriteByte(c.VersionDropped)
	if len(c.DroppedElements) > 0 {
		buf.WriteByte(1)
		putU32(buf, uint32(len(c.DroppedElements)))
		for _, e := range c.DroppedElements {
			putString(buf, e)
		}
		return
	}
	buf.WriteByte(0)
}

func putU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func putU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

// putString writes a length-prefixed, NUL-terminated string, matching
// the `u32 len; bytes value\0` shape used throughout the .cfg layout.
func putString(buf *bytes.Buffer, s string) {
	putU32(buf, uint32(len(s)+1))
	buf.WriteString(s)
	buf.WriteByte(0)
}

// System column mtype/prtype values, mirroring InnoDB's data0type.h:
// DATA_SYS identifies a hidden system column, and the low bits of its
// prtype (DATA_ROW_ID=0, DATA_TRX_ID=1, DATA_ROLL_PTR=2) name which one.
const (
	dataSysMType  = 8
	prtypeRowID   = 0
	prtypeTrxID   = 1
	prtypeRollPtr = 2
	prtypeNotNull = 256
)

// FromTable derives a column list from SDI-parsed table metadata, used
// by the CLI's export path to build a Document without hand-assembling
// Column values. n_cols always includes a synthesized DB_ROW_ID ahead
// of DB_TRX_ID/DB_ROLL_PTR, matching current server export behavior
// regardless of whether the table has an explicit primary key.
func FromTable(t model.Table) []Column {
	cols := []Column{
		{Name: "DB_ROW_ID", MType: dataSysMType, PrType: prtypeRowID | prtypeNotNull, Len: 6, PhysicalPos: 0},
		{Name: "DB_TRX_ID", MType: dataSysMType, PrType: prtypeTrxID | prtypeNotNull, Len: 6, PhysicalPos: 1},
		{Name: "DB_ROLL_PTR", MType: dataSysMType, PrType: prtypeRollPtr | prtypeNotNull, Len: 7, PhysicalPos: 2},
	}
	for i, c := range t.Columns {
		cols = append(cols, Column{
			Len:         uint32(c.CharLength),
			Name:        c.Name,
			PhysicalPos: uint32(3 + i),
		})
	}
	return cols
}

// IndexesFromTable derives CFG index metadata from SDI-parsed indexes.
// When hasSDI is set, a synthesized CLUST_IND_SDI entry is written
// first, matching the writing order the importer expects for a
// tablespace that carries an SDI root.
func IndexesFromTable(t model.Table, hasSDI bool) []Index {
	var out []Index
	if hasSDI {
		out = append(out, Index{
			Name:             "CLUST_IND_SDI",
			Type:             IndexClustered | IndexUnique | IndexSDI,
			NUserDefinedCols: 1,
			NUniq:            1,
			NFields:          1,
			Fields:           []IndexField{{Name: "type", FixedLen: 4, IsAscending: 1}},
		})
	}

	byOrdinal := make(map[int]model.Column, len(t.Columns))
	for _, c := range t.Columns {
		byOrdinal[c.Ordinal] = c
	}

	for _, idx := range t.Indexes {
		fields := make([]IndexField, 0, len(idx.KeyParts))
		var nNullable uint32
		for _, opx := range idx.KeyParts {
			name := ""
			if c, ok := byOrdinal[opx]; ok {
				name = c.Name
				if c.IsNullable {
					nNullable++
				}
			}
			fields = append(fields, IndexField{Name: name, IsAscending: 1})
		}
		var typ uint32
		if idx.IsClustered {
			typ = IndexClustered | IndexUnique
		}
		out = append(out, Index{
			ID:               idx.ID,
			Type:             typ,
			NUserDefinedCols: uint32(len(idx.KeyParts)),
			NUniq:            uint32(len(idx.KeyParts)),
			NNullable:        nNullable,
			NFields:          uint32(len(fields)),
			Name:             idx.Name,
			Fields:           fields,
		})
	}
	return out
}
