package record

import (
	"strings"

	"github.com/innodb-tools/ibdproc/internal/model"
)

// dbRowIDColumn, dbTrxIDColumn and dbRollPtrColumn are the hidden
// clustered-index columns InnoDB synthesizes when a table has no
// explicit primary key. effectiveColumns always adds DB_TRX_ID and
// DB_ROLL_PTR to a clustered index's column list, and adds DB_ROW_ID
// only when the table has no index named PRIMARY.
var (
	dbRowIDColumn  = model.Column{Name: "DB_ROW_ID", FieldType: "bigint unsigned", CharLength: 6, IsUnsigned: true, HiddenType: "HT_HIDDEN_SE"}
	dbTrxIDColumn  = model.Column{Name: "DB_TRX_ID", FieldType: "bigint unsigned", CharLength: 6, IsUnsigned: true, HiddenType: "HT_HIDDEN_SE"}
	dbRollPtrColumn = model.Column{Name: "DB_ROLL_PTR", FieldType: "bigint unsigned", CharLength: 7, IsUnsigned: true, HiddenType: "HT_HIDDEN_SE"}
)

// effectiveColumns returns the column list in on-disk physical order
// for the bound index: clustered indexes carry the hidden system
// columns right after any synthesized DB_ROW_ID; secondary indexes
// carry their key parts followed by the clustered index's key (used to
// look up the full row), which this decoder surfaces as-is without
// following back to the clustered leaf.
func (d *Decoder) effectiveColumns() []model.Column {
	if !d.Index.IsClustered {
		return d.secondaryColumns()
	}

	// An explicit primary key means the user-visible leading columns of
	// the clustered index already are the key; hidden DB_ROW_ID is only
	// synthesized when none of the table's indexes is itself a PK.
	hasExplicitPK := false
	for _, idx := range d.Table.Indexes {
		if strings.EqualFold(idx.Name, "PRIMARY") {
			hasExplicitPK = true
			break
		}
	}

	cols := make([]model.Column, 0, len(d.Table.Columns)+3)
	if !hasExplicitPK {
		cols = append(cols, dbRowIDColumn)
	}
	cols = append(cols, dbTrxIDColumn, dbRollPtrColumn)
	for _, c := range d.Table.Columns {
		if c.IsVirtual {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// secondaryColumns returns a secondary index leaf's key parts followed
// by the primary key columns appended by InnoDB so the leaf can serve
// as a covering pointer back into the clustered index.
func (d *Decoder) secondaryColumns() []model.Column {
	byOrdinal := make(map[int]model.Column, len(d.Table.Columns))
	for _, c := range d.Table.Columns {
		byOrdinal[c.Ordinal] = c
	}

	var cols []model.Column
	seen := make(map[int]bool)
	for _, opx := range d.Index.KeyParts {
		if c, ok := byOrdinal[opx]; ok {
			cols = append(cols, c)
			seen[opx] = true
		}
	}
	if pk, ok := clusteredKeyOrdinals(d.Table); ok {
		for _, opx := range pk {
			if seen[opx] {
				continue
			}
			if c, ok := byOrdinal[opx]; ok {
				cols = append(cols, c)
			}
		}
	}
	return cols
}

func clusteredKeyOrdinals(t model.Table) ([]int, bool) {
	for _, idx := range t.Indexes {
		if idx.IsClustered {
			return idx.KeyParts, true
		}
	}
	return nil, false
}

// fixedLength returns the on-disk fixed byte length for col's declared
// type, and whether the type is fixed-length at all. Variable-length
// types (VARCHAR, VARBINARY, TEXT/BLOB family) return (0, false).
func fixedLength(col model.Column) (int, bool) {
	if col.HiddenType == "HT_HIDDEN_SE" {
		// DB_ROW_ID/DB_TRX_ID/DB_ROLL_PTR carry their true on-disk width
		// (6, 6, 7 bytes) in CharLength rather than the 8-byte width a
		// generic "bigint unsigned" column would imply.
		return col.CharLength, true
	}
	t := baseType(col.FieldType)
	switch t {
	case "tinyint":
		return 1, true
	case "smallint", "year":
		return 2, true
	case "mediumint":
		return 3, true
	case "int", "integer", "float":
		return 4, true
	case "bigint", "double":
		return 8, true
	case "char", "binary":
		return col.CharLength, true
	case "date":
		return 3, true
	case "time":
		return 3 + fracBytes(col.Scale), true
	case "datetime":
		return 5 + fracBytes(col.Scale), true
	case "timestamp":
		return 4 + fracBytes(col.Scale), true
	case "decimal", "numeric":
		return decimalBinSize(col.Precision, col.Scale), true
	case "enum":
		return enumByteWidth(col), true
	case "set":
		return setByteWidth(col), true
	case "bit":
		return (col.Precision + 7) / 8, true
	default:
		return 0, false
	}
}

func fracBytes(dec int) int {
	if dec <= 0 {
		return 0
	}
	return (dec + 1) / 2
}

// enumByteWidth follows MySQL's rule: 1 byte for <=255 elements, else 2.
func enumByteWidth(col model.Column) int {
	if len(col.Elements) > 255 {
		return 2
	}
	return 1
}

// setByteWidth packs one bit per declared element, rounded up to bytes.
func setByteWidth(col model.Column) int {
	return (len(col.Elements) + 7) / 8
}

// decimalBinSize mirrors InnoDB's decimal_bin_size: digits are packed
// in big-endian 9-digit (4-byte) groups plus a partial leftover group.
func decimalBinSize(precision, scale int) int {
	intDigits := precision - scale
	intFull, intPartial := intDigits/9, intDigits%9
	fracFull, fracPartial := scale/9, scale%9
	size := intFull*4 + fracFull*4
	size += digitBytes[intPartial] + digitBytes[fracPartial]
	return size
}

// digitBytes maps a partial-group digit count (0..8) to its packed
// byte width, per InnoDB's dig2bytes table.
var digitBytes = [9]int{0, 1, 1, 2, 2, 3, 3, 4, 4}

// baseType normalizes an SDI column_type_utf8 string (which may carry
// "(10,2)", "unsigned", etc.) down to its bare type keyword.
func baseType(fieldType string) string {
	t := strings.ToLower(fieldType)
	if idx := strings.IndexAny(t, "( "); idx >= 0 {
		t = t[:idx]
	}
	return t
}

// readVarLen reads the 1- or 2-byte variable-length prefix for col,
// growing backward from cursor, and returns the decoded length, whether
// the EXTERNAL flag was set, and the cursor's new position.
func readVarLen(page []byte, cursor int, col model.Column) (length int, external bool, newCursor int, err error) {
	needsTwoByte := col.CharLength > 255 || isLobType(col)

	if !needsTwoByte {
		b := page[cursor-1]
		return int(b), false, cursor - 1, nil
	}

	b0 := page[cursor-1]
	if b0&0x80 == 0 {
		// High bit clear: value fits in one byte despite the type
		// normally needing two (short value optimization).
		return int(b0), false, cursor - 1, nil
	}
	b1 := page[cursor-2]
	raw := (uint16(b0&0x3f) << 8) | uint16(b1)
	ext := b0&0x40 != 0
	return int(raw), ext, cursor - 2, nil
}

func isLobType(col model.Column) bool {
	switch baseType(col.FieldType) {
	case "tinyblob", "blob", "mediumblob", "longblob",
		"tinytext", "text", "mediumtext", "longtext", "json":
		return true
	default:
		return false
	}
}
