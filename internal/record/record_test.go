package record

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/codec"
	"github.com/innodb-tools/ibdproc/internal/model"
)

func TestDecodeLeafPageSingleRow(t *testing.T) {
	table := model.Table{
		Name: "t1",
		Columns: []model.Column{
			{Name: "id", Ordinal: 1, FieldType: "int", IsUnsigned: true},
		},
		Indexes: []model.Index{
			{Name: "PRIMARY", IsClustered: true, KeyParts: []int{1}},
		},
	}
	idx := table.Indexes[0]

	page := make([]byte, 16384)
	const origin = 150

	// infimum (99) -> origin
	codec.PutUint16(page, PageNewInfimum+recNextOff, uint16(origin-PageNewInfimum))
	// origin -> supremum (112)
	codec.PutUint16(page, origin+recNextOff, uint16(int16(PageNewSupremum-origin)))

	page[origin+recInfoOff] = 0 // info byte: no version/instant flags

	valueOff := origin
	codec.PutUint32(page, valueOff, 0) // DB_TRX_ID high 4 bytes (of 6)
	page[valueOff+4] = 0
	page[valueOff+5] = 5
	valueOff += 6
	for i := 0; i < 6; i++ {
		page[valueOff+i] = 0
	}
	page[valueOff+6] = 1 // DB_ROLL_PTR low byte
	valueOff += 7
	codec.PutUint32(page, valueOff, 7) // id = 7

	dec := NewDecoder(table, idx, time.UTC)
	rows, err := dec.DecodeLeafPage(4, page)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.Len(t, row.Fields, 3)
	idField := row.Fields[2]
	require.Equal(t, "id", idField.Column)
	require.False(t, idField.IsNull)
	require.Equal(t, uint64(7), idField.Value)
}

func TestDecodeLeafPageEmpty(t *testing.T) {
	table := model.Table{
		Name:    "t1",
		Columns: []model.Column{{Name: "id", Ordinal: 1, FieldType: "int", IsUnsigned: true}},
		Indexes: []model.Index{{Name: "PRIMARY", IsClustered: true, KeyParts: []int{1}}},
	}
	page := make([]byte, 16384)
	codec.PutUint16(page, PageNewInfimum+recNextOff, uint16(PageNewSupremum-PageNewInfimum))

	dec := NewDecoder(table, table.Indexes[0], nil)
	rows, err := dec.DecodeLeafPage(1, page)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestFixedLengthSystemColumns(t *testing.T) {
	n, ok := fixedLength(dbTrxIDColumn)
	require.True(t, ok)
	require.Equal(t, 6, n)

	n, ok = fixedLength(dbRollPtrColumn)
	require.True(t, ok)
	require.Equal(t, 7, n)
}

func TestFixedLengthVariableTypeIsNotFixed(t *testing.T) {
	_, ok := fixedLength(model.Column{FieldType: "varchar(255)", CharLength: 255})
	require.False(t, ok)
}

func TestBaseType(t *testing.T) {
	require.Equal(t, "varchar", baseType("varchar(255)"))
	require.Equal(t, "decimal", baseType("decimal(10,2) unsigned"))
	require.Equal(t, "int", baseType("int"))
}

func TestDecodeDecimal(t *testing.T) {
	// decimal(10,2): int part 8 digits -> intFull=0, intPartial=8 ->
	// digitBytes[8]=4; frac 2 digits -> fracFull=0, fracPartial=2 ->
	// digitBytes[2]=1.
	raw := decodeDecimalEncode(t, 12345.67, 10, 2)
	got := decodeDecimal(raw, 10, 2)
	require.Equal(t, "12345.67", got)
}

// decodeDecimalEncode builds the on-disk bytes for a positive decimal
// value using the same group-packing decodeDecimal expects, so the test
// exercises round-trip semantics without hand-computing byte offsets.
func decodeDecimalEncode(t *testing.T, v float64, precision, scale int) []byte {
	t.Helper()
	intDigits := precision - scale
	intPartialW := digitBytes[intDigits%9]

	intPart := uint64(v)
	fracPart := uint64(math.Round((v - float64(intPart)) * 100))

	buf := make([]byte, decimalBinSize(precision, scale))
	off := 0
	if intDigits%9 > 0 {
		putBigEndian(buf[off:off+intPartialW], intPart)
		off += intPartialW
	}
	fracPartialW := digitBytes[scale%9]
	putBigEndian(buf[off:off+fracPartialW], fracPart)

	buf[0] |= 0x80 // positive sign bit
	return buf
}

func putBigEndian(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func TestDecodeEnum(t *testing.T) {
	col := model.Column{FieldType: "enum", Elements: []string{"small", "medium", "large"}}
	require.Equal(t, "medium", decodeEnum(col, []byte{2}))
	require.Equal(t, "", decodeEnum(col, []byte{0}))
	require.Equal(t, "", decodeEnum(col, []byte{9}))
}

func TestDecodeSet(t *testing.T) {
	col := model.Column{FieldType: "set", Elements: []string{"red", "green", "blue"}}
	require.Equal(t, "red,blue", decodeSet(col, []byte{0b101}))
	require.Equal(t, "", decodeSet(col, []byte{0}))
}

func TestSignOrUnsigned(t *testing.T) {
	require.Equal(t, int64(-1), signOrUnsigned(0x7fffffff, 4, false))
	require.Equal(t, int64(1), signOrUnsigned(0x80000001, 4, false))
	require.Equal(t, uint64(0xff), signOrUnsigned(0xff, 1, true))
}
