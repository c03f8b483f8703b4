package record

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/innodb-tools/ibdproc/internal/model"
)

// decodeValue converts raw on-disk bytes for col into a Go-native value
// suitable for output, dispatching on the column's base SQL type.
func decodeValue(col model.Column, raw []byte, loc *time.Location) (any, error) {
	switch baseType(col.FieldType) {
	case "tinyint":
		return signOrUnsigned(uint64(raw[0]), 1, col.IsUnsigned), nil
	case "smallint", "year":
		v := beUint(raw)
		return signOrUnsigned(v, 2, col.IsUnsigned), nil
	case "mediumint":
		v := beUint(raw)
		return signOrUnsigned(v, 3, col.IsUnsigned), nil
	case "int", "integer":
		v := beUint(raw)
		return signOrUnsigned(v, 4, col.IsUnsigned), nil
	case "bigint":
		v := beUint(raw)
		return signOrUnsigned(v, 8, col.IsUnsigned), nil
	case "float":
		return decodeFloat(raw), nil
	case "double":
		return decodeDouble(raw), nil
	case "char", "varchar", "binary", "varbinary",
		"tinyblob", "blob", "mediumblob", "longblob",
		"tinytext", "text", "mediumtext", "longtext":
		return decodeString(col, raw), nil
	case "date":
		return decodeDate(raw), nil
	case "time":
		return decodeTime(raw, col.Scale), nil
	case "datetime":
		return decodeDatetime(raw, col.Scale, loc), nil
	case "timestamp":
		return decodeTimestamp(raw, col.Scale, loc), nil
	case "decimal", "numeric":
		return decodeDecimal(raw, col.Precision, col.Scale), nil
	case "enum":
		return decodeEnum(col, raw), nil
	case "set":
		return decodeSet(col, raw), nil
	case "bit":
		return beUint(raw), nil
	case "json":
		return decodeJSONPlaceholder(raw), nil
	default:
		return hex.EncodeToString(raw), nil
	}
}

func signOrUnsigned(v uint64, width int, unsigned bool) any {
	if unsigned {
		return v
	}
	bits := uint(width * 8)
	signBit := uint64(1) << (bits - 1)
	// InnoDB flips the sign bit of signed integers on disk so unsigned
	// big-endian comparison orders them correctly; flip it back.
	v ^= signBit
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func decodeFloat(b []byte) float32 {
	bits := uint32(beUint(b))
	return math.Float32frombits(bits)
}

func decodeDouble(b []byte) float64 {
	bits := beUint(b)
	return math.Float64frombits(bits)
}

// decodeString returns the column's raw bytes as UTF-8 text (binary
// collations are hex-encoded instead, since there's no text charset to
// decode against).
func decodeString(col model.Column, raw []byte) string {
	if strings.Contains(strings.ToLower(col.Collation), "bin") || baseType(col.FieldType) == "binary" || baseType(col.FieldType) == "varbinary" {
		return hex.EncodeToString(raw)
	}
	return convertCharset(col.Collation, raw)
}

// convertCharset converts raw to UTF-8 based on a collation name using
// golang.org/x/text/encoding; unrecognized/utf8-family collations are
// passed through unchanged (already valid UTF-8 on disk).
func convertCharset(collation string, raw []byte) string {
	c := strings.ToLower(collation)
	switch {
	case strings.HasPrefix(c, "utf8"), strings.HasPrefix(c, "binary"), c == "":
		return string(raw)
	case strings.HasPrefix(c, "latin1"):
		out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return string(raw)
		}
		return string(out)
	default:
		return string(raw)
	}
}

func decodeDate(raw []byte) string {
	v := beUint(raw)
	day := v & 0x1f
	month := (v >> 5) & 0xf
	year := v >> 9
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func decodeTime(raw []byte, dec int) string {
	v := beUint(raw[:3])
	neg := v&(1<<17) == 0
	if neg {
		v = ^v & 0xffffff
	}
	hh := (v >> 12) & 0x3ff
	mm := (v >> 6) & 0x3f
	ss := v & 0x3f
	sign := ""
	if neg {
		sign = "-"
	}
	frac := fracString(raw[3:], dec)
	return fmt.Sprintf("%s%02d:%02d:%02d%s", sign, hh, mm, ss, frac)
}

func decodeDatetime(raw []byte, dec int, loc *time.Location) string {
	v := beUint(raw[:5])
	ymdhms := v >> 1
	second := ymdhms & 0x3f
	minute := (ymdhms >> 6) & 0x3f
	hour := (ymdhms >> 12) & 0x1f
	day := (ymdhms >> 17) & 0x1f
	month := (ymdhms >> 22) & 0xf
	year := ymdhms >> 26
	frac := fracString(raw[5:], dec)
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d%s", year, month, day, hour, minute, second, frac)
}

func decodeTimestamp(raw []byte, dec int, loc *time.Location) string {
	secs := int64(beUint(raw[:4]))
	t := time.Unix(secs, 0).In(loc)
	frac := fracString(raw[4:], dec)
	return t.Format("2006-01-02 15:04:05") + frac
}

func fracString(raw []byte, dec int) string {
	if dec <= 0 || len(raw) == 0 {
		return ""
	}
	n := beUint(raw)
	// The fraction is stored big-endian in ceil(dec/2) bytes as a
	// 2*ceil(dec/2)-digit decimal value (dec 3 stores 1/10000 s); keep
	// its leading dec display digits.
	dec = min(dec, 6)
	stored := 2 * ((dec + 1) / 2)
	return fmt.Sprintf(".%0*d", dec, n/pow10(stored-dec))
}

func pow10(n int) uint64 {
	v := uint64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// decodeDecimal unpacks InnoDB's binary DECIMAL encoding: big-endian
// 9-digit (4-byte) groups for the integral part, sign carried in the
// high bit of the first byte.
func decodeDecimal(raw []byte, precision, scale int) string {
	if len(raw) == 0 {
		return "0"
	}
	buf := append([]byte(nil), raw...)
	negative := buf[0]&0x80 == 0
	buf[0] ^= 0x80
	if negative {
		for i := range buf {
			buf[i] = ^buf[i]
		}
	}

	intDigits := precision - scale
	intFull, intPartial := intDigits/9, intDigits%9
	fracFull, fracPartial := scale/9, scale%9

	var sb strings.Builder
	if negative {
		sb.WriteByte('-')
	}

	pos := 0
	if intPartial > 0 {
		w := digitBytes[intPartial]
		sb.WriteString(strconv.FormatUint(beUint(buf[pos:pos+w]), 10))
		pos += w
	}
	for i := 0; i < intFull; i++ {
		fmt.Fprintf(&sb, "%09d", beUint(buf[pos:pos+4]))
		pos += 4
	}
	if sb.Len() == 0 || (negative && sb.Len() == 1) {
		sb.WriteByte('0')
	}
	if scale > 0 {
		sb.WriteByte('.')
		for i := 0; i < fracFull; i++ {
			fmt.Fprintf(&sb, "%09d", beUint(buf[pos:pos+4]))
			pos += 4
		}
		if fracPartial > 0 {
			w := digitBytes[fracPartial]
			fmt.Fprintf(&sb, "%0*d", fracPartial, beUint(buf[pos:pos+w]))
			pos += w
		}
	}
	return sb.String()
}

// decodeEnum resolves a 1-based ENUM index into its declared element
// name. 0 (and any index past the declared element list) is MySQL's
// "invalid value" representation and renders as the empty string.
func decodeEnum(col model.Column, raw []byte) string {
	idx := beUint(raw)
	if idx == 0 || int(idx) > len(col.Elements) {
		return ""
	}
	return col.Elements[idx-1]
}

// decodeSet resolves a SET bitmask into its comma-joined element names,
// bit i (0-indexed) selecting Elements[i].
func decodeSet(col model.Column, raw []byte) string {
	mask := beUint(raw)
	var names []string
	for i, name := range col.Elements {
		if mask&(uint64(1)<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}

// decodeJSONPlaceholder renders MySQL's binary JSON representation. A
// full recursive decode of the binary-JSON opcode stream lives in
// json.go; this wraps it with a safe fallback to a hex dump on error
// since corrupt JSON in one column must not abort the page.
func decodeJSONPlaceholder(raw []byte) string {
	s, err := decodeBinaryJSON(raw)
	if err != nil {
		return hex.EncodeToString(raw)
	}
	return s
}

