package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/innodb-tools/ibdproc/internal/errs"
)

// MySQL binary JSON type tags (first byte of the encoded document).
const (
	jsonSmallObject = 0x00
	jsonLargeObject = 0x01
	jsonSmallArray  = 0x02
	jsonLargeArray  = 0x03
	jsonLiteral     = 0x04
	jsonInt16       = 0x05
	jsonUint16      = 0x06
	jsonInt32       = 0x07
	jsonUint32      = 0x08
	jsonInt64       = 0x09
	jsonUint64      = 0x0a
	jsonDouble      = 0x0b
	jsonString      = 0x0c
	jsonOpaque      = 0x0f
)

const (
	jsonLiteralNull  = 0x00
	jsonLiteralTrue  = 0x01
	jsonLiteralFalse = 0x02
)

// decodeBinaryJSON decodes a MySQL binary-JSON column value into a
// textual JSON representation.
func decodeBinaryJSON(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	var sb strings.Builder
	if err := decodeJSONValue(&sb, raw[0], raw[1:]); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func decodeJSONValue(sb *strings.Builder, typeTag byte, body []byte) error {
	switch typeTag {
	case jsonSmallObject:
		return decodeJSONObject(sb, body, false)
	case jsonLargeObject:
		return decodeJSONObject(sb, body, true)
	case jsonSmallArray:
		return decodeJSONArray(sb, body, false)
	case jsonLargeArray:
		return decodeJSONArray(sb, body, true)
	case jsonLiteral:
		if len(body) < 1 {
			return errs.New(errs.KindRecordCorrupted, "json literal truncated")
		}
		switch body[0] {
		case jsonLiteralNull:
			sb.WriteString("null")
		case jsonLiteralTrue:
			sb.WriteString("true")
		case jsonLiteralFalse:
			sb.WriteString("false")
		default:
			return errs.New(errs.KindRecordCorrupted, "unknown json literal tag %#x", body[0])
		}
		return nil
	case jsonInt16:
		sb.WriteString(strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(body))), 10))
		return nil
	case jsonUint16:
		sb.WriteString(strconv.FormatUint(uint64(binary.LittleEndian.Uint16(body)), 10))
		return nil
	case jsonInt32:
		sb.WriteString(strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(body))), 10))
		return nil
	case jsonUint32:
		sb.WriteString(strconv.FormatUint(uint64(binary.LittleEndian.Uint32(body)), 10))
		return nil
	case jsonInt64:
		sb.WriteString(strconv.FormatInt(int64(binary.LittleEndian.Uint64(body)), 10))
		return nil
	case jsonUint64:
		sb.WriteString(strconv.FormatUint(binary.LittleEndian.Uint64(body), 10))
		return nil
	case jsonDouble:
		bits := binary.LittleEndian.Uint64(body)
		sb.WriteString(strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64))
		return nil
	case jsonString:
		s, _, err := readJSONLengthPrefixedString(body)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "%q", s)
		return nil
	case jsonOpaque:
		if len(body) < 1 {
			return errs.New(errs.KindRecordCorrupted, "json opaque truncated")
		}
		s, _, err := readJSONLengthPrefixedString(body[1:])
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "%q", s)
		return nil
	default:
		return errs.New(errs.KindRecordCorrupted, "unsupported json type tag %#x", typeTag)
	}
}

func decodeJSONObject(sb *strings.Builder, body []byte, large bool) error {
	intSize := 2
	if large {
		intSize = 4
	}
	count, off := readJSONUint(body, 0, intSize)
	_, off = readJSONUint(body, off, intSize) // total byte size, unused

	type kv struct {
		key    string
		offset int
		typeTag byte
	}
	entries := make([]kv, 0, count)
	keyEntryOff := off
	for i := 0; i < count; i++ {
		keyOffset, o := readJSONUint(body, keyEntryOff, intSize)
		keyLen, o2 := readJSONUint(body, o, 2)
		keyEntryOff = o2
		if keyOffset+keyLen > len(body) {
			return errs.New(errs.KindRecordCorrupted, "json object key out of bounds")
		}
		entries = append(entries, kv{key: string(body[keyOffset : keyOffset+keyLen])})
	}
	valueEntrySize := intSize + 1
	if !large {
		valueEntrySize = 3
	}
	valueEntryOff := keyEntryOff
	for i := range entries {
		tag := body[valueEntryOff]
		valOff, _ := readJSONUint(body, valueEntryOff+1, intSize)
		entries[i].typeTag = tag
		entries[i].offset = valOff
		valueEntryOff += valueEntrySize
	}

	sb.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(sb, "%q:", e.key)
		if err := decodeInlineOrOffsetValue(sb, e.typeTag, body, e.offset, large); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func decodeJSONArray(sb *strings.Builder, body []byte, large bool) error {
	intSize := 2
	if large {
		intSize = 4
	}
	count, off := readJSONUint(body, 0, intSize)
	_, off = readJSONUint(body, off, intSize)

	valueEntrySize := intSize + 1
	if !large {
		valueEntrySize = 3
	}

	sb.WriteByte('[')
	for i := 0; i < count; i++ {
		entryOff := off + i*valueEntrySize
		if entryOff+valueEntrySize > len(body) {
			return errs.New(errs.KindRecordCorrupted, "json array entry out of bounds")
		}
		tag := body[entryOff]
		valOff, _ := readJSONUint(body, entryOff+1, intSize)
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := decodeInlineOrOffsetValue(sb, tag, body, valOff, large); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

// decodeInlineOrOffsetValue handles the small-value inline optimization:
// literals and 16-bit integers (and, in large documents, 32-bit
// integers) are stored directly in the entry's value slot, read here as
// offset, so they are decoded from the slot itself. Every other value is
// decoded from body at the byte offset the slot holds.
func decodeInlineOrOffsetValue(sb *strings.Builder, tag byte, body []byte, offset int, large bool) error {
	var slot [4]byte
	binary.LittleEndian.PutUint32(slot[:], uint32(offset))
	switch tag {
	case jsonLiteral, jsonInt16, jsonUint16:
		return decodeJSONValue(sb, tag, slot[:2])
	case jsonInt32, jsonUint32:
		if large {
			return decodeJSONValue(sb, tag, slot[:])
		}
	}
	if offset < 0 || offset >= len(body) {
		return errs.New(errs.KindRecordCorrupted, "json value offset %d out of bounds", offset)
	}
	return decodeJSONValue(sb, tag, body[offset:])
}

func readJSONUint(body []byte, off, size int) (int, int) {
	if off+size > len(body) {
		return 0, off + size
	}
	switch size {
	case 2:
		return int(binary.LittleEndian.Uint16(body[off:])), off + 2
	case 4:
		return int(binary.LittleEndian.Uint32(body[off:])), off + 4
	default:
		return 0, off + size
	}
}

// readJSONLengthPrefixedString reads a MySQL-style varint-length-prefixed
// UTF-8 string.
func readJSONLengthPrefixedString(body []byte) (string, int, error) {
	n, consumed, err := readVarint(body)
	if err != nil {
		return "", 0, err
	}
	if consumed+n > len(body) {
		return "", 0, errs.New(errs.KindRecordCorrupted, "json string length out of bounds")
	}
	return string(body[consumed : consumed+n]), consumed + n, nil
}

// readVarint reads MySQL's 7-bit-per-byte, little-endian-group varint.
func readVarint(body []byte) (value int, consumed int, err error) {
	for i := 0; i < len(body) && i < 5; i++ {
		b := body[i]
		value |= int(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, errs.New(errs.KindRecordCorrupted, "truncated json varint")
}
