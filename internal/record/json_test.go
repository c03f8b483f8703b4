package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeBinaryJSONScalars(t *testing.T) {
	// literal true
	raw := []byte{jsonLiteral, jsonLiteralTrue}
	s, err := decodeBinaryJSON(raw)
	require.NoError(t, err)
	require.Equal(t, "true", s)

	// int32 little-endian value 42
	raw = []byte{jsonInt32, 42, 0, 0, 0}
	s, err = decodeBinaryJSON(raw)
	require.NoError(t, err)
	require.Equal(t, "42", s)

	// string "hi" with a varint length prefix
	raw = []byte{jsonString, 2, 'h', 'i'}
	s, err = decodeBinaryJSON(raw)
	require.NoError(t, err)
	require.Equal(t, `"hi"`, s)
}

func TestDecodeBinaryJSONSmallObject(t *testing.T) {
	body := make([]byte, 15)
	body[0], body[1] = 1, 0 // count = 1
	body[2], body[3] = 15, 0 // size (unused by the decoder)
	body[4], body[5] = 11, 0 // key offset
	body[6], body[7] = 1, 0  // key length
	body[8] = jsonString     // value type tag
	body[9], body[10] = 12, 0 // value offset
	body[11] = 'a'
	body[12] = 2 // varint string length
	body[13], body[14] = 'o', 'k'

	raw := append([]byte{jsonSmallObject}, body...)
	s, err := decodeBinaryJSON(raw)
	require.NoError(t, err)
	require.Equal(t, `{"a":"ok"}`, s)
}

func TestDecodeBinaryJSONEmpty(t *testing.T) {
	s, err := decodeBinaryJSON(nil)
	require.NoError(t, err)
	require.Equal(t, "null", s)
}
