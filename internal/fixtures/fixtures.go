// Package fixtures builds synthetic pages, keyring files and SDI
// documents for tests, so the test suite never needs checked-in binary
// blobs. A small set of builder functions (FSPHeaderPage, KeyringFile,
// SampleSDIDocument) assemble each buffer field by field.
package fixtures

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/innodb-tools/ibdproc/internal/codec"
)

const LogicalPageSize = 16384

// FSPHeaderPage builds a synthetic page 0 with the given space id, page
// count and raw FSP flags word, suitable for geometry.ReadFSPHeader.
func FSPHeaderPage(spaceID, pageCount, fspFlags uint32) []byte {
	page := make([]byte, LogicalPageSize)
	const fspHdrOffset = 38
	codec.PutUint32(page, fspHdrOffset+0, spaceID)
	codec.PutUint32(page, fspHdrOffset+8, pageCount)
	codec.PutUint32(page, fspHdrOffset+16, fspFlags)
	codec.PutUint16(page, 24, 8) // FIL_PAGE_TYPE = FSP_HDR
	return page
}

// KeyringFile builds a Percona keyring_file-format buffer containing
// one entry for (serverUUID, masterKeyID) -> keyBytes.
func KeyringFile(serverUUID string, masterKeyID uint32, keyBytes []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("Keyring file version:1.0")

	keyID := "INNODBKey-" + serverUUID + "-" + itoa(masterKeyID)
	record := bytes.Join([][]byte{
		[]byte(keyID),
		[]byte("AES"),
		[]byte(""),
		[]byte(itoa(uint32(len(keyBytes)))),
		keyBytes,
	}, []byte{0})

	deobfuscated := append([]byte(nil), record...)
	xorMask(deobfuscated)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(deobfuscated)))
	buf.Write(lenBuf[:])
	buf.Write(deobfuscated)

	return buf.Bytes()
}

var obfuscationKey = []byte("*305=Ljt0*!#2Ejt")

func xorMask(buf []byte) {
	for i := range buf {
		buf[i] ^= obfuscationKey[i%len(obfuscationKey)]
	}
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

// SampleSDIDocument returns a minimal single-table SDI JSON document
// (already including the "ibd2sdi" marker prefix) with two columns and
// one clustered primary key index.
func SampleSDIDocument() []byte {
	return []byte(`ibd2sdi
{
  "type": 1,
  "id": 1025,
  "object": {
    "name": "t1",
    "schema_ref": {"name": "test"},
    "columns": [
      {"name": "id", "ordinal_position": 1, "column_type_utf8": "int", "is_nullable": false, "is_unsigned": false, "char_length": 4, "collation_name": "", "is_virtual": false, "hidden": "HT_VISIBLE"},
      {"name": "name", "ordinal_position": 2, "column_type_utf8": "varchar(255)", "is_nullable": true, "is_unsigned": false, "char_length": 255, "collation_name": "utf8mb4_general_ci", "is_virtual": false, "hidden": "HT_VISIBLE"}
    ],
    "indexes": [
      {"name": "PRIMARY", "id": 501, "type": "IT_CLUSTERED", "elements": [{"column_opx": 1}]}
    ]
  }
}`)
}

// WriteTempFile writes data to a new file under dir and returns its path.
func WriteTempFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
