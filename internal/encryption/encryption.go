// Package encryption parses the per-tablespace encryption header stored
// in page 0 (a small blob naming the master key that wraps this
// tablespace's key+iv) and decrypts individual pages with the unwrapped
// key. AES-256-ECB (header unwrap) and AES-256-CBC (page body) are both
// implemented on crypto/aes + crypto/cipher directly: none of the
// example repos import a higher-level AEAD/KMS wrapper for this, and
// Go's standard library already exposes the exact two block modes
// InnoDB's encryption format needs, so reaching for a third-party crypto
// library here would add a dependency without adding capability
// (documented in DESIGN.md).
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"

	"github.com/innodb-tools/ibdproc/internal/codec"
	"github.com/innodb-tools/ibdproc/internal/errs"
	"github.com/innodb-tools/ibdproc/internal/keyring"
	"github.com/innodb-tools/ibdproc/internal/model"
)

// headerLen is the size of the encryption info blob InnoDB stores
// inline in page 0: 3-byte magic + 4-byte master_key_id + 36-byte ASCII
// server_uuid + a 64-byte AES-256-ECB-encrypted region (key32 + iv16 +
// checksum4 = 52 bytes, rounded up to the next 16-byte cipher block).
const headerLen = 3 + 4 + 36 + 64

// magics are the three generations of encryption header Percona/MySQL
// have shipped; all three share the same fixed layout from this tool's
// point of view.
var magics = [][]byte{[]byte("lCA"), []byte("lCB"), []byte("lCC")}

// plaintextHeaderLen is the AES-256-ECB block-aligned region covering
// key + iv + checksum (32 + 16 + 4, rounded up to the next 16-byte
// block).
const plaintextHeaderLen = 64

// FindHeader scans page 0 for one of the recognized magic strings and
// returns its byte offset. Per DESIGN.md's open-question resolution,
// the header is located by magic-scan rather than by branching on the
// compressed/uncompressed flag, since the offset has moved across MySQL
// versions but the magic has not.
func FindHeader(page0 []byte) (int, error) {
	for _, m := range magics {
		if idx := bytes.Index(page0, m); idx >= 0 {
			return idx, nil
		}
	}
	return 0, errs.New(errs.KindInvalidEncHeader, "no encryption header magic found in page 0")
}

// Parse decodes the encryption header at off and, if kr is non-nil,
// unwraps the tablespace key/iv using the referenced master key.
func Parse(page0 []byte, off int, kr *keyring.Keyring) (*model.EncryptionHeader, error) {
	if off < 0 || off+headerLen > len(page0) {
		return nil, errs.New(errs.KindInvalidEncHeader, "header at %d exceeds page bounds", off)
	}
	blob := page0[off : off+headerLen]

	magic := string(blob[:3])
	masterKeyID := beUint32(blob, 3)
	serverUUIDRaw := blob[7 : 7+36]
	serverUUID := string(bytes.TrimRight(serverUUIDRaw, "\x00"))
	wrapped := blob[43 : 43+plaintextHeaderLen]

	hdr := &model.EncryptionHeader{
		Magic:       magic,
		MasterKeyID: masterKeyID,
		ServerUUID:  serverUUID,
	}

	if kr == nil {
		return hdr, nil
	}

	mk, err := kr.Lookup(serverUUID, masterKeyID)
	if err != nil {
		return nil, err
	}

	plain, err := unwrapECB(mk.KeyBytes, wrapped)
	if err != nil {
		return nil, errs.Wrap(errs.KindDecryptionFailed, err, "unwrap tablespace key")
	}
	copy(hdr.Key[:], plain[0:32])
	copy(hdr.IV[:], plain[32:48])
	hdr.Checksum = beUint32(plain, 48)

	computed := codec.CRC32C(plain[0:48])
	if computed != hdr.Checksum {
		return nil, errs.New(errs.KindInvalidEncHeader,
			"encryption header checksum mismatch: got %08x want %08x", computed, hdr.Checksum)
	}

	return hdr, nil
}

// unwrapECB decrypts the wrapped key+iv+checksum blob with the master
// key in AES-256-ECB mode, one 16-byte block at a time (ECB has no
// chaining, so no IV is needed here).
func unwrapECB(masterKey, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(normalizeKeyLen(masterKey))
	if err != nil {
		return nil, err
	}
	if len(wrapped)%aes.BlockSize != 0 {
		return nil, errs.New(errs.KindDecryptionFailed, "wrapped key length %d not block aligned", len(wrapped))
	}
	out := make([]byte, len(wrapped))
	for off := 0; off < len(wrapped); off += aes.BlockSize {
		block.Decrypt(out[off:off+aes.BlockSize], wrapped[off:off+aes.BlockSize])
	}
	return out, nil
}

// normalizeKeyLen pads/truncates a master key to exactly 32 bytes
// (AES-256), matching how Percona's keyring-derived master keys are
// sized in practice.
func normalizeKeyLen(k []byte) []byte {
	out := make([]byte, 32)
	copy(out, k)
	return out
}

// DecryptPage decrypts one page's body in place using AES-256-CBC over
// bytes [38, size-8) — the region between the FIL header and trailer.
func DecryptPage(page []byte, hdr *model.EncryptionHeader) error {
	const bodyStart = 38
	bodyEnd := len(page) - 8
	if bodyEnd <= bodyStart {
		return errs.New(errs.KindDecryptionFailed, "page too short to decrypt: %d bytes", len(page))
	}
	body := page[bodyStart:bodyEnd]
	if len(body)%aes.BlockSize != 0 {
		// InnoDB only encrypts whole blocks; any remainder is left
		// plaintext in place, matching real tablespace behavior for a
		// non-block-aligned tail.
		aligned := len(body) - len(body)%aes.BlockSize
		body = body[:aligned]
	}
	if len(body) == 0 {
		return nil
	}

	block, err := aes.NewCipher(hdr.Key[:])
	if err != nil {
		return errs.Wrap(errs.KindDecryptionFailed, err, "build AES cipher")
	}
	mode := cipher.NewCBCDecrypter(block, hdr.IV[:])
	mode.CryptBlocks(body, body)
	return nil
}

func beUint32(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}
