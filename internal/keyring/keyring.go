// Package keyring reads the Percona keyring file format used to store
// InnoDB master keys outside the server: a sequence of length-prefixed,
// XOR-obfuscated records, each naming a (server_uuid, master_key_id)
// pair and carrying the wrapped key bytes. Decoded field by field with
// explicit bounds checks rather than a generic binary unmarshaler.
package keyring

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/innodb-tools/ibdproc/internal/errs"
	"github.com/innodb-tools/ibdproc/internal/model"
)

// fileMagic is the literal prefix Percona's keyring_file plugin writes
// at the start of the backing file.
const fileMagic = "Keyring file version:1.0"

// obfuscationKey is the fixed XOR key Percona's keyring_file plugin uses
// to lightly obscure (not encrypt) on-disk entries.
var obfuscationKey = []byte("*305=Ljt0*!#2Ejt")

// Keyring maps (server_uuid, master_key_id) to key bytes.
type Keyring struct {
	keys map[string]model.MasterKey
}

// Load parses a full keyring file already read into memory.
func Load(data []byte) (*Keyring, error) {
	if !bytes.HasPrefix(data, []byte(fileMagic)) {
		return nil, errs.New(errs.KindKeyringMalformed, "missing keyring file magic")
	}
	r := bytes.NewReader(data[len(fileMagic):])

	kr := &Keyring{keys: make(map[string]model.MasterKey)}
	for {
		entry, err := readEntry(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.KindKeyringMalformed, err, "read keyring entry")
		}
		kr.keys[entry.ServerUUID+"\x00"+strconv.FormatUint(uint64(entry.MasterKeyID), 10)] = entry
	}
	return kr, nil
}

// readEntry reads one length-prefixed record: a 4-byte big-endian total
// length, followed by that many obfuscated bytes holding
// "<key_id>\x00<key_type>\x00<user>\x00<key_len>\x00<key_bytes>".
func readEntry(r *bytes.Reader) (model.MasterKey, error) {
	var recLen uint32
	if err := binary.Read(r, binary.BigEndian, &recLen); err != nil {
		if err == io.EOF {
			return model.MasterKey{}, io.EOF
		}
		return model.MasterKey{}, err
	}
	if recLen == 0 || recLen > 1<<20 {
		return model.MasterKey{}, errs.New(errs.KindKeyringMalformed, "implausible record length %d", recLen)
	}
	raw := make([]byte, recLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return model.MasterKey{}, err
	}
	deobfuscate(raw)

	fields := bytes.SplitN(raw, []byte{0}, 5)
	if len(fields) < 5 {
		return model.MasterKey{}, errs.New(errs.KindKeyringMalformed, "record has %d fields, want 5", len(fields))
	}

	keyID := string(fields[0]) // "INNODBKey-<uuid>-<master_key_id>"
	uuid, mkID, err := parseKeyID(keyID)
	if err != nil {
		return model.MasterKey{}, err
	}

	keyLen, err := strconv.Atoi(string(fields[3]))
	if err != nil {
		return model.MasterKey{}, errs.Wrap(errs.KindKeyringMalformed, err, "parse key length field")
	}
	keyBytes := fields[4]
	if keyLen >= 0 && keyLen <= len(keyBytes) {
		keyBytes = keyBytes[:keyLen]
	}

	return model.MasterKey{
		ServerUUID:  uuid,
		MasterKeyID: mkID,
		KeyBytes:    append([]byte(nil), keyBytes...),
	}, nil
}

// parseKeyID splits Percona's "INNODBKey-<server_uuid>-<master_key_id>"
// identifier into its two components.
func parseKeyID(keyID string) (uuid string, masterKeyID uint32, err error) {
	const prefix = "INNODBKey-"
	if !strings.HasPrefix(keyID, prefix) {
		return "", 0, errs.New(errs.KindKeyringMalformed, "unrecognized key id %q", keyID)
	}
	rest := keyID[len(prefix):]
	idx := strings.LastIndex(rest, "-")
	if idx < 0 {
		return "", 0, errs.New(errs.KindKeyringMalformed, "malformed key id %q", keyID)
	}
	uuid = rest[:idx]
	n, err := strconv.ParseUint(rest[idx+1:], 10, 32)
	if err != nil {
		return "", 0, errs.Wrap(errs.KindKeyringMalformed, err, "parse master key id from %q", keyID)
	}
	return uuid, uint32(n), nil
}

// deobfuscate XORs buf against the repeating obfuscation key in place.
func deobfuscate(buf []byte) {
	for i := range buf {
		buf[i] ^= obfuscationKey[i%len(obfuscationKey)]
	}
}

// Lookup returns the master key for (serverUUID, masterKeyID).
func (k *Keyring) Lookup(serverUUID string, masterKeyID uint32) (model.MasterKey, error) {
	key, ok := k.keys[serverUUID+"\x00"+strconv.FormatUint(uint64(masterKeyID), 10)]
	if !ok {
		return model.MasterKey{}, errs.New(errs.KindKeyNotFound,
			"no master key for server_uuid=%s master_key_id=%d", serverUUID, masterKeyID)
	}
	return key, nil
}

// Len reports how many keys were loaded, used by tests and diagnostics.
func (k *Keyring) Len() int { return len(k.keys) }
