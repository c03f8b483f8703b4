// Package sdi parses Serialized Dictionary Information: the JSON
// document MySQL 8.0 embeds in a tablespace's SDI pages describing the
// table's schema (columns, indexes, collations) well enough to decode
// COMPACT records without a running server. Grounded on the
// other_examples ibd_reader.go's treatment of SDI as a distinct
// extraction mode, reimplemented in pure Go JSON decoding (encoding/json
// is the right tool here — the document is standard JSON, not a
// bespoke binary format, so no third-party parser earns its keep;
// justified in DESIGN.md).
package sdi

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/innodb-tools/ibdproc/internal/errs"
	"github.com/innodb-tools/ibdproc/internal/model"
)

// marker is the literal string MySQL prefixes an SDI JSON blob with.
const marker = "ibd2sdi"

// rawEnvelope mirrors one entry of an SDI JSON document: the entry's
// type and id, and the dictionary object it describes.
type rawEnvelope struct {
	Type    int        `json:"type"`
	ID      uint64     `json:"id"`
	Object  rawObject  `json:"object"`
}

type rawObject struct {
	Name    string      `json:"name"`
	Schema  rawSchemaRef `json:"schema_ref"`
	Columns []rawColumn `json:"columns"`
	Indexes []rawIndex  `json:"indexes"`
}

type rawSchemaRef struct {
	Name string `json:"name"`
}

type rawColumn struct {
	Name       string `json:"name"`
	Ordinal    int    `json:"ordinal_position"`
	ColumnType string `json:"column_type_utf8"`
	IsNullable bool    `json:"is_nullable"`
	IsUnsigned bool    `json:"is_unsigned"`
	CharLength int    `json:"char_length"`
	Precision  int    `json:"numeric_precision"`
	Scale      int    `json:"numeric_scale"`
	Collation  string `json:"collation_name"`
	IsVirtual  bool    `json:"is_virtual"`
	HiddenType string `json:"hidden"`
	Elements   []rawColumnElement `json:"elements"`
}

// rawColumnElement is one ENUM/SET element as SDI describes it: a
// 1-based declaration position and its name.
type rawColumnElement struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

type rawIndex struct {
	Name        string         `json:"name"`
	ID          uint64         `json:"id"`
	IndexType   string         `json:"type"`
	Elements    []rawIndexElem `json:"elements"`
}

type rawIndexElem struct {
	ColumnOpx int `json:"column_opx"`
}

// ExtractJSON strips the "ibd2sdi" marker framing from a raw SDI page
// payload and returns the embedded JSON document bytes.
func ExtractJSON(payload []byte) ([]byte, error) {
	idx := indexOf(payload, marker)
	if idx < 0 {
		return nil, errs.New(errs.KindSdiParseError, "ibd2sdi marker not found")
	}
	start := indexOfByte(payload[idx:], '{')
	if start < 0 {
		return nil, errs.New(errs.KindSdiParseError, "no JSON object after ibd2sdi marker")
	}
	return payload[idx+start:], nil
}

func indexOf(haystack []byte, needle string) int {
	return strings.Index(string(haystack), needle)
}

func indexOfByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// ParseTable decodes a single table dictionary object's SDI JSON into
// the model.Table shape the record decoder needs. Real SDI documents
// describe the whole array of objects for a tablespace (tables and the
// tablespace object itself); callers locate the table-typed entry and
// pass just that document here.
func ParseTable(doc []byte) (model.Table, error) {
	var env rawEnvelope
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return model.Table{}, errs.Wrap(errs.KindSdiParseError, err, "decode SDI table object")
	}

	t := model.Table{
		SchemaName: env.Object.Schema.Name,
		Name:       env.Object.Name,
	}
	for _, c := range env.Object.Columns {
		t.Columns = append(t.Columns, model.Column{
			Name:       c.Name,
			Ordinal:    c.Ordinal,
			FieldType:  c.ColumnType,
			IsNullable: c.IsNullable,
			IsUnsigned: c.IsUnsigned,
			CharLength: c.CharLength,
			Precision:  c.Precision,
			Scale:      c.Scale,
			Collation:  c.Collation,
			IsVirtual:  c.IsVirtual,
			HiddenType: c.HiddenType,
			Elements:   elementNames(c.Elements),
		})
	}
	for _, idx := range env.Object.Indexes {
		var keyParts []int
		for _, el := range idx.Elements {
			keyParts = append(keyParts, el.ColumnOpx)
		}
		t.Indexes = append(t.Indexes, model.Index{
			Name:        idx.Name,
			ID:          idx.ID,
			IsClustered: strings.EqualFold(idx.IndexType, "IT_CLUSTERED") || strings.EqualFold(idx.IndexType, "primary"),
			KeyParts:    keyParts,
		})
	}
	if len(t.Columns) == 0 {
		return t, errs.New(errs.KindSdiParseError, "table object %q has no columns", t.Name)
	}
	return t, nil
}

// elementNames reorders an SDI column's "elements" array (ENUM/SET
// members, each carrying its own 1-based declaration index rather than
// relying on array order) into a slice where position i holds element
// i+1's name.
func elementNames(raw []rawColumnElement) []string {
	if len(raw) == 0 {
		return nil
	}
	max := 0
	for _, e := range raw {
		if e.Index > max {
			max = e.Index
		}
	}
	if max == 0 {
		max = len(raw)
	}
	out := make([]string, max)
	for i, e := range raw {
		idx := e.Index
		if idx == 0 {
			idx = i + 1
		}
		if idx >= 1 && idx <= max {
			out[idx-1] = e.Name
		}
	}
	return out
}

// ClusteredIndex returns the table's clustered index, or the implicit
// synthesized one is the caller's responsibility (record package
// synthesizes DB_ROW_ID when no PK/clustered index is present).
func ClusteredIndex(t model.Table) (model.Index, bool) {
	for _, idx := range t.Indexes {
		if idx.IsClustered {
			return idx, true
		}
	}
	return model.Index{}, false
}
