package sdi_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/fixtures"
	"github.com/innodb-tools/ibdproc/internal/sdi"
)

func TestExtractJSONAndParseTable(t *testing.T) {
	payload := fixtures.SampleSDIDocument()

	doc, err := sdi.ExtractJSON(payload)
	require.NoError(t, err)

	table, err := sdi.ParseTable(doc)
	require.NoError(t, err)
	require.Equal(t, "t1", table.Name)
	require.Equal(t, "test", table.SchemaName)
	require.Len(t, table.Columns, 2)
	require.Equal(t, "id", table.Columns[0].Name)
	require.Equal(t, "varchar(255)", table.Columns[1].FieldType)

	idx, ok := sdi.ClusteredIndex(table)
	require.True(t, ok)
	require.Equal(t, "PRIMARY", idx.Name)
	require.Equal(t, []int{1}, idx.KeyParts)
}

func TestExtractJSONMissingMarker(t *testing.T) {
	_, err := sdi.ExtractJSON([]byte("not an sdi payload"))
	require.Error(t, err)
}

func TestParseTableRejectsEmptyColumns(t *testing.T) {
	doc := []byte(`{"type":1,"id":1,"object":{"name":"empty","schema_ref":{"name":"test"},"columns":[],"indexes":[]}}`)
	_, err := sdi.ParseTable(doc)
	require.Error(t, err)
}

func TestParseTableResolvesEnumSetElements(t *testing.T) {
	doc := []byte(`{"type":1,"id":1,"object":{"name":"t2","schema_ref":{"name":"test"},"columns":[
		{"name":"size","ordinal_position":1,"column_type_utf8":"enum","elements":[
			{"index":1,"name":"small"},{"index":2,"name":"medium"},{"index":3,"name":"large"}
		]},
		{"name":"colors","ordinal_position":2,"column_type_utf8":"set","elements":[
			{"index":1,"name":"red"},{"index":2,"name":"green"},{"index":3,"name":"blue"}
		]}
	],"indexes":[]}}`)

	table, err := sdi.ParseTable(doc)
	require.NoError(t, err)
	require.Equal(t, []string{"small", "medium", "large"}, table.Columns[0].Elements)
	require.Equal(t, []string{"red", "green", "blue"}, table.Columns[1].Elements)
}
