package cfg_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/cfg"
	"github.com/innodb-tools/ibdproc/internal/model"
)

func TestWriteProducesExpectedLayout(t *testing.T) {
	doc := cfg.Document{
		Hostname:       "db1",
		TableName:      "test/t1",
		AutoInc:        42,
		DictTableFlags: 33,
		TotalColCount:  1,
		SpaceFlags:     model.FspFlags{Raw: 0},
		Compression:    cfg.CompressionNone,
		Columns: []cfg.Column{
			{Len: 4, Name: "id", PhysicalPos: 0},
		},
	}

	path := filepath.Join(t.TempDir(), "t1.cfg")
	require.NoError(t, cfg.Write(path, doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	version := binary.BigEndian.Uint32(data[0:4])
	require.Equal(t, uint32(cfg.Version), version)

	off := 4
	hostLen := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	require.Equal(t, "db1\x00", string(data[off:off+int(hostLen)]))
	off += int(hostLen)

	tableLen := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	require.Equal(t, "test/t1\x00", string(data[off:off+int(tableLen)]))
	off += int(tableLen)

	autoInc := binary.BigEndian.Uint64(data[off : off+8])
	require.Equal(t, uint64(42), autoInc)
}

func TestFromTableDerivesColumns(t *testing.T) {
	table := model.Table{
		Columns: []model.Column{
			{Name: "id", Ordinal: 1, CharLength: 4},
			{Name: "name", Ordinal: 2, CharLength: 255},
		},
	}
	cols := cfg.FromTable(table)
	require.Len(t, cols, 5)
	require.Equal(t, "DB_ROW_ID", cols[0].Name)
	require.Equal(t, "DB_TRX_ID", cols[1].Name)
	require.Equal(t, "DB_ROLL_PTR", cols[2].Name)
	require.Equal(t, "id", cols[3].Name)
	require.Equal(t, uint32(4), cols[3].Len)
	require.Equal(t, uint32(3), cols[3].PhysicalPos)
	require.Equal(t, "name", cols[4].Name)
}

func TestIndexesFromTableSynthesizesSDIEntryFirst(t *testing.T) {
	table := model.Table{
		Columns: []model.Column{{Name: "id", Ordinal: 1}, {Name: "email", Ordinal: 2, IsNullable: true}},
		Indexes: []model.Index{
			{Name: "PRIMARY", ID: 1, IsClustered: true, KeyParts: []int{1}},
			{Name: "idx_email", ID: 2, KeyParts: []int{2}},
		},
	}
	idxs := cfg.IndexesFromTable(table, true)
	require.Len(t, idxs, 3)
	require.Equal(t, "CLUST_IND_SDI", idxs[0].Name)
	require.Equal(t, "PRIMARY", idxs[1].Name)
	require.NotZero(t, idxs[1].Type&cfg.IndexClustered)
	require.Equal(t, "idx_email", idxs[2].Name)
	require.Equal(t, uint32(1), idxs[2].NNullable)
}

func TestWriteEncodesColumnExtrasAndIndexSection(t *testing.T) {
	doc := cfg.Document{
		TableName: "test/t1",
		Columns: []cfg.Column{
			{
				Name: "note", PhysicalPos: 3,
				HasInstantDefault: true, InstantDefault: []byte("n/a"),
			},
			{
				Name: "old_col", PhysicalPos: 4,
				InstantDropped: true, VersionDropped: 2,
			},
		},
		Indexes: []cfg.Index{
			{Name: "PRIMARY", NFields: 1, Fields: []cfg.IndexField{{Name: "id", IsAscending: 1}}},
		},
	}

	path := filepath.Join(t.TempDir(), "t1.cfg")
	require.NoError(t, cfg.Write(path, doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "note\x00")
	require.Contains(t, string(data), "n/a")
	require.Contains(t, string(data), "old_col\x00")
	require.Contains(t, string(data), "PRIMARY\x00")
}
