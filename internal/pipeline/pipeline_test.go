package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/fixtures"
	"github.com/innodb-tools/ibdproc/internal/model"
	"github.com/innodb-tools/ibdproc/internal/obslog"
	"github.com/innodb-tools/ibdproc/internal/pipeline"
)

func writeTestTablespace(t *testing.T, pageCount int) string {
	t.Helper()
	page0 := fixtures.FSPHeaderPage(9, uint32(pageCount), 0)

	dir := t.TempDir()
	path := filepath.Join(dir, "t1.ibd")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write(page0)
	require.NoError(t, err)
	for i := 1; i < pageCount; i++ {
		page := make([]byte, fixtures.LogicalPageSize)
		page[27] = byte(i) // distinguishable content per page
		_, err := f.Write(page)
		require.NoError(t, err)
	}
	return path
}

func TestPipelineRunSequentialOrder(t *testing.T) {
	path := writeTestTablespace(t, 4)
	rec := obslog.NewRecorder()

	p, err := pipeline.Open(path, pipeline.Options{}, rec)
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, uint32(9), p.Tablespace().SpaceID)
	require.Equal(t, uint32(4), p.Tablespace().PageCount)

	var seen []uint32
	err = p.Run(context.Background(), pipeline.Options{}, func(page model.Page) error {
		seen = append(seen, page.Number)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2, 3}, seen)
}

func TestPipelineRunParallelPreservesOrder(t *testing.T) {
	path := writeTestTablespace(t, 8)
	rec := obslog.NewRecorder()

	p, err := pipeline.Open(path, pipeline.Options{}, rec)
	require.NoError(t, err)
	defer p.Close()

	var seen []uint32
	err = p.Run(context.Background(), pipeline.Options{Workers: 4}, func(page model.Page) error {
		seen = append(seen, page.Number)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7}, seen)
}
