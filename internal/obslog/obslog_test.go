package obslog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/obslog"
)

func TestRecorderCapturesEntries(t *testing.T) {
	rec := obslog.NewRecorder()
	rec.Info("opened tablespace", "path", "t1.ibd")
	rec.Warn("skipping page", "page", 3)

	require.Len(t, rec.Entries, 2)
	require.Equal(t, "info", rec.Entries[0].Level)
	require.Equal(t, "opened tablespace", rec.Entries[0].Msg)
	require.Equal(t, []any{"path", "t1.ibd"}, rec.Entries[0].KV)
	require.Equal(t, "warn", rec.Entries[1].Level)
}

func TestRecorderWithReturnsSameRecorder(t *testing.T) {
	rec := obslog.NewRecorder()
	child := rec.With("page", 1)
	child.Info("hello")
	require.Len(t, rec.Entries, 1)
}

func TestNewBuildsNonNilLogger(t *testing.T) {
	log := obslog.New(false)
	require.NotNil(t, log)
	log.Debug("should be filtered at info level")
}
