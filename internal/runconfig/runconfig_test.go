package runconfig_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/runconfig"
)

func TestResolveDefaults(t *testing.T) {
	t.Setenv("IB_PARSER_DEBUG", "")
	t.Setenv("IB_PARSER_TZ", "")
	t.Setenv("IB_PARSER_DATADIR", "")
	t.Setenv("MYSQL_DATADIR", "")

	cfg, err := runconfig.Resolve(runconfig.Overrides{})
	require.NoError(t, err)
	require.False(t, cfg.Debug)
	require.Equal(t, "UTC", cfg.Location.String())
	require.Equal(t, 1, cfg.Workers)
	require.Equal(t, int64(4<<20), cfg.LobMaxBytes)
}

func TestResolveOnlyNonZeroFlagsOverride(t *testing.T) {
	t.Setenv("IB_PARSER_DEBUG", "1")
	cfg, err := runconfig.Resolve(runconfig.Overrides{Debug: false, Workers: 8})
	require.NoError(t, err)
	require.True(t, cfg.Debug, "env var alone should still enable debug")
	require.Equal(t, 8, cfg.Workers)
}

func TestResolveInvalidTimezone(t *testing.T) {
	_, err := runconfig.Resolve(runconfig.Overrides{TZ: "Not/A/Zone"})
	require.Error(t, err)
}

func TestResolvePathJoinsDataDir(t *testing.T) {
	cfg, err := runconfig.Resolve(runconfig.Overrides{DataDir: "/var/lib/mysql"})
	require.NoError(t, err)
	require.Equal(t, "/var/lib/mysql/test/t1.ibd", cfg.ResolvePath("test/t1.ibd"))
	require.Equal(t, "/abs/path.ibd", cfg.ResolvePath("/abs/path.ibd"))
}
