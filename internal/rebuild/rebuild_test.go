package rebuild_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/compression"
	"github.com/innodb-tools/ibdproc/internal/rebuild"
)

func TestBuildSDIRootInlinesSmallEntries(t *testing.T) {
	entries := []rebuild.SDIEntry{
		{Type: 1, ID: 1, Payload: []byte("small sdi payload a")},
		{Type: 1, ID: 2, Payload: []byte("small sdi payload b")},
	}

	result := rebuild.BuildSDIRoot(entries)
	require.Len(t, result.Page, compression.LogicalPageSize)
	require.Empty(t, result.External)
	require.Contains(t, string(result.Page[99:107]), "infimum")
	require.Contains(t, string(result.Page[112:120]), "supremum")
}

func TestBuildSDIRootSpillsOversizedEntry(t *testing.T) {
	entries := []rebuild.SDIEntry{
		{Type: 1, ID: 1, Payload: make([]byte, 0x4000)},
	}

	result := rebuild.BuildSDIRoot(entries)
	require.Len(t, result.External, 1)
	require.Equal(t, uint64(1), result.External[0].ID)
}
