// Package runconfig resolves the environment variables and global flags
// that every subcommand needs into a single RunConfig value, built once
// in main and threaded down explicitly rather than read from
// package-level flag vars at arbitrary call sites.
package runconfig

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// RunConfig is the resolved configuration for one invocation of ibdproc.
type RunConfig struct {
	Debug       bool
	Location    *time.Location
	DataDir     string
	LobMaxBytes int64
	Workers     int
}

const defaultLobMaxBytes = 4 << 20 // 4 MiB default LOB read cap

// Overrides carries the CLI flag values that, when set, take precedence
// over the equivalent environment variable.
type Overrides struct {
	Debug       bool
	TZ          string
	DataDir     string
	LobMaxBytes int64
	Workers     int
}

// Resolve builds a RunConfig from environment variables, then lets any
// non-zero fields in o take precedence (CLI flags win over env).
func Resolve(o Overrides) (RunConfig, error) {
	cfg := RunConfig{
		Debug:       o.Debug || os.Getenv("IB_PARSER_DEBUG") == "1",
		LobMaxBytes: defaultLobMaxBytes,
		Workers:     1,
	}

	tz := o.TZ
	if tz == "" {
		tz = os.Getenv("IB_PARSER_TZ")
	}
	loc := time.UTC
	if tz != "" {
		resolved, err := time.LoadLocation(tz)
		if err != nil {
			return RunConfig{}, errors.Wrapf(err, "resolve timezone %q", tz)
		}
		loc = resolved
	}
	cfg.Location = loc

	dataDir := o.DataDir
	if dataDir == "" {
		dataDir = os.Getenv("IB_PARSER_DATADIR")
	}
	if dataDir == "" {
		dataDir = os.Getenv("MYSQL_DATADIR")
	}
	if dataDir != "" {
		abs, err := filepath.Abs(dataDir)
		if err != nil {
			return RunConfig{}, errors.Wrapf(err, "resolve datadir %q", dataDir)
		}
		dataDir = abs
	}
	cfg.DataDir = dataDir

	if o.LobMaxBytes > 0 {
		cfg.LobMaxBytes = o.LobMaxBytes
	}
	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}

	return cfg, nil
}

// ResolvePath joins a relative path (e.g. a table name from SDI JSON)
// against the configured DataDir. Absolute paths are returned unchanged.
func (c RunConfig) ResolvePath(name string) string {
	if filepath.IsAbs(name) || c.DataDir == "" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}
