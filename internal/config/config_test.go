package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparkify/internal/etlerr"
	_ "sparkify/internal/storage/all"
)

// Env-mutating tests use t.Setenv and so cannot run in parallel.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Kind)
	assert.Equal(t, "host=127.0.0.1 dbname=sparkifydb user=student password=student", cfg.Storage.DSN)
	assert.Equal(t, "data/song_data", cfg.Input.SongData)
	assert.Equal(t, "data/log_data", cfg.Input.LogData)
	assert.Equal(t, "abort_file", cfg.Parser.BadLines)
	assert.Equal(t, "snowflake", cfg.Songplay.IDs)
	assert.Equal(t, int64(1), cfg.Songplay.Node)
	assert.Equal(t, "none", cfg.Metrics.Backend)
	assert.Equal(t, "sparkify_etl", cfg.Metrics.Job)
	assert.False(t, cfg.Tracing.Stdout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sparkify.yaml")
	yaml := strings.Join([]string{
		"storage:",
		"  kind: sqlite",
		"  dsn: file:from-file.db",
		"input:",
		"  song_data: /srv/song_data",
		"parser:",
		"  bad_lines: skip_record",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o644))

	t.Setenv("SPARKIFY_STORAGE_DSN", "file:from-env.db")
	t.Setenv("SPARKIFY_METRICS_BACKEND", "PushGateway")
	t.Setenv("SPARKIFY_TRACING_STDOUT", "true")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Kind)
	assert.Equal(t, "file:from-env.db", cfg.Storage.DSN)
	assert.Equal(t, "/srv/song_data", cfg.Input.SongData)
	assert.Equal(t, "data/log_data", cfg.Input.LogData)
	assert.Equal(t, "skip_record", cfg.Parser.BadLines)
	assert.Equal(t, "pushgateway", cfg.Metrics.Backend)
	assert.True(t, cfg.Tracing.Stdout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, etlerr.ErrInvalidConfig)
	assert.Equal(t, etlerr.ExitConfigError, etlerr.ExitCode(err))
}

func TestValidate_ReportsEveryIssue(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Storage:  Storage{Kind: "oracle"},
		Input:    Input{SongData: "s", LogData: ""},
		Parser:   Parser{BadLines: "ignore"},
		Songplay: Songplay{IDs: "snowflake", Node: 4096},
		Metrics:  Metrics{Backend: "statsd"},
	}
	err := cfg.Validate()
	require.ErrorIs(t, err, etlerr.ErrInvalidConfig)

	msg := err.Error()
	for _, want := range []string{
		`storage.kind "oracle"`,
		"storage.dsn is required",
		"input.log_data is required",
		"parser.bad_lines",
		"songplay.node 4096",
		`metrics.backend "statsd"`,
	} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, "input.song_data")

	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	assert.Len(t, joined.Unwrap(), 6)
}

func TestValidate_Accepts(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Storage:  Storage{Kind: "mssql", DSN: "sqlserver://sa@localhost?database=sparkifydb"},
		Input:    Input{SongData: "a", LogData: "b"},
		Parser:   Parser{BadLines: "abort_file"},
		Songplay: Songplay{IDs: "file_position"},
		Metrics:  Metrics{Backend: "datadog"},
	}
	require.NoError(t, cfg.Validate())

	cfg.Metrics = Metrics{Backend: "pushgateway"}
	require.ErrorContains(t, cfg.Validate(), "metrics.pushgateway_url")
}
