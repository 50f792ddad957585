package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songplay_etl/internal/warehouse"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("etl", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("mode", "", "")
	fs.String("output", "", "")
	fs.Int("workers", 0, "")
	fs.String("log-level", "", "")
	fs.StringSlice("stages", nil, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ModeS3, cfg.Mode)
	in, out := cfg.Roots()
	assert.Equal(t, "s3a://udacity-dend/", in)
	assert.Equal(t, "s3a://songplay-lake/", out)
	assert.True(t, cfg.UsesS3())
	assert.True(t, cfg.S3.CheckAccess)
	assert.Equal(t, "us-west-2", cfg.S3.Region)
	assert.Equal(t, "song_data/A/A/A/*.json", cfg.SongGlob)
	assert.Equal(t, "log_data/*/*/*.json", cfg.LogGlob)
	assert.Equal(t, 2.0, cfg.DurationTolerance)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, warehouse.DefaultNames(), cfg.Tables)
	assert.Equal(t, 6*time.Hour, cfg.Timeout)
	assert.Equal(t, []string{StageSongs, StageLogs}, cfg.Stages)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, "dl.cfg", cfg.Credentials)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "etl.yaml", `
mode: local
local:
  input: fixtures/
  output: /tmp/lake
timezone: UTC
workers: 3
duration_tolerance: 1.5
compression: zstd
timeout: 30m
tables:
  songplays: facts
log:
  level: debug
stages: [logs]
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	in, out := cfg.Roots()
	assert.Equal(t, "fixtures/", in)
	assert.Equal(t, "/tmp/lake", out)
	assert.False(t, cfg.UsesS3())
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 1.5, cfg.DurationTolerance)
	assert.Equal(t, "zstd", cfg.Compression)
	assert.Equal(t, 30*time.Minute, cfg.Timeout)
	assert.Equal(t, "facts", cfg.Tables.SongPlays)
	assert.Equal(t, "songs", cfg.Tables.Songs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.RunsStage(StageLogs))
	assert.False(t, cfg.RunsStage(StageSongs))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "etl.yaml", "mode: local\nworkers: 3\n")
	t.Setenv("ETL_WORKERS", "5")
	t.Setenv("ETL_S3__REGION", "eu-west-1")
	t.Setenv("ETL_STAGES", "songs")
	t.Setenv("ETL_OUTPUT", "s3://other-lake/out")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, []string{"songs"}, cfg.Stages)

	in, out := cfg.Roots()
	assert.Equal(t, "data/", in)
	assert.Equal(t, "s3://other-lake/out", out)
	assert.True(t, cfg.UsesS3(), "an explicit s3 output still needs credentials")
}

func TestLoadFlagsWin(t *testing.T) {
	t.Setenv("ETL_WORKERS", "5")
	flags := testFlags(t, "--workers", "7", "--log-level", "warn", "--mode", "local", "--config", "ignored.yaml", "--stages", "songs,logs")

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, []string{"songs", "logs"}, cfg.Stages)
	assert.Empty(t, cfg.Output, "unset flags do not clobber")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"compression": "compression: lz4\n",
		"mode":        "mode: hdfs\n",
		"timezone":    "timezone: Mars/Olympus\n",
		"stage":       "stages: [songs, bogus]\n",
		"empty stage": "stages: []\n",
		"workers":     "workers: 0\n",
		"tolerance":   "duration_tolerance: -1\n",
		"output":      "output: \"gs://bucket\"\n",
		"metrics url": "metrics:\n  pushgateway_url: not a url\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "etl.yaml", body), nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
