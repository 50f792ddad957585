// Package config loads the job configuration.
//
// Sources, lowest to highest precedence: built-in defaults, an optional YAML
// file, ETL_-prefixed environment variables (ETL_S3__REGION -> s3.region)
// and command-line flags that were explicitly set.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"songplay_etl/internal/logging"
	"songplay_etl/internal/storage"
	"songplay_etl/internal/warehouse"
)

// DefaultFile is loaded when present and no file is named explicitly.
const DefaultFile = "etl.yaml"

const (
	ModeLocal = "local"
	ModeS3    = "s3"

	StageSongs = "songs"
	StageLogs  = "logs"
)

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the full job configuration.
type Config struct {
	// Mode selects the Local or S3 root preset.
	Mode string `koanf:"mode" json:"mode" validate:"required,oneof=local s3"`
	// Input and Output override the preset roots when set.
	Input  string `koanf:"input" json:"input"`
	Output string `koanf:"output" json:"output"`

	Local Roots    `koanf:"local" json:"local"`
	S3    S3Config `koanf:"s3" json:"s3"`

	// Credentials is the path of the credentials file.
	Credentials string `koanf:"credentials" json:"credentials"`

	SongGlob string `koanf:"song_glob" json:"song_glob" validate:"required"`
	LogGlob  string `koanf:"log_glob" json:"log_glob" validate:"required"`

	Timezone          string  `koanf:"timezone" json:"timezone" validate:"required"`
	Workers           int     `koanf:"workers" json:"workers" validate:"gte=1"`
	DurationTolerance float64 `koanf:"duration_tolerance" json:"duration_tolerance" validate:"gt=0"`
	Compression       string  `koanf:"compression" json:"compression" validate:"oneof=snappy gzip zstd uncompressed none"`
	// SpillDir stages encoded parquet parts on disk instead of in memory.
	SpillDir string `koanf:"spill_dir" json:"spill_dir" validate:"omitempty,dir"`

	Tables  warehouse.Names `koanf:"tables" json:"tables"`
	Log     logging.Config  `koanf:"log" json:"log"`
	Metrics MetricsConfig   `koanf:"metrics" json:"metrics"`

	// StatsPath receives the JSON run summary; empty disables it.
	StatsPath string        `koanf:"stats_path" json:"stats_path"`
	Timeout   time.Duration `koanf:"timeout" json:"timeout" validate:"gt=0"`
	Stages    []string      `koanf:"stages" json:"stages" validate:"min=1,dive,oneof=songs logs"`
}

// Roots is a pair of input/output root URIs.
type Roots struct {
	Input  string `koanf:"input" json:"input" validate:"required"`
	Output string `koanf:"output" json:"output" validate:"required"`
}

// S3Config holds the S3 preset roots and client options.
type S3Config struct {
	Input       string `koanf:"input" json:"input" validate:"required"`
	Output      string `koanf:"output" json:"output" validate:"required"`
	Region      string `koanf:"region" json:"region" validate:"required"`
	Endpoint    string `koanf:"endpoint" json:"endpoint"`
	PathStyle   bool   `koanf:"path_style" json:"path_style"`
	CheckAccess bool   `koanf:"check_access" json:"check_access"`
}

// MetricsConfig enables the Pushgateway backend when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url" json:"pushgateway_url" validate:"omitempty,url"`
	Job            string `koanf:"job" json:"job"`
}

// Defaults returns the built-in configuration as a koanf key map.
func Defaults() map[string]any {
	return map[string]any{
		"mode":               ModeS3,
		"local.input":        "data/",
		"local.output":       "output_data/",
		"s3.input":           "s3a://udacity-dend/",
		"s3.output":          "s3a://songplay-lake/",
		"s3.region":          "us-west-2",
		"s3.check_access":    true,
		"credentials":        "dl.cfg",
		"song_glob":          "song_data/A/A/A/*.json",
		"log_glob":           "log_data/*/*/*.json",
		"timezone":           "Local",
		"workers":            runtime.NumCPU() * 2,
		"duration_tolerance": 2.0,
		"compression":        "snappy",
		"tables.songs":       "songs",
		"tables.artists":     "artists",
		"tables.users":       "users",
		"tables.time":        "time",
		"tables.songplays":   "songplays",
		"log.level":          "info",
		"log.format":         "json",
		"metrics.job":        "songplay_etl",
		"stats_path":         "etl_stats.json",
		"timeout":            "6h",
		"stages":             []string{StageSongs, StageLogs},
	}
}

// flagKeys maps flag names whose config key is not the snake_case of the name.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
}

// controlFlags steer the command and never become config keys.
var controlFlags = map[string]bool{
	"config":   true,
	"validate": true,
	"help":     true,
}

// Load layers defaults, the YAML file at path (or DefaultFile when path is
// empty and that file exists), environment and explicitly set flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("%w: defaults: %v", ErrInvalidConfig, err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("ETL_", ".", func(key, value string) (string, any) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "ETL_")), "__", ".")
		if key == "stages" {
			return key, strings.Split(value, ",")
		}
		return key, value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("%w: env: %v", ErrInvalidConfig, err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || controlFlags[f.Name] {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("%w: flags: %v", ErrInvalidConfig, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints, the time zone and both roots.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	in, out := c.Roots()
	for _, uri := range []string{in, out} {
		if _, err := storage.ParseLocation(uri); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Roots returns the effective input and output roots.
func (c Config) Roots() (input, output string) {
	preset := c.Local
	if c.Mode == ModeS3 {
		preset = Roots{Input: c.S3.Input, Output: c.S3.Output}
	}
	input, output = preset.Input, preset.Output
	if c.Input != "" {
		input = c.Input
	}
	if c.Output != "" {
		output = c.Output
	}
	return input, output
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// UsesS3 reports whether either root is an S3 URI.
func (c Config) UsesS3() bool {
	in, out := c.Roots()
	for _, uri := range []string{in, out} {
		if loc, err := storage.ParseLocation(uri); err == nil && loc.Scheme == storage.SchemeS3 {
			return true
		}
	}
	return false
}

// RunsStage reports whether stage is enabled.
func (c Config) RunsStage(stage string) bool {
	for _, s := range c.Stages {
		if s == stage {
			return true
		}
	}
	return false
}
