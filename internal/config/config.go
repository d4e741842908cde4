// Package config loads run settings from an optional file and SPARKIFY_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"sparkify/internal/etlerr"
	parserjson "sparkify/internal/parser/json"
	"sparkify/internal/storage"
)

const EnvPrefix = "SPARKIFY"

type Storage struct {
	Kind string `mapstructure:"kind"`
	DSN  string `mapstructure:"dsn"`
}

type Input struct {
	SongData string `mapstructure:"song_data"`
	LogData  string `mapstructure:"log_data"`
}

type Parser struct {
	BadLines string `mapstructure:"bad_lines"`
}

type Songplay struct {
	IDs  string `mapstructure:"ids"`
	Node int64  `mapstructure:"node"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Metrics struct {
	Backend        string `mapstructure:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
	Tags           string `mapstructure:"tags"`
}

type Tracing struct {
	Stdout bool `mapstructure:"stdout"`
}

// Config is the full run configuration.
type Config struct {
	Storage  Storage  `mapstructure:"storage"`
	Input    Input    `mapstructure:"input"`
	Parser   Parser   `mapstructure:"parser"`
	Songplay Songplay `mapstructure:"songplay"`
	Log      Log      `mapstructure:"log"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Tracing  Tracing  `mapstructure:"tracing"`
}

var defaults = map[string]any{
	"storage.kind":            "postgres",
	"storage.dsn":             "host=127.0.0.1 dbname=sparkifydb user=student password=student",
	"input.song_data":         "data/song_data",
	"input.log_data":          "data/log_data",
	"parser.bad_lines":        "abort_file",
	"songplay.ids":            "snowflake",
	"songplay.node":           1,
	"log.level":               "info",
	"log.format":              "json",
	"metrics.backend":         "none",
	"metrics.pushgateway_url": "http://localhost:9091",
	"metrics.job":             "sparkify_etl",
	"metrics.tags":            "",
	"tracing.stdout":          false,
}

// Load reads configFile (if non-empty) and the environment. Precedence, high
// to low: env, file, defaults. The result is validated.
func Load(configFile string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", etlerr.ErrInvalidConfig, configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", etlerr.ErrInvalidConfig, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Kind = strings.ToLower(strings.TrimSpace(c.Storage.Kind))
	c.Parser.BadLines = strings.ToLower(strings.TrimSpace(c.Parser.BadLines))
	c.Songplay.IDs = strings.ToLower(strings.TrimSpace(c.Songplay.IDs))
	c.Metrics.Backend = strings.ToLower(strings.TrimSpace(c.Metrics.Backend))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", etlerr.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	kinds := storage.Kinds()
	sort.Strings(kinds)
	if !contains(kinds, c.Storage.Kind) {
		errs = append(errs, invalid("storage.kind %q is not one of %v", c.Storage.Kind, kinds))
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		errs = append(errs, invalid("storage.dsn is required"))
	}
	if strings.TrimSpace(c.Input.SongData) == "" {
		errs = append(errs, invalid("input.song_data is required"))
	}
	if strings.TrimSpace(c.Input.LogData) == "" {
		errs = append(errs, invalid("input.log_data is required"))
	}
	if _, err := parserjson.ParseBadLinePolicy(c.Parser.BadLines); err != nil {
		errs = append(errs, invalid("parser.bad_lines: %v", err))
	}
	switch c.Songplay.IDs {
	case "snowflake":
		if c.Songplay.Node < 0 || c.Songplay.Node > 1023 {
			errs = append(errs, invalid("songplay.node %d out of range 0..1023", c.Songplay.Node))
		}
	case "file_position":
	default:
		errs = append(errs, invalid("songplay.ids %q is not one of [snowflake file_position]", c.Songplay.IDs))
	}
	switch c.Metrics.Backend {
	case "none", "datadog":
	case "pushgateway":
		if strings.TrimSpace(c.Metrics.PushgatewayURL) == "" {
			errs = append(errs, invalid("metrics.pushgateway_url is required for the pushgateway backend"))
		}
	default:
		errs = append(errs, invalid("metrics.backend %q is not one of [none pushgateway datadog]", c.Metrics.Backend))
	}

	return errors.Join(errs...)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
