// Package config holds engine options and the application configuration.
//
// Precedence, highest first: command-line flags (applied by the CLI), TIKSQL_*
// environment variables, the config file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Extraction are the options recognized by the engine.
type Extraction struct {
	// ChunkSize bounds how many array elements are processed between
	// cancellation checks and yields.
	ChunkSize int `json:"chunkSize" mapstructure:"chunk_size"`
	// BatchSize bounds how many INSERTs are generated between cancellation checks,
	// and how many rows the loader sends per statement.
	BatchSize int `json:"batchSize" mapstructure:"batch_size"`
	// ValidateDates runs the date/user-data validator after extraction.
	ValidateDates bool `json:"validateDates" mapstructure:"validate_dates"`
	// GenerateTriggers emits validation log tables and triggers.
	GenerateTriggers bool `json:"generateTriggers" mapstructure:"generate_triggers"`
}

// DefaultExtraction returns the engine defaults.
func DefaultExtraction() Extraction {
	return Extraction{ChunkSize: 1000, BatchSize: 100, ValidateDates: true, GenerateTriggers: true}
}

// Validate checks the options.
func (e Extraction) Validate() error {
	var errs []error
	if e.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be > 0 (got %d)", e.ChunkSize))
	}
	if e.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be > 0 (got %d)", e.BatchSize))
	}
	return errors.Join(errs...)
}

// Storage selects the database backend used by "tiksql load".
type Storage struct {
	Kind string `mapstructure:"kind"`
	DSN  string `mapstructure:"dsn"`
	// Mode is "script" (replay the generated SQL) or "tables" (typed DDL + batched inserts).
	Mode string `mapstructure:"mode"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend    string        `mapstructure:"backend"`
	JobName    string        `mapstructure:"job_name"`
	Tags       string        `mapstructure:"tags"`
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

// App is the full application configuration.
type App struct {
	Extraction  `mapstructure:",squash"`
	CatalogFile string  `mapstructure:"catalog_file"`
	Normalize   string  `mapstructure:"normalize"`
	Storage     Storage `mapstructure:"storage"`
	Metrics     Metrics `mapstructure:"metrics"`
}

// Validate checks the whole configuration.
func (a App) Validate() error {
	var errs []error
	if err := a.Extraction.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch a.Storage.Mode {
	case "", "script", "tables":
	default:
		errs = append(errs, fmt.Errorf("storage.mode must be script or tables (got %q)", a.Storage.Mode))
	}
	switch a.Metrics.Backend {
	case "", "none", "datadog":
	default:
		errs = append(errs, fmt.Errorf("metrics.backend must be none or datadog (got %q)", a.Metrics.Backend))
	}
	return errors.Join(errs...)
}

// EnvPrefix prefixes every environment override (TIKSQL_CHUNK_SIZE, TIKSQL_STORAGE_DSN, ...).
const EnvPrefix = "TIKSQL"

func setDefaults(v *viper.Viper) {
	d := DefaultExtraction()
	v.SetDefault("chunk_size", d.ChunkSize)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("validate_dates", d.ValidateDates)
	v.SetDefault("generate_triggers", d.GenerateTriggers)
	v.SetDefault("catalog_file", "")
	v.SetDefault("normalize", "")
	v.SetDefault("storage.kind", "sqlite")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.mode", "script")
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.job_name", "tiksql")
	v.SetDefault("metrics.tags", "")
	v.SetDefault("metrics.flush_every", 10*time.Second)
}

// Load builds the configuration.
//
// When path is empty, tiksql.yaml is searched in "." and $HOME/.config/tiksql;
// a missing file is not an error. When path is set, the file must exist.
func Load(path string) (App, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tiksql")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tiksql")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return App{}, fmt.Errorf("read config: %w", err)
		}
	}

	var app App
	if err := v.Unmarshal(&app); err != nil {
		return App{}, fmt.Errorf("decode config: %w", err)
	}
	if err := app.Validate(); err != nil {
		return App{}, fmt.Errorf("invalid config: %w", err)
	}
	return app, nil
}
