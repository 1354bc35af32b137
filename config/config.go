package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ProjectConfig describes the configuration of the cache, its loader, logging and metrics.
type ProjectConfig struct {
	// Cache describes the configuration of the account cache and transition engine.
	Cache CacheConfig `json:"cache"`

	// Loader describes the configuration of the prestate loader.
	Loader LoaderConfig `json:"loader"`

	// Logging describes the configuration used for logging.
	Logging LoggingConfig `json:"logging"`

	// Metrics describes the configuration used for metrics collection.
	Metrics MetricsConfig `json:"metrics"`
}

// CacheConfig describes the configuration options used by the cache.CacheState.
type CacheConfig struct {
	// StateClear describes whether EIP-161 state clearing is active, removing empty accounts when touched rather than
	// persisting them.
	StateClear bool `json:"stateClear"`

	// Shards describes the number of shards the account cache is split into. It is rounded up to a power of two. Zero
	// selects a default derived from the number of available CPUs.
	Shards int `json:"shards"`
}

// LoaderConfig describes the configuration options used by the prestate loader.
type LoaderConfig struct {
	// DatabasePath describes the path of the bolt database holding the prestate.
	DatabasePath string `json:"databasePath"`

	// OpenTimeout describes a time in seconds to wait for the database file lock. Zero waits indefinitely.
	OpenTimeout int `json:"openTimeout"`
}

// LoggingConfig describes the configuration options used for logging
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	// Increasing level values represent more severe logs
	Level zerolog.Level `json:"level"`

	// EnableConsoleLogging describes whether console logging is enabled
	EnableConsoleLogging bool `json:"enableConsoleLogging"`

	// LogDirectory describes the directory where structured log _files_ will be outputted. If the string is empty, then
	// no log files are kept
	LogDirectory string `json:"logDirectory"`

	// NoColor describes whether console output should be colorized
	NoColor bool `json:"noColor"`
}

// MetricsConfig describes the configuration options used for metrics collection.
type MetricsConfig struct {
	// Enabled describes whether cache metrics are collected and reported.
	Enabled bool `json:"enabled"`
}

// ReadProjectConfigFromFile reads a JSON-serialized ProjectConfig from a provided file path. Fields missing from the
// file keep their default values.
// Returns the ProjectConfig if it succeeds, or an error if one occurs.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	// Read our project configuration file data
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Parse the project configuration on top of the defaults
	projectConfig := GetDefaultProjectConfig()
	err = json.Unmarshal(b, projectConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in a JSON-serialized format.
// Returns an error if one occurs.
func (p *ProjectConfig) WriteToFile(path string) error {
	// Serialize the configuration
	b, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}

	// Save it to the provided output path and return the result
	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Validate validates that the ProjectConfig meets certain requirements.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	// Verify the shard count is not negative
	if p.Cache.Shards < 0 {
		return errors.Errorf("cache shard count cannot be negative")
	}

	// Verify the loader timeout is not negative
	if p.Loader.OpenTimeout < 0 {
		return errors.Errorf("loader open timeout cannot be negative")
	}

	// Verify the log level is one zerolog knows about
	if p.Logging.Level < zerolog.TraceLevel || p.Logging.Level > zerolog.Disabled {
		return errors.Errorf("invalid log level %d", p.Logging.Level)
	}
	return nil
}
