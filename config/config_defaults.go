package config

import "github.com/rs/zerolog"

// GetDefaultProjectConfig obtains a default configuration: state clearing enabled (post Spurious Dragon), an
// automatically sized account cache, console logging at info level and metrics disabled.
func GetDefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Cache: CacheConfig{
			StateClear: true,
			Shards:     0,
		},
		Loader: LoaderConfig{
			DatabasePath: "prestate.db",
			OpenTimeout:  1,
		},
		Logging: LoggingConfig{
			Level:                zerolog.InfoLevel,
			EnableConsoleLogging: true,
			LogDirectory:         "",
			NoColor:              false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}
