package logging

// These constants are used to identify the various components that may do some logging. They are used as the value
// of the "module" key of sub-loggers.
const (
	// CACHE_SERVICE is the constant used to identify the state cache package
	CACHE_SERVICE = "cache"
	// LOADER_SERVICE is the constant used to identify the prestate loader package
	LOADER_SERVICE = "loader"
	// CLI_SERVICE is the constant used to identify the cmd package
	CLI_SERVICE = "cli"
)
