package cmd

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = "cachestate.json"

// DefaultLogFilePrefix describes the prefix of log files written to the configured log directory.
const DefaultLogFilePrefix = "cachestate"
