// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the aquicore CLI. Values flow through
// a four-layer override chain (defaults -> config file -> environment -> CLI
// flags). Each named profile selects endpoints, an account, and where its
// tokens are persisted.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Profiles map[string]Profile `toml:"profile"`
	Logging  LoggingConfig      `toml:"logging"`
	Network  NetworkConfig      `toml:"network"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior. insecure_fallback retries a
// request once without certificate verification after a TLS verification
// failure, logging a warning each time.
type NetworkConfig struct {
	ConnectTimeout   string `toml:"connect_timeout"`
	Timeout          string `toml:"timeout"`
	UserAgent        string `toml:"user_agent"`
	InsecureFallback bool   `toml:"insecure_fallback"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Profile    string  // --profile flag (empty = use default)
	Username   *string // --username flag
	Insecure   *bool   // --insecure-fallback flag
}
