package config

import "github.com/tonimelisma/aquicore-go/pkg/aquicore"

// Default values for configuration options ("layer 0" of the override chain).
const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultConnectTimeout = "10s"
	defaultTimeout        = "60s"
	defaultTokenStore     = TokenStoreFile
)

// DefaultConfig returns a Config populated with all default values. It is the
// starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Profiles: make(map[string]Profile),
		Logging:  defaultLoggingConfig(),
		Network:  defaultNetworkConfig(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		Timeout:        defaultTimeout,
		UserAgent:      aquicore.DefaultUserAgent,
	}
}
