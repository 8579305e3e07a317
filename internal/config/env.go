package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig       = "AQUICORE_CONFIG"
	EnvProfile      = "AQUICORE_PROFILE"
	EnvUsername     = "AQUICORE_USERNAME"
	EnvPassword     = "AQUICORE_PASSWORD"
	EnvAccessToken  = "AQUICORE_ACCESS_TOKEN"
	EnvRefreshToken = "AQUICORE_REFRESH_TOKEN"
)

// DefaultDotEnvFile is read from the working directory when present.
const DefaultDotEnvFile = ".env"

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // AQUICORE_CONFIG: override config file path
	Profile      string // AQUICORE_PROFILE: active profile name
	Username     string // AQUICORE_USERNAME: account for the password grant
	Password     string // AQUICORE_PASSWORD: never read from the config file
	AccessToken  string // AQUICORE_ACCESS_TOKEN: pre-issued access token
	RefreshToken string // AQUICORE_REFRESH_TOKEN: pre-issued refresh token
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		Profile:      os.Getenv(EnvProfile),
		Username:     os.Getenv(EnvUsername),
		Password:     os.Getenv(EnvPassword),
		AccessToken:  os.Getenv(EnvAccessToken),
		RefreshToken: os.Getenv(EnvRefreshToken),
	}
}
