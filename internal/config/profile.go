package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/aquicore-go/pkg/aquicore"
)

// Token store backends.
const (
	TokenStoreFile   = "file"
	TokenStoreSQLite = "sqlite"
)

// Default profile name when --profile is omitted.
const defaultProfileName = "default"

// Profile is one Aquicore account configuration. A [profile.<name>.network]
// section completely replaces the global [network] section; fields are not
// merged.
type Profile struct {
	BaseURI     string `toml:"base_uri"`
	AuthURI     string `toml:"auth_uri"`
	RefreshURI  string `toml:"refresh_uri"`
	ServicesURI string `toml:"services_uri"`
	Username    string `toml:"username"`
	TokenStore  string `toml:"token_store"`
	TokenPath   string `toml:"token_path"`

	Network *NetworkConfig `toml:"network,omitempty"`
}

// ResolvedProfile is the final product of the override chain, consumed by
// the CLI to build an aquicore.Client.
type ResolvedProfile struct {
	Name        string
	BaseURI     string
	AuthURI     string
	RefreshURI  string
	ServicesURI string

	Username     string
	Password     string // environment only
	AccessToken  string // environment only
	RefreshToken string // environment only

	TokenStore string
	TokenPath  string

	Logging LoggingConfig
	Network NetworkConfig
}

// ResolveProfile merges defaults, the named profile, and global sections.
// If profileName is empty, the default profile is selected.
func ResolveProfile(cfg *Config, profileName string) (*ResolvedProfile, error) {
	name, err := resolveProfileName(cfg, profileName)
	if err != nil {
		return nil, err
	}

	profile := cfg.Profiles[name]

	resolved := &ResolvedProfile{
		Name:        name,
		BaseURI:     orDefault(profile.BaseURI, aquicore.DefaultBaseURI),
		AuthURI:     orDefault(profile.AuthURI, aquicore.DefaultAuthURI),
		RefreshURI:  orDefault(profile.RefreshURI, aquicore.DefaultRefreshURI),
		ServicesURI: profile.ServicesURI,
		Username:    NormalizeUsername(profile.Username),
		TokenStore:  orDefault(profile.TokenStore, defaultTokenStore),
		TokenPath:   expandTilde(profile.TokenPath),
		Logging:     cfg.Logging,
		Network:     resolveSection(profile.Network, cfg.Network),
	}

	if resolved.TokenPath == "" {
		resolved.TokenPath = defaultTokenPath(resolved.TokenStore, name)
	}

	return resolved, nil
}

// resolveSection returns the profile override if present, otherwise the global value.
func resolveSection[T any](profileOverride *T, global T) T {
	if profileOverride != nil {
		return *profileOverride
	}

	return global
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}

func defaultTokenPath(store, profile string) string {
	if store == TokenStoreSQLite {
		return TokenDBPath()
	}

	return TokenFilePath(profile)
}

// NormalizeUsername trims whitespace and applies Unicode NFC so the same
// account typed on different platforms compares equal.
func NormalizeUsername(username string) string {
	return norm.NFC.String(strings.TrimSpace(username))
}

// resolveProfileName determines which profile to use.
func resolveProfileName(cfg *Config, profileName string) (string, error) {
	if len(cfg.Profiles) == 0 {
		return "", fmt.Errorf("no profiles defined in config")
	}

	if profileName != "" {
		if _, ok := cfg.Profiles[profileName]; !ok {
			return "", fmt.Errorf("profile %q not found in config", profileName)
		}

		return profileName, nil
	}

	if _, ok := cfg.Profiles[defaultProfileName]; ok {
		return defaultProfileName, nil
	}

	if len(cfg.Profiles) == 1 {
		for name := range cfg.Profiles {
			return name, nil
		}
	}

	return "", fmt.Errorf(
		"multiple profiles defined but none named %q; use --profile to select one",
		defaultProfileName)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}

// TransportOptions converts the network section. Durations were checked by
// Validate; an unparsable value falls back to the SDK default.
func (rp *ResolvedProfile) TransportOptions() aquicore.TransportOptions {
	return aquicore.TransportOptions{
		ConnectTimeout:   parseDurationOr(rp.Network.ConnectTimeout, aquicore.DefaultConnectTimeout),
		Timeout:          parseDurationOr(rp.Network.Timeout, aquicore.DefaultTimeout),
		UserAgent:        rp.Network.UserAgent,
		InsecureFallback: rp.Network.InsecureFallback,
	}
}

// ClientConfig builds the SDK configuration for this profile.
func (rp *ResolvedProfile) ClientConfig(observer aquicore.TokenObserver, logger *slog.Logger) aquicore.Config {
	return aquicore.Config{
		BaseURI:          rp.BaseURI,
		AuthURI:          rp.AuthURI,
		RefreshURI:       rp.RefreshURI,
		ServicesURI:      rp.ServicesURI,
		Username:         rp.Username,
		Password:         rp.Password,
		AccessToken:      rp.AccessToken,
		RefreshToken:     rp.RefreshToken,
		TransportOptions: rp.TransportOptions(),
		Observer:         observer,
		Logger:           logger,
	}
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}

	return d
}
