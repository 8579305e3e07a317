package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"
)

const (
	minConnectTimeout = 1 * time.Second
	minTimeout        = 1 * time.Second
)

// Validate checks all configuration values and returns every error found, so
// users can fix the whole file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork("network", &cfg.Network)...)

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		p := cfg.Profiles[name]
		errs = append(errs, validateProfile(name, &p)...)
	}

	return errors.Join(errs...)
}

// ValidateResolved checks constraints on the final merged profile.
func ValidateResolved(rp *ResolvedProfile) error {
	var errs []error

	if rp.BaseURI == "" && rp.ServicesURI == "" {
		errs = append(errs, errors.New("base_uri: must not be empty"))
	}

	if rp.Password != "" && rp.Username == "" {
		errs = append(errs, fmt.Errorf("%s is set but no username is configured", EnvPassword))
	}

	return errors.Join(errs...)
}

func validateProfile(name string, p *Profile) []error {
	var errs []error

	prefix := fmt.Sprintf("profile.%s", name)

	for _, f := range []struct{ key, value string }{
		{"base_uri", p.BaseURI},
		{"auth_uri", p.AuthURI},
		{"refresh_uri", p.RefreshURI},
		{"services_uri", p.ServicesURI},
	} {
		if err := validateURI(f.value); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", prefix, f.key, err))
		}
	}

	switch p.TokenStore {
	case "", TokenStoreFile, TokenStoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("%s.token_store: must be one of %s, %s; got %q",
			prefix, TokenStoreFile, TokenStoreSQLite, p.TokenStore))
	}

	if p.Network != nil {
		errs = append(errs, validateNetwork(prefix+".network", p.Network)...)
	}

	return errs
}

func validateURI(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URI %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URI %q must use http or https", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("URI %q has no host", raw)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateNetwork(section string, n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin(section+".connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin(section+".timeout", n.Timeout, minTimeout)...)

	return errs
}

// validateDurationMin treats an empty value as unset (the SDK default applies).
func validateDurationMin(field, value string, minimum time.Duration) []error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
