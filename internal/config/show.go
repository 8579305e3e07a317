package config

import (
	"fmt"
	"io"
)

const redacted = "(set)"

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers "config show". Secrets are never printed.
func RenderEffective(rp *ResolvedProfile, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration for profile %q\n\n", rp.Name)

	ew.printf("[profile]\n")
	ew.printf("  name          = %q\n", rp.Name)
	ew.printf("  base_uri      = %q\n", rp.BaseURI)
	ew.printf("  auth_uri      = %q\n", rp.AuthURI)
	ew.printf("  refresh_uri   = %q\n", rp.RefreshURI)

	if rp.ServicesURI != "" {
		ew.printf("  services_uri  = %q\n", rp.ServicesURI)
	}

	ew.printf("  username      = %q\n", rp.Username)
	ew.printf("  token_store   = %q\n", rp.TokenStore)
	ew.printf("  token_path    = %q\n", rp.TokenPath)

	renderSecret(ew, "password", rp.Password)
	renderSecret(ew, "access_token", rp.AccessToken)
	renderSecret(ew, "refresh_token", rp.RefreshToken)
	ew.printf("\n")

	ew.printf("[logging]\n")
	ew.printf("  log_level     = %q\n", rp.Logging.LogLevel)
	ew.printf("  log_format    = %q\n", rp.Logging.LogFormat)
	ew.printf("\n")

	ew.printf("[network]\n")
	ew.printf("  connect_timeout   = %q\n", rp.Network.ConnectTimeout)
	ew.printf("  timeout           = %q\n", rp.Network.Timeout)
	ew.printf("  user_agent        = %q\n", rp.Network.UserAgent)
	ew.printf("  insecure_fallback = %t\n", rp.Network.InsecureFallback)

	return ew.err
}

// renderSecret prints a marker for secrets supplied via the environment.
func renderSecret(ew *errWriter, key, value string) {
	if value == "" {
		return
	}

	ew.printf("  %-13s = %s  # from environment\n", key, redacted)
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
