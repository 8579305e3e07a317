package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/aquicore-go/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests either
// call helpers directly with explicit arguments or let Cobra parse flags via
// cmd.SetArgs() + cmd.ExecuteContext().

// --- buildLogger tests ---

func TestBuildLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		flags    CLIFlags
		enabled  slog.Level
		disabled slog.Level
	}{
		{"default info", "", CLIFlags{}, slog.LevelInfo, slog.LevelDebug},
		{"config debug", "debug", CLIFlags{}, slog.LevelDebug, slog.LevelDebug - 1},
		{"config warn", "warn", CLIFlags{}, slog.LevelWarn, slog.LevelInfo},
		{"config error", "error", CLIFlags{}, slog.LevelError, slog.LevelWarn},
		{"verbose overrides config", "error", CLIFlags{Verbose: true}, slog.LevelDebug, slog.LevelDebug - 1},
		{"quiet overrides config", "debug", CLIFlags{Quiet: true}, slog.LevelError, slog.LevelWarn},
		{"quiet beats verbose", "", CLIFlags{Verbose: true, Quiet: true}, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := buildLogger(&bytes.Buffer{}, config.LoggingConfig{LogLevel: tt.level}, tt.flags)

			ctx := context.Background()
			assert.True(t, logger.Handler().Enabled(ctx, tt.enabled))
			assert.False(t, logger.Handler().Enabled(ctx, tt.disabled))
		})
	}
}

func TestBuildLogger_AutoFormatIsJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer

	logger := buildLogger(&buf, config.LoggingConfig{LogFormat: "auto"}, CLIFlags{})
	logger.Info("hello", slog.String("profile", "default"))

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"profile":"default"`)
}

func TestBuildLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := buildLogger(&buf, config.LoggingConfig{LogFormat: "text"}, CLIFlags{})
	logger.Info("hello", slog.String("profile", "default"))

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "profile=default")
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestIsTerminal_RegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	assert.False(t, isTerminal(f))
}

// --- CLIContext tests ---

func TestMustCLIContext_Missing(t *testing.T) {
	assert.Panics(t, func() {
		mustCLIContext(context.Background())
	})
}

func TestMustCLIContext_Present(t *testing.T) {
	cc := &CLIContext{Flags: CLIFlags{Profile: "default"}}
	ctx := context.WithValue(context.Background(), cliContextKey{}, cc)

	assert.Same(t, cc, mustCLIContext(ctx))
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	for _, want := range []string{"login", "logout", "whoami", "api", "token", "config"} {
		assert.Contains(t, names, want)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "profile", "username", "insecure-fallback", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}
