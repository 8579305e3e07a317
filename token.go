package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// tokenPrefixLen is how much of a token "token" shows.
const tokenPrefixLen = 6

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show stored token state for the profile",
		Long: `Show where the profile's tokens are stored and which are present.
Only a short prefix of each token is printed.`,
		Args: cobra.NoArgs,
		RunE: runToken,
	}
}

func runToken(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	backend, err := openTokenBackend(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	st, found, err := backend.Load(ctx)
	if err != nil {
		return err
	}

	rows := [][]string{
		{"profile", cc.Flags.Profile},
		{"store", backend.Location()},
	}

	if !found {
		rows = append(rows, []string{"status", "not logged in"})
		printTable(cc.Stdout, []string{"FIELD", "VALUE"}, rows)

		return nil
	}

	saved := "unknown"
	if !st.SavedAt.IsZero() {
		saved = formatTime(st.SavedAt.Local())
	}

	rows = append(rows,
		[]string{"username", orNone(st.Username)},
		[]string{"access_token", maskToken(st.Pair.AccessToken)},
		[]string{"refresh_token", maskToken(st.Pair.RefreshToken)},
		[]string{"saved", saved},
	)

	printTable(cc.Stdout, []string{"FIELD", "VALUE"}, rows)

	return nil
}

// maskToken shows a short prefix and the length, never the full secret.
func maskToken(tok string) string {
	if tok == "" {
		return "(none)"
	}

	if len(tok) <= tokenPrefixLen {
		return fmt.Sprintf("****** (%d chars)", len(tok))
	}

	return fmt.Sprintf("%s... (%d chars)", tok[:tokenPrefixLen], len(tok))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}

	return s
}
