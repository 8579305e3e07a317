package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/aquicore-go/pkg/aquicore"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store tokens for the profile",
		Long: `Run the password grant (or exchange an authorization code) and persist
the resulting tokens in the profile's token store.

The password is read from AQUICORE_PASSWORD or, when unset, from the first
line of standard input.

Examples:
  aquicore login --username ops@example.com
  AQUICORE_PASSWORD=... aquicore login --profile staging
  aquicore login --code 4/0AbC...`,
		RunE: runLogin,
		Args: cobra.NoArgs,
	}

	cmd.Flags().String("code", "", "authorization code to exchange instead of a password")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored tokens for the profile",
		RunE:  runLogout,
		Args:  cobra.NoArgs,
	}
}

func newWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user",
		RunE:  runWhoami,
		Args:  cobra.NoArgs,
	}

	cmd.Flags().Bool("raw", false, "print compact JSON")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	code, err := cmd.Flags().GetString("code")
	if err != nil {
		return err
	}

	if code == "" {
		if cc.Cfg.Username == "" {
			return errors.New("no username configured; pass --username or set AQUICORE_USERNAME")
		}

		if cc.Cfg.Password == "" {
			password, readErr := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), cc.Cfg.Username)
			if readErr != nil {
				return readErr
			}

			cc.Cfg.Password = password
		}
	}

	// Login always starts from a clean slate: stored tokens are ignored.
	cc.Cfg.AccessToken = ""
	cc.Cfg.RefreshToken = ""

	sess, err := newSession(ctx, cc, sessionOptions{Code: code})
	if err != nil {
		return err
	}
	defer sess.Close()

	cc.Logger.Info("login started", slog.String("profile", cc.Flags.Profile))

	if code != "" {
		_, err = sess.client.ExchangeCode(ctx)
	} else {
		_, err = sess.client.Authenticate(ctx)
	}

	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cc.Logger.Info("login successful", slog.String("profile", cc.Flags.Profile))
	cc.Statusf("Logged in to profile %q. Tokens saved to %s.\n", cc.Flags.Profile, sess.backend.Location())

	return nil
}

// readPassword reads one line from r. The prompt goes to w so it never mixes
// with command output.
func readPassword(r io.Reader, w io.Writer, username string) (string, error) {
	fmt.Fprintf(w, "Password for %s: ", username)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password provided")
	}

	return password, nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	backend, err := openTokenBackend(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.Delete(ctx); err != nil {
		return err
	}

	cc.Logger.Info("logout successful", slog.String("profile", cc.Flags.Profile))
	cc.Statusf("Logged out of profile %q.\n", cc.Flags.Profile)

	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	raw, err := cmd.Flags().GetBool("raw")
	if err != nil {
		return err
	}

	sess, err := newAuthorizedSession(ctx, cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	user, err := sess.client.API(ctx, aquicore.Request{Path: "/users/me"})
	if err != nil {
		return fmt.Errorf("fetching user profile: %w", err)
	}

	return printJSON(cc.Stdout, user, !raw && isTerminal(cc.Stdout))
}
