package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tonimelisma/aquicore-go/pkg/aquicore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)

	stop()

	if err != nil {
		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	printError(os.Stderr, err)
	os.Exit(1)
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	switch {
	case errors.Is(err, aquicore.ErrNotAuthenticated):
		fmt.Fprintln(w, "Check your username and password, then run 'aquicore login' again.")
	case isTokenRejected(err):
		fmt.Fprintln(w, "The stored session is no longer valid; run 'aquicore login'.")
	}
}

// isTokenRejected reports whether err is an API rejection of the access token.
func isTokenRejected(err error) bool {
	var e *aquicore.Error
	if !errors.As(err, &e) || e.Kind != aquicore.KindAPI {
		return false
	}

	switch e.APICode() {
	case aquicore.CodeAccessTokenMissing, aquicore.CodeInvalidAccessToken, aquicore.CodeAccessTokenExpired:
		return true
	default:
		return false
	}
}
