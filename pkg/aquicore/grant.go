package aquicore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// singleflight keys for the network-backed grants.
const (
	flightPassword = "password"
	flightRefresh  = "refresh"
	flightCode     = "authorization_code"
)

// grantResponse is the token payload returned by the login and refresh
// endpoints.
type grantResponse struct {
	AuthToken    string `json:"authToken"`
	RefreshToken string `json:"refresh_token"`
}

// grantResolver decides which grant produces an access token:
//  1. a stored access token (no network)
//  2. the password grant, when username and password are configured
//
// The refresh grant is only used by the executor's retry path, and the
// authorization code exchange only when the caller asks for it.
type grantResolver struct {
	authURI    string
	refreshURI string
	username   string
	password   string
	code       string

	store     *TokenStore
	transport Transport
	logger    *slog.Logger
	flight    singleflight.Group
}

// accessToken returns a usable access token, running the password grant if
// nothing is stored yet.
func (g *grantResolver) accessToken(ctx context.Context) (string, error) {
	if tok := g.store.AccessToken(); tok != "" {
		return tok, nil
	}

	if g.username != "" && g.password != "" {
		pair, err := g.passwordGrant(ctx)
		if err != nil {
			return "", err
		}

		return pair.AccessToken, nil
	}

	return "", internalError("No access token stored")
}

func (g *grantResolver) passwordGrant(ctx context.Context) (TokenPair, error) {
	if g.authURI == "" {
		return TokenPair{}, internalError("missing args for getting password grant")
	}

	return g.coalesce(flightPassword, func() (TokenPair, error) {
		// A concurrent caller may have completed the grant while we waited.
		if pair := g.store.Snapshot(); pair.AccessToken != "" {
			return pair, nil
		}

		g.logger.Info("requesting password grant", slog.String("url", g.authURI))

		return g.requestGrant(ctx, g.authURI, map[string]string{
			"user":     g.username,
			"password": g.password,
		})
	})
}

// refresh exchanges the stored refresh token for a new pair. stale is the
// access token the server rejected; if the store already holds a different
// access token another caller refreshed in the meantime and no request is
// made.
func (g *grantResolver) refresh(ctx context.Context, stale string) (TokenPair, error) {
	if g.store.RefreshToken() == "" {
		return TokenPair{}, internalError("no refresh token stored")
	}

	uri := g.refreshURI
	if uri == "" {
		uri = g.authURI
	}

	if uri == "" {
		return TokenPair{}, internalError("missing args for getting refresh grant")
	}

	return g.coalesce(flightRefresh, func() (TokenPair, error) {
		pair := g.store.Snapshot()
		if pair.AccessToken != "" && pair.AccessToken != stale {
			g.logger.Debug("access token already refreshed by a concurrent call")
			return pair, nil
		}

		g.logger.Info("requesting refresh grant", slog.String("url", uri))

		return g.requestGrant(ctx, uri, map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": pair.RefreshToken,
		})
	})
}

// exchangeCode trades the configured authorization code for a token pair.
func (g *grantResolver) exchangeCode(ctx context.Context) (TokenPair, error) {
	if g.code == "" {
		return TokenPair{}, internalError("no authorization code configured")
	}

	if g.authURI == "" {
		return TokenPair{}, internalError("missing args for getting authorization code grant")
	}

	return g.coalesce(flightCode, func() (TokenPair, error) {
		g.logger.Info("exchanging authorization code", slog.String("url", g.authURI))

		return g.requestGrant(ctx, g.authURI, map[string]string{
			"grant_type": "authorization_code",
			"code":       g.code,
		})
	})
}

// requestGrant POSTs a grant payload and stores the returned tokens.
func (g *grantResolver) requestGrant(ctx context.Context, uri string, payload map[string]string) (TokenPair, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return TokenPair{}, &Error{Kind: KindInternal, Message: "encoding grant request", Err: err}
	}

	resp, err := g.transport.Send(ctx, http.MethodPost, uri, body)
	if err != nil {
		return TokenPair{}, err
	}

	raw, err := DecodeResponse(resp)
	if err != nil {
		return TokenPair{}, err
	}

	var gr grantResponse
	if err := json.Unmarshal(raw, &gr); err != nil || gr.AuthToken == "" {
		code, _ := parseStatusLine(resp.StatusCode, resp.Status)

		return TokenPair{}, &Error{
			Kind:    KindJSON,
			Code:    code,
			Message: "grant response has no authToken",
			Err:     err,
		}
	}

	g.store.Update(TokenPair{AccessToken: gr.AuthToken, RefreshToken: gr.RefreshToken})

	return g.store.Snapshot(), nil
}

func (g *grantResolver) coalesce(key string, fn func() (TokenPair, error)) (TokenPair, error) {
	v, err, shared := g.flight.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return TokenPair{}, err
	}

	if shared {
		g.logger.Debug("joined in-flight grant", slog.String("grant", key))
	}

	pair, ok := v.(TokenPair)
	if !ok {
		return TokenPair{}, internalError(fmt.Sprintf("unexpected %s grant result %T", key, v))
	}

	return pair, nil
}
