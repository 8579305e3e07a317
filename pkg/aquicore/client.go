package aquicore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// Default Aquicore endpoints.
const (
	DefaultBaseURI    = "http://my.aquicore.com/api/v1"
	DefaultAuthURI    = "http://my.aquicore.com/api/v1/session/login"
	DefaultRefreshURI = "http://my.aquicore.com/api/v1/session/refresh"
)

// authTokenParam is the parameter carrying the access token on every
// authorized call.
const authTokenParam = "authToken"

// Config holds the endpoints and credentials for a Client. At least one
// credential path must be usable: AccessToken, Username+Password, or
// RefreshToken.
type Config struct {
	BaseURI     string
	AuthURI     string
	RefreshURI  string // empty: refresh grants go to AuthURI
	ServicesURI string // overrides BaseURI for API calls when set

	Username     string
	Password     string
	AccessToken  string
	RefreshToken string

	// Code is an authorization code obtained by the host (e.g. from a web
	// redirect). It is only used by Client.ExchangeCode.
	Code string

	// ExpiryCodes are the vendor error codes that mean the access token is
	// invalid or expired. Defaults to CodeInvalidAccessToken and
	// CodeAccessTokenExpired.
	ExpiryCodes []int

	// Transport overrides the HTTP transport. When nil, an HTTPTransport
	// is built from TransportOptions.
	Transport        Transport
	TransportOptions TransportOptions

	Observer TokenObserver
	Logger   *slog.Logger
}

// DefaultConfig returns a Config pointing at the production endpoints.
func DefaultConfig() Config {
	return Config{
		BaseURI:    DefaultBaseURI,
		AuthURI:    DefaultAuthURI,
		RefreshURI: DefaultRefreshURI,
	}
}

// HasCredentials reports whether any grant path is configured.
func (c *Config) HasCredentials() bool {
	return c.AccessToken != "" ||
		(c.Username != "" && c.Password != "") ||
		c.RefreshToken != ""
}

// Request describes one API call. Params values that are not strings are
// JSON-encoded. GET sends params as a query string, other methods as a JSON
// body.
type Request struct {
	Path   string
	Method string // defaults to GET
	Params map[string]any
	Secure bool
}

// Client executes authorized calls against the Aquicore API. A Client holds
// a single identity; it is safe for concurrent use.
type Client struct {
	baseURI   string
	expiry    map[int]bool
	store     *TokenStore
	grants    *grantResolver
	transport Transport
	logger    *slog.Logger
}

// NewClient creates a Client. Tokens from cfg seed the store without
// notifying the observer.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = NewHTTPTransport(cfg.TransportOptions, logger)
	}

	baseURI := cfg.BaseURI
	if cfg.ServicesURI != "" {
		baseURI = cfg.ServicesURI
	}

	codes := cfg.ExpiryCodes
	if len(codes) == 0 {
		codes = []int{CodeInvalidAccessToken, CodeAccessTokenExpired}
	}

	expiry := make(map[int]bool, len(codes))
	for _, code := range codes {
		expiry[code] = true
	}

	store := NewTokenStore(TokenPair{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
	}, cfg.Observer)

	return &Client{
		baseURI: baseURI,
		expiry:  expiry,
		store:   store,
		grants: &grantResolver{
			authURI:    cfg.AuthURI,
			refreshURI: cfg.RefreshURI,
			username:   cfg.Username,
			password:   cfg.Password,
			code:       cfg.Code,
			store:      store,
			transport:  transport,
			logger:     logger,
		},
		transport: transport,
		logger:    logger,
	}
}

// Request performs an authorized call and returns the decoded JSON document.
//
// If the server rejects the access token with an expiry code and a refresh
// token is stored, the token is refreshed and the call retried exactly once.
// When the refresh fails the original error is returned.
func (c *Client) Request(ctx context.Context, req Request) (json.RawMessage, error) {
	return c.authorized(ctx, req, true)
}

func (c *Client) authorized(ctx context.Context, req Request, allowRetry bool) (json.RawMessage, error) {
	token, err := c.grants.accessToken(ctx)
	if err != nil {
		if e, ok := asError(err); ok && e.Kind == KindAPI {
			return nil, &Error{Kind: KindNotAuthenticated, Code: e.Code, Message: e.Message, Err: e}
		}

		return nil, err
	}

	params, err := stringifyParams(req.Params)
	if err != nil {
		return nil, err
	}

	params[authTokenParam] = token

	result, err := c.send(ctx, req.Method, BuildURI(c.baseURI, req.Path, nil, req.Secure), params)
	if err == nil {
		return result, nil
	}

	apiErr, ok := asError(err)
	if !ok || apiErr.Kind != KindAPI || !allowRetry || !c.expiry[apiErr.APICode()] {
		return nil, err
	}

	if c.store.RefreshToken() == "" {
		c.logger.Debug("access token rejected and no refresh token stored",
			slog.String("path", req.Path),
			slog.Int("code", apiErr.APICode()),
		)

		return nil, err
	}

	c.logger.Info("access token rejected, refreshing",
		slog.String("path", req.Path),
		slog.Int("code", apiErr.APICode()),
	)

	if _, refreshErr := c.grants.refresh(ctx, token); refreshErr != nil {
		c.logger.Warn("token refresh failed",
			slog.String("path", req.Path),
			slog.String("error", refreshErr.Error()),
		)

		return nil, err
	}

	return c.authorized(ctx, req, false)
}

// API performs an authorized call and unwraps the "body" member of the
// response envelope when the server sent one.
func (c *Client) API(ctx context.Context, req Request) (json.RawMessage, error) {
	raw, err := c.Request(ctx, req)
	if err != nil {
		return nil, err
	}

	return unwrapBody(raw), nil
}

// Do performs an authorized call and decodes the unwrapped body into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	raw, err := c.API(ctx, req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindJSON, Code: http.StatusOK, Message: "decoding response", Err: err}
	}

	return nil
}

// Unauthenticated performs a call without an access token, for endpoints
// that do not require one.
func (c *Client) Unauthenticated(ctx context.Context, req Request) (json.RawMessage, error) {
	params, err := stringifyParams(req.Params)
	if err != nil {
		return nil, err
	}

	return c.send(ctx, req.Method, BuildURI(c.baseURI, req.Path, nil, req.Secure), params)
}

// Authenticate resolves an access token (running the password grant if
// needed) and returns the current pair.
func (c *Client) Authenticate(ctx context.Context) (TokenPair, error) {
	if _, err := c.grants.accessToken(ctx); err != nil {
		return TokenPair{}, err
	}

	return c.store.Snapshot(), nil
}

// Refresh forces a refresh grant with the stored refresh token.
func (c *Client) Refresh(ctx context.Context) (TokenPair, error) {
	return c.grants.refresh(ctx, c.store.AccessToken())
}

// ExchangeCode trades Config.Code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context) (TokenPair, error) {
	return c.grants.exchangeCode(ctx)
}

// Tokens returns the current token pair.
func (c *Client) Tokens() TokenPair {
	return c.store.Snapshot()
}

// SetTokensFromStore restores tokens persisted by the host. The observer is
// not notified.
func (c *Client) SetTokensFromStore(pair TokenPair) {
	c.store.SetFromExternal(pair)
}

// ClearTokens forgets both tokens without notifying the observer.
func (c *Client) ClearTokens() {
	c.store.Clear()
}

// TokenSource adapts the client to oauth2.TokenSource. Each Token call
// resolves the current access token with ctx.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &clientTokenSource{ctx: ctx, client: c}
}

type clientTokenSource struct {
	ctx    context.Context //nolint:containedctx // oauth2.TokenSource has no ctx parameter
	client *Client
}

func (s *clientTokenSource) Token() (*oauth2.Token, error) {
	pair, err := s.client.Authenticate(s.ctx)
	if err != nil {
		return nil, err
	}

	return pair.OAuth2Token(), nil
}

// send issues one request and decodes the response.
func (c *Client) send(ctx context.Context, method, uri string, params map[string]string) (json.RawMessage, error) {
	if method == "" {
		method = http.MethodGet
	}

	var body []byte

	if method == http.MethodGet {
		uri = BuildURI(uri, "", params, false)
	} else if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, &Error{Kind: KindInternal, Message: "encoding request body", Err: err}
		}

		body = encoded
	}

	resp, err := c.transport.Send(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}

	return DecodeResponse(resp)
}

// stringifyParams JSON-encodes every non-string value. The returned map is
// always non-nil.
func stringifyParams(params map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(params)+1)

	for k, v := range params {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}

		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, &Error{Kind: KindInternal, Message: fmt.Sprintf("encoding param %q", k), Err: err}
		}

		out[k] = string(encoded)
	}

	return out, nil
}

// unwrapBody returns the "body" member of an object response, or raw.
func unwrapBody(raw json.RawMessage) json.RawMessage {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return raw
	}

	body, ok := envelope["body"]
	if !ok || string(body) == "null" {
		return raw
	}

	return body
}
