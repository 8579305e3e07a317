package aquicore

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Transport defaults.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTimeout        = 60 * time.Second
	DefaultUserAgent      = "aquicoreclient"
	defaultMaxBodyBytes   = 10 << 20 // 10 MiB
	requestIDHeader       = "X-Request-Id"
)

// RawResponse is a fully buffered HTTP response.
type RawResponse struct {
	StatusCode int
	Status     string // status line without protocol, e.g. "404 Not Found"
	Header     http.Header
	Body       []byte
}

// Transport performs a single HTTP exchange. Implementations must honor ctx
// and must not retry on their own except for the certificate fallback
// documented on HTTPTransport.
type Transport interface {
	Send(ctx context.Context, method, url string, body []byte) (*RawResponse, error)
}

// TransportOptions configures an HTTPTransport. Zero values select defaults.
type TransportOptions struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
	UserAgent      string
	MaxBodyBytes   int64

	// InsecureFallback permits one retry with certificate verification
	// disabled after a certificate validation failure. Off by default.
	InsecureFallback bool

	// OnInsecureFallback is called before the unverified retry is sent.
	OnInsecureFallback func(url string, cause error)
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	client   *http.Client
	insecure *http.Client // nil unless InsecureFallback is enabled
	opts     TransportOptions
	logger   *slog.Logger
}

// NewHTTPTransport creates a Transport with a dial timeout and an overall
// request timeout.
func NewHTTPTransport(opts TransportOptions, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	t := &HTTPTransport{
		client: newHTTPClient(opts, false),
		opts:   opts,
		logger: logger,
	}

	if opts.InsecureFallback {
		t.insecure = newHTTPClient(opts, true)
	}

	return t
}

func newHTTPClient(opts TransportOptions, skipVerify bool) *http.Client {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		base = &http.Transport{}
	}

	rt := base.Clone()
	rt.DialContext = (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext
	rt.TLSHandshakeTimeout = opts.ConnectTimeout

	if skipVerify {
		rt.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in compatibility fallback
	}

	return &http.Client{Transport: rt, Timeout: opts.Timeout}
}

// Send executes one request. A certificate failure is retried exactly once
// without verification when InsecureFallback is enabled; every other failure
// is returned as a KindTransport *Error.
func (t *HTTPTransport) Send(ctx context.Context, method, url string, body []byte) (*RawResponse, error) {
	reqID := uuid.NewString()

	resp, err := t.sendOnce(ctx, t.client, method, url, body, reqID)
	if err != nil && t.insecure != nil && isCertificateError(err) {
		t.logger.Warn("certificate verification failed, retrying with verification disabled",
			slog.String("url", url),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)

		if t.opts.OnInsecureFallback != nil {
			t.opts.OnInsecureFallback(url, err)
		}

		resp, err = t.sendOnce(ctx, t.insecure, method, url, body, reqID)
	}

	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	t.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("url", url),
		slog.String("request_id", reqID),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

func (t *HTTPTransport) sendOnce(
	ctx context.Context,
	client *http.Client,
	method, url string,
	body []byte,
	reqID string,
) (*RawResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.opts.UserAgent)
	req.Header.Set(requestIDHeader, reqID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if int64(len(data)) > t.opts.MaxBodyBytes {
		return nil, &Error{
			Kind:    KindTransport,
			Code:    TransportCodeBody,
			Message: fmt.Sprintf("response body exceeds limit of %d bytes", t.opts.MaxBodyBytes),
		}
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// isCertificateError reports whether err stems from server certificate
// validation (unknown authority, expired, hostname mismatch).
func isCertificateError(err error) bool {
	var (
		verifyErr     *tls.CertificateVerificationError
		unknownAuth   x509.UnknownAuthorityError
		invalidCert   x509.CertificateInvalidError
		hostnameErr   x509.HostnameError
		constraintErr x509.ConstraintViolationError
	)

	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &constraintErr)
}

// classifyTransportError maps a net/http failure to a KindTransport *Error.
func classifyTransportError(ctx context.Context, err error) error {
	if e, ok := asError(err); ok {
		return e
	}

	code := TransportCodeUnknown

	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
	)

	switch {
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = TransportCodeTimeout
		}
	case errors.As(err, &dnsErr):
		code = TransportCodeDNS
	case isCertificateError(err):
		code = TransportCodeTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		code = TransportCodeTimeout
	case errors.As(err, &opErr) && opErr.Op == "dial":
		code = TransportCodeConnect
	}

	return &Error{
		Kind:    KindTransport,
		Code:    code,
		Message: "request failed",
		Err:     err,
	}
}
