// Package aquicore provides an OAuth2 client for the Aquicore REST API
// with token lifecycle management, a single refresh-and-retry on expired
// tokens, and error classification.
package aquicore

import (
	"errors"
	"fmt"
)

// Kind discriminates the failure classes a client call can produce.
type Kind int

// Error kinds.
const (
	KindTransport Kind = iota + 1
	KindJSON
	KindAPI
	KindNotAuthenticated
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindJSON:
		return "json"
	case KindAPI:
		return "api"
	case KindNotAuthenticated:
		return "not authenticated"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind.
// Use errors.Is(err, aquicore.ErrAPI) to check.
var (
	ErrTransport        = errors.New("aquicore: transport error")
	ErrJSON             = errors.New("aquicore: invalid json response")
	ErrAPI              = errors.New("aquicore: api error")
	ErrNotAuthenticated = errors.New("aquicore: not authenticated")
	ErrInternal         = errors.New("aquicore: internal error")
)

// Vendor error codes carried in {"error":{"code":N}} bodies.
const (
	CodeAccessTokenMissing = 1
	CodeInvalidAccessToken = 2
	CodeAccessTokenExpired = 3
)

// Transport failure codes, numbered as libcurl numbers them.
const (
	TransportCodeUnknown = 0
	TransportCodeDNS     = 6
	TransportCodeConnect = 7
	TransportCodeTimeout = 28
	TransportCodeTLS     = 60
	TransportCodeBody    = 23
)

// Default status used when a response status line cannot be parsed.
const (
	fallbackStatusCode = 400
	fallbackStatusText = "bad request"
)

// Error is the single error type returned by the client. Kind selects the
// failure class; Body is only set for KindAPI when the server returned a
// JSON object.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Body    map[string]any
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("aquicore: %s error (code %d): %s", e.Kind, e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the kind sentinel and the cause so that errors.Is
// works for either.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// APICode returns the vendor error code from the response body when the
// server sent one, falling back to the HTTP status code.
func (e *Error) APICode() int {
	if code, ok := bodyErrorField(e.Body, "code").(float64); ok {
		return int(code)
	}

	return e.Code
}

// APIMessage returns the vendor error message from the response body when
// present, falling back to Message.
func (e *Error) APIMessage() string {
	if msg, ok := bodyErrorField(e.Body, "message").(string); ok && msg != "" {
		return msg
	}

	return e.Message
}

func bodyErrorField(body map[string]any, field string) any {
	if body == nil {
		return nil
	}

	inner, ok := body["error"].(map[string]any)
	if !ok {
		return nil
	}

	return inner[field]
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindJSON:
		return ErrJSON
	case KindAPI:
		return ErrAPI
	case KindNotAuthenticated:
		return ErrNotAuthenticated
	default:
		return ErrInternal
	}
}

func internalError(msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg}
}

// asError extracts an *Error from err's chain.
func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}

	return nil, false
}
