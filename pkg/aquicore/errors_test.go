package aquicore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{KindTransport, ErrTransport},
		{KindJSON, ErrJSON},
		{KindAPI, ErrAPI},
		{KindNotAuthenticated, ErrNotAuthenticated},
		{KindInternal, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &Error{Kind: tt.kind, Code: 1, Message: "m"})
			assert.ErrorIs(t, err, tt.sentinel)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.kind, e.Kind)
		})
	}
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("dial failed")
	err := &Error{Kind: KindTransport, Code: TransportCodeConnect, Message: "request failed", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "dial failed")
	assert.Contains(t, err.Error(), "transport")
}

func TestError_APICodeFallsBackToStatus(t *testing.T) {
	err := &Error{Kind: KindAPI, Code: 403, Message: "Forbidden"}
	assert.Equal(t, 403, err.APICode())
	assert.Equal(t, "Forbidden", err.APIMessage())

	err.Body = map[string]any{"error": "not an object"}
	assert.Equal(t, 403, err.APICode())

	err.Body = map[string]any{"error": map[string]any{"code": float64(CodeAccessTokenExpired), "message": "expired"}}
	assert.Equal(t, CodeAccessTokenExpired, err.APICode())
	assert.Equal(t, "expired", err.APIMessage())
}

func TestInternalErrorMessage(t *testing.T) {
	err := internalError("No access token stored")
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "No access token stored", err.Message)
	assert.Equal(t, 0, err.Code)
}
