package aquicore

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse_Success(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"object", `{"status":"ok"}`, `{"status":"ok"}`},
		{"array", `[1,2,3]`, `[1,2,3]`},
		{"false literal", `false`, `false`},
		{"zero literal", `0`, `0`},
		{"surrounding whitespace", "\n {\"a\":1} \n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := DecodeResponse(&RawResponse{
				StatusCode: http.StatusOK,
				Status:     "200 OK",
				Body:       []byte(tt.body),
			})
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestDecodeResponse_UnparsableSuccessBody(t *testing.T) {
	for _, body := range []string{"", "not json", `{"unterminated":`} {
		_, err := DecodeResponse(&RawResponse{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Body:       []byte(body),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrJSON)

		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, KindJSON, apiErr.Kind)
		assert.Equal(t, http.StatusOK, apiErr.Code)
		assert.Equal(t, "OK", apiErr.Message)
	}
}

func TestDecodeResponse_StructuredAPIError(t *testing.T) {
	_, err := DecodeResponse(&RawResponse{
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
		Body:       []byte(`{"error":{"code":1,"message":"bad"}}`),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindAPI, apiErr.Kind)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
	assert.Equal(t, "Not Found", apiErr.Message)
	require.NotNil(t, apiErr.Body)
	assert.Equal(t, map[string]any{"code": float64(1), "message": "bad"}, apiErr.Body["error"])
	assert.Equal(t, 1, apiErr.APICode())
	assert.Equal(t, "bad", apiErr.APIMessage())
}

func TestDecodeResponse_APIErrorWithoutObjectBody(t *testing.T) {
	for _, body := range []string{"", "<html>oops</html>", `[1,2]`, `null`} {
		_, err := DecodeResponse(&RawResponse{
			StatusCode: http.StatusInternalServerError,
			Status:     "500 Internal Server Error",
			Body:       []byte(body),
		})

		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, KindAPI, apiErr.Kind)
		assert.Equal(t, http.StatusInternalServerError, apiErr.Code)
		assert.Nil(t, apiErr.Body, "body %q", body)
		assert.Equal(t, http.StatusInternalServerError, apiErr.APICode())
	}
}

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		status   string
		wantCode int
		wantText string
	}{
		{"net/http status", 404, "404 Not Found", 404, "Not Found"},
		{"full status line", 403, "HTTP/1.1 403 Forbidden", 403, "Forbidden"},
		{"custom reason", 418, "418 Short and stout", 418, "Short and stout"},
		{"code only", 503, "503", 503, "Service Unavailable"},
		{"empty status uses code", 401, "", 401, "Unauthorized"},
		{"garbage status", 500, "whatever", fallbackStatusCode, fallbackStatusText},
		{"empty status invalid code", 0, "", fallbackStatusCode, fallbackStatusText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, text := parseStatusLine(tt.code, tt.status)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantText, text)
		})
	}
}
