package aquicore

import (
	"bytes"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// statusLinePattern accepts both "404 Not Found" (net/http's Response.Status)
// and a full "HTTP/1.1 404 Not Found" line.
var statusLinePattern = regexp.MustCompile(`^(?:HTTP/\d(?:\.\d)?\s+)?([0-9]{3})(?:\s+(.*))?$`)

// DecodeResponse interprets a raw response. 2xx responses must carry valid
// JSON; anything else becomes a KindAPI *Error with the decoded error object
// attached when the body is a JSON object.
func DecodeResponse(resp *RawResponse) (json.RawMessage, error) {
	code, text := parseStatusLine(resp.StatusCode, resp.Status)
	body := bytes.TrimSpace(resp.Body)

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if len(body) == 0 || !json.Valid(body) {
			return nil, &Error{Kind: KindJSON, Code: code, Message: text}
		}

		return json.RawMessage(body), nil
	}

	apiErr := &Error{Kind: KindAPI, Code: code, Message: text}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err == nil && decoded != nil {
		apiErr.Body = decoded
	}

	return nil, apiErr
}

// parseStatusLine extracts the status code and reason phrase. An empty status
// falls back to the numeric code and its standard text; an unparsable one
// yields 400 "bad request".
func parseStatusLine(statusCode int, status string) (int, string) {
	status = strings.TrimSpace(status)

	if status == "" {
		if statusCode < 100 || statusCode > 999 {
			return fallbackStatusCode, fallbackStatusText
		}

		return statusCode, http.StatusText(statusCode)
	}

	m := statusLinePattern.FindStringSubmatch(status)
	if m == nil {
		return fallbackStatusCode, fallbackStatusText
	}

	code, err := strconv.Atoi(m[1])
	if err != nil {
		return fallbackStatusCode, fallbackStatusText
	}

	text := strings.TrimSpace(m[2])
	if text == "" {
		text = http.StatusText(code)
	}

	return code, text
}
