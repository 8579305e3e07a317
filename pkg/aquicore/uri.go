package aquicore

import (
	"net/url"
	"strings"
)

// BuildURI composes an absolute request URI.
//
// A path starting with "http" is already absolute and replaces base (secure
// is not applied to it). Otherwise base and path are joined with exactly one
// "/". When secure is set, an "http://" base is upgraded to "https://".
// Non-empty params are appended as a percent-encoded query string.
func BuildURI(base, path string, params map[string]string, secure bool) string {
	target := base
	if secure {
		target = upgradeScheme(target)
	}

	if path != "" {
		if strings.HasPrefix(path, "http") {
			target = path
		} else {
			target = strings.TrimRight(target, "/") + "/" + strings.TrimLeft(path, "/")
		}
	}

	if len(params) == 0 {
		return target
	}

	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}

	return target + sep + encodeQuery(params)
}

// upgradeScheme rewrites the leading "http" of a plain-http URI to "https".
// Only the scheme is touched; an https URI is returned unchanged.
func upgradeScheme(uri string) string {
	if !strings.HasPrefix(uri, "http://") {
		return uri
	}

	return "https" + strings.TrimPrefix(uri, "http")
}

func encodeQuery(params map[string]string) string {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}

	return values.Encode()
}
