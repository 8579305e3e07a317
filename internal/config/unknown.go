package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean"
// suggestions.
const maxLevenshteinDistance = 3

// Sorted so equal-distance suggestions are deterministic.
var (
	knownSections    = []string{"logging", "network", "profile"}
	knownLoggingKeys = []string{"log_format", "log_level"}
	knownNetworkKeys = []string{"connect_timeout", "insecure_fallback", "timeout", "user_agent"}
	knownProfileKeys = []string{
		"auth_uri", "base_uri", "network", "refresh_uri",
		"services_uri", "token_path", "token_store", "username",
	}
)

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with a suggestion for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if err := unknownKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// unknownKeyError maps an undecoded key path to the list of names valid at
// that position.
func unknownKeyError(key toml.Key) error {
	switch {
	case len(key) == 1:
		return suggestKey(key.String(), key[0], knownSections)

	case key[0] == "logging":
		return suggestKey(key.String(), key[1], knownLoggingKeys)

	case key[0] == "network":
		return suggestKey(key.String(), key[1], knownNetworkKeys)

	case key[0] == "profile" && len(key) >= 3:
		if key[2] == "network" && len(key) >= 4 {
			return suggestKey(key.String(), key[3], knownNetworkKeys)
		}

		return suggestKey(key.String(), key[2], knownProfileKeys)

	default:
		return fmt.Errorf("unknown config key %q", key.String())
	}
}

func suggestKey(full, field string, known []string) error {
	if slices.Contains(known, field) {
		// Known field holding an unexpected nested value.
		return fmt.Errorf("config key %q has an unexpected structure", full)
	}

	if suggestion := closestMatch(field, known); suggestion != "" {
		return fmt.Errorf("unknown config key %q; did you mean %q?", full, suggestion)
	}

	return fmt.Errorf("unknown config key %q (valid: %s)", full, strings.Join(known, ", "))
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using a
// single-row table.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
