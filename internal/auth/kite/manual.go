package kite

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseRequestToken extracts the request token from whatever a user pasted
// after completing the login on another device: the full redirect URL, just
// its query string, or the bare token itself. The extracted token must pass
// the same format check the callback server applies.
func ParseRequestToken(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("empty request token")
	}

	// Bare token with no URL structure at all.
	if !strings.ContainsAny(trimmed, "/?&=#") {
		if !IsValidRequestToken(trimmed) {
			return "", fmt.Errorf("request token failed format check")
		}
		return trimmed, nil
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		if strings.HasPrefix(candidate, "?") {
			candidate = "http://localhost" + candidate
		} else if strings.Contains(candidate, "=") && !strings.Contains(candidate, "/") {
			candidate = "http://localhost/?" + candidate
		} else {
			candidate = "http://" + candidate
		}
	}

	parsedURL, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %w", err)
	}

	token := strings.TrimSpace(parsedURL.Query().Get("request_token"))
	if token == "" && parsedURL.Fragment != "" {
		if fragQuery, errFrag := url.ParseQuery(parsedURL.Fragment); errFrag == nil {
			token = strings.TrimSpace(fragQuery.Get("request_token"))
		}
	}
	if token == "" {
		return "", fmt.Errorf("callback URL missing request_token")
	}
	if !IsValidRequestToken(token) {
		return "", fmt.Errorf("request token failed format check")
	}
	return token, nil
}
