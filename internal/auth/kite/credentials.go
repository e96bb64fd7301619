package kite

import (
	"net/url"
	"strings"

	"github.com/router-for-me/KiteMCP/internal/config"
)

// Credentials holds the Kite Connect app credentials needed for the login
// flow and the request-token exchange. Immutable once loaded.
type Credentials struct {
	// APIKey identifies the Kite Connect app.
	APIKey string
	// APISecret signs the request-token exchange checksum. Never logged.
	APISecret string
	// RedirectURL is the redirect registered with the Kite Connect app. May
	// be empty, in which case a localhost URL is synthesized for automated
	// flows.
	RedirectURL string
}

// CredentialsFromConfig extracts and validates the credentials. Environment
// overrides have already been folded into the config at load time. Both the
// API key and secret must be present; an incomplete pair can never complete
// an exchange, so this fails fast.
func CredentialsFromConfig(cfg *config.Config) (*Credentials, error) {
	creds := &Credentials{
		APIKey:      strings.TrimSpace(cfg.Kite.APIKey),
		APISecret:   strings.TrimSpace(cfg.Kite.APISecret),
		RedirectURL: strings.TrimSpace(cfg.Kite.RedirectURL),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	return creds, nil
}

// LoginURL composes the Kite Connect authorization URL a user must visit to
// approve the session and produce a request token. redirectURL overrides the
// configured redirect when non-empty, which lets automated flows point the
// broker at the callback server's dynamically chosen port.
func (c *Credentials) LoginURL(loginBaseURL, redirectURL string) string {
	if redirectURL == "" {
		redirectURL = c.RedirectURL
	}
	values := url.Values{}
	values.Set("api_key", c.APIKey)
	if redirectURL != "" {
		values.Set("redirect_url", redirectURL)
	}
	return strings.TrimSuffix(loginBaseURL, "?") + "?" + values.Encode()
}
