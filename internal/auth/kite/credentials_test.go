package kite

import (
	"errors"
	"net/url"
	"testing"

	"github.com/router-for-me/KiteMCP/internal/config"
)

func TestCredentialsFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		secret  string
		wantErr bool
	}{
		{"both present", "api-key", "api-secret", false},
		{"missing secret", "api-key", "", true},
		{"missing key", "", "api-secret", true},
		{"whitespace only", "  ", "\t", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Kite.APIKey = tt.key
			cfg.Kite.APISecret = tt.secret

			creds, err := CredentialsFromConfig(cfg)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingCredentials) {
					t.Fatalf("CredentialsFromConfig() error = %v, want ErrMissingCredentials", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CredentialsFromConfig() error = %v, want nil", err)
			}
			if creds.APIKey != "api-key" || creds.APISecret != "api-secret" {
				t.Errorf("credentials = %+v, want trimmed key and secret", creds)
			}
		})
	}
}

func TestLoginURLContainsKeyAndRedirect(t *testing.T) {
	creds := &Credentials{
		APIKey:      "my_api_key",
		APISecret:   "secret",
		RedirectURL: "http://localhost:8080/callback",
	}

	loginURL := creds.LoginURL("https://kite.trade/connect/login", "")
	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", loginURL, err)
	}
	if got := parsed.Query().Get("api_key"); got != "my_api_key" {
		t.Errorf("api_key = %q, want %q", got, "my_api_key")
	}
	redirect := parsed.Query().Get("redirect_url")
	redirectParsed, err := url.Parse(redirect)
	if err != nil || redirectParsed.Scheme == "" || redirectParsed.Host == "" {
		t.Errorf("redirect_url = %q, want a syntactically valid absolute URL (err = %v)", redirect, err)
	}
}

func TestLoginURLRedirectOverride(t *testing.T) {
	creds := &Credentials{
		APIKey:      "my_api_key",
		APISecret:   "secret",
		RedirectURL: "https://example.com/hook",
	}

	loginURL := creds.LoginURL("https://kite.trade/connect/login", "http://localhost:8085/callback")
	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", loginURL, err)
	}
	if got := parsed.Query().Get("redirect_url"); got != "http://localhost:8085/callback" {
		t.Errorf("redirect_url = %q, want the override", got)
	}
}

func TestAuthenticationErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAuthenticationError(ErrExchangeFailed, cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !IsAuthenticationError(err) {
		t.Error("IsAuthenticationError() = false, want true")
	}
	if got := GetUserFriendlyMessage(err); got == "" {
		t.Error("GetUserFriendlyMessage() returned empty string")
	}
	if got := GetUserFriendlyMessage(errors.New("plain")); got != "An unexpected error occurred. Please try again." {
		t.Errorf("GetUserFriendlyMessage(plain) = %q, want generic fallback", got)
	}
}
