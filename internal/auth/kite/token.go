package kite

import (
	"time"
)

// TokenRecord stores the access token obtained from a request-token exchange
// together with the timestamps needed to judge its validity. Kite Connect
// sessions expire at a fixed daily cutoff the API does not report, so the
// expiry is approximated locally as the generation time plus a configured
// validity window.
type TokenRecord struct {
	// AccessToken is sent with every authenticated API request.
	AccessToken string `json:"access_token"`

	// RefreshToken is returned by the exchange when the app has one enabled.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is GeneratedAt plus the configured validity window.
	ExpiresAt time.Time `json:"expires_at"`

	// GeneratedAt is when the exchange completed.
	GeneratedAt time.Time `json:"generated_at"`
}

// NewTokenRecord builds the record for a freshly exchanged access token.
func NewTokenRecord(accessToken, refreshToken string, validity time.Duration) *TokenRecord {
	now := time.Now()
	return &TokenRecord{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(validity),
		GeneratedAt:  now,
	}
}

// IsExpired reports whether the record is unusable. There is no grace period:
// a token is expired strictly at or after ExpiresAt. A token that the broker
// invalidates earlier than the local expiry surfaces as an API error and is
// handled by the re-authentication path instead.
func (t *TokenRecord) IsExpired() bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	return !time.Now().Before(t.ExpiresAt)
}

// TimeRemaining returns how long the token stays usable, zero once expired.
func (t *TokenRecord) TimeRemaining() time.Duration {
	if t == nil || t.AccessToken == "" {
		return 0
	}
	remaining := time.Until(t.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
