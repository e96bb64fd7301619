// Package session owns the Kite session lifecycle: login URL generation,
// request-token exchange, validity checking, and transparent
// re-authentication. It is the single writer of the access token bound to the
// shared brokerage client.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	kiteauth "github.com/router-for-me/KiteMCP/internal/auth/kite"
	"github.com/router-for-me/KiteMCP/internal/browser"
	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/kite"
	"github.com/router-for-me/KiteMCP/internal/metrics"
)

// Status values reported by TokenStatus.
const (
	StatusNoTokens = "no_tokens"
	StatusValid    = "valid"
	StatusExpired  = "expired"
)

// TokenStatus is the read-only session summary exposed to status tools and
// management endpoints. Producing it never performs network calls.
type TokenStatus struct {
	// Status is one of no_tokens, valid or expired.
	Status string `json:"status"`
	// Message is a human-readable description of the status.
	Message string `json:"message"`
	// GeneratedAt is when the current token was exchanged, if one exists.
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
	// ExpiresAt is when the current token expires, if one exists.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Manager is the session state machine. It owns the credentials and token
// store, drives the callback listener during interactive login, and is the
// only component that rebinds the shared client's access token.
type Manager struct {
	cfg    *config.Config
	creds  *kiteauth.Credentials
	store  *kiteauth.TokenStore
	client *kite.Client

	// mu guards record. The client carries its own lock for the bound token.
	mu     sync.RWMutex
	record *kiteauth.TokenRecord

	// loginGroup collapses concurrent re-authentication attempts so expired
	// sessions hit by parallel order calls trigger a single login flow.
	loginGroup singleflight.Group

	// loginActive marks an interactive login in flight for surfaces that
	// must refuse rather than join, such as the management login endpoint.
	loginActive atomic.Bool

	// noBrowser suppresses the browser launch during automated logins; the
	// URL is printed instead and the callback listener still runs.
	noBrowser atomic.Bool
}

// NewManager builds the session manager, failing fast when credentials are
// missing. A persisted record that is still inside its validity window is
// bound immediately so a restart does not force a new login.
func NewManager(cfg *config.Config, client *kite.Client) (*Manager, error) {
	creds, err := kiteauth.CredentialsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		creds:  creds,
		store:  kiteauth.NewTokenStore(cfg.Kite.TokenFile),
		client: client,
	}

	record, err := m.store.Load()
	if err != nil {
		log.Warnf("session: failed to load persisted token record: %v", err)
	} else if record != nil {
		m.record = record
		if !record.IsExpired() {
			client.SetAccessToken(record.AccessToken)
			log.Infof("session: loaded persisted token, valid until %s", record.ExpiresAt.Format(time.RFC3339))
		} else {
			log.Infof("session: persisted token expired at %s", record.ExpiresAt.Format(time.RFC3339))
		}
	}
	metrics.SetSessionValid(record != nil && !record.IsExpired())

	return m, nil
}

// LoginURL composes the authorization URL using the externally configured
// redirect, suitable for manual and remote flows.
func (m *Manager) LoginURL() string {
	return m.creds.LoginURL(m.cfg.Kite.LoginBaseURL, "")
}

// TokenFile returns the path of the persisted token record, for change watchers.
func (m *Manager) TokenFile() string {
	return m.store.Path()
}

// SetBrowserLaunch controls whether automated logins open the system
// browser. With launching disabled the flow still binds the callback
// listener and prints the URL for the operator to open manually.
func (m *Manager) SetBrowserLaunch(enabled bool) {
	m.noBrowser.Store(!enabled)
}

// LoginInProgress reports whether an interactive login flow is running.
func (m *Manager) LoginInProgress() bool {
	return m.loginActive.Load()
}

// ExchangeRequestToken exchanges a request token for an access token, persists
// the resulting record and binds it to the client. Remote failures come back
// as a typed error; the caller owns any retry policy.
func (m *Manager) ExchangeRequestToken(ctx context.Context, requestToken string) error {
	sess, err := m.client.GenerateSession(ctx, requestToken, m.creds.APISecret)
	if err != nil {
		metrics.IncAuthAttempt("failure")
		metrics.SetSessionValid(false)
		return kiteauth.NewAuthenticationError(kiteauth.ErrExchangeFailed, err)
	}

	record := kiteauth.NewTokenRecord(sess.AccessToken, sess.RefreshToken, m.cfg.Kite.TokenValidity())
	if err = m.store.Save(record); err != nil {
		// Persistence is best effort: the in-memory session stays usable for
		// this process even when the record cannot be written.
		log.Errorf("session: failed to persist token record: %v", err)
	}

	m.mu.Lock()
	m.record = record
	m.mu.Unlock()
	m.client.SetAccessToken(record.AccessToken)

	metrics.IncAuthAttempt("success")
	metrics.SetSessionValid(true)
	log.Infof("session: authenticated as %s, token valid until %s", sess.UserName, record.ExpiresAt.Format(time.RFC3339))
	return nil
}

// IsTokenValid reports whether the record can back a live session. Absent or
// locally expired records are invalid without a network call; anything else
// is verified with a live profile probe, because the broker can invalidate a
// token server-side well before the local expiry. Probe failures of any kind
// mean invalid, never an error.
func (m *Manager) IsTokenValid(ctx context.Context, record *kiteauth.TokenRecord) bool {
	if record.IsExpired() {
		metrics.SetSessionValid(false)
		return false
	}

	m.client.SetAccessToken(record.AccessToken)
	if _, err := m.client.Profile(ctx); err != nil {
		log.Debugf("session: live token probe failed: %v", err)
		metrics.SetSessionValid(false)
		return false
	}

	metrics.SetSessionValid(true)
	return true
}

// TokenStatus summarizes the persisted session without probing the broker, so
// it is safe to call from health checks at any frequency.
func (m *Manager) TokenStatus() TokenStatus {
	record := m.currentRecord()

	if record == nil || record.AccessToken == "" {
		return TokenStatus{
			Status:  StatusNoTokens,
			Message: "No access token found. Complete a login flow to authenticate.",
		}
	}

	generated := record.GeneratedAt
	expires := record.ExpiresAt
	if record.IsExpired() {
		return TokenStatus{
			Status:      StatusExpired,
			Message:     fmt.Sprintf("Access token expired at %s. Re-authentication required.", expires.Format(time.RFC3339)),
			GeneratedAt: &generated,
			ExpiresAt:   &expires,
		}
	}
	return TokenStatus{
		Status:      StatusValid,
		Message:     fmt.Sprintf("Access token valid for another %s (until %s).", record.TimeRemaining().Round(time.Minute), expires.Format(time.RFC3339)),
		GeneratedAt: &generated,
		ExpiresAt:   &expires,
	}
}

// AuthenticatedClient returns the brokerage client bound to a live session.
// With autoAuthenticate false an unusable session fails with a token-expired
// error so the caller can decide whether to start a login; with it true one
// full re-authentication flow is attempted before giving up.
func (m *Manager) AuthenticatedClient(ctx context.Context, autoAuthenticate bool) (*kite.Client, error) {
	if m.IsTokenValid(ctx, m.currentRecord()) {
		return m.client, nil
	}

	if !autoAuthenticate {
		return nil, kiteauth.NewAuthenticationError(kiteauth.ErrTokenExpired, nil)
	}

	if _, err := m.Reauthenticate(ctx); err != nil {
		return nil, err
	}
	return m.client, nil
}

// Reauthenticate runs one shared forced login flow. Concurrent callers that
// hit an expired session at the same time join the in-flight attempt instead
// of opening competing browsers and callback listeners.
func (m *Manager) Reauthenticate(ctx context.Context) (*kiteauth.TokenRecord, error) {
	result, err, _ := m.loginGroup.Do("login", func() (interface{}, error) {
		return m.AuthenticateFullyAutomated(ctx, m.cfg.Callback.WaitTimeout(), true)
	})
	if err != nil {
		if kiteauth.IsAuthenticationError(err) {
			return nil, err
		}
		return nil, kiteauth.NewAuthenticationError(kiteauth.ErrAuthenticationRequired, err)
	}

	record, _ := result.(*kiteauth.TokenRecord)
	if record == nil || record.AccessToken == "" {
		return nil, kiteauth.NewAuthenticationError(kiteauth.ErrAuthenticationRequired, nil)
	}
	return record, nil
}

// AuthenticateFullyAutomated is the interactive orchestration: it starts the
// callback listener on a dynamically chosen port, opens the authorization URL
// in a browser and blocks until the listener signals completion or the
// timeout elapses. The listener is torn down on every exit path. Headless
// environments fail fast so the caller can fall back to the manual exchange.
func (m *Manager) AuthenticateFullyAutomated(ctx context.Context, timeout time.Duration, force bool) (*kiteauth.TokenRecord, error) {
	if !force {
		if record := m.currentRecord(); m.IsTokenValid(ctx, record) {
			log.Debug("session: existing token still valid, skipping login flow")
			return record, nil
		}
	}

	if m.noBrowser.Load() {
		// URL-only mode: the operator opens the link themselves, possibly
		// through a forwarded port, so the headless refusal does not apply.
	} else if !browser.IsAvailable() {
		log.Warn("session: no usable browser in this environment, interactive login unavailable")
		log.Debugf("session: browser environment: %v", browser.GetPlatformInfo())
		log.Infof("session: complete the login manually at %s", m.LoginURL())
		return nil, kiteauth.ErrHeadlessEnvironment
	}

	if !m.loginActive.CompareAndSwap(false, true) {
		return nil, kiteauth.ErrLoginInProgress
	}
	defer m.loginActive.Store(false)

	port, err := kiteauth.FindAvailablePort(m.cfg.Callback.StartPort, m.cfg.Callback.PortAttempts)
	if err != nil {
		return nil, err
	}

	server := kiteauth.NewCallbackServer(port, m.ExchangeRequestToken)
	if err = server.Start(); err != nil {
		return nil, kiteauth.NewAuthenticationError(kiteauth.ErrServerStartFailed, err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errStop := server.Stop(stopCtx); errStop != nil {
			log.Warnf("session: failed to stop callback server: %v", errStop)
		}
	}()

	redirectURL := fmt.Sprintf("http://localhost:%d/callback", port)
	loginURL := m.creds.LoginURL(m.cfg.Kite.LoginBaseURL, redirectURL)

	log.WithField("port", port).Info("session: waiting for Kite login callback")
	if m.noBrowser.Load() {
		fmt.Printf("Open this URL in your browser to log in to Kite:\n\n  %s\n\n", loginURL)
	} else if err = browser.OpenURL(loginURL); err != nil {
		log.Warnf("session: could not open browser: %v", err)
		fmt.Printf("Open this URL in your browser to log in to Kite:\n\n  %s\n\n", loginURL)
	}

	result, err := server.WaitForCompletion(timeout)
	if err != nil {
		if errors.Is(err, kiteauth.ErrCallbackTimeout) {
			metrics.IncAuthAttempt("timeout")
			log.Errorf("session: no login callback within %s", timeout)
		}
		return nil, err
	}
	if result.Err != "" {
		return nil, kiteauth.NewAuthenticationError(kiteauth.ErrExchangeFailed, errors.New(result.Err))
	}

	// The exchange already ran inside the callback handler and bound the new
	// record; hand the caller the current state.
	return m.currentRecord(), nil
}

// ReloadTokenRecord re-reads the persisted record after the token file changed
// on disk, picking up logins completed by another process.
func (m *Manager) ReloadTokenRecord() {
	record, err := m.store.Load()
	if err != nil {
		log.Warnf("session: failed to reload token record: %v", err)
		return
	}

	m.mu.Lock()
	m.record = record
	m.mu.Unlock()

	if record != nil && !record.IsExpired() {
		m.client.SetAccessToken(record.AccessToken)
		metrics.SetSessionValid(true)
		log.Info("session: token record reloaded from disk")
	} else {
		metrics.SetSessionValid(false)
	}
}

func (m *Manager) currentRecord() *kiteauth.TokenRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record
}
