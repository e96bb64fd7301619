package kite

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ExchangeFunc completes a login by exchanging a request token for an access
// token. The callback handler invokes it synchronously before responding, so
// the browser page reflects the real outcome of the exchange.
type ExchangeFunc func(ctx context.Context, requestToken string) error

// CallbackResult contains the outcome of one login callback.
type CallbackResult struct {
	// RequestToken is the token delivered by the broker redirect.
	RequestToken string
	// Err holds the failure reason when the login did not complete.
	Err string
}

// CallbackServer is the short-lived local HTTP server that captures the Kite
// login redirect. It accepts exactly one route (GET /callback), validates the
// redirect parameters, runs the token exchange, and signals completion to the
// waiting login flow exactly once.
type CallbackServer struct {
	// server is the underlying HTTP server instance.
	server *http.Server
	// port is the port number on which the server listens.
	port int
	// exchange completes the request-token exchange for a valid callback.
	exchange ExchangeFunc
	// resultChan carries the single completion signal for this attempt.
	resultChan chan *CallbackResult
	// errorChan carries server startup failures.
	errorChan chan error
	// mu protects server state.
	mu sync.Mutex
	// running indicates whether the server is currently listening.
	running bool
}

// NewCallbackServer creates a callback server for one login attempt. Each
// attempt gets a fresh server so a late signal from an abandoned attempt can
// never leak into the next one.
func NewCallbackServer(port int, exchange ExchangeFunc) *CallbackServer {
	return &CallbackServer{
		port:       port,
		exchange:   exchange,
		resultChan: make(chan *CallbackResult, 1),
		errorChan:  make(chan error, 1),
	}
}

// Port returns the port the server listens on.
func (s *CallbackServer) Port() int {
	return s.port
}

// Start begins listening for the login redirect in a background goroutine.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("callback server is already running")
	}
	if !isPortAvailable(s.port) {
		return fmt.Errorf("port %d is already in use", s.port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// The token exchange runs inside the handler before the response is
		// written, so the write deadline must cover a full API round trip.
		WriteTimeout: 60 * time.Second,
	}

	s.running = true

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errorChan <- NewAuthenticationError(ErrServerStartFailed, err)
		}
	}()

	// Give the listener a moment to come up before the browser is opened.
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Stop gracefully shuts down the callback server. It is idempotent so the
// login flow can defer it unconditionally.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	log.Debug("stopping Kite login callback server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil

	return err
}

// WaitForCompletion blocks until the callback signals completion, the server
// fails, or the timeout elapses.
func (s *CallbackServer) WaitForCompletion(timeout time.Duration) (*CallbackResult, error) {
	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return nil, err
	case <-time.After(timeout):
		return nil, ErrCallbackTimeout
	}
}

// IsRunning returns whether the server is currently listening.
func (s *CallbackServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// handleCallback processes the broker redirect. Requests without a plausible
// request token are rejected without signaling completion, so stray probes
// against the port cannot abort a login that is still waiting for the real
// redirect. Once a well-formed token arrives the attempt completes either
// way: the exchange runs and its outcome is signaled.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	log.Debug("received Kite login callback")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	requestToken := strings.TrimSpace(query.Get("request_token"))
	action := query.Get("action")
	status := query.Get("status")

	if requestToken == "" {
		log.Error("login callback carried no request token")
		s.writeErrorPage(w, "No request token received from Kite.")
		return
	}
	if !IsValidRequestToken(requestToken) {
		log.Error("login callback carried a malformed request token")
		s.writeErrorPage(w, "The request token received from Kite is malformed.")
		return
	}

	if action != "login" || status != "success" {
		reason := fmt.Sprintf("Unexpected callback parameters: action=%q status=%q.", action, status)
		log.Errorf("login callback rejected: %s", reason)
		s.sendResult(&CallbackResult{RequestToken: requestToken, Err: reason})
		s.writeErrorPage(w, reason)
		return
	}

	if err := s.exchange(r.Context(), requestToken); err != nil {
		log.Errorf("request token exchange failed: %v", err)
		s.sendResult(&CallbackResult{RequestToken: requestToken, Err: GetUserFriendlyMessage(err)})
		s.writeErrorPage(w, GetUserFriendlyMessage(err))
		return
	}

	s.sendResult(&CallbackResult{RequestToken: requestToken})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(LoginSuccessHtml)); err != nil {
		log.Errorf("failed to write login success page: %v", err)
	}
}

// writeErrorPage responds with 400 and the error page carrying the reason.
func (s *CallbackServer) writeErrorPage(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	page := strings.Replace(LoginErrorHtml, "{{ERROR_MESSAGE}}", html.EscapeString(reason), 1)
	if _, err := w.Write([]byte(page)); err != nil {
		log.Errorf("failed to write login error page: %v", err)
	}
}

// sendResult signals completion without blocking the handler. The channel is
// buffered for exactly one result; anything beyond the first is dropped.
func (s *CallbackServer) sendResult(result *CallbackResult) {
	select {
	case s.resultChan <- result:
		log.Debug("login callback result sent to waiter")
	default:
		log.Warn("login callback result channel is full, result dropped")
	}
}

// IsValidRequestToken applies the basic format check for Kite request tokens:
// alphanumeric with a minimum length of 10. It defends the callback endpoint
// against injected or truncated redirects.
func IsValidRequestToken(token string) bool {
	if len(token) < 10 {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// FindAvailablePort probes a small range of local ports starting at start and
// returns the first one that can be bound. Scanning a fixed range keeps two
// instances on the same host from colliding without any cross-process
// coordination.
func FindAvailablePort(start, attempts int) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	for port := start; port < start+attempts; port++ {
		if isPortAvailable(port) {
			return port, nil
		}
	}
	return 0, NewAuthenticationError(ErrNoPortAvailable, fmt.Errorf("scanned %d ports from %d", attempts, start))
}

// isPortAvailable checks whether the port can be bound right now.
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	defer func() {
		_ = listener.Close()
	}()
	return true
}
