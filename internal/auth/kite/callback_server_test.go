package kite

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type exchangeRecorder struct {
	calls  int
	tokens []string
	err    error
}

func (r *exchangeRecorder) exchange(_ context.Context, requestToken string) error {
	r.calls++
	r.tokens = append(r.tokens, requestToken)
	return r.err
}

func drainResult(s *CallbackServer) *CallbackResult {
	select {
	case result := <-s.resultChan:
		return result
	default:
		return nil
	}
}

func TestHandleCallbackRejectsInvalidTokens(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing token", "action=login&status=success"},
		{"short token", "request_token=abc12&action=login&status=success"},
		{"non alphanumeric token", "request_token=abcdef%3B1234&action=login&status=success"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			recorder := &exchangeRecorder{}
			server := NewCallbackServer(0, recorder.exchange)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil)
			server.handleCallback(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if recorder.calls != 0 {
				t.Errorf("exchange calls = %d, want 0", recorder.calls)
			}
			if result := drainResult(server); result != nil {
				t.Errorf("completion signaled for invalid token: %+v", result)
			}
		})
	}
}

func TestHandleCallbackWrongParametersSignalsFailure(t *testing.T) {
	recorder := &exchangeRecorder{}
	server := NewCallbackServer(0, recorder.exchange)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/callback?request_token=abcdef123456&action=login&status=cancelled", nil)
	server.handleCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if recorder.calls != 0 {
		t.Errorf("exchange calls = %d, want 0", recorder.calls)
	}
	result := drainResult(server)
	if result == nil {
		t.Fatal("no completion signal for rejected parameter combination")
	}
	if result.Err == "" {
		t.Error("result.Err is empty, want failure reason")
	}
}

func TestHandleCallbackSuccessRunsExchangeOnce(t *testing.T) {
	recorder := &exchangeRecorder{}
	server := NewCallbackServer(0, recorder.exchange)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/callback?request_token=abcdef123456&action=login&status=success", nil)
	server.handleCallback(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if recorder.calls != 1 {
		t.Errorf("exchange calls = %d, want 1", recorder.calls)
	}
	if len(recorder.tokens) != 1 || recorder.tokens[0] != "abcdef123456" {
		t.Errorf("exchange tokens = %v, want [abcdef123456]", recorder.tokens)
	}
	result := drainResult(server)
	if result == nil {
		t.Fatal("no completion signal for successful callback")
	}
	if result.Err != "" {
		t.Errorf("result.Err = %q, want empty", result.Err)
	}
	if result.RequestToken != "abcdef123456" {
		t.Errorf("result.RequestToken = %q, want %q", result.RequestToken, "abcdef123456")
	}
	if !strings.Contains(w.Body.String(), "Login Successful") {
		t.Error("success page body missing confirmation text")
	}
}

func TestHandleCallbackExchangeFailureSignalsFailure(t *testing.T) {
	recorder := &exchangeRecorder{err: NewAuthenticationError(ErrExchangeFailed, errors.New("boom"))}
	server := NewCallbackServer(0, recorder.exchange)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/callback?request_token=abcdef123456&action=login&status=success", nil)
	server.handleCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	result := drainResult(server)
	if result == nil {
		t.Fatal("no completion signal for failed exchange")
	}
	if result.Err == "" {
		t.Error("result.Err is empty, want failure reason")
	}
}

func TestHandleCallbackSignalsAtMostOnce(t *testing.T) {
	recorder := &exchangeRecorder{}
	server := NewCallbackServer(0, recorder.exchange)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/callback?request_token=abcdef123456&action=login&status=success", nil)
		server.handleCallback(w, req)
	}

	if result := drainResult(server); result == nil {
		t.Fatal("expected one buffered completion signal")
	}
	if result := drainResult(server); result != nil {
		t.Errorf("second completion signal buffered: %+v", result)
	}
}

func TestHandleCallbackRejectsNonGet(t *testing.T) {
	server := NewCallbackServer(0, (&exchangeRecorder{}).exchange)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/callback", nil)
	server.handleCallback(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestWaitForCompletionTimesOut(t *testing.T) {
	server := NewCallbackServer(0, (&exchangeRecorder{}).exchange)

	_, err := server.WaitForCompletion(20 * time.Millisecond)
	if !errors.Is(err, ErrCallbackTimeout) {
		t.Errorf("WaitForCompletion() error = %v, want ErrCallbackTimeout", err)
	}
}

func TestIsValidRequestToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid", "abcDEF123456", true},
		{"minimum length", "a123456789", true},
		{"too short", "abc12", false},
		{"empty", "", false},
		{"embedded punctuation", "abcdef1234!", false},
		{"embedded space", "abcdef 1234", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsValidRequestToken(tt.token); got != tt.want {
				t.Errorf("IsValidRequestToken(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestFindAvailablePortSkipsBoundPort(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	boundPort := listener.Addr().(*net.TCPAddr).Port

	if _, err = FindAvailablePort(boundPort, 1); err == nil {
		t.Error("FindAvailablePort() error = nil for a bound port, want ErrNoPortAvailable")
	} else {
		var authErr *AuthenticationError
		if !errors.As(err, &authErr) || authErr.Type != ErrNoPortAvailable.Type {
			t.Errorf("FindAvailablePort() error = %v, want %s", err, ErrNoPortAvailable.Type)
		}
	}

	if err = listener.Close(); err != nil {
		t.Fatalf("listener.Close() error = %v", err)
	}

	port, err := FindAvailablePort(boundPort, 1)
	if err != nil {
		t.Fatalf("FindAvailablePort() error = %v after release, want nil", err)
	}
	if port != boundPort {
		t.Errorf("FindAvailablePort() = %d, want %d", port, boundPort)
	}
}

func TestCallbackServerStartAndStop(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	if err = listener.Close(); err != nil {
		t.Fatalf("listener.Close() error = %v", err)
	}

	server := NewCallbackServer(port, (&exchangeRecorder{}).exchange)
	if err = server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !server.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/callback", port))
	if err != nil {
		t.Fatalf("GET /callback error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("GET /callback status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	if err = server.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if server.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	if err = server.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}
}
