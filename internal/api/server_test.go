package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/journal"
	"github.com/router-for-me/KiteMCP/internal/kite"
	"github.com/router-for-me/KiteMCP/internal/logging"
	"github.com/router-for-me/KiteMCP/internal/orders"
	"github.com/router-for-me/KiteMCP/internal/session"
	"github.com/router-for-me/KiteMCP/internal/stream"
)

func newTestServer(t *testing.T, managementKey string) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.ManagementKey = managementKey
	cfg.Kite.APIKey = "testkey"
	cfg.Kite.APISecret = "testsecret"
	cfg.Kite.TokenFile = filepath.Join(t.TempDir(), "tokens.json")
	cfg.Orders.JournalFile = filepath.Join(t.TempDir(), "orders.log")

	client := kite.NewClient(cfg, nil)
	manager, err := session.NewManager(cfg, client)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	j := journal.New(cfg.Orders.JournalFile)
	t.Cleanup(func() { _ = j.Close() })

	hub := stream.NewHub()
	t.Cleanup(func() { _ = hub.Stop(context.Background()) })

	requestLogger := logging.NewFileRequestLogger(false, t.TempDir())
	return New(cfg, manager, orders.NewEngine(cfg, manager, j), hub, requestLogger)
}

func get(t *testing.T, s *Server, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthIsAlwaysOpen(t *testing.T) {
	s := newTestServer(t, "sekrit")

	w := get(t, s, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestManagementRequiresKeyWhenConfigured(t *testing.T) {
	s := newTestServer(t, "sekrit")

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{name: "no key", header: nil, want: http.StatusUnauthorized},
		{name: "wrong key", header: map[string]string{"X-Management-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "header key", header: map[string]string{"X-Management-Key": "sekrit"}, want: http.StatusOK},
		{name: "bearer key", header: map[string]string{"Authorization": "Bearer sekrit"}, want: http.StatusOK},
	}

	for _, tt := range tests {
		w := get(t, s, "/v0/management/token-status", tt.header)
		if w.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, w.Code, tt.want)
		}
	}
}

func TestManagementOpenWithoutConfiguredKey(t *testing.T) {
	s := newTestServer(t, "")

	w := get(t, s, "/v0/management/token-status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestUpdateConfigSwapsManagementKey(t *testing.T) {
	s := newTestServer(t, "old-key")

	cfg := config.DefaultConfig()
	cfg.ManagementKey = "new-key"
	s.UpdateConfig(cfg)

	if w := get(t, s, "/v0/management/token-status", map[string]string{"X-Management-Key": "old-key"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("old key still accepted: %d", w.Code)
	}
	if w := get(t, s, "/v0/management/token-status", map[string]string{"X-Management-Key": "new-key"}); w.Code != http.StatusOK {
		t.Fatalf("new key rejected: %d", w.Code)
	}
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	s := newTestServer(t, "")

	w := get(t, s, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "kitemcp_session_valid") {
		t.Fatalf("exposition missing gauge: %s", w.Body.String()[:min(len(w.Body.String()), 400)])
	}
}

func TestMCPRouteSpeaksSSE(t *testing.T) {
	s := newTestServer(t, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "data: ") {
		t.Fatalf("body = %q, want SSE frame", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"kite-mcp"`) {
		t.Fatalf("frame missing server name: %s", w.Body.String())
	}
}

func TestOrderStreamDeliversBroadcasts(t *testing.T) {
	s := newTestServer(t, "")

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/orders"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.hub.Broadcast(stream.NewEvent(stream.EventTypeOrder, map[string]any{"symbol": "INFY"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if gjson.GetBytes(payload, "type").String() != "order" {
		t.Fatalf("payload = %s", payload)
	}
	if gjson.GetBytes(payload, "data.symbol").String() != "INFY" {
		t.Fatalf("payload = %s", payload)
	}
}
