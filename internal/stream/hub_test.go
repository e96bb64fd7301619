package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = hub.Stop(context.Background()) })

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	// The handshake completes before the server registers the session, so
	// wait for the pool to see it.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", hub.SubscriberCount())
	}
	return hub, conn
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	hub, conn := dialTestHub(t)

	hub.Broadcast(NewEvent(EventTypeOrder, map[string]any{"symbol": "RELIANCE", "outcome": "SUCCESS"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if got := gjson.GetBytes(payload, "type").String(); got != EventTypeOrder {
		t.Errorf("event type = %q, want %q", got, EventTypeOrder)
	}
	if got := gjson.GetBytes(payload, "data.symbol").String(); got != "RELIANCE" {
		t.Errorf("data.symbol = %q, want %q", got, "RELIANCE")
	}
	if !gjson.GetBytes(payload, "time").Exists() {
		t.Error("event is missing its timestamp")
	}
}

func TestPingIsAnsweredWithPong(t *testing.T) {
	_, conn := dialTestHub(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if got := gjson.GetBytes(payload, "type").String(); got != EventTypePong {
		t.Errorf("reply type = %q, want %q", got, EventTypePong)
	}
}

func TestStopDisconnectsSubscribers(t *testing.T) {
	hub, conn := dialTestHub(t)

	if err := hub.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after Stop, want 0", hub.SubscriberCount())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage() succeeded after Stop, want connection error")
	}
}

func TestUpgradeRejectsNonGet(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL, "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestEnqueueDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	registered := make(chan *session, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := newSession(conn, hub, "slow")
		hub.sessMutex.Lock()
		hub.sessions[s.id] = s
		hub.sessMutex.Unlock()
		registered <- s
		// No pumps: the queue never drains, like a stalled client.
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	var s *session
	select {
	case s = <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("session never registered")
	}

	for i := 0; i < sendQueueSize; i++ {
		s.enqueue([]byte("event"))
	}
	select {
	case <-s.closed:
		t.Fatal("session closed before the queue overflowed")
	default:
	}

	s.enqueue([]byte("overflow"))
	select {
	case <-s.closed:
	default:
		t.Error("session still open after queue overflow, want it dropped")
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d after drop, want 0", hub.SubscriberCount())
	}
}
