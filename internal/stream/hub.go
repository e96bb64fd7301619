// Package stream fans order and session lifecycle events out to websocket
// subscribers. Subscribers are listen-only: the server never blocks on a slow
// client, it drops the connection instead.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiteMCP/internal/metrics"
)

// Hub owns the subscriber pool and the broadcast path.
type Hub struct {
	upgrader  websocket.Upgrader
	sessions  map[string]*session
	sessMutex sync.RWMutex
}

// NewHub builds an empty subscriber hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the connection and wires the session into the pool.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(r.Method, http.MethodGet) {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("stream: upgrade failed: %v", err)
		return
	}

	s := newSession(conn, h, uuid.NewString())
	h.sessMutex.Lock()
	h.sessions[s.id] = s
	active := len(h.sessions)
	h.sessMutex.Unlock()
	metrics.SetStreamSubscribers(active)
	log.Debugf("stream: subscriber %s connected (%d active)", s.id, active)

	go s.writePump()
	go s.readPump()
}

// Broadcast encodes the event once and queues it for every subscriber.
func (h *Hub) Broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Warnf("stream: failed to encode %s event: %v", event.Type, err)
		return
	}

	h.sessMutex.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessMutex.RUnlock()

	for _, s := range sessions {
		s.enqueue(payload)
	}
}

// SubscriberCount reports the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.sessMutex.RLock()
	defer h.sessMutex.RUnlock()
	return len(h.sessions)
}

// Stop gracefully closes all active websocket sessions.
func (h *Hub) Stop(_ context.Context) error {
	h.sessMutex.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*session)
	h.sessMutex.Unlock()

	for _, s := range sessions {
		s.cleanup(errors.New("stream: hub stopped"))
	}
	metrics.SetStreamSubscribers(0)
	return nil
}

func (h *Hub) handleSessionClosed(s *session, cause error) {
	if s == nil {
		return
	}
	h.sessMutex.Lock()
	if cur, ok := h.sessions[s.id]; ok && cur == s {
		delete(h.sessions, s.id)
	}
	active := len(h.sessions)
	h.sessMutex.Unlock()
	metrics.SetStreamSubscribers(active)
	log.Debugf("stream: subscriber %s disconnected (%d active): %v", s.id, active, cause)
}
