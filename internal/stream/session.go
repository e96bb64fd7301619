package stream

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	readTimeout          = 60 * time.Second
	writeTimeout         = 10 * time.Second
	heartbeatInterval    = 30 * time.Second
	maxInboundMessageLen = 1 << 10
	sendQueueSize        = 32
)

var (
	errClosed         = errors.New("stream: session closed")
	errSlowSubscriber = errors.New("stream: subscriber send queue full")
)

type session struct {
	conn      *websocket.Conn
	hub       *Hub
	id        string
	sendQueue chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, hub *Hub, id string) *session {
	s := &session{
		conn:      conn,
		hub:       hub,
		id:        id,
		sendQueue: make(chan []byte, sendQueueSize),
		closed:    make(chan struct{}),
	}
	conn.SetReadLimit(maxInboundMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return s
}

// writePump is the session's only frame writer: broadcasts drain from the
// send queue and heartbeats interleave on the same goroutine.
func (s *session) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case payload := <-s.sendQueue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.cleanup(err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cleanup(err)
				return
			}
		}
	}
}

func (s *session) readPump() {
	defer s.cleanup(errClosed)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.cleanup(err)
			return
		}
		s.dispatch(payload)
	}
}

// dispatch handles the one inbound message subscribers may send: a JSON ping.
// Everything else is ignored.
func (s *session) dispatch(payload []byte) {
	if gjson.GetBytes(payload, "type").String() != EventTypePing {
		return
	}
	if data, err := json.Marshal(NewEvent(EventTypePong, nil)); err == nil {
		s.enqueue(data)
	}
}

// enqueue hands a frame to the write pump without ever blocking the caller. A
// subscriber whose queue is full is dropped rather than allowed to stall the
// broadcast path.
func (s *session) enqueue(payload []byte) {
	select {
	case <-s.closed:
	case s.sendQueue <- payload:
	default:
		s.cleanup(errSlowSubscriber)
	}
}

func (s *session) cleanup(cause error) {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
		if s.hub != nil {
			s.hub.handleSessionClosed(s, cause)
		}
	})
}
