package stream

import "time"

// Event is the JSON payload pushed to websocket subscribers.
type Event struct {
	Type string         `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

const (
	// EventTypeOrder carries a terminal order outcome.
	EventTypeOrder = "order"
	// EventTypeAuth carries a session lifecycle change.
	EventTypeAuth = "auth"
	// EventTypePing represents ping messages from clients.
	EventTypePing = "ping"
	// EventTypePong represents pong responses back to clients.
	EventTypePong = "pong"
)

// NewEvent builds a timestamped event ready for broadcast.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Time: time.Now().UTC(), Data: data}
}
