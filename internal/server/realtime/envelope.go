// Package realtime pushes events to connected websocket clients. Every
// connection joins the room of its user; events are fanned out by a single
// hub goroutine fed through channels.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names sent to clients.
const (
	EventTaskCreated      = "task_created"
	EventTaskUpdated      = "task_updated"
	EventTaskDeleted      = "task_deleted"
	EventNotification     = "notification"
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
)

// timestampLayout is fixed-width so timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the JSON frame every event is delivered in.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

func newEnvelope(event string, data any, message string, now time.Time) Envelope {
	return Envelope{
		Type:      event,
		Data:      data,
		Timestamp: now.UTC().Format(timestampLayout),
		Message:   message,
	}
}

func encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return b, nil
}

// UserRoom is the room every connection of userID joins on connect.
func UserRoom(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}
