package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types of the session lifecycle
const (
	SessionCreated    = "session.created"
	SessionExpired    = "session.expired"
	SessionClosed     = "session.closed"
	ChatTurnCompleted = "chat.turn_completed"
)

// Payload keys
const (
	KeySessionID    = "session_id"
	KeyCollectionID = "collection_id"
	KeySource       = "source"
	KeyChunks       = "chunks"
	KeyTurns        = "turns"
)

func NewSessionEvent(eventType, sessionID string, data map[string]interface{}) BaseEvent {
	payload := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload[KeySessionID] = sessionID
	return BaseEvent{Type: eventType, Data: payload, OccurredAt: time.Now().UTC()}
}

// envelope is the wire form used on the in-process bus.
type envelope struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func Marshal(e Event) ([]byte, error) {
	return json.Marshal(envelope{Type: e.EventType(), Data: e.Payload(), OccurredAt: e.Timestamp()})
}

func Unmarshal(data []byte) (BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return BaseEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if env.Type == "" {
		return BaseEvent{}, fmt.Errorf("decode event: missing type")
	}
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}

// String reads a string payload field.
func String(e Event, key string) string {
	s, _ := e.Payload()[key].(string)
	return s
}
