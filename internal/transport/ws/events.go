package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

// Event types - Client → Server
const (
	EventTypePing = "ping"
)

// Event types - Server → Client
const (
	EventTypeMessageNew  = domain.EventMessageNew
	EventTypeMessageRead = domain.EventMessageRead
	EventTypePresence    = domain.EventPresence
	EventTypePong        = "pong"
	EventTypeError       = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Server → Client payloads ---

type MessagePayload struct {
	domain.Message
}

// ReadPayload lists messages of the recipient that the other side has read.
type ReadPayload struct {
	IDs []uuid.UUID `json:"ids"`
}

type PresencePayload struct {
	domain.Presence
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}

// LiveEvent decodes a server event for the client side. Pong and unknown
// types are reported with ok false.
func (e *Event) LiveEvent() (evt domain.LiveEvent, ok bool, err error) {
	evt.Type = e.Type
	switch e.Type {
	case EventTypeMessageNew:
		var p MessagePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return evt, false, fmt.Errorf("decoding %s: %w", e.Type, err)
		}
		evt.Message = &p.Message
	case EventTypeMessageRead:
		var p ReadPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return evt, false, fmt.Errorf("decoding %s: %w", e.Type, err)
		}
		evt.ReadIDs = p.IDs
	case EventTypePresence:
		var p PresencePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return evt, false, fmt.Errorf("decoding %s: %w", e.Type, err)
		}
		evt.Presence = &p.Presence
	default:
		return evt, false, nil
	}
	return evt, true, nil
}
