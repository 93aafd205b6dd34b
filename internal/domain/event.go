package domain

import (
	"time"

	"github.com/google/uuid"
)

// Live event types. The first three come from the server, the channel.* ones are
// emitted locally by the live channel when the connection drops or recovers.
const (
	EventMessageNew  = "message.new"
	EventMessageRead = "message.read"
	EventPresence    = "presence"
	EventChannelDown = "channel.down"
	EventChannelUp   = "channel.up"
)

type Presence struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// LiveEvent is one notification delivered by the live event channel.
type LiveEvent struct {
	Type     string
	Message  *Message
	ReadIDs  []uuid.UUID
	Presence *Presence
	Err      error
}
