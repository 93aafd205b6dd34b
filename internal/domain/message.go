package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one directed text message between two profiles.
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
	// Nonce is generated by the sending client and echoed back by the store,
	// so a provisional entry can be matched with its confirmed record.
	Nonce     string    `json:"nonce,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Key returns the conversation the message belongs to.
func (m Message) Key() ConversationKey {
	return NewConversationKey(m.SenderID, m.ReceiverID)
}

// Before reports whether m sorts before o in a conversation view.
// CreatedAt is the ordering key, the id breaks ties.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID.String() < o.ID.String()
}
