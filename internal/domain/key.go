package domain

import "github.com/google/uuid"

// ConversationKey identifies a pairwise conversation. Low and High hold the two
// participant ids in canonical order, so the key does not depend on direction.
type ConversationKey struct {
	Low  uuid.UUID
	High uuid.UUID
}

// NewConversationKey builds the key for the pair (a, b).
func NewConversationKey(a, b uuid.UUID) ConversationKey {
	// Canonical order is the string order, as in the store's pair index.
	if a.String() > b.String() {
		a, b = b, a
	}
	return ConversationKey{Low: a, High: b}
}

// Has reports whether id is one of the two participants.
func (k ConversationKey) Has(id uuid.UUID) bool {
	return k.Low == id || k.High == id
}

// Counterpart returns the participant that is not self.
// It returns uuid.Nil when self is not part of the conversation.
func (k ConversationKey) Counterpart(self uuid.UUID) uuid.UUID {
	switch self {
	case k.Low:
		return k.High
	case k.High:
		return k.Low
	default:
		return uuid.Nil
	}
}

func (k ConversationKey) IsZero() bool {
	return k.Low == uuid.Nil && k.High == uuid.Nil
}

func (k ConversationKey) String() string {
	return k.Low.String() + "_" + k.High.String()
}
