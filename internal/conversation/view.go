package conversation

import (
	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

// State is the delivery state of a view entry.
type State int

const (
	StateConfirmed State = iota
	StatePending
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	default:
		return "confirmed"
	}
}

// Entry is a message as displayed, with its delivery state. Only outbound
// messages created locally are ever pending or failed.
type Entry struct {
	domain.Message
	State State
}

// View is an immutable snapshot of the open conversation.
type View struct {
	Key     domain.ConversationKey
	Peer    uuid.UUID
	Entries []Entry
}

func (v View) Len() int {
	return len(v.Entries)
}

func (v View) Messages() []domain.Message {
	out := make([]domain.Message, len(v.Entries))
	for i, e := range v.Entries {
		out[i] = e.Message
	}
	return out
}

// sameIdentity reports whether two entries denote the same message: same id,
// or the same nonce while at least one of them is a local copy.
func sameIdentity(x, y Entry) bool {
	if x.ID == y.ID {
		return true
	}
	if x.Nonce == "" || x.Nonce != y.Nonce {
		return false
	}
	return x.State != StateConfirmed || y.State != StateConfirmed
}
