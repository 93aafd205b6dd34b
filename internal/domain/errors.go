package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrEmptyContent     = errors.New("message content is empty")
	ErrSelfConversation = errors.New("cannot open a conversation with yourself")
	ErrNotOpen          = errors.New("peer is not the open conversation")
	ErrNotSignedIn      = errors.New("no signed in user")
	ErrNotParticipant   = errors.New("signed in user is not a participant")
	ErrUnknownSend      = errors.New("no failed send with this nonce")
)

// FetchError reports a failed bulk load or per-peer lookup. The view it was
// feeding is left empty or partial and the operation can be retried.
type FetchError struct {
	Op   string
	Peer uuid.UUID
	Err  error
}

func (e *FetchError) Error() string {
	if e.Peer == uuid.Nil {
		return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fetch %s for %s: %v", e.Op, e.Peer, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a failed send or read-mark. Local optimistic state is kept.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SubscriptionError reports a live channel that could not connect or dropped.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("live subscription: %v", e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
