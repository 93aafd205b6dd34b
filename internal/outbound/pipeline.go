// Package outbound turns user input into persisted messages with optimistic
// feedback in the open conversation.
package outbound

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/conversation"
	"github.com/eaaaarl/iChat-Web/internal/domain"
)

// Writer is the durable write of the message store.
type Writer interface {
	InsertMessage(ctx context.Context, sender, receiver uuid.UUID, content, nonce string) (domain.Message, error)
}

// Conversation is the view a send is reflected in.
type Conversation interface {
	Peer() (uuid.UUID, bool)
	Insert(e conversation.Entry) bool
	Confirm(nonce string, msg domain.Message) bool
	Fail(nonce string) bool
	Lookup(nonce string) (conversation.Entry, bool)
}

// send is one in-flight or failed message, keyed by its nonce.
type send struct {
	provisional domain.Message
	state       conversation.State
}

type Pipeline struct {
	self  uuid.UUID
	store Writer
	conv  Conversation
	log   *slog.Logger
	now   func() time.Time

	mu    sync.Mutex
	sends map[string]*send
}

func New(self uuid.UUID, store Writer, conv Conversation, log *slog.Logger) *Pipeline {
	return &Pipeline{
		self:  self,
		store: store,
		conv:  conv,
		log:   log,
		now:   time.Now,
		sends: make(map[string]*send),
	}
}

// WithClock replaces the clock used for provisional timestamps.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Send shows text in the open conversation right away as a pending entry, then
// writes it. On failure the entry stays, flagged failed, and a
// *domain.WriteError is returned; the caller keeps the text and may Retry.
func (p *Pipeline) Send(ctx context.Context, peerID uuid.UUID, text string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, domain.ErrEmptyContent
	}
	if open, ok := p.conv.Peer(); !ok || open != peerID {
		return domain.Message{}, domain.ErrNotOpen
	}

	s := &send{
		provisional: domain.Message{
			ID:         uuid.New(),
			SenderID:   p.self,
			ReceiverID: peerID,
			Content:    text,
			Nonce:      uuid.NewString(),
			CreatedAt:  p.now(),
		},
		state: conversation.StatePending,
	}
	p.mu.Lock()
	p.sends[s.provisional.Nonce] = s
	p.mu.Unlock()

	p.conv.Insert(conversation.Entry{Message: s.provisional, State: conversation.StatePending})
	return p.write(ctx, s)
}

// Retry re-sends a failed message under its original nonce, so the store
// and the view both see one message however many attempts it takes.
func (p *Pipeline) Retry(ctx context.Context, nonce string) (domain.Message, error) {
	p.mu.Lock()
	s, ok := p.sends[nonce]
	if !ok || s.state != conversation.StateFailed {
		p.mu.Unlock()
		return domain.Message{}, domain.ErrUnknownSend
	}
	p.mu.Unlock()

	// The write may have landed even though its response was lost
	if e, found := p.conv.Lookup(nonce); found && e.State == conversation.StateConfirmed {
		p.finish(nonce)
		return e.Message, nil
	}
	if open, ok := p.conv.Peer(); !ok || open != s.provisional.ReceiverID {
		return domain.Message{}, domain.ErrNotOpen
	}
	if !p.transition(nonce, conversation.StateFailed, conversation.StatePending) {
		return domain.Message{}, domain.ErrUnknownSend
	}

	p.conv.Insert(conversation.Entry{Message: s.provisional, State: conversation.StatePending})
	return p.write(ctx, s)
}

func (p *Pipeline) write(ctx context.Context, s *send) (domain.Message, error) {
	m := s.provisional
	stored, err := p.store.InsertMessage(ctx, m.SenderID, m.ReceiverID, m.Content, m.Nonce)
	if err != nil {
		p.transition(m.Nonce, conversation.StatePending, conversation.StateFailed)
		p.conv.Fail(m.Nonce)
		p.log.Warn("Send failed", "peer", m.ReceiverID, "nonce", m.Nonce, "error", err)
		return domain.Message{}, &domain.WriteError{Op: "send", Err: err}
	}

	p.finish(m.Nonce)
	p.conv.Confirm(m.Nonce, stored)
	p.log.Debug("Send confirmed", "peer", m.ReceiverID, "id", stored.ID)
	return stored, nil
}

func (p *Pipeline) transition(nonce string, from, to conversation.State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sends[nonce]
	if !ok || s.state != from {
		return false
	}
	s.state = to
	return true
}

// finish drops a confirmed send; confirmed is terminal.
func (p *Pipeline) finish(nonce string) {
	p.mu.Lock()
	delete(p.sends, nonce)
	p.mu.Unlock()
}

// State returns the state of a send that is still tracked: pending or failed.
func (p *Pipeline) State(nonce string) (conversation.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sends[nonce]
	if !ok {
		return conversation.StateConfirmed, false
	}
	return s.state, true
}

// Failed returns the nonces of the sends awaiting a retry.
func (p *Pipeline) Failed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for nonce, s := range p.sends {
		if s.state == conversation.StateFailed {
			out = append(out, nonce)
		}
	}
	slices.Sort(out)
	return out
}
