// Package session holds everything that lives for one signed-in user: the
// shared live subscription, the open conversation, the roster and the send
// pipeline. It is created on sign-in and torn down on sign-out.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/conversation"
	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/eventbus"
	"github.com/eaaaarl/iChat-Web/internal/outbound"
	"github.com/eaaaarl/iChat-Web/internal/roster"
)

var ErrTornDown = errors.New("session is torn down")

type Deps struct {
	Identity IdentityProvider
	Messages MessageStore
	Profiles ProfileStore
	Channel  eventbus.Channel
	Log      *slog.Logger
}

type Options struct {
	RosterConcurrency int
	Conversation      conversation.Options
}

type Session struct {
	self uuid.UUID
	log  *slog.Logger
	bus  *eventbus.Bus

	Conversation *conversation.Synchronizer
	Roster       *roster.Aggregator
	Outbound     *outbound.Pipeline

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	listeners []*eventbus.Listener

	mu       sync.Mutex
	down     bool
	tornDown bool
	done     chan struct{}
	once     sync.Once
}

// New starts a session for the signed-in user. It subscribes to the live
// channel once; every component listens through that single subscription.
func New(ctx context.Context, deps Deps, opts Options) (*Session, error) {
	self, ok := deps.Identity.CurrentUserID()
	if !ok {
		return nil, domain.ErrNotSignedIn
	}

	log := deps.Log.With("user", self)
	ctx, cancel := context.WithCancel(ctx)
	bus := eventbus.New(deps.Channel, log)
	if err := bus.Start(ctx); err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		self:   self,
		log:    log,
		bus:    bus,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.Conversation = conversation.New(ctx, self, deps.Messages, bus, log.With("component", "conversation"), opts.Conversation)
	s.Roster = roster.New(self, deps.Messages, deps.Profiles, log.With("component", "roster"), opts.RosterConcurrency)
	s.Outbound = outbound.New(self, deps.Messages, s.Conversation, log.With("component", "outbound"))

	s.listeners = append(s.listeners,
		bus.Listen(roster.Events, s.Roster.Handle),
		bus.Listen(eventbus.OfType(domain.EventChannelDown, domain.EventChannelUp), s.onChannel),
	)
	deps.Identity.OnSignedOut(s.Teardown)

	log.Info("Session started")
	return s, nil
}

func (s *Session) Self() uuid.UUID {
	return s.self
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Open shows the conversation with peerID and clears its unread count.
func (s *Session) Open(ctx context.Context, peerID uuid.UUID) error {
	if err := s.check(); err != nil {
		return err
	}
	if peerID == s.self {
		return domain.ErrSelfConversation
	}
	s.Roster.SetActivePeer(peerID)
	s.Roster.MarkPeerRead(peerID)
	return s.Conversation.Open(ctx, peerID)
}

func (s *Session) CloseConversation() {
	s.Roster.ClearActivePeer()
	s.Conversation.Close()
}

func (s *Session) Send(ctx context.Context, peerID uuid.UUID, text string) (domain.Message, error) {
	if err := s.check(); err != nil {
		return domain.Message{}, err
	}
	return s.Outbound.Send(ctx, peerID, text)
}

func (s *Session) Retry(ctx context.Context, nonce string) (domain.Message, error) {
	if err := s.check(); err != nil {
		return domain.Message{}, err
	}
	return s.Outbound.Retry(ctx, nonce)
}

// Teardown closes the conversation, drops every listener and releases the
// live channel. It is idempotent and safe to call from the sign-out callback.
func (s *Session) Teardown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.tornDown = true
		s.mu.Unlock()

		s.cancel()
		s.Conversation.Close()
		for _, l := range s.listeners {
			l.Close()
		}
		if err := s.bus.Close(); err != nil {
			s.log.Warn("Live channel release failed", "error", err)
		}
		s.wg.Wait()
		s.Conversation.Wait()
		close(s.done)
		s.log.Info("Session torn down")
	})
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return ErrTornDown
	}
	return nil
}

// onChannel refreshes the open conversation and the roster when the live
// channel comes back, to pick up whatever was sent while it was down.
func (s *Session) onChannel(e domain.LiveEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tornDown {
		return
	}

	switch e.Type {
	case domain.EventChannelDown:
		s.down = true
		s.log.Warn("Live channel down", "error", e.Err)
	case domain.EventChannelUp:
		if !s.down {
			return
		}
		s.down = false
		s.log.Info("Live channel back, resynchronizing")
		s.wg.Add(1)
		go s.resync()
	}
}

func (s *Session) resync() {
	defer s.wg.Done()
	if err := s.Conversation.Resync(s.ctx); err != nil {
		s.log.Warn("Conversation resync failed", "error", err)
	}
	if err := s.Roster.Load(s.ctx); err != nil {
		s.log.Warn("Roster reload failed", "error", err)
	}
}
