// Package conversation keeps the ordered, deduplicated view of the one open
// pairwise conversation, merging the bulk fetch, live inserts and local sends.
package conversation

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/eventbus"
)

// Store is the part of the message store the synchronizer reads and marks.
type Store interface {
	FetchConversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error)
	MarkRead(ctx context.Context, ids []uuid.UUID) error
}

type Options struct {
	// ReadRetries bounds the attempts of one read-mark batch.
	ReadRetries      int
	ReadRetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadRetries <= 0 {
		o.ReadRetries = 3
	}
	if o.ReadRetryBackoff <= 0 {
		o.ReadRetryBackoff = 500 * time.Millisecond
	}
	return o
}

type Synchronizer struct {
	self  uuid.UUID
	store Store
	bus   *eventbus.Bus
	log   *slog.Logger
	opts  Options

	ctx context.Context
	wg  sync.WaitGroup

	mu       sync.Mutex
	gen      uint64
	open     bool
	key      domain.ConversationKey
	peer     uuid.UUID
	entries  []Entry
	listener *eventbus.Listener

	// publishMu serializes watcher notifications so snapshots are delivered
	// in the order they were taken.
	publishMu sync.Mutex
	watchers  map[int]func(View)
	nextWatch int
}

// New builds a synchronizer for self. Background read-marking stops when ctx
// is cancelled.
func New(ctx context.Context, self uuid.UUID, store Store, bus *eventbus.Bus, log *slog.Logger, opts Options) *Synchronizer {
	return &Synchronizer{
		self:     self,
		store:    store,
		bus:      bus,
		log:      log,
		opts:     opts.withDefaults(),
		ctx:      ctx,
		watchers: make(map[int]func(View)),
	}
}

// Open switches the view to the conversation with peerID. The previous view is
// dropped and the live filter re-scoped before the fetch starts, so late events
// for the abandoned conversation are never applied.
func (s *Synchronizer) Open(ctx context.Context, peerID uuid.UUID) error {
	if peerID == s.self {
		return domain.ErrSelfConversation
	}
	key := domain.NewConversationKey(s.self, peerID)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.open = true
	s.key = key
	s.peer = peerID
	s.entries = nil
	if s.listener == nil {
		s.listener = s.bus.Listen(s.filterFor(key), s.handle)
	} else {
		s.listener.SetFilter(s.filterFor(key))
	}
	s.mu.Unlock()
	s.publish()

	return s.fetch(ctx, gen, key, peerID)
}

// Resync re-fetches the open conversation and merges it into the view. It is
// used after the live channel reconnects, to pick up anything missed.
func (s *Synchronizer) Resync(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	gen, key, peer := s.gen, s.key, s.peer
	s.mu.Unlock()

	return s.fetch(ctx, gen, key, peer)
}

func (s *Synchronizer) fetch(ctx context.Context, gen uint64, key domain.ConversationKey, peer uuid.UUID) error {
	msgs, err := s.store.FetchConversation(ctx, s.self, peer)
	if err != nil {
		s.log.Warn("Conversation fetch failed", "peer", peer, "error", err)
		return &domain.FetchError{Op: "conversation", Peer: peer, Err: err}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.Debug("Dropping fetch result for abandoned conversation", "peer", peer)
		return nil
	}
	for _, m := range msgs {
		// The store's ordering and filtering are not trusted
		if m.Key() != key {
			continue
		}
		s.upsertLocked(Entry{Message: m, State: StateConfirmed})
	}
	unread := s.markInboundReadLocked()
	s.mu.Unlock()

	s.publish()
	s.markRead(unread)
	return nil
}

// Close releases the listener and the view. It is idempotent.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if !s.open && s.listener == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.open = false
	s.key = domain.ConversationKey{}
	s.peer = uuid.Nil
	s.entries = nil
	l := s.listener
	s.listener = nil
	s.mu.Unlock()

	if l != nil {
		l.Close()
	}
	s.publish()
}

// Peer returns the peer of the open conversation.
func (s *Synchronizer) Peer() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer, s.open
}

func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Watch calls fn with every new view until the returned cancel is called.
func (s *Synchronizer) Watch(fn func(View)) (cancel func()) {
	s.publishMu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.publishMu.Unlock()

	return func() {
		s.publishMu.Lock()
		delete(s.watchers, id)
		s.publishMu.Unlock()
	}
}

// Wait blocks until background read-marking has finished.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// OnLiveInsert merges a live insert. Events outside the open conversation are
// ignored; a message already in the view is replaced, never duplicated.
func (s *Synchronizer) OnLiveInsert(msg domain.Message) {
	s.mu.Lock()
	if !s.open || msg.Key() != s.key {
		s.mu.Unlock()
		return
	}
	s.upsertLocked(Entry{Message: msg, State: StateConfirmed})
	unread := s.markInboundReadLocked()
	s.mu.Unlock()

	s.publish()
	s.markRead(unread)
}

// OnLiveRead flags the given messages as read by their receiver.
func (s *Synchronizer) OnLiveRead(ids []uuid.UUID) {
	s.mu.Lock()
	changed := false
	for i := range s.entries {
		if !s.entries[i].Read && slices.Contains(ids, s.entries[i].ID) {
			s.entries[i].Read = true
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.publish()
	}
}

// Insert adds a local entry to the open conversation. It reports false when
// the entry does not belong to it.
func (s *Synchronizer) Insert(e Entry) bool {
	s.mu.Lock()
	if !s.open || e.Key() != s.key {
		s.mu.Unlock()
		return false
	}
	s.upsertLocked(e)
	s.mu.Unlock()

	s.publish()
	return true
}

// Confirm replaces the local entry carrying nonce with the stored record. If
// the live echo got there first, the record is merged by id instead.
func (s *Synchronizer) Confirm(nonce string, msg domain.Message) bool {
	if msg.Nonce == "" {
		msg.Nonce = nonce
	}
	s.mu.Lock()
	if !s.open || msg.Key() != s.key {
		s.mu.Unlock()
		return false
	}
	s.upsertLocked(Entry{Message: msg, State: StateConfirmed})
	s.mu.Unlock()

	s.publish()
	return true
}

// Fail flags the pending entry carrying nonce as failed.
func (s *Synchronizer) Fail(nonce string) bool {
	s.mu.Lock()
	found := false
	for i := range s.entries {
		if s.entries[i].Nonce == nonce && s.entries[i].State == StatePending {
			s.entries[i].State = StateFailed
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.publish()
	}
	return found
}

// Lookup returns the entry carrying nonce.
func (s *Synchronizer) Lookup(nonce string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Nonce == nonce {
			return e, true
		}
	}
	return Entry{}, false
}

func (s *Synchronizer) handle(e domain.LiveEvent) {
	switch e.Type {
	case domain.EventMessageNew:
		if e.Message != nil {
			s.OnLiveInsert(*e.Message)
		}
	case domain.EventMessageRead:
		s.OnLiveRead(e.ReadIDs)
	}
}

func (s *Synchronizer) filterFor(key domain.ConversationKey) eventbus.Predicate {
	return func(e domain.LiveEvent) bool {
		switch e.Type {
		case domain.EventMessageNew:
			return e.Message != nil && e.Message.Key() == key
		case domain.EventMessageRead:
			return len(e.ReadIDs) > 0
		}
		return false
	}
}

// upsertLocked inserts e at its ordered position, replacing every entry with
// the same identity. A local copy never displaces or joins a confirmed record
// of the same message. Read never reverts to false.
func (s *Synchronizer) upsertLocked(e Entry) {
	var record *Entry
	kept := make([]Entry, 0, len(s.entries)+1)
	for _, existing := range s.entries {
		if !sameIdentity(existing, e) {
			kept = append(kept, existing)
			continue
		}
		if existing.Read {
			e.Read = true
		}
		if existing.State == StateConfirmed && e.State != StateConfirmed {
			kept = append(kept, existing)
			record = &kept[len(kept)-1]
		}
	}
	if record != nil {
		record.Read = record.Read || e.Read
		s.entries = kept
		return
	}
	pos := sort.Search(len(kept), func(i int) bool {
		return e.Before(kept[i].Message)
	})
	s.entries = slices.Insert(kept, pos, e)
}

// markInboundReadLocked flips unread inbound messages to read and returns their ids.
func (s *Synchronizer) markInboundReadLocked() []uuid.UUID {
	var ids []uuid.UUID
	for i := range s.entries {
		e := &s.entries[i]
		if e.ReceiverID == s.self && !e.Read && e.State == StateConfirmed {
			e.Read = true
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// markRead persists read flags in the background with bounded retry. Failure
// is logged only: the local read state is kept.
func (s *Synchronizer) markRead(ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := s.opts.ReadRetryBackoff
		for attempt := 1; ; attempt++ {
			err := s.store.MarkRead(s.ctx, ids)
			if err == nil {
				return
			}
			s.log.Debug("Read mark failed", "attempt", attempt, "count", len(ids), "error", err)
			if attempt >= s.opts.ReadRetries || !s.sleep(backoff) {
				s.log.Warn("Giving up on read mark", "count", len(ids),
					"error", &domain.WriteError{Op: "mark read", Err: err})
				return
			}
			backoff *= 2
		}
	}()
}

// sleep waits for d and reports false if the session ended first.
func (s *Synchronizer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Synchronizer) publish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	view := s.View()
	for _, fn := range s.watchers {
		fn(view)
	}
}

func (s *Synchronizer) snapshotLocked() View {
	return View{
		Key:     s.key,
		Peer:    s.peer,
		Entries: slices.Clone(s.entries),
	}
}
