// Package roster derives the per-peer summaries shown in the peer list: last
// message preview, unread count and presence. It listens to every live insert
// regardless of which conversation is open.
package roster

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/eventbus"
)

const (
	defaultConcurrency = 8

	// maxRecounts bounds the unread recount rounds of one Load while inserts
	// keep arriving.
	maxRecounts = 3
)

// Store is the part of the message store used to summarize a peer.
type Store interface {
	FetchLastMessage(ctx context.Context, a, b uuid.UUID) (*domain.Message, error)
	CountUnread(ctx context.Context, receiver, sender uuid.UUID) (int, error)
}

type ProfileStore interface {
	ListProfiles(ctx context.Context, except uuid.UUID) ([]domain.Profile, error)
}

// Events selects the live events the aggregator consumes.
var Events = eventbus.OfType(domain.EventMessageNew, domain.EventMessageRead, domain.EventPresence)

type Aggregator struct {
	self        uuid.UUID
	store       Store
	profiles    ProfileStore
	log         *slog.Logger
	concurrency int

	mu    sync.Mutex
	peers map[uuid.UUID]*domain.PeerSummary
	// baseline is each peer's last message as of the installed load. Anything
	// not after it was counted by that load.
	baseline map[uuid.UUID]domain.Message
	// seen holds the live messages applied since the installed load.
	seen    map[uuid.UUID]domain.Message
	active  uuid.UUID
	loading int
	pending []domain.Message

	publishMu sync.Mutex
	watchers  map[int]func([]domain.PeerSummary)
	nextWatch int
}

// New builds an aggregator for self. concurrency bounds the per-peer lookups
// of Load; zero or less selects a default.
func New(self uuid.UUID, store Store, profiles ProfileStore, log *slog.Logger, concurrency int) *Aggregator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Aggregator{
		self:        self,
		store:       store,
		profiles:    profiles,
		log:         log,
		concurrency: concurrency,
		peers:       make(map[uuid.UUID]*domain.PeerSummary),
		baseline:    make(map[uuid.UUID]domain.Message),
		seen:        make(map[uuid.UUID]domain.Message),
		watchers:    make(map[int]func([]domain.PeerSummary)),
	}
}

// Load rebuilds every summary from the store. A failed lookup degrades only
// its own peer; a failed profile listing fails the load and keeps the current
// summaries.
func (a *Aggregator) Load(ctx context.Context) error {
	a.mu.Lock()
	a.loading++
	a.mu.Unlock()

	profiles, err := a.profiles.ListProfiles(ctx, a.self)
	if err != nil {
		a.mu.Lock()
		a.endLoadLocked()
		a.mu.Unlock()
		a.log.Warn("Roster profile listing failed", "error", err)
		return &domain.FetchError{Op: "profiles", Err: err}
	}

	fresh := make([]domain.PeerSummary, len(profiles))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, p := range profiles {
		g.Go(func() error {
			fresh[i] = a.summarize(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	a.mu.Lock()
	peers := make(map[uuid.UUID]*domain.PeerSummary, len(fresh))
	baseline := make(map[uuid.UUID]domain.Message, len(fresh))
	for i := range fresh {
		s := &fresh[i]
		peers[s.Profile.ID] = s
		if s.LastMessage != nil {
			baseline[s.Profile.ID] = *s.LastMessage
		}
	}
	a.peers = peers
	a.baseline = baseline
	for id, m := range a.seen {
		if a.coveredLocked(m) {
			delete(a.seen, id)
		}
	}
	touched, cursor := a.replayLocked(0)
	a.mu.Unlock()

	a.recount(ctx, touched, cursor)

	a.mu.Lock()
	a.endLoadLocked()
	a.mu.Unlock()

	a.publish()
	return nil
}

func (a *Aggregator) endLoadLocked() {
	a.loading--
	if a.loading == 0 {
		a.pending = nil
	}
}

// coveredLocked reports whether the installed load already counted m.
func (a *Aggregator) coveredLocked(m domain.Message) bool {
	last, ok := a.baseline[m.Key().Counterpart(a.self)]
	return ok && !last.Before(m)
}

// replayLocked folds the previews of the inserts buffered since from into the
// installed summaries. It returns the peers whose unread count the lookups may
// or may not include, and the position to resume from.
func (a *Aggregator) replayLocked(from int) ([]uuid.UUID, int) {
	var touched []uuid.UUID
	for _, m := range a.pending[from:] {
		if a.coveredLocked(m) {
			continue
		}
		peer := m.Key().Counterpart(a.self)
		a.previewLocked(a.summaryLocked(peer), m)
		if m.ReceiverID == a.self && !m.Read {
			touched = append(touched, peer)
		}
	}
	return lo.Uniq(touched), len(a.pending)
}

// recount re-reads the unread count of peers that received inserts while it
// was being loaded. Inserts arriving during a recount trigger another round.
func (a *Aggregator) recount(ctx context.Context, peers []uuid.UUID, cursor int) {
	for round := 0; len(peers) > 0; round++ {
		if round == maxRecounts {
			a.log.Debug("Roster unread recount gave up", "peers", len(peers))
			return
		}

		counts := make([]int, len(peers))
		failed := make([]bool, len(peers))
		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for i, peer := range peers {
			g.Go(func() error {
				n, err := a.store.CountUnread(ctx, a.self, peer)
				if err != nil {
					a.log.Warn("Roster unread recount failed", "peer", peer,
						"error", &domain.FetchError{Op: "unread count", Peer: peer, Err: err})
					failed[i] = true
					return nil
				}
				counts[i] = n
				return nil
			})
		}
		_ = g.Wait()

		a.mu.Lock()
		for i, peer := range peers {
			if s, ok := a.peers[peer]; ok && !failed[i] && peer != a.active {
				s.UnreadCount = counts[i]
			}
		}
		peers, cursor = a.replayLocked(cursor)
		a.mu.Unlock()
	}
}

func (a *Aggregator) summarize(ctx context.Context, p domain.Profile) domain.PeerSummary {
	s := domain.PeerSummary{Profile: p}

	last, err := a.store.FetchLastMessage(ctx, a.self, p.ID)
	if err != nil {
		a.log.Warn("Roster last message lookup failed", "peer", p.ID,
			"error", &domain.FetchError{Op: "last message", Peer: p.ID, Err: err})
		s.Degraded = true
		return s
	}
	unread, err := a.store.CountUnread(ctx, a.self, p.ID)
	if err != nil {
		a.log.Warn("Roster unread count failed", "peer", p.ID,
			"error", &domain.FetchError{Op: "unread count", Peer: p.ID, Err: err})
		s.Degraded = true
		return s
	}

	if last != nil {
		at := last.CreatedAt
		s.LastMessage = last
		s.LastMessageAt = &at
	}
	s.UnreadCount = unread
	return s
}

// OnLiveInsert folds a live insert into its peer's summary. Each message is
// counted once, however many times its event is delivered, and never when
// the last load already counted it.
func (a *Aggregator) OnLiveInsert(msg domain.Message) {
	peer := msg.Key().Counterpart(a.self)
	if peer == uuid.Nil || peer == a.self {
		return
	}

	a.mu.Lock()
	if _, dup := a.seen[msg.ID]; dup || a.coveredLocked(msg) {
		a.mu.Unlock()
		return
	}
	a.seen[msg.ID] = msg
	if a.loading > 0 {
		a.pending = append(a.pending, msg)
	}
	s := a.summaryLocked(peer)
	a.previewLocked(s, msg)
	if msg.ReceiverID == a.self && !msg.Read && peer != a.active {
		s.UnreadCount++
	}
	a.mu.Unlock()

	a.publish()
}

func (a *Aggregator) previewLocked(s *domain.PeerSummary, msg domain.Message) {
	if s.LastMessage == nil || s.LastMessage.Before(msg) {
		m := msg
		at := msg.CreatedAt
		s.LastMessage = &m
		s.LastMessageAt = &at
	}
}

// summaryLocked returns peer's summary, adding a placeholder for a peer the
// last load did not list.
func (a *Aggregator) summaryLocked(peer uuid.UUID) *domain.PeerSummary {
	s, ok := a.peers[peer]
	if !ok {
		s = &domain.PeerSummary{Profile: domain.Profile{ID: peer, Status: domain.StatusOffline}}
		a.peers[peer] = s
		a.log.Debug("Roster placeholder for unknown peer", "peer", peer)
	}
	return s
}

// OnLiveRead flags the previews among ids as read.
func (a *Aggregator) OnLiveRead(ids []uuid.UUID) {
	a.mu.Lock()
	changed := false
	for _, s := range a.peers {
		if s.LastMessage != nil && !s.LastMessage.Read && slices.Contains(ids, s.LastMessage.ID) {
			m := *s.LastMessage
			m.Read = true
			s.LastMessage = &m
			changed = true
		}
	}
	a.mu.Unlock()

	if changed {
		a.publish()
	}
}

// OnPresence updates a known peer's status. Going offline advances LastSeen.
func (a *Aggregator) OnPresence(p domain.Presence) {
	a.mu.Lock()
	s, ok := a.peers[p.UserID]
	if !ok {
		a.mu.Unlock()
		return
	}
	s.Profile.Status = p.Status
	if p.Status == domain.StatusOffline && p.At.After(s.Profile.LastSeen) {
		s.Profile.LastSeen = p.At
	}
	a.mu.Unlock()

	a.publish()
}

// Handle is the bus callback; register it with Events.
func (a *Aggregator) Handle(e domain.LiveEvent) {
	switch e.Type {
	case domain.EventMessageNew:
		if e.Message != nil {
			a.OnLiveInsert(*e.Message)
		}
	case domain.EventMessageRead:
		a.OnLiveRead(e.ReadIDs)
	case domain.EventPresence:
		if e.Presence != nil {
			a.OnPresence(*e.Presence)
		}
	}
}

// MarkPeerRead resets peer's unread count. It mirrors the read marking done
// when the conversation is opened.
func (a *Aggregator) MarkPeerRead(peer uuid.UUID) {
	a.mu.Lock()
	s, ok := a.peers[peer]
	if !ok {
		a.mu.Unlock()
		return
	}
	s.UnreadCount = 0
	if s.LastMessage != nil && s.LastMessage.ReceiverID == a.self && !s.LastMessage.Read {
		m := *s.LastMessage
		m.Read = true
		s.LastMessage = &m
	}
	a.mu.Unlock()

	a.publish()
}

// SetActivePeer suppresses unread increments for the peer whose conversation
// is on screen.
func (a *Aggregator) SetActivePeer(peer uuid.UUID) {
	a.mu.Lock()
	a.active = peer
	a.mu.Unlock()
}

func (a *Aggregator) ClearActivePeer() {
	a.SetActivePeer(uuid.Nil)
}

// Summary returns peer's summary.
func (a *Aggregator) Summary(peer uuid.UUID) (domain.PeerSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.peers[peer]
	if !ok {
		return domain.PeerSummary{}, false
	}
	return *s, true
}

// Summaries returns every summary: online peers first, then by most recent
// activity, then by display name.
func (a *Aggregator) Summaries() []domain.PeerSummary {
	a.mu.Lock()
	out := lo.Map(lo.Values(a.peers), func(s *domain.PeerSummary, _ int) domain.PeerSummary {
		return *s
	})
	a.mu.Unlock()

	slices.SortFunc(out, compare)
	return out
}

// Filter returns the sorted summaries whose display name or username contains
// term, ignoring case. An empty term matches everyone.
func (a *Aggregator) Filter(term string) []domain.PeerSummary {
	term = strings.ToLower(strings.TrimSpace(term))
	all := a.Summaries()
	if term == "" {
		return all
	}
	return lo.Filter(all, func(s domain.PeerSummary, _ int) bool {
		return strings.Contains(strings.ToLower(s.Profile.DisplayName), term) ||
			strings.Contains(strings.ToLower(s.Profile.Username), term)
	})
}

// TotalUnread sums the unread counts of every peer.
func (a *Aggregator) TotalUnread() int {
	return lo.SumBy(a.Summaries(), func(s domain.PeerSummary) int { return s.UnreadCount })
}

// Watch calls fn with the sorted summaries after every change until the
// returned cancel is called.
func (a *Aggregator) Watch(fn func([]domain.PeerSummary)) (cancel func()) {
	a.publishMu.Lock()
	id := a.nextWatch
	a.nextWatch++
	a.watchers[id] = fn
	a.publishMu.Unlock()

	return func() {
		a.publishMu.Lock()
		delete(a.watchers, id)
		a.publishMu.Unlock()
	}
}

func (a *Aggregator) publish() {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()
	if len(a.watchers) == 0 {
		return
	}
	list := a.Summaries()
	for _, fn := range a.watchers {
		fn(slices.Clone(list))
	}
}

func compare(x, y domain.PeerSummary) int {
	if x.Profile.Online() != y.Profile.Online() {
		if x.Profile.Online() {
			return -1
		}
		return 1
	}
	if c := y.ActivityAt().Compare(x.ActivityAt()); c != 0 {
		return c
	}
	if c := strings.Compare(x.Profile.DisplayName, y.Profile.DisplayName); c != 0 {
		return c
	}
	return strings.Compare(x.Profile.ID.String(), y.Profile.ID.String())
}

// UnreadBadge formats an unread count for display: empty for zero, capped at 99+.
func UnreadBadge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 99:
		return "99+"
	default:
		return strconv.Itoa(n)
	}
}
