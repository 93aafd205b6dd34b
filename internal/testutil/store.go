package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

// MemoryStore is an in-memory message and profile store. Fail* fields inject
// errors; OnInsert observes confirmed writes, e.g. to echo them on a channel.
type MemoryStore struct {
	mu       sync.Mutex
	clock    *Clock
	messages []domain.Message
	profiles []domain.Profile

	FailFetch    error
	FailProfiles error
	FailInsert   error
	FailMarkRead error
	FailLookup   map[uuid.UUID]error
	OnInsert     func(domain.Message)

	Inserts   int
	MarkReads [][]uuid.UUID
}

func NewMemoryStore(clock *Clock) *MemoryStore {
	return &MemoryStore{clock: clock, FailLookup: make(map[uuid.UUID]error)}
}

// Seed stores messages as they are, bypassing InsertMessage.
func (s *MemoryStore) Seed(msgs ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}

func (s *MemoryStore) AddProfiles(ps ...domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, ps...)
}

func (s *MemoryStore) Message(id uuid.UUID) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

func (s *MemoryStore) FetchConversation(_ context.Context, a, b uuid.UUID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFetch != nil {
		return nil, s.FailFetch
	}
	return s.conversationLocked(a, b), nil
}

func (s *MemoryStore) FetchLastMessage(_ context.Context, a, b uuid.UUID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lookupErrLocked(a, b); err != nil {
		return nil, err
	}
	msgs := s.conversationLocked(a, b)
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, receiver, sender uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lookupErrLocked(receiver, sender); err != nil {
		return 0, err
	}
	n := 0
	for _, m := range s.messages {
		if m.ReceiverID == receiver && m.SenderID == sender && !m.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, sender, receiver uuid.UUID, content, nonce string) (domain.Message, error) {
	s.mu.Lock()
	if s.FailInsert != nil {
		s.mu.Unlock()
		return domain.Message{}, s.FailInsert
	}
	m := domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Nonce:      nonce,
		CreatedAt:  s.clock.Now(),
	}
	s.messages = append(s.messages, m)
	s.Inserts++
	hook := s.OnInsert
	s.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return m, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MarkReads = append(s.MarkReads, slices.Clone(ids))
	if s.FailMarkRead != nil {
		return s.FailMarkRead
	}
	for i := range s.messages {
		if slices.Contains(ids, s.messages[i].ID) {
			s.messages[i].Read = true
		}
	}
	return nil
}

func (s *MemoryStore) ListProfiles(_ context.Context, except uuid.UUID) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailProfiles != nil {
		return nil, s.FailProfiles
	}
	out := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.ID != except {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkReadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.MarkReads)
}

func (s *MemoryStore) conversationLocked(a, b uuid.UUID) []domain.Message {
	key := domain.NewConversationKey(a, b)
	var out []domain.Message
	for _, m := range s.messages {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(x, y domain.Message) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	return out
}

func (s *MemoryStore) lookupErrLocked(a, b uuid.UUID) error {
	if err, ok := s.FailLookup[a]; ok {
		return err
	}
	if err, ok := s.FailLookup[b]; ok {
		return err
	}
	return nil
}
