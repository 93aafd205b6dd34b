// Package memory implements the repositories in process memory. The server
// uses it when no database is configured, and tests use it in place of
// Postgres.
package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

var ErrDuplicate = errors.New("duplicate key")

type UserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[uuid.UUID]domain.User)}
}

func (r *UserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == user.ID || u.Email == user.Email || u.Username == user.Username {
			return ErrDuplicate
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id }), nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email }), nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Username == username }), nil
}

func (r *UserRepo) ListProfiles(_ context.Context, except uuid.UUID) ([]domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Profile
	for id, u := range r.users {
		if id != except {
			out = append(out, u.Profile)
		}
	}
	slices.SortFunc(out, func(a, b domain.Profile) int {
		if c := strings.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (r *UserRepo) SetStatus(_ context.Context, id uuid.UUID, status string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	u.Status = status
	u.LastSeen = at
	u.UpdatedAt = at
	r.users[id] = u
	return nil
}

func (r *UserRepo) find(match func(domain.User) bool) *domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			return &u
		}
	}
	return nil
}

type MessageRepo struct {
	mu       sync.RWMutex
	messages []domain.Message
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{}
}

func (r *MessageRepo) Create(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if msg.Nonce != "" && m.SenderID == msg.SenderID && m.Nonce == msg.Nonce {
			return &m, nil
		}
	}
	stored := *msg
	r.messages = append(r.messages, stored)
	return &stored, nil
}

func (r *MessageRepo) ListConversation(_ context.Context, a, b uuid.UUID) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := domain.NewConversationKey(a, b)
	var out []domain.Message
	for _, m := range r.messages {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(x, y domain.Message) int {
		switch {
		case x.Before(y):
			return -1
		case y.Before(x):
			return 1
		}
		return 0
	})
	return out, nil
}

func (r *MessageRepo) Last(ctx context.Context, a, b uuid.UUID) (*domain.Message, error) {
	msgs, err := r.ListConversation(ctx, a, b)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[len(msgs)-1], nil
}

func (r *MessageRepo) CountUnread(_ context.Context, receiver, sender uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.messages {
		if m.ReceiverID == receiver && m.SenderID == sender && !m.Read {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) MarkRead(_ context.Context, receiver uuid.UUID, ids []uuid.UUID) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed []domain.Message
	for i := range r.messages {
		m := &r.messages[i]
		if m.ReceiverID == receiver && !m.Read && slices.Contains(ids, m.ID) {
			m.Read = true
			changed = append(changed, *m)
		}
	}
	return changed, nil
}
