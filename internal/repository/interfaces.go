package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ListProfiles(ctx context.Context, except uuid.UUID) ([]domain.Profile, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) error
}

type MessageRepository interface {
	// Create stores msg unless the sender already stored one under the same
	// nonce; either way it returns the stored record.
	Create(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	ListConversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error)
	Last(ctx context.Context, a, b uuid.UUID) (*domain.Message, error)
	CountUnread(ctx context.Context, receiver, sender uuid.UUID) (int, error)
	// MarkRead flips the unread messages among ids received by receiver and
	// returns the ones it changed.
	MarkRead(ctx context.Context, receiver uuid.UUID, ids []uuid.UUID) ([]domain.Message, error)
}
