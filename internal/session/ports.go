//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -source=ports.go -destination=../mocks/mock_ports.go -package=mocks
package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

// IdentityProvider knows who is signed in.
type IdentityProvider interface {
	CurrentUserID() (uuid.UUID, bool)
	OnSignedOut(fn func())
}

// MessageStore is the persistent, append-only message table.
type MessageStore interface {
	FetchConversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error)
	FetchLastMessage(ctx context.Context, a, b uuid.UUID) (*domain.Message, error)
	CountUnread(ctx context.Context, receiver, sender uuid.UUID) (int, error)
	InsertMessage(ctx context.Context, sender, receiver uuid.UUID, content, nonce string) (domain.Message, error)
	MarkRead(ctx context.Context, ids []uuid.UUID) error
}

type ProfileStore interface {
	ListProfiles(ctx context.Context, except uuid.UUID) ([]domain.Profile, error)
}
