package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/repository"
)

const maxContentLength = 4000

var (
	ErrEmptyMessage      = errors.New("message content is empty")
	ErrMessageTooLong    = errors.New("message content is too long")
	ErrCannotMessageSelf = errors.New("cannot send a message to yourself")
	ErrUserNotFound      = errors.New("user not found")
)

// Notifier broadcasts real-time events to connected clients.
type Notifier interface {
	NotifyNewMessage(msg *domain.Message)
	// NotifyRead tells sender that the receiver read ids.
	NotifyRead(sender uuid.UUID, ids []uuid.UUID)
}

type MessageService struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	notifier    Notifier
	now         func() time.Time
}

func NewMessageService(messageRepo repository.MessageRepository, userRepo repository.UserRepository) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		now:         time.Now,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendMessageInput struct {
	Content string `json:"content"`
	Nonce   string `json:"nonce,omitempty"`
}

// Send stores a message from senderID to receiverID and notifies both. A
// retry carrying an already stored nonce returns the stored message.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrEmptyMessage
	}
	if len(input.Content) > maxContentLength {
		return nil, ErrMessageTooLong
	}
	if senderID == receiverID {
		return nil, ErrCannotMessageSelf
	}
	if err := s.checkUser(ctx, receiverID); err != nil {
		return nil, err
	}

	msg, err := s.messageRepo.Create(ctx, &domain.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    input.Content,
		Nonce:      input.Nonce,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(msg)
	}
	return msg, nil
}

// Conversation returns every message between userID and peerID, oldest first.
func (s *MessageService) Conversation(ctx context.Context, userID, peerID uuid.UUID) ([]domain.Message, error) {
	messages, err := s.messageRepo.ListConversation(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

func (s *MessageService) Last(ctx context.Context, userID, peerID uuid.UUID) (*domain.Message, error) {
	return s.messageRepo.Last(ctx, userID, peerID)
}

// CountUnread counts the messages from peerID that userID has not read.
func (s *MessageService) CountUnread(ctx context.Context, userID, peerID uuid.UUID) (int, error) {
	return s.messageRepo.CountUnread(ctx, userID, peerID)
}

// MarkRead marks ids read for userID. Only messages userID received are
// changed; their senders are notified.
func (s *MessageService) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}

	changed, err := s.messageRepo.MarkRead(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("marking read: %w", err)
	}

	if s.notifier != nil {
		bySender := lo.GroupBy(changed, func(m domain.Message) uuid.UUID { return m.SenderID })
		for sender, msgs := range bySender {
			s.notifier.NotifyRead(sender, lo.Map(msgs, func(m domain.Message, _ int) uuid.UUID { return m.ID }))
		}
	}

	return lo.Map(changed, func(m domain.Message, _ int) uuid.UUID { return m.ID }), nil
}

func (s *MessageService) checkUser(ctx context.Context, id uuid.UUID) error {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	return nil
}
