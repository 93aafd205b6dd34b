package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/repository/memory"
	"github.com/eaaaarl/iChat-Web/internal/service"
)

type messageFixture struct {
	users    *memory.UserRepo
	messages *memory.MessageRepo
	notifier *recordingNotifier
	svc      *service.MessageService
	alice    uuid.UUID
	bob      uuid.UUID
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	f := &messageFixture{
		users:    memory.NewUserRepo(),
		messages: memory.NewMessageRepo(),
		notifier: newRecordingNotifier(),
		alice:    uuid.New(),
		bob:      uuid.New(),
	}
	for name, id := range map[string]uuid.UUID{"alice": f.alice, "bob": f.bob} {
		user := &domain.User{Profile: domain.Profile{ID: id, Username: name}, Email: name + "@example.com"}
		require.NoError(t, f.users.Create(context.Background(), user))
	}
	f.svc = service.NewMessageService(f.messages, f.users)
	f.svc.SetNotifier(f.notifier)
	return f
}

func TestMessageService_SendStoresAndNotifies(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	msg, err := f.svc.Send(context.Background(), f.alice, f.bob, service.SendMessageInput{Content: "hi", Nonce: "n1"})
	req.NoError(err)

	req.Equal(f.alice, msg.SenderID)
	req.Equal(f.bob, msg.ReceiverID)
	req.Equal("n1", msg.Nonce)
	req.False(msg.Read)
	req.Len(f.notifier.created, 1)
	req.Equal(msg.ID, f.notifier.created[0].ID)
}

func TestMessageService_SendIsIdempotentPerNonce(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)
	in := service.SendMessageInput{Content: "once", Nonce: "same"}

	first, err := f.svc.Send(context.Background(), f.alice, f.bob, in)
	req.NoError(err)
	second, err := f.svc.Send(context.Background(), f.alice, f.bob, in)
	req.NoError(err)

	req.Equal(first.ID, second.ID)
	conv, err := f.svc.Conversation(context.Background(), f.bob, f.alice)
	req.NoError(err)
	req.Len(conv, 1)
}

func TestMessageService_SendRejections(t *testing.T) {
	f := newMessageFixture(t)
	cases := []struct {
		name     string
		receiver uuid.UUID
		content  string
		want     error
	}{
		{"blank", f.bob, "  \t ", service.ErrEmptyMessage},
		{"self", f.alice, "hello me", service.ErrCannotMessageSelf},
		{"unknown receiver", uuid.New(), "hello?", service.ErrUserNotFound},
		{"too long", f.bob, string(make([]byte, 4001)), service.ErrMessageTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Send(context.Background(), f.alice, tc.receiver, service.SendMessageInput{Content: tc.content})
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Empty(t, f.notifier.created)
}

func TestMessageService_MarkReadOnlyTouchesReceivedMessages(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)
	toBob, err := f.svc.Send(context.Background(), f.alice, f.bob, service.SendMessageInput{Content: "for bob"})
	req.NoError(err)
	toAlice, err := f.svc.Send(context.Background(), f.bob, f.alice, service.SendMessageInput{Content: "for alice"})
	req.NoError(err)

	changed, err := f.svc.MarkRead(context.Background(), f.bob, []uuid.UUID{toBob.ID, toAlice.ID, toBob.ID})
	req.NoError(err)

	req.Equal([]uuid.UUID{toBob.ID}, changed)
	req.Equal([]uuid.UUID{toBob.ID}, f.notifier.read[f.alice])
	unread, err := f.svc.CountUnread(context.Background(), f.alice, f.bob)
	req.NoError(err)
	req.Equal(1, unread)

	// Marking again changes nothing
	changed, err = f.svc.MarkRead(context.Background(), f.bob, []uuid.UUID{toBob.ID})
	req.NoError(err)
	req.Empty(changed)
}

func TestMessageService_LastAndEmptyConversation(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t)

	conv, err := f.svc.Conversation(context.Background(), f.alice, f.bob)
	req.NoError(err)
	req.NotNil(conv)
	req.Empty(conv)
	last, err := f.svc.Last(context.Background(), f.alice, f.bob)
	req.NoError(err)
	req.Nil(last)

	sent, err := f.svc.Send(context.Background(), f.bob, f.alice, service.SendMessageInput{Content: "latest"})
	req.NoError(err)
	last, err = f.svc.Last(context.Background(), f.alice, f.bob)
	req.NoError(err)
	req.Equal(sent.ID, last.ID)
}
