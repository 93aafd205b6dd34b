package outbound_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/eaaaarl/iChat-Web/internal/conversation"
	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/eventbus"
	"github.com/eaaaarl/iChat-Web/internal/mocks"
	"github.com/eaaaarl/iChat-Web/internal/outbound"
	"github.com/eaaaarl/iChat-Web/internal/testutil"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	self, peer uuid.UUID
	clock      *testutil.Clock
	store      *testutil.MemoryStore
	ch         *testutil.FakeChannel
	conv       *conversation.Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	clock := testutil.NewClock(base)
	f := &fixture{
		self:  uuid.New(),
		peer:  uuid.New(),
		clock: clock,
		store: testutil.NewMemoryStore(clock),
		ch:    testutil.NewFakeChannel(),
	}
	bus := eventbus.New(f.ch, log)
	require.NoError(t, bus.Start(context.Background()))
	f.conv = conversation.New(context.Background(), f.self, f.store, bus, log, conversation.Options{})
	require.NoError(t, f.conv.Open(context.Background(), f.peer))
	return f
}

func (f *fixture) pipeline(w outbound.Writer) *outbound.Pipeline {
	return outbound.New(f.self, w, f.conv, logs.GetLoggerFromLevel(slog.LevelDebug)).WithClock(f.clock.Now)
}

// Scenario A: the provisional entry is shown at once and reconciled in place.
func TestPipeline_SendShowsPendingThenConfirmed(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	var during conversation.View
	f.store.OnInsert = func(domain.Message) { during = f.conv.View() }

	stored, err := f.pipeline(f.store).Send(context.Background(), f.peer, "hi")
	req.NoError(err)

	req.Len(during.Entries, 1)
	req.Equal("hi", during.Entries[0].Content)
	req.False(during.Entries[0].Read)
	req.Equal(conversation.StatePending, during.Entries[0].State)

	view := f.conv.View()
	req.Len(view.Entries, 1)
	req.Equal(stored.ID, view.Entries[0].ID)
	req.Equal(conversation.StateConfirmed, view.Entries[0].State)
}

func TestPipeline_EchoBeforeConfirmationKeepsOneEntry(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.store.OnInsert = f.ch.EmitInsert

	stored, err := f.pipeline(f.store).Send(context.Background(), f.peer, "hi")
	req.NoError(err)
	f.ch.EmitInsert(stored)

	view := f.conv.View()
	req.Len(view.Entries, 1)
	req.Equal(stored.ID, view.Entries[0].ID)
	req.Equal(conversation.StateConfirmed, view.Entries[0].State)
}

func TestPipeline_EchoAfterConfirmationKeepsOneEntry(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(f.store)

	first, err := p.Send(context.Background(), f.peer, "one")
	req.NoError(err)
	second, err := p.Send(context.Background(), f.peer, "two")
	req.NoError(err)
	f.ch.EmitInsert(second)
	f.ch.EmitInsert(first)

	view := f.conv.View()
	req.Len(view.Entries, 2)
	req.Equal(first.ID, view.Entries[0].ID)
	req.Equal(second.ID, view.Entries[1].ID)
}

// Scenario D: whitespace never reaches the store or the view.
func TestPipeline_BlankInputIsRejected(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockMessageStore(ctrl)

	_, err := f.pipeline(writer).Send(context.Background(), f.peer, "   \n\t")

	req.ErrorIs(err, domain.ErrEmptyContent)
	req.Zero(f.conv.View().Len())
}

func TestPipeline_SendToAnotherPeerIsRejected(t *testing.T) {
	f := newFixture(t)
	ctrl := gomock.NewController(t)

	_, err := f.pipeline(mocks.NewMockMessageStore(ctrl)).Send(context.Background(), uuid.New(), "hello")

	require.ErrorIs(t, err, domain.ErrNotOpen)
}

func TestPipeline_FailedSendStaysFlagged(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.store.FailInsert = errors.New("connection reset")
	p := f.pipeline(f.store)

	_, err := p.Send(context.Background(), f.peer, "are you there")

	var writeErr *domain.WriteError
	req.ErrorAs(err, &writeErr)
	view := f.conv.View()
	req.Len(view.Entries, 1)
	req.Equal(conversation.StateFailed, view.Entries[0].State)
	req.Equal("are you there", view.Entries[0].Content)

	nonce := view.Entries[0].Nonce
	state, ok := p.State(nonce)
	req.True(ok)
	req.Equal(conversation.StateFailed, state)
	req.Equal([]string{nonce}, p.Failed())
}

func TestPipeline_RetryResendsUnderTheSameNonce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.store.FailInsert = errors.New("connection reset")
	p := f.pipeline(f.store)
	_, err := p.Send(context.Background(), f.peer, "again")
	req.Error(err)
	nonce := f.conv.View().Entries[0].Nonce

	f.store.FailInsert = nil
	stored, err := p.Retry(context.Background(), nonce)
	req.NoError(err)

	req.Equal(nonce, stored.Nonce)
	view := f.conv.View()
	req.Len(view.Entries, 1)
	req.Equal(stored.ID, view.Entries[0].ID)
	req.Equal(conversation.StateConfirmed, view.Entries[0].State)
	_, tracked := p.State(nonce)
	req.False(tracked)
	req.Empty(p.Failed())
}

func TestPipeline_RetryAfterLostResponseDoesNotResend(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockMessageStore(ctrl)

	// The write lands and is echoed, but its response is lost
	var stored domain.Message
	writer.EXPECT().
		InsertMessage(gomock.Any(), f.self, f.peer, "lost", gomock.Any()).
		DoAndReturn(func(_ context.Context, sender, receiver uuid.UUID, content, nonce string) (domain.Message, error) {
			stored = domain.Message{
				ID:         uuid.New(),
				SenderID:   sender,
				ReceiverID: receiver,
				Content:    content,
				Nonce:      nonce,
				CreatedAt:  base,
			}
			f.ch.EmitInsert(stored)
			return domain.Message{}, errors.New("read timeout")
		}).
		Times(1)
	p := f.pipeline(writer)

	_, err := p.Send(context.Background(), f.peer, "lost")
	req.Error(err)
	got, err := p.Retry(context.Background(), stored.Nonce)

	req.NoError(err)
	req.Equal(stored.ID, got.ID)
	req.Len(f.conv.View().Entries, 1)
}

func TestPipeline_RetryUnknownNonce(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline(f.store).Retry(context.Background(), "nope")

	require.ErrorIs(t, err, domain.ErrUnknownSend)
}

func TestPipeline_RetryAfterSwitchingConversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.store.FailInsert = errors.New("connection reset")
	p := f.pipeline(f.store)
	_, err := p.Send(context.Background(), f.peer, "later")
	req.Error(err)
	nonce := p.Failed()[0]

	req.NoError(f.conv.Open(context.Background(), uuid.New()))
	_, err = p.Retry(context.Background(), nonce)

	req.ErrorIs(err, domain.ErrNotOpen)
	state, _ := p.State(nonce)
	req.Equal(conversation.StateFailed, state)
}
