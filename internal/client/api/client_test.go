package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eaaaarl/iChat-Web/internal/client/api"
	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/session"
	"github.com/eaaaarl/iChat-Web/internal/testutil"
)

var (
	_ session.IdentityProvider = (*api.Client)(nil)
	_ session.MessageStore     = (*api.Client)(nil)
	_ session.ProfileStore     = (*api.Client)(nil)
)

func signUp(t *testing.T, srv *testutil.Server, username string) (*api.Client, uuid.UUID) {
	t.Helper()
	c := api.New(srv.URL, 5*time.Second)
	u, err := c.Register(context.Background(), api.RegisterInput{
		Email:       username + "@example.com",
		Username:    username,
		DisplayName: "User " + username,
		Password:    "Sup3rSecret",
	})
	require.NoError(t, err)
	return c, u.ID
}

func TestClient_SignInAndOut(t *testing.T) {
	req := require.New(t)
	srv := testutil.NewServer(t)
	_, anaID := signUp(t, srv, "ana")

	c := api.New(srv.URL, 5*time.Second)
	_, ok := c.CurrentUserID()
	req.False(ok)

	u, err := c.Login(context.Background(), "ana@example.com", "Sup3rSecret")
	req.NoError(err)
	req.Equal(anaID, u.ID)
	id, ok := c.CurrentUserID()
	req.True(ok)
	req.Equal(anaID, id)
	req.NotEmpty(c.Token())
	liveURL, err := c.LiveURL()
	req.NoError(err)
	req.Contains(liveURL, "ws://")
	req.Contains(liveURL, "/ws?token=")

	signedOut := 0
	c.OnSignedOut(func() { signedOut++ })
	req.NoError(c.Logout(context.Background()))

	req.Equal(1, signedOut)
	_, ok = c.CurrentUserID()
	req.False(ok)
	req.Empty(c.Token())
	req.ErrorIs(c.Logout(context.Background()), domain.ErrNotSignedIn)
}

func TestClient_LoginFailureIsAnAPIError(t *testing.T) {
	srv := testutil.NewServer(t)
	signUp(t, srv, "ana")
	c := api.New(srv.URL, 5*time.Second)

	_, err := c.Login(context.Background(), "ana@example.com", "Wr0ngPassword")

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
	require.True(t, api.IsStatus(err, http.StatusUnauthorized))
}

func TestClient_MessageStore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	srv := testutil.NewServer(t)
	ana, anaID := signUp(t, srv, "ana")
	ben, benID := signUp(t, srv, "ben")

	last, err := ana.FetchLastMessage(ctx, anaID, benID)
	req.NoError(err)
	req.Nil(last)

	sent, err := ana.InsertMessage(ctx, anaID, benID, "hi ben", "n1")
	req.NoError(err)
	req.Equal("n1", sent.Nonce)
	again, err := ana.InsertMessage(ctx, anaID, benID, "hi ben", "n1")
	req.NoError(err)
	req.Equal(sent.ID, again.ID)

	// Either argument order names the same conversation
	conv, err := ben.FetchConversation(ctx, anaID, benID)
	req.NoError(err)
	req.Len(conv, 1)
	n, err := ben.CountUnread(ctx, benID, anaID)
	req.NoError(err)
	req.Equal(1, n)

	req.NoError(ben.MarkRead(ctx, []uuid.UUID{sent.ID}))
	n, err = ben.CountUnread(ctx, benID, anaID)
	req.NoError(err)
	req.Zero(n)
	last, err = ana.FetchLastMessage(ctx, benID, anaID)
	req.NoError(err)
	req.True(last.Read)
}

func TestClient_RejectsForeignPairs(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	srv := testutil.NewServer(t)
	ana, anaID := signUp(t, srv, "ana")
	other := uuid.New()

	_, err := ana.FetchConversation(ctx, other, uuid.New())
	req.ErrorIs(err, domain.ErrNotParticipant)
	_, err = ana.CountUnread(ctx, other, anaID)
	req.ErrorIs(err, domain.ErrNotParticipant)
	_, err = ana.InsertMessage(ctx, other, anaID, "spoofed", "")
	req.ErrorIs(err, domain.ErrNotParticipant)

	signedOut := api.New(srv.URL, time.Second)
	_, err = signedOut.FetchLastMessage(ctx, anaID, other)
	req.ErrorIs(err, domain.ErrNotSignedIn)
}

func TestClient_ListProfiles(t *testing.T) {
	req := require.New(t)
	srv := testutil.NewServer(t)
	ana, anaID := signUp(t, srv, "ana")
	_, benID := signUp(t, srv, "ben")
	_, cydID := signUp(t, srv, "cyd")

	profiles, err := ana.ListProfiles(context.Background(), anaID)
	req.NoError(err)
	req.ElementsMatch([]uuid.UUID{benID, cydID}, []uuid.UUID{profiles[0].ID, profiles[1].ID})

	profiles, err = ana.ListProfiles(context.Background(), benID)
	req.NoError(err)
	req.Len(profiles, 1)
	req.Equal(cydID, profiles[0].ID)
}

func TestClient_SendValidationError(t *testing.T) {
	srv := testutil.NewServer(t)
	ana, anaID := signUp(t, srv, "ana")
	_, benID := signUp(t, srv, "ben")

	_, err := ana.InsertMessage(context.Background(), anaID, benID, "   ", "n")

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Contains(t, apiErr.Fields, "content")
}
