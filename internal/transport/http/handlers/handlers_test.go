package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/repository/memory"
	"github.com/eaaaarl/iChat-Web/internal/service"
	"github.com/eaaaarl/iChat-Web/internal/transport/http/handlers"
)

type api struct {
	t      *testing.T
	router http.Handler
	users  *memory.UserRepo
}

func newAPI(t *testing.T) *api {
	users := memory.NewUserRepo()
	messages := memory.NewMessageRepo()
	return &api{
		t:     t,
		users: users,
		router: handlers.NewRouter(handlers.RouterConfig{
			AuthService:    service.NewAuthService(users, "secret", time.Hour),
			ProfileService: service.NewProfileService(users),
			MessageService: service.NewMessageService(messages, users),
			JWTSecret:      "secret",
			AllowedOrigin:  "http://localhost:3000",
		}),
	}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

func (a *api) register(username string) service.AuthResponse {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":        username + "@example.com",
		"username":     username,
		"display_name": "User " + username,
		"password":     "Sup3rSecret",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	var resp service.AuthResponse
	decode(a.t, w, &resp)
	return resp
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestAuthFlow(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)
	reg := a.register("ana")

	w := a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ana@example.com", "password": "Sup3rSecret"})
	req.Equal(http.StatusOK, w.Code)
	var login service.AuthResponse
	decode(t, w, &login)
	req.Equal(reg.User.ID, login.User.ID)

	w = a.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ana@example.com", "password": "Wr0ngPassword"})
	req.Equal(http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": "x", "username": "a", "password": "short"})
	req.Equal(http.StatusBadRequest, w.Code)
	req.Contains(w.Body.String(), "VALIDATION_ERROR")

	w = a.do(http.MethodPost, "/api/v1/auth/logout", login.AccessToken, nil)
	req.Equal(http.StatusNoContent, w.Code)
	u, err := a.users.GetByID(t.Context(), reg.User.ID)
	req.NoError(err)
	req.Equal(domain.StatusOffline, u.Status)
}

func TestRegisterConflict(t *testing.T) {
	a := newAPI(t)
	a.register("ana")

	w := a.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":        "ana@example.com",
		"username":     "ana2",
		"display_name": "Ana",
		"password":     "Sup3rSecret",
	})

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "EMAIL_TAKEN")
}

func TestProfilesExcludeCaller(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)
	ana := a.register("ana")
	a.register("ben")

	w := a.do(http.MethodGet, "/api/v1/profiles", ana.AccessToken, nil)
	req.Equal(http.StatusOK, w.Code)
	var profiles []domain.Profile
	decode(t, w, &profiles)

	req.Len(profiles, 1)
	req.Equal("ben", profiles[0].Username)
}

func TestConversationRoundTrip(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)
	ana := a.register("ana")
	ben := a.register("ben")
	toBen := "/api/v1/conversations/" + ben.User.ID.String()
	toAna := "/api/v1/conversations/" + ana.User.ID.String()

	w := a.do(http.MethodGet, toBen+"/last", ana.AccessToken, nil)
	req.Equal(http.StatusOK, w.Code)
	req.Equal("null", string(bytes.TrimSpace(w.Body.Bytes())))

	w = a.do(http.MethodPost, toBen+"/messages", ana.AccessToken, map[string]string{"content": "hi ben", "nonce": "n1"})
	req.Equal(http.StatusCreated, w.Code, w.Body.String())
	var sent domain.Message
	decode(t, w, &sent)
	req.Equal("n1", sent.Nonce)

	// Resending the same nonce returns the stored message
	w = a.do(http.MethodPost, toBen+"/messages", ana.AccessToken, map[string]string{"content": "hi ben", "nonce": "n1"})
	req.Equal(http.StatusCreated, w.Code)
	var again domain.Message
	decode(t, w, &again)
	req.Equal(sent.ID, again.ID)

	w = a.do(http.MethodGet, toAna+"/messages", ben.AccessToken, nil)
	req.Equal(http.StatusOK, w.Code)
	var conv []domain.Message
	decode(t, w, &conv)
	req.Len(conv, 1)

	w = a.do(http.MethodGet, toAna+"/unread", ben.AccessToken, nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"count":1}`, w.Body.String())

	// Ana cannot mark her own outbound message read
	w = a.do(http.MethodPost, "/api/v1/messages/read", ana.AccessToken, map[string][]uuid.UUID{"ids": {sent.ID}})
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"ids":[]}`, w.Body.String())

	w = a.do(http.MethodPost, "/api/v1/messages/read", ben.AccessToken, map[string][]uuid.UUID{"ids": {sent.ID}})
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"ids":["`+sent.ID.String()+`"]}`, w.Body.String())

	w = a.do(http.MethodGet, toAna+"/unread", ben.AccessToken, nil)
	req.JSONEq(`{"count":0}`, w.Body.String())

	w = a.do(http.MethodGet, toAna+"/last", ben.AccessToken, nil)
	var last domain.Message
	decode(t, w, &last)
	req.Equal(sent.ID, last.ID)
	req.True(last.Read)
}

func TestSendRejections(t *testing.T) {
	a := newAPI(t)
	ana := a.register("ana")
	ben := a.register("ben")

	cases := []struct {
		name string
		peer string
		body map[string]string
		code int
		want string
	}{
		{"blank content", ben.User.ID.String(), map[string]string{"content": "   "}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad peer id", "not-a-uuid", map[string]string{"content": "hi"}, http.StatusBadRequest, "INVALID_ID"},
		{"self", ana.User.ID.String(), map[string]string{"content": "hi"}, http.StatusBadRequest, "SELF_MESSAGE"},
		{"unknown peer", uuid.NewString(), map[string]string{"content": "hi"}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(http.MethodPost, "/api/v1/conversations/"+tc.peer+"/messages", ana.AccessToken, tc.body)
			require.Equal(t, tc.code, w.Code, w.Body.String())
			require.Contains(t, w.Body.String(), tc.want)
		})
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	a := newAPI(t)

	for _, path := range []string{"/api/v1/profiles", "/api/v1/conversations/" + uuid.NewString() + "/messages"} {
		w := a.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}
