package testutil

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eaaaarl/iChat-Web/internal/repository/memory"
	"github.com/eaaaarl/iChat-Web/internal/service"
	"github.com/eaaaarl/iChat-Web/internal/transport/http/handlers"
	"github.com/eaaaarl/iChat-Web/internal/transport/ws"
)

const ServerSecret = "test-secret"

// Server is the full server stack over memory repositories.
type Server struct {
	*httptest.Server
	Users    *memory.UserRepo
	Messages *memory.MessageRepo
	Hub      *ws.Hub
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	users := memory.NewUserRepo()
	messages := memory.NewMessageRepo()

	profileService := service.NewProfileService(users)
	messageService := service.NewMessageService(messages, users)
	hub := ws.NewHub(profileService)
	go hub.Run(ctx)
	messageService.SetNotifier(ws.NewHubNotifier(hub))

	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterConfig{
		AuthService:    service.NewAuthService(users, ServerSecret, time.Hour),
		ProfileService: profileService,
		MessageService: messageService,
		Hub:            hub,
		JWTSecret:      ServerSecret,
		AllowedOrigin:  "http://localhost:3000",
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &Server{Server: srv, Users: users, Messages: messages, Hub: hub}
}
