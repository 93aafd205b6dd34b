package handlers

import (
	"net/http"
	"net/url"

	"github.com/eaaaarl/iChat-Web/internal/service"
	"github.com/eaaaarl/iChat-Web/internal/transport/http/middleware"
	"github.com/eaaaarl/iChat-Web/internal/transport/ws"
)

type RouterConfig struct {
	AuthService    *service.AuthService
	ProfileService *service.ProfileService
	MessageService *service.MessageService
	Hub            *ws.Hub
	JWTSecret      string
	AllowedOrigin  string
}

// NewRouter registers every route of the API and wraps it with CORS.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.AuthService)
	profileHandler := NewProfileHandler(cfg.ProfileService)
	messageHandler := NewMessageHandler(cfg.MessageService)

	// Auth middleware
	auth := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.Handle("POST /api/v1/auth/logout", auth(http.HandlerFunc(authHandler.Logout)))

	// Protected - Profiles
	mux.Handle("GET /api/v1/profiles", auth(http.HandlerFunc(profileHandler.List)))

	// Protected - Conversations
	mux.Handle("GET /api/v1/conversations/{peer}/messages", auth(http.HandlerFunc(messageHandler.List)))
	mux.Handle("POST /api/v1/conversations/{peer}/messages", auth(http.HandlerFunc(messageHandler.Send)))
	mux.Handle("GET /api/v1/conversations/{peer}/last", auth(http.HandlerFunc(messageHandler.Last)))
	mux.Handle("GET /api/v1/conversations/{peer}/unread", auth(http.HandlerFunc(messageHandler.Unread)))
	mux.Handle("POST /api/v1/messages/read", auth(http.HandlerFunc(messageHandler.MarkRead)))

	// WebSocket
	if cfg.Hub != nil {
		mux.HandleFunc("GET /ws", ws.ServeWS(cfg.Hub, cfg.JWTSecret, originPattern(cfg.AllowedOrigin)...))
	}

	return middleware.CORS(cfg.AllowedOrigin)(mux)
}

// originPattern turns an origin URL into the host pattern websocket.Accept
// matches against.
func originPattern(origin string) []string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
