package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"

	"github.com/eaaaarl/iChat-Web/internal/config"
	"github.com/eaaaarl/iChat-Web/internal/database"
	"github.com/eaaaarl/iChat-Web/internal/repository"
	"github.com/eaaaarl/iChat-Web/internal/repository/memory"
	postgresrepo "github.com/eaaaarl/iChat-Web/internal/repository/postgres"
	"github.com/eaaaarl/iChat-Web/internal/service"
	"github.com/eaaaarl/iChat-Web/internal/transport/http/handlers"
	"github.com/eaaaarl/iChat-Web/internal/transport/ws"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2

	shutdownTimeout = 10 * time.Second
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories
	var (
		userRepo    repository.UserRepository
		messageRepo repository.MessageRepository
	)
	switch cfg.Store {
	case "memory":
		logger.Warn("Using in-memory store, data is lost on restart")
		userRepo = memory.NewUserRepo()
		messageRepo = memory.NewMessageRepo()
	case "postgres":
		if err := database.Migrate(cfg.DSN()); err != nil {
			return exitRuntime, err
		}
		pool, err := database.Connect(ctx, cfg.DSN())
		if err != nil {
			return exitRuntime, err
		}
		defer pool.Close()
		logger.Info("Connected to database", "host", cfg.DBHost, "name", cfg.DBName)
		userRepo = postgresrepo.NewUserRepo(pool)
		messageRepo = postgresrepo.NewMessageRepo(pool)
	default:
		return exitConfig, fmt.Errorf("config error: unknown store %q", cfg.Store)
	}

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	profileService := service.NewProfileService(userRepo)
	messageService := service.NewMessageService(messageRepo, userRepo)

	// WebSocket hub
	hub := ws.NewHub(profileService)
	go hub.Run(ctx)
	messageService.SetNotifier(ws.NewHubNotifier(hub))

	srv := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handlers.NewRouter(handlers.RouterConfig{
			AuthService:    authService,
			ProfileService: profileService,
			MessageService: messageService,
			Hub:            hub,
			JWTSecret:      cfg.JWTSecret,
			AllowedOrigin:  cfg.AllowedOrigin,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return exitRuntime, fmt.Errorf("shutdown: %w", err)
		}
	}
	return exitOK, nil
}
