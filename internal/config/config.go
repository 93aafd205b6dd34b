package config

import (
	"fmt"
	"log"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Server struct {
	ServerPort string `env:"SERVER_PORT,default=8080"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	// Store is "postgres" or "memory". The memory store is lost on restart.
	Store      string `env:"STORE,default=postgres"`
	DBHost     string `env:"DB_HOST,default=localhost"`
	DBPort     string `env:"DB_PORT,default=5432"`
	DBUser     string `env:"DB_USER,default=ichat"`
	DBPassword string `env:"DB_PASSWORD,default=ichat_dev_password"`
	DBName     string `env:"DB_NAME,default=ichat"`

	JWTSecret string        `env:"JWT_SECRET,default=dev-secret-change-me"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=168h"`

	// AllowedOrigin is echoed in CORS responses.
	AllowedOrigin string `env:"ALLOWED_ORIGIN,default=http://localhost:3000"`
}

// DSN is the Postgres connection string for pgx.
func (c *Server) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

type Client struct {
	ServerURL         string        `env:"ICHAT_SERVER_URL,default=http://localhost:8080"`
	LogLevel          string        `env:"LOG_LEVEL,default=WARN"`
	RequestTimeout    time.Duration `env:"ICHAT_REQUEST_TIMEOUT,default=10s"`
	RosterConcurrency int           `env:"ICHAT_ROSTER_CONCURRENCY,default=8"`
	ReadRetries       int           `env:"ICHAT_READ_RETRIES,default=3"`
	ReadRetryBackoff  time.Duration `env:"ICHAT_READ_RETRY_BACKOFF,default=500ms"`
	ReconnectBackoff  time.Duration `env:"ICHAT_RECONNECT_BACKOFF,default=1s"`
	MaxBackoff        time.Duration `env:"ICHAT_MAX_BACKOFF,default=30s"`
	DialAttempts      int           `env:"ICHAT_DIAL_ATTEMPTS,default=3"`
}

// LoadServer reads the server configuration from the environment, after
// loading a .env file when one exists.
func LoadServer() (*Server, error) {
	loadDotEnv()
	var cfg Server
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return &cfg, nil
}

func LoadClient() (*Client, error) {
	loadDotEnv()
	var cfg Client
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return &cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}
