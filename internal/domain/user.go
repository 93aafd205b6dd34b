package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Profile is the public part of a user, as listed in the roster.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Status      string    `json:"status"`
	LastSeen    time.Time `json:"last_seen"`
}

func (p Profile) Online() bool {
	return p.Status == StatusOnline
}

// User is a registered account. Only the server sees the credentials.
type User struct {
	Profile
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
