package domain

import "time"

// PeerSummary is the roster line for one peer. It is derived, never stored.
type PeerSummary struct {
	Profile       Profile    `json:"profile"`
	LastMessage   *Message   `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	// Degraded is set when the last-message or unread lookup failed and the
	// summary falls back to "no messages yet".
	Degraded bool `json:"degraded,omitempty"`
}

func (s PeerSummary) Presence() string {
	return s.Profile.Status
}

// ActivityAt is the roster's recency key: the last message time, falling back
// to the profile's last_seen.
func (s PeerSummary) ActivityAt() time.Time {
	if s.LastMessageAt != nil {
		return *s.LastMessageAt
	}
	return s.Profile.LastSeen
}
