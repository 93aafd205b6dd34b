package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eaaaarl/iChat-Web/internal/conversation"
	"github.com/eaaaarl/iChat-Web/internal/domain"
)

func TestRenderRoster(t *testing.T) {
	req := require.New(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	summaries := []domain.PeerSummary{
		{
			Profile:     domain.Profile{ID: uuid.New(), Username: "ben", DisplayName: "Ben", Status: domain.StatusOnline},
			LastMessage: &domain.Message{Content: "see you\nsoon", CreatedAt: now.Add(-5 * time.Minute)},
			UnreadCount: 120,
		},
		{Profile: domain.Profile{ID: uuid.New(), Username: "cyd", DisplayName: "Cyd"}},
		{Profile: domain.Profile{ID: uuid.New(), Username: "dee", DisplayName: "Dee"}, Degraded: true},
	}
	var buf bytes.Buffer

	renderRoster(&buf, summaries, now)

	out := buf.String()
	req.Contains(out, "ben")
	req.Contains(out, "see you soon")
	req.Contains(out, "5m")
	req.Contains(out, "99+")
	req.Contains(out, "no messages yet")
	req.Contains(out, "unavailable")
}

func TestFormatEntry(t *testing.T) {
	self, peer := uuid.New(), uuid.New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		entry conversation.Entry
		want  []string
	}{
		{
			name:  "inbound",
			entry: conversation.Entry{Message: domain.Message{SenderID: peer, ReceiverID: self, Content: "hi", CreatedAt: at}},
			want:  []string{"Ben", "hi"},
		},
		{
			name:  "pending",
			entry: conversation.Entry{Message: domain.Message{SenderID: self, ReceiverID: peer, Content: "yo", CreatedAt: at}, State: conversation.StatePending},
			want:  []string{"you", "yo", "(sending)"},
		},
		{
			name:  "failed",
			entry: conversation.Entry{Message: domain.Message{SenderID: self, ReceiverID: peer, Content: "yo", CreatedAt: at}, State: conversation.StateFailed},
			want:  []string{"not delivered"},
		},
		{
			name:  "read",
			entry: conversation.Entry{Message: domain.Message{SenderID: self, ReceiverID: peer, Content: "yo", CreatedAt: at, Read: true}},
			want:  []string{"✓✓"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := formatEntry(self, "Ben", tc.entry)
			for _, w := range tc.want {
				require.Contains(t, line, w)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))
	require.Equal(t, "a b", truncate("a \n b", 10))
}

func TestReprint(t *testing.T) {
	self, peer := uuid.New(), uuid.New()
	mine := conversation.Entry{Message: domain.Message{SenderID: self, ReceiverID: peer}}
	theirs := conversation.Entry{Message: domain.Message{SenderID: peer, ReceiverID: self}}
	pending := printed{state: conversation.StatePending}
	failed := printed{state: conversation.StateFailed}
	confirmed := printed{state: conversation.StateConfirmed}
	read := printed{state: conversation.StateConfirmed, read: true}

	tests := []struct {
		name      string
		entry     conversation.Entry
		prev, now printed
		want      bool
	}{
		{"unchanged", mine, confirmed, confirmed, false},
		{"confirmed send", mine, pending, confirmed, false},
		{"send failed", mine, pending, failed, true},
		{"resent", mine, failed, pending, true},
		{"read by peer", mine, confirmed, read, true},
		{"read before confirmation", mine, pending, read, true},
		{"still read", mine, read, read, false},
		{"inbound marked read", theirs, confirmed, read, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, reprint(self, tt.entry, tt.prev, tt.now))
		})
	}
}
