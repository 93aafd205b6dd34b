package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/eaaaarl/iChat-Web/internal/conversation"
	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/roster"
)

// renderRoster prints the roster as a table, most relevant peer first.
func renderRoster(w io.Writer, summaries []domain.PeerSummary, now time.Time) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "User", "Name", "Last message", "Unread"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")

	for _, s := range summaries {
		table.Append([]string{
			presenceDot(s.Profile),
			s.Profile.Username,
			s.Profile.DisplayName,
			lastMessage(s, now),
			roster.UnreadBadge(s.UnreadCount),
		})
	}
	table.Render()
}

func presenceDot(p domain.Profile) string {
	if p.Online() {
		return color.Green.Sprint("●")
	}
	return color.Gray.Sprint("○")
}

func lastMessage(s domain.PeerSummary, now time.Time) string {
	switch {
	case s.Degraded:
		return color.Yellow.Sprint("unavailable")
	case s.LastMessage == nil:
		return color.Gray.Sprint("no messages yet")
	}
	return fmt.Sprintf("%s  %s", truncate(s.LastMessage.Content, 32), ago(now, s.LastMessage.CreatedAt))
}

// formatEntry renders one conversation line. self decides which side wrote it.
func formatEntry(self uuid.UUID, peerName string, e conversation.Entry) string {
	at := e.CreatedAt.Local().Format("15:04")
	if e.SenderID != self {
		return fmt.Sprintf("%s %s: %s", color.Gray.Sprint(at), color.Cyan.Sprint(peerName), e.Content)
	}

	line := fmt.Sprintf("%s %s: %s", color.Gray.Sprint(at), color.Magenta.Sprint("you"), e.Content)
	switch e.State {
	case conversation.StatePending:
		return line + color.Gray.Sprint(" (sending)")
	case conversation.StateFailed:
		return line + color.Red.Sprint(" (not delivered, /retry to resend)")
	}
	if e.Read {
		return line + color.Gray.Sprint(" ✓✓")
	}
	return line
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func ago(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return t.Local().Format("Jan 2")
}
