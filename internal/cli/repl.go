package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"

	"github.com/eaaaarl/iChat-Web/internal/conversation"
	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/session"
)

const helpText = `Commands:
  /roster [filter]   list peers, optionally filtered by name
  /open <username>   open the conversation with a peer
  /close             close the open conversation
  /retry             resend every message that was not delivered
  /logout            sign out and exit
  /quit              exit
Anything else is sent to the open conversation.`

var errQuit = errors.New("quit")

// REPL drives a session from line-based input.
type REPL struct {
	sess   *session.Session
	logout func(context.Context) error
	in     io.Reader
	now    func() time.Time

	mu    sync.Mutex
	out   io.Writer
	key   domain.ConversationKey
	shown map[string]printed
}

// printed is how an entry looked when it was last printed.
type printed struct {
	state conversation.State
	read  bool
}

func NewREPL(sess *session.Session, logout func(context.Context) error, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		sess:   sess,
		logout: logout,
		in:     in,
		out:    out,
		now:    time.Now,
		shown:  make(map[string]printed),
	}
}

// Run reads commands until input ends, /quit, /logout or the session ends.
func (r *REPL) Run(ctx context.Context) error {
	stopView := r.sess.Conversation.Watch(r.onView)
	defer stopView()
	stopRoster := r.sess.Roster.Watch(r.onRoster())
	defer stopRoster()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.println(helpText)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.sess.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := r.exec(ctx, strings.TrimSpace(line))
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				r.println(color.Red.Sprint("error: ") + err.Error())
			}
		}
	}
}

func (r *REPL) exec(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return r.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/roster":
		r.showRoster(arg)
	case "/open":
		return r.open(ctx, arg)
	case "/close":
		r.sess.CloseConversation()
	case "/retry":
		return r.retry(ctx)
	case "/logout":
		if err := r.logout(ctx); err != nil {
			return err
		}
		return errQuit
	case "/quit":
		return errQuit
	case "/help":
		r.println(helpText)
	default:
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return nil
}

func (r *REPL) showRoster(filter string) {
	summaries := r.sess.Roster.Summaries()
	if filter != "" {
		summaries = r.sess.Roster.Filter(filter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	renderRoster(r.out, summaries, r.now())
}

func (r *REPL) open(ctx context.Context, username string) error {
	if username == "" {
		return errors.New("usage: /open <username>")
	}
	for _, s := range r.sess.Roster.Summaries() {
		if strings.EqualFold(s.Profile.Username, username) {
			r.println(color.Bold.Sprintf("── %s ──", s.Profile.DisplayName))
			return r.sess.Open(ctx, s.Profile.ID)
		}
	}
	return fmt.Errorf("no user named %q", username)
}

func (r *REPL) send(ctx context.Context, text string) error {
	peer, ok := r.sess.Conversation.Peer()
	if !ok {
		return errors.New("no open conversation, use /open <username>")
	}
	_, err := r.sess.Send(ctx, peer, text)
	var writeErr *domain.WriteError
	if errors.As(err, &writeErr) {
		// Shown as not delivered in the conversation
		return nil
	}
	return err
}

func (r *REPL) retry(ctx context.Context) error {
	failed := r.sess.Outbound.Failed()
	if len(failed) == 0 {
		r.println("nothing to retry")
		return nil
	}
	var errs []error
	for _, nonce := range failed {
		if _, err := r.sess.Retry(ctx, nonce); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// onView prints entries that are new, changed state or were just read by the
// peer. A pending send that gets confirmed is not printed twice.
func (r *REPL) onView(v conversation.View) {
	name := r.peerName(v.Peer)
	self := r.sess.Self()

	r.mu.Lock()
	defer r.mu.Unlock()
	if v.Key != r.key {
		r.key = v.Key
		r.shown = make(map[string]printed)
	}
	for _, e := range v.Entries {
		id := entryKey(e)
		now := printed{state: e.State, read: e.Read}
		prev, seen := r.shown[id]
		r.shown[id] = now
		if seen && !reprint(self, e, prev, now) {
			continue
		}
		fmt.Fprintln(r.out, formatEntry(self, name, e))
	}
}

func reprint(self uuid.UUID, e conversation.Entry, prev, now printed) bool {
	if now.state != prev.state && now.state != conversation.StateConfirmed {
		return true
	}
	return e.SenderID == self && now.read && !prev.read
}

// onRoster announces unread messages as they arrive.
func (r *REPL) onRoster() func([]domain.PeerSummary) {
	last := make(map[uuid.UUID]int)
	return func(summaries []domain.PeerSummary) {
		for _, s := range summaries {
			if s.UnreadCount > last[s.Profile.ID] && s.LastMessage != nil {
				r.println(color.Yellow.Sprintf("● %s: %s", s.Profile.DisplayName, truncate(s.LastMessage.Content, 40)))
			}
			last[s.Profile.ID] = s.UnreadCount
		}
	}
}

func (r *REPL) peerName(id uuid.UUID) string {
	if s, ok := r.sess.Roster.Summary(id); ok && s.Profile.DisplayName != "" {
		return s.Profile.DisplayName
	}
	return id.String()[:8]
}

func (r *REPL) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, s)
}

func entryKey(e conversation.Entry) string {
	if e.Nonce != "" {
		return "n:" + e.Nonce
	}
	return "i:" + e.ID.String()
}
