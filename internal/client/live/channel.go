// Package live is the websocket implementation of the live event channel.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/eventbus"
	"github.com/eaaaarl/iChat-Web/internal/transport/ws"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 10 * time.Second
)

var ErrUnknownHandle = errors.New("unknown subscription handle")

// URLFunc returns the websocket URL to dial. It is called on every
// (re)connect so a refreshed token is picked up.
type URLFunc func() (string, error)

type Options struct {
	ReconnectBackoff time.Duration
	MaxBackoff       time.Duration
	// DialAttempts bounds the connection attempts of Subscribe.
	DialAttempts int
}

// Channel connects one websocket per subscription. A dropped connection is
// redialed with exponential backoff; the subscriber sees channel.down when it
// drops and channel.up once it is back.
type Channel struct {
	url  URLFunc
	opts Options
	log  *slog.Logger

	mu   sync.Mutex
	subs map[eventbus.Handle]*subscription
	next eventbus.Handle
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func New(url URLFunc, opts Options, log *slog.Logger) *Channel {
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = time.Second
	}
	if opts.MaxBackoff < opts.ReconnectBackoff {
		opts.MaxBackoff = opts.ReconnectBackoff
	}
	if opts.DialAttempts <= 0 {
		opts.DialAttempts = 3
	}
	return &Channel{
		url:  url,
		opts: opts,
		log:  log,
		subs: make(map[eventbus.Handle]*subscription),
	}
}

// Subscribe dials the server and delivers its events to fn from a single
// goroutine until Unsubscribe or ctx is done. A failed dial is retried with
// backoff up to DialAttempts times; a missing URL is not retried.
func (c *Channel) Subscribe(ctx context.Context, fn func(domain.LiveEvent)) (eventbus.Handle, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return 0, &domain.SubscriptionError{Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.next++
	h := c.next
	c.subs[h] = sub
	c.mu.Unlock()

	go func() {
		defer close(sub.done)
		c.run(ctx, conn, fn)
	}()
	return h, nil
}

// Unsubscribe closes the subscription and waits for its goroutine. It must
// not be called from the event callback.
func (c *Channel) Unsubscribe(h eventbus.Handle) error {
	c.mu.Lock()
	sub, ok := c.subs[h]
	delete(c.subs, h)
	c.mu.Unlock()
	if !ok {
		return ErrUnknownHandle
	}
	sub.cancel()
	<-sub.done
	return nil
}

func (c *Channel) run(ctx context.Context, conn *websocket.Conn, fn func(domain.LiveEvent)) {
	for {
		err := c.read(ctx, conn, fn)
		conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("Live channel dropped", "error", err)
		fn(domain.LiveEvent{Type: domain.EventChannelDown, Err: &domain.SubscriptionError{Err: err}})

		conn = c.redial(ctx)
		if conn == nil {
			return
		}
		c.log.Info("Live channel restored")
		fn(domain.LiveEvent{Type: domain.EventChannelUp})
	}
}

// read delivers events until the connection fails.
func (c *Channel) read(ctx context.Context, conn *websocket.Conn, fn func(domain.LiveEvent)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.keepalive(ctx, conn)

	for {
		var evt ws.Event
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			return err
		}
		live, ok, err := evt.LiveEvent()
		if err != nil {
			c.log.Warn("Skipping malformed live event", "type", evt.Type, "error", err)
			continue
		}
		if !ok {
			continue
		}
		fn(live)
	}
}

// keepalive pings until ctx is done and closes conn when a ping fails, which
// ends the pending read.
func (c *Channel) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

func (c *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	backoff := c.opts.ReconnectBackoff
	for attempt := 1; ; attempt++ {
		url, err := c.url()
		if err != nil {
			return nil, err
		}
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err == nil {
			return conn, nil
		}
		if attempt >= c.opts.DialAttempts || !wait(ctx, backoff) {
			return nil, err
		}
		c.log.Debug("Live channel dial failed", "attempt", attempt, "error", err, "backoff", backoff)
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

// redial retries with exponential backoff until it connects or ctx is done.
func (c *Channel) redial(ctx context.Context) *websocket.Conn {
	backoff := c.opts.ReconnectBackoff
	for wait(ctx, backoff) {
		conn, err := c.dial(ctx)
		if err == nil {
			return conn
		}
		c.log.Debug("Live channel redial failed", "error", err, "backoff", backoff)
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	url, err := c.url()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
