// Package eventbus multiplexes one live channel subscription to many listeners.
//
// Each listener owns its own predicate and its own Close, so tearing one down
// never affects the others. Only the Bus itself subscribes to and releases the
// underlying channel.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

var ErrClosed = errors.New("event bus is closed")

// Handle identifies a subscription on a Channel.
type Handle uint64

// Channel is the live event source. Implementations deliver events from a
// single goroutine per subscription.
type Channel interface {
	Subscribe(ctx context.Context, fn func(domain.LiveEvent)) (Handle, error)
	Unsubscribe(h Handle) error
}

// Predicate selects the events a listener receives. A nil Predicate matches nothing.
type Predicate func(domain.LiveEvent) bool

// OfType matches events whose Type is one of types.
func OfType(types ...string) Predicate {
	return func(e domain.LiveEvent) bool {
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
		return false
	}
}

type Bus struct {
	ch  Channel
	log *slog.Logger

	mu        sync.RWMutex
	listeners map[uint64]*Listener
	nextID    uint64
	handle    Handle
	started   bool
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

func New(ch Channel, log *slog.Logger) *Bus {
	return &Bus{
		ch:        ch,
		log:       log,
		listeners: make(map[uint64]*Listener),
	}
}

// Start subscribes to the channel. Calling it again is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.started {
		return nil
	}

	h, err := b.ch.Subscribe(ctx, b.dispatch)
	if err != nil {
		var subErr *domain.SubscriptionError
		if errors.As(err, &subErr) {
			return err
		}
		return &domain.SubscriptionError{Err: err}
	}
	b.handle = h
	b.started = true
	return nil
}

// Listen registers fn for events matching p.
func (b *Bus) Listen(p Predicate, fn func(domain.LiveEvent)) *Listener {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	l := &Listener{bus: b, id: b.nextID, pred: p, fn: fn}
	if b.closed {
		l.closed = true
		return l
	}
	b.listeners[l.id] = l
	return l
}

// Close releases the channel subscription exactly once and drops all listeners.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		started, h := b.started, b.handle
		b.closed = true
		for _, l := range b.listeners {
			l.markClosed()
		}
		b.listeners = make(map[uint64]*Listener)
		b.mu.Unlock()

		if started {
			b.closeErr = b.ch.Unsubscribe(h)
		}
	})
	return b.closeErr
}

// Publish delivers e to the matching listeners. The channel calls it through
// the subscription; tests and local producers may call it directly.
func (b *Bus) Publish(e domain.LiveEvent) {
	b.dispatch(e)
}

func (b *Bus) dispatch(e domain.LiveEvent) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		targets = append(targets, l)
	}
	b.mu.RUnlock()

	for _, l := range targets {
		l.deliver(e)
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.listeners, id)
	b.mu.Unlock()
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
