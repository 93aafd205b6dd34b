package eventbus

import (
	"sync"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

type Listener struct {
	bus *Bus
	id  uint64
	fn  func(domain.LiveEvent)

	mu     sync.RWMutex
	pred   Predicate
	closed bool
}

// SetFilter re-scopes the listener. Events dispatched after SetFilter returns
// are matched against p only.
func (l *Listener) SetFilter(p Predicate) {
	l.mu.Lock()
	l.pred = p
	l.mu.Unlock()
}

// Close removes this listener only. It is idempotent.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.bus.remove(l.id)
}

func (l *Listener) markClosed() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *Listener) deliver(e domain.LiveEvent) {
	l.mu.RLock()
	ok := !l.closed && l.pred != nil && l.pred(e)
	l.mu.RUnlock()
	if ok {
		l.fn(e)
	}
}
