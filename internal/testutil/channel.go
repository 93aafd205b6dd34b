// Package testutil holds in-memory collaborators for the synchronization core:
// a live channel, a message store, an identity provider and a clock.
package testutil

import (
	"context"
	"sync"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/eventbus"
)

// FakeChannel is an eventbus.Channel driven by Emit.
type FakeChannel struct {
	mu           sync.Mutex
	subs         map[eventbus.Handle]func(domain.LiveEvent)
	next         eventbus.Handle
	SubscribeErr error
	Subscribes   int
	Unsubscribes int
}

func NewFakeChannel() *FakeChannel {
	return &FakeChannel{subs: make(map[eventbus.Handle]func(domain.LiveEvent))}
}

func (c *FakeChannel) Subscribe(_ context.Context, fn func(domain.LiveEvent)) (eventbus.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return 0, c.SubscribeErr
	}
	c.next++
	c.subs[c.next] = fn
	c.Subscribes++
	return c.next, nil
}

func (c *FakeChannel) Unsubscribe(h eventbus.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, h)
	c.Unsubscribes++
	return nil
}

// Emit delivers e synchronously to every subscriber.
func (c *FakeChannel) Emit(e domain.LiveEvent) {
	c.mu.Lock()
	fns := make([]func(domain.LiveEvent), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// EmitInsert is a shortcut for a message.new event.
func (c *FakeChannel) EmitInsert(m domain.Message) {
	c.Emit(domain.LiveEvent{Type: domain.EventMessageNew, Message: &m})
}

func (c *FakeChannel) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
