package testutil

import (
	"sync"

	"github.com/google/uuid"
)

// Identity is a settable identity provider.
type Identity struct {
	mu        sync.Mutex
	id        uuid.UUID
	signedOut []func()
}

func NewIdentity(id uuid.UUID) *Identity {
	return &Identity{id: id}
}

func (i *Identity) CurrentUserID() (uuid.UUID, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id, i.id != uuid.Nil
}

func (i *Identity) OnSignedOut(fn func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.signedOut = append(i.signedOut, fn)
}

// SignOut clears the user and runs the registered callbacks.
func (i *Identity) SignOut() {
	i.mu.Lock()
	i.id = uuid.Nil
	fns := i.signedOut
	i.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
