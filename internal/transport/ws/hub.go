package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

// PresenceRecorder persists a user's online status.
type PresenceRecorder interface {
	SetPresence(ctx context.Context, userID uuid.UUID, status string) (domain.Presence, error)
}

// Hub manages all active WebSocket clients and routes messages. A user may be
// connected more than once; they are online while any connection is open.
type Hub struct {
	// clients maps userID → that user's connections.
	clients  map[uuid.UUID]map[*Client]struct{}
	presence PresenceRecorder

	register   chan *Client
	unregister chan *Client
	deliver    chan *delivery
	count      chan countQuery
	done       chan struct{}
}

type delivery struct {
	// recipients is nil for a broadcast to everyone but except.
	recipients []uuid.UUID
	except     uuid.UUID
	data       []byte
}

type countQuery struct {
	userID uuid.UUID
	reply  chan int
}

func NewHub(presence PresenceRecorder) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		presence:   presence,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan *delivery, 256),
		count:      make(chan countQuery),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's main event loop and blocks until ctx is done. Call
// this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, conns := range h.clients {
			for client := range conns {
				client.stop()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			conns, ok := h.clients[client.userID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[client.userID] = conns
			}
			conns[client] = struct{}{}
			log.Printf("ws hub: user %s connected (%d users)", client.userID, len(h.clients))

			if !ok {
				h.setPresence(ctx, client.userID, domain.StatusOnline)
			}

		case client := <-h.unregister:
			h.remove(ctx, client)

		case msg := <-h.deliver:
			for _, client := range h.targets(msg) {
				select {
				case client.send <- msg.data:
				default:
					// Client buffer full - disconnect
					h.remove(ctx, client)
				}
			}

		case q := <-h.count:
			q.reply <- len(h.clients[q.userID])
		}
	}
}

// SendToUsers delivers an event to every connection of the given users.
func (h *Hub) SendToUsers(event *Event, userIDs ...uuid.UUID) {
	h.send(&delivery{recipients: userIDs}, event)
}

// Broadcast delivers an event to every connected user except one.
func (h *Hub) Broadcast(event *Event, except uuid.UUID) {
	h.send(&delivery{except: except}, event)
}

// Connections reports how many connections userID has open.
func (h *Hub) Connections(ctx context.Context, userID uuid.UUID) int {
	q := countQuery{userID: userID, reply: make(chan int, 1)}
	select {
	case h.count <- q:
		return <-q.reply
	case <-h.done:
	case <-ctx.Done():
	}
	return 0
}

func (h *Hub) send(d *delivery, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws hub: marshal error: %v", err)
		return
	}
	d.data = data
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

func (h *Hub) targets(d *delivery) []*Client {
	var out []*Client
	if d.recipients == nil {
		for userID, conns := range h.clients {
			if userID == d.except {
				continue
			}
			for client := range conns {
				out = append(out, client)
			}
		}
		return out
	}
	seen := make(map[uuid.UUID]bool, len(d.recipients))
	for _, userID := range d.recipients {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		for client := range h.clients[userID] {
			out = append(out, client)
		}
	}
	return out
}

func (h *Hub) remove(ctx context.Context, client *Client) {
	conns, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	client.stop()
	if len(conns) > 0 {
		return
	}
	delete(h.clients, client.userID)
	log.Printf("ws hub: user %s disconnected (%d users)", client.userID, len(h.clients))
	h.setPresence(ctx, client.userID, domain.StatusOffline)
}

// setPresence records the status and broadcasts it to everyone else.
func (h *Hub) setPresence(ctx context.Context, userID uuid.UUID, status string) {
	p := domain.Presence{UserID: userID, Status: status}
	if h.presence != nil {
		recorded, err := h.presence.SetPresence(ctx, userID, status)
		if err != nil {
			log.Printf("ERROR ws hub: recording presence of %s: %v", userID, err)
		} else {
			p = recorded
		}
	}

	evt, err := NewEvent(EventTypePresence, PresencePayload{Presence: p})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	for _, client := range h.targets(&delivery{except: userID}) {
		select {
		case client.send <- data:
		default:
		}
	}
}
