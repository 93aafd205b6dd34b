package ws

import (
	"log"

	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// NotifyNewMessage sends the message to both participants, so the sender's
// other connections see it too.
func (n *HubNotifier) NotifyNewMessage(msg *domain.Message) {
	evt, err := NewEvent(EventTypeMessageNew, MessagePayload{Message: *msg})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.SendToUsers(evt, msg.SenderID, msg.ReceiverID)
}

func (n *HubNotifier) NotifyRead(sender uuid.UUID, ids []uuid.UUID) {
	evt, err := NewEvent(EventTypeMessageRead, ReadPayload{IDs: ids})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.SendToUsers(evt, sender)
}
