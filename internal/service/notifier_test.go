package service_test

import (
	"github.com/google/uuid"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

type recordingNotifier struct {
	created []domain.Message
	read    map[uuid.UUID][]uuid.UUID
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{read: make(map[uuid.UUID][]uuid.UUID)}
}

func (n *recordingNotifier) NotifyNewMessage(msg *domain.Message) {
	n.created = append(n.created, *msg)
}

func (n *recordingNotifier) NotifyRead(sender uuid.UUID, ids []uuid.UUID) {
	n.read[sender] = append(n.read[sender], ids...)
}
