package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/funding-service/internal/domain"
)

// RecordingNotifier captures notifications and can be made to fail
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	Err  error
}

func (n *RecordingNotifier) Notify(_ context.Context, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, notification)
	return nil
}

// Sent returns a copy of the delivered notifications
func (n *RecordingNotifier) Sent() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.sent...)
}

// SentOfType returns delivered notifications of type t
func (n *RecordingNotifier) SentOfType(t domain.NotificationType) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notification
	for _, s := range n.sent {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}
