package usecase

import (
	"context"
	"sync"
	"time"

	"speak/internal/domain/entity"
	"speak/internal/domain/service"
	"speak/internal/infrastructure/metrics"
	"speak/pkg/logger"
)

const dispatchTimeout = 10 * time.Second

// NotificationDispatcher fans a notification out to every configured sender in the
// background. Delivery is never confirmed and failures never reach the message path.
type NotificationDispatcher struct {
	mu      sync.RWMutex
	senders []service.NotificationSender
	wg      sync.WaitGroup
}

func NewNotificationDispatcher(senders ...service.NotificationSender) *NotificationDispatcher {
	return &NotificationDispatcher{
		senders: senders,
	}
}

// AddSender registers a sender built after the dispatcher, such as the WebSocket
// manager which itself depends on the chat use case.
func (d *NotificationDispatcher) AddSender(sender service.NotificationSender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders = append(d.senders, sender)
}

func (d *NotificationDispatcher) Dispatch(recipientID string, notification entity.Notification) {
	if recipientID == "" {
		return
	}

	d.mu.RLock()
	senders := append([]service.NotificationSender(nil), d.senders...)
	d.mu.RUnlock()

	for _, sender := range senders {
		d.wg.Add(1)
		go func(sender service.NotificationSender) {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
			defer cancel()

			if err := sender.Send(ctx, recipientID, notification); err != nil {
				metrics.NotificationsDispatched.WithLabelValues(sender.Name(), metrics.OutcomeFailed).Inc()
				logger.Warn("Notification delivery failed: %s", logger.KV("channel", sender.Name(), "recipient", recipientID, "error", err))
				return
			}
			metrics.NotificationsDispatched.WithLabelValues(sender.Name(), metrics.OutcomeDelivered).Inc()
		}(sender)
	}
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and in tests.
func (d *NotificationDispatcher) Wait() {
	d.wg.Wait()
}
