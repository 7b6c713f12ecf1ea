package usecase

import (
	"speak/internal/domain/entity"
)

// Notifier schedules a notification for a recipient without waiting for delivery.
type Notifier interface {
	Dispatch(recipientID string, notification entity.Notification)
}
