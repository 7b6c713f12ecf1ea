package firebase

import (
	"context"

	"firebase.google.com/go/v4/messaging"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

// PushSender delivers notifications to every device token registered on the recipient's
// profile through Firebase Cloud Messaging. Tokens FCM reports as unregistered are pruned.
type PushSender struct {
	client   *messaging.Client
	profiles repository.ProfileRepository
}

func NewPushSender(client *messaging.Client, profiles repository.ProfileRepository) *PushSender {
	return &PushSender{
		client:   client,
		profiles: profiles,
	}
}

func (p *PushSender) Name() string {
	return "fcm"
}

func (p *PushSender) recipient(ctx context.Context, uid string) (*entity.Profile, error) {
	profile, err := p.profiles.GetUser(ctx, uid)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	return p.profiles.GetCounselor(ctx, uid)
}

func (p *PushSender) Send(ctx context.Context, recipientID string, notification entity.Notification) error {
	profile, err := p.recipient(ctx, recipientID)
	if err != nil {
		return err
	}
	if len(profile.FCMTokens) == 0 {
		logger.Debug("No device tokens for %s, skipping push", recipientID)
		return nil
	}

	resp, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: profile.FCMTokens,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err != nil {
		return errors.Network("Failed to send push notification", err)
	}

	for i, r := range resp.Responses {
		if r.Success || r.Error == nil {
			continue
		}
		if messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
			token := profile.FCMTokens[i]
			if err := p.profiles.RemoveDeviceToken(ctx, recipientID, profile.Role, token); err != nil {
				logger.Warn("Failed to prune device token for %s: %v", recipientID, err)
			}
			continue
		}
		logger.Warn("Push to %s failed: %v", recipientID, r.Error)
	}

	logger.Debug("Push sent to %s: %s", recipientID, logger.KV("success", resp.SuccessCount, "failure", resp.FailureCount))
	return nil
}
