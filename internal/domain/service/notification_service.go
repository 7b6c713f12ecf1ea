package service

import (
	"context"

	"speak/internal/domain/entity"
)

// NotificationSender delivers one notification to one recipient over one channel
// (in-app socket, device push, cross-instance bus).
type NotificationSender interface {
	Send(ctx context.Context, recipientID string, notification entity.Notification) error
	Name() string
}

// ConnectivityChecker reports whether the backing services are reachable right now.
type ConnectivityChecker interface {
	Check(ctx context.Context) error
}

// ConnectivityCheckerFunc adapts a ping function to ConnectivityChecker.
type ConnectivityCheckerFunc func(ctx context.Context) error

func (f ConnectivityCheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// TokenVerifier turns a client ID token into the caller's identity.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*VerifiedToken, error)
}

type VerifiedToken struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	PhoneNumber string
	Claims      map[string]interface{}
}
