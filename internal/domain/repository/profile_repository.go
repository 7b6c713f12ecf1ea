package repository

import (
	"context"

	"speak/internal/domain/entity"
)

type ProfileRepository interface {
	GetUser(ctx context.Context, uid string) (*entity.Profile, error)
	GetCounselor(ctx context.Context, uid string) (*entity.Profile, error)
	CreateUser(ctx context.Context, profile *entity.Profile) error
	CreateCounselor(ctx context.Context, profile *entity.Profile) error
	// RecordLogin refreshes lastLogin and, when phoneNumber is not empty, stores it.
	RecordLogin(ctx context.Context, uid string, role entity.Role, phoneNumber string) error
	// IsVerifiedCounselorEmail checks the verifiedCounselors allow-list.
	IsVerifiedCounselorEmail(ctx context.Context, email string) (bool, error)
	AddDeviceToken(ctx context.Context, uid string, role entity.Role, token string) error
	RemoveDeviceToken(ctx context.Context, uid string, role entity.Role, token string) error
	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
