package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

type firestoreProfileRepository struct {
	client *firestore.Client
}

func NewFirestoreProfileRepository(client *firestore.Client) repository.ProfileRepository {
	return &firestoreProfileRepository{
		client: client,
	}
}

func collectionFor(role entity.Role) string {
	if role == entity.RoleCounselor {
		return "counselors"
	}
	return "users"
}

func (r *firestoreProfileRepository) get(ctx context.Context, role entity.Role, uid string) (*entity.Profile, error) {
	doc, err := r.client.Collection(collectionFor(role)).Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			if role == entity.RoleCounselor {
				return nil, errors.NotFound("Counselor", err)
			}
			return nil, errors.NotFound("User", err)
		}
		return nil, storeError("Failed to get profile", err)
	}

	var profile entity.Profile
	if err := doc.DataTo(&profile); err != nil {
		return nil, errors.Internal("Failed to parse profile data", err)
	}
	profile.ID = doc.Ref.ID
	return &profile, nil
}

func (r *firestoreProfileRepository) GetUser(ctx context.Context, uid string) (*entity.Profile, error) {
	return r.get(ctx, entity.RoleUser, uid)
}

func (r *firestoreProfileRepository) GetCounselor(ctx context.Context, uid string) (*entity.Profile, error) {
	return r.get(ctx, entity.RoleCounselor, uid)
}

func (r *firestoreProfileRepository) create(ctx context.Context, role entity.Role, profile *entity.Profile) error {
	profile.Role = role
	data := map[string]interface{}{
		"email":     profile.Email,
		"role":      string(role),
		"createdAt": firestore.ServerTimestamp,
		"lastLogin": firestore.ServerTimestamp,
	}
	if profile.DisplayName != "" {
		data["displayName"] = profile.DisplayName
	}
	if profile.ProfilePic != "" {
		data["profilePic"] = profile.ProfilePic
	}
	if profile.PhoneNumber != "" {
		data["phoneNumber"] = profile.PhoneNumber
	}
	if role == entity.RoleCounselor {
		data["isVerified"] = profile.IsVerified
	}

	_, err := r.client.Collection(collectionFor(role)).Doc(profile.ID).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		logger.Error("Firestore profile write failed: %v", err)
		return storeError("Failed to create profile", err)
	}
	return nil
}

func (r *firestoreProfileRepository) CreateUser(ctx context.Context, profile *entity.Profile) error {
	return r.create(ctx, entity.RoleUser, profile)
}

func (r *firestoreProfileRepository) CreateCounselor(ctx context.Context, profile *entity.Profile) error {
	return r.create(ctx, entity.RoleCounselor, profile)
}

func (r *firestoreProfileRepository) IsVerifiedCounselorEmail(ctx context.Context, email string) (bool, error) {
	doc, err := r.client.Collection("verifiedCounselors").Doc(entity.SanitizeEmail(email)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, storeError("Failed to check counselor verification", err)
	}
	return doc.Exists(), nil
}

func (r *firestoreProfileRepository) RecordLogin(ctx context.Context, uid string, role entity.Role, phoneNumber string) error {
	updates := []firestore.Update{{Path: "lastLogin", Value: firestore.ServerTimestamp}}
	if phoneNumber != "" {
		updates = append(updates, firestore.Update{Path: "phoneNumber", Value: phoneNumber})
	}
	if _, err := r.client.Collection(collectionFor(role)).Doc(uid).Update(ctx, updates); err != nil {
		return storeError("Failed to record sign-in", err)
	}
	return nil
}

func (r *firestoreProfileRepository) AddDeviceToken(ctx context.Context, uid string, role entity.Role, token string) error {
	_, err := r.client.Collection(collectionFor(role)).Doc(uid).Update(ctx, []firestore.Update{
		{Path: "fcmTokens", Value: firestore.ArrayUnion(token)},
	})
	if err != nil {
		return storeError("Failed to register device token", err)
	}
	return nil
}

func (r *firestoreProfileRepository) RemoveDeviceToken(ctx context.Context, uid string, role entity.Role, token string) error {
	_, err := r.client.Collection(collectionFor(role)).Doc(uid).Update(ctx, []firestore.Update{
		{Path: "fcmTokens", Value: firestore.ArrayRemove(token)},
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return storeError("Failed to remove device token", err)
	}
	return nil
}

// Ping issues a minimal read; any answer, including an empty collection, counts as reachable.
func (r *firestoreProfileRepository) Ping(ctx context.Context) error {
	iter := r.client.Collection("verifiedCounselors").Limit(1).Documents(ctx)
	defer iter.Stop()
	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		return errors.Network("Backend unreachable", err)
	}
	return nil
}
