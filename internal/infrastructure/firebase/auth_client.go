package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"

	"speak/internal/domain/service"
)

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

// VerifyIDToken checks the token signature and expiry and extracts the profile claims
// Firebase puts in every ID token.
func (f *FirebaseAuthClient) VerifyIDToken(ctx context.Context, idToken string) (*service.VerifiedToken, error) {
	token, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	verified := &service.VerifiedToken{
		UID:    token.UID,
		Claims: token.Claims,
	}
	verified.Email, _ = token.Claims["email"].(string)
	verified.DisplayName, _ = token.Claims["name"].(string)
	verified.PhotoURL, _ = token.Claims["picture"].(string)
	verified.PhoneNumber, _ = token.Claims["phone_number"].(string)

	if verified.Email == "" {
		if user, err := f.LookupUser(ctx, token.UID); err == nil {
			verified.Email = user.Email
			if verified.DisplayName == "" {
				verified.DisplayName = user.DisplayName
			}
		}
	}
	return verified, nil
}

// LookupUser fills in profile fields the token may not carry.
func (f *FirebaseAuthClient) LookupUser(ctx context.Context, uid string) (*service.VerifiedToken, error) {
	user, err := f.client.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	return &service.VerifiedToken{
		UID:         user.UID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
		PhoneNumber: user.PhoneNumber,
		Claims:      user.CustomClaims,
	}, nil
}
