package firebase

import (
	"context"
	"fmt"
	"strings"

	"speak/internal/domain/service"
)

const devTokenPrefix = "dev:"

// GenerateDevToken mints a custom token carrying the role claim. Clients exchange it for
// an ID token with the Firebase client SDK; only exposed in development.
func (f *FirebaseAuthClient) GenerateDevToken(ctx context.Context, uid, role string) (string, error) {
	return f.client.CustomTokenWithClaims(ctx, uid, map[string]interface{}{
		"role": role,
	})
}

// DevToken builds a bearer token accepted by DevVerifier: dev:{uid}:{email}:{name}.
func DevToken(uid, email, name string) string {
	return devTokenPrefix + strings.Join([]string{uid, email, name}, ":")
}

// DevVerifier accepts DevToken strings without contacting Firebase. It backs the memory
// store in development and the handler tests.
type DevVerifier struct{}

func NewDevVerifier() *DevVerifier {
	return &DevVerifier{}
}

func (DevVerifier) VerifyIDToken(ctx context.Context, idToken string) (*service.VerifiedToken, error) {
	if !strings.HasPrefix(idToken, devTokenPrefix) {
		return nil, fmt.Errorf("not a development token")
	}
	parts := strings.SplitN(strings.TrimPrefix(idToken, devTokenPrefix), ":", 3)
	if parts[0] == "" {
		return nil, fmt.Errorf("development token has no uid")
	}

	token := &service.VerifiedToken{UID: parts[0]}
	if len(parts) > 1 {
		token.Email = parts[1]
	}
	if len(parts) > 2 {
		token.DisplayName = parts[2]
	}
	return token, nil
}
