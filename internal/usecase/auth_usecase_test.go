package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speak/internal/adapter/repository"
	"speak/internal/domain/entity"
	"speak/internal/domain/service"
	"speak/pkg/errors"
)

type fakeVerifier map[string]*service.VerifiedToken

func (v fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*service.VerifiedToken, error) {
	token, ok := v[idToken]
	if !ok {
		return nil, fmt.Errorf("token %q rejected", idToken)
	}
	c := *token
	return &c, nil
}

func newAuthFixture(t *testing.T, online *bool) (*AuthUseCase, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	verifier := fakeVerifier{
		"tok-user":      {UID: "u1", Email: "sam@example.com", DisplayName: "Sam"},
		"tok-counselor": {UID: "c1", Email: "dr.lee@clinic.org", DisplayName: "Dr. Lee"},
		// u1 again, after an OTP sign-in
		"tok-phone": {UID: "u1", Email: "sam@example.com", DisplayName: "Sam", PhoneNumber: "+15550100"},
	}
	connectivity := service.ConnectivityCheckerFunc(func(ctx context.Context) error {
		if online != nil && !*online {
			return fmt.Errorf("dial tcp: network is unreachable")
		}
		return nil
	})
	return NewAuthUseCase(store.Profiles(), verifier, connectivity), store
}

func TestSignIn_UserCreatesProfile(t *testing.T) {
	uc, store := newAuthFixture(t, nil)
	ctx := context.Background()

	session, err := uc.SignIn(ctx, "tok-user", entity.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, entity.RoleUser, session.Role)
	assert.Equal(t, "Sam", session.DisplayName)

	profile, err := store.Profiles().GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", profile.Email)
	assert.Equal(t, entity.RoleUser, profile.Role)

	_, err = uc.SignIn(ctx, "tok-user", entity.RoleUser)
	assert.NoError(t, err, "second sign-in reuses the profile")
}

func TestSignIn_RecordsLastLoginAndPhone(t *testing.T) {
	uc, store := newAuthFixture(t, nil)
	ctx := context.Background()

	_, err := uc.SignIn(ctx, "tok-user", entity.RoleUser)
	require.NoError(t, err)
	first, err := store.Profiles().GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, first.LastLogin)
	assert.Empty(t, first.PhoneNumber)

	session, err := uc.SignIn(ctx, "tok-phone", entity.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "+15550100", session.PhoneNumber)

	second, err := store.Profiles().GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "+15550100", second.PhoneNumber)
	require.NotNil(t, second.LastLogin)
	assert.True(t, second.LastLogin.After(*first.LastLogin))

	// a later sign-in without a phone claim keeps the stored number
	session, err = uc.SignIn(ctx, "tok-user", entity.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "+15550100", session.PhoneNumber)
}

func TestSignIn_InvalidToken(t *testing.T) {
	uc, _ := newAuthFixture(t, nil)

	_, err := uc.SignIn(context.Background(), "forged", entity.RoleUser)
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))

	_, err = uc.SignIn(context.Background(), "  ", entity.RoleUser)
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}

func TestSignIn_OfflineFailsFast(t *testing.T) {
	online := false
	uc, _ := newAuthFixture(t, &online)

	_, err := uc.SignIn(context.Background(), "tok-user", entity.RoleUser)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeNetwork, appErr.Code)
	assert.Contains(t, appErr.Message, "No internet connection")
}

func TestSignIn_UnverifiedCounselorIsForbidden(t *testing.T) {
	uc, store := newAuthFixture(t, nil)

	_, err := uc.SignIn(context.Background(), "tok-counselor", entity.RoleCounselor)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = store.Profiles().GetCounselor(context.Background(), "c1")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "no profile provisioned")
}

func TestSignIn_AllowListedCounselorIsProvisioned(t *testing.T) {
	uc, store := newAuthFixture(t, nil)
	ctx := context.Background()
	store.AllowCounselorEmail("dr.lee@clinic.org")

	session, err := uc.SignIn(ctx, "tok-counselor", entity.RoleCounselor)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleCounselor, session.Role)

	profile, err := store.Profiles().GetCounselor(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, profile.IsVerified)

	// counselor accounts cannot use the user side
	_, err = uc.SignIn(ctx, "tok-counselor", entity.RoleUser)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	// provisioned counselors no longer depend on the allow-list lookup
	session, err = uc.SignIn(ctx, "tok-counselor", entity.RoleCounselor)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Lee", session.DisplayName)
}

func TestSignIn_UnknownRole(t *testing.T) {
	uc, _ := newAuthFixture(t, nil)
	_, err := uc.SignIn(context.Background(), "tok-user", entity.Role("admin"))
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestSignUp(t *testing.T) {
	uc, store := newAuthFixture(t, nil)
	ctx := context.Background()

	session, err := uc.SignUp(ctx, "tok-user", " Sammy ")
	require.NoError(t, err)
	assert.Equal(t, "Sammy", session.DisplayName)

	profile, err := store.Profiles().GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Sammy", profile.DisplayName)

	_, err = uc.SignUp(ctx, "tok-user", "Sam")
	assert.True(t, errors.Is(err, errors.CodeConflict))
}

func TestAuthenticate_ResolvesRoleFromProfiles(t *testing.T) {
	uc, store := newAuthFixture(t, nil)
	ctx := context.Background()

	session, err := uc.Authenticate(ctx, "tok-user")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleUser, session.Role)

	require.NoError(t, store.Profiles().CreateCounselor(ctx, &entity.Profile{ID: "c1", IsVerified: true}))
	session, err = uc.Authenticate(ctx, "tok-counselor")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleCounselor, session.Role)
	assert.True(t, session.IsCounselor())
}

func TestDeviceTokens(t *testing.T) {
	uc, store := newAuthFixture(t, nil)
	ctx := context.Background()

	session, err := uc.SignIn(ctx, "tok-user", entity.RoleUser)
	require.NoError(t, err)

	assert.True(t, errors.Is(uc.RegisterDeviceToken(ctx, session, " "), errors.CodeValidation))
	require.NoError(t, uc.RegisterDeviceToken(ctx, session, "fcm-1"))
	require.NoError(t, uc.RegisterDeviceToken(ctx, session, "fcm-1"))
	require.NoError(t, uc.RegisterDeviceToken(ctx, session, "fcm-2"))

	profile, err := store.Profiles().GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fcm-1", "fcm-2"}, profile.FCMTokens)

	require.NoError(t, uc.UnregisterDeviceToken(ctx, session, "fcm-1"))
	profile, err = store.Profiles().GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fcm-2"}, profile.FCMTokens)
}
