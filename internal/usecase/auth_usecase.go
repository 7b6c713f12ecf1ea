package usecase

import (
	"context"
	"strings"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/internal/domain/service"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

type AuthUseCase struct {
	profiles     repository.ProfileRepository
	verifier     service.TokenVerifier
	connectivity service.ConnectivityChecker
}

func NewAuthUseCase(profiles repository.ProfileRepository, verifier service.TokenVerifier, connectivity service.ConnectivityChecker) *AuthUseCase {
	return &AuthUseCase{
		profiles:     profiles,
		verifier:     verifier,
		connectivity: connectivity,
	}
}

func (uc *AuthUseCase) verify(ctx context.Context, idToken string) (*service.VerifiedToken, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, errors.Unauthorized("Missing ID token", nil)
	}
	token, err := uc.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}
	return token, nil
}

func newSession(token *service.VerifiedToken, role entity.Role, profile *entity.Profile) *entity.Session {
	session := &entity.Session{
		UserID:      token.UID,
		Role:        role,
		Email:       token.Email,
		DisplayName: token.DisplayName,
		PhotoURL:    token.PhotoURL,
		PhoneNumber: token.PhoneNumber,
	}
	if profile != nil {
		if session.DisplayName == "" {
			session.DisplayName = profile.DisplayName
		}
		if session.Email == "" {
			session.Email = profile.Email
		}
		if session.PhotoURL == "" {
			session.PhotoURL = profile.ProfilePic
		}
		if session.PhoneNumber == "" {
			session.PhoneNumber = profile.PhoneNumber
		}
	}
	return session
}

// SignIn fails fast with a NetworkError when the backend is unreachable, then applies the
// role guard: counselors must be verified, and counselor accounts cannot sign in as users.
func (uc *AuthUseCase) SignIn(ctx context.Context, idToken string, role entity.Role) (*entity.Session, error) {
	if uc.connectivity != nil {
		if err := uc.connectivity.Check(ctx); err != nil {
			logger.Warn("Sign-in refused, backend unreachable: %v", err)
			return nil, errors.Network("No internet connection. Please check your network and try again", err)
		}
	}

	token, err := uc.verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	switch role {
	case entity.RoleCounselor:
		return uc.signInCounselor(ctx, token)
	case entity.RoleUser, "":
		return uc.signInUser(ctx, token)
	}
	return nil, errors.Validation("Unknown role")
}

func (uc *AuthUseCase) signInCounselor(ctx context.Context, token *service.VerifiedToken) (*entity.Session, error) {
	profile, err := uc.profiles.GetCounselor(ctx, token.UID)
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	if profile != nil && profile.IsVerified {
		uc.recordLogin(ctx, token, entity.RoleCounselor)
		logger.Info("Counselor signed in: %s", token.UID)
		return newSession(token, entity.RoleCounselor, profile), nil
	}

	verified, err := uc.profiles.IsVerifiedCounselorEmail(ctx, token.Email)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, forbid("counselor_sign_in", token.UID, "", "This account is not a verified counselor")
	}

	profile = &entity.Profile{
		ID:          token.UID,
		Email:       token.Email,
		DisplayName: token.DisplayName,
		ProfilePic:  token.PhotoURL,
		PhoneNumber: token.PhoneNumber,
		IsVerified:  true,
	}
	if err := uc.profiles.CreateCounselor(ctx, profile); err != nil {
		return nil, err
	}
	logger.Info("Counselor provisioned from allow-list: %s", token.UID)
	return newSession(token, entity.RoleCounselor, profile), nil
}

func (uc *AuthUseCase) signInUser(ctx context.Context, token *service.VerifiedToken) (*entity.Session, error) {
	if counselor, err := uc.profiles.GetCounselor(ctx, token.UID); err == nil && counselor != nil {
		return nil, forbid("user_sign_in", token.UID, "", "Counselor accounts must sign in as counselors")
	} else if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	profile, err := uc.profiles.GetUser(ctx, token.UID)
	if errors.Is(err, errors.CodeNotFound) {
		return uc.createUser(ctx, token)
	}
	if err != nil {
		return nil, err
	}
	uc.recordLogin(ctx, token, entity.RoleUser)
	logger.Info("User signed in: %s", token.UID)
	return newSession(token, entity.RoleUser, profile), nil
}

// recordLogin is best effort: a stale lastLogin must not block sign-in.
func (uc *AuthUseCase) recordLogin(ctx context.Context, token *service.VerifiedToken, role entity.Role) {
	if err := uc.profiles.RecordLogin(ctx, token.UID, role, token.PhoneNumber); err != nil {
		logger.Warn("Failed to record sign-in: %s", logger.KV("uid", token.UID, "error", err))
	}
}

func (uc *AuthUseCase) createUser(ctx context.Context, token *service.VerifiedToken) (*entity.Session, error) {
	profile := &entity.Profile{
		ID:          token.UID,
		Email:       token.Email,
		DisplayName: token.DisplayName,
		ProfilePic:  token.PhotoURL,
		PhoneNumber: token.PhoneNumber,
	}
	if err := uc.profiles.CreateUser(ctx, profile); err != nil {
		return nil, err
	}
	logger.Info("User profile created: %s", token.UID)
	return newSession(token, entity.RoleUser, profile), nil
}

// SignUp creates users/{uid} for a freshly registered identity.
func (uc *AuthUseCase) SignUp(ctx context.Context, idToken, displayName string) (*entity.Session, error) {
	token, err := uc.verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if displayName = strings.TrimSpace(displayName); displayName != "" {
		token.DisplayName = displayName
	}

	if _, err := uc.profiles.GetUser(ctx, token.UID); err == nil {
		return nil, errors.Conflict("Account already exists")
	} else if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	return uc.createUser(ctx, token)
}

// Authenticate resolves the session for an API request. The role comes from which
// profile collection holds the caller.
func (uc *AuthUseCase) Authenticate(ctx context.Context, idToken string) (*entity.Session, error) {
	token, err := uc.verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	counselor, err := uc.profiles.GetCounselor(ctx, token.UID)
	if err == nil {
		return newSession(token, entity.RoleCounselor, counselor), nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	user, err := uc.profiles.GetUser(ctx, token.UID)
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	return newSession(token, entity.RoleUser, user), nil
}

func (uc *AuthUseCase) RegisterDeviceToken(ctx context.Context, session *entity.Session, token string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.Validation("Device token is required")
	}
	return uc.profiles.AddDeviceToken(ctx, session.UserID, session.Role, token)
}

func (uc *AuthUseCase) UnregisterDeviceToken(ctx context.Context, session *entity.Session, token string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	return uc.profiles.RemoveDeviceToken(ctx, session.UserID, session.Role, strings.TrimSpace(token))
}
