package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"speak/internal/domain/entity"
	"speak/internal/usecase"
	"speak/pkg/errors"
	"speak/pkg/response"
)

const sessionKey = "session"

type AuthMiddleware struct {
	authUseCase *usecase.AuthUseCase
}

func NewAuthMiddleware(authUseCase *usecase.AuthUseCase) *AuthMiddleware {
	return &AuthMiddleware{
		authUseCase: authUseCase,
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(c echo.Context) (string, bool) {
	parts := strings.Split(c.Request().Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Authenticate resolves the caller's Session from the bearer ID token and stores it on
// the context for the handlers.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") == "" {
			return response.Error(c, errors.Unauthorized("Authorization header is required", nil))
		}
		idToken, ok := BearerToken(c)
		if !ok {
			return response.Error(c, errors.Unauthorized("Invalid authorization format", nil))
		}

		session, err := m.authUseCase.Authenticate(c.Request().Context(), idToken)
		if err != nil {
			return response.Error(c, err)
		}

		c.Set(sessionKey, session)
		c.Set("uid", session.UserID)
		return next(c)
	}
}

// RequireRole lets through only sessions with the given role. Use after Authenticate.
func RequireRole(role entity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := SessionFrom(c)
			if session == nil || session.Role != role {
				return response.Error(c, errors.Forbidden("This action requires the "+string(role)+" role", nil))
			}
			return next(c)
		}
	}
}

func SessionFrom(c echo.Context) *entity.Session {
	session, _ := c.Get(sessionKey).(*entity.Session)
	return session
}
