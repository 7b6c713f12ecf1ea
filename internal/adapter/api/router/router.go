package router

import (
	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/middleware"
	"speak/internal/infrastructure/ratelimit"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	SetupAuthRouter(e, authMiddleware, rateLimiter)
	SetupPostRouter(e, authMiddleware)
	SetupChatRouter(e, authMiddleware, rateLimiter)
	SetupHealthRouter(e)
}
