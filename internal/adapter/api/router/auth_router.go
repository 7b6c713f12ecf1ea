package router

import (
	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/handler"
	"speak/internal/adapter/api/middleware"
	"speak/internal/infrastructure/ratelimit"
)

// SetupAuthRouter initializes auth routes
func SetupAuthRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	authHandler := handler.GetAuthHandler()

	// Public routes
	public := e.Group("/v1/auth")
	public.Use(middleware.RateLimit(rateLimiter, ratelimit.ActionAuth))
	public.POST("/signin", authHandler.SignIn)
	public.POST("/signup", authHandler.SignUp)

	// Protected routes
	protected := e.Group("/v1/auth")
	protected.Use(authMiddleware.Authenticate)
	protected.GET("/me", authHandler.Me)
	protected.POST("/device-tokens", authHandler.RegisterDeviceToken)
	protected.DELETE("/device-tokens", authHandler.UnregisterDeviceToken)
}
