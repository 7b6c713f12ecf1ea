package router

import (
	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/handler"
	"speak/internal/adapter/api/middleware"
	"speak/internal/infrastructure/ratelimit"
)

func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	chatHandler := handler.GetChatHandler()

	chat := e.Group("/v1/posts/:id")
	chat.Use(authMiddleware.Authenticate)
	chat.GET("/messages", chatHandler.ListMessages)
	chat.POST("/messages", chatHandler.SendMessage)
	chat.PUT("/messages/read", chatHandler.MarkRead)
	chat.DELETE("/messages/:messageId", chatHandler.DeleteMessage)
	chat.POST("/attachments", chatHandler.UploadAttachment, middleware.RateLimit(rateLimiter, ratelimit.ActionUpload))
}
