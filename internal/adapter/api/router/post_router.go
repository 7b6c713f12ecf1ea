package router

import (
	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/handler"
	"speak/internal/adapter/api/middleware"
	"speak/internal/domain/entity"
)

func SetupPostRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	postHandler := handler.GetPostHandler()

	e.GET("/v1/categories", postHandler.Categories)

	posts := e.Group("/v1/posts")
	posts.Use(authMiddleware.Authenticate)
	posts.POST("", postHandler.CreatePost)
	posts.GET("", postHandler.ListPosts)
	posts.GET("/:id", postHandler.GetPost)
	posts.PATCH("/:id", postHandler.EditPost)
	posts.DELETE("/:id", postHandler.DeletePost)
	posts.POST("/:id/accept", postHandler.AcceptPost)
	posts.POST("/:id/complete", postHandler.CompletePost)
	posts.PUT("/:id/archive", postHandler.ArchivePost)

	counselor := e.Group("/v1/counselor")
	counselor.Use(authMiddleware.Authenticate, middleware.RequireRole(entity.RoleCounselor))
	counselor.GET("/posts", postHandler.CounselorPosts)
}
