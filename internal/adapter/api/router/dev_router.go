package router

import (
	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/handler"
)

func SetupDevRouter(e *echo.Echo, environment string) {
	if environment != "development" {
		return
	}
	devTokenHandler := handler.GetDevTokenHandler()

	e.GET("/_dev/token", devTokenHandler.GenerateToken)
	e.POST("/_dev/verified-counselors", devTokenHandler.AllowCounselor)
}
