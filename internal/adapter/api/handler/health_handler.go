package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"speak/internal/domain/service"
)

type HealthHandler struct {
	store service.ConnectivityChecker
}

var healthHandler *HealthHandler

func NewHealthHandler(store service.ConnectivityChecker) *HealthHandler {
	return &HealthHandler{
		store: store,
	}
}

func SetupHealthHandler(store service.ConnectivityChecker) {
	healthHandler = NewHealthHandler(store)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// CheckStoreHealth pings the document store.
func (h *HealthHandler) CheckStoreHealth(c echo.Context) error {
	if err := h.store.Check(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "Document store unreachable",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "Document store reachable",
	})
}
