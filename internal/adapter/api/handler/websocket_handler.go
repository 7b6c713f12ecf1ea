package handler

import (
	"context"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/middleware"
	ws "speak/internal/infrastructure/websocket"
	"speak/internal/usecase"
	"speak/pkg/errors"
	"speak/pkg/logger"
	"speak/pkg/response"
)

type WebSocketHandler struct {
	wsManager   *ws.Manager
	authUseCase *usecase.AuthUseCase
	baseCtx     context.Context
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketHandler takes the server context: connections outlive the upgrade request.
func NewWebSocketHandler(baseCtx context.Context, wsManager *ws.Manager, authUseCase *usecase.AuthUseCase) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:   wsManager,
		authUseCase: authUseCase,
		baseCtx:     baseCtx,
	}
}

// HandleWebSocket authenticates with ?token= (browsers cannot set headers on the
// upgrade) or a bearer header, then hands the connection to the manager.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	idToken := c.QueryParam("token")
	if idToken == "" {
		idToken, _ = middleware.BearerToken(c)
	}
	if idToken == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	session, err := h.authUseCase.Authenticate(c.Request().Context(), idToken)
	if err != nil {
		return response.Error(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed for %s: %v", session.UserID, err)
		return nil
	}

	client := ws.NewClient(h.baseCtx, session, conn)
	if !h.wsManager.Attach(client) {
		conn.Close()
		return nil
	}

	go client.WritePump()
	go client.ReadPump(h.wsManager)

	return nil
}
