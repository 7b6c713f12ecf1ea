package handler

import (
	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/middleware"
	"speak/internal/domain/entity"
	"speak/internal/usecase"
	"speak/pkg/response"
)

type AuthHandler struct {
	authUseCase *usecase.AuthUseCase
}

func NewAuthHandler(authUseCase *usecase.AuthUseCase) *AuthHandler {
	return &AuthHandler{
		authUseCase: authUseCase,
	}
}

type signInRequest struct {
	IDToken string `json:"id_token" validate:"required"`
	Role    string `json:"role" validate:"omitempty,oneof=user counselor"`
}

type signUpRequest struct {
	IDToken     string `json:"id_token" validate:"required"`
	DisplayName string `json:"display_name" validate:"omitempty,max=100"`
}

type deviceTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *AuthHandler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	session, err := h.authUseCase.SignIn(c.Request().Context(), req.IDToken, entity.Role(req.Role))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, session)
}

func (h *AuthHandler) SignUp(c echo.Context) error {
	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	session, err := h.authUseCase.SignUp(c.Request().Context(), req.IDToken, req.DisplayName)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, session)
}

// Me returns the session resolved by the auth middleware.
func (h *AuthHandler) Me(c echo.Context) error {
	return response.Success(c, middleware.SessionFrom(c))
}

func (h *AuthHandler) RegisterDeviceToken(c echo.Context) error {
	var req deviceTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := h.authUseCase.RegisterDeviceToken(c.Request().Context(), middleware.SessionFrom(c), req.Token); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}

func (h *AuthHandler) UnregisterDeviceToken(c echo.Context) error {
	var req deviceTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := h.authUseCase.UnregisterDeviceToken(c.Request().Context(), middleware.SessionFrom(c), req.Token); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}
