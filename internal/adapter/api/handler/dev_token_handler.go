package handler

import (
	"strings"

	"github.com/labstack/echo/v4"

	"speak/internal/infrastructure/firebase"
	"speak/pkg/errors"
	"speak/pkg/response"
)

// DevTokenHandler serves development helpers. With a Firebase client it mints custom
// tokens; without one (memory store) it issues tokens for the development verifier.
type DevTokenHandler struct {
	firebaseAuth   *firebase.FirebaseAuthClient
	allowCounselor func(email string)
}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler(firebaseAuth *firebase.FirebaseAuthClient, allowCounselor func(email string)) *DevTokenHandler {
	return &DevTokenHandler{
		firebaseAuth:   firebaseAuth,
		allowCounselor: allowCounselor,
	}
}

func SetupDevTokenHandler(firebaseAuth *firebase.FirebaseAuthClient, allowCounselor func(email string)) {
	devTokenHandler = NewDevTokenHandler(firebaseAuth, allowCounselor)
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

type allowCounselorRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// GenerateToken handles GET /_dev/token?uid=&email=&name=&role=
func (h *DevTokenHandler) GenerateToken(c echo.Context) error {
	uid := strings.TrimSpace(c.QueryParam("uid"))
	if uid == "" {
		return response.Error(c, errors.Validation("uid is required"))
	}
	role := c.QueryParam("role")
	if role == "" {
		role = "user"
	}

	if h.firebaseAuth != nil {
		token, err := h.firebaseAuth.GenerateDevToken(c.Request().Context(), uid, role)
		if err != nil {
			return response.Error(c, errors.Internal("Failed to mint custom token", err))
		}
		return response.Success(c, map[string]interface{}{
			"custom_token": token,
			"uid":          uid,
			"role":         role,
		})
	}

	return response.Success(c, map[string]interface{}{
		"token": firebase.DevToken(uid, c.QueryParam("email"), c.QueryParam("name")),
		"uid":   uid,
		"role":  role,
	})
}

// AllowCounselor adds an email to the verified counselor allow-list.
func (h *DevTokenHandler) AllowCounselor(c echo.Context) error {
	if h.allowCounselor == nil {
		return response.Error(c, errors.NotFound("Allow-list editing", nil))
	}

	var req allowCounselorRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	h.allowCounselor(req.Email)
	return response.NoContent(c)
}
