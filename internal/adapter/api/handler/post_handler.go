package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/middleware"
	"speak/internal/domain/entity"
	"speak/internal/usecase"
	"speak/pkg/errors"
	"speak/pkg/response"
	"speak/pkg/utils"
)

type PostHandler struct {
	postUseCase *usecase.PostUseCase
}

func NewPostHandler(postUseCase *usecase.PostUseCase) *PostHandler {
	return &PostHandler{
		postUseCase: postUseCase,
	}
}

// content rules live in the use case so clients get its wording
type createPostRequest struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

type editPostRequest struct {
	Category *string `json:"category"`
	Content  *string `json:"content"`
}

type archivePostRequest struct {
	Archived *bool `json:"archived" validate:"required"`
}

func (h *PostHandler) CreatePost(c echo.Context) error {
	var req createPostRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	post, err := h.postUseCase.CreatePost(c.Request().Context(), middleware.SessionFrom(c), usecase.CreatePostInput{
		Category: req.Category,
		Content:  req.Content,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, post)
}

// ListPosts lists the caller's own posts; ?archived=true selects the archive.
func (h *PostHandler) ListPosts(c echo.Context) error {
	archived := false
	if raw := c.QueryParam("archived"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return response.Error(c, errors.BadRequest("archived must be true or false", err))
		}
		archived = parsed
	}

	posts, err := h.postUseCase.ListUserPosts(c.Request().Context(), middleware.SessionFrom(c), archived)
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, utils.Paginate(posts, utils.GetPaginationParams(c)), len(posts))
}

// CounselorPosts returns the counselor's active engagement, or the pending queue when
// there is none.
func (h *PostHandler) CounselorPosts(c echo.Context) error {
	posts, err := h.postUseCase.CounselorPosts(c.Request().Context(), middleware.SessionFrom(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, utils.Paginate(posts, utils.GetPaginationParams(c)), len(posts))
}

func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.postUseCase.GetPost(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, post)
}

func (h *PostHandler) EditPost(c echo.Context) error {
	var req editPostRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if req.Category == nil && req.Content == nil {
		return response.Error(c, errors.Validation("Nothing to update"))
	}

	post, err := h.postUseCase.EditPost(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"), usecase.EditPostInput{
		Category: req.Category,
		Content:  req.Content,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, post)
}

func (h *PostHandler) DeletePost(c echo.Context) error {
	if err := h.postUseCase.DeletePost(c.Request().Context(), middleware.SessionFrom(c), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}

func (h *PostHandler) AcceptPost(c echo.Context) error {
	post, err := h.postUseCase.AcceptPost(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, post)
}

func (h *PostHandler) CompletePost(c echo.Context) error {
	post, err := h.postUseCase.CompletePost(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, post)
}

func (h *PostHandler) ArchivePost(c echo.Context) error {
	var req archivePostRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	post, err := h.postUseCase.ArchivePost(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"), *req.Archived)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, post)
}

func (h *PostHandler) Categories(c echo.Context) error {
	return response.Success(c, entity.Categories)
}
