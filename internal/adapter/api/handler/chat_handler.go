package handler

import (
	"strings"

	"github.com/labstack/echo/v4"

	"speak/internal/adapter/api/middleware"
	"speak/internal/domain/entity"
	"speak/internal/usecase"
	"speak/pkg/errors"
	"speak/pkg/response"
	"speak/pkg/utils"
)

const maxAttachmentSize = 20 << 20

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type markReadResponse struct {
	Count int `json:"count"`
}

// ListMessages returns the conversation in createdAt order.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	messages, err := h.chatUseCase.ListMessages(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	if messages == nil {
		messages = []*entity.Message{}
	}
	return response.List(c, utils.Paginate(messages, utils.GetPaginationParams(c)), len(messages))
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.chatUseCase.SendText(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"), req.Text)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

// UploadAttachment takes a multipart "file" part and an optional "kind" field
// (image or file). Without a kind, image content types are sent as images.
func (h *ChatHandler) UploadAttachment(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.Validation("file is required"))
	}
	if header.Size > maxAttachmentSize {
		return response.Error(c, errors.Validation("Attachment is too large"))
	}

	contentType := header.Header.Get("Content-Type")
	kind := entity.MessageType(c.FormValue("kind"))
	if kind == "" {
		kind = entity.MessageTypeFile
		if strings.HasPrefix(contentType, "image/") {
			kind = entity.MessageTypeImage
		}
	}

	file, err := header.Open()
	if err != nil {
		return response.Error(c, errors.BadRequest("Failed to read attachment", err))
	}
	defer file.Close()

	message, err := h.chatUseCase.SendAttachment(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"), usecase.AttachmentInput{
		Kind:        kind,
		FileName:    header.Filename,
		ContentType: contentType,
		Body:        file,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	count, err := h.chatUseCase.MarkRead(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, markReadResponse{Count: count})
}

func (h *ChatHandler) DeleteMessage(c echo.Context) error {
	if err := h.chatUseCase.DeleteMessage(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"), c.Param("messageId")); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}
