package usecase

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/internal/infrastructure/metrics"
	"speak/internal/infrastructure/ratelimit"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

type ChatUseCase struct {
	posts       repository.PostRepository
	messages    repository.MessageRepository
	uploader    *AttachmentUploader
	notifier    Notifier
	rateLimiter *ratelimit.RateLimiter

	mu        sync.Mutex
	uploading map[string]bool
}

func NewChatUseCase(
	posts repository.PostRepository,
	messages repository.MessageRepository,
	uploader *AttachmentUploader,
	notifier Notifier,
	rateLimiter *ratelimit.RateLimiter,
) *ChatUseCase {
	return &ChatUseCase{
		posts:       posts,
		messages:    messages,
		uploader:    uploader,
		notifier:    notifier,
		rateLimiter: rateLimiter,
		uploading:   make(map[string]bool),
	}
}

type AttachmentInput struct {
	Kind        entity.MessageType
	FileName    string
	ContentType string
	Body        io.Reader
}

// participantPost loads the post and checks the caller takes part in it.
func (uc *ChatUseCase) participantPost(ctx context.Context, session *entity.Session, postID, action string) (*entity.Post, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	post, err := uc.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.IsParticipant(session.UserID) {
		return nil, forbid(action, session.UserID, postID, "You are not a participant of this conversation")
	}
	return post, nil
}

func (uc *ChatUseCase) sendablePost(ctx context.Context, session *entity.Session, postID, action string) (*entity.Post, error) {
	post, err := uc.participantPost(ctx, session, postID, action)
	if err != nil {
		return nil, err
	}
	if post.Status != entity.PostStatusAccepted {
		return nil, errors.InvalidState("Messages can only be sent while the request is accepted")
	}
	return post, nil
}

// allowSend takes one send token; call it last so refused attempts cost nothing.
func (uc *ChatUseCase) allowSend(session *entity.Session) error {
	if uc.rateLimiter == nil {
		return nil
	}
	if allowed, wait := uc.rateLimiter.Allow(session.UserID, ratelimit.ActionSendMessage); !allowed {
		logger.Warn("Send rate limited: %s", logger.KV("user", session.UserID, "wait", wait))
		return errors.TooManyRequests("You are sending messages too quickly")
	}
	return nil
}

// Subscribe streams the post's messages in createdAt order on every change.
func (uc *ChatUseCase) Subscribe(ctx context.Context, session *entity.Session, postID string) (*repository.Stream[*entity.Message], error) {
	if _, err := uc.participantPost(ctx, session, postID, "subscribe"); err != nil {
		return nil, err
	}
	return uc.messages.Watch(ctx, postID), nil
}

func (uc *ChatUseCase) ListMessages(ctx context.Context, session *entity.Session, postID string) ([]*entity.Message, error) {
	if _, err := uc.participantPost(ctx, session, postID, "list_messages"); err != nil {
		return nil, err
	}
	return uc.messages.List(ctx, postID)
}

func (uc *ChatUseCase) SendText(ctx context.Context, session *entity.Session, postID, text string) (*entity.Message, error) {
	return uc.SendTextWithID(ctx, session, postID, "", text)
}

// SendTextWithID stores the message under a client-chosen UUID so an optimistic copy can be
// matched to the stored one. An empty messageID lets the store assign one.
func (uc *ChatUseCase) SendTextWithID(ctx context.Context, session *entity.Session, postID, messageID, text string) (*entity.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Validation("Message cannot be empty")
	}
	if messageID != "" {
		if _, err := uuid.Parse(messageID); err != nil {
			return nil, errors.Validation("Message id must be a UUID")
		}
	}
	post, err := uc.sendablePost(ctx, session, postID, "send_message")
	if err != nil {
		return nil, err
	}
	if err := uc.allowSend(session); err != nil {
		return nil, err
	}

	message := &entity.Message{
		ID:       messageID,
		SenderID: session.UserID,
		Type:     entity.MessageTypeText,
		Text:     text,
	}
	if err := uc.messages.Create(ctx, postID, message); err != nil {
		return nil, err
	}

	uc.afterSend(ctx, session, post, message)
	return message, nil
}

// IsUploading reports whether the caller has an attachment upload in flight for postID.
func (uc *ChatUseCase) IsUploading(userID, postID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.uploading[userID+"/"+postID]
}

func (uc *ChatUseCase) beginUpload(userID, postID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	key := userID + "/" + postID
	if uc.uploading[key] {
		return false
	}
	uc.uploading[key] = true
	return true
}

func (uc *ChatUseCase) endUpload(userID, postID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.uploading, userID+"/"+postID)
}

// SendAttachment uploads first and only then creates the message, so a failed upload
// leaves no message behind.
func (uc *ChatUseCase) SendAttachment(ctx context.Context, session *entity.Session, postID string, input AttachmentInput) (*entity.Message, error) {
	if input.Body == nil {
		return nil, errors.Validation("Attachment is empty")
	}
	post, err := uc.sendablePost(ctx, session, postID, "send_attachment")
	if err != nil {
		return nil, err
	}

	if !uc.beginUpload(session.UserID, postID) {
		return nil, errors.InvalidState("Another upload is already in progress")
	}
	defer uc.endUpload(session.UserID, postID)

	if err := uc.allowSend(session); err != nil {
		return nil, err
	}

	attachment, err := uc.uploader.Upload(ctx, postID, input.Kind, input.FileName, input.ContentType, input.Body)
	if err != nil {
		return nil, err
	}

	message := &entity.Message{
		SenderID:    session.UserID,
		Type:        attachment.Kind,
		FileURL:     attachment.URL,
		FileName:    attachment.FileName,
		StoragePath: attachment.Key,
	}
	if message.FileName == "" {
		message.FileName = "image.jpg"
	}
	if err := uc.messages.Create(ctx, postID, message); err != nil {
		uc.uploader.Remove(ctx, message)
		return nil, err
	}

	uc.afterSend(ctx, session, post, message)
	return message, nil
}

func (uc *ChatUseCase) afterSend(ctx context.Context, session *entity.Session, post *entity.Post, message *entity.Message) {
	metrics.MessagesSent.WithLabelValues(string(message.Kind())).Inc()

	if err := uc.posts.TouchLastMessage(ctx, post.ID); err != nil {
		logger.Warn("Failed to refresh lastMessageAt for %s: %v", post.ID, err)
	}

	if uc.notifier != nil {
		recipient := post.OtherParticipant(session.UserID)
		uc.notifier.Dispatch(recipient, entity.NewMessageNotification(post.ID, session.DisplayName, message))
	}
}

// MarkRead flips every unread message the caller did not send, atomically. Running it
// again once everything is read changes nothing.
func (uc *ChatUseCase) MarkRead(ctx context.Context, session *entity.Session, postID string) (int, error) {
	if _, err := uc.participantPost(ctx, session, postID, "mark_read"); err != nil {
		return 0, err
	}
	count, err := uc.messages.MarkRead(ctx, postID, session.UserID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.Debug("Marked read: %s", logger.KV("post", postID, "reader", session.UserID, "count", count))
	}
	return count, nil
}

// DeleteMessage is allowed to the sender only. Blob cleanup is best effort.
func (uc *ChatUseCase) DeleteMessage(ctx context.Context, session *entity.Session, postID, messageID string) error {
	if _, err := uc.participantPost(ctx, session, postID, "delete_message"); err != nil {
		return err
	}

	message, err := uc.messages.GetByID(ctx, postID, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != session.UserID {
		return forbid("delete_message", session.UserID, messageID, "Only the sender can delete this message")
	}

	if err := uc.messages.Delete(ctx, postID, messageID); err != nil {
		return err
	}
	if message.HasAttachment() {
		uc.uploader.Remove(ctx, message)
	}
	return nil
}

// Channel binds the message operations to one session and post.
func (uc *ChatUseCase) Channel(session *entity.Session, postID string) *MessageChannel {
	return &MessageChannel{uc: uc, session: session, postID: postID}
}

// MessageChannel is the Message Channel of one participant in one conversation.
type MessageChannel struct {
	uc      *ChatUseCase
	session *entity.Session
	postID  string
}

func (c *MessageChannel) PostID() string {
	return c.postID
}

func (c *MessageChannel) Session() *entity.Session {
	return c.session
}

func (c *MessageChannel) Subscribe(ctx context.Context) (*repository.Stream[*entity.Message], error) {
	return c.uc.Subscribe(ctx, c.session, c.postID)
}

func (c *MessageChannel) SendText(ctx context.Context, messageID, text string) (*entity.Message, error) {
	return c.uc.SendTextWithID(ctx, c.session, c.postID, messageID, text)
}

func (c *MessageChannel) SendAttachment(ctx context.Context, input AttachmentInput) (*entity.Message, error) {
	return c.uc.SendAttachment(ctx, c.session, c.postID, input)
}

func (c *MessageChannel) MarkRead(ctx context.Context) (int, error) {
	return c.uc.MarkRead(ctx, c.session, c.postID)
}

func (c *MessageChannel) DeleteMessage(ctx context.Context, messageID string) error {
	return c.uc.DeleteMessage(ctx, c.session, c.postID, messageID)
}

func (c *MessageChannel) IsUploading() bool {
	return c.uc.IsUploading(c.session.UserID, c.postID)
}
