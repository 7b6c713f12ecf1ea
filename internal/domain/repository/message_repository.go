package repository

import (
	"context"

	"speak/internal/domain/entity"
)

type MessageRepository interface {
	// Create appends a message with a generated id and a server-assigned createdAt.
	Create(ctx context.Context, postID string, message *entity.Message) error
	GetByID(ctx context.Context, postID, messageID string) (*entity.Message, error)
	// List returns the post's messages ordered by createdAt ascending.
	List(ctx context.Context, postID string) ([]*entity.Message, error)
	// Watch streams the ordered message list on every change.
	Watch(ctx context.Context, postID string) *Stream[*entity.Message]
	Delete(ctx context.Context, postID, messageID string) error
	// DeleteAll removes every message of a post and returns them for attachment cleanup.
	DeleteAll(ctx context.Context, postID string) ([]*entity.Message, error)
	// MarkRead flips read=true on every unread message not sent by readerID and returns
	// how many messages changed. The flip is atomic up to the store's batch limit; larger
	// backlogs are committed in successive batches.
	MarkRead(ctx context.Context, postID, readerID string) (int, error)
}
