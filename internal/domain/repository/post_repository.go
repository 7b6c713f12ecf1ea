package repository

import (
	"context"

	"speak/internal/domain/entity"
)

// PostQuery filters a live post listing. Zero values mean "no filter".
type PostQuery struct {
	UserID     string
	Status     entity.PostStatus
	AcceptedBy string
	Archived   *bool
	// Results are ordered by createdAt; Ascending flips the default descending order.
	Ascending bool
}

type PostRepository interface {
	Create(ctx context.Context, post *entity.Post) error
	GetByID(ctx context.Context, id string) (*entity.Post, error)
	List(ctx context.Context, q PostQuery) ([]*entity.Post, error)
	Watch(ctx context.Context, q PostQuery) *Stream[*entity.Post]

	// UpdateIfPending applies the update only while the post is still pending, failing
	// with INVALID_STATE otherwise. The check and write are one atomic unit.
	UpdateIfPending(ctx context.Context, id string, update entity.PostUpdate) (*entity.Post, error)
	// DeleteIfPending removes the post only while it is still pending.
	DeleteIfPending(ctx context.Context, id string) (*entity.Post, error)

	// Accept transitions the post from pending to accepted for counselorID and takes the
	// counselor's engagement lock in the same transaction. It fails with CONFLICT when the
	// counselor already holds an accepted post.
	Accept(ctx context.Context, id, counselorID string) (*entity.Post, error)
	// Complete transitions accepted to completed and releases the engagement lock.
	Complete(ctx context.Context, id string) (*entity.Post, error)
	SetArchived(ctx context.Context, id string, archived bool) (*entity.Post, error)
	// TouchLastMessage refreshes lastMessageAt and updatedAt.
	TouchLastMessage(ctx context.Context, id string) error

	// ActiveEngagement returns the counselor's accepted post, or nil.
	ActiveEngagement(ctx context.Context, counselorID string) (*entity.Post, error)
	// WatchEngagement emits the counselor's accepted posts (zero or one) on every change.
	WatchEngagement(ctx context.Context, counselorID string) *Stream[*entity.Post]
}
