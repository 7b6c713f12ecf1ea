package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/internal/infrastructure/metrics"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

type PostUseCase struct {
	posts    repository.PostRepository
	messages repository.MessageRepository
	uploader *AttachmentUploader
}

func NewPostUseCase(posts repository.PostRepository, messages repository.MessageRepository, uploader *AttachmentUploader) *PostUseCase {
	return &PostUseCase{
		posts:    posts,
		messages: messages,
		uploader: uploader,
	}
}

type CreatePostInput struct {
	Category string
	Content  string
}

type EditPostInput struct {
	Category *string
	Content  *string
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	n := utf8.RuneCountInString(content)
	switch {
	case n == 0:
		return "", errors.Validation("Please describe your concern")
	case n < entity.MinPostContentLength:
		return "", errors.Validation(fmt.Sprintf("Please provide more details (at least %d characters)", entity.MinPostContentLength))
	case n > entity.MaxPostContentLength:
		return "", errors.Validation(fmt.Sprintf("Content must be at most %d characters", entity.MaxPostContentLength))
	}
	return content, nil
}

func validateCategory(category string) (string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return "", errors.Validation("Please select a category")
	}
	return category, nil
}

func requireSession(session *entity.Session) error {
	if session == nil || session.UserID == "" {
		return errors.Unauthorized("Sign in required", nil)
	}
	return nil
}

func forbid(action, userID, resourceID, message string) error {
	err := errors.Forbidden(message, nil)
	logger.Integrity(action, userID, resourceID, err)
	return err
}

func (uc *PostUseCase) CreatePost(ctx context.Context, session *entity.Session, input CreatePostInput) (*entity.Post, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if session.IsCounselor() {
		return nil, forbid("create_post", session.UserID, "", "Counselors cannot create support requests")
	}

	category, err := validateCategory(input.Category)
	if err != nil {
		return nil, err
	}
	content, err := validateContent(input.Content)
	if err != nil {
		return nil, err
	}

	post := &entity.Post{
		UserID:    session.UserID,
		UserEmail: session.Email,
		Category:  category,
		Icon:      entity.CategoryIcon(category),
		Content:   content,
		Status:    entity.PostStatusPending,
	}
	if err := uc.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	metrics.PostTransitions.WithLabelValues("created").Inc()
	logger.Info("Post created: %s", logger.KV("post", post.ID, "user", session.UserID, "category", category))
	return post, nil
}

// GetPost is visible to its participants, and to counselors while it is still pending.
func (uc *PostUseCase) GetPost(ctx context.Context, session *entity.Session, postID string) (*entity.Post, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	post, err := uc.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.IsParticipant(session.UserID) {
		return post, nil
	}
	if session.IsCounselor() && post.Status == entity.PostStatusPending {
		return post, nil
	}
	return nil, forbid("get_post", session.UserID, postID, "You do not have access to this request")
}

func (uc *PostUseCase) ownedPost(ctx context.Context, session *entity.Session, postID, action string) (*entity.Post, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	post, err := uc.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.IsOwner(session.UserID) {
		return nil, forbid(action, session.UserID, postID, "Only the owner can modify this request")
	}
	return post, nil
}

func (uc *PostUseCase) EditPost(ctx context.Context, session *entity.Session, postID string, input EditPostInput) (*entity.Post, error) {
	if _, err := uc.ownedPost(ctx, session, postID, "edit_post"); err != nil {
		return nil, err
	}

	var update entity.PostUpdate
	if input.Category != nil {
		category, err := validateCategory(*input.Category)
		if err != nil {
			return nil, err
		}
		update.Category = &category
	}
	if input.Content != nil {
		content, err := validateContent(*input.Content)
		if err != nil {
			return nil, err
		}
		update.Content = &content
	}

	post, err := uc.posts.UpdateIfPending(ctx, postID, update)
	if err != nil {
		return nil, err
	}
	logger.Info("Post edited: %s", logger.KV("post", postID, "user", session.UserID))
	return post, nil
}

// DeletePost removes a pending post, then sweeps anything left under it.
func (uc *PostUseCase) DeletePost(ctx context.Context, session *entity.Session, postID string) error {
	if _, err := uc.ownedPost(ctx, session, postID, "delete_post"); err != nil {
		return err
	}

	if _, err := uc.posts.DeleteIfPending(ctx, postID); err != nil {
		return err
	}
	metrics.PostTransitions.WithLabelValues("deleted").Inc()

	orphans, err := uc.messages.DeleteAll(ctx, postID)
	if err != nil {
		logger.Warn("Failed to clean up messages of deleted post %s: %v", postID, err)
		return nil
	}
	for _, m := range orphans {
		if m.HasAttachment() && uc.uploader != nil {
			uc.uploader.Remove(ctx, m)
		}
	}
	logger.Info("Post deleted: %s", logger.KV("post", postID, "user", session.UserID))
	return nil
}

func (uc *PostUseCase) AcceptPost(ctx context.Context, session *entity.Session, postID string) (*entity.Post, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if !session.IsCounselor() {
		return nil, forbid("accept_post", session.UserID, postID, "Only counselors can accept requests")
	}

	post, err := uc.posts.Accept(ctx, postID, session.UserID)
	if err != nil {
		if errors.Is(err, errors.CodeConflict) {
			metrics.AcceptConflicts.Inc()
			logger.Info("Accept refused, counselor already engaged: %s", logger.KV("post", postID, "counselor", session.UserID))
		}
		return nil, err
	}

	metrics.PostTransitions.WithLabelValues("accepted").Inc()
	logger.Info("Post accepted: %s", logger.KV("post", postID, "counselor", session.UserID))
	return post, nil
}

func (uc *PostUseCase) CompletePost(ctx context.Context, session *entity.Session, postID string) (*entity.Post, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	current, err := uc.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !current.IsParticipant(session.UserID) {
		return nil, forbid("complete_post", session.UserID, postID, "Only participants can complete this request")
	}

	post, err := uc.posts.Complete(ctx, postID)
	if err != nil {
		return nil, err
	}
	metrics.PostTransitions.WithLabelValues("completed").Inc()
	logger.Info("Post completed: %s", logger.KV("post", postID, "by", session.UserID))
	return post, nil
}

func (uc *PostUseCase) ArchivePost(ctx context.Context, session *entity.Session, postID string, archived bool) (*entity.Post, error) {
	if _, err := uc.ownedPost(ctx, session, postID, "archive_post"); err != nil {
		return nil, err
	}
	return uc.posts.SetArchived(ctx, postID, archived)
}

func userPostsQuery(session *entity.Session, archived bool) repository.PostQuery {
	return repository.PostQuery{
		UserID:   session.UserID,
		Archived: &archived,
	}
}

func (uc *PostUseCase) ListUserPosts(ctx context.Context, session *entity.Session, archived bool) ([]*entity.Post, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	return uc.posts.List(ctx, userPostsQuery(session, archived))
}

// WatchUserPosts streams the caller's posts with the given archive flag, newest first.
func (uc *PostUseCase) WatchUserPosts(ctx context.Context, session *entity.Session, archived bool) (*repository.Stream[*entity.Post], error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	return uc.posts.Watch(ctx, userPostsQuery(session, archived)), nil
}

var pendingQuery = repository.PostQuery{Status: entity.PostStatusPending}

// CounselorPosts is the one-shot form of WatchCounselorPosts.
func (uc *PostUseCase) CounselorPosts(ctx context.Context, session *entity.Session) ([]*entity.Post, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if !session.IsCounselor() {
		return nil, forbid("list_counselor_posts", session.UserID, "", "Only counselors can view the request queue")
	}

	active, err := uc.posts.ActiveEngagement(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return []*entity.Post{active}, nil
	}
	return uc.posts.List(ctx, pendingQuery)
}

// WatchCounselorPosts emits either the counselor's single accepted post or every pending
// post, never both, switching whenever the engagement starts or ends.
func (uc *PostUseCase) WatchCounselorPosts(ctx context.Context, session *entity.Session) (*repository.Stream[*entity.Post], error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if !session.IsCounselor() {
		return nil, forbid("watch_counselor_posts", session.UserID, "", "Only counselors can view the request queue")
	}

	counselorID := session.UserID
	return repository.NewStream(ctx, func(ctx context.Context, emit func([]*entity.Post)) error {
		engagement := uc.posts.WatchEngagement(ctx, counselorID)
		defer engagement.Stop()

		var pending *repository.Stream[*entity.Post]
		var pendingCh <-chan []*entity.Post
		stopPending := func() {
			if pending != nil {
				pending.Stop()
				pending, pendingCh = nil, nil
			}
		}
		defer stopPending()

		for {
			select {
			case <-ctx.Done():
				return nil

			case snap, ok := <-engagement.Snapshots():
				if !ok {
					return engagement.Err()
				}
				if len(snap) > 0 {
					stopPending()
					emit(snap[:1])
					continue
				}
				if pending == nil {
					pending = uc.posts.Watch(ctx, pendingQuery)
					pendingCh = pending.Snapshots()
				}

			case snap, ok := <-pendingCh:
				if !ok {
					err := pending.Err()
					pending, pendingCh = nil, nil
					if err != nil {
						return err
					}
					continue
				}
				emit(snap)
			}
		}
	}), nil
}
