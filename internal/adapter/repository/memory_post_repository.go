package repository

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/pkg/errors"
)

type memoryPostRepository struct {
	store *MemoryStore
}

func (r *memoryPostRepository) Create(ctx context.Context, post *entity.Post) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	now := s.serverTime()
	post.CreatedAt = now
	post.UpdatedAt = now
	s.posts[post.ID] = post.Clone()
	s.changed()
	return nil
}

func (r *memoryPostRepository) GetByID(ctx context.Context, id string) (*entity.Post, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, errors.NotFound("Post", nil)
	}
	return post.Clone(), nil
}

// caller holds mu
func (r *memoryPostRepository) query(q repository.PostQuery) []*entity.Post {
	var out []*entity.Post
	for _, p := range r.store.posts {
		if q.UserID != "" && p.UserID != q.UserID {
			continue
		}
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		if q.AcceptedBy != "" && p.AcceptedByID() != q.AcceptedBy {
			continue
		}
		if q.Archived != nil && p.Archived != *q.Archived {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memoryPostRepository) List(ctx context.Context, q repository.PostQuery) ([]*entity.Post, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.query(q), nil
}

func (r *memoryPostRepository) Watch(ctx context.Context, q repository.PostQuery) *repository.Stream[*entity.Post] {
	return repository.NewStream(ctx, watchQuery(r.store, func() []*entity.Post {
		return r.query(q)
	}))
}

func (r *memoryPostRepository) UpdateIfPending(ctx context.Context, id string, update entity.PostUpdate) (*entity.Post, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, errors.NotFound("Post", nil)
	}
	if !post.IsEditable() {
		return nil, errors.InvalidState("Only pending requests can be edited")
	}
	if update.Category != nil {
		post.Category = *update.Category
		post.Icon = entity.CategoryIcon(*update.Category)
	}
	if update.Content != nil {
		post.Content = *update.Content
	}
	post.UpdatedAt = s.serverTime()
	s.changed()
	return post.Clone(), nil
}

func (r *memoryPostRepository) DeleteIfPending(ctx context.Context, id string) (*entity.Post, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, errors.NotFound("Post", nil)
	}
	if !post.IsDeletable() {
		return nil, errors.InvalidState("Only pending requests can be deleted")
	}
	delete(s.posts, id)
	s.changed()
	return post.Clone(), nil
}

func (r *memoryPostRepository) Accept(ctx context.Context, id, counselorID string) (*entity.Post, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, errors.NotFound("Post", nil)
	}
	if post.Status != entity.PostStatusPending {
		return nil, errors.InvalidState("Request is no longer pending")
	}
	if held, ok := s.engagements[counselorID]; ok && held != "" {
		return nil, errors.Conflict("active engagement exists")
	}
	for _, p := range s.posts {
		if p.Status == entity.PostStatusAccepted && p.AcceptedByID() == counselorID {
			return nil, errors.Conflict("active engagement exists")
		}
	}

	counselor := counselorID
	post.Status = entity.PostStatusAccepted
	post.AcceptedBy = &counselor
	post.UpdatedAt = s.serverTime()
	s.engagements[counselorID] = id
	s.changed()
	return post.Clone(), nil
}

func (r *memoryPostRepository) Complete(ctx context.Context, id string) (*entity.Post, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, errors.NotFound("Post", nil)
	}
	if post.Status != entity.PostStatusAccepted {
		return nil, errors.InvalidState("Only accepted requests can be completed")
	}
	post.Status = entity.PostStatusCompleted
	post.UpdatedAt = s.serverTime()
	if s.engagements[post.AcceptedByID()] == id {
		delete(s.engagements, post.AcceptedByID())
	}
	s.changed()
	return post.Clone(), nil
}

func (r *memoryPostRepository) SetArchived(ctx context.Context, id string, archived bool) (*entity.Post, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, errors.NotFound("Post", nil)
	}
	post.Archived = archived
	post.UpdatedAt = s.serverTime()
	s.changed()
	return post.Clone(), nil
}

func (r *memoryPostRepository) TouchLastMessage(ctx context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return errors.NotFound("Post", nil)
	}
	now := s.serverTime()
	post.LastMessageAt = &now
	post.UpdatedAt = now
	s.changed()
	return nil
}

func (r *memoryPostRepository) ActiveEngagement(ctx context.Context, counselorID string) (*entity.Post, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := r.query(repository.PostQuery{AcceptedBy: counselorID, Status: entity.PostStatusAccepted})
	if len(posts) == 0 {
		return nil, nil
	}
	return posts[0], nil
}

func (r *memoryPostRepository) WatchEngagement(ctx context.Context, counselorID string) *repository.Stream[*entity.Post] {
	return r.Watch(ctx, repository.PostQuery{AcceptedBy: counselorID, Status: entity.PostStatusAccepted})
}
