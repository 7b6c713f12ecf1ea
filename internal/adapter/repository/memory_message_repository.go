package repository

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/pkg/errors"
)

type memoryMessageRepository struct {
	store *MemoryStore
}

func (r *memoryMessageRepository) Create(ctx context.Context, postID string, message *entity.Message) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return errors.NotFound("Post", nil)
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	} else if _, taken := s.messages[postID][message.ID]; taken {
		return errors.Conflict("Message already exists")
	}
	message.PostID = postID
	message.CreatedAt = s.serverTime()
	message.Read = false

	if s.messages[postID] == nil {
		s.messages[postID] = make(map[string]*entity.Message)
	}
	s.messages[postID][message.ID] = message.Clone()
	s.changed()
	return nil
}

func (r *memoryMessageRepository) GetByID(ctx context.Context, postID, messageID string) (*entity.Message, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[postID][messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return msg.Clone(), nil
}

// caller holds mu
func (r *memoryMessageRepository) ordered(postID string) []*entity.Message {
	var out []*entity.Message
	for _, m := range r.store.messages[postID] {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memoryMessageRepository) List(ctx context.Context, postID string) ([]*entity.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.ordered(postID), nil
}

func (r *memoryMessageRepository) Watch(ctx context.Context, postID string) *repository.Stream[*entity.Message] {
	return repository.NewStream(ctx, watchQuery(r.store, func() []*entity.Message {
		return r.ordered(postID)
	}))
}

func (r *memoryMessageRepository) Delete(ctx context.Context, postID, messageID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[postID][messageID]; !ok {
		return errors.NotFound("Message", nil)
	}
	delete(s.messages[postID], messageID)
	s.changed()
	return nil
}

func (r *memoryMessageRepository) DeleteAll(ctx context.Context, postID string) ([]*entity.Message, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := r.ordered(postID)
	delete(s.messages, postID)
	if len(removed) > 0 {
		s.changed()
	}
	return removed, nil
}

func (r *memoryMessageRepository) MarkRead(ctx context.Context, postID, readerID string) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, m := range s.messages[postID] {
		if m.SenderID != readerID && !m.Read {
			m.Read = true
			count++
		}
	}
	if count > 0 {
		s.changed()
	}
	return count, nil
}
