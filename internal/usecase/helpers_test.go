package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"speak/internal/adapter/repository"
	"speak/internal/domain/entity"
	"speak/internal/infrastructure/storage"
)

const validContent = "I have been feeling anxious about exams lately."

func userSession(id string) *entity.Session {
	return &entity.Session{UserID: id, Role: entity.RoleUser, DisplayName: "User " + id}
}

func counselorSession(id string) *entity.Session {
	return &entity.Session{UserID: id, Role: entity.RoleCounselor, DisplayName: "Counselor " + id}
}

type notifyCall struct {
	recipient    string
	notification entity.Notification
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) Dispatch(recipientID string, notification entity.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{recipientID, notification})
}

func (n *recordingNotifier) all() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

type fixture struct {
	store    *repository.MemoryStore
	blobs    *storage.MemoryBlobStore
	notifier *recordingNotifier
	posts    *PostUseCase
	chat     *ChatUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	blobs := storage.NewMemoryBlobStore()
	uploader := NewAttachmentUploader(blobs)
	notifier := &recordingNotifier{}

	return &fixture{
		store:    store,
		blobs:    blobs,
		notifier: notifier,
		posts:    NewPostUseCase(store.Posts(), store.Messages(), uploader),
		chat:     NewChatUseCase(store.Posts(), store.Messages(), uploader, notifier, nil),
	}
}

func (f *fixture) createPost(t *testing.T, owner string) *entity.Post {
	t.Helper()
	post, err := f.posts.CreatePost(context.Background(), userSession(owner), CreatePostInput{
		Category: "Anxiety",
		Content:  validContent,
	})
	require.NoError(t, err)
	return post
}

// engagedPost returns a post by owner accepted by counselor.
func (f *fixture) engagedPost(t *testing.T, owner, counselor string) *entity.Post {
	t.Helper()
	post := f.createPost(t, owner)
	accepted, err := f.posts.AcceptPost(context.Background(), counselorSession(counselor), post.ID)
	require.NoError(t, err)
	return accepted
}

func nextSnapshot[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "stream closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}
