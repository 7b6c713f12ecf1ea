package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speak/internal/domain/entity"
	domainrepo "speak/internal/domain/repository"
	"speak/pkg/errors"
)

func newPost(t *testing.T, store *MemoryStore, owner string) *entity.Post {
	t.Helper()
	post := &entity.Post{
		UserID:   owner,
		Category: "Anxiety",
		Content:  "I keep worrying about everything at night.",
		Status:   entity.PostStatusPending,
	}
	require.NoError(t, store.Posts().Create(context.Background(), post))
	return post
}

func TestMemoryStore_ServerTimeIsStrictlyIncreasing(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })

	a := newPost(t, store, "u1")
	b := newPost(t, store, "u1")
	assert.True(t, b.CreatedAt.After(a.CreatedAt))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	post := newPost(t, store, "u1")

	got, err := store.Posts().GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	got.Content = "mutated"

	again, err := store.Posts().GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Content)
}

func TestMemoryPosts_AcceptTransaction(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	p1 := newPost(t, store, "u1")
	p2 := newPost(t, store, "u2")

	accepted, err := store.Posts().Accept(ctx, p1.ID, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", accepted.AcceptedByID())

	_, err = store.Posts().Accept(ctx, p2.ID, "c1")
	assert.True(t, errors.Is(err, errors.CodeConflict))

	active, err := store.Posts().ActiveEngagement(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, p1.ID, active.ID)

	_, err = store.Posts().Complete(ctx, p1.ID)
	require.NoError(t, err)

	active, err = store.Posts().ActiveEngagement(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = store.Posts().Accept(ctx, p2.ID, "c1")
	assert.NoError(t, err)
}

func TestMemoryPosts_QueryFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := newPost(t, store, "u1")
	b := newPost(t, store, "u1")
	newPost(t, store, "u2")

	_, err := store.Posts().SetArchived(ctx, a.ID, true)
	require.NoError(t, err)

	archived := false
	posts, err := store.Posts().List(ctx, domainrepo.PostQuery{UserID: "u1", Archived: &archived})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, b.ID, posts[0].ID)

	all, err := store.Posts().List(ctx, domainrepo.PostQuery{Status: entity.PostStatusPending, Ascending: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, a.ID, all[0].ID)
}

func TestMemoryMessages_WatchFollowsChanges(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	post := newPost(t, store, "u1")

	stream := store.Messages().Watch(ctx, post.ID)
	first := <-stream.Snapshots()
	assert.Empty(t, first)
	assert.Equal(t, 1, store.WatcherCount())

	msg := &entity.Message{SenderID: "u1", Type: entity.MessageTypeText, Text: "hi"}
	require.NoError(t, store.Messages().Create(ctx, post.ID, msg))

	select {
	case snap := <-stream.Snapshots():
		require.Len(t, snap, 1)
		assert.Equal(t, msg.ID, snap[0].ID)
		assert.Equal(t, post.ID, snap[0].PostID)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after create")
	}

	stream.Stop()
	assert.Equal(t, 0, store.WatcherCount())
}

func TestMemoryMessages_CreateNeedsPost(t *testing.T) {
	store := NewMemoryStore()
	err := store.Messages().Create(context.Background(), "missing", &entity.Message{Text: "hi"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMemoryProfiles_VerifiedEmailsAreSanitized(t *testing.T) {
	store := NewMemoryStore()
	store.AllowCounselorEmail("Dr.Lee@clinic.org")

	ok, err := store.Profiles().IsVerifiedCounselorEmail(context.Background(), "Dr.Lee@clinic.org")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Profiles().IsVerifiedCounselorEmail(context.Background(), "someone@clinic.org")
	require.NoError(t, err)
	assert.False(t, ok)
}
