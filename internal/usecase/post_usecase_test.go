package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speak/internal/domain/entity"
	"speak/pkg/errors"
)

func waitForPosts(t *testing.T, ch <-chan []*entity.Post, match func([]*entity.Post) bool) []*entity.Post {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "stream closed")
			if match(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return nil
		}
	}
}

func postIDs(posts []*entity.Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)

	post, err := f.posts.CreatePost(context.Background(), userSession("u1"), CreatePostInput{
		Category: "Depression",
		Content:  "   " + validContent + "   ",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, post.ID)
	assert.Equal(t, "u1", post.UserID)
	assert.Equal(t, entity.PostStatusPending, post.Status)
	assert.Nil(t, post.AcceptedBy)
	assert.Equal(t, "mood-bad", post.Icon)
	assert.Equal(t, validContent, post.Content)
	assert.False(t, post.CreatedAt.IsZero())
}

func TestCreatePost_ContentLength(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{"empty", "", "Please describe your concern"},
		{"whitespace only", "     ", "Please describe your concern"},
		{"19 characters", strings.Repeat("a", 19), "Please provide more details (at least 20 characters)"},
		{"19 characters padded", "  " + strings.Repeat("a", 19) + "  ", "Please provide more details (at least 20 characters)"},
		{"20 characters", strings.Repeat("a", 20), ""},
		{"500 characters", strings.Repeat("a", 500), ""},
		{"501 characters", strings.Repeat("a", 501), "Content must be at most 500 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.posts.CreatePost(context.Background(), userSession("u1"), CreatePostInput{
				Category: "Anxiety",
				Content:  tt.content,
			})
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.CodeValidation, appErr.Code)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestCreatePost_RequiresCategory(t *testing.T) {
	f := newFixture(t)
	_, err := f.posts.CreatePost(context.Background(), userSession("u1"), CreatePostInput{Content: validContent})
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestCreatePost_CounselorIsForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.posts.CreatePost(context.Background(), counselorSession("c1"), CreatePostInput{
		Category: "Anxiety",
		Content:  validContent,
	})
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestCreatePost_RequiresSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.posts.CreatePost(context.Background(), nil, CreatePostInput{Category: "Anxiety", Content: validContent})
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}

func TestEditPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "u1")

	category := "Trauma"
	edited, err := f.posts.EditPost(ctx, userSession("u1"), post.ID, EditPostInput{Category: &category})
	require.NoError(t, err)
	assert.Equal(t, "Trauma", edited.Category)
	assert.Equal(t, "healing", edited.Icon)
	assert.Equal(t, validContent, edited.Content)

	short := "too short"
	_, err = f.posts.EditPost(ctx, userSession("u1"), post.ID, EditPostInput{Content: &short})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = f.posts.EditPost(ctx, userSession("u2"), post.ID, EditPostInput{Category: &category})
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestEditPost_OnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	post := f.engagedPost(t, "u1", "c1")

	content := validContent + " Still struggling."
	_, err := f.posts.EditPost(context.Background(), userSession("u1"), post.ID, EditPostInput{Content: &content})
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	stored, err := f.store.Posts().GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, validContent, stored.Content)
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "u1")

	assert.True(t, errors.Is(f.posts.DeletePost(ctx, userSession("u2"), post.ID), errors.CodeForbidden))
	require.NoError(t, f.posts.DeletePost(ctx, userSession("u1"), post.ID))

	_, err := f.store.Posts().GetByID(ctx, post.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestDeletePost_OnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	post := f.engagedPost(t, "u1", "c1")

	err := f.posts.DeletePost(context.Background(), userSession("u1"), post.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState))
}

func TestAcceptPost(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, "u1")

	accepted, err := f.posts.AcceptPost(context.Background(), counselorSession("c1"), post.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PostStatusAccepted, accepted.Status)
	assert.Equal(t, "c1", accepted.AcceptedByID())
}

func TestAcceptPost_Refusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.engagedPost(t, "u1", "c1")
	second := f.createPost(t, "u2")

	_, err := f.posts.AcceptPost(ctx, userSession("u3"), second.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden), "users cannot accept")

	_, err = f.posts.AcceptPost(ctx, counselorSession("c1"), second.ID)
	assert.True(t, errors.Is(err, errors.CodeConflict), "one active engagement per counselor")
	untouched, err := f.store.Posts().GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PostStatusPending, untouched.Status)
	assert.Nil(t, untouched.AcceptedBy)

	_, err = f.posts.AcceptPost(ctx, counselorSession("c2"), first.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState), "already accepted")

	_, err = f.posts.AcceptPost(ctx, counselorSession("c2"), "missing")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestAcceptPost_ConcurrentCounselorsSingleWinner(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, "u1")

	const n = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.posts.AcceptPost(context.Background(), counselorSession("c"+string(rune('a'+i))), post.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, errors.CodeInvalidState))
	}
	assert.Equal(t, 1, winners)
}

func TestAcceptPost_ConcurrentPostsOneEngagement(t *testing.T) {
	f := newFixture(t)

	const n = 5
	posts := make([]*entity.Post, n)
	for i := range posts {
		posts[i] = f.createPost(t, "u"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.posts.AcceptPost(context.Background(), counselorSession("c1"), posts[i].ID)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, errors.CodeConflict))
	}
	assert.Equal(t, 1, winners)
}

func TestCompletePost_ReleasesCounselor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.engagedPost(t, "u1", "c1")
	second := f.createPost(t, "u2")

	_, err := f.posts.CompletePost(ctx, userSession("u2"), first.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	completed, err := f.posts.CompletePost(ctx, counselorSession("c1"), first.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PostStatusCompleted, completed.Status)
	assert.Equal(t, "c1", completed.AcceptedByID())

	_, err = f.posts.CompletePost(ctx, userSession("u1"), first.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState), "completed is terminal")

	_, err = f.posts.AcceptPost(ctx, counselorSession("c1"), second.ID)
	assert.NoError(t, err)
}

func TestCompletePost_PendingIsInvalid(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, "u1")

	_, err := f.posts.CompletePost(context.Background(), userSession("u1"), post.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState))
}

func TestArchivePost_FiltersLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kept := f.createPost(t, "u1")
	archived := f.createPost(t, "u1")
	f.createPost(t, "u2")

	_, err := f.posts.ArchivePost(ctx, userSession("u2"), archived.ID, true)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.posts.ArchivePost(ctx, userSession("u1"), archived.ID, true)
	require.NoError(t, err)

	active, err := f.posts.ListUserPosts(ctx, userSession("u1"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, postIDs(active))

	hidden, err := f.posts.ListUserPosts(ctx, userSession("u1"), true)
	require.NoError(t, err)
	assert.Equal(t, []string{archived.ID}, postIDs(hidden))
}

func TestListUserPosts_NewestFirst(t *testing.T) {
	f := newFixture(t)
	older := f.createPost(t, "u1")
	newer := f.createPost(t, "u1")

	posts, err := f.posts.ListUserPosts(context.Background(), userSession("u1"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, postIDs(posts))
}

func TestGetPost_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.createPost(t, "u1")
	engaged := f.engagedPost(t, "u2", "c1")

	_, err := f.posts.GetPost(ctx, counselorSession("c2"), pending.ID)
	assert.NoError(t, err, "counselors see the queue")

	_, err = f.posts.GetPost(ctx, userSession("u2"), pending.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.posts.GetPost(ctx, counselorSession("c2"), engaged.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.posts.GetPost(ctx, counselorSession("c1"), engaged.ID)
	assert.NoError(t, err)
}

func TestCounselorPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.createPost(t, "u1")
	p2 := f.createPost(t, "u2")

	posts, err := f.posts.CounselorPosts(ctx, counselorSession("c1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, postIDs(posts))

	_, err = f.posts.AcceptPost(ctx, counselorSession("c1"), p1.ID)
	require.NoError(t, err)

	posts, err = f.posts.CounselorPosts(ctx, counselorSession("c1"))
	require.NoError(t, err)
	assert.Equal(t, []string{p1.ID}, postIDs(posts))

	_, err = f.posts.CounselorPosts(ctx, userSession("u1"))
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestWatchCounselorPosts_SwitchesBetweenQueueAndEngagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.createPost(t, "u1")
	p2 := f.createPost(t, "u2")

	stream, err := f.posts.WatchCounselorPosts(ctx, counselorSession("c1"))
	require.NoError(t, err)
	defer stream.Stop()

	waitForPosts(t, stream.Snapshots(), func(posts []*entity.Post) bool {
		return len(posts) == 2
	})

	_, err = f.posts.AcceptPost(ctx, counselorSession("c1"), p1.ID)
	require.NoError(t, err)

	engaged := waitForPosts(t, stream.Snapshots(), func(posts []*entity.Post) bool {
		return len(posts) == 1 && posts[0].ID == p1.ID
	})
	assert.Equal(t, entity.PostStatusAccepted, engaged[0].Status)

	// another post arriving stays hidden while engaged
	f.createPost(t, "u3")
	select {
	case snap := <-stream.Snapshots():
		assert.Equal(t, []string{p1.ID}, postIDs(snap))
	case <-time.After(100 * time.Millisecond):
	}

	_, err = f.posts.CompletePost(ctx, userSession("u1"), p1.ID)
	require.NoError(t, err)

	queue := waitForPosts(t, stream.Snapshots(), func(posts []*entity.Post) bool {
		return len(posts) == 2
	})
	for _, p := range queue {
		assert.Equal(t, entity.PostStatusPending, p.Status)
		assert.NotEqual(t, p1.ID, p.ID)
	}
	assert.Contains(t, postIDs(queue), p2.ID)
}

func TestWatchCounselorPosts_RequiresCounselor(t *testing.T) {
	f := newFixture(t)
	_, err := f.posts.WatchCounselorPosts(context.Background(), userSession("u1"))
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestWatchUserPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stream, err := f.posts.WatchUserPosts(ctx, userSession("u1"), false)
	require.NoError(t, err)
	defer stream.Stop()

	assert.Empty(t, nextSnapshot(t, stream.Snapshots()))

	post := f.createPost(t, "u1")
	f.createPost(t, "u2")

	waitForPosts(t, stream.Snapshots(), func(posts []*entity.Post) bool {
		return len(posts) == 1 && posts[0].ID == post.ID
	})
}
