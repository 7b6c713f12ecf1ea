package chatview

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/pkg/errors"
)

type fakeChannel struct {
	snaps     chan []*entity.Message
	send      func(id, text string) (*entity.Message, error)
	markReads atomic.Int32
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{snaps: make(chan []*entity.Message, 8)}
}

func (f *fakeChannel) Subscribe(ctx context.Context) (*repository.Stream[*entity.Message], error) {
	return repository.NewStream(ctx, func(ctx context.Context, emit func([]*entity.Message)) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap := <-f.snaps:
				emit(snap)
			}
		}
	}), nil
}

func (f *fakeChannel) SendText(ctx context.Context, id, text string) (*entity.Message, error) {
	return f.send(id, text)
}

func (f *fakeChannel) MarkRead(ctx context.Context) (int, error) {
	f.markReads.Add(1)
	return 1, nil
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
	notes   []entity.Notification
	typing  []bool
}

func (r *recorder) options() Options {
	return Options{
		PostID: "p1",
		UserID: "me",
		OnUpdate: func(u Update) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, u)
		},
		OnNotify: func(n entity.Notification) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.notes = append(r.notes, n)
		},
		OnTyping: func(typing bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.typing = append(r.typing, typing)
		},
		SenderName: func(string) string { return "Counselor Ana" },
	}
}

func (r *recorder) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recorder) last() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func (r *recorder) notifications() []entity.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.Notification(nil), r.notes...)
}

func (r *recorder) typingChanges() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.typing...)
}

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func msg(id, sender string, offset int, read bool) *entity.Message {
	return &entity.Message{
		ID:        id,
		PostID:    "p1",
		SenderID:  sender,
		Type:      entity.MessageTypeText,
		Text:      "text " + id,
		CreatedAt: base.Add(time.Duration(offset) * time.Second),
		Read:      read,
	}
}

func start(t *testing.T, ch *fakeChannel, rec *recorder) *Controller {
	t.Helper()
	c := New(ch, rec.options())
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c
}

// push delivers a snapshot and waits until the controller has applied it.
func push(t *testing.T, ch *fakeChannel, rec *recorder, snap ...*entity.Message) {
	t.Helper()
	before := rec.updateCount()
	ch.snaps <- snap
	require.Eventually(t, func() bool { return rec.updateCount() > before }, time.Second, 5*time.Millisecond)
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestController_FirstSnapshotScrollsWithoutNotifying(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	start(t, ch, rec)

	push(t, ch, rec, msg("m1", "other", 1, true), msg("m2", "me", 2, false))

	u := rec.last()
	assert.True(t, u.ScrollToEnd)
	assert.Equal(t, []string{"m1", "m2"}, ids(u.Messages))
	assert.Empty(t, rec.notifications())
}

func TestController_OrdersByCreatedAt(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := start(t, ch, rec)

	push(t, ch, rec, msg("late", "other", 5, true), msg("early", "other", 1, true))

	assert.Equal(t, []string{"early", "late"}, ids(c.Messages()))
}

func TestController_NotifiesOncePerInboundMessage(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	start(t, ch, rec)

	m1 := msg("m1", "other", 1, true)
	push(t, ch, rec, m1)

	m2 := msg("m2", "other", 2, false)
	push(t, ch, rec, m1, m2)

	// same message again, now read: no second alert
	m2read := msg("m2", "other", 2, true)
	push(t, ch, rec, m1, m2read)

	notes := rec.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Counselor Ana", notes[0].Title)
	assert.Equal(t, "text m2", notes[0].Body)
	assert.Equal(t, "m2", notes[0].Data["messageId"])
	assert.Equal(t, "p1", notes[0].Data["postId"])
}

func TestController_OwnMessagesDoNotNotify(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	start(t, ch, rec)

	push(t, ch, rec)
	push(t, ch, rec, msg("m1", "me", 1, false))

	assert.Empty(t, rec.notifications())
}

func TestController_MarksReadOnlyWhenInboundUnread(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	start(t, ch, rec)

	push(t, ch, rec, msg("m1", "me", 1, false))
	assert.Equal(t, int32(0), ch.markReads.Load())

	push(t, ch, rec, msg("m1", "me", 1, false), msg("m2", "other", 2, false))
	assert.Eventually(t, func() bool { return ch.markReads.Load() == 1 }, time.Second, 5*time.Millisecond)

	push(t, ch, rec, msg("m1", "me", 1, false), msg("m2", "other", 2, true))
	assert.Equal(t, int32(1), ch.markReads.Load())
}

func TestController_OptimisticSendReconcilesOnSnapshot(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := start(t, ch, rec)
	push(t, ch, rec)

	release := make(chan struct{})
	ch.send = func(id, text string) (*entity.Message, error) {
		<-release
		return msg("m9", "me", 9, false), nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Send(context.Background(), "  hello  ")
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return len(c.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	pending := c.Messages()[0]
	assert.True(t, pending.Pending)
	assert.NotEmpty(t, pending.TempID)
	assert.Equal(t, "hello", pending.Text)
	assert.True(t, rec.last().ScrollToEnd)

	close(release)
	<-done

	items := c.Messages()
	require.Len(t, items, 1)
	assert.Equal(t, "m9", items[0].ID)
	assert.True(t, items[0].Pending)

	push(t, ch, rec, msg("m9", "me", 9, false))

	items = c.Messages()
	require.Len(t, items, 1)
	assert.Equal(t, "m9", items[0].ID)
	assert.False(t, items[0].Pending)
	assert.Empty(t, items[0].TempID)
}

func TestController_SnapshotBeforeReplyDropsOptimisticRow(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := start(t, ch, rec)
	push(t, ch, rec)

	ch.send = func(id, text string) (*entity.Message, error) {
		m := msg("m9", "me", 9, false)
		push(t, ch, rec, m)
		return m, nil
	}

	_, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)

	items := c.Messages()
	require.Len(t, items, 1)
	assert.Equal(t, "m9", items[0].ID)
	assert.False(t, items[0].Pending)
}

func TestController_FailedSendKeepsRowUntilDiscarded(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := start(t, ch, rec)
	push(t, ch, rec)

	ch.send = func(string, string) (*entity.Message, error) {
		return nil, errors.InvalidState("Messages can only be sent while the request is accepted")
	}

	_, err := c.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	items := c.Messages()
	require.Len(t, items, 1)
	assert.True(t, items[0].Failed)
	assert.False(t, items[0].Pending)

	c.Discard(items[0].TempID)
	assert.Empty(t, c.Messages())
}

func TestController_SendRejectsEmptyText(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := start(t, ch, rec)

	_, err := c.Send(context.Background(), "   ")
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Empty(t, c.Messages())
}

func TestController_ScrollAwaySuspendsAutoScroll(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := start(t, ch, rec)
	push(t, ch, rec, msg("m1", "other", 1, true))

	// within the threshold
	c.Scroll(250, 500, 800)
	assert.True(t, c.AutoScroll())

	c.Scroll(0, 500, 800)
	assert.False(t, c.AutoScroll())

	push(t, ch, rec, msg("m1", "other", 1, true), msg("m2", "other", 2, true))
	assert.False(t, rec.last().ScrollToEnd)

	ch.send = func(string, string) (*entity.Message, error) { return msg("m3", "me", 3, false), nil }
	_, err := c.Send(context.Background(), "back")
	require.NoError(t, err)
	assert.True(t, c.AutoScroll())

	push(t, ch, rec, msg("m1", "other", 1, true), msg("m2", "other", 2, true), msg("m3", "me", 3, false), msg("m4", "other", 4, true))
	assert.True(t, rec.last().ScrollToEnd)
}

func TestController_TypingClearsOnSend(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := start(t, ch, rec)

	c.Keystroke()
	assert.True(t, c.IsTyping())

	ch.send = func(string, string) (*entity.Message, error) { return msg("m1", "me", 1, false), nil }
	_, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)

	assert.False(t, c.IsTyping())
	assert.Equal(t, []bool{true, false}, rec.typingChanges())
}

func TestController_CloseStopsSubscription(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := New(ch, rec.options())
	require.NoError(t, c.Start(context.Background()))
	push(t, ch, rec)

	c.Keystroke()
	c.Close()
	c.Close()

	assert.False(t, c.IsTyping())
	select {
	case <-c.done:
	default:
		t.Fatal("controller goroutine still running")
	}
	// the quiet period expiring after Close must not report a change
	assert.Equal(t, []bool{true}, rec.typingChanges())
}

func TestController_SnapshotDuringSendShowsOneRow(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := start(t, ch, rec)
	push(t, ch, rec)

	sent := make(chan string, 1)
	release := make(chan struct{})
	ch.send = func(id, text string) (*entity.Message, error) {
		sent <- id
		<-release
		m := msg(id, "me", 9, false)
		m.Text = text
		return m, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Send(context.Background(), "hello")
		assert.NoError(t, err)
	}()

	var id string
	select {
	case id = <-sent:
	case <-time.After(time.Second):
		t.Fatal("send never reached the channel")
	}
	require.NotEmpty(t, id)

	pending := c.Messages()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID, "the optimistic row already carries the stored id")

	// the listener reports the stored message while the write is still in flight
	confirmed := msg(id, "me", 9, false)
	confirmed.Text = "hello"
	push(t, ch, rec, confirmed)

	items := rec.last().Messages
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.False(t, items[0].Pending)
	assert.Empty(t, items[0].TempID)

	close(release)
	<-done

	items = c.Messages()
	require.Len(t, items, 1)
	assert.False(t, items[0].Pending)
}

func TestController_CloseWithoutStart(t *testing.T) {
	ch, rec := newFakeChannel(), &recorder{}
	c := New(ch, rec.options())

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a controller that was never started")
	}

	err := c.Start(context.Background())
	assert.True(t, errors.Is(err, errors.CodeInvalidState))
}
