package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speak/internal/domain/entity"
)

type delivery struct {
	recipient    string
	notification entity.Notification
}

func newBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisBus(rdb), mr
}

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "notifications:user:abc", UserChannel("abc"))
}

func TestRedisBus_NilClientIsNoop(t *testing.T) {
	bus := NewRedisBus(nil)
	assert.NoError(t, bus.Send(context.Background(), "u1", entity.Notification{Title: "x"}))
	assert.NoError(t, bus.Subscribe(context.Background(), func(string, entity.Notification) {}))
}

func TestRedisBus_DeliversToSubscriber(t *testing.T) {
	bus, _ := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan delivery, 1)
	require.NoError(t, bus.Subscribe(ctx, func(recipient string, n entity.Notification) {
		got <- delivery{recipient, n}
	}))

	sent := entity.Notification{
		Title: "Dr. Rivera",
		Body:  "Sent an image",
		Data:  map[string]string{"postId": "p1"},
	}
	require.NoError(t, bus.Send(context.Background(), "user-1", sent))

	select {
	case d := <-got:
		assert.Equal(t, "user-1", d.recipient)
		assert.Equal(t, sent, d.notification)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestRedisBus_StopsOnCancel(t *testing.T) {
	bus, _ := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan delivery, 4)
	require.NoError(t, bus.Subscribe(ctx, func(recipient string, n entity.Notification) {
		got <- delivery{recipient, n}
	}))
	cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.Send(context.Background(), "user-1", entity.Notification{Title: "late"}))
	assert.Never(t, func() bool {
		return len(got) > 0
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestRedisBus_DropsMalformedPayload(t *testing.T) {
	bus, mr := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan delivery, 2)
	require.NoError(t, bus.Subscribe(ctx, func(recipient string, n entity.Notification) {
		got <- delivery{recipient, n}
	}))

	mr.Publish(UserChannel("user-1"), "{not json")
	require.NoError(t, bus.Send(context.Background(), "user-2", entity.Notification{Title: "ok"}))

	select {
	case d := <-got:
		assert.Equal(t, "user-2", d.recipient)
	case <-time.After(2 * time.Second):
		t.Fatal("valid notification was not delivered")
	}
}
