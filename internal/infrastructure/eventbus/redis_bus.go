// Package eventbus fans notifications out across API instances over Redis pub/sub so a
// recipient connected to any instance gets the in-app alert.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"speak/internal/domain/entity"
	"speak/pkg/logger"
)

const channelPrefix = "notifications:user:"

// UserChannel is the pub/sub channel carrying notifications for one recipient.
func UserChannel(userID string) string {
	return channelPrefix + userID
}

// Connect opens a client from a redis:// URL and checks it answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Name() string {
	return "redis"
}

// Send publishes the notification; every instance's subscriber delivers it locally.
func (b *RedisBus) Send(ctx context.Context, recipientID string, notification entity.Notification) error {
	if b.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return b.rdb.Publish(ctx, UserChannel(recipientID), payload).Err()
}

// Subscribe forwards every published notification to deliver until ctx is done. It
// returns once the subscription is confirmed by the server.
func (b *RedisBus) Subscribe(ctx context.Context, deliver func(recipientID string, notification entity.Notification)) error {
	if b.rdb == nil {
		return nil
	}

	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handle(msg, deliver)
			}
		}
	}()

	return nil
}

func (b *RedisBus) handle(msg *redis.Message, deliver func(string, entity.Notification)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("PANIC in notification subscriber: %v\n%s", r, debug.Stack())
		}
	}()

	recipientID := strings.TrimPrefix(msg.Channel, channelPrefix)
	var notification entity.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &notification); err != nil {
		logger.Warn("Dropping malformed notification on %s: %v", msg.Channel, err)
		return
	}
	deliver(recipientID, notification)
}
