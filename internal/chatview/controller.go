// Package chatview keeps the render state of one open conversation: the reconciled
// message list, optimistic sends, scroll anchoring, inbound alerts and read receipts.
package chatview

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/internal/usecase"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

// ScrollThreshold is how far, in logical pixels, the viewport may sit from the end of the
// content before auto-scroll is suspended.
const ScrollThreshold = 100.0

// Channel is the slice of the message channel the controller drives.
type Channel interface {
	Subscribe(ctx context.Context) (*repository.Stream[*entity.Message], error)
	SendText(ctx context.Context, messageID, text string) (*entity.Message, error)
	MarkRead(ctx context.Context) (int, error)
}

// Item is one rendered row. Optimistic rows carry a TempID until the store confirms them,
// and already hold the id the message will be stored under.
type Item struct {
	entity.Message
	TempID  string `json:"temp_id,omitempty"`
	Pending bool   `json:"pending,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
}

type Update struct {
	Messages    []Item `json:"messages"`
	ScrollToEnd bool   `json:"scroll_to_end"`
}

type Options struct {
	PostID string
	UserID string

	OnUpdate func(Update)
	OnNotify func(entity.Notification)
	OnTyping func(typing bool)
	OnError  func(error)

	// SenderName resolves a display name for notification titles; may be nil.
	SenderName func(senderID string) string

	TypingQuietPeriod time.Duration
}

type Controller struct {
	channel Channel
	opts    Options

	mu         sync.Mutex
	arena      map[string]*Item
	order      []string
	pending    []*Item
	known      map[string]struct{}
	loaded     bool
	autoScroll bool
	tempSeq    int

	typing *usecase.TypingIndicator

	started   bool
	closing   bool
	stream    *repository.Stream[*entity.Message]
	done      chan struct{}
	closeOnce sync.Once
}

func New(channel Channel, opts Options) *Controller {
	if opts.OnUpdate == nil {
		opts.OnUpdate = func(Update) {}
	}
	if opts.OnNotify == nil {
		opts.OnNotify = func(entity.Notification) {}
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}

	c := &Controller{
		channel:    channel,
		opts:       opts,
		arena:      make(map[string]*Item),
		known:      make(map[string]struct{}),
		autoScroll: true,
		done:       make(chan struct{}),
	}
	c.typing = usecase.NewTypingIndicator(opts.TypingQuietPeriod, opts.OnTyping)
	return c
}

// Start subscribes and applies snapshots in the background until Close. A controller
// starts at most once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.closing {
		c.mu.Unlock()
		return errors.InvalidState("Conversation view already started")
	}
	c.started = true
	c.mu.Unlock()

	stream, err := c.channel.Subscribe(ctx)
	if err != nil {
		close(c.done)
		return err
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		stream.Stop()
		close(c.done)
		return nil
	}
	c.stream = stream
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		for snap := range stream.Snapshots() {
			c.apply(ctx, snap)
		}
		if err := stream.Err(); err != nil {
			logger.Error("Chat subscription for %s ended: %v", c.opts.PostID, err)
			c.opts.OnError(err)
		}
	}()
	return nil
}

// apply merges a full snapshot into the arena by id.
func (c *Controller) apply(ctx context.Context, snap []*entity.Message) {
	c.mu.Lock()

	first := !c.loaded
	c.loaded = true

	seen := make(map[string]struct{}, len(snap))
	var inbound []entity.Message
	hasNew := false
	unread := false

	for _, m := range snap {
		seen[m.ID] = struct{}{}
		if _, was := c.known[m.ID]; !was {
			hasNew = true
			if !first && m.SenderID != c.opts.UserID {
				inbound = append(inbound, *m)
			}
		}
		if m.SenderID != c.opts.UserID && !m.Read {
			unread = true
		}

		if item, ok := c.arena[m.ID]; ok {
			item.Message = *m
		} else {
			c.arena[m.ID] = &Item{Message: *m}
		}
	}
	for id := range c.arena {
		if _, ok := seen[id]; !ok {
			delete(c.arena, id)
		}
	}

	c.order = c.order[:0]
	for _, m := range snap {
		c.order = append(c.order, m.ID)
	}
	sort.SliceStable(c.order, func(i, j int) bool {
		return c.arena[c.order[i]].CreatedAt.Before(c.arena[c.order[j]].CreatedAt)
	})

	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.ID != "" {
			if _, confirmed := seen[p.ID]; confirmed {
				continue
			}
		}
		kept = append(kept, p)
	}
	c.pending = kept
	c.known = seen

	update := c.updateLocked(first || (c.autoScroll && hasNew))
	c.mu.Unlock()

	c.opts.OnUpdate(update)

	for i := range inbound {
		m := &inbound[i]
		name := ""
		if c.opts.SenderName != nil {
			name = c.opts.SenderName(m.SenderID)
		}
		c.opts.OnNotify(entity.NewMessageNotification(c.opts.PostID, name, m))
	}

	if unread {
		if _, err := c.channel.MarkRead(ctx); err != nil {
			logger.Warn("Failed to mark messages read in %s: %v", c.opts.PostID, err)
		}
	}
}

// caller holds mu
func (c *Controller) updateLocked(scroll bool) Update {
	items := make([]Item, 0, len(c.order)+len(c.pending))
	for _, id := range c.order {
		items = append(items, *c.arena[id])
	}
	for _, p := range c.pending {
		items = append(items, *p)
	}
	return Update{Messages: items, ScrollToEnd: scroll}
}

// Send renders the message optimistically, re-arms auto-scroll and then persists it.
// The optimistic row is replaced by the stored message on the next snapshot, or marked
// failed when the send is refused.
func (c *Controller) Send(ctx context.Context, text string) (*entity.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Validation("Message cannot be empty")
	}

	c.mu.Lock()
	c.tempSeq++
	item := &Item{
		TempID:  fmt.Sprintf("temp-%d-%d", time.Now().UnixNano(), c.tempSeq),
		Pending: true,
		Message: entity.Message{
			ID:        uuid.New().String(),
			PostID:    c.opts.PostID,
			SenderID:  c.opts.UserID,
			Type:      entity.MessageTypeText,
			Text:      text,
			CreatedAt: time.Now().UTC(),
		},
	}
	c.pending = append(c.pending, item)
	c.autoScroll = true
	update := c.updateLocked(true)
	c.mu.Unlock()

	c.opts.OnUpdate(update)
	c.typing.Clear()

	message, err := c.channel.SendText(ctx, item.ID, text)

	c.mu.Lock()
	if err != nil {
		item.Pending = false
		item.Failed = true
		update = c.updateLocked(false)
		c.mu.Unlock()
		c.opts.OnUpdate(update)
		return nil, err
	}

	if _, confirmed := c.arena[message.ID]; confirmed {
		// the snapshot beat the reply
		c.removePendingLocked(item.TempID)
		update = c.updateLocked(false)
		c.mu.Unlock()
		c.opts.OnUpdate(update)
		return message, nil
	}
	item.Message = *message
	c.mu.Unlock()
	return message, nil
}

// caller holds mu
func (c *Controller) removePendingLocked(tempID string) bool {
	for i, p := range c.pending {
		if p.TempID == tempID {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Discard drops a failed optimistic row.
func (c *Controller) Discard(tempID string) {
	c.mu.Lock()
	if !c.removePendingLocked(tempID) {
		c.mu.Unlock()
		return
	}
	update := c.updateLocked(false)
	c.mu.Unlock()
	c.opts.OnUpdate(update)
}

// Scroll records the viewport position. Moving more than ScrollThreshold away from the
// end suspends auto-scroll until the next local send.
func (c *Controller) Scroll(offset, viewportHeight, contentHeight float64) {
	distance := contentHeight - (offset + viewportHeight)
	c.mu.Lock()
	defer c.mu.Unlock()
	if distance > ScrollThreshold {
		c.autoScroll = false
	}
}

func (c *Controller) AutoScroll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoScroll
}

// Keystroke feeds the debounced typing indicator.
func (c *Controller) Keystroke() {
	c.typing.Keystroke()
}

func (c *Controller) IsTyping() bool {
	return c.typing.IsTyping()
}

func (c *Controller) Messages() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(false).Messages
}

func (c *Controller) PostID() string {
	return c.opts.PostID
}

// Close cancels the typing timer and unsubscribes, waiting for the stream to drain.
// Closing a controller that was never started only releases the timer.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.typing.Close()

		c.mu.Lock()
		c.closing = true
		started := c.started
		stream := c.stream
		c.mu.Unlock()

		if !started {
			close(c.done)
			return
		}
		if stream != nil {
			stream.Stop()
		}
		<-c.done
	})
}
