package websocket

import (
	"encoding/json"
	"strings"
	"time"

	"speak/internal/chatview"
	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/internal/infrastructure/metrics"
	"speak/internal/infrastructure/ratelimit"
	"speak/pkg/errors"
	"speak/pkg/logger"
)

// WebSocket message types
const (
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeJoinChatRoom  = "join_chat_room"
	MessageTypeLeaveChatRoom = "leave_chat_room"
	MessageTypeSendMessage   = "send_message"
	MessageTypeTyping        = "typing"
	MessageTypeScroll        = "scroll"
	MessageTypeMarkRead      = "mark_read"
	MessageTypeDeleteMessage = "delete_message"
	MessageTypeDiscard       = "discard"
	MessageTypeWatchPosts    = "watch_posts"
	MessageTypeUnwatchPosts  = "unwatch_posts"

	MessageTypeSnapshot        = "snapshot"
	MessageTypePosts           = "posts"
	MessageTypeTypingIndicator = "typing_indicator"
	MessageTypeNotification    = "notification"
	MessageTypeError           = "error"
)

// WSMessage is a client frame, e.g. { "type": "send_message", "chat_id": "p1", "data": { "content": "hi" } }
type WSMessage struct {
	Type      string          `json:"type"`
	ChatID    string          `json:"chat_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ServerMessage is a frame pushed to the client
type ServerMessage struct {
	Type      string      `json:"type"`
	ChatID    string      `json:"chat_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

func newServerMessage(messageType, chatID string, data interface{}) ServerMessage {
	return ServerMessage{
		Type:      messageType,
		ChatID:    chatID,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

type SendMessageData struct {
	Content string `json:"content"`
}

type ScrollData struct {
	Offset         float64 `json:"offset"`
	ViewportHeight float64 `json:"viewport_height"`
	ContentHeight  float64 `json:"content_height"`
}

type DeleteMessageData struct {
	MessageID string `json:"message_id"`
}

type DiscardData struct {
	TempID string `json:"temp_id"`
}

type TypingData struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

// WatchPostsData selects archived or active posts; counselors ignore it.
type WatchPostsData struct {
	Archived bool `json:"archived"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleClientMessage processes one incoming frame
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var message WSMessage
	if err := json.Unmarshal(messageBytes, &message); err != nil {
		logger.Warn("WebSocket: malformed frame from %s: %v", client.UserID, err)
		m.sendError(client, "", errors.BadRequest("Invalid message format", err))
		return
	}

	logger.Debug("WebSocket: %s from %s", message.Type, client.UserID)

	switch message.Type {
	case MessageTypePing:
		client.pushFrame(newServerMessage(MessageTypePong, "", map[string]string{"status": "alive"}))

	case MessageTypeJoinChatRoom:
		m.handleJoinChatRoom(client, message)

	case MessageTypeLeaveChatRoom:
		m.handleLeaveChatRoom(client, message)

	case MessageTypeSendMessage:
		m.handleSendMessage(client, message)

	case MessageTypeTyping:
		m.handleTyping(client, message)

	case MessageTypeScroll:
		m.handleScroll(client, message)

	case MessageTypeMarkRead:
		m.handleMarkRead(client, message)

	case MessageTypeDeleteMessage:
		m.handleDeleteMessage(client, message)

	case MessageTypeDiscard:
		m.handleDiscard(client, message)

	case MessageTypeWatchPosts:
		m.handleWatchPosts(client, message)

	case MessageTypeUnwatchPosts:
		client.replaceWatch(nil)

	default:
		logger.Warn("WebSocket: unknown message type '%s' from %s", message.Type, client.UserID)
		m.sendError(client, message.ChatID, errors.BadRequest("Unknown message type", nil))
	}
}

func (c *Client) pushFrame(frame ServerMessage) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Error("WebSocket: failed to marshal %s frame: %v", frame.Type, err)
		return
	}
	c.push(payload)
}

func (m *Manager) sendError(client *Client, chatID string, err error) {
	data := ErrorData{Code: errors.CodeInternal, Message: "Something went wrong"}
	if appErr, ok := errors.As(err); ok {
		data = ErrorData{Code: appErr.Code, Message: appErr.Message}
	}
	client.pushFrame(newServerMessage(MessageTypeError, chatID, data))
}

// requireRoom returns the open conversation named by the frame, or reports an error.
func (m *Manager) requireRoom(client *Client, message WSMessage) *chatview.Controller {
	if message.ChatID == "" {
		m.sendError(client, "", errors.Validation("Missing chat_id"))
		return nil
	}
	controller := client.room(message.ChatID)
	if controller == nil {
		m.sendError(client, message.ChatID, errors.InvalidState("Join the conversation first"))
		return nil
	}
	return controller
}

func decodeData(message WSMessage, v interface{}) error {
	if len(message.Data) == 0 {
		return errors.Validation("Missing data")
	}
	if err := json.Unmarshal(message.Data, v); err != nil {
		return errors.BadRequest("Invalid data format", err)
	}
	return nil
}

func (m *Manager) handleJoinChatRoom(client *Client, message WSMessage) {
	postID := strings.TrimSpace(message.ChatID)
	if postID == "" {
		m.sendError(client, "", errors.Validation("Missing chat_id"))
		return
	}

	if existing := client.room(postID); existing != nil {
		client.pushFrame(newServerMessage(MessageTypeSnapshot, postID, chatview.Update{
			Messages:    existing.Messages(),
			ScrollToEnd: true,
		}))
		return
	}

	controller := chatview.New(m.chat.Channel(client.Session, postID), chatview.Options{
		PostID: postID,
		UserID: client.UserID,
		OnUpdate: func(update chatview.Update) {
			client.pushFrame(newServerMessage(MessageTypeSnapshot, postID, update))
		},
		OnNotify: func(notification entity.Notification) {
			client.pushFrame(newServerMessage(MessageTypeNotification, postID, notification))
		},
		OnTyping: func(typing bool) {
			m.BroadcastToRoomExcept(postID, client.UserID, newServerMessage(MessageTypeTypingIndicator, postID, TypingData{
				ChatID: postID,
				UserID: client.UserID,
				Typing: typing,
			}))
		},
		OnError: func(err error) {
			m.sendError(client, postID, err)
		},
		SenderName:        m.senderName(client.ctx),
		TypingQuietPeriod: m.typingQuiet,
	})

	if err := controller.Start(client.ctx); err != nil {
		m.sendError(client, postID, err)
		return
	}

	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		controller.Close()
		return
	}
	client.rooms[postID] = controller
	client.mu.Unlock()

	m.joinRoom(postID, client)
	metrics.ActiveSubscriptions.Inc()
	logger.Info("WebSocket: %s joined conversation %s", client.UserID, postID)
}

func (m *Manager) handleLeaveChatRoom(client *Client, message WSMessage) {
	if message.ChatID == "" {
		m.sendError(client, "", errors.Validation("Missing chat_id"))
		return
	}

	client.mu.Lock()
	controller := client.rooms[message.ChatID]
	delete(client.rooms, message.ChatID)
	client.mu.Unlock()

	if controller == nil {
		return
	}
	controller.Close()
	m.leaveRoom(message.ChatID, client)
	metrics.ActiveSubscriptions.Dec()
	logger.Info("WebSocket: %s left conversation %s", client.UserID, message.ChatID)
}

func (m *Manager) handleSendMessage(client *Client, message WSMessage) {
	controller := m.requireRoom(client, message)
	if controller == nil {
		return
	}

	var data SendMessageData
	if err := decodeData(message, &data); err != nil {
		m.sendError(client, message.ChatID, err)
		return
	}

	if _, err := controller.Send(client.ctx, data.Content); err != nil {
		m.sendError(client, message.ChatID, err)
	}
}

func (m *Manager) handleTyping(client *Client, message WSMessage) {
	controller := m.requireRoom(client, message)
	if controller == nil {
		return
	}
	if m.rateLimiter != nil {
		if allowed, _ := m.rateLimiter.Allow(client.UserID, ratelimit.ActionTyping); !allowed {
			return
		}
	}
	controller.Keystroke()
}

func (m *Manager) handleScroll(client *Client, message WSMessage) {
	controller := m.requireRoom(client, message)
	if controller == nil {
		return
	}

	var data ScrollData
	if err := decodeData(message, &data); err != nil {
		m.sendError(client, message.ChatID, err)
		return
	}
	controller.Scroll(data.Offset, data.ViewportHeight, data.ContentHeight)
}

func (m *Manager) handleMarkRead(client *Client, message WSMessage) {
	if controller := m.requireRoom(client, message); controller == nil {
		return
	}

	count, err := m.chat.MarkRead(client.ctx, client.Session, message.ChatID)
	if err != nil {
		m.sendError(client, message.ChatID, err)
		return
	}
	logger.Debug("WebSocket: %s marked %d messages read in %s", client.UserID, count, message.ChatID)
}

func (m *Manager) handleDeleteMessage(client *Client, message WSMessage) {
	if controller := m.requireRoom(client, message); controller == nil {
		return
	}

	var data DeleteMessageData
	if err := decodeData(message, &data); err != nil {
		m.sendError(client, message.ChatID, err)
		return
	}
	if data.MessageID == "" {
		m.sendError(client, message.ChatID, errors.Validation("Missing message_id"))
		return
	}

	if err := m.chat.DeleteMessage(client.ctx, client.Session, message.ChatID, data.MessageID); err != nil {
		m.sendError(client, message.ChatID, err)
	}
}

func (m *Manager) handleDiscard(client *Client, message WSMessage) {
	controller := m.requireRoom(client, message)
	if controller == nil {
		return
	}

	var data DiscardData
	if err := decodeData(message, &data); err != nil {
		m.sendError(client, message.ChatID, err)
		return
	}
	controller.Discard(data.TempID)
}

// handleWatchPosts streams the caller's post list as "posts" frames. A counselor sees either
// the pending queue or their one accepted post. A new watch replaces the previous one.
func (m *Manager) handleWatchPosts(client *Client, message WSMessage) {
	var data WatchPostsData
	if len(message.Data) > 0 {
		if err := decodeData(message, &data); err != nil {
			m.sendError(client, "", err)
			return
		}
	}

	var (
		stream *repository.Stream[*entity.Post]
		err    error
	)
	if client.Session.IsCounselor() {
		stream, err = m.posts.WatchCounselorPosts(client.ctx, client.Session)
	} else {
		stream, err = m.posts.WatchUserPosts(client.ctx, client.Session, data.Archived)
	}
	if err != nil {
		m.sendError(client, "", err)
		return
	}

	if !client.replaceWatch(stream) {
		stream.Stop()
		return
	}

	go func() {
		for posts := range stream.Snapshots() {
			if posts == nil {
				posts = []*entity.Post{}
			}
			client.pushFrame(newServerMessage(MessageTypePosts, "", posts))
		}
		if err := stream.Err(); err != nil {
			logger.Error("WebSocket: post watch for %s failed: %v", client.UserID, err)
			m.sendError(client, "", err)
		}
	}()
}

// replaceWatch installs stream as the client's post watch and stops the old one.
// It reports false when the client is already closed.
func (c *Client) replaceWatch(stream *repository.Stream[*entity.Post]) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	old := c.watch
	c.watch = stream
	c.mu.Unlock()

	if old != nil {
		old.Stop()
		metrics.ActiveSubscriptions.Dec()
	}
	if stream != nil {
		metrics.ActiveSubscriptions.Inc()
	}
	return true
}
