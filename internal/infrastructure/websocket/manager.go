package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"speak/internal/chatview"
	"speak/internal/domain/entity"
	"speak/internal/domain/repository"
	"speak/internal/infrastructure/metrics"
	"speak/internal/infrastructure/ratelimit"
	"speak/internal/usecase"
	"speak/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Client represents one WebSocket connection of a signed-in session
type Client struct {
	UserID  string
	Session *entity.Session
	Conn    *websocket.Conn
	Send    chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	rooms  map[string]*chatview.Controller
	watch  *repository.Stream[*entity.Post]
	closed bool
}

// NewClient binds a connection to a session. The client context ends when the
// connection is unregistered, which tears down every open conversation.
func NewClient(ctx context.Context, session *entity.Session, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		UserID:  session.UserID,
		Session: session,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		ctx:     ctx,
		cancel:  cancel,
		rooms:   make(map[string]*chatview.Controller),
	}
}

// push queues a frame without blocking; frames for a saturated client are dropped.
func (c *Client) push(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		logger.Warn("WebSocket: send buffer full for %s, dropping frame", c.UserID)
		return false
	}
}

func (c *Client) room(postID string) *chatview.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[postID]
}

func (c *Client) InRoom(postID string) bool {
	return c.room(postID) != nil
}

// shutdown closes every controller and then the send channel.
func (c *Client) shutdown() {
	c.cancel()

	c.mu.Lock()
	rooms := c.rooms
	c.rooms = make(map[string]*chatview.Controller)
	watch := c.watch
	c.watch = nil
	c.mu.Unlock()

	if watch != nil {
		watch.Stop()
		metrics.ActiveSubscriptions.Dec()
	}

	for _, controller := range rooms {
		controller.Close()
		metrics.ActiveSubscriptions.Dec()
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
	c.mu.Unlock()
}

// Manager manages all active WebSocket connections and the conversations they have open
type Manager struct {
	clients    map[string]map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex

	chat        *usecase.ChatUseCase
	posts       *usecase.PostUseCase
	profiles    repository.ProfileRepository
	rateLimiter *ratelimit.RateLimiter
	typingQuiet time.Duration
}

func NewManager(chat *usecase.ChatUseCase, posts *usecase.PostUseCase, profiles repository.ProfileRepository, rateLimiter *ratelimit.RateLimiter, typingQuiet time.Duration) *Manager {
	return &Manager{
		clients:     make(map[string]map[*Client]struct{}),
		rooms:       make(map[string]map[*Client]struct{}),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		done:        make(chan struct{}),
		chat:        chat,
		posts:       posts,
		profiles:    profiles,
		rateLimiter: rateLimiter,
		typingQuiet: typingQuiet,
	}
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		for {
			select {
			case client := <-m.Register:
				m.addClient(client)
				logger.Info("WebSocket: client registered: %s", client.UserID)

			case client := <-m.Unregister:
				if m.removeClient(client) {
					go client.shutdown()
					logger.Info("WebSocket: client unregistered: %s", client.UserID)
				}

			case <-ctx.Done():
				m.closeAll()
				return
			}
		}
	}()
}

// Attach registers client, or shuts it down when the manager has stopped.
func (m *Manager) Attach(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		client.shutdown()
		return false
	}
}

func (m *Manager) detach(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) addClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		m.clients[client.UserID] = conns
	}
	conns[client] = struct{}{}
	metrics.WebSocketConnections.Inc()
}

func (m *Manager) removeClient(client *Client) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		return false
	}
	if _, ok := conns[client]; !ok {
		return false
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(m.clients, client.UserID)
	}
	for postID, members := range m.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(m.rooms, postID)
		}
	}
	metrics.WebSocketConnections.Dec()
	return true
}

func (m *Manager) closeAll() {
	m.mutex.Lock()
	var all []*Client
	for _, conns := range m.clients {
		for client := range conns {
			all = append(all, client)
		}
	}
	m.clients = make(map[string]map[*Client]struct{})
	m.rooms = make(map[string]map[*Client]struct{})
	m.mutex.Unlock()

	for _, client := range all {
		client.shutdown()
		metrics.WebSocketConnections.Dec()
	}
}

func (m *Manager) joinRoom(postID string, client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	members, ok := m.rooms[postID]
	if !ok {
		members = make(map[*Client]struct{})
		m.rooms[postID] = members
	}
	members[client] = struct{}{}
}

func (m *Manager) leaveRoom(postID string, client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if members, ok := m.rooms[postID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(m.rooms, postID)
		}
	}
}

// IsOnline reports whether userID has at least one open connection.
func (m *Manager) IsOnline(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID]) > 0
}

// SendToUser sends a frame to every connection of userID
func (m *Manager) SendToUser(userID string, message ServerMessage) int {
	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("WebSocket: failed to marshal %s frame: %v", message.Type, err)
		return 0
	}

	m.mutex.RLock()
	targets := make([]*Client, 0, len(m.clients[userID]))
	for client := range m.clients[userID] {
		targets = append(targets, client)
	}
	m.mutex.RUnlock()

	sent := 0
	for _, client := range targets {
		if client.push(payload) {
			sent++
		}
	}
	return sent
}

// BroadcastToRoomExcept sends a frame to every connection in postID's room not owned by userID
func (m *Manager) BroadcastToRoomExcept(postID, userID string, message ServerMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("WebSocket: failed to marshal %s frame: %v", message.Type, err)
		return
	}

	m.mutex.RLock()
	var targets []*Client
	for client := range m.rooms[postID] {
		if client.UserID != userID {
			targets = append(targets, client)
		}
	}
	m.mutex.RUnlock()

	for _, client := range targets {
		client.push(payload)
	}
}

func (m *Manager) Name() string {
	return "websocket"
}

// Send delivers an in-app notification to the recipient's connections. Connections
// that already have the conversation open are skipped: their chat view raises its own.
func (m *Manager) Send(ctx context.Context, recipientID string, notification entity.Notification) error {
	postID := notification.Data["postId"]
	frame := newServerMessage(MessageTypeNotification, "", notification)
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	m.mutex.RLock()
	var targets []*Client
	for client := range m.clients[recipientID] {
		targets = append(targets, client)
	}
	m.mutex.RUnlock()

	for _, client := range targets {
		if postID != "" && client.InRoom(postID) {
			continue
		}
		client.push(payload)
	}
	return nil
}

// Deliver adapts Send to the event bus subscriber callback.
func (m *Manager) Deliver(recipientID string, notification entity.Notification) {
	_ = m.Send(context.Background(), recipientID, notification)
}

// senderName resolves the display name used as a notification title.
func (m *Manager) senderName(ctx context.Context) func(string) string {
	return func(senderID string) string {
		if m.profiles == nil {
			return ""
		}
		if p, err := m.profiles.GetCounselor(ctx, senderID); err == nil {
			return p.DisplayName
		}
		if p, err := m.profiles.GetUser(ctx, senderID); err == nil {
			return p.DisplayName
		}
		return ""
	}
}

// ReadPump reads frames from the connection until it closes
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.detach(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: read error for %s: %v", c.UserID, err)
			}
			break
		}
		m.HandleClientMessage(c, message)
	}
}

// WritePump sends queued frames to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket: write error for %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
