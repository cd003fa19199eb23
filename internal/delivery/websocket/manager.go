package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"chaos-stories/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
	broadcastQueue = 1024
)

var errManagerStopped = errors.New("websocket manager stopped")

// Manager раздает события сессий подписанным WebSocket-клиентам. Тема клиента равна ID сессии.
type Manager struct {
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan service.GameEvent
	done       chan struct{}
	mu         sync.RWMutex
}

// Client представляет WebSocket-клиента
type Client struct {
	ID      uuid.UUID
	Conn    *websocket.Conn
	Manager *Manager
	Send    chan []byte

	topicsMu sync.RWMutex
	topics   map[string]bool
}

// clientCommand управляет подписками клиента.
type clientCommand struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// NewManager создает новый экземпляр Manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("ws_manager"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // TODO: ограничить разрешенные источники, когда появится фронтенд-домен
			},
		},
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan service.GameEvent, broadcastQueue),
		done:       make(chan struct{}),
	}
}

// Run обрабатывает регистрацию клиентов и рассылку до отмены ctx.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.mu.Lock()
			for id, client := range m.clients {
				close(client.Send)
				delete(m.clients, id)
			}
			m.mu.Unlock()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			m.mu.Unlock()
			m.logger.Debug("Client connected", zap.String("client_id", client.ID.String()))

		case client := <-m.unregister:
			m.remove(client)

		case event := <-m.broadcast:
			m.deliver(event)
		}
	}
}

// Notify implements service.Notifier. It never blocks the session loop: when the queue is full the
// event is dropped.
func (m *Manager) Notify(event service.GameEvent) {
	select {
	case m.broadcast <- event:
	default:
		m.logger.Warn("Broadcast queue full, dropping event",
			zap.String("session_id", event.SessionID.String()),
			zap.String("type", string(event.Type)),
		)
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) deliver(event service.GameEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("Failed to marshal game event", zap.String("session_id", event.SessionID.String()), zap.Error(err))
		return
	}
	topic := event.SessionID.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		if !client.IsSubscribed(topic) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Медленный клиент: отключаем, а не блокируем рассылку
			m.logger.Warn("Client send buffer full, disconnecting", zap.String("client_id", id.String()))
			close(client.Send)
			delete(m.clients, id)
		}
	}
}

func (m *Manager) remove(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; ok {
		close(client.Send)
		delete(m.clients, client.ID)
		m.logger.Debug("Client disconnected", zap.String("client_id", client.ID.String()))
	}
}

// ServeSession upgrades the request and subscribes the connection to the session's events.
func (m *Manager) ServeSession(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("WebSocket upgrade failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		return err
	}

	client := &Client{
		ID:      uuid.New(),
		Conn:    conn,
		Manager: m,
		Send:    make(chan []byte, sendBuffer),
		topics:  map[string]bool{sessionID.String(): true},
	}
	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return errManagerStopped
	}

	go client.readPump()
	go client.writePump()
	return nil
}

// readPump обрабатывает входящие команды подписки
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Manager.unregister <- c:
		case <-c.Manager.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Manager.logger.Warn("WebSocket read error", zap.String("client_id", c.ID.String()), zap.Error(err))
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.Manager.logger.Debug("Ignoring malformed client command", zap.String("client_id", c.ID.String()), zap.Error(err))
			continue
		}
		if _, err := uuid.Parse(cmd.Topic); err != nil {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			c.Subscribe(cmd.Topic)
		case "unsubscribe":
			c.Unsubscribe(cmd.Topic)
		}
	}
}

// writePump отправляет сообщения клиенту, по одному JSON-событию на фрейм
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Subscribe подписывает клиента на тему
func (c *Client) Subscribe(topic string) {
	c.topicsMu.Lock()
	c.topics[topic] = true
	c.topicsMu.Unlock()
}

// Unsubscribe отписывает клиента от темы
func (c *Client) Unsubscribe(topic string) {
	c.topicsMu.Lock()
	delete(c.topics, topic)
	c.topicsMu.Unlock()
}

// IsSubscribed проверяет, подписан ли клиент на тему
func (c *Client) IsSubscribed(topic string) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	return c.topics[topic]
}
