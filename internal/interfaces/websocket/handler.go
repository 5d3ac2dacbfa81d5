// Package websocket streams bus events to a user's connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/niceassistant/assistant/internal/infrastructure/eventbus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 用户身份由前置代理保证
	},
}

// MessageType 消息类型
type MessageType string

const (
	MessageTypeEvent MessageType = "event"
)

// WSMessage WebSocket 消息
type WSMessage struct {
	Type      MessageType `json:"type"`
	Event     string      `json:"event,omitempty"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Client WebSocket 客户端
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger *zap.Logger
}

type delivery struct {
	userID string
	data   []byte
}

// Hub WebSocket 连接中心
// Only Run mutates the client set; everything else talks to it through
// channels.
type Hub struct {
	clients    map[string]*Client
	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *zap.Logger

	mu    sync.RWMutex
	count int
}

// NewHub 创建连接中心
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		deliver:    make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With(zap.String("component", "websocket")),
	}
}

// Attach forwards every bus event to the owning user's clients. The returned
// function unsubscribes.
func (h *Hub) Attach(bus eventbus.Bus) func() {
	return bus.Subscribe("*", func(_ context.Context, e eventbus.Event) {
		h.Publish(e)
	})
}

// Publish queues an event for its user's clients. Events without a user and
// events arriving after the hub stopped are dropped.
func (h *Hub) Publish(e eventbus.Event) {
	if e.UserID() == "" {
		return
	}
	data, err := json.Marshal(&WSMessage{
		Type:      MessageTypeEvent,
		Event:     e.Type(),
		Payload:   e.Payload(),
		Timestamp: e.Timestamp().Unix(),
	})
	if err != nil {
		h.logger.Warn("Failed to encode event", zap.String("event", e.Type()), zap.Error(err))
		return
	}
	select {
	case h.deliver <- delivery{userID: e.UserID(), data: data}:
	case <-h.done:
	default:
		h.logger.Warn("Event dropped, hub is busy", zap.String("event", e.Type()))
	}
}

// Run 运行连接中心, 直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for id, c := range h.clients {
			close(c.send)
			delete(h.clients, id)
		}
		h.setCount(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client.ID] = client
			h.setCount(len(h.clients))
			h.logger.Info("Client connected",
				zap.String("client_id", client.ID),
				zap.String("user_id", client.UserID),
			)
		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.setCount(len(h.clients))
			}
			h.logger.Info("Client disconnected", zap.String("client_id", client.ID))
		case d := <-h.deliver:
			for id, client := range h.clients {
				if client.UserID != d.userID {
					continue
				}
				select {
				case client.send <- d.data:
				default:
					// 慢客户端直接断开
					close(client.send)
					delete(h.clients, id)
					h.setCount(len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// ServeWS upgrades the request and registers a client for userID. The caller
// has already authenticated the user.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
		logger: h.logger,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump 读取并丢弃客户端消息, 只用于感知断开和 pong
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump 写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
