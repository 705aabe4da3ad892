// Package websocket 向订阅了邮箱的浏览器推送新邮件通知。
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mailme/backend/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// ErrQueueFull 广播队列已满，通知被丢弃。
var ErrQueueFull = errors.New("websocket broadcast queue full")

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNewMail    MessageType = "new_mail"
	MessageTypeSubscribed MessageType = "subscribed"
	MessageTypePing       MessageType = "ping"
	MessageTypePong       MessageType = "pong"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Username  string          `json:"username,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMailData 新邮件通知数据，只携带元数据，正文需另行拉取
type NewMailData struct {
	MessageID string    `json:"messageId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client 代表一个WebSocket客户端连接，连接时即绑定到单个邮箱
type Client struct {
	ID       string
	Username string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
}

type broadcastMessage struct {
	username string
	payload  []byte
}

type unicastMessage struct {
	client  *Client
	payload []byte
}

// Hub 管理所有WebSocket连接
//
// 订阅表只在 Run 协程内修改，send 通道也只由 Run 写入和关闭。
type Hub struct {
	subscribers map[string]map[string]*Client // username -> clientID -> Client
	register    chan *Client
	unregister  chan *Client
	broadcast   chan broadcastMessage
	unicast     chan unicastMessage
	done        chan struct{}
	count       map[string]int
	mu          sync.RWMutex
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

// NewHub 创建WebSocket Hub，allowedOrigins 为空或包含 "*" 时允许所有来源
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan broadcastMessage, 256),
		unicast:     make(chan unicastMessage),
		done:        make(chan struct{}),
		count:       make(map[string]int),
		upgrader:    newUpgrader(allowedOrigins),
		log:         log.Named("websocket"),
	}
}

// newUpgrader 创建带有 Origin 验证的 WebSocket 升级器
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// Run 启动Hub，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.log.Info("websocket hub stopped")
			return

		case client := <-h.register:
			clients := h.subscribers[client.Username]
			if clients == nil {
				clients = make(map[string]*Client)
				h.subscribers[client.Username] = clients
			}
			clients[client.ID] = client
			h.setCount(client.Username, len(clients))
			h.deliver(client, h.encode(&Message{
				Type:      MessageTypeSubscribed,
				Username:  client.Username,
				Timestamp: time.Now().UTC(),
			}))
			h.log.Debug("client subscribed", zap.String("client_id", client.ID), zap.String("username", client.Username))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for _, client := range h.subscribers[msg.username] {
				h.deliver(client, msg.payload)
			}

		case msg := <-h.unicast:
			if _, ok := h.subscribers[msg.client.Username][msg.client.ID]; ok {
				h.deliver(msg.client, msg.payload)
			}
		}
	}
}

// NotifyNewMessage 向订阅该邮箱的客户端推送新邮件，队列满时返回 ErrQueueFull
func (h *Hub) NotifyNewMessage(ctx context.Context, mailbox *domain.Mailbox, msg *domain.StoredMessage) error {
	data, err := json.Marshal(NewMailData{
		MessageID: msg.ID,
		From:      msg.From,
		To:        msg.To,
		Subject:   msg.Subject,
		Snippet:   msg.Snippet,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return err
	}

	payload := h.encode(&Message{
		Type:      MessageTypeNewMail,
		Username:  mailbox.Username,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if payload == nil {
		return errors.New("failed to encode websocket message")
	}

	select {
	case h.broadcast <- broadcastMessage{username: mailbox.Username, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Subscribers 返回订阅某邮箱的连接数
func (h *Hub) Subscribers(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count[username]
}

// Serve 升级连接并订阅 username 对应的邮箱，调用方负责确认邮箱存在
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, username string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection",
			zap.Error(err),
			zap.String("origin", r.Header.Get("Origin")),
		)
		return
	}

	client := &Client{
		ID:       uuid.NewString(),
		Username: username,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		hub:      h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) deliver(client *Client, payload []byte) {
	if payload == nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		h.log.Warn("client channel blocked, dropping connection", zap.String("client_id", client.ID))
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.subscribers[client.Username]
	if !ok {
		return
	}
	if _, ok := clients[client.ID]; !ok {
		return
	}
	delete(clients, client.ID)
	if len(clients) == 0 {
		delete(h.subscribers, client.Username)
	}
	h.setCount(client.Username, len(clients))
	close(client.send)
}

func (h *Hub) closeAll() {
	for _, clients := range h.subscribers {
		for _, client := range clients {
			close(client.send)
		}
	}
	h.subscribers = make(map[string]map[string]*Client)

	h.mu.Lock()
	h.count = make(map[string]int)
	h.mu.Unlock()
}

func (h *Hub) setCount(username string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n == 0 {
		delete(h.count, username)
		return
	}
	h.count[username] = n
}

func (h *Hub) encode(msg *Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return nil
	}
	return data
}

// readPump 读取客户端消息，只处理 ping 与连接保活
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			c.reply(&Message{Type: MessageTypePong, Timestamp: time.Now().UTC()})
		}
	}
}

// reply 经由 Run 协程写入 send 通道，连接只由 writePump 写
func (c *Client) reply(msg *Message) {
	payload := c.hub.encode(msg)
	if payload == nil {
		return
	}
	select {
	case c.hub.unicast <- unicastMessage{client: c, payload: payload}:
	case <-c.hub.done:
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
