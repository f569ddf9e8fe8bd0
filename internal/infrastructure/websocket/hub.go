// Package websocket 按用户键管理 WebSocket 连接并推送消息
package websocket

import (
	"log/slog"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
)

// Hub WebSocket 连接管理中心
type Hub struct {
	// 按用户键分组的连接
	users map[string]map[*Connection]bool
	// 注册连接
	register chan *Connection
	// 注销连接
	unregister chan *Connection
	// 广播消息
	broadcast chan *Message
	stop      chan struct{}
	stopOnce  sync.Once
	mu        sync.RWMutex
	logger    *slog.Logger
}

// Connection 一个客户端连接
type Connection struct {
	UserKey string
	Send    chan []byte
}

// NewConnection 创建连接
func NewConnection(userKey string) *Connection {
	return &Connection{
		UserKey: userKey,
		Send:    make(chan []byte, 64),
	}
}

// Message 待广播的消息
type Message struct {
	UserKey string
	Data    []byte
}

// Envelope 推送给客户端的消息格式
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		users:      make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *Message, 256),
		stop:       make(chan struct{}),
		logger:     log.NewModuleLogger("websocket", "hub"),
	}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.users[conn.UserKey] == nil {
				h.users[conn.UserKey] = make(map[*Connection]bool)
			}
			h.users[conn.UserKey][conn] = true
			h.mu.Unlock()
			h.logger.Debug("Connection registered", "user_key", conn.UserKey)

		case conn := <-h.unregister:
			h.mu.Lock()
			h.remove(conn)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.users[msg.UserKey] {
				select {
				case conn.Send <- msg.Data:
				default:
					// 客户端消费过慢，断开后由客户端重连拉取最新快照
					h.logger.Warn("Send buffer full, dropping connection", "user_key", conn.UserKey)
					h.remove(conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove 调用方持有 mu
func (h *Hub) remove(conn *Connection) {
	group, ok := h.users[conn.UserKey]
	if !ok {
		return
	}
	if _, ok := group[conn]; !ok {
		return
	}
	delete(group, conn)
	close(conn.Send)
	if len(group) == 0 {
		delete(h.users, conn.UserKey)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, group := range h.users {
		for conn := range group {
			close(conn.Send)
		}
	}
	h.users = make(map[string]map[*Connection]bool)
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	go h.Run()
}

// Stop 停止 Hub 并关闭所有连接
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Register 注册连接
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.stop:
		close(conn.Send)
	}
}

// Unregister 注销连接
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.stop:
	}
}

// ClientCount 用户的在线连接数
func (h *Hub) ClientCount(userKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userKey])
}

// Broadcast 向用户的所有连接推送消息
func (h *Hub) Broadcast(userKey, msgType string, data any) error {
	payload, err := sonic.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &Message{UserKey: userKey, Data: payload}:
	case <-h.stop:
	}
	return nil
}
