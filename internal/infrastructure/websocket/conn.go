package websocket

import (
	"net/http"
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/gorilla/websocket"
)

const (
	// writeWait 单次写超时
	writeWait = 10 * time.Second
	// pongWait 超过该时间未收到任何消息则断开
	pongWait = 60 * time.Second
	// pingPeriod 必须小于 pongWait
	pingPeriod = pongWait * 9 / 10
	// maxMessageSize 客户端只发送控制消息
	maxMessageSize = 4 * 1024
)

// NewUpgrader 按配置创建 Upgrader
func NewUpgrader(cfg *config.WebSocketConfig) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Serve 升级连接并在返回前持续推送，直到客户端断开
func (h *Hub) Serve(upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, userKey string) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := NewConnection(userKey)
	h.Register(conn)
	h.logger.Info("Client connected", "user_key", userKey, "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		h.readPump(ws, conn)
		close(done)
	}()
	h.writePump(ws, conn, done)

	h.logger.Info("Client disconnected", "user_key", userKey)
	return nil
}

// readPump 丢弃客户端消息，只用于感知断开和续期超时
func (h *Hub) readPump(ws *websocket.Conn, conn *Connection) {
	defer h.Unregister(conn)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Connection read error", "user_key", conn.UserKey, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump 把 Send 中的消息写给客户端，并定期发送 Ping
func (h *Hub) writePump(ws *websocket.Conn, conn *Connection, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case <-done:
			return
		case message, ok := <-conn.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Warn("Failed to write message", "user_key", conn.UserKey, "error", err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
