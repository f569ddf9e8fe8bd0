package handler

import (
	"log/slog"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/auth"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/websocket"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

// WebSocketHandler 快照推送连接
// 连接建立后只接收推送，当前状态先通过 GET /transcript 获取
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	registry *config.AppRegistry
	logger   *slog.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(hub *websocket.Hub, registry *config.AppRegistry, wsCfg *config.WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: websocket.NewUpgrader(wsCfg),
		registry: registry,
		logger:   log.NewModuleLogger("http", "websocket"),
	}
}

// Serve 升级为 WebSocket 连接
// @Summary 快照推送
// @Tags 对话
// @Param app_id query string false "应用 ID"
// @Router /ws [get]
func (h *WebSocketHandler) Serve(c *gin.Context) {
	app, err := h.registry.Resolve(c.Query("app_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	s := middleware.CurrentSession(c)
	userKey := auth.UserKey(app.AppID, s.UserID)

	if err := h.hub.Serve(h.upgrader, c.Writer, c.Request, userKey); err != nil {
		// Upgrade 失败时已经写过响应
		h.logger.Warn("WebSocket upgrade failed", "user_key", userKey, "error", err)
	}
}
