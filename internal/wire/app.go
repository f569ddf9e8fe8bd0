package wire

import (
	"errors"
	"log/slog"
	"net/http"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/application/conversation"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	applog "github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/notification"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/watcher"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/websocket"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer
	MCPServer  *interfaces.MCPServer
	wsHub      *websocket.Hub
	pusher     *notification.WebSocketPusher
	registry   *config.AppRegistry
	manager    *appChat.Manager
	service    *conversation.Service
	users      user.Repository
	logger     *slog.Logger

	// 事件与配置文件监听
	eventBus      events.EventBus
	fileWatcher   *watcher.FileWatcher
	unsubscribers []func()
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	wsHub *websocket.Hub,
	eventBus events.EventBus,
	fileWatcher *watcher.FileWatcher,
	pusher *notification.WebSocketPusher,
	registry *config.AppRegistry,
	manager *appChat.Manager,
	service *conversation.Service,
	users user.Repository,
) *App {
	return &App{
		HTTPServer:  httpServer,
		MCPServer:   mcpServer,
		wsHub:       wsHub,
		pusher:      pusher,
		registry:    registry,
		manager:     manager,
		service:     service,
		users:       users,
		logger:      applog.NewModuleLogger("app", "main"),
		eventBus:    eventBus,
		fileWatcher: fileWatcher,
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting dify chat application", "apps", len(a.registry.List()))

	if err := a.users.EnsureRoles(user.DefaultRoles()); err != nil {
		a.logger.Error("Failed to ensure default roles", "error", err)
	}

	// 注册事件订阅者并启动配置文件监听
	a.setupEventSubscribers()
	if a.fileWatcher != nil {
		if err := a.fileWatcher.Start(); err != nil {
			a.logger.Error("Failed to start file watcher",
				"error", err,
			)
		} else {
			a.logger.Info("Config file watcher started")
		}
	}

	// 启动 WebSocket Hub
	a.wsHub.Start()

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	if a.MCPServer != nil {
		a.logger.Info("MCP endpoint enabled", "path", "/mcp/sse")
	}
	a.logger.Info("Dify chat application started successfully")
	return nil
}

// setupEventSubscribers 注册事件订阅者
func (a *App) setupEventSubscribers() {
	if a.eventBus == nil {
		return
	}

	// 快照和流状态推送到 WebSocket
	a.unsubscribers = append(a.unsubscribers, a.pusher.Subscribe(a.eventBus))

	// 配置文件变更时热加载应用列表
	a.unsubscribers = append(a.unsubscribers,
		a.eventBus.Subscribe(events.ConfigFileChanged, a.registry))

	// 新会话创建后自动命名
	a.unsubscribers = append(a.unsubscribers,
		a.eventBus.Subscribe(events.ConversationCreated, a.service))

	a.logger.Info("Event subscribers registered", "count", len(a.unsubscribers))
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping dify chat application")

	// 先停止接收请求，再结束进行中的流
	var stopErr error
	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		stopErr = err
	}

	a.manager.Close()

	if a.fileWatcher != nil {
		a.fileWatcher.Stop()
		a.logger.Info("File watcher stopped")
	}

	for _, unsubscribe := range a.unsubscribers {
		unsubscribe()
	}
	a.unsubscribers = nil

	if a.eventBus != nil {
		a.eventBus.Close()
	}

	a.wsHub.Stop()

	a.logger.Info("Dify chat application stopped")
	return stopErr
}
