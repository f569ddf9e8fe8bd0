package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/handler"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http/middleware"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/mcp"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fanqingsong/dify-chat-ui/docs" // Swagger docs
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	serverCfg *config.ServerConfig,
	users user.Repository,
	chatHandler *handler.ChatHandler,
	conversationHandler *handler.ConversationHandler,
	adminHandler *handler.AdminHandler,
	userHandler *handler.UserHandler,
	wsHandler *handler.WebSocketHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())

	logger := log.NewModuleLogger("http", "server")

	session := middleware.Session(users, serverCfg.TrustUserHeader)

	api := router.Group("/api/v1", middleware.EnsureUTF8Body(), session)
	{
		// 对话
		api.POST("/chat-messages", chatHandler.Send)
		api.POST("/chat-messages/:session_id/stop", chatHandler.Stop)
		api.GET("/transcript", chatHandler.Transcript)
		api.POST("/conversations/switch", chatHandler.Switch)
		api.POST("/messages/:message_id/feedbacks", chatHandler.Feedback)

		// 会话与应用
		api.GET("/init", conversationHandler.Init)
		api.GET("/conversations", conversationHandler.List)
		api.POST("/conversations/:conversation_id/name", conversationHandler.Rename)
		api.GET("/parameters", conversationHandler.Parameters)
		api.GET("/apps", conversationHandler.Apps)

		// 快照推送
		api.GET("/ws", wsHandler.Serve)

		admin := api.Group("/admin", middleware.RequireAdmin())
		{
			admin.GET("/streams", adminHandler.Streams)
			admin.POST("/streams/:session_id/stop", adminHandler.Stop)
			admin.POST("/users", userHandler.Create)
			admin.GET("/users/:user_id", userHandler.Get)
			admin.PUT("/users/:user_id", userHandler.Update)
			admin.POST("/users/:user_id/role", userHandler.AssignRole)
		}
	}

	// 健康检查，单例锁依赖 service 字段识别本服务
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": log.ServiceName})
	})

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP SSE 端点，可查看和停止所有用户的流，仅管理员可用
	if mcpServer != nil {
		router.Any("/mcp/sse", session, middleware.RequireAdmin(), gin.WrapH(mcpServer.GetHandler()))
	}

	return &HTTPServer{
		router:   router,
		httpPort: serverCfg.HTTPPort,
		logger:   logger,
	}
}

// Handler 路由（测试用）
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:              s.httpPort,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
