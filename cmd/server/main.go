// @title Dify Chat UI API
// @version 1.0
// @description 对话前端服务：发送消息、停止生成、会话切换和快照推送
// @host localhost:19970
// @BasePath /api/v1
// @schemes http
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	applog "github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/singleton"
	"github.com/fanqingsong/dify-chat-ui/internal/wire"
)

func main() {
	// 初始化日志系统
	applog.Init(nil)
	logger := applog.GetLogger()

	// 加载配置获取端口
	cfg := config.NewConfig()
	port := cfg.Server.HTTPPort

	// 单例锁检查：尝试获取端口锁
	listener, err := singleton.CheckAndLock(port)
	if errors.Is(err, singleton.ErrAlreadyRunning) {
		logger.Info("Another instance is already running, exiting", "port", port)
		os.Exit(0)
	}
	if err != nil {
		logger.Error("Singleton lock check failed", "port", port, "error", err)
		os.Exit(1)
	}
	// 关闭临时 listener，实际监听由 HTTP 服务器负责
	_ = listener.Close()

	app, cleanup, err := wire.InitializeAll()
	if err != nil {
		logger.Error("Failed to initialize application",
			"error", err,
		)
		os.Exit(1)
	}
	defer cleanup()

	if err := app.Start(); err != nil {
		logger.Error("Failed to start application",
			"error", err,
		)
		os.Exit(1)
	}

	// 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down application...")
	if err := app.Stop(); err != nil {
		logger.Error("Error during application shutdown",
			"error", err,
		)
	}
	logger.Info("Application stopped")
}
