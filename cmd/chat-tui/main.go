package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/application/conversation"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/dify"
	applog "github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/storage"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/tokenizer"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/tui"
)

const version = "0.1.0"

var (
	appID  string
	userID string
)

var rootCmd = &cobra.Command{
	Use:     "chat-tui",
	Short:   "Terminal chat client for Dify apps",
	Version: version,
	Long: `Chat with a configured Dify app from the terminal.

Apps are read from the same config.yaml and environment variables as the server
(DIFY_APP_ID, DIFY_APP_KEY, DIFY_API_URL). Logs go to <data dir>/chat-tui.log.`,
	Example: `  # Chat with the default app
  $ chat-tui

  # Pick an app and a user id
  $ chat-tui --app support --user alice

  # Keys:
  • Enter 发送 • Ctrl+S 停止 • Ctrl+N 新会话 • Ctrl+O 切换会话 • Esc 退出`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&appID, "app", "", "app config id (defaults to the default app)")
	rootCmd.Flags().StringVar(&userID, "user", defaultUserID(), "user id sent to the backend")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	// 界面占用终端，日志写入文件
	logCfg := applog.NewConfigFromEnv()
	logCfg.Output = "file:" + filepath.Join(config.GetDataDir(), "chat-tui.log")
	applog.Init(logCfg)

	cfg := config.NewConfig()
	registry := config.NewAppRegistry(cfg)
	if _, err := registry.Resolve(appID); err != nil {
		return fmt.Errorf("resolve app: %w (set DIFY_APP_ID and DIFY_APP_KEY or add apps to %s)", err, config.ConfigFilePath())
	}

	db, closeDB, err := storage.ProvideDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB()

	store := storage.NewConversationStateRepository(db)
	publisher := tui.NewChannelPublisher()
	chatCfg := config.NewChatConfig(cfg)
	manager := appChat.NewManager(
		tokenizer.NewEstimator(),
		publisher,
		store,
		chatCfg,
		dify.ProvideBackendFactory(chatCfg),
	)
	service := conversation.NewService(registry, manager, store, chatCfg)
	defer func() {
		manager.Close()
		publisher.Close()
	}()

	program := tui.NewProgram(service, publisher, tui.Options{AppID: appID, UserID: userID})
	if err := program.Run(); err != nil {
		return fmt.Errorf("failed to run chat TUI: %w", err)
	}
	return nil
}

func defaultUserID() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "terminal"
}
