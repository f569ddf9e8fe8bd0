package config

import (
	"os"
	"strings"
	"time"
)

// 环境变量名
const (
	// EnvHTTPPort HTTP 监听端口
	EnvHTTPPort = "DIFY_CHAT_HTTP_PORT"
	// EnvAppID 默认应用 ID
	EnvAppID = "DIFY_APP_ID"
	// EnvAppKey 默认应用 API Key
	EnvAppKey = "DIFY_APP_KEY"
	// EnvAPIURL 默认应用 API 地址
	EnvAPIURL = "DIFY_API_URL"
	// EnvEnableMCP 是否启用 MCP 端点
	EnvEnableMCP = "DIFY_CHAT_ENABLE_MCP"
	// EnvTrustUserHeader 是否信任 X-User-Id 请求头
	EnvTrustUserHeader = "DIFY_CHAT_TRUST_USER_HEADER"
)

// DefaultAPIURL Dify 云服务地址
const DefaultAPIURL = "https://api.dify.ai/v1"

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Chat      ChatConfig      `yaml:"chat"`
	AppInfo   AppInfo         `yaml:"app_info"`
	Apps      []AppConfig     `yaml:"apps"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort  string `yaml:"http_port"` // 固定端口，用于单例锁
	EnableMCP bool   `yaml:"enable_mcp"`
	// TrustUserHeader 仅在前置认证代理会覆写 X-User-Id 时开启
	TrustUserHeader bool `yaml:"trust_user_header"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path 为空时使用 <data dir>/dify-chat.db
	Path string `yaml:"path"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
}

// ChatConfig 对话相关配置
type ChatConfig struct {
	// InitTimeout 初始化（拉取会话列表和应用参数）超时，超时后使用默认状态
	InitTimeout time.Duration `yaml:"init_timeout"`
	// HistoryLimit 全量同步时拉取的历史消息条数
	HistoryLimit int `yaml:"history_limit"`
	// ConversationLimit 会话列表条数
	ConversationLimit int `yaml:"conversation_limit"`
	// RequestTimeout 非流式请求超时
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AppInfo 页面展示信息
type AppInfo struct {
	Title           string `yaml:"title" json:"title"`
	Description     string `yaml:"description" json:"description"`
	Copyright       string `yaml:"copyright" json:"copyright"`
	PrivacyPolicy   string `yaml:"privacy_policy" json:"privacy_policy"`
	DefaultLanguage string `yaml:"default_language" json:"default_language"`
}

// AppConfig 一个 Dify 应用
type AppConfig struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	AppID       string `yaml:"app_id" json:"app_id"`
	APIKey      string `yaml:"api_key" json:"-"`
	APIURL      string `yaml:"api_url" json:"api_url"`
	Description string `yaml:"description" json:"description,omitempty"`
	IsDefault   bool   `yaml:"is_default" json:"is_default"`
}

// NewConfig 创建配置
// 依次应用默认值、<data dir>/config.yaml 和环境变量
func NewConfig() *Config {
	cfg := DefaultConfig()
	if fileCfg, err := LoadFile(ConfigFilePath()); err == nil {
		cfg = fileCfg
	}
	cfg.applyEnv()
	return cfg
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        ":19970",
			EnableMCP:       false,
			TrustUserHeader: false,
		},
		Database: DatabaseConfig{
			Path: "",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Chat: ChatConfig{
			InitTimeout:       5 * time.Second,
			HistoryLimit:      100,
			ConversationLimit: 100,
			RequestTimeout:    30 * time.Second,
		},
		AppInfo: AppInfo{
			Title:           "Chat APP",
			DefaultLanguage: "en",
		},
	}
}

// applyEnv 环境变量覆盖
func (c *Config) applyEnv() {
	if port := os.Getenv(EnvHTTPPort); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		c.Server.HTTPPort = port
	}
	if v := os.Getenv(EnvEnableMCP); v != "" {
		c.Server.EnableMCP = parseBool(v)
	}
	if v := os.Getenv(EnvTrustUserHeader); v != "" {
		c.Server.TrustUserHeader = parseBool(v)
	}

	appID := os.Getenv(EnvAppID)
	appKey := os.Getenv(EnvAppKey)
	if appID == "" && appKey == "" {
		return
	}
	apiURL := os.Getenv(EnvAPIURL)
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	envApp := AppConfig{
		ID:        "default",
		Name:      "Default App",
		AppID:     appID,
		APIKey:    appKey,
		APIURL:    apiURL,
		IsDefault: true,
	}

	// 环境变量中的应用替换同 ID 的配置并成为默认应用
	apps := []AppConfig{envApp}
	for _, app := range c.Apps {
		if app.ID == envApp.ID {
			continue
		}
		app.IsDefault = false
		apps = append(apps, app)
	}
	c.Apps = apps
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewWebSocketConfig 创建 WebSocket 配置
func NewWebSocketConfig(cfg *Config) *WebSocketConfig {
	return &cfg.WebSocket
}

// NewChatConfig 创建对话配置
func NewChatConfig(cfg *Config) *ChatConfig {
	return &cfg.Chat
}

// NewAppInfo 创建页面展示信息
func NewAppInfo(cfg *Config) *AppInfo {
	return &cfg.AppInfo
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}
