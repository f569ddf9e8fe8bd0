package chat

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/auth"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// backendEntry 按应用缓存的后端客户端
type backendEntry struct {
	app     config.AppConfig
	backend domainChat.Backend
}

// Manager 管理所有用户的对话控制器
type Manager struct {
	tokens    TokenCounter
	publisher Publisher
	store     ConversationStore
	chatCfg   *config.ChatConfig
	factory   BackendFactory
	logger    *slog.Logger

	mu          sync.Mutex
	backends    map[string]backendEntry
	controllers map[string]*Controller
	closed      bool
}

// NewManager 创建控制器管理器
func NewManager(
	tokens TokenCounter,
	publisher Publisher,
	store ConversationStore,
	chatCfg *config.ChatConfig,
	factory BackendFactory,
) *Manager {
	return &Manager{
		tokens:      tokens,
		publisher:   publisher,
		store:       store,
		chatCfg:     chatCfg,
		factory:     factory,
		logger:      log.NewModuleLogger("chat", "manager"),
		backends:    make(map[string]backendEntry),
		controllers: make(map[string]*Controller),
	}
}

// Backend 返回应用对应的后端客户端，配置变化时重建
func (m *Manager) Backend(app config.AppConfig) domainChat.Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backendLocked(app)
}

func (m *Manager) backendLocked(app config.AppConfig) domainChat.Backend {
	if entry, ok := m.backends[app.ID]; ok && entry.app == app {
		return entry.backend
	}
	b := m.factory(app)
	m.backends[app.ID] = backendEntry{app: app, backend: b}
	m.logger.Debug("Backend client created", "app", app.ID, "api_url", app.APIURL)
	return b
}

// Get 返回用户在指定应用下的控制器，不存在时创建
// 关闭后返回 ErrControllerClosed，不再创建新的控制器。
func (m *Manager) Get(app config.AppConfig, userID string) (*Controller, error) {
	key := auth.UserKey(app.AppID, userID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrControllerClosed
	}
	backend := m.backendLocked(app)
	if c, ok := m.controllers[key]; ok {
		c.setBackend(backend)
		return c, nil
	}

	c := NewController(ControllerConfig{
		UserKey:        key,
		AppID:          app.ID,
		HistoryLimit:   m.chatCfg.HistoryLimit,
		RequestTimeout: m.chatCfg.RequestTimeout,
	}, backend, m.tokens, m.publisher, m.store)
	m.controllers[key] = c
	m.logger.Info("Chat controller created", "user_key", key, "app", app.ID)
	return c, nil
}

// Find 按用户键查找已存在的控制器
func (m *Manager) Find(userKey string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[userKey]
	return c, ok
}

// ActiveSessions 所有进行中的流式会话（按开始时间排序）
func (m *Manager) ActiveSessions() []domainChat.StreamSession {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		controllers = append(controllers, c)
	}
	m.mu.Unlock()

	sessions := make([]domainChat.StreamSession, 0)
	for _, c := range controllers {
		if s, ok := c.ActiveSession(); ok {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}

// Close 关闭所有控制器
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	controllers := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		controllers = append(controllers, c)
	}
	m.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
	m.logger.Info("Chat controllers closed", "count", len(controllers))
}
