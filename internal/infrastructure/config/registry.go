package config

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
)

// ErrNoApps 没有配置任何应用
var ErrNoApps = errors.New("no dify app configured")

// AppRegistry 多应用配置注册表，配置文件变更时热加载
type AppRegistry struct {
	mu     sync.RWMutex
	apps   []AppConfig
	logger *slog.Logger
}

// NewAppRegistry 创建注册表
func NewAppRegistry(cfg *Config) *AppRegistry {
	r := &AppRegistry{
		logger: log.NewModuleLogger("config", "app_registry"),
	}
	r.Replace(cfg.Apps)
	return r
}

// Replace 替换全部应用
func (r *AppRegistry) Replace(apps []AppConfig) {
	copied := append([]AppConfig(nil), apps...)
	r.mu.Lock()
	r.apps = copied
	r.mu.Unlock()
}

// List 列出全部应用
func (r *AppRegistry) List() []AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	apps := append([]AppConfig(nil), r.apps...)
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].IsDefault && !apps[j].IsDefault
	})
	return apps
}

// Get 按 ID 查找应用
func (r *AppRegistry) Get(id string) (AppConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, app := range r.apps {
		if app.ID == id {
			return app, true
		}
	}
	return AppConfig{}, false
}

// Default 默认应用：标记为默认的应用，否则第一个
func (r *AppRegistry) Default() (AppConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.apps) == 0 {
		return AppConfig{}, ErrNoApps
	}
	for _, app := range r.apps {
		if app.IsDefault {
			return app, nil
		}
	}
	return r.apps[0], nil
}

// Resolve 按 ID 查找，找不到时退回默认应用
func (r *AppRegistry) Resolve(id string) (AppConfig, error) {
	if id != "" {
		if app, ok := r.Get(id); ok {
			return app, nil
		}
	}
	return r.Default()
}

// HandleEvent 配置文件变更时重新加载应用列表
// 解析失败时保留当前配置
func (r *AppRegistry) HandleEvent(event events.Event) error {
	ev, ok := event.(*events.ConfigFileEvent)
	if !ok {
		return nil
	}
	if ev.Removed {
		r.logger.Warn("Config file removed, keeping current apps", "path", ev.FilePath)
		return nil
	}

	cfg, err := LoadFile(ev.FilePath)
	if err != nil {
		r.logger.Error("Failed to reload config, keeping current apps",
			"path", ev.FilePath,
			"error", err,
		)
		return err
	}
	cfg.applyEnv()

	r.Replace(cfg.Apps)
	r.logger.Info("Apps reloaded", "count", len(cfg.Apps))
	return nil
}
