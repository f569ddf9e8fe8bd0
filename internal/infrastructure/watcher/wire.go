package watcher

import (
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/google/wire"
)

// ProvideEventBus 提供事件总线实例，返回的 cleanup 关闭总线
func ProvideEventBus() (events.EventBus, func()) {
	bus := NewEventBus()
	return bus, bus.Close
}

// ProvideFileWatcher 提供配置文件监听器实例
func ProvideFileWatcher(eventBus events.EventBus) (*FileWatcher, error) {
	return NewFileWatcher(DefaultWatchConfig(config.ConfigFilePath()), eventBus)
}

// ProviderSet 事件与文件监听 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideEventBus,
	ProvideFileWatcher,
)
