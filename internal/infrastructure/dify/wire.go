package dify

import (
	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/google/wire"
)

// ProvideBackendFactory 提供按应用创建客户端的工厂
func ProvideBackendFactory(chatCfg *config.ChatConfig) appChat.BackendFactory {
	return func(app config.AppConfig) chat.Backend {
		return NewBackend(app, chatCfg.RequestTimeout)
	}
}

// ProviderSet dify 客户端 Provider
var ProviderSet = wire.NewSet(
	ProvideBackendFactory,
)
