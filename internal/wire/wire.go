//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/fanqingsong/dify-chat-ui/internal/application"
	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/storage"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/tokenizer"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces"
	"github.com/google/wire"
)

// InitializeAll 初始化所有服务（HTTP + MCP）
func InitializeAll() (*App, func(), error) {
	wire.Build(
		// 按层组合 ProviderSet
		infrastructure.ProviderSet, // 基础设施层
		application.ProviderSet,    // 应用层
		interfaces.ProviderSet,     // 接口层
		// 接口绑定：应用层依赖的能力由基础设施实现
		wire.Bind(new(appChat.Publisher), new(events.EventBus)),
		wire.Bind(new(appChat.TokenCounter), new(tokenizer.Estimator)),
		wire.Bind(new(appChat.ConversationStore), new(storage.ConversationStateRepository)),
		NewApp, // 组合所有服务的应用结构
	)
	return nil, nil, nil
}
