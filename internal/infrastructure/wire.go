package infrastructure

import (
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/dify"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/notification"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/storage"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/tokenizer"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/watcher"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/websocket"
	"github.com/google/wire"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	watcher.ProviderSet,
	websocket.ProviderSet,
	notification.ProviderSet,
	tokenizer.ProviderSet,
	dify.ProviderSet,
)
