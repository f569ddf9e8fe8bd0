package application

import (
	"github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/application/conversation"
	"github.com/google/wire"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	chat.ProviderSet,
	conversation.ProviderSet,
)
