package interfaces

import (
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/http"
	"github.com/fanqingsong/dify-chat-ui/internal/interfaces/mcp"
	"github.com/google/wire"
)

// ProviderSet Interfaces 层总 ProviderSet
var ProviderSet = wire.NewSet(
	http.ProviderSet,
	mcp.ProviderSet,
)
