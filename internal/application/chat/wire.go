package chat

import "github.com/google/wire"

// ProviderSet 对话应用层 Provider
var ProviderSet = wire.NewSet(
	NewManager,
)
