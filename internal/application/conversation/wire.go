package conversation

import "github.com/google/wire"

// ProviderSet 会话应用层 Provider
var ProviderSet = wire.NewSet(
	NewService,
)
