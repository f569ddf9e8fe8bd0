package notification

import "github.com/google/wire"

// ProviderSet 推送 ProviderSet
var ProviderSet = wire.NewSet(
	NewWebSocketPusher,
)
