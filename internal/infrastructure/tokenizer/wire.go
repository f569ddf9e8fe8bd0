package tokenizer

import "github.com/google/wire"

// ProviderSet Token 估算 ProviderSet
var ProviderSet = wire.NewSet(
	NewEstimator,
)
