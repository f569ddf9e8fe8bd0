package mcp

import "github.com/google/wire"

// ProviderSet MCP ProviderSet
var ProviderSet = wire.NewSet(NewServer)
