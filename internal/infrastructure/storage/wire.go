package storage

import "github.com/google/wire"

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,                      // 提供数据库连接
	NewUserRepository,              // 用户与角色仓储
	NewConversationStateRepository, // 最后查看会话仓储
)
