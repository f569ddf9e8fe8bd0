package user

// Repository 用户仓储接口
type Repository interface {
	// Save 保存用户（创建或更新，不含角色）
	Save(u *User) error

	// FindByID 根据 ID 查找用户（含角色），不存在返回 ErrUserNotFound
	FindByID(id string) (*User, error)

	// FindByEmail 根据邮箱查找用户
	FindByEmail(email string) (*User, error)

	// AssignRole 为用户添加角色
	AssignRole(userID, roleName string) error

	// EnsureRoles 创建缺失的角色
	EnsureRoles(roles []Role) error
}
