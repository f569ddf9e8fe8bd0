// Package user 定义用户与角色模型
package user

import (
	"errors"
	"time"
)

// RestrictedRoleName GEB 角色名，会话中以 HasGEBRole 标记，本服务不据此做访问限制
const RestrictedRoleName = "GEB"

// 预定义错误
var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
	ErrEmailTaken   = errors.New("email already in use")
)

// User 用户
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	Roles     []Role    `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// HasRole 是否持有指定角色
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleNames 角色名列表
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Role 角色
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultRoles 初始化时创建的角色
func DefaultRoles() []Role {
	return []Role{
		{Name: RestrictedRoleName, Description: RestrictedRoleName + " Role with special access"},
		{Name: "ERA", Description: "ERA Role with medium access"},
		{Name: "General", Description: "General user with standard access"},
	}
}
