package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/google/uuid"
)

// userRepository 用户 SQLite 仓储实现
type userRepository struct {
	db *sql.DB
}

// NewUserRepository 创建用户仓储实例
func NewUserRepository(db *sql.DB) user.Repository {
	return &userRepository{db: db}
}

// Save 保存用户
func (r *userRepository) Save(u *user.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO users (id, name, email, is_admin, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			is_admin = excluded.is_admin,
			is_active = excluded.is_active`

	_, err := r.db.Exec(query,
		u.ID,
		u.Name,
		u.Email,
		boolToInt(u.IsAdmin),
		boolToInt(u.IsActive),
		u.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// FindByID 根据 ID 查找用户
func (r *userRepository) FindByID(id string) (*user.User, error) {
	return r.findOne(`SELECT id, name, email, is_admin, is_active, created_at FROM users WHERE id = ?`, id)
}

// FindByEmail 根据邮箱查找用户
func (r *userRepository) FindByEmail(email string) (*user.User, error) {
	return r.findOne(`SELECT id, name, email, is_admin, is_active, created_at FROM users WHERE email = ?`, email)
}

func (r *userRepository) findOne(query string, arg string) (*user.User, error) {
	var u user.User
	var isAdmin, isActive int
	var createdAt int64

	err := r.db.QueryRow(query, arg).Scan(&u.ID, &u.Name, &u.Email, &isAdmin, &isActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	u.IsAdmin = isAdmin == 1
	u.IsActive = isActive == 1
	u.CreatedAt = time.UnixMilli(createdAt)

	roles, err := r.rolesOf(u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

// rolesOf 查询用户的角色
func (r *userRepository) rolesOf(userID string) ([]user.Role, error) {
	rows, err := r.db.Query(`
		SELECT r.id, r.name, r.description
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ?
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []user.Role
	for rows.Next() {
		var role user.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// AssignRole 为用户添加角色
func (r *userRepository) AssignRole(userID, roleName string) error {
	var roleID string
	err := r.db.QueryRow(`SELECT id FROM roles WHERE name = ?`, roleName).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return user.ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query role: %w", err)
	}

	if _, err := r.db.Exec(`INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, roleID); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// EnsureRoles 创建缺失的角色
func (r *userRepository) EnsureRoles(roles []user.Role) error {
	for _, role := range roles {
		id := role.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := r.db.Exec(`INSERT OR IGNORE INTO roles (id, name, description) VALUES (?, ?, ?)`,
			id, role.Name, role.Description)
		if err != nil {
			return fmt.Errorf("failed to create role %s: %w", role.Name, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
