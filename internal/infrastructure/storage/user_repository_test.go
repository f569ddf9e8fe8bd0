package storage

import (
	"testing"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_SaveAndFind(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(db)

	u := &user.User{Name: "Admin", Email: "admin@example.com", IsAdmin: true, IsActive: true}
	require.NoError(t, repo.Save(u))
	assert.NotEmpty(t, u.ID, "保存后应自动生成 ID")

	found, err := repo.FindByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Admin", found.Name)
	assert.True(t, found.IsAdmin)
	assert.True(t, found.IsActive)

	byEmail, err := repo.FindByEmail("admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	// 更新
	u.IsActive = false
	require.NoError(t, repo.Save(u))
	found, err = repo.FindByID(u.ID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)
}

func TestUserRepository_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(db)

	_, err := repo.FindByID("missing")
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestUserRepository_Roles(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(db)
	require.NoError(t, repo.EnsureRoles(user.DefaultRoles()))
	// 重复创建不报错
	require.NoError(t, repo.EnsureRoles(user.DefaultRoles()))

	u := &user.User{Name: "Bob", Email: "bob@example.com", IsActive: true}
	require.NoError(t, repo.Save(u))

	require.NoError(t, repo.AssignRole(u.ID, user.RestrictedRoleName))
	require.NoError(t, repo.AssignRole(u.ID, user.RestrictedRoleName))
	assert.ErrorIs(t, repo.AssignRole(u.ID, "Unknown"), user.ErrRoleNotFound)

	found, err := repo.FindByID(u.ID)
	require.NoError(t, err)
	require.Len(t, found.Roles, 1)
	assert.True(t, found.HasRole(user.RestrictedRoleName))
}
