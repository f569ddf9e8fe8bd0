package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationStateRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewConversationStateRepository(db)

	id, err := repo.GetCurrent("user_app1:s1", "default")
	require.NoError(t, err)
	assert.Empty(t, id, "没有记录时返回空")

	require.NoError(t, repo.SetCurrent("user_app1:s1", "default", "c9"))
	require.NoError(t, repo.SetCurrent("user_app1:s1", "default", "c10"))
	require.NoError(t, repo.SetCurrent("user_app1:s1", "other", "c1"))

	id, err = repo.GetCurrent("user_app1:s1", "default")
	require.NoError(t, err)
	assert.Equal(t, "c10", id)

	id, err = repo.GetCurrent("user_app1:s1", "other")
	require.NoError(t, err)
	assert.Equal(t, "c1", id, "不同应用互不影响")

	require.NoError(t, repo.Clear("user_app1:s1", "default"))
	id, err = repo.GetCurrent("user_app1:s1", "default")
	require.NoError(t, err)
	assert.Empty(t, id)
}
