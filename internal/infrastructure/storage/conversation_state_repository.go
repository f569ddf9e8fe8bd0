package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ConversationStateRepository 记录每个用户在每个应用下最后查看的会话
type ConversationStateRepository interface {
	// GetCurrent 返回最后查看的会话 ID，没有记录时返回空字符串
	GetCurrent(userKey, appID string) (string, error)
	// SetCurrent 保存最后查看的会话 ID
	SetCurrent(userKey, appID, conversationID string) error
	// Clear 删除记录
	Clear(userKey, appID string) error
}

// conversationStateRepository SQLite 实现
type conversationStateRepository struct {
	db *sql.DB
}

// NewConversationStateRepository 创建仓储实例
func NewConversationStateRepository(db *sql.DB) ConversationStateRepository {
	return &conversationStateRepository{db: db}
}

// GetCurrent 查询最后查看的会话
func (r *conversationStateRepository) GetCurrent(userKey, appID string) (string, error) {
	var conversationID string
	err := r.db.QueryRow(`
		SELECT conversation_id FROM conversation_states
		WHERE user_key = ? AND app_id = ?`, userKey, appID).Scan(&conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query conversation state: %w", err)
	}
	return conversationID, nil
}

// SetCurrent 保存最后查看的会话
func (r *conversationStateRepository) SetCurrent(userKey, appID, conversationID string) error {
	_, err := r.db.Exec(`
		INSERT INTO conversation_states (user_key, app_id, conversation_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_key, app_id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			updated_at = excluded.updated_at`,
		userKey, appID, conversationID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	return nil
}

// Clear 删除记录
func (r *conversationStateRepository) Clear(userKey, appID string) error {
	if _, err := r.db.Exec(`DELETE FROM conversation_states WHERE user_key = ? AND app_id = ?`, userKey, appID); err != nil {
		return fmt.Errorf("failed to clear conversation state: %w", err)
	}
	return nil
}
