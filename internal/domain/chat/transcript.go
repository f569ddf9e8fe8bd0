package chat

// Transcript 某个会话的对话记录快照
// 快照不可变：任何修改都通过 With* 方法返回新的 Transcript，
// 调用方可以安全地跨 goroutine 持有旧快照。
type Transcript struct {
	ConversationID string `json:"conversation_id"`
	Version        uint64 `json:"version"`
	Turns          []Turn `json:"turns"`
}

// NewTranscript 创建快照
func NewTranscript(conversationID string, turns []Turn) Transcript {
	return Transcript{
		ConversationID: conversationID,
		Turns:          turns,
	}
}

// Len 轮次数
func (t Transcript) Len() int {
	return len(t.Turns)
}

// Index 返回指定 ID 的下标，不存在返回 -1
func (t Transcript) Index(id string) int {
	if id == "" {
		return -1
	}
	for i := range t.Turns {
		if t.Turns[i].ID == id {
			return i
		}
	}
	return -1
}

// Find 按 ID 查找轮次（返回副本）
func (t Transcript) Find(id string) (Turn, bool) {
	i := t.Index(id)
	if i < 0 {
		return Turn{}, false
	}
	return t.Turns[i].Clone(), true
}

// PendingCount 处于生成中的轮次数
func (t Transcript) PendingCount() int {
	n := 0
	for i := range t.Turns {
		if t.Turns[i].Status == StatusPending {
			n++
		}
	}
	return n
}

// next 复制轮次切片并递增版本号
func (t Transcript) next() Transcript {
	turns := make([]Turn, len(t.Turns))
	copy(turns, t.Turns)
	return Transcript{
		ConversationID: t.ConversationID,
		Version:        t.Version + 1,
		Turns:          turns,
	}
}

// WithAppended 追加轮次
func (t Transcript) WithAppended(turns ...Turn) Transcript {
	n := t.next()
	for _, turn := range turns {
		n.Turns = append(n.Turns, turn.Clone())
	}
	return n
}

// WithReplaced 替换下标 i 处的轮次
func (t Transcript) WithReplaced(i int, turn Turn) Transcript {
	n := t.next()
	n.Turns[i] = turn.Clone()
	return n
}

// WithPatched 一次性替换多个下标处的轮次（只递增一次版本号）
func (t Transcript) WithPatched(patches map[int]Turn) Transcript {
	n := t.next()
	for i, turn := range patches {
		n.Turns[i] = turn.Clone()
	}
	return n
}

// WithRemoved 删除下标 i 处的轮次
func (t Transcript) WithRemoved(i int) Transcript {
	n := t.next()
	n.Turns = append(n.Turns[:i], n.Turns[i+1:]...)
	return n
}

// WithConversationID 重新绑定会话 ID（新会话完成后由 -1 切换为后端分配的 ID）
func (t Transcript) WithConversationID(id string) Transcript {
	n := t.next()
	n.ConversationID = id
	return n
}

// Rebased 用新内容替换整个快照，版本号继续递增，保证推送端按版本丢弃旧快照
func (t Transcript) Rebased(next Transcript) Transcript {
	next.Version = t.Version + 1
	return next
}
