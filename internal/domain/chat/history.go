package chat

import (
	"sort"
	"strings"
	"time"
)

// HistoryMessage 后端持久化的一条消息（一问一答）
type HistoryMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Query          string         `json:"query"`
	Answer         string         `json:"answer"`
	Files          []VisionFile   `json:"message_files"`
	AgentThoughts  []AgentThought `json:"agent_thoughts"`
	Feedback       *Feedback      `json:"feedback"`
	CreatedAt      time.Time      `json:"created_at"`
}

// QuestionTurnID 提问轮次的 ID 约定
func QuestionTurnID(messageID string) string {
	return "question-" + messageID
}

// BuildTranscript 由历史消息重建对话记录（全量同步）
// opening 为开场白轮次，可为 nil。
func BuildTranscript(conversationID string, opening *Turn, messages []HistoryMessage) Transcript {
	turns := make([]Turn, 0, len(messages)*2+1)
	if opening != nil {
		turns = append(turns, opening.Clone())
	}
	for _, m := range messages {
		qid := QuestionTurnID(m.ID)
		turns = append(turns, Turn{
			ID:        qid,
			Role:      RoleQuestion,
			Content:   m.Query,
			Status:    StatusCompleted,
			PairID:    m.ID,
			Files:     FilterFiles(m.Files, BelongsToUser),
			CreatedAt: m.CreatedAt,
		})

		var feedback *Feedback
		if m.Feedback != nil {
			fb := *m.Feedback
			feedback = &fb
		}
		turns = append(turns, Turn{
			ID:            m.ID,
			Role:          RoleAnswer,
			Content:       m.Answer,
			Status:        StatusCompleted,
			PairID:        qid,
			AgentThoughts: attachThoughtFiles(SortThoughts(m.AgentThoughts), m.Files),
			Feedback:      feedback,
			Files:         FilterFiles(m.Files, BelongsToAssistant),
			CreatedAt:     m.CreatedAt,
		})
	}
	return NewTranscript(conversationID, turns)
}

// SortThoughts 按 position 排序思考
func SortThoughts(thoughts []AgentThought) []AgentThought {
	if len(thoughts) == 0 {
		return nil
	}
	sorted := make([]AgentThought, len(thoughts))
	for i, th := range thoughts {
		sorted[i] = th.Clone()
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	return sorted
}

// attachThoughtFiles 把消息文件按 ID 挂到对应的思考上
func attachThoughtFiles(thoughts []AgentThought, files []VisionFile) []AgentThought {
	if len(thoughts) == 0 || len(files) == 0 {
		return thoughts
	}
	byID := make(map[string]VisionFile, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}
	for i := range thoughts {
		for _, fid := range thoughts[i].FileIDs {
			if f, ok := byID[fid]; ok {
				thoughts[i].Files = append(thoughts[i].Files, f)
			}
		}
	}
	return thoughts
}

// NewOpeningStatement 创建开场白轮次，introduction 中的 {{key}} 用 inputs 替换
// introduction 为空时返回 nil。
func NewOpeningStatement(id, introduction string, inputs map[string]string, now time.Time) *Turn {
	if introduction == "" {
		return nil
	}
	for k, v := range inputs {
		introduction = strings.ReplaceAll(introduction, "{{"+k+"}}", v)
	}
	return &Turn{
		ID:                 id,
		Role:               RoleAnswer,
		Content:            introduction,
		Status:             StatusCompleted,
		IsOpeningStatement: true,
		FeedbackDisabled:   true,
		CreatedAt:          now,
	}
}
