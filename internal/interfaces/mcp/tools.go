package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// ListAppsInput 空输入
type ListAppsInput struct{}

// AppInfo 应用信息（不含 API Key）
type AppInfo struct {
	ID        string `json:"id" jsonschema:"App config id"`
	Name      string `json:"name" jsonschema:"Display name"`
	AppID     string `json:"app_id" jsonschema:"Backend app id"`
	APIURL    string `json:"api_url" jsonschema:"Backend API base URL"`
	IsDefault bool   `json:"is_default" jsonschema:"Whether this is the default app"`
}

// ListAppsOutput 应用列表
type ListAppsOutput struct {
	Apps []AppInfo `json:"apps" jsonschema:"Configured apps"`
}

// ListActiveStreamsInput 空输入
type ListActiveStreamsInput struct{}

// StreamInfo 一个进行中的流式会话
type StreamInfo struct {
	ID                    string    `json:"id" jsonschema:"Stream id"`
	UserKey               string    `json:"user_key" jsonschema:"Owner user key"`
	ConversationIDAtStart string    `json:"conversation_id_at_start" jsonschema:"Conversation id when the message was sent, -1 for a new conversation"`
	ServerConversationID  string    `json:"server_conversation_id,omitempty" jsonschema:"Conversation id assigned by the backend"`
	TaskID                string    `json:"task_id,omitempty" jsonschema:"Backend task id, empty until the first event"`
	OffCurrent            bool      `json:"off_current" jsonschema:"The user switched away; updates are no longer displayed"`
	StartedAt             time.Time `json:"started_at" jsonschema:"Start time"`
}

// ListActiveStreamsOutput 流式会话列表
type ListActiveStreamsOutput struct {
	Streams []StreamInfo `json:"streams" jsonschema:"Active streams"`
	Total   int          `json:"total" jsonschema:"Number of active streams"`
}

// GetTranscriptInput 查询对话记录
type GetTranscriptInput struct {
	UserKey string `json:"user_key" jsonschema:"User key in the form user_<app_id>:<user_id>"`
}

// GetTranscriptOutput 对话记录
type GetTranscriptOutput struct {
	ConversationID string            `json:"conversation_id" jsonschema:"Current conversation id"`
	Version        uint64            `json:"version" jsonschema:"Transcript version"`
	Turns          []domainChat.Turn `json:"turns" jsonschema:"Turns in display order"`
}

// StopStreamInput 停止流式会话
type StopStreamInput struct {
	StreamID string `json:"stream_id" jsonschema:"Stream id from list_active_streams"`
}

// StopStreamOutput 停止结果
type StopStreamOutput struct {
	Stopped bool `json:"stopped" jsonschema:"Whether the stream was stopped"`
}

func (s *MCPServer) listAppsTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListAppsInput,
) (*mcp.CallToolResult, ListAppsOutput, error) {
	apps := s.registry.List()
	out := ListAppsOutput{Apps: make([]AppInfo, 0, len(apps))}
	for _, app := range apps {
		out.Apps = append(out.Apps, AppInfo{
			ID:        app.ID,
			Name:      app.Name,
			AppID:     app.AppID,
			APIURL:    app.APIURL,
			IsDefault: app.IsDefault,
		})
	}
	return nil, out, nil
}

func (s *MCPServer) listActiveStreamsTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListActiveStreamsInput,
) (*mcp.CallToolResult, ListActiveStreamsOutput, error) {
	sessions := s.manager.ActiveSessions()
	out := ListActiveStreamsOutput{Streams: make([]StreamInfo, 0, len(sessions))}
	for _, ss := range sessions {
		out.Streams = append(out.Streams, StreamInfo{
			ID:                    ss.ID,
			UserKey:               ss.UserKey,
			ConversationIDAtStart: ss.ConversationIDAtStart,
			ServerConversationID:  ss.ServerConversationID,
			TaskID:                ss.TaskID,
			OffCurrent:            ss.OffCurrent,
			StartedAt:             ss.StartedAt,
		})
	}
	out.Total = len(out.Streams)
	return nil, out, nil
}

func (s *MCPServer) getTranscriptTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetTranscriptInput,
) (*mcp.CallToolResult, GetTranscriptOutput, error) {
	if input.UserKey == "" {
		return nil, GetTranscriptOutput{}, fmt.Errorf("user_key is required")
	}
	ctrl, ok := s.manager.Find(input.UserKey)
	if !ok {
		return nil, GetTranscriptOutput{}, fmt.Errorf("no chat state for user %s", input.UserKey)
	}
	t := ctrl.Snapshot()
	return nil, GetTranscriptOutput{
		ConversationID: ctrl.CurrentConversationID(),
		Version:        t.Version,
		Turns:          t.Turns,
	}, nil
}

func (s *MCPServer) stopStreamTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input StopStreamInput,
) (*mcp.CallToolResult, StopStreamOutput, error) {
	for _, ss := range s.manager.ActiveSessions() {
		if ss.ID != input.StreamID {
			continue
		}
		ctrl, ok := s.manager.Find(ss.UserKey)
		if !ok {
			break
		}
		if err := ctrl.Cancel(ss.ID); err != nil {
			return nil, StopStreamOutput{}, err
		}
		s.logger.Info("Stream stopped via MCP", "stream_id", ss.ID, "user_key", ss.UserKey)
		return nil, StopStreamOutput{Stopped: true}, nil
	}
	return nil, StopStreamOutput{}, fmt.Errorf("stream %s: %w", input.StreamID, domainChat.ErrSessionNotFound)
}
