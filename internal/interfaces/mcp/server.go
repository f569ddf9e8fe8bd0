// Package mcp 通过 MCP 暴露对话状态，供外部 Agent 查看和停止流式会话
package mcp

import (
	"log/slog"
	"net/http"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer MCP 服务器
type MCPServer struct {
	server   *mcp.Server
	handler  http.Handler
	manager  *appChat.Manager
	registry *config.AppRegistry
	logger   *slog.Logger
}

// NewServer 创建 MCP 服务器，EnableMCP 为 false 时返回 nil
func NewServer(serverCfg *config.ServerConfig, manager *appChat.Manager, registry *config.AppRegistry) *MCPServer {
	if !serverCfg.EnableMCP {
		return nil
	}

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    log.ServiceName,
			Version: "0.1.0",
		},
		nil,
	)

	s := &MCPServer{
		server:   server,
		manager:  manager,
		registry: registry,
		logger:   log.NewModuleLogger("mcp", "server"),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_apps",
		Description: "List the configured chat apps. No parameters required. Returns: id, name, app_id, api_url and is_default of each app (API keys are never returned).",
	}, s.listAppsTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_active_streams",
		Description: "List the answers currently being streamed for all users, oldest first. No parameters required. Returns: stream id, user key, conversation id at start, task id and start time of each stream.",
	}, s.listActiveStreamsTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "get_transcript",
		Description: `Get the transcript currently displayed to a user.
Parameters:
- user_key (string, required): User key in the form user_<app_id>:<user_id>, as returned by list_active_streams

Returns: current conversation id, transcript version and turns (role, content, status, agent thoughts, workflow process).`,
	}, s.getTranscriptTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "stop_stream",
		Description: `Stop a stream that is being answered. Partial content is kept.
Parameters:
- stream_id (string, required): Stream id from list_active_streams

Returns: stopped flag.`,
	}, s.stopStreamTool)

	s.handler = mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			return server
		},
		nil,
	)
	return s
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
