// Package dify 实现对话后端的 HTTP 客户端
package dify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/sse"
)

// maxErrorBody 错误响应最多读取的字节数
const maxErrorBody = 64 << 10

// Client 一个应用的后端客户端
type Client struct {
	baseURL string
	apiKey  string
	// httpClient 非流式请求，带超时
	httpClient *http.Client
	// streamClient 流式请求，不设整体超时，由 ctx 控制
	streamClient *http.Client
	logger       *slog.Logger
}

// NewClient 创建客户端
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = config.DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       log.NewModuleLogger("dify", "client"),
	}
}

// NewBackend 按应用配置创建客户端
func NewBackend(app config.AppConfig, timeout time.Duration) chat.Backend {
	return NewClient(app.APIURL, app.APIKey, timeout)
}

// StreamChat 发送消息，返回 SSE 事件流
func (c *Client) StreamChat(ctx context.Context, req chat.ChatRequest) (chat.EventStream, error) {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	body := chatMessageRequest{
		Inputs:         inputs,
		Query:          req.Query,
		ResponseMode:   "streaming",
		ConversationID: req.ConversationID,
		User:           req.User,
		Files:          toRequestFiles(req.Files),
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat-messages", nil, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("Sending chat message",
		"conversation_id", req.ConversationID,
		"user", req.User,
		"files", len(req.Files),
	)

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, c.upstreamError(resp)
	}

	return sse.NewDecoder(ctx, resp.Body), nil
}

// StopTask 停止生成
func (c *Client) StopTask(ctx context.Context, taskID, user string) error {
	path := "/chat-messages/" + url.PathEscape(taskID) + "/stop"
	return c.do(ctx, http.MethodPost, path, nil, userRequest{User: user}, nil)
}

// FetchHistory 拉取会话历史（时间正序）
func (c *Client) FetchHistory(ctx context.Context, conversationID, user string, limit int) ([]chat.HistoryMessage, error) {
	query := url.Values{}
	query.Set("conversation_id", conversationID)
	query.Set("user", user)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, "/messages", query, nil, &resp); err != nil {
		return nil, err
	}

	messages := make([]chat.HistoryMessage, 0, len(resp.Data))
	for _, m := range resp.Data {
		messages = append(messages, m.toDomain())
	}
	return messages, nil
}

// SubmitFeedback 提交评价
func (c *Client) SubmitFeedback(ctx context.Context, messageID, rating, user string) error {
	req := feedbackRequest{User: user}
	if rating != "" {
		req.Rating = &rating
	}
	path := "/messages/" + url.PathEscape(messageID) + "/feedbacks"
	return c.do(ctx, http.MethodPost, path, nil, req, nil)
}

// FetchConversations 拉取会话列表
func (c *Client) FetchConversations(ctx context.Context, user string, limit int) ([]chat.Conversation, error) {
	query := url.Values{}
	query.Set("user", user)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp conversationsResponse
	if err := c.do(ctx, http.MethodGet, "/conversations", query, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]chat.Conversation, 0, len(resp.Data))
	for _, conv := range resp.Data {
		out = append(out, conv.toDomain())
	}
	return out, nil
}

// RenameConversation 重命名会话
func (c *Client) RenameConversation(ctx context.Context, conversationID, name string, autoGenerate bool, user string) (chat.Conversation, error) {
	path := "/conversations/" + url.PathEscape(conversationID) + "/name"
	var resp conversation
	err := c.do(ctx, http.MethodPost, path, nil, renameRequest{
		Name:         name,
		AutoGenerate: autoGenerate,
		User:         user,
	}, &resp)
	if err != nil {
		return chat.Conversation{}, err
	}
	return resp.toDomain(), nil
}

// FetchParameters 拉取应用参数
func (c *Client) FetchParameters(ctx context.Context, user string) (chat.Parameters, error) {
	query := url.Values{}
	query.Set("user", user)

	var resp parametersResponse
	if err := c.do(ctx, http.MethodGet, "/parameters", query, nil, &resp); err != nil {
		return chat.Parameters{}, err
	}
	return resp.toDomain(), nil
}

// do 发送非流式请求并解码响应
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	req, err := c.newRequest(ctx, method, path, query, in)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Upstream request finished",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.upstreamError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response of %s: %w", path, err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, in any) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := sonic.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// upstreamError 把非 2xx 响应转换为 *chat.UpstreamError
func (c *Client) upstreamError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	upstream := &chat.UpstreamError{Status: resp.StatusCode}
	var body errorResponse
	if err := sonic.Unmarshal(data, &body); err == nil && (body.Message != "" || body.Code != "") {
		upstream.Code = body.Code
		upstream.Message = body.Message
	} else {
		upstream.Message = strings.TrimSpace(string(data))
	}
	if upstream.Message == "" {
		upstream.Message = http.StatusText(resp.StatusCode)
	}

	c.logger.Warn("Upstream returned error",
		"url", resp.Request.URL.Path,
		"status", upstream.Status,
		"code", upstream.Code,
		"message", upstream.Message,
	)
	return upstream
}

// 编译时检查接口实现
var _ chat.Backend = (*Client)(nil)
