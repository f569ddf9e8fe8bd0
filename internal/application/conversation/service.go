// Package conversation 编排会话列表、应用参数和初始化流程
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	appChat "github.com/fanqingsong/dify-chat-ui/internal/application/chat"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/config"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
	"golang.org/x/sync/errgroup"

	domainChat "github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
)

// autoNameTimeout 自动命名请求超时
const autoNameTimeout = 30 * time.Second

// InitResult 初始化结果
type InitResult struct {
	App                   config.AppConfig          `json:"app"`
	Conversations         []domainChat.Conversation `json:"conversations"`
	Parameters            domainChat.Parameters     `json:"parameters"`
	CurrentConversationID string                    `json:"current_conversation_id"`
	Transcript            domainChat.Transcript     `json:"transcript"`
	// Degraded 拉取超时或失败，使用了默认状态
	Degraded bool `json:"degraded"`
}

// Service 会话应用服务
type Service struct {
	registry *config.AppRegistry
	manager  *appChat.Manager
	store    appChat.ConversationStore
	chatCfg  *config.ChatConfig
	logger   *slog.Logger
}

// NewService 创建会话服务
func NewService(
	registry *config.AppRegistry,
	manager *appChat.Manager,
	store appChat.ConversationStore,
	chatCfg *config.ChatConfig,
) *Service {
	return &Service{
		registry: registry,
		manager:  manager,
		store:    store,
		chatCfg:  chatCfg,
		logger:   log.NewModuleLogger("conversation", "service"),
	}
}

// Controller 解析应用并返回用户的对话控制器
// appID 为空或不存在时使用默认应用。
func (s *Service) Controller(appID, userID string) (*appChat.Controller, config.AppConfig, error) {
	app, err := s.registry.Resolve(appID)
	if err != nil {
		return nil, config.AppConfig{}, err
	}
	ctrl, err := s.manager.Get(app, userID)
	if err != nil {
		return nil, config.AppConfig{}, err
	}
	return ctrl, app, nil
}

// Init 初始化用户在应用下的对话状态
// 会话列表和应用参数并行拉取，超过 InitTimeout 或失败时退回默认状态。
func (s *Service) Init(ctx context.Context, appID, userID string) (*InitResult, error) {
	ctrl, app, err := s.Controller(appID, userID)
	if err != nil {
		return nil, err
	}
	backend := s.manager.Backend(app)
	userKey := ctrl.UserKey()

	initCtx, cancel := context.WithTimeout(ctx, s.chatCfg.InitTimeout)
	defer cancel()

	var (
		conversations []domainChat.Conversation
		params        domainChat.Parameters
	)
	g, gctx := errgroup.WithContext(initCtx)
	g.Go(func() error {
		list, err := backend.FetchConversations(gctx, userKey, s.chatCfg.ConversationLimit)
		if err != nil {
			return fmt.Errorf("fetch conversations: %w", err)
		}
		conversations = list
		return nil
	})
	g.Go(func() error {
		p, err := backend.FetchParameters(gctx, userKey)
		if err != nil {
			return fmt.Errorf("fetch parameters: %w", err)
		}
		params = p
		return nil
	})

	result := &InitResult{App: app}
	if err := g.Wait(); err != nil {
		s.logger.Warn("Init failed, falling back to defaults",
			"app", app.ID,
			"user_key", userKey,
			"error", err,
		)
		conversations = nil
		params = domainChat.Parameters{}
		result.Degraded = true
	}
	result.Conversations = conversations
	result.Parameters = params

	ctrl.Configure(DefaultsFrom(params))

	// 降级时会话列表不可信，不恢复也不清理
	if !result.Degraded && ctrl.CurrentConversationID() == domainChat.NewConversationID {
		s.restoreLast(ctx, ctrl, app, conversations)
	}

	result.CurrentConversationID = ctrl.CurrentConversationID()
	result.Transcript = ctrl.Snapshot()
	return result, nil
}

// restoreLast 恢复上次查看的会话（仍在列表中才恢复）
func (s *Service) restoreLast(ctx context.Context, ctrl *appChat.Controller, app config.AppConfig, conversations []domainChat.Conversation) {
	if s.store == nil {
		return
	}
	last, err := s.store.GetCurrent(ctrl.UserKey(), app.ID)
	if err != nil {
		s.logger.Warn("Failed to load last conversation", "user_key", ctrl.UserKey(), "error", err)
		return
	}
	if last == "" {
		return
	}
	if !containsConversation(conversations, last) {
		s.forgetLast(ctrl.UserKey(), app.ID, last)
		return
	}
	if err := ctrl.SwitchConversation(ctx, last); err != nil {
		s.logger.Warn("Failed to restore last conversation",
			"user_key", ctrl.UserKey(),
			"conversation_id", last,
			"error", err,
		)
		s.forgetLast(ctrl.UserKey(), app.ID, last)
		// 回到新会话，避免停留在拉取失败的空会话上
		if err := ctrl.SwitchConversation(ctx, domainChat.NewConversationID); err != nil {
			s.logger.Warn("Failed to reset to new conversation", "user_key", ctrl.UserKey(), "error", err)
		}
	}
}

// forgetLast 删除已失效的上次会话记录
func (s *Service) forgetLast(userKey, appID, conversationID string) {
	if err := s.store.Clear(userKey, appID); err != nil {
		s.logger.Warn("Failed to clear last conversation", "user_key", userKey, "error", err)
		return
	}
	s.logger.Debug("Last conversation no longer exists", "user_key", userKey, "conversation_id", conversationID)
}

// List 会话列表
func (s *Service) List(ctx context.Context, appID, userID string) ([]domainChat.Conversation, error) {
	ctrl, app, err := s.Controller(appID, userID)
	if err != nil {
		return nil, err
	}
	return s.manager.Backend(app).FetchConversations(ctx, ctrl.UserKey(), s.chatCfg.ConversationLimit)
}

// Rename 重命名会话
func (s *Service) Rename(ctx context.Context, appID, userID, conversationID, name string, autoGenerate bool) (domainChat.Conversation, error) {
	ctrl, app, err := s.Controller(appID, userID)
	if err != nil {
		return domainChat.Conversation{}, err
	}
	return s.manager.Backend(app).RenameConversation(ctx, conversationID, name, autoGenerate, ctrl.UserKey())
}

// Parameters 应用参数
func (s *Service) Parameters(ctx context.Context, appID, userID string) (domainChat.Parameters, error) {
	ctrl, app, err := s.Controller(appID, userID)
	if err != nil {
		return domainChat.Parameters{}, err
	}
	return s.manager.Backend(app).FetchParameters(ctx, ctrl.UserKey())
}

// HandleEvent 新会话创建后请求后端自动生成名称
func (s *Service) HandleEvent(event events.Event) error {
	e, ok := event.(*events.ConversationEvent)
	if !ok || e.EventType != events.ConversationCreated {
		return nil
	}
	app, ok := s.registry.Get(e.AppID)
	if !ok {
		return fmt.Errorf("app %q not configured", e.AppID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), autoNameTimeout)
	defer cancel()

	conv, err := s.manager.Backend(app).RenameConversation(ctx, e.ConversationID, "", true, e.UserKey)
	if err != nil {
		return fmt.Errorf("auto name conversation %s: %w", e.ConversationID, err)
	}
	s.logger.Info("Conversation named",
		"conversation_id", e.ConversationID,
		"name", conv.Name,
	)
	return nil
}

// DefaultsFrom 由应用参数得到新会话默认值
func DefaultsFrom(p domainChat.Parameters) appChat.Defaults {
	inputs := make(map[string]string)
	for _, v := range p.PromptVariables {
		if v.Default != "" {
			inputs[v.Key] = v.Default
		}
	}
	return appChat.Defaults{
		OpeningStatement: p.OpeningStatement,
		Inputs:           inputs,
		RequiredInputs:   p.RequiredKeys(),
	}
}

func containsConversation(list []domainChat.Conversation, id string) bool {
	for _, c := range list {
		if c.ID == id {
			return true
		}
	}
	return false
}
