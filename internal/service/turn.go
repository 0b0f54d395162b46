package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/threadline-ai/agent-chat/internal/agent"
	"github.com/threadline-ai/agent-chat/internal/llm"
	"github.com/threadline-ai/agent-chat/internal/model"
	natsclient "github.com/threadline-ai/agent-chat/internal/nats"
	"github.com/threadline-ai/agent-chat/internal/store"
	"github.com/threadline-ai/agent-chat/pkg/logger"
	"github.com/threadline-ai/agent-chat/pkg/metrics"
)

// TurnService runs agent turns: it persists the incoming user message,
// drives the orchestrator, persists the final assistant answer and
// publishes lifecycle events.
type TurnService struct {
	store        store.ChatStore
	orchestrator *agent.Orchestrator
	publisher    EventPublisher
	log          *logger.Logger
}

// NewTurnService creates a turn service.
func NewTurnService(chatStore store.ChatStore, orch *agent.Orchestrator, publisher EventPublisher, log *logger.Logger) *TurnService {
	return &TurnService{
		store:        chatStore,
		orchestrator: orch,
		publisher:    publisher,
		log:          log,
	}
}

// Stream executes one streaming turn. The caller has already emitted the
// Connected event; every intermediate event is forwarded through emit, and
// the caller emits the terminal Done or Error. Ordering: the user message
// is persisted first, then the orchestrator runs over prior + new message,
// then the assistant answer is persisted.
func (s *TurnService) Stream(ctx context.Context, userID string, req *model.ChatStreamRequest, emit agent.EmitFunc) error {
	userMsg, err := s.store.AppendMessage(ctx, req.ChatID, model.RoleUser, req.NewMessage)
	if err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
	s.publishMessage(ctx, userID, userMsg)

	history := agent.HistoryFromMessages(req.Messages)
	history = append(history, llm.ChatMessage{Role: "user", Content: req.NewMessage})

	result, err := s.orchestrator.Run(ctx, req.ChatID, history, emit)
	if err != nil {
		s.publishTurn(ctx, &natsclient.TurnEvent{
			ChatID: req.ChatID,
			UserID: userID,
			Status: natsclient.TurnFailed,
			Reason: err.Error(),
		})
		return err
	}

	assistantMsg, err := s.store.AppendMessage(ctx, req.ChatID, model.RoleAssistant, result.Content)
	if err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	s.publishMessage(ctx, userID, assistantMsg)

	s.publishTurn(ctx, &natsclient.TurnEvent{
		ChatID:     req.ChatID,
		UserID:     userID,
		Status:     natsclient.TurnCompleted,
		ToolRounds: result.ToolRounds,
	})

	return nil
}

// Send executes one non-streaming turn and returns the assistant message.
func (s *TurnService) Send(ctx context.Context, userID, chatID, content string) (*model.Message, error) {
	stored, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	prior := make([]model.ChatMessage, 0, len(stored))
	for _, msg := range stored {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		prior = append(prior, model.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	req := &model.ChatStreamRequest{Messages: prior, NewMessage: content, ChatID: chatID}
	if err := s.Stream(ctx, userID, req, func(model.StreamEvent) error { return nil }); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, chatID)
	if err != nil || len(messages) == 0 {
		return nil, fmt.Errorf("load assistant message: %w", err)
	}
	last := messages[len(messages)-1]
	return &last, nil
}

func (s *TurnService) publishMessage(ctx context.Context, userID string, msg *model.Message) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.publisher.PublishMessageAppended(pubCtx, userID, msg); err != nil {
		s.log.Warn("publish message event failed", zap.Error(err))
	}
}

func (s *TurnService) publishTurn(ctx context.Context, event *natsclient.TurnEvent) {
	if s.publisher == nil {
		return
	}
	// The request context may already be canceled when the turn failed.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.PublishTurnEvent(pubCtx, event); err != nil {
		s.log.Warn("publish turn event failed", zap.Error(err))
	}
}
