// Package service provides business logic between handlers and storage.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/threadline-ai/agent-chat/internal/model"
	natsclient "github.com/threadline-ai/agent-chat/internal/nats"
	"github.com/threadline-ai/agent-chat/internal/store"
	"github.com/threadline-ai/agent-chat/pkg/logger"
	"github.com/threadline-ai/agent-chat/pkg/metrics"
)

// EventPublisher publishes chat lifecycle events for downstream consumers.
// A nil publisher disables fan-out.
type EventPublisher interface {
	PublishMessageAppended(ctx context.Context, userID string, msg *model.Message) error
	PublishTurnEvent(ctx context.Context, event *natsclient.TurnEvent) error
	PublishChatLifecycle(ctx context.Context, userID, chatID, action string) error
}

// CheckpointStore drops per-chat agent state when its chat goes away.
type CheckpointStore interface {
	Delete(chatID string)
}

// ChatService handles owner-scoped chat operations.
type ChatService struct {
	store       store.ChatStore
	publisher   EventPublisher
	checkpoints CheckpointStore
	log         *logger.Logger
}

// NewChatService creates a chat service. checkpoints may be nil.
func NewChatService(chatStore store.ChatStore, publisher EventPublisher, checkpoints CheckpointStore, log *logger.Logger) *ChatService {
	return &ChatService{store: chatStore, publisher: publisher, checkpoints: checkpoints, log: log}
}

// Create creates a chat owned by userID.
func (s *ChatService) Create(ctx context.Context, userID, title string) (*model.Chat, error) {
	chat, err := s.store.CreateChat(ctx, userID, title)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	metrics.ChatsTotal.Inc()
	s.publishLifecycle(ctx, userID, chat.ID, "created")
	s.log.Info("chat created", zap.String("chat_id", chat.ID), zap.String("user_id", userID))
	return chat, nil
}

// Get returns a chat the user owns.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	return s.store.GetChat(ctx, userID, chatID)
}

// List returns the user's chats.
func (s *ChatService) List(ctx context.Context, userID string) (*model.ListChatsResponse, error) {
	chats, err := s.store.ListChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return &model.ListChatsResponse{Chats: chats, Total: len(chats)}, nil
}

// Delete removes a chat and all of its messages.
func (s *ChatService) Delete(ctx context.Context, userID, chatID string) error {
	if err := s.store.DeleteChat(ctx, userID, chatID); err != nil {
		return err
	}
	if s.checkpoints != nil {
		s.checkpoints.Delete(chatID)
	}
	s.publishLifecycle(ctx, userID, chatID, "deleted")
	s.log.Info("chat deleted", zap.String("chat_id", chatID), zap.String("user_id", userID))
	return nil
}

// publishLifecycle fans out a chat created/deleted event, best effort.
func (s *ChatService) publishLifecycle(ctx context.Context, userID, chatID, action string) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.publisher.PublishChatLifecycle(pubCtx, userID, chatID, action); err != nil {
		s.log.Warn("publish chat lifecycle failed", zap.Error(err))
	}
}

// Messages returns a chat's messages in insertion order, after an
// ownership check.
func (s *ChatService) Messages(ctx context.Context, userID, chatID string) (*model.ListMessagesResponse, error) {
	if _, err := s.store.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &model.ListMessagesResponse{Messages: messages, Total: len(messages)}, nil
}
