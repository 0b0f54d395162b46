package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threadline-ai/agent-chat/internal/model"
)

// MemoryStore is an in-memory ChatStore used by tests and local
// development. Safe for concurrent use; appends are keyed by chat.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]*model.Chat
	messages map[string][]model.Message
	seq      int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]*model.Chat),
		messages: make(map[string][]model.Message),
	}
}

// CreateChat creates a chat owned by userID.
func (s *MemoryStore) CreateChat(ctx context.Context, userID, title string) (*model.Chat, error) {
	chat := &model.Chat{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.chats[chat.ID] = chat
	s.mu.Unlock()

	out := *chat
	return &out, nil
}

// GetChat returns the chat when it exists and belongs to userID.
func (s *MemoryStore) GetChat(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	s.mu.RLock()
	chat, ok := s.chats[chatID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("get chat %s: %w", chatID, ErrNotFound)
	}
	if chat.UserID != userID {
		return nil, fmt.Errorf("get chat %s: %w", chatID, ErrForbidden)
	}

	out := *chat
	return &out, nil
}

// ListChats returns the user's chats, newest first.
func (s *MemoryStore) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chats []model.Chat
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}
	for i := 0; i < len(chats); i++ {
		for j := i + 1; j < len(chats); j++ {
			if chats[j].CreatedAt.After(chats[i].CreatedAt) {
				chats[i], chats[j] = chats[j], chats[i]
			}
		}
	}
	return chats, nil
}

// DeleteChat removes the chat and all of its messages.
func (s *MemoryStore) DeleteChat(ctx context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("delete chat %s: %w", chatID, ErrNotFound)
	}
	if chat.UserID != userID {
		return fmt.Errorf("delete chat %s: %w", chatID, ErrForbidden)
	}

	delete(s.chats, chatID)
	delete(s.messages, chatID)
	return nil
}

// AppendMessage appends a message to the chat in insertion order.
func (s *MemoryStore) AppendMessage(ctx context.Context, chatID string, role model.Role, content string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, fmt.Errorf("append message: %w", ErrNotFound)
	}

	s.seq++
	msg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    chatID,
		Role:      role,
		Content:   model.EscapeContent(content),
		CreatedAt: time.Now().Add(time.Duration(s.seq)), // monotonic tie-break
	}
	s.messages[chatID] = append(s.messages[chatID], msg)

	out := msg
	return &out, nil
}

// ListMessages returns the chat's messages in insertion order.
func (s *MemoryStore) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.Message(nil), s.messages[chatID]...), nil
}
