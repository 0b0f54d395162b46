// Package store provides persistent storage of chats and messages.
package store

import (
	"context"
	"errors"

	"github.com/threadline-ai/agent-chat/internal/model"
)

var (
	// ErrNotFound is returned when a chat or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a chat exists but belongs to a
	// different user.
	ErrForbidden = errors.New("forbidden")
)

// ChatStore is the conversation store contract. Every chat operation is
// scoped to the owning user; messages are append-only and listed in
// insertion order. Content is escaped by the store on write and returned
// escaped, exactly as persisted.
type ChatStore interface {
	CreateChat(ctx context.Context, userID, title string) (*model.Chat, error)
	GetChat(ctx context.Context, userID, chatID string) (*model.Chat, error)
	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
	// DeleteChat removes a chat and cascades to all of its messages.
	DeleteChat(ctx context.Context, userID, chatID string) error

	AppendMessage(ctx context.Context, chatID string, role model.Role, content string) (*model.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
}
