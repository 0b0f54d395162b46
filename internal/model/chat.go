// Package model defines data structures shared across the chat service.
package model

import (
	"time"
)

// Chat is a conversation thread owned by a single user. Deleting a chat
// cascades to all of its messages.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateChatRequest is the request body for creating a chat.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// ListChatsResponse is the response for listing a user's chats.
type ListChatsResponse struct {
	Chats []Chat `json:"chats"`
	Total int    `json:"total"`
}
