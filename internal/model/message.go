package model

import (
	"strings"
	"time"
)

// Role is the author role of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one immutable message within a chat. Messages are ordered by
// creation time; insertion order is the canonical order.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is a role-tagged message as carried in request bodies and
// transient conversation history.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatStreamRequest is the body of the streaming chat endpoint: the prior
// conversation, the newly submitted user message, and the chat identity.
type ChatStreamRequest struct {
	Messages   []ChatMessage `json:"messages"`
	NewMessage string        `json:"newMessage"`
	ChatID     string        `json:"chatId"`
}

// SendMessageRequest is the body of the non-streaming message endpoint.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ListMessagesResponse is the response for listing a chat's messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}

// EscapeContent makes message content safe for storage by escaping
// backslashes and newlines. Content is escaped exactly once, on write.
func EscapeContent(content string) string {
	content = strings.ReplaceAll(content, `\`, `\\`)
	return strings.ReplaceAll(content, "\n", `\n`)
}

// UnescapeContent reverses EscapeContent.
func UnescapeContent(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for i := 0; i < len(content); i++ {
		if content[i] == '\\' && i+1 < len(content) {
			switch content[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(content[i])
	}
	return b.String()
}
