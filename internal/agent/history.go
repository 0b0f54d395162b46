package agent

import (
	"github.com/threadline-ai/agent-chat/internal/llm"
	"github.com/threadline-ai/agent-chat/internal/model"
)

// HistoryFromMessages converts stored role-tagged messages into provider
// history, unescaping content that was escaped at the storage boundary.
func HistoryFromMessages(messages []model.ChatMessage) []llm.ChatMessage {
	history := make([]llm.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, llm.ChatMessage{
			Role:    string(msg.Role),
			Content: model.UnescapeContent(msg.Content),
		})
	}
	return history
}

// TrimHistory reduces history to at most window most-recent messages.
// Whole messages are kept or dropped, never truncated, and the window is
// advanced to begin on a user message, or past any orphan tool results
// when none remains, so the model never sees a tool result without the
// call that produced it. System instructions travel out of band and are
// unaffected.
func TrimHistory(history []llm.ChatMessage, window int) []llm.ChatMessage {
	if window <= 0 || len(history) <= window {
		return append([]llm.ChatMessage(nil), history...)
	}

	trimmed := history[len(history)-window:]
	for i, msg := range trimmed {
		if msg.Role == "user" {
			trimmed = trimmed[i:]
			break
		}
	}
	// No user message in the window: skip leading tool results whose
	// owning tool call fell outside it, so the window starts on the
	// assistant message that issued the next call.
	for len(trimmed) > 0 && trimmed[0].Role == "tool" {
		trimmed = trimmed[1:]
	}
	return append([]llm.ChatMessage(nil), trimmed...)
}

// AnnotateCacheHints marks two messages as cache-friendly for the provider:
// the last message overall and the second-most-recent user message counting
// from the end. When fewer than two user messages exist only the single
// eligible one is marked. Pure optimization hint, no effect on correctness.
func AnnotateCacheHints(history []llm.ChatMessage) []llm.ChatMessage {
	if len(history) == 0 {
		return history
	}

	annotated := append([]llm.ChatMessage(nil), history...)
	annotated[len(annotated)-1].CacheHint = true

	userCount := 0
	for i := len(annotated) - 1; i >= 0; i-- {
		if annotated[i].Role != "user" {
			continue
		}
		userCount++
		if userCount == 2 {
			annotated[i].CacheHint = true
			break
		}
	}
	return annotated
}
