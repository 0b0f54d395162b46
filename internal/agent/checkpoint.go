package agent

import (
	"sync"

	"github.com/threadline-ai/agent-chat/internal/llm"
)

// MemorySaver keeps the final message state of each chat's most recent run,
// keyed by chat ID. Checkpoints for different chats are fully isolated;
// concurrent runs never observe each other's state.
//
// Snapshots are held until Delete, so memory use grows with the number of
// live chats. A run's snapshot is bounded by the history window, but a
// long-lived process with many chats should bound or expire the map.
type MemorySaver struct {
	mu          sync.RWMutex
	checkpoints map[string][]llm.ChatMessage
}

// NewMemorySaver creates an empty checkpoint saver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{checkpoints: make(map[string][]llm.ChatMessage)}
}

// Save records the message state for a chat, replacing any prior snapshot.
func (s *MemorySaver) Save(chatID string, messages []llm.ChatMessage) {
	snapshot := append([]llm.ChatMessage(nil), messages...)
	s.mu.Lock()
	s.checkpoints[chatID] = snapshot
	s.mu.Unlock()
}

// Load returns the last saved message state for a chat.
func (s *MemorySaver) Load(chatID string) ([]llm.ChatMessage, bool) {
	s.mu.RLock()
	snapshot, ok := s.checkpoints[chatID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return append([]llm.ChatMessage(nil), snapshot...), true
}

// Delete drops a chat's checkpoint, e.g. when the chat is deleted.
func (s *MemorySaver) Delete(chatID string) {
	s.mu.Lock()
	delete(s.checkpoints, chatID)
	s.mu.Unlock()
}
