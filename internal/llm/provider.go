// Package llm provides the model provider interface and implementations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// TokenCallback is called for each text token during streaming.
type TokenCallback func(token string) error

// ChatMessage is a message in the history sent to a provider. An assistant
// message may carry tool calls; a tool message carries the result of one.
type ChatMessage struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
	// Tool result fields, set when Role is "tool".
	ToolCallID string
	ToolName   string
	IsError    bool
	// CacheHint marks the message as a cache boundary for providers that
	// support prompt caching. Purely an optimization hint.
	CacheHint bool
}

// ToolCall is a structured tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolDef describes a callable tool exposed to the model.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// TurnRequest is one model invocation: system instructions, trimmed and
// annotated history, and the tool catalog. ChatID keys provider-side
// per-conversation state so concurrent chats never share it.
type TurnRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []ToolDef
	MaxTokens   int
	Temperature float64
	ChatID      string
}

// Turn is the assistant output of one model invocation: the streamed text
// plus any tool calls the model requested before stopping.
type Turn struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	TokensIn   int
	TokensOut  int
	LatencyMs  int64
}

// Provider is the model capability: given a history and a tool catalog,
// produce a token stream and/or a structured tool-call request.
type Provider interface {
	// StreamTurn invokes the model once, calling onToken for every text
	// delta as it arrives, and returns the completed turn.
	StreamTurn(ctx context.Context, req *TurnRequest, onToken TokenCallback) (*Turn, error)

	// Complete invokes the model once without streaming.
	Complete(ctx context.Context, req *TurnRequest) (*Turn, error)

	// Name returns the provider name.
	Name() string

	// Models returns the models this provider serves.
	Models() []string
}

// ProviderKind selects a provider implementation.
type ProviderKind string

const (
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderOpenAI    ProviderKind = "openai"
)

// NewProvider creates a provider by kind.
func NewProvider(kind ProviderKind, apiKey string) (Provider, error) {
	switch kind {
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey)
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", kind)
	}
}
