// Package agent implements the streaming turn orchestrator: a two-state
// machine that alternates between invoking the model and executing the
// tool calls it requests, until the model produces a final answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/threadline-ai/agent-chat/internal/llm"
	"github.com/threadline-ai/agent-chat/internal/model"
	"github.com/threadline-ai/agent-chat/internal/tools"
	"github.com/threadline-ai/agent-chat/pkg/logger"
	"github.com/threadline-ai/agent-chat/pkg/metrics"
	"go.uber.org/zap"
)

// unknownToolName is used when the provider omits the tool name.
const unknownToolName = "unknown"

// ErrToolRoundsExceeded terminates a run whose model keeps requesting
// tools past the configured ceiling.
var ErrToolRoundsExceeded = errors.New("tool call rounds exceeded")

// EmitFunc receives each stream event as it is produced. Emission blocks
// the run, so client backpressure naturally throttles the model side.
type EmitFunc func(event model.StreamEvent) error

// node is a state of the orchestrator graph.
type node int

const (
	nodeEnd node = iota
	nodeAgent
	nodeTools
)

// route is the pure routing function evaluated over the shape of the last
// message: assistant messages with pending tool calls go to the tools
// node, surfaced tool results return to the agent, anything else ends the
// run with the final answer ready.
func route(last llm.ChatMessage) node {
	if last.Role == "assistant" && len(last.ToolCalls) > 0 {
		return nodeTools
	}
	if last.Role == "tool" && last.Content != "" {
		return nodeAgent
	}
	return nodeEnd
}

// Options configures an orchestrator.
type Options struct {
	// Model overrides the provider's default model when set.
	Model string
	// System is the system instruction block, always kept across trims.
	System string
	// HistoryWindow is the trailing-window size for context trimming.
	HistoryWindow int
	// MaxToolRounds bounds the agent/tools loop.
	MaxToolRounds int
	// MaxTokens and Temperature are passed through to the provider.
	MaxTokens   int
	Temperature float64
}

func (o Options) withDefaults() Options {
	if o.System == "" {
		o.System = SystemPrompt
	}
	if o.HistoryWindow == 0 {
		o.HistoryWindow = 10
	}
	if o.MaxToolRounds == 0 {
		o.MaxToolRounds = 8
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 4096
	}
	return o
}

// Result is the outcome of a completed run.
type Result struct {
	// Content is the final assistant answer, the concatenation of the
	// last agent turn's tokens.
	Content string
	// Messages is the full message state at the end of the run.
	Messages []llm.ChatMessage
	// ToolRounds counts how many tool-execution rounds the run took.
	ToolRounds int
}

// Orchestrator drives one agent turn at a time. It holds no per-request
// state; a single orchestrator serves concurrent requests, with per-chat
// checkpoints isolated in the saver.
type Orchestrator struct {
	provider    llm.Provider
	catalog     *tools.Catalog
	checkpoints *MemorySaver
	opts        Options
	log         *logger.Logger
}

// New creates an orchestrator with explicitly supplied collaborators.
func New(provider llm.Provider, catalog *tools.Catalog, log *logger.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		provider:    provider,
		catalog:     catalog,
		checkpoints: NewMemorySaver(),
		opts:        opts.withDefaults(),
		log:         log,
	}
}

// Checkpoints exposes the per-chat checkpoint saver.
func (o *Orchestrator) Checkpoints() *MemorySaver {
	return o.checkpoints
}

// Run executes one turn for a chat: the full prior history plus the new
// user message is already part of history. Every observable sub-step is
// emitted through emit; terminal Connected/Done/Error events are the
// caller's responsibility so the stream carries exactly one of each.
func (o *Orchestrator) Run(ctx context.Context, chatID string, history []llm.ChatMessage, emit EmitFunc) (*Result, error) {
	msgs := append([]llm.ChatMessage(nil), history...)
	if len(msgs) == 0 {
		return nil, errors.New("empty history")
	}

	start := time.Now()
	rounds := 0
	var final string

	for current := nodeAgent; current != nodeEnd; current = route(msgs[len(msgs)-1]) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch current {
		case nodeAgent:
			turn, err := o.invokeModel(ctx, chatID, msgs, emit)
			if err != nil {
				return nil, fmt.Errorf("model invocation failed: %w", err)
			}
			msgs = append(msgs, llm.ChatMessage{
				Role:      "assistant",
				Content:   turn.Content,
				ToolCalls: turn.ToolCalls,
			})
			final = turn.Content

		case nodeTools:
			if rounds >= o.opts.MaxToolRounds {
				return nil, fmt.Errorf("%w: limit %d", ErrToolRoundsExceeded, o.opts.MaxToolRounds)
			}
			rounds++

			results, err := o.executeTools(ctx, msgs[len(msgs)-1].ToolCalls, emit)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, results...)
		}
	}

	o.checkpoints.Save(chatID, msgs)
	metrics.RecordAgentRun(o.provider.Name(), rounds, time.Since(start).Seconds())

	o.log.Info("agent turn complete",
		zap.String("chat_id", chatID),
		zap.Int("tool_rounds", rounds),
		zap.Int("messages", len(msgs)),
	)

	return &Result{Content: final, Messages: msgs, ToolRounds: rounds}, nil
}

// invokeModel trims and annotates the history, then streams one model turn,
// forwarding each non-empty token delta as a Token event.
func (o *Orchestrator) invokeModel(ctx context.Context, chatID string, msgs []llm.ChatMessage, emit EmitFunc) (*llm.Turn, error) {
	trimmed := TrimHistory(msgs, o.opts.HistoryWindow)
	annotated := AnnotateCacheHints(trimmed)

	start := time.Now()
	turn, err := o.provider.StreamTurn(ctx, &llm.TurnRequest{
		Model:       o.opts.Model,
		System:      o.opts.System,
		Messages:    annotated,
		Tools:       o.catalog.Defs(),
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
		ChatID:      chatID,
	}, func(token string) error {
		if token == "" {
			return nil
		}
		return emit(model.TokenEvent(token))
	})
	if err != nil {
		metrics.RecordLLMStream(o.provider.Name(), "error", time.Since(start).Seconds(), 0, 0)
		return nil, err
	}
	metrics.RecordLLMStream(o.provider.Name(), "success", time.Since(start).Seconds(), turn.TokensIn, turn.TokensOut)
	return turn, nil
}

// executeTools runs every pending tool call sequentially, emitting a
// ToolStart/ToolEnd pair per call. A tool that executes and fails has its
// error fed back to the model as the tool result so the model can correct
// itself; an unrecognized tool name or malformed input aborts the run.
func (o *Orchestrator) executeTools(ctx context.Context, calls []llm.ToolCall, emit EmitFunc) ([]llm.ChatMessage, error) {
	results := make([]llm.ChatMessage, 0, len(calls))

	for _, call := range calls {
		name := call.Name
		if name == "" {
			name = unknownToolName
		}
		if len(call.Input) > 0 && !json.Valid(call.Input) {
			return nil, fmt.Errorf("malformed input for tool %s", name)
		}
		if _, ok := o.catalog.Get(name); !ok {
			return nil, fmt.Errorf("tool %s is not in the catalog", name)
		}

		if err := emit(model.ToolStartEvent(name, call.Input)); err != nil {
			return nil, err
		}

		callStart := time.Now()
		output, err := o.catalog.Call(ctx, name, call.Input)

		result := llm.ChatMessage{
			Role:       "tool",
			ToolCallID: call.ID,
			ToolName:   name,
		}
		if err != nil {
			metrics.RecordToolCall(name, "error", time.Since(callStart).Seconds())
			o.log.Warn("tool call failed", zap.String("tool", name), zap.Error(err))

			result.Content = "Error: " + err.Error()
			result.IsError = true
			output, _ = json.Marshal(map[string]string{"error": err.Error()})
		} else {
			metrics.RecordToolCall(name, "success", time.Since(callStart).Seconds())
			result.Content = string(output)
		}

		if err := emit(model.ToolEndEvent(name, output)); err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}
