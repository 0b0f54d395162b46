package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicProvider serves turns through the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Models returns available models.
func (p *AnthropicProvider) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
	}
}

func cacheControl() anthropic.CacheControlEphemeralParam {
	return anthropic.CacheControlEphemeralParam{
		Type: anthropic.F(anthropic.CacheControlEphemeralTypeEphemeral),
	}
}

// buildParams converts a turn request to Anthropic message params. Tool
// results travel as user-role tool_result blocks; cache hints become
// ephemeral cache_control markers on the message's text block.
func (p *AnthropicProvider) buildParams(req *TurnRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var messages []anthropic.MessageParam
	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				text := anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				}
				if msg.CacheHint {
					text.CacheControl = anthropic.F(cacheControl())
				}
				blocks = append(blocks, text)
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ToolUseBlockParam{
					Type:  anthropic.F(anthropic.ToolUseBlockParamTypeToolUse),
					ID:    anthropic.F(call.ID),
					Name:  anthropic.F(call.Name),
					Input: anthropic.F[interface{}](call.Input),
				})
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.F(anthropic.MessageParamRoleAssistant),
				Content: anthropic.F(blocks),
			})
		case "tool":
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.F(anthropic.MessageParamRoleUser),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{
					anthropic.ToolResultBlockParam{
						Type:      anthropic.F(anthropic.ToolResultBlockParamTypeToolResult),
						ToolUseID: anthropic.F(msg.ToolCallID),
						IsError:   anthropic.F(msg.IsError),
						Content: anthropic.F([]anthropic.ToolResultBlockParamContentUnion{
							anthropic.ToolResultBlockParamContent{
								Type: anthropic.F(anthropic.ToolResultBlockParamContentTypeText),
								Text: anthropic.F(msg.Content),
							},
						}),
					},
				}),
			})
		default:
			text := anthropic.TextBlockParam{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(msg.Content),
			}
			if msg.CacheHint {
				text.CacheControl = anthropic.F(cacheControl())
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.F(anthropic.MessageParamRoleUser),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{text}),
			})
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.F(req.Temperature)
	}

	if req.System != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{{
			Type:         anthropic.F(anthropic.TextBlockParamTypeText),
			Text:         anthropic.F(req.System),
			CacheControl: anthropic.F(cacheControl()),
		}})
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolParam, len(req.Tools))
		for i, def := range req.Tools {
			tools[i] = anthropic.ToolParam{
				Name:        anthropic.F(def.Name),
				Description: anthropic.F(def.Description),
				InputSchema: anthropic.F[interface{}](def.InputSchema),
			}
		}
		params.Tools = anthropic.F(tools)
	}

	// Keyed per chat so provider-side conversation state stays isolated.
	if req.ChatID != "" {
		params.Metadata = anthropic.F(anthropic.MetadataParam{
			UserID: anthropic.F(req.ChatID),
		})
	}

	return params
}

// StreamTurn sends a streaming message request, invoking onToken per text
// delta, and returns the accumulated turn including requested tool calls.
func (p *AnthropicProvider) StreamTurn(ctx context.Context, req *TurnRequest, onToken TokenCallback) (*Turn, error) {
	start := time.Now()

	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))

	var message anthropic.Message
	var content string

	for stream.Next() {
		event := stream.Current()
		message.Accumulate(event)

		if delta, ok := event.Delta.(anthropic.ContentBlockDeltaEventDelta); ok &&
			event.Type == anthropic.MessageStreamEventTypeContentBlockDelta &&
			delta.Type == "text_delta" && delta.Text != "" {
			content += delta.Text
			if err := onToken(delta.Text); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	turn := &Turn{
		Content:    content,
		StopReason: string(message.StopReason),
		TokensIn:   int(message.Usage.InputTokens),
		TokensOut:  int(message.Usage.OutputTokens),
		LatencyMs:  time.Since(start).Milliseconds(),
	}

	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeToolUse {
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: json.RawMessage(block.Input),
			})
		}
	}

	return turn, nil
}

// Complete sends a non-streaming message request.
func (p *AnthropicProvider) Complete(ctx context.Context, req *TurnRequest) (*Turn, error) {
	start := time.Now()

	resp, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, err
	}

	turn := &Turn{
		StopReason: string(resp.StopReason),
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		LatencyMs:  time.Since(start).Milliseconds(),
	}

	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.ContentBlockTypeText:
			turn.Content += block.Text
		case anthropic.ContentBlockTypeToolUse:
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: json.RawMessage(block.Input),
			})
		}
	}

	return turn, nil
}
