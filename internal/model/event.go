package model

import (
	"encoding/json"
)

// StreamEventType identifies the kind of a stream event.
type StreamEventType string

const (
	StreamConnected StreamEventType = "connected"
	StreamToken     StreamEventType = "token"
	StreamToolStart StreamEventType = "tool_start"
	StreamToolEnd   StreamEventType = "tool_end"
	StreamError     StreamEventType = "error"
	StreamDone      StreamEventType = "done"
)

// StreamEvent is one event on the chat SSE stream. Exactly one Connected
// event opens a stream and exactly one of Done or Error terminates it; any
// number of Token, ToolStart and ToolEnd events occur in between, every
// ToolEnd preceded by its ToolStart.
type StreamEvent struct {
	Type   StreamEventType `json:"type"`
	Token  string          `json:"token,omitempty"`
	Tool   string          `json:"tool,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// KnownEventType reports whether t is one of the recognized stream event
// kinds. The SSE decoder drops frames whose type is not recognized.
func KnownEventType(t StreamEventType) bool {
	switch t {
	case StreamConnected, StreamToken, StreamToolStart, StreamToolEnd, StreamError, StreamDone:
		return true
	}
	return false
}

// ConnectedEvent returns the stream-open event.
func ConnectedEvent() StreamEvent {
	return StreamEvent{Type: StreamConnected}
}

// TokenEvent returns a token delta event.
func TokenEvent(token string) StreamEvent {
	return StreamEvent{Type: StreamToken, Token: token}
}

// ToolStartEvent marks the start of a tool invocation.
func ToolStartEvent(tool string, input json.RawMessage) StreamEvent {
	return StreamEvent{Type: StreamToolStart, Tool: tool, Input: input}
}

// ToolEndEvent marks the end of a tool invocation.
func ToolEndEvent(tool string, output json.RawMessage) StreamEvent {
	return StreamEvent{Type: StreamToolEnd, Tool: tool, Output: output}
}

// ErrorEvent returns a terminal error event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: StreamError, Error: message}
}

// DoneEvent returns the terminal success event.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: StreamDone}
}
