// Package sse implements the wire framing for the chat event stream:
// encoding stream events as newline-delimited "data:" frames and decoding
// them back on the receiving side. Framing only, no business logic.
package sse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threadline-ai/agent-chat/internal/model"
)

const (
	// DataPrefix prefixes every data frame.
	DataPrefix = "data: "

	// LineDelimiter terminates every frame.
	LineDelimiter = "\n\n"

	// DoneSentinel is the literal payload that decodes to a Done event.
	// It is not valid JSON on purpose.
	DoneSentinel = "[DONE]"
)

// decodeErrorMessage is the fixed diagnostic attached to frames whose
// payload is not valid JSON.
const decodeErrorMessage = "Failed to parse data"

// Encode serializes a stream event as a single SSE frame. The JSON payload
// never contains literal newlines: message content is escaped upstream and
// encoding/json escapes control characters inside strings.
func Encode(event model.StreamEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode stream event: %w", err)
	}
	buf := make([]byte, 0, len(DataPrefix)+len(payload)+len(LineDelimiter))
	buf = append(buf, DataPrefix...)
	buf = append(buf, payload...)
	buf = append(buf, LineDelimiter...)
	return buf, nil
}

// Decoder incrementally decodes SSE frames from arbitrarily chunked input.
// Network chunks may split frames mid-line; the decoder buffers the trailing
// partial line across Feed calls. The buffer is unbounded: a peer that never
// sends a line delimiter grows it without limit.
type Decoder struct {
	buffer string
}

// NewDecoder returns a decoder with empty buffer state.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes the next chunk and returns the events completed by it.
//
// Each complete line starting with the data prefix is parsed as JSON and
// yields an event only when its type is a recognized stream event kind.
// The done sentinel decodes to a synthetic Done event. Malformed JSON
// yields a single Error event with a fixed diagnostic. Blank lines and
// lines without the data prefix are dropped.
func (d *Decoder) Feed(chunk []byte) []model.StreamEvent {
	lines := strings.Split(d.buffer+string(chunk), "\n")

	// The final fragment may be incomplete; keep it for the next call.
	d.buffer = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var events []model.StreamEvent
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, DataPrefix) {
			continue
		}

		data := line[len(DataPrefix):]
		if data == DoneSentinel {
			events = append(events, model.DoneEvent())
			continue
		}

		var event model.StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			events = append(events, model.ErrorEvent(decodeErrorMessage))
			continue
		}
		if !model.KnownEventType(event.Type) {
			continue
		}
		events = append(events, event)
	}
	return events
}

// Reset discards accumulated buffer state. This is the only way to restart
// the decoder.
func (d *Decoder) Reset() {
	d.buffer = ""
}
