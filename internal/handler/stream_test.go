package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/threadline-ai/agent-chat/internal/agent"
	"github.com/threadline-ai/agent-chat/internal/llm"
	"github.com/threadline-ai/agent-chat/internal/middleware"
	"github.com/threadline-ai/agent-chat/internal/model"
	"github.com/threadline-ai/agent-chat/internal/service"
	"github.com/threadline-ai/agent-chat/internal/sse"
	"github.com/threadline-ai/agent-chat/internal/store"
	"github.com/threadline-ai/agent-chat/internal/tools"
	"github.com/threadline-ai/agent-chat/pkg/logger"
)

// fixedProvider answers every turn with the same streamed text.
type fixedProvider struct {
	answer string
	err    error
}

func (p *fixedProvider) StreamTurn(ctx context.Context, req *llm.TurnRequest, onToken llm.TokenCallback) (*llm.Turn, error) {
	if p.err != nil {
		return nil, p.err
	}
	for _, word := range strings.SplitAfter(p.answer, " ") {
		if err := onToken(word); err != nil {
			return nil, err
		}
	}
	return &llm.Turn{Content: p.answer, StopReason: "end_turn"}, nil
}

func (p *fixedProvider) Complete(ctx context.Context, req *llm.TurnRequest) (*llm.Turn, error) {
	return p.StreamTurn(ctx, req, func(string) error { return nil })
}

func (p *fixedProvider) Name() string { return "fixed" }

func (p *fixedProvider) Models() []string { return []string{"fixed-1"} }

// brokenStore fails every append while delegating reads to the wrapped store.
type brokenStore struct {
	store.ChatStore
}

func (s *brokenStore) AppendMessage(ctx context.Context, chatID string, role model.Role, content string) (*model.Message, error) {
	return nil, errors.New("connection reset")
}

type streamFixture struct {
	handler *StreamHandler
	store   store.ChatStore
	chat    *model.Chat
}

func newStreamFixture(t *testing.T, provider llm.Provider, breakAppends bool) *streamFixture {
	t.Helper()

	log := logger.NewNop()
	memory := store.NewMemoryStore()
	chat, err := memory.CreateChat(context.Background(), "user-1", "test chat")
	if err != nil {
		t.Fatal(err)
	}

	var s store.ChatStore = memory
	if breakAppends {
		// Wrap the seeded memory store so reads still work.
		s = &brokenStore{ChatStore: memory}
	}

	orch := agent.New(provider, tools.NewCatalog(), log, agent.Options{})
	turnSvc := service.NewTurnService(s, orch, nil, log)
	chatSvc := service.NewChatService(s, nil, orch.Checkpoints(), log)

	return &streamFixture{
		handler: NewStreamHandler(turnSvc, chatSvc, log),
		store:   s,
		chat:    chat,
	}
}

func streamRequest(t *testing.T, userID, chatID, message string, prior []model.ChatMessage) *http.Request {
	t.Helper()

	body, err := json.Marshal(model.ChatStreamRequest{
		Messages:   prior,
		NewMessage: message,
		ChatID:     chatID,
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(body))
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	}
	return req
}

func decodeStream(t *testing.T, body []byte) []model.StreamEvent {
	t.Helper()
	return sse.NewDecoder().Feed(body)
}

func TestStreamHappyPath(t *testing.T) {
	f := newStreamFixture(t, &fixedProvider{answer: "Paris is the capital of France."}, false)

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, streamRequest(t, "user-1", f.chat.ID, "What is the capital of France?", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}
	if rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatal("proxy buffering must be disabled")
	}

	events := decodeStream(t, rec.Body.Bytes())
	if len(events) < 3 {
		t.Fatalf("expected connected, tokens and done, got %+v", events)
	}
	if events[0].Type != model.StreamConnected {
		t.Fatalf("first event must be connected, got %s", events[0].Type)
	}
	if last := events[len(events)-1]; last.Type != model.StreamDone {
		t.Fatalf("last event must be done, got %s", last.Type)
	}

	var text strings.Builder
	for _, e := range events[1 : len(events)-1] {
		if e.Type != model.StreamToken {
			t.Fatalf("unexpected intermediate event %s", e.Type)
		}
		text.WriteString(e.Token)
	}
	if text.String() != "Paris is the capital of France." {
		t.Fatalf("streamed text mismatch: %q", text.String())
	}

	// Exactly one connected and one terminal event.
	connected, terminal := 0, 0
	for _, e := range events {
		switch e.Type {
		case model.StreamConnected:
			connected++
		case model.StreamDone, model.StreamError:
			terminal++
		}
	}
	if connected != 1 || terminal != 1 {
		t.Fatalf("expected exactly one connected and one terminal event, got %d/%d", connected, terminal)
	}

	// Both sides of the exchange are persisted in order.
	msgs, err := f.store.ListMessages(context.Background(), f.chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user and assistant messages stored, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleAssistant {
		t.Fatalf("messages stored out of order: %s then %s", msgs[0].Role, msgs[1].Role)
	}
	if model.UnescapeContent(msgs[1].Content) != "Paris is the capital of France." {
		t.Fatalf("assistant content mismatch: %q", msgs[1].Content)
	}
}

func TestStreamUnauthenticated(t *testing.T) {
	f := newStreamFixture(t, &fixedProvider{answer: "x"}, false)

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, streamRequest(t, "", f.chat.ID, "hello", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "data:") {
		t.Fatal("no stream frames may be written to an unauthenticated caller")
	}

	msgs, err := f.store.ListMessages(context.Background(), f.chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatal("nothing may be persisted for an unauthenticated caller")
	}
}

func TestStreamInvalidBody(t *testing.T) {
	f := newStreamFixture(t, &fixedProvider{answer: "x"}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader("{broken"))
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, "user-1"))

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamInvalidChatID(t *testing.T) {
	f := newStreamFixture(t, &fixedProvider{answer: "x"}, false)

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, streamRequest(t, "user-1", "not-a-uuid", "hello", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamEmptyMessage(t *testing.T) {
	f := newStreamFixture(t, &fixedProvider{answer: "x"}, false)

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, streamRequest(t, "user-1", f.chat.ID, "", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamForeignChat(t *testing.T) {
	f := newStreamFixture(t, &fixedProvider{answer: "x"}, false)

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, streamRequest(t, "user-2", f.chat.ID, "hello", nil))

	// Ownership failures read as 404 so existence is not leaked.
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStreamPersistenceFailure(t *testing.T) {
	provider := &fixedProvider{answer: "never reached"}
	f := newStreamFixture(t, provider, true)

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, streamRequest(t, "user-1", f.chat.ID, "hello", nil))

	// The stream was already committed, so the failure travels in-band.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	events := decodeStream(t, rec.Body.Bytes())
	if len(events) != 2 {
		t.Fatalf("expected connected then error, got %+v", events)
	}
	if events[0].Type != model.StreamConnected {
		t.Fatalf("first event must be connected, got %s", events[0].Type)
	}
	if events[1].Type != model.StreamError {
		t.Fatalf("second event must be error, got %s", events[1].Type)
	}
	if !strings.HasPrefix(events[1].Error, "Failed to process chat request: ") {
		t.Fatalf("error diagnostic mismatch: %q", events[1].Error)
	}
	for _, e := range events {
		if e.Type == model.StreamDone {
			t.Fatal("a failed stream must not emit done")
		}
	}
}

func TestStreamProviderFailure(t *testing.T) {
	f := newStreamFixture(t, &fixedProvider{err: errors.New("model unavailable")}, false)

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, streamRequest(t, "user-1", f.chat.ID, "hello", nil))

	events := decodeStream(t, rec.Body.Bytes())
	if len(events) < 2 {
		t.Fatalf("expected connected then error, got %+v", events)
	}
	if last := events[len(events)-1]; last.Type != model.StreamError {
		t.Fatalf("last event must be error, got %s", last.Type)
	}

	// The user message stays persisted even though the turn failed.
	msgs, err := f.store.ListMessages(context.Background(), f.chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Role != model.RoleUser {
		t.Fatalf("expected only the user message persisted, got %+v", msgs)
	}
}

func TestStreamPriorHistoryForwarded(t *testing.T) {
	var seen []llm.ChatMessage
	provider := &capturingProvider{answer: "ok", capture: &seen}
	f := newStreamFixture(t, provider, false)

	prior := []model.ChatMessage{
		{Role: model.RoleUser, Content: "earlier question"},
		{Role: model.RoleAssistant, Content: "earlier answer"},
	}
	rec := httptest.NewRecorder()
	f.handler.Stream(rec, streamRequest(t, "user-1", f.chat.ID, "follow-up", prior))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(seen) != 3 {
		t.Fatalf("expected prior history plus new message, got %d messages", len(seen))
	}
	if seen[0].Content != "earlier question" || seen[2].Content != "follow-up" {
		t.Fatalf("history order mismatch: %+v", seen)
	}
}

// capturingProvider records the message history it was invoked with.
type capturingProvider struct {
	answer  string
	capture *[]llm.ChatMessage
}

func (p *capturingProvider) StreamTurn(ctx context.Context, req *llm.TurnRequest, onToken llm.TokenCallback) (*llm.Turn, error) {
	*p.capture = append([]llm.ChatMessage(nil), req.Messages...)
	if err := onToken(p.answer); err != nil {
		return nil, err
	}
	return &llm.Turn{Content: p.answer, StopReason: "end_turn"}, nil
}

func (p *capturingProvider) Complete(ctx context.Context, req *llm.TurnRequest) (*llm.Turn, error) {
	return p.StreamTurn(ctx, req, func(string) error { return nil })
}

func (p *capturingProvider) Name() string { return "capturing" }

func (p *capturingProvider) Models() []string { return nil }

func TestStreamWriterSendAfterTerminal(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &streamWriter{w: rec, flusher: rec, log: logger.NewNop()}

	if err := sw.send(model.DoneEvent()); err != nil {
		t.Fatalf("terminal event must write: %v", err)
	}
	if err := sw.send(model.TokenEvent("late")); !errors.Is(err, errStreamClosed) {
		t.Fatalf("expected errStreamClosed after terminal event, got %v", err)
	}

	closed := &streamWriter{w: rec, flusher: rec, log: logger.NewNop()}
	closed.close()
	if err := closed.send(model.TokenEvent("late")); !errors.Is(err, errStreamClosed) {
		t.Fatalf("expected errStreamClosed after close, got %v", err)
	}
}
