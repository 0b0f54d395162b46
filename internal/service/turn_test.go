package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/threadline-ai/agent-chat/internal/agent"
	"github.com/threadline-ai/agent-chat/internal/llm"
	"github.com/threadline-ai/agent-chat/internal/model"
	natsclient "github.com/threadline-ai/agent-chat/internal/nats"
	"github.com/threadline-ai/agent-chat/internal/store"
	"github.com/threadline-ai/agent-chat/internal/tools"
	"github.com/threadline-ai/agent-chat/pkg/logger"
)

// staticProvider answers with fixed text and records invocations.
type staticProvider struct {
	answer string
	err    error
	calls  int
}

func (p *staticProvider) StreamTurn(ctx context.Context, req *llm.TurnRequest, onToken llm.TokenCallback) (*llm.Turn, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if err := onToken(p.answer); err != nil {
		return nil, err
	}
	return &llm.Turn{Content: p.answer, StopReason: "end_turn"}, nil
}

func (p *staticProvider) Complete(ctx context.Context, req *llm.TurnRequest) (*llm.Turn, error) {
	return p.StreamTurn(ctx, req, func(string) error { return nil })
}

func (p *staticProvider) Name() string { return "static" }

func (p *staticProvider) Models() []string { return nil }

// recordingPublisher records published events in order.
type recordingPublisher struct {
	messages  []model.Message
	turns     []natsclient.TurnEvent
	lifecycle []string
	err       error
}

func (p *recordingPublisher) PublishMessageAppended(ctx context.Context, userID string, msg *model.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, *msg)
	return nil
}

func (p *recordingPublisher) PublishTurnEvent(ctx context.Context, event *natsclient.TurnEvent) error {
	if p.err != nil {
		return p.err
	}
	p.turns = append(p.turns, *event)
	return nil
}

func (p *recordingPublisher) PublishChatLifecycle(ctx context.Context, userID, chatID, action string) error {
	if p.err != nil {
		return p.err
	}
	p.lifecycle = append(p.lifecycle, action)
	return nil
}

type turnFixture struct {
	service   *TurnService
	store     *store.MemoryStore
	publisher *recordingPublisher
	chat      *model.Chat
}

func newTurnFixture(t *testing.T, provider llm.Provider) *turnFixture {
	t.Helper()

	log := logger.NewNop()
	memory := store.NewMemoryStore()
	chat, err := memory.CreateChat(context.Background(), "user-1", "fixture chat")
	if err != nil {
		t.Fatal(err)
	}

	publisher := &recordingPublisher{}
	orch := agent.New(provider, tools.NewCatalog(), log, agent.Options{})

	return &turnFixture{
		service:   NewTurnService(memory, orch, publisher, log),
		store:     memory,
		publisher: publisher,
		chat:      chat,
	}
}

func discard(model.StreamEvent) error { return nil }

func TestStreamPersistsBothSides(t *testing.T) {
	f := newTurnFixture(t, &staticProvider{answer: "the answer"})
	ctx := context.Background()

	req := &model.ChatStreamRequest{ChatID: f.chat.ID, NewMessage: "the question"}
	if err := f.service.Stream(ctx, "user-1", req, discard); err != nil {
		t.Fatal(err)
	}

	msgs, err := f.store.ListMessages(ctx, f.chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || model.UnescapeContent(msgs[0].Content) != "the question" {
		t.Fatalf("user message mismatch: %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || model.UnescapeContent(msgs[1].Content) != "the answer" {
		t.Fatalf("assistant message mismatch: %+v", msgs[1])
	}
}

func TestStreamPublishesLifecycleEvents(t *testing.T) {
	f := newTurnFixture(t, &staticProvider{answer: "done"})

	req := &model.ChatStreamRequest{ChatID: f.chat.ID, NewMessage: "go"}
	if err := f.service.Stream(context.Background(), "user-1", req, discard); err != nil {
		t.Fatal(err)
	}

	if len(f.publisher.messages) != 2 {
		t.Fatalf("expected 2 message events, got %d", len(f.publisher.messages))
	}
	if f.publisher.messages[0].Role != model.RoleUser || f.publisher.messages[1].Role != model.RoleAssistant {
		t.Fatal("message events must follow persistence order")
	}

	if len(f.publisher.turns) != 1 {
		t.Fatalf("expected 1 turn event, got %d", len(f.publisher.turns))
	}
	turn := f.publisher.turns[0]
	if turn.Status != natsclient.TurnCompleted || turn.ChatID != f.chat.ID || turn.UserID != "user-1" {
		t.Fatalf("unexpected turn event %+v", turn)
	}
}

func TestStreamFailedTurnPublishesFailure(t *testing.T) {
	f := newTurnFixture(t, &staticProvider{err: errors.New("model down")})

	req := &model.ChatStreamRequest{ChatID: f.chat.ID, NewMessage: "go"}
	err := f.service.Stream(context.Background(), "user-1", req, discard)
	if err == nil {
		t.Fatal("expected the turn to fail")
	}

	if len(f.publisher.turns) != 1 || f.publisher.turns[0].Status != natsclient.TurnFailed {
		t.Fatalf("expected a failed turn event, got %+v", f.publisher.turns)
	}
	if f.publisher.turns[0].Reason == "" {
		t.Fatal("failed turn event must carry a reason")
	}

	// The user message is persisted before the model runs.
	msgs, listErr := f.store.ListMessages(context.Background(), f.chat.ID)
	if listErr != nil {
		t.Fatal(listErr)
	}
	if len(msgs) != 1 || msgs[0].Role != model.RoleUser {
		t.Fatalf("expected only the user message persisted, got %+v", msgs)
	}
}

func TestStreamUnknownChatFails(t *testing.T) {
	provider := &staticProvider{answer: "x"}
	f := newTurnFixture(t, provider)

	req := &model.ChatStreamRequest{ChatID: "missing", NewMessage: "go"}
	err := f.service.Stream(context.Background(), "user-1", req, discard)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatal("the model must not run when persistence fails")
	}
}

func TestStreamPublisherFailureIsNotFatal(t *testing.T) {
	f := newTurnFixture(t, &staticProvider{answer: "fine"})
	f.publisher.err = errors.New("nats unavailable")

	req := &model.ChatStreamRequest{ChatID: f.chat.ID, NewMessage: "go"}
	if err := f.service.Stream(context.Background(), "user-1", req, discard); err != nil {
		t.Fatalf("publish failures must not fail the turn: %v", err)
	}
}

func TestSendReturnsAssistantMessage(t *testing.T) {
	f := newTurnFixture(t, &staticProvider{answer: "forty two"})

	msg, err := f.service.Send(context.Background(), "user-1", f.chat.ID, "the question")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Role != model.RoleAssistant {
		t.Fatalf("expected the assistant message, got %s", msg.Role)
	}
	if model.UnescapeContent(msg.Content) != "forty two" {
		t.Fatalf("unexpected content %q", msg.Content)
	}
}

func TestSendCarriesPriorHistory(t *testing.T) {
	provider := &staticProvider{answer: "second answer"}
	f := newTurnFixture(t, provider)
	ctx := context.Background()

	if _, err := f.service.Send(ctx, "user-1", f.chat.ID, "first question"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.Send(ctx, "user-1", f.chat.ID, "second question"); err != nil {
		t.Fatal(err)
	}

	msgs, err := f.store.ListMessages(ctx, f.chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after two turns, got %d", len(msgs))
	}

	var roles []string
	for _, m := range msgs {
		roles = append(roles, string(m.Role))
	}
	if strings.Join(roles, ",") != "user,assistant,user,assistant" {
		t.Fatalf("unexpected role sequence %v", roles)
	}
}
