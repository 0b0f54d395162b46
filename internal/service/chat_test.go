package service

import (
	"context"
	"errors"
	"testing"

	"github.com/threadline-ai/agent-chat/internal/agent"
	"github.com/threadline-ai/agent-chat/internal/llm"
	"github.com/threadline-ai/agent-chat/internal/model"
	"github.com/threadline-ai/agent-chat/internal/store"
	"github.com/threadline-ai/agent-chat/pkg/logger"
)

func newChatService(t *testing.T) (*ChatService, *store.MemoryStore) {
	t.Helper()
	memory := store.NewMemoryStore()
	return NewChatService(memory, nil, nil, logger.NewNop()), memory
}

func TestChatServiceCreateAndList(t *testing.T) {
	svc, _ := newChatService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-1", "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, "user-1", "second"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, "user-2", "other"); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Chats) != 2 {
		t.Fatalf("expected 2 chats, got %+v", resp)
	}
}

func TestChatServiceMessagesChecksOwnership(t *testing.T) {
	svc, memory := newChatService(t)
	ctx := context.Background()

	chat, err := svc.Create(ctx, "user-1", "mine")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := memory.AppendMessage(ctx, chat.ID, model.RoleUser, "hello"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Messages(ctx, "user-2", chat.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a foreign reader, got %v", err)
	}

	resp, err := svc.Messages(ctx, "user-1", chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Fatalf("expected 1 message, got %d", resp.Total)
	}
}

func TestChatServiceDelete(t *testing.T) {
	svc, _ := newChatService(t)
	ctx := context.Background()

	chat, err := svc.Create(ctx, "user-1", "temp")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "user-1", chat.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, "user-1", chat.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestChatServiceLifecycleEvents(t *testing.T) {
	memory := store.NewMemoryStore()
	publisher := &recordingPublisher{}
	svc := NewChatService(memory, publisher, nil, logger.NewNop())
	ctx := context.Background()

	chat, err := svc.Create(ctx, "user-1", "events")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "user-1", chat.ID); err != nil {
		t.Fatal(err)
	}

	if len(publisher.lifecycle) != 2 || publisher.lifecycle[0] != "created" || publisher.lifecycle[1] != "deleted" {
		t.Fatalf("expected created then deleted events, got %v", publisher.lifecycle)
	}
}

func TestChatServiceDeleteDropsCheckpoint(t *testing.T) {
	memory := store.NewMemoryStore()
	checkpoints := agent.NewMemorySaver()
	svc := NewChatService(memory, nil, checkpoints, logger.NewNop())
	ctx := context.Background()

	chat, err := svc.Create(ctx, "user-1", "temp")
	if err != nil {
		t.Fatal(err)
	}
	checkpoints.Save(chat.ID, []llm.ChatMessage{{Role: "user", Content: "hi"}})

	if err := svc.Delete(ctx, "user-1", chat.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := checkpoints.Load(chat.ID); ok {
		t.Fatal("deleting a chat must drop its checkpoint")
	}
}
