package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/threadline-ai/agent-chat/internal/model"
)

const (
	// StreamName is the name of the chat events stream.
	StreamName = "CHAT_EVENTS"

	// SubjectPrefix is the prefix for all chat event subjects.
	SubjectPrefix = "chat"
)

// TurnStatus is the outcome of an agent turn lifecycle event.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
)

// MessageAppended is published after a message is persisted.
type MessageAppended struct {
	MessageID string     `json:"message_id"`
	ChatID    string     `json:"chat_id"`
	UserID    string     `json:"user_id"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

// ChatLifecycle is published when a chat is created or deleted.
type ChatLifecycle struct {
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnEvent is published when an agent turn finishes, either way.
type TurnEvent struct {
	ChatID     string     `json:"chat_id"`
	UserID     string     `json:"user_id"`
	Status     TurnStatus `json:"status"`
	ToolRounds int        `json:"tool_rounds,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EventPublisher publishes chat lifecycle events to JetStream for
// downstream consumers (audit, notifications). Publishing is best-effort
// from the request path's perspective; callers log failures and move on.
type EventPublisher struct {
	client *Client
}

// NewEventPublisher creates a publisher on an existing client.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// EnsureStream creates the chat events stream when missing.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Chat message and turn lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	return nil
}

func messageSubject(userID, chatID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, userID, chatID, role)
}

func lifecycleSubject(userID, chatID, action string) string {
	return fmt.Sprintf("%s.%s.%s.lifecycle.%s", SubjectPrefix, userID, chatID, action)
}

func turnSubject(userID, chatID string, status TurnStatus) string {
	return fmt.Sprintf("%s.%s.%s.turn.%s", SubjectPrefix, userID, chatID, status)
}

// PublishMessageAppended publishes a message-appended event.
func (p *EventPublisher) PublishMessageAppended(ctx context.Context, userID string, msg *model.Message) error {
	event := MessageAppended{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		UserID:    userID,
		Role:      msg.Role,
		CreatedAt: msg.CreatedAt,
	}
	return p.publish(ctx, messageSubject(userID, msg.ChatID, msg.Role), event)
}

// PublishChatLifecycle publishes a chat created/deleted event.
func (p *EventPublisher) PublishChatLifecycle(ctx context.Context, userID, chatID, action string) error {
	event := ChatLifecycle{
		ChatID:    chatID,
		UserID:    userID,
		Action:    action,
		CreatedAt: time.Now(),
	}
	return p.publish(ctx, lifecycleSubject(userID, chatID, action), event)
}

// PublishTurnEvent publishes a turn lifecycle event.
func (p *EventPublisher) PublishTurnEvent(ctx context.Context, event *TurnEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return p.publish(ctx, turnSubject(event.UserID, event.ChatID, event.Status), event)
}

func (p *EventPublisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
