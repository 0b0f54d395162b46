package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type stubTool struct {
	name string
	fail error
}

func (t *stubTool) Name() string                { return t.name }
func (t *stubTool) Description() string         { return "stub" }
func (t *stubTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }

func (t *stubTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	if t.fail != nil {
		return nil, t.fail
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func TestCatalogRegisterAndGet(t *testing.T) {
	c := NewCatalog(&stubTool{name: "alpha"}, &stubTool{name: "beta"})

	if c.Len() != 2 {
		t.Fatalf("expected 2 tools, got %d", c.Len())
	}
	if _, ok := c.Get("alpha"); !ok {
		t.Fatal("alpha must be registered")
	}
	if _, ok := c.Get("gamma"); ok {
		t.Fatal("gamma must not be registered")
	}
}

func TestCatalogDefsInRegistrationOrder(t *testing.T) {
	c := NewCatalog(&stubTool{name: "zulu"}, &stubTool{name: "alpha"}, &stubTool{name: "mike"})

	defs := c.Defs()
	want := []string{"zulu", "alpha", "mike"}
	if len(defs) != len(want) {
		t.Fatalf("expected %d defs, got %d", len(want), len(defs))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Fatalf("def %d: expected %q, got %q", i, name, defs[i].Name)
		}
	}
}

func TestCatalogRegisterReplacesSameName(t *testing.T) {
	c := NewCatalog(&stubTool{name: "alpha"})
	replacement := &stubTool{name: "alpha", fail: errors.New("replaced")}
	c.Register(replacement)

	if c.Len() != 1 {
		t.Fatalf("expected 1 tool after replacement, got %d", c.Len())
	}
	if _, err := c.Call(context.Background(), "alpha", nil); err == nil {
		t.Fatal("expected the replacement tool to be invoked")
	}
}

func TestCatalogCallUnknownTool(t *testing.T) {
	c := NewCatalog()
	_, err := c.Call(context.Background(), "missing", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown tool")
	}

	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Tool != "missing" {
		t.Fatalf("expected ToolError naming the tool, got %v", err)
	}
}

func TestCatalogCallWrapsToolFailure(t *testing.T) {
	cause := errors.New("backend down")
	c := NewCatalog(&stubTool{name: "alpha", fail: cause})

	_, err := c.Call(context.Background(), "alpha", nil)
	if !errors.Is(err, cause) {
		t.Fatalf("expected the cause to unwrap, got %v", err)
	}

	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Tool != "alpha" {
		t.Fatalf("expected ToolError naming the tool, got %v", err)
	}
}

func TestDefaultCatalogTools(t *testing.T) {
	c := DefaultCatalog(GraphQLConfig{Endpoint: "http://localhost/graphql"})

	for _, name := range []string{"youtube_transcript", "google_books", "appointment_data"} {
		tool, ok := c.Get(name)
		if !ok {
			t.Fatalf("expected %s in the default catalog", name)
		}
		if tool.Description() == "" {
			t.Fatalf("%s must carry a description", name)
		}
		schema := tool.InputSchema()
		if schema["type"] != "object" {
			t.Fatalf("%s schema must be an object schema", name)
		}
	}
}
