// Package tools provides the catalog of external capabilities the agent
// may invoke mid-turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/threadline-ai/agent-chat/internal/llm"
)

// Tool is a single callable capability: a name, a structured input schema,
// and a synchronous call returning structured output or an error.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// ToolError reports a failed tool call. The orchestrator feeds the message
// back to the model rather than retrying.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Catalog is the fixed set of tools exposed to the model for a deployment.
type Catalog struct {
	tools map[string]Tool
	order []string
}

// NewCatalog creates a catalog holding the given tools.
func NewCatalog(tools ...Tool) *Catalog {
	c := &Catalog{tools: make(map[string]Tool)}
	for _, t := range tools {
		c.Register(t)
	}
	return c
}

// Register adds a tool to the catalog, replacing any tool of the same name.
func (c *Catalog) Register(t Tool) {
	if _, exists := c.tools[t.Name()]; !exists {
		c.order = append(c.order, t.Name())
	}
	c.tools[t.Name()] = t
}

// Get returns the named tool.
func (c *Catalog) Get(name string) (Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Defs returns provider-facing definitions in registration order.
func (c *Catalog) Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(c.order))
	for _, name := range c.order {
		t := c.tools[name]
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Call invokes the named tool with the given structured input.
func (c *Catalog) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	t, ok := c.tools[name]
	if !ok {
		return nil, &ToolError{Tool: name, Err: fmt.Errorf("not in catalog")}
	}

	out, err := t.Call(ctx, input)
	if err != nil {
		return nil, &ToolError{Tool: name, Err: err}
	}
	return out, nil
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}
