package toolexec_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MrWong99/glyphoxa/internal/toolexec"
)

func compileTestSchema(t *testing.T, raw string) *jsonschema.Schema {
	t.Helper()
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("test.json", doc); err != nil {
		t.Fatalf("add resource: %v", err)
	}
	schema, err := c.Compile("test.json")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return schema
}

func TestExecuteToolUnknownName(t *testing.T) {
	h := toolexec.New()
	if _, err := h.ExecuteTool(context.Background(), "acme", "does_not_exist", "{}"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecuteToolRejectsSchemaInvalidArgs(t *testing.T) {
	h := toolexec.New()
	h.RegisterBuiltin(toolexec.BuiltinTool{
		Definition: toolexec.ToolDefinition{Name: "echo"},
		Schema:     compileTestSchema(t, `{"type":"object","required":["value"],"properties":{"value":{"type":"string"}}}`),
		Handler: func(ctx context.Context, tenantID string, args json.RawMessage) (string, error) {
			return "ok", nil
		},
	})

	if _, err := h.ExecuteTool(context.Background(), "acme", "echo", `{}`); err == nil {
		t.Fatal("expected schema validation error for missing required field")
	}
}

func TestExecuteToolRunsHandlerOnValidArgs(t *testing.T) {
	h := toolexec.New()
	h.RegisterBuiltin(toolexec.BuiltinTool{
		Definition: toolexec.ToolDefinition{Name: "echo"},
		Schema:     compileTestSchema(t, `{"type":"object","required":["value"],"properties":{"value":{"type":"string"}}}`),
		Handler: func(ctx context.Context, tenantID string, args json.RawMessage) (string, error) {
			var decoded struct {
				Value string `json:"value"`
			}
			if err := json.Unmarshal(args, &decoded); err != nil {
				return "", err
			}
			return "echo:" + decoded.Value, nil
		},
	})

	result, err := h.ExecuteTool(context.Background(), "acme", "echo", `{"value":"hi"}`)
	if err != nil {
		t.Fatalf("ExecuteTool() error = %v", err)
	}
	if result.Content != "echo:hi" {
		t.Errorf("Content = %q, want %q", result.Content, "echo:hi")
	}
}

func TestAvailableToolsListsRegistered(t *testing.T) {
	h := toolexec.New()
	h.RegisterBuiltin(toolexec.BuiltinTool{
		Definition: toolexec.ToolDefinition{Name: "a"},
		Handler: func(ctx context.Context, tenantID string, args json.RawMessage) (string, error) {
			return "", nil
		},
	})
	h.RegisterBuiltin(toolexec.BuiltinTool{
		Definition: toolexec.ToolDefinition{Name: "b"},
		Handler: func(ctx context.Context, tenantID string, args json.RawMessage) (string, error) {
			return "", nil
		},
	})

	defs := h.AvailableTools()
	if len(defs) != 2 {
		t.Fatalf("got %d tools, want 2", len(defs))
	}
}

func TestExecuteToolRejectsInvalidJSON(t *testing.T) {
	h := toolexec.New()
	h.RegisterBuiltin(toolexec.BuiltinTool{
		Definition: toolexec.ToolDefinition{Name: "echo"},
		Handler: func(ctx context.Context, tenantID string, args json.RawMessage) (string, error) {
			return "unreached", nil
		},
	})

	_, err := h.ExecuteTool(context.Background(), "acme", "echo", `{not json`)
	if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
}
