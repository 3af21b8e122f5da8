package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MrWong99/glyphoxa/internal/apperr"
)

// BuiltinTool is an in-process tool registration: a definition, the compiled
// schema its arguments are validated against, and the handler that runs once
// validation passes.
type BuiltinTool struct {
	Definition ToolDefinition
	Schema     *jsonschema.Schema

	// Handler executes the tool for the given tenant. argsJSON is the raw,
	// schema-valid JSON object the caller supplied.
	Handler func(ctx context.Context, tenantID string, argsJSON json.RawMessage) (string, error)
}

// Host is a concrete, builtin-only tool registry.
//
// The zero value is not usable; create instances with [New].
type Host struct {
	mu    sync.RWMutex
	tools map[string]BuiltinTool
}

// New returns a ready-to-use, empty Host.
func New() *Host {
	return &Host{tools: make(map[string]BuiltinTool)}
}

// RegisterBuiltin adds or replaces the tool identified by t.Definition.Name.
func (h *Host) RegisterBuiltin(t BuiltinTool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[t.Definition.Name] = t
}

// AvailableTools returns all registered tool definitions.
func (h *Host) AvailableTools() []ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(h.tools))
	for _, t := range h.tools {
		defs = append(defs, t.Definition)
	}
	return defs
}

// ExecuteTool validates argsJSON against the named tool's schema and, if
// valid, invokes its handler. name must exactly match a [ToolDefinition.Name]
// returned by [Host.AvailableTools].
//
// An application-level failure reported by a handler as its output string
// (e.g. missing_or_invalid_booking_fields) comes back as a non-nil
// *ToolResult carrying that string; ExecuteTool never sets
// [ToolResult.IsError]. A Go error is returned when the tool is unknown,
// the arguments are not valid JSON or fail schema validation, or the
// handler itself returns an error.
func (h *Host) ExecuteTool(ctx context.Context, tenantID, name, argsJSON string) (*ToolResult, error) {
	h.mu.RLock()
	tool, ok := h.tools[name]
	h.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgument, "toolexec: tool %q not registered", name)
	}

	if argsJSON == "" {
		argsJSON = "{}"
	}

	var decoded any
	if err := json.Unmarshal([]byte(argsJSON), &decoded); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "toolexec: tool %q arguments are not valid JSON", name)
	}
	if tool.Schema != nil {
		if err := tool.Schema.Validate(decoded); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "toolexec: tool %q arguments failed schema validation", name)
		}
	}

	start := time.Now()
	output, err := tool.Handler(ctx, tenantID, json.RawMessage(argsJSON))
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("toolexec: tool %q execution failed: %w", name, err)
	}

	return &ToolResult{Content: output, DurationMs: durationMs}, nil
}
