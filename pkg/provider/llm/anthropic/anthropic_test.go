package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

// stubMessagesClient is a no-op MessagesClient used to satisfy New in tests
// that only exercise request construction, never an actual stream.
type stubMessagesClient struct{}

func (stubMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return nil, nil
}

func (stubMessagesClient) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	return nil
}

func TestNew_RequiresMessagesClient(t *testing.T) {
	if _, err := New(nil, "model"); err == nil {
		t.Error("expected error for nil messages client")
	}
}

func TestNew_DefaultsModelWhenEmpty(t *testing.T) {
	p, err := New(stubMessagesClient{}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected default model %q, got %q", defaultModel, p.model)
	}
}

func TestNewFromAPIKey_EmptyKey(t *testing.T) {
	if _, err := NewFromAPIKey("", "model"); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestCapabilities(t *testing.T) {
	p, err := New(stubMessagesClient{}, "claude-x")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	caps := p.Capabilities()
	if !caps.SupportsStreaming || !caps.SupportsToolCalling {
		t.Errorf("expected streaming and tool calling support, got %+v", caps)
	}
	if caps.ContextWindow != defaultContextWindow {
		t.Errorf("expected context window %d, got %d", defaultContextWindow, caps.ContextWindow)
	}
}

// ---- encodeMessages ----

func TestEncodeMessages_UserAndAssistant(t *testing.T) {
	history := []types.Message{
		{Role: "user", Content: "what's my balance?"},
		{Role: "assistant", Content: "let me check"},
	}
	msgs, err := encodeMessages(history)
	if err != nil {
		t.Fatalf("encodeMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestEncodeMessages_AssistantWithToolCall(t *testing.T) {
	history := []types.Message{
		{Role: "user", Content: "book me an appointment"},
		{
			Role: "assistant",
			ToolCalls: []types.ToolCall{
				{ID: "call_1", Name: "book_appointment", Arguments: `{"slot":"10:00"}`},
			},
		},
	}
	msgs, err := encodeMessages(history)
	if err != nil {
		t.Fatalf("encodeMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestEncodeMessages_ToolResult(t *testing.T) {
	history := []types.Message{
		{Role: "user", Content: "book me an appointment"},
		{Role: "tool", ToolCallID: "call_1", Content: `{"status":"booked"}`},
	}
	msgs, err := encodeMessages(history)
	if err != nil {
		t.Fatalf("encodeMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestEncodeMessages_ToolResultMissingID(t *testing.T) {
	history := []types.Message{
		{Role: "tool", Content: "result"},
	}
	if _, err := encodeMessages(history); err == nil {
		t.Error("expected error for tool message missing ToolCallID")
	}
}

func TestEncodeMessages_ToolCallMissingName(t *testing.T) {
	history := []types.Message{
		{Role: "assistant", ToolCalls: []types.ToolCall{{ID: "call_1"}}},
	}
	if _, err := encodeMessages(history); err == nil {
		t.Error("expected error for tool call missing name")
	}
}

func TestEncodeMessages_UnsupportedRole(t *testing.T) {
	history := []types.Message{
		{Role: "developer", Content: "x"},
	}
	if _, err := encodeMessages(history); err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestEncodeMessages_Empty(t *testing.T) {
	if _, err := encodeMessages(nil); err == nil {
		t.Error("expected error for empty history")
	}
}

func TestDecodeToolArguments_Empty(t *testing.T) {
	args, err := decodeToolArguments("")
	if err != nil {
		t.Fatalf("decodeToolArguments: %v", err)
	}
	if len(args) != 0 {
		t.Errorf("expected empty map, got %v", args)
	}
}

func TestDecodeToolArguments_InvalidJSON(t *testing.T) {
	if _, err := decodeToolArguments("{not json"); err == nil {
		t.Error("expected error for invalid JSON arguments")
	}
}

// ---- encodeTools ----

func TestEncodeTools_Empty(t *testing.T) {
	tools, err := encodeTools(nil)
	if err != nil {
		t.Fatalf("encodeTools: %v", err)
	}
	if tools != nil {
		t.Errorf("expected nil tools, got %v", tools)
	}
}

func TestEncodeTools_MissingDescription(t *testing.T) {
	defs := []types.ToolDefinition{{Name: "check_availability"}}
	if _, err := encodeTools(defs); err == nil {
		t.Error("expected error for tool missing description")
	}
}

func TestEncodeTools_MissingName(t *testing.T) {
	defs := []types.ToolDefinition{{Description: "desc"}}
	if _, err := encodeTools(defs); err == nil {
		t.Error("expected error for tool missing name")
	}
}

func TestEncodeTools_Success(t *testing.T) {
	defs := []types.ToolDefinition{
		{
			Name:        "check_availability",
			Description: "Checks calendar availability.",
			Parameters:  map[string]any{"type": "object"},
		},
	}
	tools, err := encodeTools(defs)
	if err != nil {
		t.Fatalf("encodeTools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
}

// ---- buildParams ----

func TestBuildParams_RequiresHistory(t *testing.T) {
	p, _ := New(stubMessagesClient{}, "claude-x")
	_, err := p.buildParams(llm.GenerateRequest{MaxTokens: 100})
	if err == nil {
		t.Error("expected error for empty history")
	}
}

func TestBuildParams_RequiresMaxTokens(t *testing.T) {
	p, _ := New(stubMessagesClient{}, "claude-x")
	req := llm.GenerateRequest{History: []types.Message{{Role: "user", Content: "hi"}}}
	if _, err := p.buildParams(req); err == nil {
		t.Error("expected error for non-positive MaxTokens")
	}
}

func TestBuildParams_SetsSystemPromptAndTools(t *testing.T) {
	p, _ := New(stubMessagesClient{}, "claude-x")
	req := llm.GenerateRequest{
		History:      []types.Message{{Role: "user", Content: "hi"}},
		MaxTokens:    256,
		SystemPrompt: "You are a polite receptionist.",
		Tools: []types.ToolDefinition{
			{Name: "check_availability", Description: "Checks calendar availability."},
		},
	}
	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.System) != 1 || params.System[0].Text != req.SystemPrompt {
		t.Errorf("expected system prompt to be set, got %+v", params.System)
	}
	if len(params.Tools) != 1 {
		t.Errorf("expected 1 tool, got %d", len(params.Tools))
	}
}
