// Package anthropic provides an llm.Provider implementation backed by the
// Anthropic Claude Messages API, using github.com/anthropics/anthropic-sdk-go.
// It translates GenerateRequest history and tool definitions into Anthropic's
// wire format and adapts the Messages streaming API into the discriminated
// llm.Event sequence the orchestrator consumes.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

const (
	defaultModel           = string(sdk.ModelClaudeSonnet4_5_20250929)
	defaultContextWindow   = 200_000
	defaultMaxOutputTokens = 8_192
)

// MessagesClient captures the subset of the Anthropic SDK client used by
// Provider. It is satisfied by *sdk.MessageService, so callers can substitute
// a fake in tests without dialing the real API.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Provider implements llm.Provider on top of the Anthropic Messages API.
type Provider struct {
	msg   MessagesClient
	model string
	caps  types.ModelCapabilities
}

var _ llm.Provider = (*Provider)(nil)

// New builds a Provider from an already-constructed MessagesClient. Use this
// constructor in tests to inject a fake client.
func New(msg MessagesClient, model string) (*Provider, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		msg:   msg,
		model: model,
		caps: types.ModelCapabilities{
			ContextWindow:       defaultContextWindow,
			MaxOutputTokens:     defaultMaxOutputTokens,
			SupportsToolCalling: true,
			SupportsStreaming:   true,
		},
	}, nil
}

// NewFromAPIKey constructs a Provider using the default Anthropic HTTP
// client, authenticated with apiKey. model selects the Claude model ID; an
// empty string falls back to defaultModel.
func NewFromAPIKey(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: apiKey must not be empty")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, model)
}

// GenerateStream issues a Messages.NewStreaming request and adapts the
// resulting SSE stream into a channel of llm.Event values.
func (p *Provider) GenerateStream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Event, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := p.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: start stream: %w", err)
	}

	events := make(chan llm.Event, 32)
	go runStream(ctx, stream, events)
	return events, nil
}

// Capabilities returns static metadata about the configured Claude model.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return p.caps
}

func (p *Provider) buildParams(req llm.GenerateRequest) (*sdk.MessageNewParams, error) {
	if len(req.History) == 0 {
		return nil, errors.New("anthropic: history must not be empty")
	}
	if req.MaxTokens <= 0 {
		return nil, errors.New("anthropic: MaxTokens must be positive")
	}

	msgs, err := encodeMessages(req.History)
	if err != nil {
		return nil, err
	}
	applyCacheBreakpoint(msgs, req.CacheBreakpoint)

	tools, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}

	params := &sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  msgs,
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	return params, nil
}

func encodeMessages(history []types.Message) ([]sdk.MessageParam, error) {
	msgs := make([]sdk.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "user":
			if m.Content == "" {
				continue
			}
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				if tc.ID == "" || tc.Name == "" {
					return nil, errors.New("anthropic: tool call in history missing id or name")
				}
				input, err := decodeToolArguments(tc.Arguments)
				if err != nil {
					return nil, fmt.Errorf("anthropic: decode arguments for tool call %q: %w", tc.Name, err)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			msgs = append(msgs, sdk.NewAssistantMessage(blocks...))
		case "tool":
			if m.ToolCallID == "" {
				return nil, errors.New("anthropic: tool result message missing ToolCallID")
			}
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return msgs, nil
}

func decodeToolArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func encodeTools(defs []types.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, errors.New("anthropic: tool definition missing name")
		}
		if def.Description == "" {
			return nil, fmt.Errorf("anthropic: tool %q is missing description", def.Name)
		}
		schema := sdk.ToolInputSchemaParam{ExtraFields: def.Parameters}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

// applyCacheBreakpoint marks the final content block of the message at index
// breakpoint-1 as an ephemeral cache checkpoint, so Anthropic's prompt cache
// can reuse everything up to that point on the next turn. A zero breakpoint
// is a no-op.
func applyCacheBreakpoint(msgs []sdk.MessageParam, breakpoint int) {
	if breakpoint <= 0 || breakpoint > len(msgs) {
		return
	}
	content := msgs[breakpoint-1].Content
	if len(content) == 0 {
		return
	}
	last := &content[len(content)-1]
	switch {
	case last.OfText != nil:
		last.OfText.CacheControl = sdk.NewCacheControlEphemeralParam()
	case last.OfToolUse != nil:
		last.OfToolUse.CacheControl = sdk.NewCacheControlEphemeralParam()
	case last.OfToolResult != nil:
		last.OfToolResult.CacheControl = sdk.NewCacheControlEphemeralParam()
	}
}
