// Package llm defines the Provider interface for Large Language Model
// backends.
//
// An LLM provider wraps a remote model API (e.g., Anthropic Claude or OpenAI
// GPT) and exposes a uniform streaming interface to the call orchestrator:
// GenerateStream returns a discriminated sequence of Event values mirroring
// the provider's own streaming protocol (message start, content block
// start/delta/stop, message stop, usage) so the orchestrator can assemble
// text deltas and tool-call arguments incrementally without waiting for a
// full turn to complete.
//
// Implementations must be safe for concurrent use. Channels returned by
// GenerateStream must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/MrWong99/glyphoxa/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// InputTokens is the number of tokens consumed by the input messages and
	// system prompt.
	InputTokens int

	// OutputTokens is the number of tokens generated in the response.
	OutputTokens int
}

// GenerateRequest carries everything the LLM needs to produce a response.
type GenerateRequest struct {
	// History is the ordered conversation so far. Role is one of "user",
	// "assistant", or "tool"; tool-result messages set ToolCallID to the
	// tool_use id they respond to.
	History []types.Message

	// Tools is the set of tool definitions offered to the model for this
	// turn.
	Tools []types.ToolDefinition

	// SystemPrompt is injected as the provider's dedicated system-prompt
	// field (Anthropic) or prepended as a system-role message (providers
	// without one).
	SystemPrompt string

	// Temperature controls output randomness. The booking-protocol system
	// prompt calls for a low, near-deterministic value (0.1).
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may
	// generate.
	MaxTokens int

	// CacheBreakpoint marks the index into History after which content may
	// be cached by providers that support prompt reuse (e.g., Anthropic
	// prompt caching). A zero value means no caching hint is given.
	CacheBreakpoint int
}

// EventKind discriminates the variants of [Event].
type EventKind int

const (
	// EventMessageStart opens a new assistant turn.
	EventMessageStart EventKind = iota

	// EventContentBlockStart opens a new content block within the current
	// message. BlockKind is text or tool_use; for tool_use blocks,
	// ToolCallID and ToolName identify the tool invocation being assembled.
	EventContentBlockStart

	// EventContentBlockDelta carries an incremental fragment of the content
	// block opened by the most recent EventContentBlockStart. For text
	// blocks TextDelta carries the fragment; for tool_use blocks
	// PartialJSON carries a fragment of the arguments JSON being streamed.
	EventContentBlockDelta

	// EventContentBlockStop closes the current content block.
	EventContentBlockStop

	// EventMessageStop closes the assistant turn. FinishReason explains why
	// generation stopped ("end_turn", "max_tokens", "tool_use").
	EventMessageStop

	// EventUsage carries final token accounting for the turn. Providers may
	// emit this alongside EventMessageStop or as a separate terminal event.
	EventUsage
)

// BlockKind discriminates the two content block shapes a provider may
// stream: plain text or a tool invocation.
type BlockKind int

const (
	// BlockText is a plain-text content block.
	BlockText BlockKind = iota

	// BlockToolUse is a tool invocation being assembled from streamed JSON
	// argument fragments.
	BlockToolUse
)

// Event is a single discriminated event in a GenerateStream sequence. Only
// the fields relevant to Kind are populated; see each EventKind's doc
// comment for which fields apply.
type Event struct {
	Kind EventKind

	// BlockKind is set on EventContentBlockStart/Delta/Stop.
	BlockKind BlockKind

	// BlockIndex identifies which content block this event applies to, for
	// providers that may interleave multiple blocks.
	BlockIndex int

	// ToolCallID and ToolName are set on EventContentBlockStart when
	// BlockKind is BlockToolUse.
	ToolCallID string
	ToolName   string

	// TextDelta is set on EventContentBlockDelta when BlockKind is
	// BlockText.
	TextDelta string

	// PartialJSON is set on EventContentBlockDelta when BlockKind is
	// BlockToolUse — a fragment of the tool's arguments JSON.
	PartialJSON string

	// FinishReason is set on EventMessageStop.
	FinishReason string

	// Usage is set on EventUsage.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Each method should propagate context cancellation promptly.
type Provider interface {
	// GenerateStream sends req to the model and returns a read-only channel
	// that emits Event values as they arrive, in the order
	// MessageStart, (ContentBlockStart, ContentBlockDelta*, ContentBlockStop)*,
	// MessageStop, Usage. The channel is closed by the implementation when
	// generation finishes or when ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. The initial
	// error return is non-nil only for failures that prevent the stream
	// from starting (invalid credentials, malformed request); errors after
	// the stream has started terminate the channel early.
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan Event, error)

	// Capabilities returns static metadata describing what this provider's
	// underlying model supports.
	Capabilities() types.ModelCapabilities
}
