package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
)

// runStream drains stream, translating each Anthropic SSE event into zero or
// more llm.Event values, until the stream ends or ctx is cancelled. It closes
// events before returning.
func runStream(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], events chan<- llm.Event) {
	defer close(events)
	defer stream.Close()

	proc := newEventProcessor()
	for stream.Next() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := proc.handle(stream.Current())
		if err != nil {
			return
		}
		for _, ev := range out {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// blockState tracks the in-progress content block at a given index so that
// ContentBlockStopEvent can be emitted with the right BlockKind and a
// tool_use block's streamed JSON fragments can be reassembled.
type blockState struct {
	kind      llm.BlockKind
	toolID    string
	toolName  string
	fragments []string
}

// eventProcessor converts a sequence of sdk.MessageStreamEventUnion values
// into llm.Event values, tracking per-message-turn state across calls to
// handle.
type eventProcessor struct {
	blocks     map[int]*blockState
	stopReason string
	usage      llm.Usage
}

func newEventProcessor() *eventProcessor {
	return &eventProcessor{blocks: make(map[int]*blockState)}
}

func (p *eventProcessor) handle(event sdk.MessageStreamEventUnion) ([]llm.Event, error) {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.blocks = make(map[int]*blockState)
		p.stopReason = ""
		p.usage = llm.Usage{InputTokens: int(ev.Message.Usage.InputTokens)}
		return []llm.Event{{Kind: llm.EventMessageStart}}, nil

	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		switch block := ev.ContentBlock.AsAny().(type) {
		case sdk.TextBlock:
			p.blocks[idx] = &blockState{kind: llm.BlockText}
			return []llm.Event{{Kind: llm.EventContentBlockStart, BlockKind: llm.BlockText, BlockIndex: idx}}, nil
		case sdk.ToolUseBlock:
			if block.ID == "" {
				return nil, errors.New("anthropic stream: tool_use block missing id")
			}
			if block.Name == "" {
				return nil, errors.New("anthropic stream: tool_use block missing name")
			}
			p.blocks[idx] = &blockState{kind: llm.BlockToolUse, toolID: block.ID, toolName: block.Name}
			return []llm.Event{{
				Kind:       llm.EventContentBlockStart,
				BlockKind:  llm.BlockToolUse,
				BlockIndex: idx,
				ToolCallID: block.ID,
				ToolName:   block.Name,
			}}, nil
		default:
			return nil, nil
		}

	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil, nil
			}
			return []llm.Event{{
				Kind:       llm.EventContentBlockDelta,
				BlockKind:  llm.BlockText,
				BlockIndex: idx,
				TextDelta:  delta.Text,
			}}, nil
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil, nil
			}
			bs := p.blocks[idx]
			if bs == nil {
				return nil, errors.New("anthropic stream: input_json_delta for unknown block index")
			}
			bs.fragments = append(bs.fragments, delta.PartialJSON)
			return []llm.Event{{
				Kind:        llm.EventContentBlockDelta,
				BlockKind:   llm.BlockToolUse,
				BlockIndex:  idx,
				ToolCallID:  bs.toolID,
				ToolName:    bs.toolName,
				PartialJSON: delta.PartialJSON,
			}}, nil
		default:
			return nil, nil
		}

	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		bs := p.blocks[idx]
		delete(p.blocks, idx)
		if bs == nil {
			return []llm.Event{{Kind: llm.EventContentBlockStop, BlockIndex: idx}}, nil
		}
		return []llm.Event{{
			Kind:       llm.EventContentBlockStop,
			BlockKind:  bs.kind,
			BlockIndex: idx,
			ToolCallID: bs.toolID,
			ToolName:   bs.toolName,
		}}, nil

	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		p.usage.OutputTokens = int(ev.Usage.OutputTokens)
		if ev.Usage.InputTokens != 0 {
			p.usage.InputTokens = int(ev.Usage.InputTokens)
		}
		return nil, nil

	case sdk.MessageStopEvent:
		out := []llm.Event{{Kind: llm.EventMessageStop, FinishReason: p.stopReason}}
		if p.usage.InputTokens != 0 || p.usage.OutputTokens != 0 {
			out = append(out, llm.Event{Kind: llm.EventUsage, Usage: p.usage})
		}
		p.blocks = make(map[int]*blockState)
		return out, nil

	default:
		return nil, nil
	}
}

// finalToolInput joins the streamed JSON fragments of a tool_use block. Not
// used by handle directly (the orchestrator accumulates PartialJSON deltas
// itself), but kept for callers that want the assembled arguments string
// without replaying the delta stream.
func finalToolInput(fragments []string) string {
	if len(fragments) == 0 {
		return "{}"
	}
	joined := strings.Join(fragments, "")
	if strings.TrimSpace(joined) == "" {
		return "{}"
	}
	return joined
}
