package openai

import (
	"context"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
)

// toolBlock tracks a tool_use-equivalent block assembled from OpenAI's
// per-index tool_call deltas.
type toolBlock struct {
	index   int
	id      string
	name    string
	started bool
}

// runStream drains stream, synthesising the discriminated llm.Event sequence
// from OpenAI's flat chat-completion-chunk deltas, until the stream ends or
// ctx is cancelled. It closes events before returning.
func runStream(ctx context.Context, stream *ssestream.Stream[oai.ChatCompletionChunk], events chan<- llm.Event) {
	defer close(events)
	defer stream.Close()

	var (
		messageStarted bool
		textStarted    bool
		finishReason   string
		toolBlocks     = map[int]*toolBlock{}
	)

	emit := func(ev llm.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk := stream.Current()

		if !messageStarted {
			messageStarted = true
			if !emit(llm.Event{Kind: llm.EventMessageStart}) {
				return
			}
		}

		if chunk.Usage.PromptTokens != 0 || chunk.Usage.CompletionTokens != 0 {
			if !emit(llm.Event{
				Kind: llm.EventUsage,
				Usage: llm.Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				},
			}) {
				return
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if !textStarted {
				textStarted = true
				if !emit(llm.Event{Kind: llm.EventContentBlockStart, BlockKind: llm.BlockText, BlockIndex: textBlockIndex}) {
					return
				}
			}
			if !emit(llm.Event{
				Kind:       llm.EventContentBlockDelta,
				BlockKind:  llm.BlockText,
				BlockIndex: textBlockIndex,
				TextDelta:  delta.Content,
			}) {
				return
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := int(tc.Index) + 1 // index 0 is reserved for text
			tb, ok := toolBlocks[idx]
			if !ok {
				tb = &toolBlock{index: idx}
				toolBlocks[idx] = tb
			}
			if tc.ID != "" {
				tb.id = tc.ID
			}
			if tc.Function.Name != "" {
				tb.name = tc.Function.Name
			}
			if !tb.started && tb.id != "" && tb.name != "" {
				tb.started = true
				if !emit(llm.Event{
					Kind:       llm.EventContentBlockStart,
					BlockKind:  llm.BlockToolUse,
					BlockIndex: idx,
					ToolCallID: tb.id,
					ToolName:   tb.name,
				}) {
					return
				}
			}
			if tb.started && tc.Function.Arguments != "" {
				if !emit(llm.Event{
					Kind:        llm.EventContentBlockDelta,
					BlockKind:   llm.BlockToolUse,
					BlockIndex:  idx,
					ToolCallID:  tb.id,
					ToolName:    tb.name,
					PartialJSON: tc.Function.Arguments,
				}) {
					return
				}
			}
		}

		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
			if textStarted {
				if !emit(llm.Event{Kind: llm.EventContentBlockStop, BlockKind: llm.BlockText, BlockIndex: textBlockIndex}) {
					return
				}
			}
			for _, tb := range toolBlocks {
				if !tb.started {
					continue
				}
				if !emit(llm.Event{
					Kind:       llm.EventContentBlockStop,
					BlockKind:  llm.BlockToolUse,
					BlockIndex: tb.index,
					ToolCallID: tb.id,
					ToolName:   tb.name,
				}) {
					return
				}
			}
			if !emit(llm.Event{Kind: llm.EventMessageStop, FinishReason: finishReason}) {
				return
			}
		}
	}
}
