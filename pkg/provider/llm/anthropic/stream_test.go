package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
)

// testDecoder feeds a fixed sequence of events to an ssestream.Stream.
type testDecoder struct {
	events []ssestream.Event
	i      int
	err    error
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.err != nil {
		return false
	}
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return d.err }

func mustUnion(t *testing.T, raw string) sdk.MessageStreamEventUnion {
	t.Helper()
	var ev sdk.MessageStreamEventUnion
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestRunStream_TextAndToolCall(t *testing.T) {
	start := mustUnion(t, `{"type":"message_start","message":{"usage":{"input_tokens":42}}}`)
	textDelta := mustUnion(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello"}}`)
	toolStart := mustUnion(t, `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"call_1","name":"check_availability"}}`)
	toolDelta := mustUnion(t, `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"day\":\"mon\"}"}}`)
	toolStop := mustUnion(t, `{"type":"content_block_stop","index":1}`)
	msgDelta := mustUnion(t, `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":7}}`)
	stop := mustUnion(t, `{"type":"message_stop"}`)

	events := []ssestream.Event{
		{Type: "message_start", Data: mustJSON(t, start)},
		{Type: "content_block_delta", Data: mustJSON(t, textDelta)},
		{Type: "content_block_start", Data: mustJSON(t, toolStart)},
		{Type: "content_block_delta", Data: mustJSON(t, toolDelta)},
		{Type: "content_block_stop", Data: mustJSON(t, toolStop)},
		{Type: "message_delta", Data: mustJSON(t, msgDelta)},
		{Type: "message_stop", Data: mustJSON(t, stop)},
	}

	dec := &testDecoder{events: events}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)

	out := make(chan llm.Event, 32)
	runStream(context.Background(), stream, out)

	var got []llm.Event
	for ev := range out {
		got = append(got, ev)
	}

	var sawStart, sawText, sawToolStart, sawToolDelta, sawStop, sawUsage bool
	for _, ev := range got {
		switch ev.Kind {
		case llm.EventMessageStart:
			sawStart = true
		case llm.EventContentBlockDelta:
			if ev.BlockKind == llm.BlockText && ev.TextDelta == "hello" {
				sawText = true
			}
			if ev.BlockKind == llm.BlockToolUse && ev.PartialJSON != "" {
				sawToolDelta = true
				if ev.ToolCallID != "call_1" || ev.ToolName != "check_availability" {
					t.Errorf("expected tool call id/name to be carried on delta, got %q/%q", ev.ToolCallID, ev.ToolName)
				}
			}
		case llm.EventContentBlockStart:
			if ev.BlockKind == llm.BlockToolUse {
				sawToolStart = true
			}
		case llm.EventMessageStop:
			sawStop = true
			if ev.FinishReason != "tool_use" {
				t.Errorf("expected finish reason 'tool_use', got %q", ev.FinishReason)
			}
		case llm.EventUsage:
			sawUsage = true
			if ev.Usage.InputTokens != 42 || ev.Usage.OutputTokens != 7 {
				t.Errorf("expected usage {42,7}, got %+v", ev.Usage)
			}
		}
	}

	if !sawStart {
		t.Error("expected EventMessageStart")
	}
	if !sawText {
		t.Error("expected text delta 'hello'")
	}
	if !sawToolStart {
		t.Error("expected tool_use content block start")
	}
	if !sawToolDelta {
		t.Error("expected tool_use partial JSON delta")
	}
	if !sawStop {
		t.Error("expected EventMessageStop")
	}
	if !sawUsage {
		t.Error("expected EventUsage")
	}
}

func TestEventProcessor_ToolUseMissingID(t *testing.T) {
	proc := newEventProcessor()
	ev := mustUnion(t, `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"","name":"check_availability"}}`)
	if _, err := proc.handle(ev); err == nil {
		t.Error("expected error for tool_use block missing id")
	}
}

func TestEventProcessor_InputJSONDeltaUnknownBlock(t *testing.T) {
	proc := newEventProcessor()
	ev := mustUnion(t, `{"type":"content_block_delta","index":5,"delta":{"type":"input_json_delta","partial_json":"{}"}}`)
	if _, err := proc.handle(ev); err == nil {
		t.Error("expected error for input_json_delta on unknown block index")
	}
}

func TestFinalToolInput(t *testing.T) {
	if got := finalToolInput(nil); got != "{}" {
		t.Errorf("expected '{}' for nil fragments, got %q", got)
	}
	if got := finalToolInput([]string{`{"a":`, `1}`}); got != `{"a":1}` {
		t.Errorf("expected joined fragments, got %q", got)
	}
}
