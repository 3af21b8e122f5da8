package openai

import (
	"context"
	"encoding/json"
	"testing"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
)

// testDecoder feeds a fixed sequence of raw chunk payloads to an
// ssestream.Stream, mirroring how the OpenAI SDK decodes server-sent events.
type testDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return nil }

func mustChunkJSON(t *testing.T, raw string) []byte {
	t.Helper()
	var chunk oai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
		t.Fatalf("unmarshal chunk: %v", err)
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return data
}

func TestRunStream_TextAndToolCall(t *testing.T) {
	events := []ssestream.Event{
		{Type: "", Data: mustChunkJSON(t, `{"choices":[{"index":0,"delta":{"content":"hello"}}]}`)},
		{Type: "", Data: mustChunkJSON(t, `{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"check_availability","arguments":""}}]}}]}`)},
		{Type: "", Data: mustChunkJSON(t, `{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"day\":\"mon\"}"}}]}}]}`)},
		{Type: "", Data: mustChunkJSON(t, `{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":12,"completion_tokens":5}}`)},
	}

	dec := &testDecoder{events: events}
	stream := ssestream.NewStream[oai.ChatCompletionChunk](dec, nil)

	out := make(chan llm.Event, 32)
	runStream(context.Background(), stream, out)

	var got []llm.Event
	for ev := range out {
		got = append(got, ev)
	}

	var sawStart, sawText, sawToolStart, sawToolDelta, sawToolStop, sawStop, sawUsage bool
	for _, ev := range got {
		switch ev.Kind {
		case llm.EventMessageStart:
			sawStart = true
		case llm.EventContentBlockStart:
			if ev.BlockKind == llm.BlockToolUse {
				sawToolStart = true
				if ev.ToolCallID != "call_1" || ev.ToolName != "check_availability" {
					t.Errorf("unexpected tool id/name: %q/%q", ev.ToolCallID, ev.ToolName)
				}
			}
		case llm.EventContentBlockDelta:
			if ev.BlockKind == llm.BlockText && ev.TextDelta == "hello" {
				sawText = true
			}
			if ev.BlockKind == llm.BlockToolUse && ev.PartialJSON != "" {
				sawToolDelta = true
			}
		case llm.EventContentBlockStop:
			if ev.BlockKind == llm.BlockToolUse {
				sawToolStop = true
			}
		case llm.EventMessageStop:
			sawStop = true
			if ev.FinishReason != "tool_calls" {
				t.Errorf("expected finish reason 'tool_calls', got %q", ev.FinishReason)
			}
		case llm.EventUsage:
			sawUsage = true
			if ev.Usage.InputTokens != 12 || ev.Usage.OutputTokens != 5 {
				t.Errorf("expected usage {12,5}, got %+v", ev.Usage)
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
	if !sawToolStop {
		t.Error("expected tool_use content block stop")
	}
	if !sawStop {
		t.Error("expected EventMessageStop")
	}
	if !sawUsage {
		t.Error("expected EventUsage")
	}
}
