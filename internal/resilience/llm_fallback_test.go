package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	llmmock "github.com/MrWong99/glyphoxa/pkg/provider/llm/mock"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

func textEvents(text string) []llm.Event {
	return []llm.Event{
		{Kind: llm.EventMessageStart},
		{Kind: llm.EventContentBlockStart, BlockKind: llm.BlockText},
		{Kind: llm.EventContentBlockDelta, BlockKind: llm.BlockText, TextDelta: text},
		{Kind: llm.EventContentBlockStop, BlockKind: llm.BlockText},
		{Kind: llm.EventMessageStop, FinishReason: "end_turn"},
	}
}

func drainEvents(ch <-chan llm.Event) []llm.Event {
	var out []llm.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestLLMFallback_GenerateStream_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{Events: textEvents("hello from primary")}
	secondary := &llmmock.Provider{Events: textEvents("hello from secondary")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.GenerateStream(context.Background(), llm.GenerateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := drainEvents(ch)
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	if len(primary.GenerateStreamCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.GenerateStreamCalls))
	}
	if len(secondary.GenerateStreamCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.GenerateStreamCalls))
	}
}

func TestLLMFallback_GenerateStream_Failover(t *testing.T) {
	primary := &llmmock.Provider{GenerateStreamErr: errors.New("primary down")}
	secondary := &llmmock.Provider{Events: textEvents("hello from secondary")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.GenerateStream(context.Background(), llm.GenerateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := drainEvents(ch)
	var sawSecondaryText bool
	for _, ev := range events {
		if ev.Kind == llm.EventContentBlockDelta && ev.TextDelta == "hello from secondary" {
			sawSecondaryText = true
		}
	}
	if !sawSecondaryText {
		t.Fatal("expected secondary's text delta in event stream")
	}
}

func TestLLMFallback_GenerateStream_AllFail(t *testing.T) {
	primary := &llmmock.Provider{GenerateStreamErr: errors.New("primary down")}
	secondary := &llmmock.Provider{GenerateStreamErr: errors.New("secondary down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.GenerateStream(context.Background(), llm.GenerateRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	primary := &llmmock.Provider{
		ModelCapabilities: types.ModelCapabilities{
			ContextWindow:       128000,
			SupportsToolCalling: true,
		},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	caps := fb.Capabilities()
	if caps.ContextWindow != 128000 {
		t.Fatalf("ContextWindow = %d, want 128000", caps.ContextWindow)
	}
	if !caps.SupportsToolCalling {
		t.Fatal("SupportsToolCalling should be true")
	}
}
