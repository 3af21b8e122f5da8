// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// GenerateRequests and to feed controlled event sequences without a live LLM
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Events: []llm.Event{
//	        {Kind: llm.EventMessageStart},
//	        {Kind: llm.EventContentBlockStart, BlockKind: llm.BlockText},
//	        {Kind: llm.EventContentBlockDelta, BlockKind: llm.BlockText, TextDelta: "Hello!"},
//	        {Kind: llm.EventContentBlockStop},
//	        {Kind: llm.EventMessageStop, FinishReason: "end_turn"},
//	    },
//	}
//	events, _ := p.GenerateStream(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

// GenerateStreamCall records a single invocation of GenerateStream.
type GenerateStreamCall struct {
	// Ctx is the context passed to GenerateStream.
	Ctx context.Context
	// Req is the GenerateRequest passed to GenerateStream.
	Req llm.GenerateRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and
// nil errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Events is the sequence of Event values emitted on the channel returned
	// by GenerateStream. All events are sent before the channel is closed.
	Events []llm.Event

	// GenerateStreamErr, if non-nil, is returned as the error from
	// GenerateStream instead of starting a channel.
	GenerateStreamErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// --- Call records (read after test) ---

	// GenerateStreamCalls records every invocation of GenerateStream in order.
	GenerateStreamCalls []GenerateStreamCall

	// CapabilitiesCallCount is the number of times Capabilities was called.
	CapabilitiesCallCount int
}

var _ llm.Provider = (*Provider)(nil)

// GenerateStream records the call and returns a channel that emits Events.
// If GenerateStreamErr is set, it returns nil, GenerateStreamErr without
// opening a channel.
func (p *Provider) GenerateStream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Event, error) {
	p.mu.Lock()
	p.GenerateStreamCalls = append(p.GenerateStreamCalls, GenerateStreamCall{Ctx: ctx, Req: req})
	if p.GenerateStreamErr != nil {
		err := p.GenerateStreamErr
		p.mu.Unlock()
		return nil, err
	}
	events := make([]llm.Event, len(p.Events))
	copy(events, p.Events)
	p.mu.Unlock()

	ch := make(chan llm.Event, len(events))
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return ch, nil
}

// Capabilities records the call and returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ModelCapabilities
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateStreamCalls = nil
	p.CapabilitiesCallCount = 0
}
