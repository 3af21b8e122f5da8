// Package mock provides test doubles for the tts.Provider interface.
//
// Use Provider to feed controlled audio to consumers and to verify that the
// correct VoiceProfile and text are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeResult: []byte("audio"),
//	    ListVoicesResult: []types.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	audio, _ := p.Synthesize(ctx, "hello", voice)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/glyphoxa/pkg/provider/tts"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice types.VoiceProfile
}

// OpenSessionCall records a single invocation of OpenSession.
type OpenSessionCall struct {
	Ctx   context.Context
	Voice types.VoiceProfile
}

// ListVoicesCall records a single invocation of ListVoices.
type ListVoicesCall struct {
	Ctx context.Context
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeResult is returned as the audio buffer from Synthesize.
	SynthesizeResult []byte
	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// Session is the Session returned by OpenSession. If nil, OpenSession
	// returns a new default Session.
	Session tts.Session
	// OpenSessionErr, if non-nil, is returned as the error from OpenSession.
	OpenSessionErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile
	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	SynthesizeCalls  []SynthesizeCall
	OpenSessionCalls []OpenSessionCall
	ListVoicesCalls  []ListVoicesCall
}

// Synthesize records the call and returns SynthesizeResult, SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	return p.SynthesizeResult, p.SynthesizeErr
}

// OpenSession records the call and returns Session, OpenSessionErr.
func (p *Provider) OpenSession(ctx context.Context, voice types.VoiceProfile) (tts.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenSessionCalls = append(p.OpenSessionCalls, OpenSessionCall{Ctx: ctx, Voice: voice})
	if p.OpenSessionErr != nil {
		return nil, p.OpenSessionErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{AudioCh: make(chan []byte, 16)}, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls = append(p.ListVoicesCalls, ListVoicesCall{Ctx: ctx})
	return p.ListVoicesResult, p.ListVoicesErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.OpenSessionCalls = nil
	p.ListVoicesCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Session is a mock implementation of tts.Session.
//
// Callers should pre-populate AudioCh with the audio chunks they want the
// consumer to receive and close it once Finish/Close has been recorded, or
// rely on the default behaviour of closing it automatically on Finish.
type Session struct {
	mu sync.Mutex

	// AudioCh is the channel returned by Audio(). Callers own this channel.
	AudioCh chan []byte

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error
	// FinishErr, if non-nil, is returned by Finish.
	FinishErr error
	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SentText records every string passed to Send, in order.
	SentText []string
	// FinishCallCount is the number of times Finish was called.
	FinishCallCount int
	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	finished bool
	closed   bool
}

var _ tts.Session = (*Session)(nil)

// Send records the call and returns SendErr.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SentText = append(s.SentText, text)
	return s.SendErr
}

// Finish records the call, closes AudioCh (if not already closed), and
// returns FinishErr.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishCallCount++
	if !s.finished && !s.closed {
		s.finished = true
		close(s.AudioCh)
	}
	return s.FinishErr
}

// Audio returns AudioCh.
func (s *Session) Audio() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AudioCh
}

// Close records the call, closes AudioCh (if not already closed), and
// returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.finished && !s.closed {
		s.closed = true
		close(s.AudioCh)
	}
	return s.CloseErr
}
