// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram)
// and exposes a uniform streaming interface over 8kHz mono G.711 μ-law
// telephony audio. The central abstraction is SessionHandle: once opened, a
// session accepts raw audio frames and emits a single stream of
// [types.Transcript] events distinguishing partial, final, and endpointing
// signals via [types.TranscriptKind].
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/glyphoxa/pkg/types"
)

// ErrNotSupported is returned by optional SessionHandle operations that a
// given provider does not implement (e.g., mid-session keyword updates).
var ErrNotSupported = errors.New("stt: operation not supported by this provider")

// StreamConfig describes the audio format and recognition hints for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 8000 for telephony audio.
	SampleRate int

	// Channels is the number of audio channels. Always 1 (mono).
	Channels int

	// Encoding identifies the audio codec of frames passed to SendAudio.
	// "mulaw" for telephony audio.
	Encoding string

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider use its default.
	Language string

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for tenant-specific proper nouns.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of encoded audio bytes to the provider for
	// transcription. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Events returns a read-only channel that emits [types.Transcript]
	// values as the provider produces them — partials, finals, and
	// endpointing signals are all delivered on this single channel so that
	// callers observe them in the provider's true arrival order. The
	// channel is closed when the session ends.
	Events() <-chan types.Transcript

	// SetKeywords replaces the active keyword boost list without restarting
	// the session. Providers that do not support mid-session keyword
	// updates return [ErrNotSupported].
	SetKeywords(keywords []types.KeywordBoost) error

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. After Close returns, the Events channel
	// will be closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per active call).
type Provider interface {
	// StartStream opens a new streaming transcription session with the
	// given audio format and recognition configuration. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session. The
	// caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
