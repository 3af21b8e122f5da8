// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents two modes. Synthesize is one-shot: it renders a complete text
// string to 8kHz μ-law audio in a single call, used for short canned prompts.
// OpenSession opens a live streaming session that accepts incremental text
// fragments (as they arrive from the LLM) and emits raw audio frames as they
// are synthesised — enabling low-latency pipelining between LLM token
// generation and audio playback.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/glyphoxa/pkg/types"
)

// Session represents a live, incremental speech-synthesis session.
//
// Send may be called before the provider's underlying connection has
// finished opening; implementations must queue text sent before open
// completes and flush it once the connection is live, so that callers never
// have to coordinate with the provider's connection lifecycle themselves.
//
// Implementations must be safe for concurrent use.
type Session interface {
	// Send queues a text fragment for synthesis. Fragments are synthesised
	// in the order they are sent. Calling Send after Finish or Close
	// returns an error.
	Send(text string) error

	// Finish signals that no more text will be sent for this utterance and
	// requests the provider flush any buffered audio. The Audio channel is
	// closed once the provider has emitted everything it will for this
	// session.
	Finish() error

	// Audio returns the channel on which raw audio frames are emitted as
	// they are synthesised. The channel is closed when the session ends
	// (after Finish completes or Close is called).
	Audio() <-chan []byte

	// Close terminates the session immediately, discarding any buffered
	// text that has not yet been synthesised. Used to implement caller
	// barge-in: cutting off assistant speech the instant the caller starts
	// talking. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may run
// in parallel (one per active call).
type Provider interface {
	// Synthesize renders text to a complete audio buffer in a single call,
	// used for short fixed prompts where the lower latency of a live
	// session is not needed.
	//
	// voice specifies the voice profile to use. Providers should return an
	// error if the requested voice is not available.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error)

	// OpenSession opens a live streaming synthesis session for voice. The
	// returned Session is ready to accept Send calls immediately, even
	// while the provider's underlying connection is still being
	// established.
	OpenSession(ctx context.Context, voice types.VoiceProfile) (Session, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
