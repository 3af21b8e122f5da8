// Package elevenlabs provides an ElevenLabs-backed TTS provider. One-shot
// synthesis uses the REST endpoint; live sessions use the streaming
// WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/MrWong99/glyphoxa/pkg/provider/tts"
	"github.com/MrWong99/glyphoxa/pkg/types"
	"github.com/coder/websocket"
)

const (
	synthesizeEndpointFmt = "https://api.elevenlabs.io/v1/text-to-speech/%s?output_format=%s"
	wsEndpointFmt         = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	voicesEndpoint        = "https://api.elevenlabs.io/v1/voices"
	defaultModel          = "eleven_flash_v2_5"
	defaultOutputFormat   = "ulaw_8000"

	// sessionQueueDepth bounds how much text a caller may queue on a Session
	// before the underlying WebSocket finishes dialing.
	sessionQueueDepth = 64
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format. Defaults to "ulaw_8000" to
// match the telephony media stream's native encoding.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFormat,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- Synthesize (one-shot) ----

// Synthesize renders text to a complete μ-law audio buffer via ElevenLabs'
// non-streaming REST endpoint.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	body, err := json.Marshal(textMessage{
		Text:          text,
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal synthesize request: %w", err)
	}

	reqURL := fmt.Sprintf(synthesizeEndpointFmt, voice.ID, p.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "audio/basic")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: synthesize returned status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read synthesize response: %w", err)
	}
	return audio, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// ---- OpenSession (live) ----

// OpenSession dials the ElevenLabs streaming WebSocket in the background and
// returns immediately. Send queues text fragments on a bounded channel so
// that callers never block on (or need to know about) the dial completing.
func (p *Provider) OpenSession(ctx context.Context, voice types.VoiceProfile) (tts.Session, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	s := &session{
		textCh:  make(chan string, sessionQueueDepth),
		audioCh: make(chan []byte, 256),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx, p, voice)
	return s, nil
}

type session struct {
	textCh  chan string
	audioCh chan []byte

	done     chan struct{}
	closeErr error
	wg       sync.WaitGroup
	once     sync.Once
}

var _ tts.Session = (*session)(nil)

func (s *session) Send(text string) error {
	select {
	case <-s.done:
		return errors.New("elevenlabs: session is closed")
	default:
	}
	select {
	case s.textCh <- text:
		return nil
	case <-s.done:
		return errors.New("elevenlabs: session is closed")
	}
}

func (s *session) Finish() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.textCh)
	s.wg.Wait()
	s.once.Do(func() {
		close(s.done)
	})
	return s.closeErr
}

func (s *session) Audio() <-chan []byte { return s.audioCh }

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

// run dials ElevenLabs, authenticates, and pumps text to / audio from the
// connection until the text channel is closed (Finish) or done fires (Close).
func (s *session) run(ctx context.Context, p *Provider, voice types.VoiceProfile) {
	defer s.wg.Done()
	defer close(s.audioCh)

	wsURL := fmt.Sprintf(wsEndpointFmt, voice.ID, p.model, p.outputFormat)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		s.closeErr = fmt.Errorf("elevenlabs: dial: %w", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "session closed")

	boi := boiMessage{
		Text:          " ",
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		XiAPIKey:      p.apiKey,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		s.closeErr = fmt.Errorf("elevenlabs: send BOI: %w", err)
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var resp audioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Audio == "" {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				continue
			}
			select {
			case s.audioCh <- audio:
			case <-s.done:
				return
			}
		}
	}()

	for {
		select {
		case text, ok := <-s.textCh:
			if !ok {
				flush, _ := json.Marshal(textMessage{Text: ""})
				_ = conn.Write(ctx, websocket.MessageText, flush)
				<-readDone
				return
			}
			if text == "" {
				continue
			}
			payload, _ := json.Marshal(textMessage{Text: text})
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toVoiceProfiles(vr), nil
}

func toVoiceProfiles(vr voicesResponse) []types.VoiceProfile {
	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values. Exercised
// directly by tests to verify mapping without opening a real connection.
func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return toVoiceProfiles(vr), nil
}
