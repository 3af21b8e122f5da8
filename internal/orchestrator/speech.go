package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/glyphoxa/internal/clockutil"
	"github.com/MrWong99/glyphoxa/internal/ingress"
)

// speakOneShot synthesizes text in a single call and writes it as one
// outbound media frame. Used for the greeting, re-ask, and farewell/apology
// phrases where the lower latency of a live session is not needed.
func (cs *callSession) speakOneShot(ctx context.Context, text string) {
	if text == "" {
		return
	}
	audio, err := cs.orch.cfg.TTS.Synthesize(ctx, text, cs.orch.cfg.Voice)
	if err != nil {
		slog.Warn("orchestrator: one-shot synthesis failed", "call_sid", cs.callSID, "err", err)
		return
	}
	cs.writeMediaFrame(ctx, audio)
}

// openLiveTTS opens a new streaming synthesis session and spawns a
// background goroutine (tracked by cs.wg) that forwards its audio to the
// telephony socket for as long as the session lives. Replacing the session
// (e.g. after a barge-in Close) is done by calling openLiveTTS again; the
// previous forwarding goroutine exits on its own once the old session's
// Audio channel closes.
func (cs *callSession) openLiveTTS(ctx context.Context) error {
	session, err := cs.orch.cfg.TTS.OpenSession(ctx, cs.orch.cfg.Voice)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	cs.ttsSession = session
	cs.speechCancel = func() { _ = session.Close() }
	cs.mu.Unlock()

	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		cs.forwardTTSAudio(session)
	}()
	return nil
}

// forwardTTSAudio drains session's Audio channel, writing each chunk as an
// outbound media frame until the channel closes (session Finish'd or
// Close'd).
func (cs *callSession) forwardTTSAudio(session interface{ Audio() <-chan []byte }) {
	for chunk := range session.Audio() {
		cs.writeMediaFrame(context.Background(), chunk)
	}
}

// writeMediaFrame base64-encodes payload and writes it as an outbound media
// event on the call's websocket.
func (cs *callSession) writeMediaFrame(ctx context.Context, payload []byte) {
	frame := ingress.NewOutboundMediaFrame(cs.streamSID, base64.StdEncoding.EncodeToString(payload))
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := cs.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("orchestrator: media frame write failed", "call_sid", cs.callSID, "err", err)
	}
}

// sendClear tells the telephony provider to drop buffered outbound audio,
// implementing the barge-in "clear" control message of spec.md §6.
func (cs *callSession) sendClear(ctx context.Context) {
	frame := ingress.NewOutboundClearFrame(cs.streamSID)
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := cs.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("orchestrator: clear frame write failed", "call_sid", cs.callSID, "err", err)
	}
}

// resetTimer stops old if non-nil and arms a fresh timer of duration d. A
// new timer is created rather than reusing Reset, since Reset's contract
// requires a stopped-and-drained timer and callers here cannot always
// guarantee the channel was drained.
func resetTimer(clock clockutil.Clock, old clockutil.Timer, d time.Duration) clockutil.Timer {
	if old != nil {
		old.Stop()
	}
	return clock.NewTimer(d)
}
