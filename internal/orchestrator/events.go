package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/glyphoxa/internal/ingress"
	"github.com/MrWong99/glyphoxa/pkg/provider/stt"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

// complianceNotice is spoken ahead of the tenant greeting so every call opens
// with the required AI-disclosure per spec.md §4.12.3.
const complianceNotice = "This call may be answered by an automated assistant."

// run drives cs from GREETING through to TERMINATED. It blocks until the
// call ends, spawning the four cooperating tasks spec.md §5 describes
// (media-in, STT-out, the LLM/tool/TTS processing loop, and timers) under a
// single errgroup, mirroring internal/engine/cascade's wg-tracked background
// goroutines generalised to a full task group.
func (cs *callSession) run(ctx context.Context) {
	cs.startedAt = cs.clock.Now().UTC()
	cs.transition(StateGreeting)
	cs.insertInitialCallLog()

	greeting := cs.tenant.Config.AI.GreetingText
	if greeting == "" {
		greeting = "Thanks for calling, how can I help you today?"
	}
	cs.speakOneShot(ctx, complianceNotice+" "+greeting)

	if err := cs.openLiveTTS(ctx); err != nil {
		slog.Warn("orchestrator: opening live TTS session failed", "call_sid", cs.callSID, "err", err)
	}

	sttSession, err := cs.orch.cfg.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: 8000,
		Channels:   1,
		Encoding:   "mulaw",
	})
	if err != nil {
		slog.Error("orchestrator: starting STT stream failed", "call_sid", cs.callSID, "err", err)
		cs.triggerFallback(ctx, fallbackInternalClose, fmt.Errorf("orchestrator: stt stream: %w", err))
		cs.teardown(ctx)
		return
	}

	cs.mu.Lock()
	cs.inactivityTimer = resetTimer(cs.clock, nil, cs.orch.currentTunables().inactivityTimeout)
	cs.hardTimer = resetTimer(cs.clock, nil, cs.orch.cfg.MaxCallDuration)
	cs.mu.Unlock()

	cs.transition(StateConversation)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { cs.mediaInLoop(egCtx, sttSession); return nil })
	eg.Go(func() error { cs.sttEventLoop(egCtx, sttSession); return nil })
	eg.Go(func() error { cs.processingLoop(egCtx); return nil })
	eg.Go(func() error { cs.timerLoop(egCtx); return nil })

	<-cs.doneCh
	// Unblock mediaInLoop's in-flight conn.Read immediately; egCtx alone
	// would not cancel until the errgroup itself sees an error, and none of
	// the four tasks ever return one.
	_ = cs.conn.CloseNow()
	_ = eg.Wait()

	_ = sttSession.Close()
	cs.teardown(ctx)
}

// teardown transitions the call to TERMINATED, waits for background audio
// forwarding goroutines to drain, finalizes the Call Session row, and closes
// the socket.
func (cs *callSession) teardown(ctx context.Context) {
	cs.transition(StateTerminated)

	cs.mu.Lock()
	ttsSession := cs.ttsSession
	cs.mu.Unlock()
	if ttsSession != nil {
		_ = ttsSession.Close()
	}

	cs.wg.Wait()
	cs.finalizeCallLog()

	_ = cs.conn.Close(websocket.StatusNormalClosure, "call ended")
}

// mediaInLoop reads inbound frames from the telephony socket, forwarding
// audio to the STT session and watching for the "stop" event. It signals
// doneCh on socket close or a "stop" frame.
func (cs *callSession) mediaInLoop(ctx context.Context, sttSession stt.SessionHandle) {
	defer cs.signalDone()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cs.doneCh:
			return
		default:
		}

		_, data, err := cs.conn.Read(ctx)
		if err != nil {
			slog.Debug("orchestrator: media socket read ended", "call_sid", cs.callSID, "err", err)
			return
		}

		var evt ingress.StreamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		switch evt.Event {
		case "media":
			if evt.Media == nil {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(evt.Media.Payload)
			if err != nil {
				continue
			}
			if err := sttSession.SendAudio(audio); err != nil {
				slog.Debug("orchestrator: forwarding audio to stt failed", "call_sid", cs.callSID, "err", err)
			}

			cs.mu.Lock()
			cs.packetCount++
			shouldRefresh := cs.packetCount%refreshEveryNFrames == 0
			cs.mu.Unlock()
			if shouldRefresh && cs.orch.cfg.Coordinator != nil {
				if err := cs.orch.cfg.Coordinator.RefreshCall(ctx, cs.callSID, cs.tenant.ID); err != nil {
					slog.Debug("orchestrator: admission refresh failed", "call_sid", cs.callSID, "err", err)
				}
			}
		case "stop":
			return
		}
	}
}

// sttEventLoop consumes transcription events and drives barge-in detection
// and final-transcript dispatch.
func (cs *callSession) sttEventLoop(ctx context.Context, sttSession stt.SessionHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cs.doneCh:
			return
		case tr, ok := <-sttSession.Events():
			if !ok {
				return
			}
			switch tr.Kind {
			case types.TranscriptFinal:
				cs.handleFinal(ctx, tr)
			case types.TranscriptPartial:
				if wordCount(tr.Text) >= bargeInMinWords || tr.Confidence >= bargeInMinConfidence {
					cs.handleBargeIn(ctx)
				}
			case types.TranscriptSpeechStarted:
				cs.handleBargeIn(ctx)
			case types.TranscriptUtteranceEnd:
				// Fallback turn-taking signal; a Final normally arrives first.
			}
		}
	}
}

// handleFinal resets the inactivity timer and either re-asks on low
// confidence or enqueues the transcript as the next interaction, per
// spec.md §4.12.3.
func (cs *callSession) handleFinal(ctx context.Context, tr types.Transcript) {
	cs.mu.Lock()
	cs.cancelPending = true
	llmCancel := cs.llmCancel
	speechCancel := cs.speechCancel
	cs.inactivityTimer = resetTimer(cs.clock, cs.inactivityTimer, cs.orch.currentTunables().inactivityTimeout)
	cs.mu.Unlock()

	if llmCancel != nil {
		llmCancel()
	}
	if speechCancel != nil {
		speechCancel()
	}
	select {
	case cs.timerResetCh <- struct{}{}:
	default:
	}

	cs.transition(StateConversation)

	threshold := cs.orch.currentTunables().asrConfidenceThreshold
	if tr.Text == "" {
		return
	}
	if tr.Confidence > 0 && tr.Confidence < threshold {
		cs.speakOneShot(ctx, "Sorry, could you say that again?")
		return
	}

	select {
	case cs.interactionCh <- interactionEvent{userText: tr.Text}:
	case <-ctx.Done():
	case <-cs.doneCh:
	}
}

// handleBargeIn aborts any live TTS speech and in-flight LLM stream so the
// caller can be heard immediately, per spec.md §4.12.3/§5.
func (cs *callSession) handleBargeIn(ctx context.Context) {
	cs.mu.Lock()
	wasSpeaking := cs.aiSpeaking
	llmCancel := cs.llmCancel
	speechCancel := cs.speechCancel
	cs.aiSpeaking = false
	cs.cancelPending = true
	cs.mu.Unlock()

	if !wasSpeaking && llmCancel == nil && speechCancel == nil {
		return
	}

	cs.sendClear(ctx)
	if err := cs.openLiveTTS(ctx); err != nil {
		slog.Debug("orchestrator: reopening live TTS after barge-in failed", "call_sid", cs.callSID, "err", err)
	}
	if llmCancel != nil {
		llmCancel()
	}
	if speechCancel != nil {
		speechCancel()
	}
}

// timerLoop ends the call when the inactivity or hard-duration timer fires.
// By the time this runs, run has already armed both timers. Each time
// handleFinal rearms the inactivity timer it signals timerResetCh so this
// loop re-reads the (new) timer reference instead of waiting on a Stop'd one.
func (cs *callSession) timerLoop(ctx context.Context) {
	for {
		cs.mu.Lock()
		inactivity := cs.inactivityTimer
		hard := cs.hardTimer
		cs.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-cs.doneCh:
			return
		case <-cs.timerResetCh:
			continue
		case <-inactivity.C():
			cs.speakOneShot(ctx, "It looks like we got disconnected. Goodbye for now.")
			cs.closeAfterGrace(ctx)
			return
		case <-hard.C():
			cs.speakOneShot(ctx, "I'm sorry, but I need to end this call now. Please call back if you need anything else.")
			cs.closeAfterGrace(ctx)
			return
		}
	}
}

// closeAfterGrace waits cfg.CloseGrace before signaling the call done, giving
// the farewell/apology phrase time to finish playing out.
func (cs *callSession) closeAfterGrace(ctx context.Context) {
	grace := cs.clock.NewTimer(cs.orch.cfg.CloseGrace)
	select {
	case <-grace.C():
	case <-ctx.Done():
	}
	cs.signalDone()
}

func wordCount(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if !isSpace && !inWord {
			n++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return n
}
