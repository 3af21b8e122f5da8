package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/glyphoxa/internal/apperr"
	"github.com/MrWong99/glyphoxa/internal/toolexec"
	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

const (
	toolBookAppointment = "book_appointment"
	toolTakeVoicemail   = "take_voicemail"

	llmMaxRetries  = 2
	llmTemperature = 0.1
	llmMaxTokens   = 500
)

// processingLoop is the single-writer serialization loop spec.md §4.12.4
// requires: it consumes interactionEvents one at a time, so at most one LLM
// stream is ever in flight for this call.
func (cs *callSession) processingLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cs.doneCh:
			return
		case evt := <-cs.interactionCh:
			cs.runTurn(ctx, evt.userText)
		}
	}
}

// runTurn appends the caller's utterance to history and drives the
// turn-and-tool-chain loop until the model stops asking for tools, per
// spec.md §4.12.5.
func (cs *callSession) runTurn(ctx context.Context, userText string) {
	cs.appendHistory(types.Message{Role: "user", Content: userText})
	cs.persistTurn("user", userText)

	for {
		assistantMsg, toolCall, aborted, err := cs.generateRound(ctx)
		if aborted {
			// A barge-in or a new final transcript cancelled this round
			// intentionally; the caller's next utterance (already enqueued)
			// will start a fresh turn, so there is nothing to fall back on.
			return
		}
		if err != nil {
			if apperr.Is(err, apperr.KindLLMTransient) {
				cs.triggerFallback(ctx, fallbackSoftReask, err)
				return
			}
			cs.triggerFallback(ctx, fallbackSMSHandoff, err)
			return
		}

		// Commit the assistant message (text plus any tool_use block) to
		// history BEFORE executing the tool — providers require a tool
		// result to immediately follow its tool_use in history.
		cs.appendHistory(assistantMsg)
		if assistantMsg.Content != "" {
			cs.persistTurn("assistant", assistantMsg.Content)
		}

		if toolCall == nil {
			return
		}

		cs.transition(StateToolWait)
		cs.mu.Lock()
		if cs.detectedIntent == "" {
			cs.detectedIntent = toolCall.Name
		}
		cs.mu.Unlock()
		result, execErr := cs.orch.cfg.Tools.ExecuteTool(ctx, cs.tenant.ID, toolCall.Name, toolCall.Arguments)
		if execErr != nil {
			slog.Warn("orchestrator: tool execution failed", "call_sid", cs.callSID, "tool", toolCall.Name, "err", execErr)
			cs.appendHistory(types.Message{Role: "tool", Content: "Error: " + execErr.Error(), ToolCallID: toolCall.ID})
			cs.transition(StateConversation)
			continue
		}

		slog.Info("[TOOL RESULT]", "tool", toolCall.Name, "result", result.Content)
		cs.appendHistory(types.Message{Role: "tool", Content: result.Content, ToolCallID: toolCall.ID})

		switch toolCall.Name {
		case toolBookAppointment:
			if strings.Contains(result.Content, "booked successfully") {
				cs.mu.Lock()
				cs.outcome = "booked"
				cs.mu.Unlock()
				if m := cs.orch.cfg.Metrics; m != nil {
					m.BookingSuccess.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", cs.tenant.ID)))
				}
				cs.transition(StateConfirmation)
			} else {
				if m := cs.orch.cfg.Metrics; m != nil {
					m.BookingFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant_id", cs.tenant.ID)))
				}
				cs.transition(StateConversation)
			}
		case toolTakeVoicemail:
			if strings.Contains(result.Content, toolexec.VoicemailSentinel) {
				cs.mu.Lock()
				cs.outcome = "voicemail"
				cs.mu.Unlock()
				cs.signalDone()
				return
			}
			cs.transition(StateConversation)
		default:
			cs.transition(StateConversation)
		}
	}
}

// appendHistory appends msg to history under lock, then prunes, per
// spec.md §4.12.6.
func (cs *callSession) appendHistory(msg types.Message) {
	cs.mu.Lock()
	cs.history = append(cs.history, msg)
	cs.history = pruneHistory(cs.history, cs.orch.cfg.MaxHistory, cs.orch.cfg.KeepRecent)
	cs.turnCounter++
	cs.mu.Unlock()
}

// generateRound runs one LLM streaming round against the current history,
// forwarding text to live TTS as it arrives and assembling any requested
// tool call, applying the two-retry policy spec.md §4.12.8 calls for on LLM
// errors.
func (cs *callSession) generateRound(ctx context.Context) (msg types.Message, toolCall *types.ToolCall, aborted bool, err error) {
	cs.mu.Lock()
	history := make([]types.Message, len(cs.history))
	copy(history, cs.history)
	cs.mu.Unlock()

	req := llm.GenerateRequest{
		History:      history,
		Tools:        toToolDefinitions(cs.orch.cfg.Tools.AvailableTools()),
		SystemPrompt: cs.buildSystemPrompt(),
		Temperature:  llmTemperature,
		MaxTokens:    llmMaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= llmMaxRetries; attempt++ {
		m, tc, aborted, streamErr := cs.streamOnce(ctx, req)
		if aborted {
			return types.Message{}, nil, true, nil
		}
		if streamErr == nil {
			return m, tc, false, nil
		}
		lastErr = streamErr
		if !apperr.Is(streamErr, apperr.KindLLMTransient) {
			return types.Message{}, nil, false, streamErr
		}
		slog.Warn("orchestrator: llm generation failed, retrying", "call_sid", cs.callSID, "attempt", attempt, "err", streamErr)
	}
	return types.Message{}, nil, false, lastErr
}

// streamOnce runs a single LLM stream to completion, consuming events and
// forwarding text deltas to live TTS.
func (cs *callSession) streamOnce(ctx context.Context, req llm.GenerateRequest) (msg types.Message, toolCall *types.ToolCall, aborted bool, err error) {
	turnCtx, cancel := context.WithCancel(ctx)
	cs.mu.Lock()
	cs.llmCancel = cancel
	cs.cancelPending = false
	cs.mu.Unlock()
	defer func() {
		cancel()
		cs.mu.Lock()
		cs.llmCancel = nil
		cs.mu.Unlock()
	}()

	events, genErr := cs.orch.cfg.LLM.GenerateStream(turnCtx, req)
	if genErr != nil {
		return types.Message{}, nil, false, apperr.Wrap(apperr.KindOf(genErr), genErr, "orchestrator: llm generate stream")
	}

	var (
		text        strings.Builder
		speechBuf   strings.Builder
		toolCallID  string
		toolName    string
		toolArgsBuf strings.Builder
		haveTool    bool
	)

	for evt := range events {
		switch evt.Kind {
		case llm.EventContentBlockStart:
			if evt.BlockKind == llm.BlockToolUse {
				haveTool = true
				toolCallID = evt.ToolCallID
				toolName = evt.ToolName
			}
		case llm.EventContentBlockDelta:
			switch evt.BlockKind {
			case llm.BlockText:
				text.WriteString(evt.TextDelta)
				speechBuf.WriteString(evt.TextDelta)
				cs.flushCompleteSentences(ctx, &speechBuf)
			case llm.BlockToolUse:
				toolArgsBuf.WriteString(evt.PartialJSON)
			}
		case llm.EventContentBlockStop:
			// Nothing extra to do; tool args are finalized once the stream
			// closes, matching providers that may interleave multiple
			// content blocks.
		case llm.EventMessageStop:
			cs.flushRemainingSpeech(ctx, &speechBuf)
		}
	}

	if turnCtx.Err() != nil {
		cs.mu.Lock()
		intentional := cs.cancelPending
		cs.mu.Unlock()
		if intentional {
			return types.Message{}, nil, true, nil
		}
		return types.Message{}, nil, false, apperr.New(apperr.KindLLMTransient, "orchestrator: llm stream cancelled")
	}

	msg = types.Message{Role: "assistant", Content: text.String()}
	if haveTool {
		args := toolArgsBuf.String()
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return types.Message{}, nil, false, apperr.New(apperr.KindUpstreamError, "orchestrator: llm emitted invalid tool arguments JSON")
		}
		tc := types.ToolCall{ID: toolCallID, Name: toolName, Arguments: args}
		msg.ToolCalls = []types.ToolCall{tc}
		toolCall = &tc
	}
	return msg, toolCall, false, nil
}

// flushCompleteSentences sends every complete sentence currently buffered in
// buf to the live TTS session, leaving any trailing partial sentence
// buffered for the next delta. Modeled on internal/engine/cascade's
// sentence-boundary forwarding.
func (cs *callSession) flushCompleteSentences(ctx context.Context, buf *strings.Builder) {
	s := buf.String()
	boundary := lastSentenceBoundary(s)
	if boundary <= 0 {
		return
	}
	cs.sendSpeech(ctx, s[:boundary])
	buf.Reset()
	buf.WriteString(s[boundary:])
}

// flushRemainingSpeech sends whatever text is left in buf once the stream
// ends, then closes out the live TTS utterance.
func (cs *callSession) flushRemainingSpeech(ctx context.Context, buf *strings.Builder) {
	if rest := buf.String(); rest != "" {
		cs.sendSpeech(ctx, rest)
	}
	buf.Reset()

	cs.mu.Lock()
	session := cs.ttsSession
	cs.ttsSession = nil
	cs.aiSpeaking = false
	cs.mu.Unlock()
	if session != nil {
		if err := session.Finish(); err != nil {
			slog.Debug("orchestrator: finishing tts session failed", "call_sid", cs.callSID, "err", err)
		}
	}
}

// sendSpeech ensures a live TTS session is open and sends text to it.
func (cs *callSession) sendSpeech(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	cs.mu.Lock()
	session := cs.ttsSession
	cs.mu.Unlock()
	if session == nil {
		if err := cs.openLiveTTS(ctx); err != nil {
			slog.Warn("orchestrator: opening live tts for speech delta failed", "call_sid", cs.callSID, "err", err)
			return
		}
		cs.mu.Lock()
		session = cs.ttsSession
		cs.mu.Unlock()
	}
	cs.mu.Lock()
	cs.aiSpeaking = true
	cs.mu.Unlock()
	if err := session.Send(text); err != nil {
		slog.Debug("orchestrator: tts send failed", "call_sid", cs.callSID, "err", err)
	}
}

// lastSentenceBoundary returns the index just past the last sentence-ending
// punctuation mark (. ! ?) in s, or -1 if none is found.
func lastSentenceBoundary(s string) int {
	idx := -1
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			idx = i + 1
		}
	}
	return idx
}

// toToolDefinitions adapts toolexec's tool catalogue to the shape the LLM
// provider expects.
func toToolDefinitions(defs []toolexec.ToolDefinition) []types.ToolDefinition {
	out := make([]types.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, types.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

// buildSystemPrompt combines the orchestrator's base system prompt with
// tenant-specific context the model needs to behave correctly for this
// business.
func (cs *callSession) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(cs.orch.cfg.SystemPrompt)
	b.WriteString(fmt.Sprintf("\n\nYou are answering calls for %s.", cs.tenant.DisplayName))
	if cs.tenant.Config.AI.RequireServiceType && len(cs.tenant.Config.AppointmentTypes) > 0 {
		b.WriteString(" Available services: ")
		for i, at := range cs.tenant.Config.AppointmentTypes {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(at.Name)
		}
		b.WriteString(".")
	}
	return b.String()
}
