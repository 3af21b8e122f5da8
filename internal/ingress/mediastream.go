package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// StreamEvent is one inbound JSON frame over the media-stream WS, per
// spec.md §6.
type StreamEvent struct {
	Event string       `json:"event"`
	Start *StreamStart `json:"start,omitempty"`
	Media *StreamMedia `json:"media,omitempty"`
}

// StreamStart is the payload of the inbound "start" event.
type StreamStart struct {
	StreamSID        string                 `json:"streamSid"`
	CallSID          string                 `json:"callSid"`
	CustomParameters StreamCustomParameters `json:"customParameters"`
}

// StreamCustomParameters carries the tenant linkage passed through the
// <Parameter> elements of the voice response.
type StreamCustomParameters struct {
	TenantID    string `json:"tenantId"`
	CallerPhone string `json:"callerPhone,omitempty"`
}

// StreamMedia is the payload of the inbound "media" event: base64-encoded
// μ-law@8kHz audio.
type StreamMedia struct {
	Payload string `json:"payload"`
}

// OutboundMediaFrame is the outbound "media" event carrying synthesized
// audio back to the telephony provider.
type OutboundMediaFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// OutboundClearFrame tells the telephony provider to drop any buffered
// outbound audio, used to implement barge-in.
type OutboundClearFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// NewOutboundMediaFrame builds the outbound media frame for one audio chunk.
func NewOutboundMediaFrame(streamSID string, payloadBase64 string) OutboundMediaFrame {
	f := OutboundMediaFrame{Event: "media", StreamSID: streamSID}
	f.Media.Payload = payloadBase64
	return f
}

// NewOutboundClearFrame builds the outbound clear frame for streamSID.
func NewOutboundClearFrame(streamSID string) OutboundClearFrame {
	return OutboundClearFrame{Event: "clear", StreamSID: streamSID}
}

// startFrameTimeout bounds how long the handler waits for the mandatory
// inbound "start" event before giving up on a connection.
const startFrameTimeout = 5 * time.Second

// CallHandler drives one admitted call for its full duration: reading media
// frames from conn, running the STT/LLM/TTS pipeline, and writing media/clear
// frames back. Implemented by internal/orchestrator. HandleCall blocks until
// the call ends; ingress calls it from the HTTP handler goroutine that
// accepted the socket, giving each call its own goroutine per spec.md §5.
type CallHandler interface {
	HandleCall(ctx context.Context, conn *websocket.Conn, start StreamStart)
}

// handleMediaStream accepts the WS upgrade, reads the mandatory "start"
// frame, validates the tenant named in the query string matches the one in
// customParameters and is still active, then hands the connection to the
// configured [CallHandler] for the life of the call.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	queryTenantID := r.URL.Query().Get("tenantId")
	queryCallSID := r.URL.Query().Get("callSid")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.metrics.StreamConnectError.Add(r.Context(), 1)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(r.Context(), startFrameTimeout)
	start, err := readStartFrame(ctx, conn)
	cancel()
	if err != nil {
		slog.Warn("ingress: media-stream did not receive a valid start frame", "err", err)
		s.metrics.StreamConnectError.Add(r.Context(), 1)
		conn.Close(websocket.StatusProtocolError, "missing or malformed start frame")
		return
	}

	tenantID := start.CustomParameters.TenantID
	if queryTenantID != "" && queryTenantID != tenantID {
		s.metrics.StreamConnectError.Add(r.Context(), 1)
		conn.Close(websocket.StatusPolicyViolation, "tenant mismatch")
		return
	}
	if queryCallSID != "" && queryCallSID != start.CallSID {
		s.metrics.StreamConnectError.Add(r.Context(), 1)
		conn.Close(websocket.StatusPolicyViolation, "call_sid mismatch")
		return
	}

	t, err := s.tenants.FindByID(tenantID)
	if err != nil || !t.IsActive() {
		s.metrics.StreamConnectError.Add(r.Context(), 1)
		conn.Close(websocket.StatusPolicyViolation, "unknown or inactive tenant")
		return
	}

	s.metrics.StreamConnectOK.Add(r.Context(), 1)
	if s.callHandler == nil {
		conn.Close(websocket.StatusInternalError, "no call handler configured")
		return
	}
	s.callHandler.HandleCall(r.Context(), conn, start)
}

func readStartFrame(ctx context.Context, conn *websocket.Conn) (StreamStart, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return StreamStart{}, fmt.Errorf("ingress: read start frame: %w", err)
		}
		var evt StreamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return StreamStart{}, fmt.Errorf("ingress: decode start frame: %w", err)
		}
		switch evt.Event {
		case "start":
			if evt.Start == nil {
				return StreamStart{}, fmt.Errorf("ingress: start event missing start payload")
			}
			return *evt.Start, nil
		case "connected":
			continue // some providers send a no-op "connected" frame first
		default:
			return StreamStart{}, fmt.Errorf("ingress: expected start event, got %q", evt.Event)
		}
	}
}
