package ingress

import (
	"encoding/xml"
	"fmt"
)

// These mirror the TwiML-like schema spec.md §6 requires the /voice
// response to produce. Marshaled with encoding/xml rather than hand-built
// strings so attribute escaping is correct by construction.
type voiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Connect *connect `xml:"Connect,omitempty"`
	Say     *say     `xml:"Say,omitempty"`
	Record  *record  `xml:"Record,omitempty"`
}

type connect struct {
	Stream stream `xml:"Stream"`
}

type stream struct {
	URL        string      `xml:"url,attr"`
	Parameters []parameter `xml:"Parameter"`
}

type parameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type say struct {
	Text string `xml:",chardata"`
}

type record struct {
	MaxLength          int    `xml:"maxLength,attr"`
	Action             string `xml:"action,attr"`
	Transcribe         bool   `xml:"transcribe,attr"`
	TranscribeCallback string `xml:"transcribeCallback,attr"`
}

const voicemailMaxLengthSeconds = 120

// connectStreamResponse builds the streaming-connect voice response: a
// <Connect><Stream> to the media-stream WS, a spoken fallback line, and a
// <Record> voicemail fallback, per spec.md §4.11 step 5 and §6.
func connectStreamResponse(publicHost, callSID, tenantID string) ([]byte, error) {
	streamURL := fmt.Sprintf("wss://%s/media-stream?callSid=%s&tenantId=%s", publicHost, callSID, tenantID)
	voicemailCallback := fmt.Sprintf("/voicemail-callback?tenantId=%s", tenantID)
	transcriptionCallback := fmt.Sprintf("/voicemail-callback?tenantId=%s&type=transcription", tenantID)

	resp := voiceResponse{
		Connect: &connect{
			Stream: stream{
				URL: streamURL,
				Parameters: []parameter{
					{Name: "tenantId", Value: tenantID},
				},
			},
		},
		Say: &say{Text: "We're sorry, we could not connect your call. Please leave a message after the tone."},
		Record: &record{
			Action:             voicemailCallback,
			MaxLength:          voicemailMaxLengthSeconds,
			Transcribe:         true,
			TranscribeCallback: transcriptionCallback,
		},
	}
	return marshalXML(resp)
}

// politeRejectionResponse builds the response for an unresolved, suspended,
// or admission-rejected tenant: a polite spoken apology and hangup, no
// stream connect attempt.
func politeRejectionResponse(message string) ([]byte, error) {
	resp := voiceResponse{Say: &say{Text: message}}
	return marshalXML(resp)
}

// emptyAckResponse is the idempotent no-op and status-callback
// acknowledgement: an empty <Response/>.
func emptyAckResponse() ([]byte, error) {
	return marshalXML(voiceResponse{})
}

func marshalXML(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ingress: marshal xml response: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
