package engine

import "encoding/json"

// Event types emitted by the capture engine.
const (
	EventTypeMeetingDetected = "MeetingDetected"
	EventTypeMeetingUpdated  = "MeetingUpdated"
	EventTypeRecordingEnded  = "RecordingEnded"
	EventTypeRealtime        = "Realtime"
)

// RealtimeTranscriptData is the realtime event kind carrying transcript words.
const RealtimeTranscriptData = "transcript.data"

// MeetingEvent describes a meeting window the engine detected or updated.
type MeetingEvent struct {
	SourceID   string
	Platform   string
	Title      string
	MeetingURL string
}

// RecordingEndedEvent signals that capture for a source has stopped, whether
// by request or because the meeting window went away.
type RecordingEndedEvent struct {
	SourceID string
	Platform string
	Title    string
}

// windowPayload is the wire shape shared by meeting lifecycle events.
type windowPayload struct {
	Window struct {
		ID         string `json:"id"`
		Platform   string `json:"platform"`
		Title      string `json:"title"`
		MeetingURL string `json:"meetingUrl"`
	} `json:"window"`
}

// RealtimeEvent is a passthrough realtime payload from the engine. UploadID
// identifies the upload the fragment belongs to; engines predating the tag
// send it empty. Data is kept raw for presentation passthrough.
type RealtimeEvent struct {
	Kind     string          `json:"event"`
	UploadID string          `json:"uploadId"`
	Data     json.RawMessage `json:"data"`
}

// TranscriptWord is one recognized word token.
type TranscriptWord struct {
	Text string `json:"text"`
}

// TranscriptData is the decoded payload of a transcript.data realtime event.
type TranscriptData struct {
	Words       []TranscriptWord `json:"words"`
	Participant struct {
		Name string `json:"name"`
	} `json:"participant"`
}

// TranscriptData decodes the event payload when the event carries transcript
// words. Returns ok=false for other kinds or malformed payloads.
func (e RealtimeEvent) TranscriptData() (TranscriptData, bool) {
	if e.Kind != RealtimeTranscriptData || len(e.Data) == 0 {
		return TranscriptData{}, false
	}
	// The engine nests the provider payload one level down.
	var wrapper struct {
		Data TranscriptData `json:"data"`
	}
	if err := json.Unmarshal(e.Data, &wrapper); err != nil {
		return TranscriptData{}, false
	}
	return wrapper.Data, true
}

// WordTexts returns the raw word tokens in order.
func (d TranscriptData) WordTexts() []string {
	out := make([]string, 0, len(d.Words))
	for _, w := range d.Words {
		out = append(out, w.Text)
	}
	return out
}
