package notify

import (
	"encoding/json"
	"time"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type MeetingDetectedEvent struct {
	Event
	SourceID   string `json:"source_id"`
	Platform   string `json:"platform"`
	Title      string `json:"title"`
	MeetingURL string `json:"meeting_url,omitempty"`
}

type MeetingUpdatedEvent struct {
	Event
	SourceID   string `json:"source_id"`
	Platform   string `json:"platform"`
	Title      string `json:"title"`
	MeetingURL string `json:"meeting_url,omitempty"`
}

type RecordingStartedEvent struct {
	Event
	SourceID string `json:"source_id"`
	UploadID string `json:"upload_id"`
	Platform string `json:"platform"`
	Title    string `json:"title"`
}

type RecordingEndedEvent struct {
	Event
	SourceID string `json:"source_id"`
	UploadID string `json:"upload_id"`
	Platform string `json:"platform"`
	Title    string `json:"title"`
}

type RealtimeEvent struct {
	Event
	Kind     string          `json:"kind"`
	UploadID string          `json:"upload_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type SDKErrorEvent struct {
	Event
	Message string `json:"message"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
