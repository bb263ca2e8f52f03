package notify

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub fans presentation events out to subscribed clients. Slow subscribers
// miss events rather than block the broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastMeetingDetected(sourceID, platform, title, meetingURL string) {
	h.broadcastEvent(MeetingDetectedEvent{
		Event:      newEvent("meeting_detected", time.Now().UTC()),
		SourceID:   sourceID,
		Platform:   platform,
		Title:      title,
		MeetingURL: meetingURL,
	})
}

func (h *Hub) BroadcastMeetingUpdated(sourceID, platform, title, meetingURL string) {
	h.broadcastEvent(MeetingUpdatedEvent{
		Event:      newEvent("meeting_updated", time.Now().UTC()),
		SourceID:   sourceID,
		Platform:   platform,
		Title:      title,
		MeetingURL: meetingURL,
	})
}

func (h *Hub) BroadcastRecordingStarted(sourceID, uploadID, platform, title string) {
	h.broadcastEvent(RecordingStartedEvent{
		Event:    newEvent("recording_started", time.Now().UTC()),
		SourceID: sourceID,
		UploadID: uploadID,
		Platform: platform,
		Title:    title,
	})
}

func (h *Hub) BroadcastRecordingEnded(sourceID, uploadID, platform, title string) {
	h.broadcastEvent(RecordingEndedEvent{
		Event:    newEvent("recording_ended", time.Now().UTC()),
		SourceID: sourceID,
		UploadID: uploadID,
		Platform: platform,
		Title:    title,
	})
}

func (h *Hub) BroadcastRealtime(kind, uploadID string, data json.RawMessage) {
	h.broadcastEvent(RealtimeEvent{
		Event:    newEvent("realtime", time.Now().UTC()),
		Kind:     kind,
		UploadID: uploadID,
		Data:     data,
	})
}

func (h *Hub) BroadcastSDKError(message string) {
	h.broadcastEvent(SDKErrorEvent{
		Event:   newEvent("sdk_error", time.Now().UTC()),
		Message: message,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
