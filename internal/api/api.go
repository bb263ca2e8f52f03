// Package api exposes the daemon's control surface over localhost HTTP. The
// UI talks to these routes and subscribes to /ws for push events.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/kilroy-kilroy/Call-Recorder/internal/controller"
	"github.com/kilroy-kilroy/Call-Recorder/internal/engine"
	"github.com/kilroy-kilroy/Call-Recorder/internal/recall"
	"github.com/kilroy-kilroy/Call-Recorder/internal/session"
	"github.com/kilroy-kilroy/Call-Recorder/internal/settings"
	"github.com/kilroy-kilroy/Call-Recorder/internal/transcript"
)

var uploadIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Core is the slice of the lifecycle controller the API serves.
type Core interface {
	GetSettings() settings.Settings
	SaveSettings(settings.Settings) error
	ListRecordings() []controller.RecordingInfo
	GetTranscript(uploadID string) ([]transcript.Segment, error)
	DownloadRecording(uploadID, destDir string) (string, error)
	StartRecording(e engine.MeetingEvent) error
	StopRecording(sourceID string) error
	ActiveSessions() []session.Session
}

// StatusHooks supply daemon state that lives outside the controller.
type StatusHooks struct {
	EngineConnected func() bool
}

func registerAPIRoutes(mux *http.ServeMux, core Core, downloadDir string, hooks StatusHooks) {
	mux.HandleFunc("GET /api/settings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, core.GetSettings())
	})

	mux.HandleFunc("PUT /api/settings", func(w http.ResponseWriter, r *http.Request) {
		var cfg settings.Settings
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode settings: %v", err))
			return
		}
		if err := core.SaveSettings(cfg); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("save settings: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, core.GetSettings())
	})

	mux.HandleFunc("GET /api/recordings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, core.ListRecordings())
	})

	mux.HandleFunc("GET /api/recordings/{uploadId}/transcript", func(w http.ResponseWriter, r *http.Request) {
		uploadID := r.PathValue("uploadId")
		if !validUploadID(uploadID) {
			writeJSONError(w, http.StatusForbidden, "invalid upload id")
			return
		}

		segments, err := core.GetTranscript(uploadID)
		if err != nil {
			writeJSONError(w, statusForError(err), fmt.Sprintf("get transcript: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, segments)
	})

	mux.HandleFunc("POST /api/recordings/{uploadId}/download", func(w http.ResponseWriter, r *http.Request) {
		uploadID := r.PathValue("uploadId")
		if !validUploadID(uploadID) {
			writeJSONError(w, http.StatusForbidden, "invalid upload id")
			return
		}

		path, err := core.DownloadRecording(uploadID, downloadDir)
		if err != nil {
			writeJSONError(w, statusForError(err), fmt.Sprintf("download recording: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": path})
	})

	mux.HandleFunc("POST /api/record/start", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SourceID   string `json:"sourceId"`
			Platform   string `json:"platform"`
			Title      string `json:"title"`
			MeetingURL string `json:"meetingUrl"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
		if body.SourceID == "" {
			writeJSONError(w, http.StatusBadRequest, "sourceId is required")
			return
		}

		err := core.StartRecording(engine.MeetingEvent{
			SourceID:   body.SourceID,
			Platform:   body.Platform,
			Title:      body.Title,
			MeetingURL: body.MeetingURL,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrAlreadyActive) {
				status = http.StatusConflict
			} else if errors.Is(err, controller.ErrAPIKeyMissing) {
				status = http.StatusBadRequest
			}
			writeJSONError(w, status, fmt.Sprintf("start recording: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/record/stop", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SourceID string `json:"sourceId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		if err := core.StopRecording(body.SourceID); err != nil {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("stop recording: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		engineConnected := false
		if hooks.EngineConnected != nil {
			engineConnected = hooks.EngineConnected()
		}

		sessions := core.ActiveSessions()
		active := make([]map[string]any, 0, len(sessions))
		for _, s := range sessions {
			active = append(active, map[string]any{
				"sourceId":  s.SourceID,
				"platform":  s.Platform,
				"title":     s.Title,
				"uploadId":  s.UploadID,
				"capturing": s.Active(),
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"engineConnected": engineConnected,
			"activeSessions":  active,
		})
	})
}

func validUploadID(id string) bool {
	return uploadIDPattern.MatchString(id)
}

// statusForError maps controller errors onto HTTP statuses. A transcript or
// media that is not ready yet is 202 so clients can poll.
func statusForError(err error) int {
	var apiErr *recall.APIError
	switch {
	case errors.Is(err, controller.ErrStillProcessing):
		return http.StatusAccepted
	case errors.Is(err, controller.ErrAPIKeyMissing):
		return http.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
