package controller

import (
	"fmt"
	"log"
	"time"

	"github.com/kilroy-kilroy/Call-Recorder/internal/diaglog"
	"github.com/kilroy-kilroy/Call-Recorder/internal/engine"
	"github.com/kilroy-kilroy/Call-Recorder/internal/history"
)

// defaultRecordingConfig is sent when creating an upload: meeting-caption
// transcription with realtime callbacks routed back through the engine.
func defaultRecordingConfig() map[string]any {
	return map[string]any{
		"transcript": map[string]any{
			"provider": map[string]any{
				"meeting_captions": map[string]any{},
			},
		},
		"realtime_endpoints": []map[string]any{
			{
				"type": "desktop_sdk_callback",
				"events": []string{
					"transcript.data",
					"transcript.partial_data",
					"participant_events.join",
					"participant_events.speech_on",
					"participant_events.speech_off",
				},
			},
		},
	}
}

// HandleMeetingDetected reacts to a newly detected meeting window. The event
// is always surfaced to subscribers; when auto-record is on, a recording is
// started in the background.
func (c *Controller) HandleMeetingDetected(e engine.MeetingEvent) {
	if c.notifier != nil {
		c.notifier.BroadcastMeetingDetected(e.SourceID, e.Platform, e.Title, e.MeetingURL)
	}

	if !c.settings.Load().AutoRecord {
		return
	}
	if _, ok := c.registry.Lookup(e.SourceID); ok {
		return
	}

	go func() {
		if err := c.StartRecording(e); err != nil {
			log.Printf("[CONTROLLER] auto-record failed for %s: %v", e.SourceID, err)
		}
	}()
}

// HandleMeetingUpdated surfaces metadata changes for a detected meeting.
func (c *Controller) HandleMeetingUpdated(e engine.MeetingEvent) {
	if c.notifier != nil {
		c.notifier.BroadcastMeetingUpdated(e.SourceID, e.Platform, e.Title, e.MeetingURL)
	}
}

// StartRecording creates an upload for the meeting and asks the engine to
// capture it. The source is claimed in the registry before any network call,
// so a second start for the same source fails fast with ErrAlreadyActive.
// On capture failure the claim is rolled back and no transcript buffer is
// created.
func (c *Controller) StartRecording(e engine.MeetingEvent) error {
	if err := c.registry.Begin(e.SourceID, e.Platform, e.Title, e.MeetingURL); err != nil {
		return err
	}
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventSessionBegin,
		SourceID:  e.SourceID,
	})

	rollback := func(reason string) {
		_, _ = c.registry.End(e.SourceID)
		c.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentController,
			Event:     diaglog.EventSessionRollback,
			SourceID:  e.SourceID,
			Reason:    reason,
		})
	}

	api, err := c.getAPI()
	if err != nil {
		rollback("no API client")
		return err
	}

	upload, err := api.CreateSDKUpload(defaultRecordingConfig())
	if err != nil {
		rollback("upload creation failed")
		c.notifySDKError(fmt.Errorf("create upload: %w", err))
		return fmt.Errorf("create upload: %w", err)
	}

	if err := c.engine.StartCapture(e.SourceID, upload.UploadToken); err != nil {
		rollback("capture start failed")
		c.notifySDKError(fmt.Errorf("start capture: %w", err))
		return fmt.Errorf("start capture: %w", err)
	}

	c.registry.Activate(e.SourceID, upload.ID, upload.UploadToken, time.Now())
	c.agg.EnsureBuffer(upload.ID)

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventSessionActive,
		SourceID:  e.SourceID,
		UploadID:  upload.ID,
	})
	if c.notifier != nil {
		c.notifier.BroadcastRecordingStarted(e.SourceID, upload.ID, e.Platform, e.Title)
	}
	return nil
}

// StopRecording asks the engine to stop capturing a source. The request is
// fire-and-forget from the session's point of view: teardown happens when
// the engine reports RecordingEnded.
func (c *Controller) StopRecording(sourceID string) error {
	if _, ok := c.registry.Lookup(sourceID); !ok {
		return fmt.Errorf("no active session for %s", sourceID)
	}
	if err := c.engine.StopCapture(sourceID); err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}
	return nil
}

// HandleRecordingEnded tears a session down: the live transcript is flushed
// to the cache, a history entry is appended, and subscribers are told. Each
// persistence step is best-effort; a failure in one never blocks the others.
// Events for unknown sources are tolerated, since teardown may already have
// happened on another path.
func (c *Controller) HandleRecordingEnded(e engine.RecordingEndedEvent) {
	sess, err := c.registry.End(e.SourceID)
	if err != nil {
		log.Printf("[CONTROLLER] recording ended for unknown source %s", e.SourceID)
		return
	}

	platform := sess.Platform
	if platform == "" {
		platform = e.Platform
	}
	title := sess.Title
	if title == "" {
		title = e.Title
	}

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventSessionEnd,
		SourceID:  e.SourceID,
		UploadID:  sess.UploadID,
	})

	if sess.UploadID != "" {
		if segments := c.agg.Flush(sess.UploadID); len(segments) > 0 {
			if err := c.cache.Write(sess.UploadID, segments); err != nil {
				log.Printf("[CONTROLLER] failed to persist transcript for %s: %v", sess.UploadID, err)
				c.logger.Log(diaglog.LogEntry{
					Component: diaglog.ComponentController,
					Event:     diaglog.EventPersistFailed,
					UploadID:  sess.UploadID,
					Reason:    err.Error(),
				})
			} else {
				c.logger.Log(diaglog.LogEntry{
					Component: diaglog.ComponentController,
					Event:     diaglog.EventTranscriptFlush,
					UploadID:  sess.UploadID,
					Payload:   map[string]interface{}{"segments": len(segments)},
				})
			}
		}

		if err := c.history.Append(history.Entry{
			UploadID: sess.UploadID,
			Platform: platform,
			Title:    title,
			EndedAt:  time.Now().UTC(),
		}); err != nil {
			log.Printf("[CONTROLLER] failed to append history for %s: %v", sess.UploadID, err)
			c.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentController,
				Event:     diaglog.EventPersistFailed,
				UploadID:  sess.UploadID,
				Reason:    err.Error(),
			})
		}
	}

	if c.notifier != nil {
		c.notifier.BroadcastRecordingEnded(e.SourceID, sess.UploadID, platform, title)
	}
}

// HandleRealtimeEvent forwards the event to subscribers and, for transcript
// fragments, appends to the owning upload's buffer. Fragments are routed by
// the uploadId on the payload; when the tag is missing and exactly one
// session is capturing, that session is assumed, otherwise the fragment is
// dropped rather than guessed at.
func (c *Controller) HandleRealtimeEvent(e engine.RealtimeEvent) {
	if c.notifier != nil {
		c.notifier.BroadcastRealtime(e.Kind, e.UploadID, e.Data)
	}

	data, ok := e.TranscriptData()
	if !ok {
		return
	}
	words := data.WordTexts()
	if len(words) == 0 {
		return
	}

	uploadID := e.UploadID
	if uploadID == "" {
		uploadID = c.soleActiveUpload()
		if uploadID == "" {
			log.Printf("[CONTROLLER] dropping untagged transcript fragment")
			c.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentController,
				Event:     diaglog.EventFragmentDropped,
				Reason:    "no uploadId and no single active session",
			})
			return
		}
	}

	if !c.agg.Append(uploadID, data.Participant.Name, words) {
		c.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentController,
			Event:     diaglog.EventFragmentDropped,
			UploadID:  uploadID,
			Reason:    "no buffer for upload",
		})
	}
}

// soleActiveUpload returns the upload ID when exactly one session is
// actively capturing, else empty.
func (c *Controller) soleActiveUpload() string {
	var found string
	for _, s := range c.registry.Active() {
		if !s.Active() {
			continue
		}
		if found != "" {
			return ""
		}
		found = s.UploadID
	}
	return found
}
