package controller

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/kilroy-kilroy/Call-Recorder/internal/fileutil"
	"github.com/kilroy-kilroy/Call-Recorder/internal/recall"
	"github.com/kilroy-kilroy/Call-Recorder/internal/settings"
	"github.com/kilroy-kilroy/Call-Recorder/internal/transcript"
)

// listLimit bounds how many history entries a listing returns; each returned
// entry gets a remote status lookup.
const listLimit = 20

// StatusUnknown is reported when the remote status could not be fetched.
const StatusUnknown = "unknown"

// RecordingInfo is one history entry enriched with the remote upload status.
type RecordingInfo struct {
	UploadID string    `json:"uploadId"`
	Platform string    `json:"platform"`
	Title    string    `json:"title"`
	EndedAt  time.Time `json:"endedAt"`
	Status   string    `json:"status"`
}

// GetSettings returns the current stored settings.
func (c *Controller) GetSettings() settings.Settings {
	return c.settings.Load()
}

// SaveSettings validates and persists new settings. The cached API client is
// dropped so the next remote call picks up the new credentials.
func (c *Controller) SaveSettings(cfg settings.Settings) error {
	if err := c.settings.Save(cfg); err != nil {
		return err
	}
	c.invalidateAPI()
	return nil
}

// ListRecordings returns the most recent recordings, newest first, enriched
// with remote upload status. Enrichment is best-effort: a missing credential
// or a failed lookup degrades that entry to StatusUnknown rather than failing
// the whole listing.
func (c *Controller) ListRecordings() []RecordingInfo {
	entries := c.history.ReadAll()
	if len(entries) > listLimit {
		entries = entries[:listLimit]
	}

	out := make([]RecordingInfo, 0, len(entries))
	api, apiErr := c.getAPI()
	for _, entry := range entries {
		info := RecordingInfo{
			UploadID: entry.UploadID,
			Platform: entry.Platform,
			Title:    entry.Title,
			EndedAt:  entry.EndedAt,
			Status:   StatusUnknown,
		}
		if apiErr == nil {
			if upload, err := api.GetSDKUpload(entry.UploadID); err == nil && upload.Status.Code != "" {
				info.Status = upload.Status.Code
			}
		}
		out = append(out, info)
	}
	return out
}

// GetTranscript returns the transcript for an upload. The local cache is
// checked first; otherwise the processed transcript is fetched from the
// service, cached, and returned. ErrStillProcessing is returned while the
// service has no transcript yet.
func (c *Controller) GetTranscript(uploadID string) ([]transcript.Segment, error) {
	if segments, ok := c.cache.Read(uploadID); ok {
		return segments, nil
	}

	api, err := c.getAPI()
	if err != nil {
		return nil, err
	}

	upload, err := api.GetSDKUpload(uploadID)
	if err != nil {
		return nil, fmt.Errorf("fetch upload: %w", err)
	}
	if upload.RecordingID == "" {
		return nil, ErrStillProcessing
	}

	remote, err := api.GetTranscript(upload.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}

	segments := normalizeRemote(remote)
	if len(segments) == 0 {
		return nil, ErrStillProcessing
	}

	if err := c.cache.Write(uploadID, segments); err != nil {
		// Caching is an optimization; the transcript is still good.
		log.Printf("[CONTROLLER] failed to cache transcript for %s: %v", uploadID, err)
	}
	return segments, nil
}

// DownloadRecording fetches the mixed video for an upload into destDir and
// returns the written path. The filename is derived from the meeting title
// in history when one exists.
func (c *Controller) DownloadRecording(uploadID, destDir string) (string, error) {
	api, err := c.getAPI()
	if err != nil {
		return "", err
	}

	upload, err := api.GetSDKUpload(uploadID)
	if err != nil {
		return "", fmt.Errorf("fetch upload: %w", err)
	}
	if upload.RecordingID == "" {
		return "", ErrStillProcessing
	}

	rec, err := api.GetRecording(upload.RecordingID)
	if err != nil {
		return "", fmt.Errorf("fetch recording: %w", err)
	}
	downloadURL := rec.MediaShortcuts.VideoMixed.Data.DownloadURL
	if downloadURL == "" {
		return "", ErrStillProcessing
	}

	name := uploadID
	for _, entry := range c.history.ReadAll() {
		if entry.UploadID == uploadID && strings.TrimSpace(entry.Title) != "" {
			name = entry.Title
			break
		}
	}
	destPath := filepath.Join(destDir, fileutil.SanitizeForFilename(name)+".mp4")

	if err := api.DownloadFile(downloadURL, destPath); err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	return destPath, nil
}

// normalizeRemote converts service transcript segments into the local shape.
// Speaker attribution prefers the plain speaker field, then the participant
// name; text prefers word tokens over the flat string.
func normalizeRemote(remote []recall.TranscriptSegment) []transcript.Segment {
	out := make([]transcript.Segment, 0, len(remote))
	for _, rs := range remote {
		speaker := rs.Speaker
		if strings.TrimSpace(speaker) == "" {
			speaker = rs.Participant.Name
		}

		if len(rs.Words) > 0 {
			words := make([]string, 0, len(rs.Words))
			for _, w := range rs.Words {
				words = append(words, w.Text)
			}
			if seg, ok := transcript.NewSegment(speaker, words); ok {
				out = append(out, seg)
			}
			continue
		}

		if seg, ok := transcript.NewSegment(speaker, []string{rs.Text}); ok {
			out = append(out, seg)
		}
	}
	return out
}
