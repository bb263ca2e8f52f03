// Package session tracks the recording sessions that are currently active,
// keyed by the detection source that triggered them.
package session

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrAlreadyActive is returned when a source already has a live session.
	// Callers must never silently replace an active session.
	ErrAlreadyActive = errors.New("session already active for source")

	// ErrNotFound is returned by End when no session exists for the source.
	ErrNotFound = errors.New("no active session for source")
)

// Session is one detected-meeting-to-recording-end lifecycle. UploadID and
// UploadToken stay empty until the remote upload is created; the token is a
// secret handed to the capture engine and is never persisted.
type Session struct {
	SourceID    string
	Platform    string
	Title       string
	MeetingURL  string
	UploadID    string
	UploadToken string
	StartedAt   time.Time
}

// Active reports whether the session has a confirmed capture.
func (s Session) Active() bool {
	return s.UploadID != "" && !s.StartedAt.IsZero()
}

// Registry is the authoritative in-memory map of active sessions. Source IDs
// are unique among live sessions only; a source may be reused after its
// session ends. The registry is mutated solely by the lifecycle controller.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Begin claims sourceID with a provisional session. Fails with
// ErrAlreadyActive when the source already has a live entry; the claim is
// taken before any network call so concurrent starts for the same source
// cannot both proceed.
func (r *Registry) Begin(sourceID, platform, title, meetingURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sourceID]; ok {
		return ErrAlreadyActive
	}
	r.sessions[sourceID] = Session{
		SourceID:   sourceID,
		Platform:   platform,
		Title:      title,
		MeetingURL: meetingURL,
	}
	return nil
}

// Activate finalizes the provisional entry for sourceID once capture is
// confirmed, recording the upload identity and start time.
func (r *Registry) Activate(sourceID, uploadID, uploadToken string, startedAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sourceID]
	if !ok {
		return false
	}
	s.UploadID = uploadID
	s.UploadToken = uploadToken
	s.StartedAt = startedAt
	r.sessions[sourceID] = s
	return true
}

// End removes and returns the session for sourceID. Events can legitimately
// arrive for sessions that were already torn down, so callers should treat
// ErrNotFound as tolerable, not fatal.
func (r *Registry) End(sourceID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sourceID]
	if !ok {
		return Session{}, ErrNotFound
	}
	delete(r.sessions, sourceID)
	return s, nil
}

// Lookup returns the session for sourceID, if any.
func (r *Registry) Lookup(sourceID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sourceID]
	return s, ok
}

// FindByUpload returns the session owning uploadID, if any.
func (r *Registry) FindByUpload(uploadID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.UploadID == uploadID {
			return s, true
		}
	}
	return Session{}, false
}

// Active returns a snapshot of all current sessions.
func (r *Registry) Active() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
