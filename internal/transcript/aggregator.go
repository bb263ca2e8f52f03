package transcript

import "sync"

// Aggregator accumulates live transcript segments in memory, keyed by upload
// ID. Buffers are created when a capture becomes active and released exactly
// once by Flush at session end. It is deliberately keyed by upload ID rather
// than the detection source ID: a late fragment for a finished upload can
// never land in a newer session that reuses the same source.
type Aggregator struct {
	mu      sync.Mutex
	buffers map[string][]Segment
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{buffers: make(map[string][]Segment)}
}

// EnsureBuffer creates an empty buffer for uploadID if none exists.
// Idempotent: calling it for an existing buffer leaves the contents alone.
func (a *Aggregator) EnsureBuffer(uploadID string) {
	if uploadID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.buffers[uploadID]; !ok {
		a.buffers[uploadID] = []Segment{}
	}
}

// Append normalizes the given words and appends one segment to the buffer for
// uploadID. Fragments whose text normalizes to empty are dropped, as are
// fragments for uploads that never had a buffer (the upload was never
// started, or was already flushed). Returns whether a segment was appended.
func (a *Aggregator) Append(uploadID, speaker string, words []string) bool {
	seg, ok := NewSegment(speaker, words)
	if !ok {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[uploadID]
	if !ok {
		return false
	}
	a.buffers[uploadID] = append(buf, seg)
	return true
}

// Flush removes the buffer for uploadID and returns its segments in append
// order. Returns nil when no buffer existed or it was empty; the caller
// decides whether "no transcript" is persisted (it is not).
func (a *Aggregator) Flush(uploadID string) []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[uploadID]
	if !ok {
		return nil
	}
	delete(a.buffers, uploadID)
	if len(buf) == 0 {
		return nil
	}
	return buf
}

// Has reports whether a buffer currently exists for uploadID.
func (a *Aggregator) Has(uploadID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.buffers[uploadID]
	return ok
}
