// Package transcript accumulates live transcript fragments per upload and
// persists the finished transcript alongside the other local state files.
package transcript

import "strings"

// DefaultSpeaker is used when the capture engine reports no participant name.
const DefaultSpeaker = "Speaker"

// Segment is one attributed utterance: a speaker display name and the
// space-joined word tokens of what they said.
type Segment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// NewSegment builds a Segment from raw word tokens. Tokens are trimmed and
// empty ones dropped; the remainder is joined with single spaces. Returns
// ok=false when nothing survives normalization; callers must not append
// such a segment.
func NewSegment(speaker string, words []string) (Segment, bool) {
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			cleaned = append(cleaned, w)
		}
	}
	if len(cleaned) == 0 {
		return Segment{}, false
	}

	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		speaker = DefaultSpeaker
	}

	return Segment{Speaker: speaker, Text: strings.Join(cleaned, " ")}, true
}
