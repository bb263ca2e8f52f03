package transcript

import (
	"fmt"
	"strings"
)

// WriteText writes a plain text rendering of the transcript, one segment per
// line as "speaker: text". The file is written atomically (temp file +
// rename) to avoid partial writes.
func WriteText(path string, segments []Segment) error {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, "%s: %s\n", seg.Speaker, seg.Text)
	}
	return atomicWrite(path, []byte(b.String()))
}
