package fileutil

import (
	"strings"
	"testing"
)

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain title", input: "Weekly Sync", want: "Weekly-Sync"},
		{name: "illegal characters replaced", input: `a/b\c:d*e`, want: "a-b-c-d-e"},
		{name: "whitespace collapsed", input: "a   b\t\tc", want: "a-b-c"},
		{name: "empty input", input: "", want: "recording"},
		{name: "only illegal chars", input: `///`, want: "recording"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForFilename(tt.input); got != tt.want {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeForFilename_CapsLength(t *testing.T) {
	got := SanitizeForFilename(strings.Repeat("a", 80))
	if len(got) > 50 {
		t.Errorf("length = %d, want <= 50", len(got))
	}
}
