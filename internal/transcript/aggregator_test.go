package transcript

import "testing"

func TestNewSegment_Normalization(t *testing.T) {
	tests := []struct {
		name        string
		speaker     string
		words       []string
		wantOK      bool
		wantSpeaker string
		wantText    string
	}{
		{
			name:        "joins words with spaces",
			speaker:     "Ana",
			words:       []string{"hello", "there"},
			wantOK:      true,
			wantSpeaker: "Ana",
			wantText:    "hello there",
		},
		{
			name:        "trims and drops empty tokens",
			speaker:     "Ana",
			words:       []string{"  hello ", "", "   ", "world"},
			wantOK:      true,
			wantSpeaker: "Ana",
			wantText:    "hello world",
		},
		{
			name:        "missing speaker gets placeholder",
			speaker:     "   ",
			words:       []string{"hi"},
			wantOK:      true,
			wantSpeaker: DefaultSpeaker,
			wantText:    "hi",
		},
		{
			name:   "all-empty words produce no segment",
			words:  []string{"", "  "},
			wantOK: false,
		},
		{
			name:   "no words produce no segment",
			words:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg, ok := NewSegment(tt.speaker, tt.words)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if seg.Speaker != tt.wantSpeaker {
				t.Errorf("speaker = %q, want %q", seg.Speaker, tt.wantSpeaker)
			}
			if seg.Text != tt.wantText {
				t.Errorf("text = %q, want %q", seg.Text, tt.wantText)
			}
		})
	}
}

func TestAggregator_AppendAndFlushPreservesOrder(t *testing.T) {
	a := NewAggregator()
	a.EnsureBuffer("up-42")

	words := [][]string{
		{"good", "morning"},
		{"quick", "update"},
		{"sounds", "good"},
	}
	for i, w := range words {
		if !a.Append("up-42", "Ana", w) {
			t.Fatalf("append %d rejected", i)
		}
	}

	segments := a.Flush("up-42")
	if len(segments) != 3 {
		t.Fatalf("flushed %d segments, want 3", len(segments))
	}
	wantTexts := []string{"good morning", "quick update", "sounds good"}
	for i, want := range wantTexts {
		if segments[i].Text != want {
			t.Errorf("segment %d text = %q, want %q", i, segments[i].Text, want)
		}
	}

	// Buffer is released after flush.
	if a.Has("up-42") {
		t.Error("buffer still present after flush")
	}
	if got := a.Flush("up-42"); got != nil {
		t.Errorf("second flush returned %v, want nil", got)
	}
}

func TestAggregator_EnsureBufferIdempotent(t *testing.T) {
	a := NewAggregator()
	a.EnsureBuffer("up-1")
	a.Append("up-1", "Bo", []string{"first"})
	a.EnsureBuffer("up-1")

	segments := a.Flush("up-1")
	if len(segments) != 1 || segments[0].Text != "first" {
		t.Fatalf("EnsureBuffer clobbered existing buffer: %v", segments)
	}
}

func TestAggregator_FlushEmptyBufferYieldsNil(t *testing.T) {
	a := NewAggregator()
	a.EnsureBuffer("up-empty")

	if got := a.Flush("up-empty"); got != nil {
		t.Errorf("flush of empty buffer = %v, want nil", got)
	}
}

func TestAggregator_AppendWithoutBufferIsDropped(t *testing.T) {
	a := NewAggregator()

	if a.Append("unknown", "Ana", []string{"lost", "words"}) {
		t.Error("append to missing buffer should be dropped")
	}
	if a.Has("unknown") {
		t.Error("append must not create a buffer")
	}
}

func TestAggregator_EmptyTextIsNoOp(t *testing.T) {
	a := NewAggregator()
	a.EnsureBuffer("up-2")

	if a.Append("up-2", "Ana", []string{"  ", ""}) {
		t.Error("append of empty text should be a no-op")
	}
	if got := a.Flush("up-2"); got != nil {
		t.Errorf("buffer should still be empty, got %v", got)
	}
}

func TestAggregator_BuffersAreIndependent(t *testing.T) {
	a := NewAggregator()
	a.EnsureBuffer("up-a")
	a.EnsureBuffer("up-b")

	a.Append("up-a", "Ana", []string{"for", "a"})
	a.Append("up-b", "Bo", []string{"for", "b"})

	segA := a.Flush("up-a")
	if len(segA) != 1 || segA[0].Text != "for a" {
		t.Errorf("buffer a = %v", segA)
	}
	segB := a.Flush("up-b")
	if len(segB) != 1 || segB[0].Text != "for b" {
		t.Errorf("buffer b = %v", segB)
	}
}
