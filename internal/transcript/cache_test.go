package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCache_RoundTrip(t *testing.T) {
	c := NewCache(t.TempDir())

	in := []Segment{
		{Speaker: "Ana", Text: "hello there"},
		{Speaker: "Bo", Text: "hi Ana"},
	}
	if err := c.Write("up-42", in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, ok := c.Read("up-42")
	if !ok {
		t.Fatal("Read: transcript missing after write")
	}
	if len(out) != len(in) {
		t.Fatalf("read %d segments, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("segment %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestCache_MissingFileIsNotAnError(t *testing.T) {
	c := NewCache(t.TempDir())

	segments, ok := c.Read("never-written")
	if ok || segments != nil {
		t.Errorf("Read of missing transcript = (%v, %v), want (nil, false)", segments, ok)
	}
}

func TestCache_CorruptFileReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)

	path := c.Path("up-bad")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	if _, ok := c.Read("up-bad"); ok {
		t.Error("corrupt transcript should read as absent")
	}
}

func TestCache_WriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir)

	if err := c.Write("up-1", []Segment{{Speaker: "Ana", Text: "x"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.txt")
	segments := []Segment{
		{Speaker: "Ana", Text: "hello there"},
		{Speaker: "Bo", Text: "hi"},
	}

	if err := WriteText(path, segments); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := string(data)
	if got != "Ana: hello there\nBo: hi\n" {
		t.Errorf("unexpected text output:\n%s", got)
	}
}
