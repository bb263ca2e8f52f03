package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReadAll_MissingFileIsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	if got := s.ReadAll(); len(got) != 0 {
		t.Errorf("ReadAll on fresh store = %v, want empty", got)
	}
}

func TestReadAll_CorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "recordings.json"), []byte("[{broken"), 0644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	if got := NewStore(dir).ReadAll(); len(got) != 0 {
		t.Errorf("ReadAll on corrupt store = %v, want empty", got)
	}
}

func TestAppend_NewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	for i := 1; i <= 3; i++ {
		err := s.Append(Entry{
			UploadID: fmt.Sprintf("up-%d", i),
			Platform: "zoom",
			EndedAt:  time.Date(2025, 6, 1, 10, i, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	entries := s.ReadAll()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"up-3", "up-2", "up-1"} {
		if entries[i].UploadID != want {
			t.Errorf("entry %d = %s, want %s", i, entries[i].UploadID, want)
		}
	}
}

func TestAppend_CapsAtOneHundred(t *testing.T) {
	s := NewStore(t.TempDir())

	for i := 0; i < maxEntries+1; i++ {
		if err := s.Append(Entry{UploadID: fmt.Sprintf("up-%d", i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	entries := s.ReadAll()
	if len(entries) != maxEntries {
		t.Fatalf("got %d entries, want %d", len(entries), maxEntries)
	}
	// Newest survives at the front; the very first append fell off the end.
	if entries[0].UploadID != fmt.Sprintf("up-%d", maxEntries) {
		t.Errorf("newest entry = %s", entries[0].UploadID)
	}
	for _, e := range entries {
		if e.UploadID == "up-0" {
			t.Error("oldest entry should have been discarded")
		}
	}
}

func TestAppend_RoundTripFields(t *testing.T) {
	s := NewStore(t.TempDir())
	in := Entry{
		UploadID: "up-42",
		Platform: "google-meet",
		Title:    "Weekly sync",
		EndedAt:  time.Date(2025, 6, 2, 15, 4, 5, 0, time.UTC),
	}
	if err := s.Append(in); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := s.ReadAll()[0]
	if got.UploadID != in.UploadID || got.Platform != in.Platform || got.Title != in.Title {
		t.Errorf("entry = %+v, want %+v", got, in)
	}
	if !got.EndedAt.Equal(in.EndedAt) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, in.EndedAt)
	}
}
