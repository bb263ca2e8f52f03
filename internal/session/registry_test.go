package session

import (
	"errors"
	"testing"
	"time"
)

func TestBegin_SecondClaimFails(t *testing.T) {
	r := NewRegistry()

	if err := r.Begin("win-7", "zoom", "Standup", ""); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	err := r.Begin("win-7", "zoom", "Standup again", "")
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Begin = %v, want ErrAlreadyActive", err)
	}

	// Registry still contains exactly one entry for the source.
	if r.Len() != 1 {
		t.Errorf("registry has %d entries, want 1", r.Len())
	}
	s, ok := r.Lookup("win-7")
	if !ok || s.Title != "Standup" {
		t.Errorf("surviving entry = %+v, want the original claim", s)
	}
}

func TestEnd_ReturnsAndRemoves(t *testing.T) {
	r := NewRegistry()
	if err := r.Begin("win-7", "teams", "Planning", "https://meet.example"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	started := time.Now()
	if !r.Activate("win-7", "up-42", "tok-secret", started) {
		t.Fatal("Activate failed")
	}

	s, err := r.End("win-7")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if s.UploadID != "up-42" || s.UploadToken != "tok-secret" {
		t.Errorf("ended session = %+v", s)
	}
	if !s.Active() {
		t.Error("activated session should report Active")
	}

	if _, ok := r.Lookup("win-7"); ok {
		t.Error("session still present after End")
	}
}

func TestEnd_MissingSourceIsTolerated(t *testing.T) {
	r := NewRegistry()
	if _, err := r.End("never-started"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("End = %v, want ErrNotFound", err)
	}
}

func TestSourceReusableAfterEnd(t *testing.T) {
	r := NewRegistry()
	if err := r.Begin("win-7", "zoom", "First", ""); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := r.End("win-7"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := r.Begin("win-7", "zoom", "Second", ""); err != nil {
		t.Errorf("Begin after End = %v, want nil", err)
	}
}

func TestActivate_MissingSource(t *testing.T) {
	r := NewRegistry()
	if r.Activate("gone", "up-1", "tok", time.Now()) {
		t.Error("Activate of missing source should report false")
	}
}

func TestFindByUpload(t *testing.T) {
	r := NewRegistry()
	_ = r.Begin("win-1", "zoom", "A", "")
	_ = r.Begin("win-2", "teams", "B", "")
	r.Activate("win-2", "up-2", "tok", time.Now())

	s, ok := r.FindByUpload("up-2")
	if !ok || s.SourceID != "win-2" {
		t.Errorf("FindByUpload = (%+v, %v)", s, ok)
	}
	if _, ok := r.FindByUpload("up-unknown"); ok {
		t.Error("FindByUpload of unknown upload should miss")
	}
}

func TestActive_Snapshot(t *testing.T) {
	r := NewRegistry()
	_ = r.Begin("win-1", "zoom", "A", "")
	_ = r.Begin("win-2", "teams", "B", "")

	if got := len(r.Active()); got != 2 {
		t.Errorf("Active returned %d sessions, want 2", got)
	}
}
