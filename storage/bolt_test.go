package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestBoltDBOverlayCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bolt")
	db, err := NewBoltDB(path)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	ov := NewOverlay(db)
	_ = ov.Delete([]byte("a"))
	_ = ov.Put([]byte("b"), []byte("2"))
	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := db.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected delete applied, got %v", err)
	}
	db.Close()

	reopened, err := NewBoltDB(path)
	if err != nil {
		t.Fatalf("reopen bolt: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get([]byte("b"))
	if err != nil || string(got) != "2" {
		t.Fatalf("bolt read after reopen: got %q err %v", got, err)
	}
}

func TestBoltDBRejectsEmptyKey(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "state.bolt"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	defer db.Close()
	if err := db.Put(nil, []byte("v")); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}
