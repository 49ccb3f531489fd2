package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestOverlayBuffersUntilCommit(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ov := NewOverlay(db)
	if err := ov.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ov.Delete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := ov.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted key hidden in overlay, got %v", err)
	}
	if got, err := ov.Get([]byte("b")); err != nil || string(got) != "2" {
		t.Fatalf("overlay read: got %q err %v", got, err)
	}
	if _, err := db.Get([]byte("b")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("parent must not see uncommitted write, got %v", err)
	}
	if got, err := db.Get([]byte("a")); err != nil || string(got) != "1" {
		t.Fatalf("parent must keep key until commit, got %q err %v", got, err)
	}

	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ov.Pending() != 0 {
		t.Fatalf("overlay not reset after commit")
	}
	if _, err := db.Get([]byte("a")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected delete applied, got %v", err)
	}
	if got, err := db.Get([]byte("b")); err != nil || string(got) != "2" {
		t.Fatalf("expected write applied, got %q err %v", got, err)
	}
}

func TestOverlayDiscardLeavesParentUntouched(t *testing.T) {
	db := NewMemDB()
	ov := NewOverlay(db)
	_ = ov.Put([]byte("k"), []byte("v"))
	ov.Discard()
	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("expected empty parent, got %d keys", db.Len())
	}
}

func TestLevelDBBatchWrite(t *testing.T) {
	ldb, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer ldb.Close()

	if _, err := ldb.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ov := NewOverlay(ldb)
	_ = ov.Put([]byte("x"), []byte("1"))
	_ = ov.Put([]byte("y"), []byte("2"))
	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := ldb.Get([]byte("y"))
	if err != nil || string(got) != "2" {
		t.Fatalf("leveldb read: got %q err %v", got, err)
	}
}
