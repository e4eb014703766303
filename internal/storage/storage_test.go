package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.json")

	if err := WriteAtomic(path, []byte(`{"0":{"ticker":"AAPL"}}`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	got, found, err := ReadIfExists(path)
	if err != nil {
		t.Fatalf("ReadIfExists: %v", err)
	}
	if !found {
		t.Fatal("file should exist after write")
	}
	if string(got) != `{"0":{"ticker":"AAPL"}}` {
		t.Errorf("content = %q", got)
	}

	// No temp file may survive a successful write.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestWriteAtomicReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.json")
	if err := WriteAtomic(path, []byte("old")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteAtomic(path, []byte("new")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, _, err := ReadIfExists(path)
	if err != nil {
		t.Fatalf("ReadIfExists: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("content = %q, want new", got)
	}
}

func TestReadIfExistsMissingFile(t *testing.T) {
	_, found, err := ReadIfExists(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file must not be an error, got %v", err)
	}
	if found {
		t.Error("found should be false for a missing file")
	}
}
