package blobsync

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeLocal(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "master.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}
	return path
}

func newTestSyncer() (*Syncer, *InMemoryStore) {
	store := NewInMemoryStore()
	return NewSyncer(store, "master.json", zerolog.Nop()), store
}

// ---------------------------------------------------------------------------
// Push
// ---------------------------------------------------------------------------

func TestPushUploadsNewObject(t *testing.T) {
	s, store := newTestSyncer()
	path := writeLocal(t, t.TempDir(), `[{"sourceId":"r:2"}]`)

	uploaded, err := s.Push(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !uploaded {
		t.Error("first push must upload")
	}

	remote, err := store.Get(context.Background(), "master.json")
	if err != nil {
		t.Fatalf("get remote: %v", err)
	}
	if string(remote) != `[{"sourceId":"r:2"}]` {
		t.Errorf("remote content differs: %s", remote)
	}
}

func TestPushSkipsUnchangedContent(t *testing.T) {
	s, _ := newTestSyncer()
	path := writeLocal(t, t.TempDir(), `[]`)

	if _, err := s.Push(context.Background(), path); err != nil {
		t.Fatalf("first push: %v", err)
	}
	uploaded, err := s.Push(context.Background(), path)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if uploaded {
		t.Error("identical content must not re-upload")
	}
}

func TestPushUploadsAfterChange(t *testing.T) {
	s, _ := newTestSyncer()
	dir := t.TempDir()
	path := writeLocal(t, dir, `[]`)

	if _, err := s.Push(context.Background(), path); err != nil {
		t.Fatalf("first push: %v", err)
	}
	writeLocal(t, dir, `[{"sourceId":"r:2"}]`)

	uploaded, err := s.Push(context.Background(), path)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if !uploaded {
		t.Error("changed content must upload")
	}
}

func TestPushMissingLocalFile(t *testing.T) {
	s, _ := newTestSyncer()
	if _, err := s.Push(context.Background(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing local file")
	}
}

// ---------------------------------------------------------------------------
// Pull
// ---------------------------------------------------------------------------

func TestPullDownloadsMissingLocal(t *testing.T) {
	s, store := newTestSyncer()
	if err := store.Put(context.Background(), "master.json", []byte(`[]`)); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	path := filepath.Join(t.TempDir(), "data", "master.json")
	downloaded, err := s.Pull(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !downloaded {
		t.Error("pull into a missing local file must download")
	}

	local, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read local: %v", err)
	}
	if !bytes.Equal(local, []byte(`[]`)) {
		t.Errorf("local content differs: %s", local)
	}
}

func TestPullSkipsWhenLocalMatches(t *testing.T) {
	s, store := newTestSyncer()
	if err := store.Put(context.Background(), "master.json", []byte(`[]`)); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	path := writeLocal(t, t.TempDir(), `[]`)

	downloaded, err := s.Pull(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if downloaded {
		t.Error("matching content must not download")
	}
}

func TestPullMissingRemote(t *testing.T) {
	s, _ := newTestSyncer()
	path := writeLocal(t, t.TempDir(), `[]`)

	_, err := s.Pull(context.Background(), path)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

func TestInMemoryStoreHashMatchesContent(t *testing.T) {
	store := NewInMemoryStore()
	data := []byte(`[{"sourceId":"r:2"}]`)
	if err := store.Put(context.Background(), "k", data); err != nil {
		t.Fatalf("put: %v", err)
	}
	h, err := store.Hash(context.Background(), "k")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h != HashBytes(data) {
		t.Errorf("stored hash %s != computed %s", h, HashBytes(data))
	}
}

func TestInMemoryStoreMissingKey(t *testing.T) {
	store := NewInMemoryStore()
	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound from Get, got %v", err)
	}
	if _, err := store.Hash(context.Background(), "absent"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound from Hash, got %v", err)
	}
}
