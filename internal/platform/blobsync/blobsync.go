// Package blobsync mirrors the consolidated master document to object
// storage. Change detection compares SHA-256 content hashes, so a byte-stable
// no-op re-run of the pipeline never triggers an upload.
package blobsync

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var ErrObjectNotFound = errors.New("object not found")

const contentType = "application/json"

// ---------------------------------------------------------------------------
// ObjectStore interface
// ---------------------------------------------------------------------------

// ObjectStore is the minimal surface the syncer needs from a backend. Put
// implementations record the content hash so Hash can answer without a
// download.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Hash(ctx context.Context, key string) (string, error)
}

// HashBytes returns the hex SHA-256 of data, the hash form both sides of the
// sync compare.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ---------------------------------------------------------------------------
// Syncer
// ---------------------------------------------------------------------------

// Syncer pushes and pulls one local file against one object key.
type Syncer struct {
	store  ObjectStore
	key    string
	logger zerolog.Logger
}

func NewSyncer(store ObjectStore, key string, logger zerolog.Logger) *Syncer {
	return &Syncer{store: store, key: key, logger: logger}
}

// Push uploads the local file unless the remote hash already matches.
// Reports whether an upload happened.
func (s *Syncer) Push(ctx context.Context, localPath string) (bool, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return false, fmt.Errorf("read local file: %w", err)
	}
	localHash := HashBytes(data)

	remoteHash, err := s.store.Hash(ctx, s.key)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return false, fmt.Errorf("stat remote object: %w", err)
	}
	if remoteHash == localHash {
		s.logger.Info().Str("key", s.key).Msg("remote up to date, skipping upload")
		return false, nil
	}

	if err := s.store.Put(ctx, s.key, data); err != nil {
		return false, fmt.Errorf("upload object: %w", err)
	}
	s.logger.Info().Str("key", s.key).Int("bytes", len(data)).Msg("object uploaded")
	return true, nil
}

// Pull downloads the remote object over the local file unless the local hash
// already matches. The local file is replaced atomically. Reports whether a
// download happened.
func (s *Syncer) Pull(ctx context.Context, localPath string) (bool, error) {
	remoteHash, err := s.store.Hash(ctx, s.key)
	if err != nil {
		return false, fmt.Errorf("stat remote object: %w", err)
	}

	if local, err := os.ReadFile(localPath); err == nil {
		if HashBytes(local) == remoteHash {
			s.logger.Info().Str("key", s.key).Msg("local up to date, skipping download")
			return false, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read local file: %w", err)
	}

	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		return false, fmt.Errorf("download object: %w", err)
	}

	if err := replaceFile(localPath, data); err != nil {
		return false, err
	}
	s.logger.Info().Str("key", s.key).Int("bytes", len(data)).Msg("object downloaded")
	return true, nil
}

func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sync-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace local file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedObject struct {
	data []byte
	hash string
}

// InMemoryStore is a thread-safe ObjectStore for testing and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]storedObject
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string]storedObject)}
}

func (s *InMemoryStore) Put(_ context.Context, key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.objects[key] = storedObject{data: cp, hash: HashBytes(cp)}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrObjectNotFound
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, nil
}

func (s *InMemoryStore) Hash(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return "", ErrObjectNotFound
	}
	return obj.hash, nil
}
