package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lorekeep/lorekeep/pkg/archive"
)

// DocumentBackend stores each archive as one JSON document with the entry
// payload inline.
type DocumentBackend struct {
	mu  sync.Mutex
	dir string
}

// NewDocumentBackend creates a document backend rooted at dir.
func NewDocumentBackend(dir string) (*DocumentBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &DocumentBackend{dir: dir}, nil
}

func (b *DocumentBackend) path(id string) string {
	return filepath.Join(b.dir, id+".json")
}

// Create makes a new archive document.
func (b *DocumentBackend) Create(ctx context.Context, sessionID string, sessionStart int64, p *archive.Pass) (*archive.Archive, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := newArchive(sessionID, sessionStart, p)
	if err := b.write(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Append merges a pass into an existing archive document.
func (b *DocumentBackend) Append(ctx context.Context, id string, p *archive.Pass) (*archive.Archive, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, err := b.read(id)
	if err != nil {
		return nil, err
	}
	appendPass(a, p)
	if err := b.write(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Read loads an archive document.
func (b *DocumentBackend) Read(ctx context.Context, id string) (*archive.Archive, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(id)
}

// Delete removes an archive document.
func (b *DocumentBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := os.Remove(b.path(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// List returns all stored archive ids.
func (b *DocumentBackend) List(ctx context.Context) ([]string, error) {
	names, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	var ids []string
	for _, n := range names {
		if n.IsDir() || !strings.HasSuffix(n.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(n.Name(), ".json"))
	}
	return ids, nil
}

// Name returns "document".
func (b *DocumentBackend) Name() string { return "document" }

func (b *DocumentBackend) read(id string) (*archive.Archive, error) {
	data, err := os.ReadFile(b.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", id, err)
	}
	var a archive.Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", id, err)
	}
	return &a, nil
}

// write uses a temp-file rename so a crash never leaves a torn document.
func (b *DocumentBackend) write(a *archive.Archive) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode archive %s: %w", a.ID, err)
	}
	tmp := b.path(a.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write archive %s: %w", a.ID, err)
	}
	return os.Rename(tmp, b.path(a.ID))
}
