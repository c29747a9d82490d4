package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lorekeep/lorekeep/pkg/archive"
)

// FlatFileBackend stores entries in a separate JSONL flat file referenced
// by a lightweight index record. Readers that only need metadata never
// touch the entry payload.
type FlatFileBackend struct {
	mu  sync.Mutex
	dir string
}

// flatIndex is the lightweight index record: the archive minus entries,
// plus a pointer to the entries file.
type flatIndex struct {
	archive.Archive
	EntriesFile string `json:"entriesFile"`
}

// NewFlatFileBackend creates a flat-file backend rooted at dir.
func NewFlatFileBackend(dir string) (*FlatFileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FlatFileBackend{dir: dir}, nil
}

func (b *FlatFileBackend) indexPath(id string) string {
	return filepath.Join(b.dir, id+".index.json")
}

func (b *FlatFileBackend) entriesPath(id string) string {
	return filepath.Join(b.dir, id+".entries.jsonl")
}

// Create makes a new archive as index + entries file.
func (b *FlatFileBackend) Create(ctx context.Context, sessionID string, sessionStart int64, p *archive.Pass) (*archive.Archive, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := newArchive(sessionID, sessionStart, p)
	if err := b.write(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Append merges a pass into an existing archive.
func (b *FlatFileBackend) Append(ctx context.Context, id string, p *archive.Pass) (*archive.Archive, error) {
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

// Read loads index and entries back into one archive.
func (b *FlatFileBackend) Read(ctx context.Context, id string) (*archive.Archive, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(id)
}

// Delete removes index and entries file.
func (b *FlatFileBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := os.Remove(b.indexPath(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := os.Remove(b.entriesPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all stored archive ids.
func (b *FlatFileBackend) List(ctx context.Context) ([]string, error) {
	names, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	var ids []string
	for _, n := range names {
		if strings.HasSuffix(n.Name(), ".index.json") {
			ids = append(ids, strings.TrimSuffix(n.Name(), ".index.json"))
		}
	}
	return ids, nil
}

// Name returns "flatfile".
func (b *FlatFileBackend) Name() string { return "flatfile" }

func (b *FlatFileBackend) read(id string) (*archive.Archive, error) {
	data, err := os.ReadFile(b.indexPath(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read archive index %s: %w", id, err)
	}
	var ix flatIndex
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("decode archive index %s: %w", id, err)
	}

	a := ix.Archive
	f, err := os.Open(b.entriesPath(id))
	if err != nil {
		return nil, fmt.Errorf("open entries %s: %w", id, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e archive.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode entry in %s: %w", id, err)
		}
		a.Entries = append(a.Entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan entries %s: %w", id, err)
	}
	return &a, nil
}

func (b *FlatFileBackend) write(a *archive.Archive) error {
	// Entries file first, then the index that references it.
	tmp := b.entriesPath(a.ID) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write entries %s: %w", a.ID, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range a.Entries {
		if err := enc.Encode(&a.Entries[i]); err != nil {
			f.Close()
			return fmt.Errorf("encode entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.entriesPath(a.ID)); err != nil {
		return err
	}

	ix := flatIndex{Archive: *a, EntriesFile: filepath.Base(b.entriesPath(a.ID))}
	ix.Entries = nil
	data, err := json.MarshalIndent(&ix, "", "  ")
	if err != nil {
		return fmt.Errorf("encode archive index %s: %w", a.ID, err)
	}
	tmpIx := b.indexPath(a.ID) + ".tmp"
	if err := os.WriteFile(tmpIx, data, 0o644); err != nil {
		return fmt.Errorf("write archive index %s: %w", a.ID, err)
	}
	return os.Rename(tmpIx, b.indexPath(a.ID))
}
