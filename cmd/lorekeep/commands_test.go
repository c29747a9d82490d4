package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/config"
	lkerrors "github.com/lorekeep/lorekeep/pkg/errors"
	"github.com/lorekeep/lorekeep/pkg/session"
	"github.com/lorekeep/lorekeep/pkg/storage"
)

// failingBackend rejects every write so the storage-outage path can be
// exercised without a real backend.
type failingBackend struct{ err error }

func (b *failingBackend) Create(ctx context.Context, sessionID string, sessionStart int64, p *archive.Pass) (*archive.Archive, error) {
	return nil, b.err
}

func (b *failingBackend) Append(ctx context.Context, id string, p *archive.Pass) (*archive.Archive, error) {
	return nil, b.err
}

func (b *failingBackend) Read(ctx context.Context, id string) (*archive.Archive, error) {
	return nil, storage.ErrNotFound
}

func (b *failingBackend) Delete(ctx context.Context, id string) error { return b.err }

func (b *failingBackend) List(ctx context.Context) ([]string, error) { return nil, nil }

func (b *failingBackend) Name() string { return "failing" }

// TestRunPassRescuesOnStorageFailure verifies a computed pass survives a
// storage outage: the result lands in a JSON sidecar under the session
// directory and the session tracker stays untouched so a retry re-feeds
// the same batch.
func TestRunPassRescuesOnStorageFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Session.Dir = dir

	tracker, err := session.NewTracker(dir)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	sc := session.Context{ID: "s1"}

	records := []model.EventRecord{
		{ID: "m1", Timestamp: 1000, Author: "Valeria", Body: "We enter the cave"},
		{ID: "m2", Timestamp: 2000, Author: "Brom", Body: "I light a torch"},
	}
	backend := &failingBackend{err: fmt.Errorf("backend down")}

	_, _, err = runPass(context.Background(), cfg, backend, tracker, &sc, records)
	if err == nil {
		t.Fatal("expected storage error")
	}
	if got := lkerrors.GetCode(err); got != lkerrors.CodeStorageCreate {
		t.Errorf("error code = %s, want %s", got, lkerrors.CodeStorageCreate)
	}

	sidecars, err := filepath.Glob(filepath.Join(dir, "s1-pass-*.json"))
	if err != nil || len(sidecars) != 1 {
		t.Fatalf("sidecars = %v (%v), want exactly one", sidecars, err)
	}
	data, err := os.ReadFile(sidecars[0])
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	var rescued archive.Pass
	if err := json.Unmarshal(data, &rescued); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	if rescued.OriginalMessageCount != len(records) {
		t.Errorf("rescued original count = %d, want %d", rescued.OriginalMessageCount, len(records))
	}
	if rescued.CompressedEntryCount != len(rescued.Entries) || len(rescued.Entries) == 0 {
		t.Errorf("rescued entries = %d (count %d), want a non-empty consistent set",
			len(rescued.Entries), rescued.CompressedEntryCount)
	}

	// The tracker file would be dir/s1.json; its absence means the
	// session still points at the pre-failure state.
	if _, err := os.Stat(filepath.Join(dir, "s1.json")); !os.IsNotExist(err) {
		t.Errorf("tracker saved despite storage failure (stat err = %v)", err)
	}
	if sc.ArchiveID != "" {
		t.Errorf("archive id = %q, want empty after failed create", sc.ArchiveID)
	}
}

// TestBeginPassContended verifies a second trigger for an in-flight
// session is dropped without an error, and the slot reopens after End.
func TestBeginPassContended(t *testing.T) {
	const id = "contended-session"
	if !beginPass(id) {
		t.Fatal("first claim refused")
	}
	if beginPass(id) {
		t.Error("second claim succeeded while a pass was in flight")
	}
	passGuard.End(id)
	if !beginPass(id) {
		t.Error("claim refused after the previous pass ended")
	}
	passGuard.End(id)
}
