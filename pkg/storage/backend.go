// Package storage persists archives behind a small backend contract:
// create on first pass, append on later passes, read, and explicit delete.
// Backends are interchangeable; the pipeline never assumes which one holds
// an archive, and a storage failure never invalidates the in-memory pass.
package storage

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeep/lorekeep/pkg/aggregate"
	"github.com/lorekeep/lorekeep/pkg/archive"
)

// Backend stores archives. Implementations exist for local JSON documents,
// flat entry files with a lightweight index, Redis, and S3.
type Backend interface {
	// Create makes a new archive from the first pass of a session and
	// returns its handle.
	Create(ctx context.Context, sessionID string, sessionStart int64, p *archive.Pass) (*archive.Archive, error)

	// Append merges a later pass into an existing archive.
	Append(ctx context.Context, id string, p *archive.Pass) (*archive.Archive, error)

	// Read loads an archive by handle.
	Read(ctx context.Context, id string) (*archive.Archive, error)

	// Delete removes an archive. Archives are deleted only explicitly.
	Delete(ctx context.Context, id string) error

	// List returns the handles of all stored archives.
	List(ctx context.Context) ([]string, error)

	// Name identifies the backend for logging.
	Name() string
}

// ErrNotFound is returned for unknown archive handles.
var ErrNotFound = os.ErrNotExist

// newArchive builds the initial archive for a session's first pass.
func newArchive(sessionID string, sessionStart int64, p *archive.Pass) *archive.Archive {
	now := time.Now().UnixMilli()
	a := &archive.Archive{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		SessionStart: sessionStart,
		CreatedAt:    now,
	}
	aggregate.Append(a, p, now)
	return a
}

// appendPass merges a pass into a loaded archive.
func appendPass(a *archive.Archive, p *archive.Pass) {
	aggregate.Append(a, p, time.Now().UnixMilli())
}
