// Package session tracks the accumulation scope of one archive: the
// current session identity, its start time, and the timestamp of the last
// compression pass. Session start/end lifecycle is owned by the caller;
// this package only reads identity and writes back pass bookkeeping.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Context is the session identity threaded through a compression pass.
type Context struct {
	ID       string `json:"id"`
	Start    int64  `json:"start"`
	LastPass int64  `json:"lastPass"`

	// ArchiveID links the session to its archive after the first pass.
	ArchiveID string `json:"archiveId,omitempty"`
}

// Tracker persists session contexts as JSON sidecar files, one per
// session, under a state directory.
type Tracker struct {
	mu  sync.Mutex
	dir string
}

// NewTracker creates a tracker rooted at dir.
func NewTracker(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Tracker{dir: dir}, nil
}

// Load reads a session context, creating a fresh one on first use.
func (t *Tracker) Load(sessionID string) (Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path(sessionID))
	if os.IsNotExist(err) {
		return Context{ID: sessionID, Start: time.Now().UnixMilli()}, nil
	}
	if err != nil {
		return Context{}, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	var sc Context
	if err := json.Unmarshal(data, &sc); err != nil {
		return Context{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return sc, nil
}

// Save writes a session context back.
func (t *Tracker) Save(sc Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sc.ID, err)
	}
	tmp := t.path(sc.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", sc.ID, err)
	}
	return os.Rename(tmp, t.path(sc.ID))
}

func (t *Tracker) path(sessionID string) string {
	return filepath.Join(t.dir, sessionID+".json")
}

// Guard is the session-scoped single-flight lock: at most one compression
// pass per session at a time. A second trigger while one runs is a no-op,
// never a queued retry.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

// NewGuard creates a guard.
func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]bool)}
}

// TryBegin claims the session for a pass. False means a pass is already in
// flight and the trigger should be dropped.
func (g *Guard) TryBegin(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[sessionID] {
		return false
	}
	g.inFlight[sessionID] = true
	return true
}

// End releases the session.
func (g *Guard) End(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, sessionID)
}
