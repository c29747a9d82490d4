package session

import (
	"sync"
	"testing"
)

// TestTrackerFreshSession verifies first use yields a new context with a
// start time and no archive link.
func TestTrackerFreshSession(t *testing.T) {
	tr, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}

	sc, err := tr.Load("friday-game")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.ID != "friday-game" {
		t.Errorf("id = %q, want friday-game", sc.ID)
	}
	if sc.Start == 0 {
		t.Error("fresh session has zero start time")
	}
	if sc.ArchiveID != "" {
		t.Errorf("fresh session linked to archive %q", sc.ArchiveID)
	}
}

// TestTrackerRoundtrip verifies saved bookkeeping survives a reload.
func TestTrackerRoundtrip(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker(dir)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}

	want := Context{ID: "friday-game", Start: 1000, LastPass: 5000, ArchiveID: "arc-1"}
	if err := tr.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second tracker over the same directory sees the same state.
	tr2, err := NewTracker(dir)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	got, err := tr2.Load("friday-game")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Errorf("reload = %+v, want %+v", got, want)
	}
}

// TestGuardSingleFlight verifies a second claim on a held session fails
// until the first releases it.
func TestGuardSingleFlight(t *testing.T) {
	g := NewGuard()

	if !g.TryBegin("s1") {
		t.Fatal("first claim refused")
	}
	if g.TryBegin("s1") {
		t.Fatal("second claim on held session succeeded")
	}
	if !g.TryBegin("s2") {
		t.Error("claim on a different session refused")
	}

	g.End("s1")
	if !g.TryBegin("s1") {
		t.Error("claim after release refused")
	}
}

// TestGuardConcurrentClaims verifies exactly one of many racing claims
// wins.
func TestGuardConcurrentClaims(t *testing.T) {
	g := NewGuard()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryBegin("s1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d claims won, want exactly 1", wins)
	}
}
