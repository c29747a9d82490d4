package aggregate

import (
	"reflect"
	"testing"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/classify"
	"github.com/lorekeep/lorekeep/pkg/combat"
)

// makePass builds a pass from entries with self-consistent statistics,
// index, and counts.
func makePass(entries ...archive.Entry) *archive.Pass {
	records := 0
	for _, e := range entries {
		records += len(e.RecordIDs)
	}
	stats, index := Compute(entries)
	return &archive.Pass{
		Entries:              entries,
		Statistics:           stats,
		Index:                index,
		OriginalMessageCount: records,
		CompressedEntryCount: len(entries),
	}
}

func speechEntry(id string, ts int64, author, text string, recordIDs ...string) archive.Entry {
	return archive.Entry{
		ID:          id,
		Kind:        archive.KindIndividual,
		Categories:  []string{classify.CategorySpeech},
		Timestamp:   ts,
		DisplayText: author + ": " + text,
		RecordIDs:   recordIDs,
		Record:      &model.EventRecord{ID: recordIDs[0], Timestamp: ts, Author: author, Body: text},
	}
}

// TestAppendFirstPass verifies the first append seeds counts, consumed
// ids, and the ratio from scratch.
func TestAppendFirstPass(t *testing.T) {
	a := &archive.Archive{ID: "a1", SessionID: "s1"}
	p := makePass(
		speechEntry("e1", 1000, "Valeria", "We enter the cave", "m1"),
		speechEntry("e2", 2000, "Brom", "I light a torch", "m2", "m3"),
	)

	Append(a, p, 9000)

	if a.OriginalMessageCount != 3 || a.CompressedEntryCount != 2 {
		t.Fatalf("counts = %d/%d, want 3/2", a.OriginalMessageCount, a.CompressedEntryCount)
	}
	if a.CompressionRatio != 33 {
		t.Errorf("ratio = %d, want 33", a.CompressionRatio)
	}
	if want := []string{"m1", "m2", "m3"}; !reflect.DeepEqual(a.ConsumedRecordIDs, want) {
		t.Errorf("consumed = %v, want %v", a.ConsumedRecordIDs, want)
	}
	if a.UpdatedAt != 9000 {
		t.Errorf("updatedAt = %d, want 9000", a.UpdatedAt)
	}
}

// TestAppendIdempotentRetry verifies re-appending an already-consumed
// pass leaves the archive untouched.
func TestAppendIdempotentRetry(t *testing.T) {
	a := &archive.Archive{ID: "a1", SessionID: "s1"}
	p := makePass(
		speechEntry("e1", 1000, "Valeria", "We enter the cave", "m1"),
		speechEntry("e2", 2000, "Brom", "I light a torch", "m2"),
	)

	Append(a, p, 5000)
	before := *a
	beforeConsumed := append([]string(nil), a.ConsumedRecordIDs...)

	Append(a, p, 6000)

	if a.OriginalMessageCount != before.OriginalMessageCount ||
		a.CompressedEntryCount != before.CompressedEntryCount ||
		len(a.Entries) != len(before.Entries) {
		t.Errorf("retry changed counts: %d/%d entries %d", a.OriginalMessageCount, a.CompressedEntryCount, len(a.Entries))
	}
	if a.UpdatedAt != 5000 {
		t.Errorf("retry bumped updatedAt to %d", a.UpdatedAt)
	}
	if !reflect.DeepEqual(a.ConsumedRecordIDs, beforeConsumed) {
		t.Errorf("retry changed consumed ids: %v", a.ConsumedRecordIDs)
	}
}

// TestAppendPartialOverlap verifies a retry that carries one old and one
// new entry lands only the new one, with statistics recounted over what
// actually landed.
func TestAppendPartialOverlap(t *testing.T) {
	a := &archive.Archive{ID: "a1", SessionID: "s1"}
	old := speechEntry("e1", 1000, "Valeria", "We enter the cave", "m1")
	Append(a, makePass(old), 5000)

	fresh := speechEntry("e2", 2000, "Brom", "Critical hit on the ogre", "m2")
	fresh.KeyEvent = true
	Append(a, makePass(old, fresh), 6000)

	if a.OriginalMessageCount != 2 || a.CompressedEntryCount != 2 {
		t.Fatalf("counts = %d/%d, want 2/2", a.OriginalMessageCount, a.CompressedEntryCount)
	}
	if a.Statistics.KeyEvents != 1 {
		t.Errorf("keyEvents = %d, want 1", a.Statistics.KeyEvents)
	}
	if a.Statistics.CriticalSuccesses != 1 {
		t.Errorf("criticalSuccesses = %d, want 1", a.Statistics.CriticalSuccesses)
	}
	if want := []string{"m1", "m2"}; !reflect.DeepEqual(a.ConsumedRecordIDs, want) {
		t.Errorf("consumed = %v, want %v", a.ConsumedRecordIDs, want)
	}
}

// TestAppendKeepsEntriesSorted verifies a later pass with earlier
// timestamps interleaves into chronological order.
func TestAppendKeepsEntriesSorted(t *testing.T) {
	a := &archive.Archive{ID: "a1", SessionID: "s1"}
	Append(a, makePass(
		speechEntry("e1", 3000, "Valeria", "Third", "m1"),
		speechEntry("e2", 5000, "Brom", "Fifth", "m2"),
	), 100)
	Append(a, makePass(
		speechEntry("e3", 1000, "GM", "First", "m3"),
		speechEntry("e4", 4000, "GM", "Fourth", "m4"),
	), 200)

	var last int64 = -1
	for _, e := range a.Entries {
		if e.Timestamp < last {
			t.Fatalf("entries out of order at %s: %d < %d", e.ID, e.Timestamp, last)
		}
		last = e.Timestamp
	}
}

// TestAppendRecomputesRatio verifies the ratio reflects accumulated
// totals rather than the latest pass alone.
func TestAppendRecomputesRatio(t *testing.T) {
	a := &archive.Archive{ID: "a1", SessionID: "s1"}

	// One summary over nine records: 9 -> 1.
	summary := archive.Entry{
		ID: "e1", Kind: archive.KindCombatSummary, Timestamp: 1000,
		Categories: []string{classify.CategoryCombat},
		RecordIDs:  []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9"},
		Combat:     &combat.Encounter{Title: "Goblin Fight"},
	}
	Append(a, makePass(summary), 100)
	if a.CompressionRatio != 89 {
		t.Fatalf("ratio after first pass = %d, want 89", a.CompressionRatio)
	}

	// A 1 -> 1 pass drags the cumulative ratio down to 10 -> 2.
	Append(a, makePass(speechEntry("e2", 2000, "Brom", "Phew", "m10")), 200)
	if a.CompressionRatio != 80 {
		t.Errorf("ratio after second pass = %d, want 80", a.CompressionRatio)
	}
}

// TestComputeStatistics verifies the single-pass counters over a mixed
// entry set.
func TestComputeStatistics(t *testing.T) {
	fumble := speechEntry("e2", 2000, "Brom", "Fumble! The axe slips", "m2")
	fumble.Record.Annotations = map[string]any{model.AnnOutcome: "criticalFailure"}

	crit := speechEntry("e3", 3000, "Valeria", "Critical hit!", "m3")
	crit.KeyEvent = true

	loot := speechEntry("e4", 4000, "GM", "Valeria receives the silver dagger", "m4")
	loot.Categories = []string{classify.CategoryItems}

	xp := speechEntry("e5", 5000, "GM", "The party gains 400 XP", "m5")

	roll := speechEntry("e6", 6000, "Valeria", "Stealth check", "m6")
	roll.Categories = []string{classify.CategoryRoll}
	roll.Recreation = &archive.RollRecreation{Formula: "1d20+4", Actor: "Valeria"}

	entries := []archive.Entry{
		{ID: "e1", Kind: archive.KindCombatSummary, Timestamp: 1000,
			Categories: []string{classify.CategoryCombat},
			RecordIDs:  []string{"m1"},
			Combat:     &combat.Encounter{Title: "Goblin Fight", Participants: []string{"Valeria", "Goblin"}}},
		fumble, crit, loot, xp, roll,
	}

	stats, index := Compute(entries)

	if stats.Encounters != 1 {
		t.Errorf("encounters = %d, want 1", stats.Encounters)
	}
	if stats.Rolls != 1 {
		t.Errorf("rolls = %d, want 1", stats.Rolls)
	}
	if stats.CriticalSuccesses != 1 || stats.CriticalFailures != 1 {
		t.Errorf("criticals = %d/%d, want 1/1", stats.CriticalSuccesses, stats.CriticalFailures)
	}
	if stats.ItemTransfers != 1 {
		t.Errorf("itemTransfers = %d, want 1", stats.ItemTransfers)
	}
	if stats.XPEvents != 1 {
		t.Errorf("xpEvents = %d, want 1", stats.XPEvents)
	}
	if stats.KeyEvents != 1 {
		t.Errorf("keyEvents = %d, want 1", stats.KeyEvents)
	}

	if !contains(index.Actors, "Valeria") || !contains(index.Actors, "Brom") {
		t.Errorf("actors missing authors: %v", index.Actors)
	}
	if !contains(index.Keywords, "critical") {
		t.Errorf("keywords missing domain term: %v", index.Keywords)
	}
	if ids := index.ByType[classify.CategoryRoll]; len(ids) != 1 || ids[0] != "e6" {
		t.Errorf("byType[roll] = %v, want [e6]", ids)
	}
}

// TestComputeEncounterCriticals verifies criticals absorbed into an
// encounter summary still reach the archive-level counters, via the
// per-action flags rather than the summary text.
func TestComputeEncounterCriticals(t *testing.T) {
	enc := &combat.Encounter{
		Start: 1000,
		Title: "Ogre Fight",
		Rounds: []combat.Round{
			{Number: 1, Actions: []combat.Action{
				{Actor: "Valeria", Kind: combat.ActionAttack, Critical: true},
				{Actor: "Ogre", Kind: combat.ActionAttack},
			}},
			{Number: 2, Actions: []combat.Action{
				{Actor: "Brom", Kind: combat.ActionSave, Fumble: true},
			}},
		},
		RecordIDs: []string{"m1", "m2", "m3"},
	}
	stats, _ := Compute([]archive.Entry{{
		ID:          "e1",
		Kind:        archive.KindCombatSummary,
		Categories:  []string{classify.CategoryCombat},
		Timestamp:   1000,
		DisplayText: "Ogre Fight: 2 rounds",
		RecordIDs:   enc.RecordIDs,
		KeyEvent:    true,
		Combat:      enc,
	}})

	if stats.CriticalSuccesses != 1 {
		t.Errorf("criticalSuccesses = %d, want 1", stats.CriticalSuccesses)
	}
	if stats.CriticalFailures != 1 {
		t.Errorf("criticalFailures = %d, want 1", stats.CriticalFailures)
	}
	if stats.Encounters != 1 {
		t.Errorf("encounters = %d, want 1", stats.Encounters)
	}
}

// TestComputeScenes verifies scene phrases land in the scene index.
func TestComputeScenes(t *testing.T) {
	_, index := Compute([]archive.Entry{
		speechEntry("e1", 1000, "GM", "The party arrives at Ravenhollow Keep", "m1"),
	})
	if !contains(index.Scenes, "Ravenhollow Keep") {
		t.Errorf("scenes = %v, want Ravenhollow Keep", index.Scenes)
	}
}

// TestMergeIndexUnion verifies keyword and id sets union without
// duplicates.
func TestMergeIndexUnion(t *testing.T) {
	a := archive.SearchIndex{
		Keywords: []string{"attack", "damage"},
		Actors:   []string{"Brom"},
		ByType:   map[string][]string{"roll": {"e1"}},
	}
	b := archive.SearchIndex{
		Keywords: []string{"damage", "spell"},
		Actors:   []string{"Brom", "Valeria"},
		Scenes:   []string{"Ravenhollow Keep"},
		ByType:   map[string][]string{"roll": {"e1", "e2"}, "speech": {"e3"}},
	}

	out := MergeIndex(a, b)

	if want := []string{"attack", "damage", "spell"}; !reflect.DeepEqual(out.Keywords, want) {
		t.Errorf("keywords = %v, want %v", out.Keywords, want)
	}
	if want := []string{"Brom", "Valeria"}; !reflect.DeepEqual(out.Actors, want) {
		t.Errorf("actors = %v, want %v", out.Actors, want)
	}
	if want := []string{"e1", "e2"}; !reflect.DeepEqual(out.ByType["roll"], want) {
		t.Errorf("byType[roll] = %v, want %v", out.ByType["roll"], want)
	}
	if want := []string{"e3"}; !reflect.DeepEqual(out.ByType["speech"], want) {
		t.Errorf("byType[speech] = %v, want %v", out.ByType["speech"], want)
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
