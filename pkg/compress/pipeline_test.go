package compress

import (
	"context"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/classify"
	"github.com/lorekeep/lorekeep/pkg/combat"
)

func defaultOpts() Options {
	return Options{EnableCombatCompression: true}
}

// TestRunEmptyBatch verifies an empty batch yields an empty pass, not an
// error.
func TestRunEmptyBatch(t *testing.T) {
	p := New(combat.Roster{})
	pass, err := p.Run(context.Background(), nil, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pass.OriginalMessageCount != 0 || pass.CompressedEntryCount != 0 || len(pass.Entries) != 0 {
		t.Errorf("expected empty pass, got %+v", pass)
	}
}

// TestRunCompleteness verifies every input record lands in exactly one
// entry.
func TestRunCompleteness(t *testing.T) {
	records := []model.EventRecord{
		{ID: "m1", Timestamp: 1000, Author: "Valeria", Body: "We enter the cave", Style: model.StyleInCharacter},
		{ID: "m2", Timestamp: 2000, Author: "GM", Body: "Roll initiative!"},
		{ID: "m3", Timestamp: 3000, Author: "Valeria", Body: "Attack vs Goblin",
			Rolls: []model.Roll{{Formula: "1d20+7", Total: 22,
				Terms: []model.RollTerm{{Faces: 20, Count: 1, Value: 15, Results: []int{15}}}}}},
		{ID: "m4", Timestamp: 4000, Author: "GM", Body: "Combat ended"},
		{ID: "m5", Timestamp: 5000, Author: "Brom", Body: "I loot the goblin, 20 gold"},
		{ID: "m6", Timestamp: 6000, Author: "GM", Body: "Critical hit! The ogre reels"},
	}

	p := New(combat.Roster{"Valeria": true, "Brom": true})
	pass, err := p.Run(context.Background(), records, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]int)
	for _, e := range pass.Entries {
		for _, id := range e.RecordIDs {
			seen[id]++
		}
	}
	for _, rec := range records {
		if seen[rec.ID] != 1 {
			t.Errorf("record %s appears in %d entries, want exactly 1", rec.ID, seen[rec.ID])
		}
	}
	if len(seen) != len(records) {
		t.Errorf("consumed %d distinct records, want %d", len(seen), len(records))
	}
	if pass.OriginalMessageCount != len(records) {
		t.Errorf("original count = %d, want %d", pass.OriginalMessageCount, len(records))
	}
}

// TestRunCombatCollapse verifies a long combat episode collapses into a
// single summary entry with the expected ratio.
func TestRunCombatCollapse(t *testing.T) {
	var records []model.EventRecord
	records = append(records, model.EventRecord{
		ID: "c0", Timestamp: 0, Author: "GM", Body: "Roll initiative!",
	})
	for i := 1; i <= 45; i++ {
		records = append(records, model.EventRecord{
			ID:        fmt.Sprintf("c%d", i),
			Timestamp: int64(i * 1000),
			Author:    "Valeria",
			Body:      "Attack vs Goblin",
			Rolls: []model.Roll{{Formula: "1d20+7", Total: 18,
				Terms: []model.RollTerm{{Faces: 20, Count: 1, Value: 11, Results: []int{11}}}}},
		})
	}
	records = append(records, model.EventRecord{
		ID: "c46", Timestamp: 46_000, Author: "GM", Body: "Combat ended",
	})
	if len(records) != 47 {
		t.Fatalf("scenario should have 47 records, has %d", len(records))
	}

	p := New(combat.Roster{"Valeria": true})
	pass, err := p.Run(context.Background(), records, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pass.Entries) != 1 {
		t.Fatalf("entries = %d, want 1 combat summary", len(pass.Entries))
	}
	e := pass.Entries[0]
	if e.Kind != archive.KindCombatSummary {
		t.Errorf("kind = %s, want combat summary", e.Kind)
	}
	if len(e.RecordIDs) != 47 {
		t.Errorf("record ids = %d, want 47", len(e.RecordIDs))
	}
	if got := pass.Ratio(); got != 98 {
		t.Errorf("ratio = %d, want 98", got)
	}
}

// TestRunCombatCompressionDisabled verifies combat records flow through as
// individual entries when encounter detection is off.
func TestRunCombatCompressionDisabled(t *testing.T) {
	records := []model.EventRecord{
		{ID: "d1", Timestamp: 0, Author: "GM", Body: "Roll initiative!"},
		{ID: "d2", Timestamp: 1000, Author: "Valeria", Body: "Attack vs Goblin"},
		{ID: "d3", Timestamp: 2000, Author: "GM", Body: "Combat ended"},
	}
	p := New(combat.Roster{})
	pass, err := p.Run(context.Background(), records, Options{EnableCombatCompression: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pass.Entries) != 3 {
		t.Errorf("entries = %d, want 3 individual entries", len(pass.Entries))
	}
	for _, e := range pass.Entries {
		if e.Kind != archive.KindIndividual {
			t.Errorf("kind = %s, want individual", e.Kind)
		}
	}
}

// TestRunEntriesSortedByTimestamp verifies output ordering.
func TestRunEntriesSortedByTimestamp(t *testing.T) {
	records := []model.EventRecord{
		{ID: "s1", Timestamp: 1000, Body: "hello there"},
		{ID: "s2", Timestamp: 2000, Body: "Critical hit!"},
		{ID: "s3", Timestamp: 3000, Body: "more chatter"},
	}
	p := New(combat.Roster{})
	pass, err := p.Run(context.Background(), records, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var last int64
	for _, e := range pass.Entries {
		if e.Timestamp < last {
			t.Fatalf("entries out of order at %s", e.ID)
		}
		last = e.Timestamp
	}
}

// TestRunPreserveItemTransfers verifies the option promotes item records to
// key events.
func TestRunPreserveItemTransfers(t *testing.T) {
	records := []model.EventRecord{
		{ID: "i1", Timestamp: 1000, Author: "Brom", Body: "Brom pockets a strange item"},
	}
	p := New(combat.Roster{})

	plain, err := p.Run(context.Background(), records, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plain.Entries[0].KeyEvent {
		t.Error("item record key-evented without the option")
	}

	opts := defaultOpts()
	opts.PreserveItemTransfers = true
	promoted, err := p.Run(context.Background(), records, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !promoted.Entries[0].KeyEvent {
		t.Error("item record not promoted with PreserveItemTransfers")
	}
}

// TestRunRollEntryCarriesRecreation verifies roll entries keep recreation
// data.
func TestRunRollEntryCarriesRecreation(t *testing.T) {
	records := []model.EventRecord{
		{ID: "r1", Timestamp: 1000, Author: "Valeria", Body: "Athletics check",
			Rolls: []model.Roll{{Formula: "1d20+5", Total: 17,
				Terms: []model.RollTerm{{Faces: 20, Count: 1, Value: 12, Results: []int{12}}}}}},
	}
	p := New(combat.Roster{})
	pass, err := p.Run(context.Background(), records, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := pass.Entries[0]
	if e.Recreation == nil {
		t.Fatal("roll entry missing recreation data")
	}
	if e.Recreation.Formula != "1d20+5" {
		t.Errorf("formula = %q, want 1d20+5", e.Recreation.Formula)
	}
	if e.Recreation.Actor != "Valeria" {
		t.Errorf("actor = %q, want Valeria", e.Recreation.Actor)
	}
	if !e.Has(classify.CategoryRoll) {
		t.Errorf("categories = %v, want roll", e.Categories)
	}
}

// TestRunRecordsStageSpans verifies a pass emits tracing spans for each
// stage on the active tracer provider.
func TestRunRecordsStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	records := []model.EventRecord{
		{ID: "t1", Timestamp: 1000, Author: "Valeria", Body: "We camp for the night"},
		{ID: "t2", Timestamp: 2000, Author: "GM", Body: "The night passes quietly"},
	}
	p := New(combat.Roster{"Valeria": true})
	if _, err := p.Run(context.Background(), records, defaultOpts()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := make(map[string]bool)
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{"compress.pass", "compress.analyze", "compress.classify", "compress.build"} {
		if !names[want] {
			t.Errorf("missing span %q, recorded %v", want, names)
		}
	}
}

// TestRunEntriesShareNoState verifies embedded records are deep copies.
func TestRunEntriesShareNoState(t *testing.T) {
	records := []model.EventRecord{
		{ID: "x1", Timestamp: 1000, Author: "Brom", Body: "hello",
			Annotations: map[string]any{"k": "v"}},
	}
	p := New(combat.Roster{})
	pass, err := p.Run(context.Background(), records, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records[0].Annotations["k"] = "mutated"
	if got := pass.Entries[0].Record.Annotation("k"); got != "v" {
		t.Errorf("embedded record shares annotation map with input: %q", got)
	}
}
