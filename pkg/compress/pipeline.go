// Package compress orchestrates one compression pass: classification feeds
// the encounter detector, detector output and classifier output merge into
// archive entries, and the aggregator computes statistics and the search
// index over the result.
//
// A pass is batch-synchronous. Roll analysis fans out across a worker pool
// (it is a pure per-record function); everything temporal stays sequential.
package compress

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/aggregate"
	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/classify"
	"github.com/lorekeep/lorekeep/pkg/combat"
	"github.com/lorekeep/lorekeep/pkg/roll"
	"github.com/lorekeep/lorekeep/pkg/telemetry"
)

// Options carries the caller-supplied context for one pass.
type Options struct {
	// ActiveCombat marks combat as already active when the batch begins.
	ActiveCombat bool

	// PreserveItemTransfers promotes item-transfer records to the
	// highlight list.
	PreserveItemTransfers bool

	// EnableCombatCompression turns encounter detection on. When false,
	// combat records flow through as individual entries.
	EnableCombatCompression bool
}

// Pipeline runs compression passes. Safe to reuse across passes; each call
// to Run is independent.
type Pipeline struct {
	roster  combat.Roster
	timeout time.Duration
	workers int
}

// New creates a pipeline. The roster resolves player-controlled names for
// damage attribution and outcome calls.
func New(roster combat.Roster) *Pipeline {
	return &Pipeline{
		roster:  roster,
		timeout: combat.DefaultInactivityTimeout,
		workers: runtime.NumCPU(),
	}
}

// SetCombatTimeout overrides the encounter inactivity timeout.
func (p *Pipeline) SetCombatTimeout(d time.Duration) { p.timeout = d }

// SetWorkers overrides the analysis pool size. Zero or negative keeps the
// CPU-count default.
func (p *Pipeline) SetWorkers(n int) {
	if n > 0 {
		p.workers = n
	}
}

// Run executes one pass over a time-ordered batch. An empty batch yields
// an empty pass, not an error. A malformed record degrades to a generic
// individual entry; it never aborts the batch.
func (p *Pipeline) Run(ctx context.Context, records []model.EventRecord, opts Options) (*archive.Pass, error) {
	ctx, span := telemetry.StartSpan(ctx, "compress.pass")
	defer span.End()
	telemetry.SetSpanAttributes(ctx, attribute.Int("records.count", len(records)))

	pass := &archive.Pass{OriginalMessageCount: len(records)}
	if len(records) == 0 {
		return pass, nil
	}

	analyses, err := p.analyzeAll(ctx, records)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	det := combat.NewDetector(p.roster)
	det.SetTimeout(p.timeout)

	// Sequential walk: the session-level combat flag evolves with the
	// detector, and the detector depends on strict temporal order.
	_, clSpan := telemetry.StartSpan(ctx, "compress.classify")
	results := make([]classify.Result, len(records))
	for i := range records {
		rec := &records[i]
		cctx := classify.Context{ActiveCombat: opts.ActiveCombat || det.Active()}
		results[i] = safeClassify(rec, analyses[i], cctx)

		if !opts.EnableCombatCompression {
			continue
		}
		// While an encounter is open every record belongs to it until the
		// end signal or the timeout; while idle only a start signal is
		// interesting.
		if det.Active() || combat.IsStartSignal(rec, analyses[i]) {
			det.Observe(rec, analyses[i])
		}
	}
	clSpan.End()

	var encounters []*combat.Encounter
	if opts.EnableCombatCompression {
		encounters = det.Flush()
	}

	buildCtx, buildSpan := telemetry.StartSpan(ctx, "compress.build")
	entries := p.buildEntries(records, analyses, results, encounters, opts)
	pass.Entries = entries
	pass.CompressedEntryCount = len(entries)
	pass.Statistics, pass.Index = aggregate.Compute(entries)
	telemetry.SetSpanAttributes(buildCtx,
		attribute.Int("entries.count", len(entries)),
		attribute.Int("encounters.count", len(encounters)),
	)
	buildSpan.End()

	telemetry.SetSpanAttributes(ctx, attribute.Int("pass.ratio", pass.Ratio()))
	return pass, nil
}

// analyzeAll runs roll analysis across a worker pool, order-preserving.
func (p *Pipeline) analyzeAll(ctx context.Context, records []model.EventRecord) ([]*roll.Analysis, error) {
	ctx, span := telemetry.StartSpan(ctx, "compress.analyze")
	defer span.End()

	analyses := make([]*roll.Analysis, len(records))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range records {
		i := i
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			analyses[i], _ = roll.Analyze(&records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("roll analysis: %w", err)
	}
	return analyses, nil
}

// safeClassify degrades a record that blows up classification to the
// generic bucket instead of aborting the batch.
func safeClassify(rec *model.EventRecord, analysis *roll.Analysis, cctx classify.Context) (res classify.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = classify.Result{Categories: []string{classify.CategoryAll}}
		}
	}()
	return classify.Classify(rec, analysis, cctx)
}

// buildEntries merges detector output with classifier output, enforcing
// the completeness invariant: every input record lands in exactly one
// entry.
func (p *Pipeline) buildEntries(
	records []model.EventRecord,
	analyses []*roll.Analysis,
	results []classify.Result,
	encounters []*combat.Encounter,
	opts Options,
) []archive.Entry {
	consumed := make(map[string]bool)
	var entries []archive.Entry

	for _, enc := range encounters {
		entries = append(entries, combatEntry(enc))
		for _, id := range enc.RecordIDs {
			consumed[id] = true
		}
	}

	// Critical records first, then everything else, both in input order.
	for pass := 0; pass < 2; pass++ {
		for i := range records {
			rec := &records[i]
			if consumed[rec.ID] {
				continue
			}
			critical := results[i].IsCritical
			if (pass == 0) != critical {
				continue
			}
			entries = append(entries, p.individualEntry(rec, analyses[i], results[i], opts))
			consumed[rec.ID] = true
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
	return entries
}

func combatEntry(enc *combat.Encounter) archive.Entry {
	return archive.Entry{
		ID:          uuid.NewString(),
		Kind:        archive.KindCombatSummary,
		Categories:  []string{classify.CategoryCombat},
		Timestamp:   enc.Start,
		DisplayText: combatDisplayText(enc),
		RecordIDs:   append([]string(nil), enc.RecordIDs...),
		KeyEvent:    len(enc.Casualties) > 0 || enc.Stats.CriticalCount > 0,
		Combat:      enc,
	}
}

func (p *Pipeline) individualEntry(rec *model.EventRecord, analysis *roll.Analysis, res classify.Result, opts Options) archive.Entry {
	keyEvent := res.IsKeyEvent
	if opts.PreserveItemTransfers && res.Has(classify.CategoryItems) {
		keyEvent = true
	}
	return archive.Entry{
		ID:          uuid.NewString(),
		Kind:        archive.KindIndividual,
		Categories:  append([]string(nil), res.Categories...),
		Timestamp:   rec.Timestamp,
		DisplayText: displayText(rec, analysis, res),
		RecordIDs:   []string{rec.ID},
		KeyEvent:    keyEvent,
		Recreation:  recreationData(rec, analysis),
		Record:      sanitize(rec),
	}
}

// sanitize deep-copies the source record for embedding so the built entry
// shares no mutable state with the input batch. The annotation side
// channel stays: the aggregator prefers structured outcome tags over
// phrase matching.
func sanitize(rec *model.EventRecord) *model.EventRecord {
	cp := *rec
	cp.Rolls = append([]model.Roll(nil), rec.Rolls...)
	for i := range cp.Rolls {
		cp.Rolls[i].Terms = append([]model.RollTerm(nil), rec.Rolls[i].Terms...)
	}
	cp.WhisperTo = append([]string(nil), rec.WhisperTo...)
	if rec.Annotations != nil {
		cp.Annotations = make(map[string]any, len(rec.Annotations))
		for k, v := range rec.Annotations {
			cp.Annotations[k] = v
		}
	}
	return &cp
}
