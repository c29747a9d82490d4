// Package aggregate computes archive statistics and the search index in a
// single pass over finished entries, and implements the append/merge
// semantics for multi-pass archives.
package aggregate

import (
	"strings"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/classify"
	"github.com/lorekeep/lorekeep/pkg/combat"
	"github.com/lorekeep/lorekeep/pkg/textutil"
)

// Compute walks entries once and produces the statistics summary and the
// search index for one pass.
func Compute(entries []archive.Entry) (archive.Statistics, archive.SearchIndex) {
	var stats archive.Statistics
	ix := newIndexBuilder()

	for i := range entries {
		e := &entries[i]
		ix.addEntry(e)

		if e.Kind == archive.KindCombatSummary {
			stats.Encounters++
		}
		if e.Recreation != nil || e.Has(classify.CategoryRoll) {
			stats.Rolls++
		}
		if e.KeyEvent {
			stats.KeyEvents++
		}
		if e.Has(classify.CategoryItems) {
			stats.ItemTransfers++
		}

		text := entryText(e)
		if textutil.ContainsAny(text, "xp", "experience point", "level up") {
			stats.XPEvents++
		}

		if e.Kind == archive.KindCombatSummary && e.Combat != nil {
			cs, cf := encounterCriticals(e.Combat)
			stats.CriticalSuccesses += cs
			stats.CriticalFailures += cf
			continue
		}
		switch criticalOutcome(e, text) {
		case "criticalSuccess":
			stats.CriticalSuccesses++
		case "criticalFailure":
			stats.CriticalFailures++
		}
	}

	return stats, ix.build()
}

// encounterCriticals counts critical rolls absorbed into an encounter from
// its per-action flags; the summary text does not repeat every roll, so
// phrase matching undercounts here.
func encounterCriticals(enc *combat.Encounter) (successes, failures int) {
	for _, rd := range enc.Rounds {
		for _, a := range rd.Actions {
			if a.Critical {
				successes++
			}
			if a.Fumble {
				failures++
			}
		}
	}
	return successes, failures
}

// criticalOutcome prefers the structured outcome tag over phrase matching,
// in that precedence.
func criticalOutcome(e *archive.Entry, text string) string {
	if e.Record != nil {
		switch e.Record.Annotation(model.AnnOutcome) {
		case "criticalSuccess":
			return "criticalSuccess"
		case "criticalFailure":
			return "criticalFailure"
		}
	}
	if textutil.ContainsAny(text, "critical success", "critical hit") {
		return "criticalSuccess"
	}
	if textutil.ContainsAny(text, "critical failure", "critical miss", "fumble") {
		return "criticalFailure"
	}
	return ""
}

// entryText returns the lowercased combined body+flavor text an entry was
// built from.
func entryText(e *archive.Entry) string {
	if e.Record != nil {
		t := textutil.StripLower(e.Record.Body)
		if e.Record.Flavor != "" {
			t += " " + textutil.StripLower(e.Record.Flavor)
		}
		return t
	}
	return strings.ToLower(e.DisplayText)
}
