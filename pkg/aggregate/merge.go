package aggregate

import (
	"sort"

	"github.com/lorekeep/lorekeep/pkg/archive"
)

// Append merges a compression pass into an existing archive. Counts are
// summed, index sets are unioned, entries are concatenated and re-sorted
// by timestamp, and the compression ratio is recomputed from the new
// totals, never copied forward.
//
// Appends are idempotent under retry: entries whose source records are all
// already consumed by the archive are dropped, and a fully-consumed pass
// leaves the archive untouched. Statistics for a partially-consumed pass
// are recomputed from the surviving entries so nothing double-counts.
func Append(a *archive.Archive, p *archive.Pass, now int64) {
	consumed := make(map[string]bool, len(a.ConsumedRecordIDs))
	for _, id := range a.ConsumedRecordIDs {
		consumed[id] = true
	}

	var fresh []archive.Entry
	var freshRecords int
	for _, e := range p.Entries {
		if allConsumed(e.RecordIDs, consumed) {
			continue
		}
		fresh = append(fresh, e)
		for _, id := range e.RecordIDs {
			if !consumed[id] {
				consumed[id] = true
				freshRecords++
			}
		}
	}
	if len(fresh) == 0 {
		return
	}

	// A retry that overlaps a prior pass cannot trust the pass-level
	// statistics; recount over what actually lands.
	stats, index := p.Statistics, p.Index
	if len(fresh) != len(p.Entries) {
		stats, index = Compute(fresh)
	}

	a.Entries = append(a.Entries, fresh...)
	sort.SliceStable(a.Entries, func(i, j int) bool {
		return a.Entries[i].Timestamp < a.Entries[j].Timestamp
	})

	a.Statistics.Add(stats)
	a.Index = MergeIndex(a.Index, index)
	a.OriginalMessageCount += freshRecords
	a.CompressedEntryCount += len(fresh)
	a.CompressionRatio = archive.CompressionRatio(a.OriginalMessageCount, a.CompressedEntryCount)
	a.ConsumedRecordIDs = sortedKeys(consumed)
	a.UpdatedAt = now
}

func allConsumed(ids []string, consumed map[string]bool) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !consumed[id] {
			return false
		}
	}
	return true
}
