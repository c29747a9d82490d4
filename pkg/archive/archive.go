// Package archive defines the compressed output model: entries, the
// statistics summary, the search index, and the archive aggregate that
// accumulates passes over one session. It is a pure data package; the
// aggregator computes over it and the storage backends persist it.
package archive

import (
	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/combat"
)

// EntryKind separates encounter summaries from individual record wrappers.
type EntryKind string

const (
	KindCombatSummary EntryKind = "combat-summary"
	KindIndividual    EntryKind = "individual"
)

// Entry is one unit of compressed output, immutable once built.
//
// Invariant: across all entries of one compression pass, the union of
// RecordIDs equals the input record-id set exactly. Every input record maps
// to exactly one entry.
type Entry struct {
	ID         string    `json:"id"`
	Kind       EntryKind `json:"kind"`
	Categories []string  `json:"categories"`

	// Timestamp orders entries chronologically: encounter start for
	// summaries, record timestamp for individual entries.
	Timestamp int64 `json:"timestamp"`

	DisplayText string   `json:"displayText"`
	RecordIDs   []string `json:"originalRecordIds"`
	KeyEvent    bool     `json:"isKeyEvent"`

	// Recreation carries enough of the source roll payload to regenerate
	// the roll downstream.
	Recreation *RollRecreation `json:"rollRecreation,omitempty"`

	// Combat is set for combat-summary entries.
	Combat *combat.Encounter `json:"combatSummary,omitempty"`

	// Record is a sanitized copy of the source record, set for individual
	// entries.
	Record *model.EventRecord `json:"record,omitempty"`
}

// Has reports whether the entry carries a category.
func (e Entry) Has(category string) bool {
	for _, c := range e.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// RollRecreation is the minimal payload for regenerating a roll.
type RollRecreation struct {
	// Formula is the cleaned dice formula, trailing damage-type suffixes
	// stripped.
	Formula  string `json:"formula"`
	RollType string `json:"rollType,omitempty"`
	Actor    string `json:"actor,omitempty"`
	Target   string `json:"target,omitempty"`
	// Origin names the item or action the roll came from.
	Origin string `json:"origin,omitempty"`
}

// Statistics summarizes one pass or one whole archive.
type Statistics struct {
	Encounters        int `json:"encounters"`
	Rolls             int `json:"rolls"`
	CriticalSuccesses int `json:"criticalSuccesses"`
	CriticalFailures  int `json:"criticalFailures"`
	ItemTransfers     int `json:"itemTransfers"`
	XPEvents          int `json:"xpEvents"`
	KeyEvents         int `json:"keyEvents"`
}

// Add sums counts field by field.
func (s *Statistics) Add(o Statistics) {
	s.Encounters += o.Encounters
	s.Rolls += o.Rolls
	s.CriticalSuccesses += o.CriticalSuccesses
	s.CriticalFailures += o.CriticalFailures
	s.ItemTransfers += o.ItemTransfers
	s.XPEvents += o.XPEvents
	s.KeyEvents += o.KeyEvents
}

// SearchIndex supports later lookup over an archive. All sets are
// deduplicated and sorted.
type SearchIndex struct {
	Keywords []string            `json:"keywords"`
	Actors   []string            `json:"actors"`
	Scenes   []string            `json:"scenes"`
	ByType   map[string][]string `json:"byType"` // category -> entry ids
}

// Pass is the output of one compression run.
type Pass struct {
	Entries              []Entry     `json:"entries"`
	Statistics           Statistics  `json:"statistics"`
	Index                SearchIndex `json:"searchIndex"`
	OriginalMessageCount int         `json:"originalMessageCount"`
	CompressedEntryCount int         `json:"compressedEntryCount"`
}

// Ratio returns the compression percentage for this pass.
func (p *Pass) Ratio() int {
	return CompressionRatio(p.OriginalMessageCount, p.CompressedEntryCount)
}

// CompressionRatio computes round((orig-compressed)/orig*100).
func CompressionRatio(original, compressed int) int {
	if original <= 0 {
		return 0
	}
	return int(float64(original-compressed)/float64(original)*100 + 0.5)
}

// Archive accumulates the passes of one session. Created on the first
// pass, appended to by later passes of the same session, deleted only
// explicitly.
type Archive struct {
	ID           string `json:"id"`
	SessionID    string `json:"sessionId"`
	SessionStart int64  `json:"sessionStart"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`

	Entries    []Entry     `json:"entries"`
	Statistics Statistics  `json:"statistics"`
	Index      SearchIndex `json:"searchIndex"`

	OriginalMessageCount int `json:"originalMessageCount"`
	CompressedEntryCount int `json:"compressedEntryCount"`
	CompressionRatio     int `json:"compressionRatio"`

	// ConsumedRecordIDs tracks every source record absorbed into this
	// archive, making re-appends of an identical pass a no-op.
	ConsumedRecordIDs []string `json:"consumedRecordIds"`
}
