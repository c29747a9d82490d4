// Package classify assigns categories and preservation flags to event
// records. Categories are additive, never exclusive: a record can be both
// combat and roll, or speech and important. Classification is a pure
// function of (record, context); session state is threaded in explicitly.
package classify

import (
	"strings"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/roll"
	"github.com/lorekeep/lorekeep/pkg/textutil"
)

// Category names. CategoryAll is the sentinel assigned when nothing else
// matches, so every record lands in at least one bucket.
const (
	CategoryAll       = "all"
	CategoryCombat    = "combat"
	CategoryRoll      = "roll"
	CategorySpeech    = "speech"
	CategoryEmote     = "emote"
	CategoryWhispers  = "whispers"
	CategoryHealing   = "healing"
	CategoryItems     = "items"
	CategoryImportant = "important"
	CategorySystem    = "system"
)

// Context carries the session-level flags classification depends on.
type Context struct {
	// ActiveCombat marks an in-progress combat episode at the session
	// level. Outside active combat, rolls are never auto-tagged combat.
	ActiveCombat bool
}

// Result is the classification of one record.
type Result struct {
	// Categories is non-empty and order-stable.
	Categories []string
	// IsCritical marks a record that is always preserved as its own entry.
	IsCritical bool
	// IsKeyEvent marks a record worth a session-highlight slot.
	IsKeyEvent bool
	// Roll is the shared analysis, when the record carries one.
	Roll *roll.Analysis
}

// Has reports whether the result carries a category.
func (r Result) Has(category string) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Classify evaluates every category rule independently against the record.
// The caller may pass a precomputed roll analysis to avoid re-parsing; nil
// means "analyze here".
func Classify(rec *model.EventRecord, analysis *roll.Analysis, ctx Context) Result {
	if analysis == nil {
		analysis, _ = roll.Analyze(rec)
	}
	res := Result{Roll: analysis}

	body := textutil.StripLower(rec.Body)

	if isCombat(rec, analysis, ctx) {
		res.Categories = append(res.Categories, CategoryCombat)
	}
	if analysis != nil {
		res.Categories = append(res.Categories, CategoryRoll)
	}
	switch rec.Style {
	case model.StyleInCharacter, model.StyleOutOfCharacter:
		res.Categories = append(res.Categories, CategorySpeech)
	case model.StyleEmote:
		res.Categories = append(res.Categories, CategoryEmote)
	case model.StyleSystem:
		res.Categories = append(res.Categories, CategorySystem)
	}
	if len(rec.WhisperTo) > 0 {
		res.Categories = append(res.Categories, CategoryWhispers)
	}
	if strings.Contains(body, "heal") {
		res.Categories = append(res.Categories, CategoryHealing)
	}
	if textutil.ContainsAny(body, "item", "gold", "loot") {
		res.Categories = append(res.Categories, CategoryItems)
	}
	if textutil.ContainsAny(body, "xp", "level", "important") {
		res.Categories = append(res.Categories, CategoryImportant)
	}
	if len(res.Categories) == 0 {
		res.Categories = []string{CategoryAll}
	}

	res.IsCritical = isCritical(body)
	res.IsKeyEvent = IsKeyEvent(rec, analysis)
	return res
}

// isCombat fires for attack/spell-attack/damage/save rolls and initiative
// signals, but only while combat is active at the session level.
func isCombat(rec *model.EventRecord, analysis *roll.Analysis, ctx Context) bool {
	if !ctx.ActiveCombat {
		return false
	}
	if analysis != nil {
		switch analysis.Category {
		case roll.CategoryAttack, roll.CategorySpellAttack,
			roll.CategoryDamage, roll.CategorySave:
			return true
		case roll.CategoryInitiative:
			return true
		}
	}
	return rec.Annotation(model.AnnRollType) == "initiative"
}

// criticalPhrases always preserve a record as its own entry, independent of
// any category.
var criticalPhrases = []string{
	"critical hit",
	"critical miss",
	"death save",
	"level up",
	"xp",
	"dies",
	"unconscious",
}

func isCritical(body string) bool {
	return textutil.ContainsAny(body, criticalPhrases...)
}
