package compress

import (
	"fmt"
	"strings"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/classify"
	"github.com/lorekeep/lorekeep/pkg/combat"
	"github.com/lorekeep/lorekeep/pkg/roll"
	"github.com/lorekeep/lorekeep/pkg/textutil"
)

// Leading glyphs for display lines. One per formatter, with content
// sniffing as the fallback when no rule-specific glyph applies.
const (
	glyphAttack  = "⚔"
	glyphDamage  = "✸"
	glyphSpell   = "✦"
	glyphRoll    = "⚅"
	glyphSpeech  = "❝"
	glyphEmote   = "✧"
	glyphWhisper = "…"
	glyphSystem  = "⚙"
	glyphHeal    = "✚"
	glyphGeneric = "•"
)

const displayTextLimit = 120

// displayText renders a one-line human summary for an individual entry.
func displayText(rec *model.EventRecord, analysis *roll.Analysis, res classify.Result) string {
	switch {
	case analysis != nil:
		return rollDisplay(rec, analysis)
	case len(rec.WhisperTo) > 0:
		return fmt.Sprintf("%s %s whispers to %s: %s",
			glyphWhisper, rec.Author, strings.Join(rec.WhisperTo, ", "), truncate(textutil.Strip(rec.Body)))
	case rec.Style == model.StyleEmote:
		return fmt.Sprintf("%s %s %s", glyphEmote, rec.Author, truncate(textutil.Strip(rec.Body)))
	case rec.Style == model.StyleSystem:
		return fmt.Sprintf("%s %s", glyphSystem, truncate(textutil.Strip(rec.Body)))
	case res.Has(classify.CategorySpeech):
		return fmt.Sprintf("%s %s: %s", glyphSpeech, rec.Author, truncate(textutil.Strip(rec.Body)))
	default:
		return fmt.Sprintf("%s %s", sniffGlyph(rec), truncate(textutil.Strip(rec.Body)))
	}
}

func rollDisplay(rec *model.EventRecord, a *roll.Analysis) string {
	glyph := glyphRoll
	switch a.Category {
	case roll.CategoryAttack:
		glyph = glyphAttack
	case roll.CategorySpellAttack:
		glyph = glyphSpell
	case roll.CategoryDamage:
		glyph = glyphDamage
	}

	line := fmt.Sprintf("%s %s: %s %d", glyph, a.Actor, a.Label, a.Total)
	if a.Target != "" {
		line += " vs " + a.Target
	}
	switch {
	case a.Critical:
		line += " (critical!)"
	case a.Fumble:
		line += " (fumble)"
	case a.Degree == roll.DegreeSuccess:
		line += " (success)"
	case a.Degree == roll.DegreeFailure:
		line += " (failure)"
	}
	return line
}

// combatDisplayText renders the one-line summary for an encounter entry.
func combatDisplayText(enc *combat.Encounter) string {
	line := fmt.Sprintf("%s %s — %d round", glyphAttack, enc.Title, len(enc.Rounds))
	if len(enc.Rounds) != 1 {
		line += "s"
	}
	switch enc.Outcome {
	case combat.OutcomeVictory:
		line += ", victory"
	case combat.OutcomeDefeat:
		line += ", defeat"
	}
	if len(enc.Casualties) > 0 {
		line += fmt.Sprintf(" (%s down)", strings.Join(enc.Casualties, ", "))
	}
	return line
}

// sniffGlyph picks a fallback glyph from the body text.
func sniffGlyph(rec *model.EventRecord) string {
	body := textutil.StripLower(rec.Body)
	switch {
	case strings.Contains(body, "heal"):
		return glyphHeal
	case textutil.ContainsAny(body, "attack", "strike"):
		return glyphAttack
	case strings.Contains(body, "damage"):
		return glyphDamage
	case strings.Contains(body, "spell"):
		return glyphSpell
	default:
		return glyphGeneric
	}
}

func truncate(s string) string {
	if len(s) <= displayTextLimit {
		return s
	}
	cut := displayTextLimit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "…"
}
