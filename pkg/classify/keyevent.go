package classify

import (
	"regexp"
	"strconv"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/roll"
	"github.com/lorekeep/lorekeep/pkg/textutil"
)

// Key-event rules, in priority order. Evaluation is exhaustive: any rule
// may fire, not just the first checked, but the priority order decides
// which signal is credited when several would match.

const keyEventMinSpellLevel = 4

const keyEventMinCurrency = 100

var (
	criticalOutcomePhrases = []string{
		"critical success", "critical hit",
		"critical failure", "critical miss", "fumble",
	}
	dyingPhrases = []string{
		"dying", "death", "dies", "unconscious", "knocked out", "wounded",
	}
	deathSavePhrases = []string{
		"death save", "death saving throw", "recovery check", "stabilize",
	}
	heroPointPhrases = []string{"hero point"}
	xpPhrases        = []string{"xp", "experience point", "level up", "levels up", "leveled up"}
	treasurePhrases  = []string{
		"treasure", "loot", "artifact", "relic", "legendary", "unique item",
	}
	conditionPhrases = []string{
		"persistent damage",
		"doomed", "drained", "enfeebled", "stupefied", "slowed", "stunned",
		"paralyzed", "petrified", "confused", "blinded", "deafened",
		"frightened", "fascinated", "sickened",
	}

	currencyRE = regexp.MustCompile(`(\d+)\s*(?:gold|gp|pp|platinum)\b`)
)

// IsKeyEvent decides whether a record deserves a session-highlight slot.
// Word rules run on markup-stripped text; the raw body is additionally
// scanned for style-class hints, since some outcomes are encoded only as
// presentation markup.
func IsKeyEvent(rec *model.EventRecord, analysis *roll.Analysis) bool {
	stripped := textutil.StripLower(rec.Body)
	if rec.Flavor != "" {
		stripped += " " + textutil.StripLower(rec.Flavor)
	}

	// 1. Explicit structured outcome tag.
	switch rec.Annotation(model.AnnOutcome) {
	case "criticalSuccess", "criticalFailure":
		return true
	}

	// 2. Critical phrases, including markup-class hints.
	if textutil.ContainsAny(stripped, criticalOutcomePhrases...) {
		return true
	}
	if textutil.HasClass(rec.Body, "critical-success") ||
		textutil.HasClass(rec.Body, "critical-failure") {
		return true
	}
	if analysis != nil && (analysis.Critical || analysis.Fumble) {
		return true
	}

	// 3. Dying and death.
	if textutil.ContainsAny(stripped, dyingPhrases...) {
		return true
	}

	// 4. Death saves and stabilization.
	if textutil.ContainsAny(stripped, deathSavePhrases...) {
		return true
	}

	// 5. Hero points, textual or structured.
	if textutil.ContainsAny(stripped, heroPointPhrases...) ||
		rec.AnnotationBool(model.AnnHeroPoint) {
		return true
	}

	// 6. High-level spells.
	if lvl, ok := rec.AnnotationNumber(model.AnnSpellLevel); ok && int(lvl) >= keyEventMinSpellLevel {
		return true
	}
	if lvl, ok := roll.SpellLevelFromText(stripped); ok && lvl >= keyEventMinSpellLevel {
		return true
	}

	// 7. Experience and leveling.
	if textutil.ContainsAny(stripped, xpPhrases...) {
		return true
	}

	// 8. Significant currency or treasure.
	if amount, ok := currencyAmount(stripped); ok && amount >= keyEventMinCurrency {
		return true
	}
	if textutil.ContainsAny(stripped, treasurePhrases...) {
		return true
	}

	// 9. Persistent damage and debilitating conditions.
	return textutil.ContainsAny(stripped, conditionPhrases...)
}

func currencyAmount(text string) (int, bool) {
	m := currencyRE.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
