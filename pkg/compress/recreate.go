package compress

import (
	"regexp"
	"strings"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/roll"
)

// formulaSuffixRE matches a trailing damage-type word after a numeric
// formula ("2d6+3 fire" -> "2d6+3"). Only the unit word goes; anything
// inside the formula stays.
var formulaSuffixRE = regexp.MustCompile(`^((?:\d+d\d+|\d+)(?:\s*[+-]\s*(?:\d+d\d+|\d+))*)\s+[a-zA-Z]+$`)

// recreationData extracts the best-effort payload for regenerating a roll
// later. Nil when the record carries neither a roll nor an action-origin
// annotation.
func recreationData(rec *model.EventRecord, analysis *roll.Analysis) *archive.RollRecreation {
	origin := rec.Annotation(model.AnnOriginItem)
	if !rec.HasRoll() && origin == "" {
		return nil
	}

	rc := &archive.RollRecreation{
		Actor:  rec.Author,
		Origin: origin,
	}
	if rec.HasRoll() {
		rc.Formula = cleanFormula(rec.Rolls[0].Formula)
	}
	if tag := rec.Annotation(model.AnnRollType); tag != "" {
		rc.RollType = tag
	} else if analysis != nil {
		rc.RollType = string(analysis.Category)
	}
	if analysis != nil && analysis.Target != "" {
		rc.Target = analysis.Target
	}
	return rc
}

// cleanFormula strips a trailing damage-type suffix from a formula.
func cleanFormula(formula string) string {
	formula = strings.TrimSpace(formula)
	if m := formulaSuffixRE.FindStringSubmatch(formula); m != nil {
		return strings.TrimSpace(m[1])
	}
	return formula
}
