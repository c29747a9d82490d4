package roll

import (
	"regexp"
	"strings"

	"github.com/lorekeep/lorekeep/internal/model"
)

// splitTerms separates a payload's terms into the dice breakdown and the
// flat modifier breakdown, preserving order within each.
func splitTerms(terms []model.RollTerm) ([]DieGroup, []Modifier) {
	var dice []DieGroup
	var mods []Modifier
	for _, t := range terms {
		if t.IsDice() {
			dice = append(dice, DieGroup{
				Count:   t.Count,
				Faces:   t.Faces,
				Results: t.Results,
				Value:   t.Value,
			})
			continue
		}
		mods = append(mods, Modifier{Label: t.Label, Value: t.Value})
	}
	return dice, mods
}

func unlabeled(mods []Modifier) bool {
	for _, m := range mods {
		if m.Label == "" {
			return true
		}
	}
	return false
}

// labelRE matches a "<Label> <signed integer>" flavor-text breakdown item,
// e.g. "Strength +4" or "Frightened -1".
var labelRE = regexp.MustCompile(`([A-Za-z][A-Za-z' ]*?)\s([+-]\d+)`)

// zipLabels best-effort assigns flavor-text labels onto modifiers that lack
// one. The match is positional: the i-th parsed label lands on the i-th
// unlabeled modifier. It can mis-attribute when flavor ordering diverges
// from term ordering; a wrong label is tolerated, a missing one is fine,
// and the zip never fails the analysis.
func zipLabels(mods []Modifier, flavor string) {
	if flavor == "" || len(mods) == 0 {
		return
	}
	matches := labelRE.FindAllStringSubmatch(flavor, -1)
	if matches == nil {
		return
	}

	i := 0
	for _, m := range matches {
		for i < len(mods) && mods[i].Label != "" {
			i++
		}
		if i >= len(mods) {
			return
		}
		mods[i].Label = strings.TrimSpace(m[1])
		i++
	}
}
