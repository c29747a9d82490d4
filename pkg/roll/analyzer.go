// Package roll parses a record's embedded dice-roll payload into a
// structured analysis: category, total, term breakdown, target, and outcome.
// Analysis is a pure function of one record; no state is kept between calls.
package roll

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/textutil"
)

// Category labels what kind of roll a record carries.
type Category string

const (
	CategoryAttack      Category = "attack"
	CategorySpellAttack Category = "spell-attack"
	CategoryDamage      Category = "damage"
	CategorySave        Category = "save"
	CategorySkill       Category = "skill"
	CategoryAbility     Category = "ability"
	CategoryInitiative  Category = "initiative"
	CategoryGeneric     Category = "roll"
)

// Degree is the degree-of-success label extracted from the record text.
// It is an independent signal from the category.
type Degree string

const (
	DegreeNone            Degree = ""
	DegreeCriticalSuccess Degree = "criticalSuccess"
	DegreeSuccess         Degree = "success"
	DegreeFailure         Degree = "failure"
	DegreeCriticalFailure Degree = "criticalFailure"
)

// Analysis is the structured result of analyzing one roll-bearing record.
// It is ephemeral: embedded into classifications and entries, never
// persisted on its own.
type Analysis struct {
	Actor     string     `json:"actor"`
	Category  Category   `json:"category"`
	Label     string     `json:"label"`
	Total     int        `json:"total"`
	Dice      []DieGroup `json:"dice,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`

	// Target is the resolved target name. Empty means unknown, never
	// "no target".
	Target string `json:"target,omitempty"`

	Success  Tristate `json:"success"`
	Critical bool     `json:"critical"`
	Fumble   bool     `json:"fumble"`
	Degree   Degree   `json:"degree,omitempty"`
}

// DieGroup is one dice term of the roll breakdown.
type DieGroup struct {
	Count   int   `json:"count"`
	Faces   int   `json:"faces"`
	Results []int `json:"results,omitempty"`
	Value   int   `json:"value"`
}

// Modifier is one named flat term of the roll breakdown. Label may be
// empty when no structured or flavor-text name was recoverable, and may be
// wrong when the heuristic zipper mis-aligns (see Analyze).
type Modifier struct {
	Label string `json:"label,omitempty"`
	Value int    `json:"value"`
}

var (
	skillNames = []string{
		"acrobatics", "arcana", "athletics", "crafting", "deception",
		"diplomacy", "intimidation", "medicine", "nature", "occultism",
		"performance", "religion", "society", "stealth", "survival",
		"thievery", "lore",
	}
	abilityNames = []string{
		"strength", "dexterity", "constitution",
		"intelligence", "wisdom", "charisma",
	}

	inlineFormulaRE = regexp.MustCompile(`(\d+)d(\d+)((?:\s*[+-]\s*\d+)*)\s*(?:=\s*(\d+))?`)
	spellLevelRE    = regexp.MustCompile(`(\d+)(?:st|nd|rd|th)[ -]level spell`)
	natDieRE        = regexp.MustCompile(`natural (\d+)`)
)

// Analyze inspects a record for a dice roll and returns its analysis.
// The second return is false when the record carries no recognizable roll.
// Analysis never fails outright: partial or unlabeled breakdowns are
// acceptable, a missing target stays empty.
func Analyze(rec *model.EventRecord) (*Analysis, bool) {
	if rec == nil {
		return nil, false
	}
	if !rec.HasRoll() {
		return analyzeInline(rec)
	}

	r := rec.Rolls[0]
	a := &Analysis{
		Actor: rec.Author,
		Total: r.Total,
	}
	a.Dice, a.Modifiers = splitTerms(r.Terms)
	if unlabeled(a.Modifiers) {
		zipLabels(a.Modifiers, rec.Flavor)
	}

	a.Category, a.Label = inferCategory(rec)
	a.Degree = extractDegree(rec)
	a.Target = resolveTarget(rec)
	applyOutcome(a, rec)
	return a, true
}

// analyzeInline handles records with no structured payload whose body text
// matches a roll formula pattern.
func analyzeInline(rec *model.EventRecord) (*Analysis, bool) {
	body := textutil.Strip(rec.Body)
	m := inlineFormulaRE.FindStringSubmatch(body)
	if m == nil {
		return nil, false
	}

	a := &Analysis{Actor: rec.Author}
	count, _ := strconv.Atoi(m[1])
	faces, _ := strconv.Atoi(m[2])
	a.Dice = []DieGroup{{Count: count, Faces: faces}}
	for _, mod := range parseSignedInts(m[3]) {
		a.Modifiers = append(a.Modifiers, Modifier{Value: mod})
	}
	if m[4] != "" {
		a.Total, _ = strconv.Atoi(m[4])
	}

	a.Category, a.Label = inferCategory(rec)
	a.Degree = extractDegree(rec)
	a.Target = resolveTarget(rec)
	applyOutcome(a, rec)
	return a, true
}

// inferCategory applies the category precedence chain. Dictionary checks
// for skills and abilities run before the generic attack/damage phrase
// checks so a skill roll whose flavor mentions "attack" is not misfiled.
func inferCategory(rec *model.EventRecord) (Category, string) {
	if tag := rec.Annotation(model.AnnRollType); tag != "" {
		if c, label, ok := categoryFromTag(tag); ok {
			return c, label
		}
	}

	body := textutil.StripLower(rec.Body)
	flavor := textutil.StripLower(rec.Flavor)
	combined := body
	if flavor != "" {
		combined = body + " " + flavor
	}

	if strings.Contains(combined, "initiative") {
		return CategoryInitiative, "Initiative Roll"
	}
	for _, skill := range skillNames {
		if strings.Contains(combined, skill) {
			return CategorySkill, titleCase(skill) + " Check"
		}
	}
	if strings.Contains(combined, "skill check") {
		return CategorySkill, "Skill Check"
	}
	if strings.Contains(combined, "perception") {
		return CategorySkill, "Perception Check"
	}
	if textutil.ContainsAny(combined, "saving throw", " save") {
		return CategorySave, "Saving Throw"
	}
	if strings.Contains(combined, "damage") {
		return CategoryDamage, "Damage Roll"
	}
	if textutil.ContainsAny(combined, "spell attack") {
		return CategorySpellAttack, "Spell Attack"
	}
	if textutil.ContainsAny(combined, "attack", "strike", "to hit") {
		return CategoryAttack, "Attack Roll"
	}
	for _, ability := range abilityNames {
		if strings.Contains(combined, ability) {
			return CategoryAbility, titleCase(ability) + " Check"
		}
	}
	return CategoryGeneric, "Roll"
}

func categoryFromTag(tag string) (Category, string, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "attack", "attack-roll", "strike":
		return CategoryAttack, "Attack Roll", true
	case "spell-attack", "spell-attack-roll":
		return CategorySpellAttack, "Spell Attack", true
	case "damage", "damage-roll":
		return CategoryDamage, "Damage Roll", true
	case "save", "saving-throw":
		return CategorySave, "Saving Throw", true
	case "initiative":
		return CategoryInitiative, "Initiative Roll", true
	case "skill", "skill-check":
		return CategorySkill, "Skill Check", true
	case "perception-check":
		return CategorySkill, "Perception Check", true
	default:
		return CategoryGeneric, "", false
	}
}

// extractDegree scans combined body+flavor text for degree-of-success
// phrases, most specific first so "critical success" is never consumed by
// the plain "success" check.
func extractDegree(rec *model.EventRecord) Degree {
	text := textutil.StripLower(rec.Body)
	if rec.Flavor != "" {
		text += " " + textutil.StripLower(rec.Flavor)
	}
	switch {
	case strings.Contains(text, "critical success"):
		return DegreeCriticalSuccess
	case strings.Contains(text, "critical failure"):
		return DegreeCriticalFailure
	case strings.Contains(text, "success"):
		return DegreeSuccess
	case strings.Contains(text, "failure"):
		return DegreeFailure
	default:
		return DegreeNone
	}
}

// resolveTarget tries the structured target reference first, then text
// patterns. An empty result means unknown.
func resolveTarget(rec *model.EventRecord) string {
	if t := rec.Annotation(model.AnnTarget); t != "" {
		return t
	}
	body := textutil.Strip(rec.Body)
	if t := matchTarget(body); t != "" {
		return t
	}
	if t := matchVersus(body); t != "" {
		return t
	}
	return matchTarget(textutil.Strip(rec.Flavor))
}

var (
	targetRE = regexp.MustCompile(`(?i)target:\s*([A-Za-z][\w' -]*)`)
	versusRE = regexp.MustCompile(`(?i)\bvs\.?\s+([A-Za-z][\w' -]*)`)
)

func matchTarget(text string) string {
	if m := targetRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func matchVersus(text string) string {
	if m := versusRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// applyOutcome folds the structured outcome tag, the textual degree, and
// natural die results into the success/critical/fumble flags.
func applyOutcome(a *Analysis, rec *model.EventRecord) {
	switch rec.Annotation(model.AnnOutcome) {
	case "criticalSuccess":
		a.Degree = DegreeCriticalSuccess
	case "criticalFailure":
		a.Degree = DegreeCriticalFailure
	case "success":
		if a.Degree == DegreeNone {
			a.Degree = DegreeSuccess
		}
	case "failure":
		if a.Degree == DegreeNone {
			a.Degree = DegreeFailure
		}
	}

	switch a.Degree {
	case DegreeCriticalSuccess:
		a.Success = TriTrue
		a.Critical = true
	case DegreeSuccess:
		a.Success = TriTrue
	case DegreeFailure:
		a.Success = TriFalse
	case DegreeCriticalFailure:
		a.Success = TriFalse
		a.Fumble = true
	}

	// Natural 1/20 on a single d20 marks critical or fumble even without
	// an explicit degree phrase.
	if die, ok := singleD20(a.Dice); ok {
		switch die {
		case 20:
			a.Critical = true
		case 1:
			a.Fumble = true
		}
	}
	combined := textutil.StripLower(rec.Body + " " + rec.Flavor)
	if m := natDieRE.FindStringSubmatch(combined); m != nil {
		switch m[1] {
		case "20":
			a.Critical = true
		case "1":
			a.Fumble = true
		}
	}
}

func singleD20(dice []DieGroup) (int, bool) {
	if len(dice) == 1 && dice[0].Faces == 20 && len(dice[0].Results) == 1 {
		return dice[0].Results[0], true
	}
	return 0, false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func parseSignedInts(s string) []int {
	var out []int
	s = strings.ReplaceAll(s, " ", "")
	for s != "" {
		sign := 1
		switch s[0] {
		case '+':
			s = s[1:]
		case '-':
			sign = -1
			s = s[1:]
		}
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 {
			break
		}
		n, _ := strconv.Atoi(s[:i])
		out = append(out, sign*n)
		s = s[i:]
	}
	return out
}

// SpellLevelFromText extracts "<N>th-level spell" mentions. Shared with the
// key-event rules.
func SpellLevelFromText(text string) (int, bool) {
	m := spellLevelRE.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
