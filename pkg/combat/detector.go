package combat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/roll"
	"github.com/lorekeep/lorekeep/pkg/textutil"
)

// DefaultInactivityTimeout closes an encounter when no combat record has
// been absorbed for this long, measured on event timestamps.
const DefaultInactivityTimeout = 5 * time.Minute

var (
	startPhrases = []string{"combat started", "roll initiative", "enters combat"}
	endPhrases   = []string{"combat ended", "encounter ended", "all enemies defeated"}

	roundRE    = regexp.MustCompile(`round (\d+)`)
	casualtyRE = regexp.MustCompile(`([A-Za-z][\w' ]*?) (?:dies|is dying|is dead|falls unconscious|is unconscious|is knocked out|is reduced to 0)`)
)

// Detector is the encounter state machine. Feed it the time-ordered combat
// sub-stream via Observe, then Flush to close any open encounter.
// The detector is strictly sequential; it must never be shared across
// goroutines.
type Detector struct {
	roster  Roster
	timeout int64 // milliseconds on event timestamps

	current      *Encounter
	lastAbsorbed int64
	episodeText  strings.Builder
	pendingAtk   map[string]int // actor -> index of attack awaiting damage, in current round

	finished []*Encounter
}

// NewDetector creates a detector with the default inactivity timeout.
func NewDetector(roster Roster) *Detector {
	return &Detector{
		roster:  roster,
		timeout: DefaultInactivityTimeout.Milliseconds(),
	}
}

// SetTimeout overrides the inactivity timeout.
func (d *Detector) SetTimeout(timeout time.Duration) {
	d.timeout = timeout.Milliseconds()
}

// Active reports whether an encounter is currently open.
func (d *Detector) Active() bool { return d.current != nil }

// Observe consumes one combat-flagged record. The caller passes the shared
// roll analysis (nil when the record carries none).
func (d *Detector) Observe(rec *model.EventRecord, analysis *roll.Analysis) {
	if rec == nil {
		return
	}
	body := textutil.StripLower(rec.Body)

	if d.current == nil {
		if IsStartSignal(rec, analysis) {
			d.open(rec, analysis, body)
		}
		return
	}

	if textutil.ContainsAny(body, endPhrases...) {
		d.absorb(rec, analysis, body)
		d.finalize(rec.Timestamp)
		return
	}

	if d.timeout > 0 && rec.Timestamp-d.lastAbsorbed > d.timeout {
		// Close at the last absorbed record, then let the current record
		// re-run the Idle rules: it may start a fresh encounter.
		d.finalize(d.lastAbsorbed)
		if IsStartSignal(rec, analysis) {
			d.open(rec, analysis, body)
		}
		return
	}

	d.absorb(rec, analysis, body)
}

// Flush finalizes an open encounter at the last absorbed timestamp and
// returns every encounter detected so far.
func (d *Detector) Flush() []*Encounter {
	if d.current != nil {
		d.finalize(d.lastAbsorbed)
	}
	out := d.finished
	d.finished = nil
	return out
}

// IsStartSignal reports whether a record opens an encounter: an explicit
// initiative annotation, an initiative roll, or a start phrase in the body.
func IsStartSignal(rec *model.EventRecord, analysis *roll.Analysis) bool {
	if rec.Annotation(model.AnnRollType) == "initiative" {
		return true
	}
	if analysis != nil && analysis.Category == roll.CategoryInitiative {
		return true
	}
	return textutil.ContainsAny(textutil.StripLower(rec.Body), startPhrases...)
}

func (d *Detector) open(rec *model.EventRecord, analysis *roll.Analysis, body string) {
	d.current = &Encounter{Start: rec.Timestamp}
	d.pendingAtk = make(map[string]int)
	d.episodeText.Reset()
	d.absorb(rec, analysis, body)
}

func (d *Detector) absorb(rec *model.EventRecord, analysis *roll.Analysis, body string) {
	e := d.current
	e.RecordIDs = append(e.RecordIDs, rec.ID)
	e.addParticipant(rec.Author)
	d.lastAbsorbed = rec.Timestamp
	d.episodeText.WriteString(body)
	d.episodeText.WriteByte(' ')

	d.advanceRound(body)
	d.recordAction(rec, analysis)
	d.recordCasualty(body, analysis)
}

// advanceRound opens a new round when the text names a round number beyond
// the current one. Round numbers are monotonic within an encounter; stale
// mentions are ignored.
func (d *Detector) advanceRound(body string) {
	m := roundRE.FindStringSubmatch(body)
	if m == nil {
		return
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return
	}
	cur := d.current.currentRound()
	if n > cur.Number {
		d.current.Rounds = append(d.current.Rounds, Round{Number: n})
		d.pendingAtk = make(map[string]int)
	}
}

func (d *Detector) recordAction(rec *model.EventRecord, analysis *roll.Analysis) {
	if analysis == nil {
		return
	}
	e := d.current
	rd := e.currentRound()
	if analysis.Target != "" {
		e.addParticipant(analysis.Target)
	}

	switch analysis.Category {
	case roll.CategoryAttack, roll.CategorySpellAttack:
		rd.Actions = append(rd.Actions, Action{
			Actor:    rec.Author,
			Kind:     ActionAttack,
			Target:   analysis.Target,
			Roll:     analysis.Total,
			Hit:      analysis.Success,
			Critical: analysis.Critical,
			Fumble:   analysis.Fumble,
		})
		d.pendingAtk[rec.Author] = len(rd.Actions) - 1

	case roll.CategoryDamage:
		// Damage completes the actor's pending attack when one exists in
		// this round; otherwise it stands alone (spell damage and the like).
		if idx, ok := d.pendingAtk[rec.Author]; ok && idx < len(rd.Actions) {
			rd.Actions[idx].Damage = analysis.Total
			delete(d.pendingAtk, rec.Author)
			return
		}
		rd.Actions = append(rd.Actions, Action{
			Actor:    rec.Author,
			Kind:     ActionDamage,
			Target:   analysis.Target,
			Damage:   analysis.Total,
			Critical: analysis.Critical,
		})

	case roll.CategorySave:
		rd.Actions = append(rd.Actions, Action{
			Actor:    rec.Author,
			Kind:     ActionSave,
			Roll:     analysis.Total,
			Success:  analysis.Success,
			Critical: analysis.Critical,
			Fumble:   analysis.Fumble,
		})
	}
}

func (d *Detector) recordCasualty(body string, analysis *roll.Analysis) {
	m := casualtyRE.FindStringSubmatch(body)
	if m != nil {
		d.current.addCasualty(titleWords(strings.TrimSpace(m[1])))
		return
	}
	if analysis != nil && analysis.Target != "" &&
		textutil.ContainsAny(body, "reduced to 0", "unconscious", "dies") {
		d.current.addCasualty(analysis.Target)
	}
}

func (d *Detector) finalize(end int64) {
	e := d.current
	e.End = end
	e.Outcome = d.resolveOutcome(e)
	e.Title = d.makeTitle(e)
	e.Stats = d.computeStats(e)
	d.finished = append(d.finished, e)
	d.current = nil
	d.pendingAtk = nil
}

// resolveOutcome: a player-controlled casualty means Defeat; any other
// casualty means Victory; no casualties leave the outcome Unknown.
func (d *Detector) resolveOutcome(e *Encounter) Outcome {
	if len(e.Casualties) == 0 {
		return OutcomeUnknown
	}
	for _, c := range e.Casualties {
		if d.roster.IsPlayer(c) {
			return OutcomeDefeat
		}
	}
	return OutcomeVictory
}

func (d *Detector) makeTitle(e *Encounter) string {
	text := d.episodeText.String()
	if strings.Contains(text, "ambush") {
		return "Ambush!"
	}
	if strings.Contains(text, "boss") {
		return "Boss Fight"
	}
	for _, p := range e.Participants {
		if d.roster.IsPlayer(p) || isNarrator(p) {
			continue
		}
		if base := stripTrailingDigits(p); base != "" {
			return fmt.Sprintf("%s Fight", base)
		}
	}
	return "Combat Encounter"
}

// isNarrator filters table-role names out of title candidates.
func isNarrator(name string) bool {
	switch strings.ToLower(name) {
	case "gm", "dm", "gamemaster", "game master", "dungeon master", "narrator":
		return true
	}
	return false
}

// computeStats splits damage by whether the acting name resolves to a
// player. Unresolvable actors are not counted either way.
func (d *Detector) computeStats(e *Encounter) Stats {
	var s Stats
	for _, rd := range e.Rounds {
		for _, a := range rd.Actions {
			if a.Critical || a.Fumble {
				s.CriticalCount++
			}
			if a.Damage == 0 {
				continue
			}
			isPlayer, known := d.roster.Lookup(a.Actor)
			if !known {
				continue
			}
			if isPlayer {
				s.DamageDealt += a.Damage
			} else {
				s.DamageTaken += a.Damage
			}
		}
	}
	return s
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
