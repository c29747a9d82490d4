// Package combat detects discrete combat encounters in the time-ordered
// combat sub-stream of a session log. A two-state machine (Idle /
// InEncounter) opens an encounter on a start signal, absorbs records into
// rounds and actions, and finalizes on an end signal, an inactivity
// timeout, or stream exhaustion.
package combat

import (
	"strings"

	"github.com/lorekeep/lorekeep/pkg/roll"
)

// Outcome is the resolved result of a finalized encounter.
type Outcome string

const (
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
	OutcomeUnknown Outcome = "unknown"
)

// ActionKind labels one combat action.
type ActionKind string

const (
	ActionAttack ActionKind = "attack"
	ActionDamage ActionKind = "damage"
	ActionSave   ActionKind = "save"
)

// Action is one attack, damage, or save inside a round.
type Action struct {
	Actor    string        `json:"actor"`
	Kind     ActionKind    `json:"kind"`
	Target   string        `json:"target,omitempty"`
	Roll     int           `json:"roll,omitempty"`
	Damage   int           `json:"damage,omitempty"`
	Hit      roll.Tristate `json:"hit"`
	Success  roll.Tristate `json:"success"`
	Critical bool          `json:"critical,omitempty"`
	Fumble   bool          `json:"fumble,omitempty"`
}

// Round groups the actions of one combat round.
type Round struct {
	Number  int      `json:"number"`
	Actions []Action `json:"actions"`
}

// Stats aggregates a finalized encounter.
type Stats struct {
	DamageDealt   int `json:"damageDealt"`
	DamageTaken   int `json:"damageTaken"`
	CriticalCount int `json:"criticalCount"`
}

// Encounter is one detected fight. Mutable while the detector absorbs
// records, immutable after finalize.
type Encounter struct {
	Start        int64    `json:"start"`
	End          int64    `json:"end"`
	Participants []string `json:"participants"`
	Rounds       []Round  `json:"rounds"`
	Casualties   []string `json:"casualties,omitempty"`
	Outcome      Outcome  `json:"outcome"`
	Title        string   `json:"title"`
	Stats        Stats    `json:"stats"`

	// RecordIDs is the exact ordered list of absorbed records, start and
	// end markers included. The compression pipeline uses it to keep
	// absorbed records out of individual-entry processing.
	RecordIDs []string `json:"recordIds"`
}

func (e *Encounter) addParticipant(name string) {
	if name == "" {
		return
	}
	for _, p := range e.Participants {
		if p == name {
			return
		}
	}
	e.Participants = append(e.Participants, name)
}

func (e *Encounter) addCasualty(name string) {
	if name == "" {
		return
	}
	for _, c := range e.Casualties {
		if c == name {
			return
		}
	}
	e.Casualties = append(e.Casualties, name)
}

func (e *Encounter) currentRound() *Round {
	if len(e.Rounds) == 0 {
		e.Rounds = append(e.Rounds, Round{Number: 1})
	}
	return &e.Rounds[len(e.Rounds)-1]
}

// Roster maps participant names to whether they are player-controlled.
// Names absent from the roster are unresolvable: not counted for damage
// attribution and never treated as players.
type Roster map[string]bool

// Lookup resolves a name, tolerating trailing instance digits
// ("Goblin 3" resolves like "Goblin").
func (r Roster) Lookup(name string) (isPlayer, known bool) {
	if r == nil {
		return false, false
	}
	if v, ok := r[name]; ok {
		return v, true
	}
	if base := stripTrailingDigits(name); base != name {
		if v, ok := r[base]; ok {
			return v, true
		}
	}
	return false, false
}

// IsPlayer reports whether a name resolves to a player-controlled entity.
func (r Roster) IsPlayer(name string) bool {
	p, known := r.Lookup(name)
	return known && p
}

func stripTrailingDigits(name string) string {
	trimmed := strings.TrimRight(name, "0123456789")
	return strings.TrimSpace(trimmed)
}
