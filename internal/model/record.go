// Package model defines core data structures for Lorekeep.
package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StyleKind classifies how a chat record was authored.
type StyleKind uint8

const (
	StyleOther StyleKind = iota
	StyleInCharacter
	StyleOutOfCharacter
	StyleEmote
	StyleSystem
)

// String returns the serialized form used in JSONL exports.
func (s StyleKind) String() string {
	switch s {
	case StyleInCharacter:
		return "ic"
	case StyleOutOfCharacter:
		return "ooc"
	case StyleEmote:
		return "emote"
	case StyleSystem:
		return "system"
	default:
		return "other"
	}
}

// ParseStyleKind parses the serialized form. Unknown values map to StyleOther.
func ParseStyleKind(s string) StyleKind {
	switch s {
	case "ic":
		return StyleInCharacter
	case "ooc":
		return StyleOutOfCharacter
	case "emote":
		return StyleEmote
	case "system":
		return StyleSystem
	default:
		return StyleOther
	}
}

// MarshalJSON serializes the style as its string form.
func (s StyleKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts both the string form and the legacy numeric form
// found in older log exports.
func (s *StyleKind) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if len(text) > 1 && text[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = ParseStyleKind(str)
		return nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		*s = StyleOther
		return nil
	}
	switch n {
	case 1:
		*s = StyleInCharacter
	case 2:
		*s = StyleOutOfCharacter
	case 3:
		*s = StyleEmote
	case 4:
		*s = StyleSystem
	default:
		*s = StyleOther
	}
	return nil
}

// EventRecord is one unit of the input session log: a chat message, dice
// roll, or system notice. Records are immutable once ingested; pipeline
// stages never mutate them.
//
// Timestamp is milliseconds since Unix epoch and is assumed non-decreasing
// across a batch (caller's responsibility).
type EventRecord struct {
	ID        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Flavor    string    `json:"flavor,omitempty"`
	Style     StyleKind `json:"style"`

	// Rolls holds embedded dice-roll payloads, if any.
	Rolls []Roll `json:"rolls,omitempty"`

	// Annotations is an opaque side channel a game-system integration may
	// attach (outcome tags, origin items, target references, spell levels).
	// Shapes vary by integration; every lookup must presence-check.
	Annotations map[string]any `json:"annotations,omitempty"`

	// WhisperTo lists recipient names; non-empty implies a private message.
	WhisperTo []string `json:"whisperTo,omitempty"`
}

// HasRoll reports whether the record carries a structured roll payload.
func (r *EventRecord) HasRoll() bool {
	return len(r.Rolls) > 0
}

// Annotation returns a string-valued annotation, or "" when absent or not a
// string.
func (r *EventRecord) Annotation(key string) string {
	if r.Annotations == nil {
		return ""
	}
	v, ok := r.Annotations[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// AnnotationNumber returns a numeric annotation. JSON decoding yields
// float64, but integrations embedding records directly may attach int.
func (r *EventRecord) AnnotationNumber(key string) (float64, bool) {
	if r.Annotations == nil {
		return 0, false
	}
	switch v := r.Annotations[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// AnnotationBool returns a boolean annotation, false when absent.
func (r *EventRecord) AnnotationBool(key string) bool {
	if r.Annotations == nil {
		return false
	}
	v, _ := r.Annotations[key].(bool)
	return v
}

// Roll is one dice-roll sub-object embedded in a record.
type Roll struct {
	Formula string     `json:"formula"`
	Total   int        `json:"total"`
	Terms   []RollTerm `json:"terms,omitempty"`
}

// RollTerm is one term of a roll: either a dice group or a flat modifier.
type RollTerm struct {
	// Faces is the die size; 0 marks a flat modifier term.
	Faces int `json:"faces,omitempty"`
	// Count is the number of dice in the group (0 for modifiers).
	Count int `json:"count,omitempty"`
	// Value is the evaluated contribution of this term to the total.
	Value int `json:"value"`
	// Results holds individual die results for dice terms.
	Results []int `json:"results,omitempty"`
	// Label is an optional name for a modifier term ("Strength", "Rage").
	Label string `json:"label,omitempty"`
}

// IsDice reports whether the term is a dice group rather than a modifier.
func (t RollTerm) IsDice() bool { return t.Faces > 0 }

// Annotation keys recognized across pipeline stages. Integrations are free
// to attach more; these are the ones the rule sites consult.
const (
	AnnRollType   = "rollType"   // attack | spell-attack | damage | save | initiative | skill
	AnnOutcome    = "outcome"    // criticalSuccess | success | failure | criticalFailure
	AnnTarget     = "target"     // target name
	AnnOriginItem = "originItem" // item or action that produced the roll
	AnnSpellLevel = "spellLevel" // numeric spell level
	AnnHeroPoint  = "heroPoint"  // bool, hero point spent
)
