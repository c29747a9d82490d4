package combat

import (
	"testing"
	"time"

	"github.com/lorekeep/lorekeep/internal/model"
	"github.com/lorekeep/lorekeep/pkg/roll"
)

const minute = int64(60 * 1000)

func observe(d *Detector, rec *model.EventRecord) {
	analysis, _ := roll.Analyze(rec)
	d.Observe(rec, analysis)
}

func attackAt(id string, ts int64, actor, body string) *model.EventRecord {
	return &model.EventRecord{ID: id, Timestamp: ts, Author: actor, Body: body}
}

// TestDetectorTwoRoundEncounter verifies a start-to-end episode produces one
// encounter with rounds, damage attribution, and a casualty-driven outcome.
func TestDetectorTwoRoundEncounter(t *testing.T) {
	roster := Roster{"Valeria": true, "Brom": true}
	d := NewDetector(roster)

	records := []*model.EventRecord{
		attackAt("e1", 0, "GM", "Roll initiative!"),
		attackAt("e2", 10_000, "GM", "Round 1 begins"),
		{
			ID: "e3", Timestamp: 20_000, Author: "Valeria",
			Body: "Attack vs Goblin 1",
			Rolls: []model.Roll{{Formula: "1d20+7", Total: 24,
				Terms: []model.RollTerm{{Faces: 20, Count: 1, Value: 17, Results: []int{17}}}}},
		},
		{
			ID: "e4", Timestamp: 30_000, Author: "Valeria",
			Body: "Damage roll",
			Rolls: []model.Roll{{Formula: "1d8+4", Total: 9,
				Terms: []model.RollTerm{{Faces: 8, Count: 1, Value: 5, Results: []int{5}}}}},
		},
		attackAt("e5", 40_000, "GM", "Round 2"),
		{
			ID: "e6", Timestamp: 50_000, Author: "Goblin 1",
			Body: "Attack vs Valeria",
			Rolls: []model.Roll{{Formula: "1d20+4", Total: 12,
				Terms: []model.RollTerm{{Faces: 20, Count: 1, Value: 8, Results: []int{8}}}}},
		},
		attackAt("e7", 60_000, "GM", "Goblin 1 dies"),
		attackAt("e8", 70_000, "GM", "Combat ended"),
	}
	for _, rec := range records {
		observe(d, rec)
	}

	encounters := d.Flush()
	if len(encounters) != 1 {
		t.Fatalf("encounters = %d, want 1", len(encounters))
	}
	enc := encounters[0]

	if len(enc.RecordIDs) != len(records) {
		t.Errorf("record ids = %d, want %d", len(enc.RecordIDs), len(records))
	}
	if enc.Start != 0 || enc.End != 70_000 {
		t.Errorf("span = [%d, %d], want [0, 70000]", enc.Start, enc.End)
	}
	if len(enc.Rounds) != 2 {
		t.Fatalf("rounds = %d, want 2", len(enc.Rounds))
	}
	if enc.Rounds[0].Number != 1 || enc.Rounds[1].Number != 2 {
		t.Errorf("round numbers = %d, %d", enc.Rounds[0].Number, enc.Rounds[1].Number)
	}
	if enc.Outcome != OutcomeVictory {
		t.Errorf("outcome = %s, want victory", enc.Outcome)
	}
	if len(enc.Casualties) != 1 || enc.Casualties[0] != "Goblin 1" {
		t.Errorf("casualties = %v, want [Goblin 1]", enc.Casualties)
	}
	if enc.Stats.DamageDealt != 9 {
		t.Errorf("damage dealt = %d, want 9 (attack completed by damage)", enc.Stats.DamageDealt)
	}
	if enc.Title != "Goblin Fight" {
		t.Errorf("title = %q, want Goblin Fight", enc.Title)
	}
}

// TestDetectorInactivityTimeout verifies the encounter closes at the last
// absorbed record once event timestamps go quiet past the timeout.
func TestDetectorInactivityTimeout(t *testing.T) {
	d := NewDetector(Roster{})

	observe(d, attackAt("t1", 0, "GM", "Roll initiative!"))
	observe(d, attackAt("t2", 1*minute, "GM", "Round 1"))

	if !d.Active() {
		t.Fatal("encounter should be open")
	}

	// Six minutes of table silence, then unrelated chatter.
	late := attackAt("t3", 7*minute, "Valeria", "So, about that tavern...")
	observe(d, late)

	if d.Active() {
		t.Error("encounter should have timed out")
	}
	encounters := d.Flush()
	if len(encounters) != 1 {
		t.Fatalf("encounters = %d, want 1", len(encounters))
	}
	enc := encounters[0]
	if enc.End != 1*minute {
		t.Errorf("end = %d, want last absorbed timestamp %d", enc.End, 1*minute)
	}
	for _, id := range enc.RecordIDs {
		if id == "t3" {
			t.Error("post-timeout record absorbed into the closed encounter")
		}
	}
}

// TestDetectorTimeoutRecordCanStartFresh verifies the record arriving after
// the gap opens a new encounter when it is itself a start signal.
func TestDetectorTimeoutRecordCanStartFresh(t *testing.T) {
	d := NewDetector(Roster{})
	d.SetTimeout(5 * time.Minute)

	observe(d, attackAt("s1", 0, "GM", "Combat started"))
	observe(d, attackAt("s2", 10*minute, "GM", "Roll initiative!"))

	if !d.Active() {
		t.Fatal("start signal after timeout should open a new encounter")
	}
	encounters := d.Flush()
	if len(encounters) != 2 {
		t.Fatalf("encounters = %d, want 2", len(encounters))
	}
	if encounters[0].End != 0 {
		t.Errorf("first encounter end = %d, want 0", encounters[0].End)
	}
	if encounters[1].Start != 10*minute {
		t.Errorf("second encounter start = %d, want %d", encounters[1].Start, 10*minute)
	}
}

// TestDetectorNoStartNoEncounter verifies idle records never open anything.
func TestDetectorNoStartNoEncounter(t *testing.T) {
	d := NewDetector(Roster{})
	observe(d, attackAt("n1", 0, "Valeria", "We walk into the market"))
	observe(d, attackAt("n2", 1000, "Brom", "I buy some rope"))

	if d.Active() {
		t.Error("idle chatter opened an encounter")
	}
	if got := d.Flush(); len(got) != 0 {
		t.Errorf("encounters = %d, want 0", len(got))
	}
}

// TestDetectorDefeatOutcome verifies a player casualty resolves to defeat.
func TestDetectorDefeatOutcome(t *testing.T) {
	d := NewDetector(Roster{"Valeria": true})
	observe(d, attackAt("d1", 0, "GM", "Roll initiative!"))
	observe(d, attackAt("d2", 1000, "GM", "Valeria falls unconscious"))
	observe(d, attackAt("d3", 2000, "GM", "Combat ended"))

	encounters := d.Flush()
	if len(encounters) != 1 {
		t.Fatalf("encounters = %d, want 1", len(encounters))
	}
	if encounters[0].Outcome != OutcomeDefeat {
		t.Errorf("outcome = %s, want defeat", encounters[0].Outcome)
	}
}

// TestRosterLookupStripsNumbers verifies "Goblin 2" resolves through the
// "Goblin" roster entry.
func TestRosterLookupStripsNumbers(t *testing.T) {
	roster := Roster{"Valeria": true, "Goblin": false}

	if isPlayer, known := roster.Lookup("Goblin 2"); !known || isPlayer {
		t.Errorf("Lookup(Goblin 2) = %v/%v, want known non-player", isPlayer, known)
	}
	if isPlayer, known := roster.Lookup("Valeria"); !known || !isPlayer {
		t.Errorf("Lookup(Valeria) = %v/%v, want known player", isPlayer, known)
	}
	if _, known := roster.Lookup("Mysterious Stranger"); known {
		t.Error("unknown name reported as known")
	}
}
