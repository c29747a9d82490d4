package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lorekeep/lorekeep/internal/model"
	lkerrors "github.com/lorekeep/lorekeep/pkg/errors"
)

// TestReadValidLog verifies a clean log decodes in order with no skips.
func TestReadValidLog(t *testing.T) {
	log := strings.Join([]string{
		`{"id":"m1","timestamp":1000,"author":"Valeria","body":"We enter the cave","style":"ic"}`,
		`{"id":"m2","timestamp":2000,"author":"GM","body":"Roll initiative!","rolls":[{"formula":"1d20+3","total":17,"terms":[{"faces":20,"count":1,"value":14,"results":[14]}]}]}`,
	}, "\n")

	res, err := Read(context.Background(), strings.NewReader(log), Options{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", res.Skipped)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if res.Records[0].Style != model.StyleInCharacter {
		t.Errorf("style = %v, want in-character", res.Records[0].Style)
	}
	r := res.Records[1]
	if len(r.Rolls) != 1 || r.Rolls[0].Total != 17 || r.Rolls[0].Terms[0].Faces != 20 {
		t.Errorf("roll payload did not decode: %+v", r.Rolls)
	}
}

// TestReadSkipsMalformedLines verifies blank lines, prose lines, and
// broken records are counted and skipped.
func TestReadSkipsMalformedLines(t *testing.T) {
	log := strings.Join([]string{
		`{"id":"m1","timestamp":1000,"author":"Valeria","body":"ok"}`,
		``,
		`-- session paused --`,
		`{"id":"","timestamp":2000,"body":"no id"}`,
		`{"id":"m2","timestamp":"not a number"}`,
		`{"id":"m3","timestamp":3000,"author":"Brom","body":"also ok"}`,
	}, "\n")

	res, err := Read(context.Background(), strings.NewReader(log), Options{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if res.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", res.Skipped)
	}
	if res.Records[0].ID != "m1" || res.Records[1].ID != "m3" {
		t.Errorf("wrong survivors: %s, %s", res.Records[0].ID, res.Records[1].ID)
	}
}

// TestReadStrictMode verifies strict mode aborts at the first bad line
// with the malformed-record code and the line number.
func TestReadStrictMode(t *testing.T) {
	log := strings.Join([]string{
		`{"id":"m1","timestamp":1000,"author":"Valeria","body":"ok"}`,
		`-- session paused --`,
	}, "\n")

	_, err := Read(context.Background(), strings.NewReader(log), Options{Strict: true})
	if err == nil {
		t.Fatal("strict read accepted a prose line")
	}
	if code := lkerrors.GetCode(err); code != lkerrors.CodeMalformedRecord {
		t.Errorf("code = %v, want %v", code, lkerrors.CodeMalformedRecord)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error does not name the line: %v", err)
	}
}

// TestReadClampsTimestamps verifies out-of-order timestamps are clamped
// up, never reordered.
func TestReadClampsTimestamps(t *testing.T) {
	log := strings.Join([]string{
		`{"id":"m1","timestamp":5000,"author":"Valeria","body":"a"}`,
		`{"id":"m2","timestamp":3000,"author":"Brom","body":"b"}`,
		`{"id":"m3","timestamp":7000,"author":"GM","body":"c"}`,
	}, "\n")

	res, err := Read(context.Background(), strings.NewReader(log), Options{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []struct {
		id string
		ts int64
	}{{"m1", 5000}, {"m2", 5000}, {"m3", 7000}}
	for i, w := range want {
		if res.Records[i].ID != w.id || res.Records[i].Timestamp != w.ts {
			t.Errorf("record %d = %s@%d, want %s@%d",
				i, res.Records[i].ID, res.Records[i].Timestamp, w.id, w.ts)
		}
	}
}

// TestReadFieldAliases verifies VTT-export field names decode into the
// canonical record.
func TestReadFieldAliases(t *testing.T) {
	log := `{"_id":"m1","timestamp":1000,"speaker":"Valeria","content":"Hello","flags":{"rollType":"attack"},"whisper":["GM"]}`

	res, err := Read(context.Background(), strings.NewReader(log), Options{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	r := res.Records[0]
	if r.ID != "m1" || r.Author != "Valeria" || r.Body != "Hello" {
		t.Errorf("aliases did not map: %+v", r)
	}
	if r.Annotation(model.AnnRollType) != "attack" {
		t.Errorf("flags did not map to annotations: %v", r.Annotations)
	}
	if len(r.WhisperTo) != 1 || r.WhisperTo[0] != "GM" {
		t.Errorf("whisper did not map: %v", r.WhisperTo)
	}
}

// TestReadLegacyNumericStyle verifies the old numeric style codes still
// decode.
func TestReadLegacyNumericStyle(t *testing.T) {
	log := `{"id":"m1","timestamp":1000,"author":"Valeria","body":"waves","style":3}`

	res, err := Read(context.Background(), strings.NewReader(log), Options{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Records[0].Style != model.StyleEmote {
		t.Errorf("style = %v, want emote", res.Records[0].Style)
	}
}

// TestReadCanceledContext verifies cancellation surfaces instead of a
// partial result.
func TestReadCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log := `{"id":"m1","timestamp":1000,"author":"Valeria","body":"a"}`
	if _, err := Read(ctx, strings.NewReader(log), Options{}); err == nil {
		t.Fatal("canceled read returned no error")
	}
}

// TestReadFileMissing verifies a missing path maps to the bad-log-file
// code.
func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"), Options{})
	if err == nil {
		t.Fatal("missing file read succeeded")
	}
	if code := lkerrors.GetCode(err); code != lkerrors.CodeBadLogFile {
		t.Errorf("code = %v, want %v", code, lkerrors.CodeBadLogFile)
	}
}

// TestReadFileRoundtrip verifies the file path end to end.
func TestReadFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	log := `{"id":"m1","timestamp":1000,"author":"Valeria","body":"on disk"}` + "\n"
	if err := os.WriteFile(path, []byte(log), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res, err := ReadFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Body != "on disk" {
		t.Errorf("records = %+v", res.Records)
	}
}
