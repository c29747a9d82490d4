package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/lorekeep/lorekeep/internal/model"
)

// wireRecord is the on-disk line shape. It carries the canonical field names
// plus the aliases common in VTT chat exports, so logs can be fed in without
// a preprocessing step.
type wireRecord struct {
	ID    string `json:"id"`
	AltID string `json:"_id"`

	Timestamp int64 `json:"timestamp"`

	Author    string `json:"author"`
	AltAuthor string `json:"speaker"`

	Body    string `json:"body"`
	Content string `json:"content"`

	Flavor string          `json:"flavor"`
	Style  model.StyleKind `json:"style"`

	Rolls       []model.Roll   `json:"rolls"`
	Annotations map[string]any `json:"annotations"`
	Flags       map[string]any `json:"flags"`

	WhisperTo []string `json:"whisperTo"`
	Whisper   []string `json:"whisper"`
}

func decodeRecord(line []byte) (model.EventRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return model.EventRecord{}, err
	}

	rec := model.EventRecord{
		ID:          firstNonEmpty(w.ID, w.AltID),
		Timestamp:   w.Timestamp,
		Author:      firstNonEmpty(w.Author, w.AltAuthor),
		Body:        firstNonEmpty(w.Body, w.Content),
		Flavor:      w.Flavor,
		Style:       w.Style,
		Rolls:       w.Rolls,
		Annotations: w.Annotations,
		WhisperTo:   w.WhisperTo,
	}
	if rec.Annotations == nil && len(w.Flags) > 0 {
		rec.Annotations = w.Flags
	}
	if len(rec.WhisperTo) == 0 {
		rec.WhisperTo = w.Whisper
	}

	if rec.ID == "" {
		return model.EventRecord{}, fmt.Errorf("record has no id")
	}
	if rec.Timestamp < 0 {
		return model.EventRecord{}, fmt.Errorf("record %s has negative timestamp", rec.ID)
	}
	return rec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
