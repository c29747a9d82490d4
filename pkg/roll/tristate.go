package roll

import "bytes"

// Tristate is a three-valued boolean: unknown until proven true or false.
// Callers must treat TriUnknown as "unknown", never as "false".
type Tristate int8

const (
	TriUnknown Tristate = iota
	TriTrue
	TriFalse
)

// Bool returns the value and whether it is known.
func (t Tristate) Bool() (value, known bool) {
	switch t {
	case TriTrue:
		return true, true
	case TriFalse:
		return false, true
	default:
		return false, false
	}
}

var (
	jsonNull  = []byte("null")
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
)

// MarshalJSON encodes unknown as null so archives round-trip the
// three-valued semantics.
func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case TriTrue:
		return jsonTrue, nil
	case TriFalse:
		return jsonFalse, nil
	default:
		return jsonNull, nil
	}
}

// UnmarshalJSON decodes null/true/false; anything else stays unknown.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, jsonTrue):
		*t = TriTrue
	case bytes.Equal(data, jsonFalse):
		*t = TriFalse
	default:
		*t = TriUnknown
	}
	return nil
}
