package archive

import "testing"

// TestCompressionRatio verifies the rounded-percentage math across edge
// counts.
func TestCompressionRatio(t *testing.T) {
	cases := []struct {
		name       string
		original   int
		compressed int
		want       int
	}{
		{"no compression", 10, 10, 0},
		{"half", 10, 5, 50},
		{"combat collapse", 47, 1, 98},
		{"rounds up", 3, 2, 33},
		{"rounds to whole", 9, 1, 89},
		{"empty input", 0, 0, 0},
		{"negative original", -1, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CompressionRatio(tc.original, tc.compressed); got != tc.want {
				t.Errorf("CompressionRatio(%d, %d) = %d, want %d",
					tc.original, tc.compressed, got, tc.want)
			}
		})
	}
}

// TestPassRatio verifies the pass helper defers to the same math.
func TestPassRatio(t *testing.T) {
	p := Pass{OriginalMessageCount: 100, CompressedEntryCount: 25}
	if got := p.Ratio(); got != 75 {
		t.Errorf("ratio = %d, want 75", got)
	}
}

// TestEntryHas verifies category membership.
func TestEntryHas(t *testing.T) {
	e := Entry{Categories: []string{"roll", "combat"}}
	if !e.Has("combat") {
		t.Error("present category not found")
	}
	if e.Has("speech") {
		t.Error("absent category found")
	}
	if (Entry{}).Has("roll") {
		t.Error("empty entry claims a category")
	}
}

// TestStatisticsAdd verifies field-by-field summation.
func TestStatisticsAdd(t *testing.T) {
	a := Statistics{Encounters: 1, Rolls: 4, KeyEvents: 2}
	a.Add(Statistics{Encounters: 2, Rolls: 1, CriticalSuccesses: 3, KeyEvents: 1})

	want := Statistics{Encounters: 3, Rolls: 5, CriticalSuccesses: 3, KeyEvents: 3}
	if a != want {
		t.Errorf("sum = %+v, want %+v", a, want)
	}
}
