package aggregate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lorekeep/lorekeep/pkg/archive"
	"github.com/lorekeep/lorekeep/pkg/textutil"
)

// domainTerms is the fixed keyword dictionary; a term is indexed when it
// appears in an entry's text.
var domainTerms = []string{
	"attack", "damage", "critical", "spell", "save", "initiative",
	"round", "heal", "treasure", "loot", "death", "unconscious",
	"stealth", "perception", "hero point", "level up",
}

var (
	properNounRE = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
	sceneRE      = regexp.MustCompile(`(?i)(?:arrives? at|enters? the|scene:)\s+([A-Z][\w' -]*)`)
)

// stopwords excludes sentence-leading capitals that are not names.
var stopwords = map[string]bool{
	"The": true, "And": true, "But": true, "You": true, "They": true,
	"She": true, "His": true, "Her": true, "With": true, "That": true,
	"This": true, "Target": true, "Round": true, "Roll": true,
}

type indexBuilder struct {
	keywords map[string]bool
	actors   map[string]bool
	scenes   map[string]bool
	byType   map[string][]string
}

func newIndexBuilder() *indexBuilder {
	return &indexBuilder{
		keywords: make(map[string]bool),
		actors:   make(map[string]bool),
		scenes:   make(map[string]bool),
		byType:   make(map[string][]string),
	}
}

func (b *indexBuilder) addEntry(e *archive.Entry) {
	for _, c := range e.Categories {
		b.byType[c] = append(b.byType[c], e.ID)
	}

	var raw string
	switch {
	case e.Record != nil:
		raw = textutil.Strip(e.Record.Body)
		if e.Record.Flavor != "" {
			raw += " " + textutil.Strip(e.Record.Flavor)
		}
		b.addActor(e.Record.Author)
	case e.Combat != nil:
		raw = e.Combat.Title
		for _, p := range e.Combat.Participants {
			b.addActor(p)
		}
	default:
		raw = e.DisplayText
	}

	lower := strings.ToLower(raw)
	for _, term := range domainTerms {
		if strings.Contains(lower, term) {
			b.keywords[term] = true
		}
	}
	for _, noun := range properNounRE.FindAllString(raw, -1) {
		if !stopwords[noun] {
			b.keywords[strings.ToLower(noun)] = true
		}
	}
	for _, m := range sceneRE.FindAllStringSubmatch(raw, -1) {
		b.scenes[strings.TrimSpace(m[1])] = true
	}
}

func (b *indexBuilder) addActor(name string) {
	if name != "" {
		b.actors[name] = true
	}
}

func (b *indexBuilder) build() archive.SearchIndex {
	return archive.SearchIndex{
		Keywords: sortedKeys(b.keywords),
		Actors:   sortedKeys(b.actors),
		Scenes:   sortedKeys(b.scenes),
		ByType:   b.byType,
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MergeIndex unions two search indexes.
func MergeIndex(a, b archive.SearchIndex) archive.SearchIndex {
	out := archive.SearchIndex{
		Keywords: unionSorted(a.Keywords, b.Keywords),
		Actors:   unionSorted(a.Actors, b.Actors),
		Scenes:   unionSorted(a.Scenes, b.Scenes),
		ByType:   make(map[string][]string),
	}
	for k, ids := range a.ByType {
		out.ByType[k] = append(out.ByType[k], ids...)
	}
	for k, ids := range b.ByType {
		out.ByType[k] = appendMissing(out.ByType[k], ids)
	}
	return out
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}
	return sortedKeys(seen)
}

func appendMissing(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			dst = append(dst, s)
		}
	}
	return dst
}
