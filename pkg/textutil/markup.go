// Package textutil provides text normalization helpers shared by the
// classification rules. Chat bodies arrive with presentation markup; most
// rules match against the stripped text, while a few inspect the raw markup
// for style-class hints.
package textutil

import (
	"regexp"
	"strings"
)

var (
	tagRE    = regexp.MustCompile(`<[^>]*>`)
	spaceRE  = regexp.MustCompile(`\s+`)
	entityRE = regexp.MustCompile(`&(nbsp|amp|lt|gt|quot|#\d+);`)
)

// Strip removes markup tags and collapses whitespace.
func Strip(s string) string {
	if s == "" {
		return ""
	}
	out := tagRE.ReplaceAllString(s, " ")
	out = entityRE.ReplaceAllStringFunc(out, func(e string) string {
		switch e {
		case "&amp;":
			return "&"
		case "&lt;":
			return "<"
		case "&gt;":
			return ">"
		case "&quot;":
			return `"`
		default:
			return " "
		}
	})
	return strings.TrimSpace(spaceRE.ReplaceAllString(out, " "))
}

// StripLower returns the stripped text lowercased, the form most keyword
// rules match against.
func StripLower(s string) string {
	return strings.ToLower(Strip(s))
}

var classAttrRE = regexp.MustCompile(`(?i)class\s*=\s*["']([^"']*)["']`)

// HasClass reports whether raw markup carries a CSS-like class hint.
// Some signals (critical outcome styling) exist only as presentation
// classes, never as plain words.
func HasClass(raw, class string) bool {
	if raw == "" || class == "" {
		return false
	}
	class = strings.ToLower(class)
	for _, m := range classAttrRE.FindAllStringSubmatch(raw, -1) {
		if strings.Contains(strings.ToLower(m[1]), class) {
			return true
		}
	}
	return false
}

// ContainsAny reports whether text contains any of the given lowercase
// phrases. Callers pass already-lowered text.
func ContainsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
