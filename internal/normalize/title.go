// Package normalize provides title and name canonicalization plus the string
// similarity metric shared by library matching and candidate ranking. Both
// consumers must normalize identically: every threshold comparison downstream
// depends on it.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// Patterns stripped from titles before comparison. Edition markers and
// narrator credits are parenthetical; subtitle and series markers trail the
// title proper.
var (
	editionMarkerRe  = regexp.MustCompile(`\((?:unabridged|abridged|full cast|dramatized|narrated by[^)]*)\)`)
	subtitleSuffixRe = regexp.MustCompile(`:\s*a\s+(?:novel|thriller|memoir)\s*$`)
	seriesSuffixRe   = regexp.MustCompile(`[,:]\s*book\s+\d+\s*$`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// Title canonicalizes a book or audiobook title for comparison. It lowercases,
// strips parenthetical edition markers, trailing subtitle patterns, and
// trailing series markers, then collapses whitespace. Pure and deterministic;
// Title(Title(t)) == Title(t) for all t.
func Title(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = editionMarkerRe.ReplaceAllString(t, "")

	// Suffix markers can stack ("X: A Novel, Book 2"); the anchored patterns
	// remove one trailing marker at a time, so strip until nothing changes.
	for {
		stripped := subtitleSuffixRe.ReplaceAllString(t, "")
		stripped = seriesSuffixRe.ReplaceAllString(stripped, "")
		stripped = strings.TrimSpace(stripped)
		if stripped == t {
			break
		}
		t = stripped
	}

	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// Name normalizes a person name for comparison:
//   - Converts to lowercase
//   - Reorders "Last, First" format to "First Last"
//   - Removes all non-letter, non-space characters (apostrophes, periods, hyphens)
//   - Collapses runs of spaces and trims
func Name(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(name)

	// Handle "Last, First" format: split on comma, swap parts.
	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	prevSpace := false

	for _, r := range name {
		if unicode.IsLetter(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
		// All other characters are dropped.
	}

	return strings.TrimRight(sb.String(), " ")
}
