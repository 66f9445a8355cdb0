package rank

import (
	"regexp"
	"strings"
)

// Release-name noise commonly appended by indexers: bracketed tags, quality
// and bitrate markers, year stamps.
var (
	bracketRe   = regexp.MustCompile(`[\[({][^\])}]*[\])}]`)
	qualityTagRe = regexp.MustCompile(`\b(?:m4b|m4a|mp3|flac|aac|ogg|epub|mobi|azw3|pdf|\d{2,3}\s?kbps|v\d|retail|web|unabridged|abridged)\b`)
	yearRe      = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	separatorRe = regexp.MustCompile(`[._\-+]+`)
	spacesRe    = regexp.MustCompile(`\s+`)
)

// releaseGroupRe captures a trailing "-GROUP" tag when present.
var releaseGroupRe = regexp.MustCompile(`-([A-Za-z0-9]+)\s*$`)

// parseReleaseTitle reduces a raw release name to comparable words: separators
// become spaces, bracketed tags, quality markers, and years are dropped, and
// the result is lowercased with collapsed whitespace.
func parseReleaseTitle(raw string) string {
	t := strings.ToLower(raw)
	t = bracketRe.ReplaceAllString(t, " ")
	t = separatorRe.ReplaceAllString(t, " ")
	t = qualityTagRe.ReplaceAllString(t, " ")
	t = yearRe.ReplaceAllString(t, " ")
	t = spacesRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// releaseGroup extracts the trailing release-group tag from a raw release
// name, or "" when none is present.
func releaseGroup(raw string) string {
	m := releaseGroupRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// sniffFormat guesses the container format from release-name tokens when the
// indexer did not report one.
func sniffFormat(raw string) string {
	lower := strings.ToLower(raw)
	for _, f := range []string{"m4b", "m4a", "flac", "mp3", "aac", "ogg", "epub", "mobi", "azw3", "pdf"} {
		if strings.Contains(lower, f) {
			return f
		}
	}
	return ""
}
