package normalize

import "strings"

// Region selects the stop-word list and character replacement table applied
// before similarity comparison. Diacritics and region-specific filler words
// must not spuriously depress match scores for non-English catalogs.
type Region struct {
	Code         string
	StopWords    map[string]struct{}
	Replacements map[rune]string
}

var regions = map[string]Region{
	"us": {
		Code:      "us",
		StopWords: stopWordSet("the", "a", "an", "and", "of"),
	},
	"uk": {
		Code:      "uk",
		StopWords: stopWordSet("the", "a", "an", "and", "of"),
	},
	"de": {
		Code:      "de",
		StopWords: stopWordSet("der", "die", "das", "ein", "eine", "und", "von"),
		Replacements: map[rune]string{
			'ä': "ae", 'ö': "oe", 'ü': "ue", 'ß': "ss",
		},
	},
	"fr": {
		Code:      "fr",
		StopWords: stopWordSet("le", "la", "les", "un", "une", "des", "et", "de"),
		Replacements: map[rune]string{
			'é': "e", 'è': "e", 'ê': "e", 'ë': "e", 'à': "a", 'â': "a",
			'î': "i", 'ï': "i", 'ô': "o", 'ù': "u", 'û': "u", 'ç': "c",
		},
	},
	"es": {
		Code:      "es",
		StopWords: stopWordSet("el", "la", "los", "las", "un", "una", "y", "de"),
		Replacements: map[rune]string{
			'á': "a", 'é': "e", 'í': "i", 'ó': "o", 'ú': "u", 'ü': "u", 'ñ': "n",
		},
	},
}

// RegionFor returns the region for the given catalog region code. Unknown
// codes fall back to "us".
func RegionFor(code string) Region {
	if r, ok := regions[strings.ToLower(code)]; ok {
		return r
	}
	return regions["us"]
}

// Apply rewrites s through the region's character replacement table and drops
// region stop words. The input is expected to already be lowercased.
func (r Region) Apply(s string) string {
	if len(r.Replacements) > 0 {
		var sb strings.Builder
		sb.Grow(len(s))
		for _, c := range s {
			if rep, ok := r.Replacements[c]; ok {
				sb.WriteString(rep)
			} else {
				sb.WriteRune(c)
			}
		}
		s = sb.String()
	}

	if len(r.StopWords) == 0 {
		return s
	}

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, stop := r.StopWords[f]; !stop {
			kept = append(kept, f)
		}
	}
	// A title made entirely of stop words keeps its original form rather
	// than collapsing to nothing.
	if len(kept) == 0 {
		return s
	}
	return strings.Join(kept, " ")
}

func stopWordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
