package normalize

import "strings"

// Similarity computes the Sørensen–Dice coefficient between two strings using
// character bigrams, returning a score in [0, 1]. Inputs should be normalized
// (see Title and Name) before comparison.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}

	bigramsA := bigrams(a)
	bigramsB := bigrams(b)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return 0.0
	}

	counts := make(map[string]int, len(bigramsA))
	for _, g := range bigramsA {
		counts[g]++
	}

	intersection := 0
	for _, g := range bigramsB {
		if counts[g] > 0 {
			counts[g]--
			intersection++
		}
	}

	return 2.0 * float64(intersection) / float64(len(bigramsA)+len(bigramsB))
}

// RegionSimilarity applies the region's replacement and stop-word tables to
// both inputs before computing Similarity.
func RegionSimilarity(a, b string, region Region) float64 {
	return Similarity(region.Apply(a), region.Apply(b))
}

// TokenOverlap reports whether the two strings share at least one token of
// two or more characters. Used by the ranker's require-author mode to
// hard-exclude releases with no author-token overlap.
func TokenOverlap(a, b string) bool {
	tokensA := strings.Fields(a)
	if len(tokensA) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(tokensA))
	for _, t := range tokensA {
		if len(t) >= 2 {
			set[t] = struct{}{}
		}
	}
	for _, t := range strings.Fields(b) {
		if len(t) < 2 {
			continue
		}
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	grams := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		// Cross-word bigrams add noise, not signal.
		if runes[i] == ' ' || runes[i+1] == ' ' {
			continue
		}
		grams = append(grams, string(runes[i:i+2]))
	}
	return grams
}
