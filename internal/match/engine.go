// Package match decides whether a requested work is already present in the
// user's library. Candidates are evaluated in strict priority order: exact
// ASIN-in-identifier, exact ISBN, then fuzzy title/author similarity. There is
// no score blending across tiers; the first tier that produces a hit wins.
package match

import (
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/normalize"
)

// MatchType identifies which tier produced a match.
type MatchType string

const (
	MatchTypeASIN  MatchType = "asin"
	MatchTypeISBN  MatchType = "isbn"
	MatchTypeFuzzy MatchType = "fuzzy"
)

// NoMatchReason distinguishes the ways a matching pass can come up empty.
// The codes are logged separately for diagnosability.
type NoMatchReason string

const (
	// NoMatchNone means a match was found.
	NoMatchNone NoMatchReason = ""
	// NoMatchNoCandidates means the library supplied zero candidates.
	NoMatchNoCandidates NoMatchReason = "no_candidates"
	// NoMatchASINConflict means every candidate was rejected for carrying a
	// different ASIN than the target.
	NoMatchASINConflict NoMatchReason = "asin_conflict"
	// NoMatchBelowThreshold means the best fuzzy score fell below the accept
	// threshold.
	NoMatchBelowThreshold NoMatchReason = "below_threshold"
)

// Match describes a library item matched to a work, with the tier that
// produced it and a 0-100 confidence.
type Match struct {
	Item       domain.LibraryItem
	Type       MatchType
	Confidence int

	// TitleScore and PersonScore are the fuzzy component scores; zero for
	// ASIN and ISBN matches.
	TitleScore  float64
	PersonScore float64

	// UsedNarratorMatch records that the person score came from comparing the
	// work's narrator against the candidate's author field. Some library
	// backends store the narrator there.
	UsedNarratorMatch bool
}

// Outcome is the result of one matching pass: either a match or a reason for
// its absence. Absence is data, not an error.
type Outcome struct {
	Match  *Match
	Reason NoMatchReason
}

// Config holds the matching thresholds and weights.
type Config struct {
	// Threshold is the minimum overall fuzzy score to accept a match.
	Threshold float64
	// TitleWeight and PersonWeight combine the two fuzzy component scores.
	TitleWeight  float64
	PersonWeight float64
	// Region selects stop-word and character replacement tables.
	Region normalize.Region
}

// DefaultConfig returns the standard matching configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:    0.70,
		TitleWeight:  0.7,
		PersonWeight: 0.3,
		Region:       normalize.RegionFor("us"),
	}
}

// Engine matches works against library records. Matching is pure CPU-bound
// computation over already-fetched data; results are never cached across
// calls because library state can change between them.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// asinTokenRe matches runs of alphanumerics inside an opaque library GUID.
var asinTokenRe = regexp.MustCompile(`[0-9A-Za-z]+`)

// FindMatch returns the best matching library item for the work, or the
// reason no match was found. At most one item is matched per pass.
func (e *Engine) FindMatch(work *domain.Work, items []domain.LibraryItem) Outcome {
	if len(items) == 0 {
		e.logger.Debug().Str("work", work.Title).Str("reason", string(NoMatchNoCandidates)).
			Msg("library match skipped")
		return Outcome{Reason: NoMatchNoCandidates}
	}

	asin := work.ASIN()

	// Tier 1: the library GUID embeds the source ASIN. Accepted immediately,
	// before any fuzzy scoring, regardless of title/author dissimilarity.
	if asin != "" {
		for _, item := range items {
			if strings.Contains(item.ExternalGUID, asin) {
				e.logger.Debug().Str("work", work.Title).Str("guid", item.ExternalGUID).
					Msg("exact asin match")
				return Outcome{Match: &Match{Item: item, Type: MatchTypeASIN, Confidence: 100}}
			}
		}

		// ASIN conflict filter: drop candidates tagged with someone else's
		// ASIN so similarly-named titles cannot fuzzy-match across works.
		filtered := items[:0:0]
		for _, item := range items {
			if conflictingASIN(item.ExternalGUID, asin) {
				continue
			}
			filtered = append(filtered, item)
		}
		if len(filtered) == 0 {
			e.logger.Debug().Str("work", work.Title).Str("reason", string(NoMatchASINConflict)).
				Msg("all candidates rejected")
			return Outcome{Reason: NoMatchASINConflict}
		}
		items = filtered
	}

	// Tier 2: exact ISBN embedded in the GUID, compared after stripping
	// dashes and spaces and upper-casing both sides.
	if isbn := normalizeISBN(work.ISBN()); isbn != "" {
		for _, item := range items {
			if strings.Contains(normalizeISBN(item.ExternalGUID), isbn) {
				e.logger.Debug().Str("work", work.Title).Str("guid", item.ExternalGUID).
					Msg("exact isbn match")
				return Outcome{Match: &Match{Item: item, Type: MatchTypeISBN, Confidence: 95}}
			}
		}
	}

	// Tier 3: fuzzy title/author similarity.
	return e.fuzzyMatch(work, items)
}

func (e *Engine) fuzzyMatch(work *domain.Work, items []domain.LibraryItem) Outcome {
	workTitle := normalize.Title(work.Title)
	workAuthor := normalize.Name(work.Author)
	workNarrator := normalize.Name(work.Narrator)

	var best *Match
	bestScore := 0.0

	for _, item := range items {
		titleScore := normalize.RegionSimilarity(workTitle, normalize.Title(item.Title), e.cfg.Region)

		itemAuthor := normalize.Name(item.Author)
		personScore := normalize.Similarity(workAuthor, itemAuthor)
		usedNarrator := false
		// The candidate's author field frequently stores the narrator in some
		// library backends; take whichever comparison is stronger.
		if workNarrator != "" {
			if narratorScore := normalize.Similarity(workNarrator, itemAuthor); narratorScore > personScore {
				personScore = narratorScore
				usedNarrator = true
			}
		}

		overall := e.cfg.TitleWeight*titleScore + e.cfg.PersonWeight*personScore
		if overall > bestScore {
			bestScore = overall
			best = &Match{
				Item:              item,
				Type:              MatchTypeFuzzy,
				Confidence:        int(math.Round(overall * 100)),
				TitleScore:        titleScore,
				PersonScore:       personScore,
				UsedNarratorMatch: usedNarrator,
			}
		}
	}

	if best == nil || bestScore < e.cfg.Threshold {
		e.logger.Debug().Str("work", work.Title).Float64("best_score", bestScore).
			Str("reason", string(NoMatchBelowThreshold)).Msg("fuzzy match rejected")
		return Outcome{Reason: NoMatchBelowThreshold}
	}

	e.logger.Debug().Str("work", work.Title).Float64("score", bestScore).
		Bool("used_narrator", best.UsedNarratorMatch).Msg("fuzzy match accepted")
	return Outcome{Match: best}
}

// conflictingASIN reports whether the GUID contains an ASIN-shaped token that
// differs from the target ASIN.
func conflictingASIN(guid, target string) bool {
	for _, token := range asinTokenRe.FindAllString(guid, -1) {
		if len(token) == 10 && domain.IsASIN(token) && token != target {
			return true
		}
	}
	return false
}

// normalizeISBN strips dashes and spaces and upper-cases for exact ISBN
// comparison. Returns "" for empty input.
func normalizeISBN(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.ToUpper(s)
}
