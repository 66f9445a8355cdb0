// Package rank scores and orders indexer search results for a target work.
// Scores are composed on a 0-100 scale from weighted components (title/author
// match, format, size sanity, swarm health) with individually attributable
// bonus points layered on top. Ranking is deterministic: a fixed candidate
// list and config always produce identical ordering and scores.
package rank

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/normalize"
)

// Component weights. They sum to 100 so the base score is a percentage before
// bonus modifiers.
const (
	defaultMatchWeight  = 60.0
	defaultFormatWeight = 10.0
	defaultSizeWeight   = 15.0
	defaultSeederWeight = 15.0
)

// seederCap is the swarm size at which the seeder component saturates.
const seederCap = 100

// neutralComponent is the component value for inputs the score cannot judge:
// unknown duration, sources with no seeder concept. Neutral, never a penalty.
const neutralComponent = 0.5

// Bonus is one additive per-reason score adjustment, kept attributable for
// auditing why a release ranked where it did.
type Bonus struct {
	Reason string  `json:"reason"`
	Points float64 `json:"points"`
}

// Breakdown holds the weighted component scores that sum to the base score.
type Breakdown struct {
	Match  float64 `json:"match"`
	Format float64 `json:"format"`
	Size   float64 `json:"size"`
	Seeder float64 `json:"seeder"`
}

// RankedCandidate is a candidate annotated with its composite score and
// 1-based rank position after sorting.
type RankedCandidate struct {
	Candidate domain.Candidate
	Score     float64
	Breakdown Breakdown
	Bonuses   []Bonus
	Rank      int
}

// Target describes the work being searched for.
type Target struct {
	Title           string
	Author          string
	DurationMinutes int // 0 when unknown
}

// Config holds ranking weights and preferences. Pass by value; the ranker
// holds no ambient state.
type Config struct {
	// RequireAuthor hard-excludes candidates with no author-token overlap.
	// Used for automatic non-interactive search; interactive search leaves it
	// off and surfaces everything with its score for a human to judge.
	RequireAuthor bool

	// FormatScores maps container formats to a 0-1 preference. Formats not
	// listed score formatScoreUnknown.
	FormatScores map[string]float64

	// IndexerPriorities maps indexer ID to a configured priority bonus in
	// points. Zero means no bonus.
	IndexerPriorities map[int]float64

	// TrustedGroups is the set of release groups granted the trusted bonus.
	TrustedGroups map[string]struct{}

	// TrustedGroupBonus is the points granted for a trusted release group.
	TrustedGroupBonus float64

	// Region selects stop-word and character replacement tables for the
	// similarity comparison.
	Region normalize.Region
}

// formatScoreUnknown is the neutral preference for unidentified formats.
const formatScoreUnknown = 0.4

// DefaultFormatScores returns the standard audiobook/e-book format ladder.
func DefaultFormatScores() map[string]float64 {
	return map[string]float64{
		"m4b":  1.0,
		"m4a":  0.9,
		"flac": 0.8,
		"mp3":  0.7,
		"aac":  0.7,
		"ogg":  0.6,
		"epub": 1.0,
		"azw3": 0.8,
		"mobi": 0.7,
		"pdf":  0.4,
	}
}

// DefaultConfig returns a ranking configuration with the standard format
// ladder and no bonuses.
func DefaultConfig() Config {
	return Config{
		FormatScores:      DefaultFormatScores(),
		TrustedGroupBonus: 5,
		Region:            normalize.RegionFor("us"),
	}
}

// Ranker scores and orders candidates. Pure CPU-bound computation over
// already-fetched data.
type Ranker struct {
	logger zerolog.Logger
}

// NewRanker creates a Ranker.
func NewRanker(logger zerolog.Logger) *Ranker {
	return &Ranker{logger: logger}
}

// Rank scores every candidate and returns them ordered descending by score,
// ties broken by original discovery order. Candidates excluded by
// RequireAuthor are omitted entirely. An empty result is a legitimate
// outcome, not an error.
func (r *Ranker) Rank(candidates []domain.Candidate, target Target, cfg Config) []RankedCandidate {
	targetTitle := normalize.Title(target.Title)
	targetAuthor := normalize.Name(target.Author)

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		rel := c.Release()
		parsed := parseReleaseTitle(rel.Title)

		if cfg.RequireAuthor && !normalize.TokenOverlap(targetAuthor, parsed) {
			r.logger.Debug().Str("release", rel.Title).Msg("excluded: no author token overlap")
			continue
		}

		breakdown := Breakdown{
			Match:  defaultMatchWeight * matchComponent(parsed, targetTitle, targetAuthor, cfg.Region),
			Format: defaultFormatWeight * formatComponent(rel, cfg),
			Size:   defaultSizeWeight * sizeComponent(rel.SizeBytes, target.DurationMinutes),
			Seeder: defaultSeederWeight * seederComponent(c),
		}

		score := breakdown.Match + breakdown.Format + breakdown.Size + breakdown.Seeder

		var bonuses []Bonus
		if points := cfg.IndexerPriorities[rel.IndexerID]; points != 0 {
			bonuses = append(bonuses, Bonus{Reason: "indexer priority", Points: points})
		}
		if group := releaseGroup(rel.Title); group != "" {
			if _, ok := cfg.TrustedGroups[group]; ok {
				bonuses = append(bonuses, Bonus{Reason: "trusted release group", Points: cfg.TrustedGroupBonus})
			}
		}
		for _, b := range bonuses {
			score += b.Points
		}

		ranked = append(ranked, RankedCandidate{
			Candidate: c,
			Score:     score,
			Breakdown: breakdown,
			Bonuses:   bonuses,
		})
	}

	// Stable: ties keep original discovery order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return ranked
}

// matchComponent compares the parsed release name against the target title
// alone and against author+title combined, taking the stronger of the two.
// Release names usually prepend the author, which would otherwise depress a
// title-only comparison.
func matchComponent(parsed, targetTitle, targetAuthor string, region normalize.Region) float64 {
	titleOnly := normalize.RegionSimilarity(parsed, targetTitle, region)
	combined := normalize.RegionSimilarity(parsed, targetAuthor+" "+targetTitle, region)
	return math.Max(titleOnly, combined)
}

// formatComponent scores the release container format against the configured
// preference ladder.
func formatComponent(rel domain.Release, cfg Config) float64 {
	format := rel.Format
	if format == "" {
		format = sniffFormat(rel.Title)
	}
	if format == "" {
		return formatScoreUnknown
	}
	if score, ok := cfg.FormatScores[format]; ok {
		return score
	}
	return formatScoreUnknown
}

// sizeComponent compares release size in MB per minute of runtime against the
// expected audiobook bitrate band. Unknown duration or size is neutral.
func sizeComponent(sizeBytes int64, durationMinutes int) float64 {
	if sizeBytes <= 0 || durationMinutes <= 0 {
		return neutralComponent
	}
	mbPerMin := float64(sizeBytes) / (1024 * 1024) / float64(durationMinutes)
	switch {
	case mbPerMin < 0.15:
		// Far below any plausible bitrate: likely a sample or wrong content.
		return 0.2
	case mbPerMin < 0.4:
		return 0.8
	case mbPerMin <= 1.5:
		return 1.0
	case mbPerMin <= 3.0:
		return 0.6
	default:
		return 0.2
	}
}

// seederComponent scores swarm health on a log scale. Sources without a
// seeder concept get a fixed neutral value so they are not unfairly penalized
// against swarm sources.
func seederComponent(c domain.Candidate) float64 {
	seeders, ok := c.Seeders()
	if !ok {
		return neutralComponent
	}
	if seeders <= 0 {
		return 0
	}
	v := math.Log1p(float64(seeders)) / math.Log1p(seederCap)
	return math.Min(v, 1.0)
}
