package orchestrator

import (
	"strings"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/match"
	"github.com/shelfarr/shelfarr/internal/normalize"
	"github.com/shelfarr/shelfarr/internal/rank"
)

// MatchConfigFrom converts loaded matching settings into the engine's
// configuration. Zero values fall back to the engine defaults.
func MatchConfigFrom(cfg config.MatchingConfig) match.Config {
	out := match.DefaultConfig()
	if cfg.Threshold > 0 {
		out.Threshold = cfg.Threshold
	}
	if cfg.TitleWeight > 0 {
		out.TitleWeight = cfg.TitleWeight
	}
	if cfg.PersonWeight > 0 {
		out.PersonWeight = cfg.PersonWeight
	}
	if cfg.Region != "" {
		out.Region = normalize.RegionFor(cfg.Region)
	}
	return out
}

// RankConfigFrom converts loaded ranking settings and per-indexer priorities
// into the ranker's configuration. Region follows the matching settings so
// both comparisons use the same similarity tables.
func RankConfigFrom(ranking config.RankingConfig, indexers []config.IndexerConfig, region string) rank.Config {
	out := rank.DefaultConfig()
	out.RequireAuthor = ranking.RequireAuthor
	if len(ranking.FormatScores) > 0 {
		out.FormatScores = ranking.FormatScores
	}
	if ranking.TrustedGroupBonus > 0 {
		out.TrustedGroupBonus = ranking.TrustedGroupBonus
	}
	if len(ranking.TrustedGroups) > 0 {
		out.TrustedGroups = make(map[string]struct{}, len(ranking.TrustedGroups))
		for _, g := range ranking.TrustedGroups {
			out.TrustedGroups[strings.ToLower(g)] = struct{}{}
		}
	}
	if region != "" {
		out.Region = normalize.RegionFor(region)
	}
	priorities := make(map[int]float64)
	for _, idx := range indexers {
		if idx.Priority != 0 {
			priorities[idx.ID] = float64(idx.Priority)
		}
	}
	if len(priorities) > 0 {
		out.IndexerPriorities = priorities
	}
	return out
}

// TimeoutsFrom derives the external-call timeouts from the client
// configurations.
func TimeoutsFrom(cfg *config.Config) Timeouts {
	return Timeouts{
		Library: cfg.Library.Timeout,
		Search:  cfg.Prowlarr.Timeout,
		Submit:  cfg.DownloadClient.Timeout,
	}
}
