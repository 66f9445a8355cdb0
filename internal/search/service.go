package search

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/observability"
)

// Searcher is the query contract the service needs from the aggregation
// client; satisfied by *ProwlarrClient.
type Searcher interface {
	Search(ctx context.Context, query string, indexerIDs []int, categories []int) ([]domain.Candidate, error)
}

// GroupResult holds the outcome of one category group's search.
type GroupResult struct {
	// Group is the category group name.
	Group string

	// Candidates contains the search results if the search succeeded.
	// Will be nil if Error is non-nil.
	Candidates []domain.Candidate

	// Error contains the error if the group's search failed.
	Error error
}

// Service fans a query out across all configured category groups. Groups are
// searched concurrently and fail independently.
type Service struct {
	client  Searcher
	groups  map[string][]config.IndexerConfig
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewService creates a search service over the configured indexer groups.
func NewService(client Searcher, groups map[string][]config.IndexerConfig, metrics *observability.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		client:  client,
		groups:  groups,
		metrics: metrics,
		logger:  logger.With().Str("component", "search").Logger(),
	}
}

// Search queries every category group concurrently and concatenates the
// successful groups' candidates. Per-group outcomes are returned alongside so
// the caller can distinguish "no results" from "every group failed".
func (s *Service) Search(ctx context.Context, query string) ([]domain.Candidate, []GroupResult, error) {
	if query == "" {
		return nil, nil, domain.NewValidationError("query", "search query is required")
	}
	if len(s.groups) == 0 {
		return nil, nil, nil
	}

	resultChan := make(chan GroupResult, len(s.groups))
	var wg sync.WaitGroup

	for name, indexers := range s.groups {
		wg.Add(1)
		go func(group string, indexers []config.IndexerConfig) {
			defer wg.Done()
			resultChan <- s.searchGroup(ctx, group, indexers, query)
		}(name, indexers)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]GroupResult, 0, len(s.groups))
	for result := range resultChan {
		results = append(results, result)
	}
	// The channel drains in completion order; sort for a deterministic
	// report.
	sort.Slice(results, func(i, j int) bool { return results[i].Group < results[j].Group })

	var candidates []domain.Candidate
	for _, result := range results {
		if result.Error != nil {
			s.logger.Warn().
				Err(result.Error).
				Str("group", result.Group).
				Msg("Indexer group search failed")
			continue
		}
		candidates = append(candidates, result.Candidates...)
	}
	return candidates, results, nil
}

// searchGroup runs one group's search with the group's combined indexer IDs
// and category lists.
func (s *Service) searchGroup(ctx context.Context, group string, indexers []config.IndexerConfig, query string) GroupResult {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.SearchesStarted.WithLabelValues(group).Inc()
	}

	ids := make([]int, 0, len(indexers))
	seen := make(map[int]struct{})
	var categories []int
	for _, idx := range indexers {
		ids = append(ids, idx.ID)
		for _, cat := range idx.Categories {
			if _, ok := seen[cat]; ok {
				continue
			}
			seen[cat] = struct{}{}
			categories = append(categories, cat)
		}
	}

	candidates, err := s.client.Search(ctx, query, ids, categories)
	if s.metrics != nil {
		s.metrics.SearchDuration.WithLabelValues(group).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.SearchesFailed.WithLabelValues(group).Inc()
		}
	}
	if err != nil {
		return GroupResult{Group: group, Error: err}
	}
	return GroupResult{Group: group, Candidates: candidates}
}
