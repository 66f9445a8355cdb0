package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/domain"
)

const (
	// DefaultTimeout is the default per-search HTTP timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the default sustained request rate against the
	// aggregation service.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default rate limiter burst size.
	DefaultBurstSize = 5

	// apiKeyHeader carries the Prowlarr API key.
	apiKeyHeader = "X-Api-Key"

	serviceName = "prowlarr"
)

// ProwlarrClient queries a Prowlarr-compatible aggregation service. Safe for
// concurrent use.
type ProwlarrClient struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// NewProwlarrClient creates an aggregation service client from configuration.
func NewProwlarrClient(cfg *config.ProwlarrConfig, logger zerolog.Logger) *ProwlarrClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond == 0 {
		ratePerSecond = DefaultRateLimit
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = DefaultBurstSize
	}
	return &ProwlarrClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		http:        &http.Client{Timeout: timeout},
		rateLimiter: NewRateLimiter(ratePerSecond, burst),
		logger:      logger.With().Str("component", serviceName).Logger(),
	}
}

// searchResult mirrors one entry of the aggregation service's search payload.
type searchResult struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Size        int64     `json:"size"`
	IndexerID   int       `json:"indexerId"`
	Indexer     string    `json:"indexer"`
	Protocol    string    `json:"protocol"`
	Seeders     int       `json:"seeders"`
	Leechers    int       `json:"leechers"`
	InfoHash    string    `json:"infoHash"`
	DownloadURL string    `json:"downloadUrl"`
	MagnetURL   string    `json:"magnetUrl"`
	PublishDate time.Time `json:"publishDate"`
	FileName    string    `json:"fileName"`
}

// Search queries the given indexers for a free-text query restricted to the
// given category IDs. Result ordering is treated as unordered input; ranking
// happens downstream.
func (c *ProwlarrClient) Search(ctx context.Context, query string, indexerIDs []int, categories []int) ([]domain.Candidate, error) {
	if query == "" {
		return nil, domain.NewValidationError("query", "search query is required")
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	values := url.Values{}
	values.Set("query", query)
	values.Set("type", "search")
	for _, id := range indexerIDs {
		values.Add("indexerIds", strconv.Itoa(id))
	}
	for _, cat := range categories {
		values.Add("categories", strconv.Itoa(cat))
	}

	endpoint := c.baseURL + "/api/v1/search?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.ExternalError{Service: serviceName, Operation: "search", Cause: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ExternalError{
			Service:    serviceName,
			Operation:  "search",
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, &domain.ExternalError{Service: serviceName, Operation: "search", Cause: err}
	}

	candidates := make([]domain.Candidate, 0, len(results))
	for _, result := range results {
		candidates = append(candidates, toCandidate(result))
	}
	return candidates, nil
}

// toCandidate projects one raw result onto the tagged candidate union by
// transfer protocol.
func toCandidate(r searchResult) domain.Candidate {
	release := domain.Release{
		Title:       r.Title,
		SizeBytes:   r.Size,
		IndexerID:   r.IndexerID,
		IndexerName: r.Indexer,
		Format:      sniffContainer(r.FileName),
		PublishDate: r.PublishDate,
		DownloadURI: r.DownloadURL,
	}

	switch r.Protocol {
	case "torrent":
		if r.MagnetURL != "" {
			release.DownloadURI = r.MagnetURL
		}
		return domain.TorrentCandidate{
			Release_:     release,
			SeederCount:  r.Seeders,
			LeecherCount: r.Leechers,
			InfoHash:     strings.ToLower(r.InfoHash),
		}
	case "usenet":
		age := time.Duration(0)
		if !r.PublishDate.IsZero() {
			age = time.Since(r.PublishDate)
		}
		return domain.UsenetCandidate{Release_: release, Age: age}
	default:
		return domain.DirectDownloadCandidate{Release_: release}
	}
}

// sniffContainer extracts a container format from a file name extension, when
// the indexer reports one.
func sniffContainer(fileName string) string {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 || idx == len(fileName)-1 {
		return ""
	}
	return strings.ToLower(fileName[idx+1:])
}
