// Package library implements a read-only client for an Audiobookshelf-style
// library backend. The service only ever asks one question of the library:
// which items match a title prefix.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/domain"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultLimit caps the number of items returned per search.
	DefaultLimit = 25

	serviceName = "library"
)

// Client talks to the library backend. Safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	libraryID string
	limit     int
	http      *http.Client
	logger    zerolog.Logger
}

// NewClient creates a library client from configuration.
func NewClient(cfg *config.LibraryConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		libraryID: cfg.LibraryID,
		limit:     DefaultLimit,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", serviceName).Logger(),
	}
}

// searchResponse mirrors the backend's search payload. Only the fields the
// match engine consumes are decoded.
type searchResponse struct {
	Book []struct {
		LibraryItem struct {
			ID    string `json:"id"`
			Media struct {
				Metadata struct {
					Title      string `json:"title"`
					AuthorName string `json:"authorName"`
				} `json:"metadata"`
			} `json:"media"`
		} `json:"libraryItem"`
	} `json:"book"`
}

// SearchByTitlePrefix returns the library items whose titles match the given
// prefix. An empty result is a valid answer, not an error.
func (c *Client) SearchByTitlePrefix(ctx context.Context, prefix string) ([]domain.LibraryItem, error) {
	if prefix == "" {
		return nil, domain.NewValidationError("prefix", "search prefix is required")
	}

	query := url.Values{}
	query.Set("q", prefix)
	query.Set("limit", fmt.Sprintf("%d", c.limit))

	endpoint := fmt.Sprintf("%s/api/libraries/%s/search?%s", c.baseURL, c.libraryID, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &domain.ExternalError{Service: serviceName, Operation: "search", Cause: err}
	}

	items := make([]domain.LibraryItem, 0, len(body.Book))
	for _, result := range body.Book {
		items = append(items, domain.LibraryItem{
			ExternalGUID: result.LibraryItem.ID,
			Title:        result.LibraryItem.Media.Metadata.Title,
			Author:       result.LibraryItem.Media.Metadata.AuthorName,
		})
	}

	c.logger.Debug().
		Str("prefix", prefix).
		Int("items", len(items)).
		Msg("Library search completed")
	return items, nil
}
