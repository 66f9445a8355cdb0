// Package downloadclient implements a qBittorrent-compatible download client
// API: submit a release, poll its transfer status, and remove it with or
// without its files.
package downloadclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/domain"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultCategory tags submissions so the client can apply its own
	// policies (save path, ratio limits) without touching other torrents.
	DefaultCategory = "shelfarr"

	serviceName = "download-client"
)

// infoHashRe extracts the BitTorrent info-hash from a magnet URI.
var infoHashRe = regexp.MustCompile(`btih:([0-9A-Fa-f]{40})`)

// TransferStatus is the state of one client job, as needed by the deletion
// disposition logic.
type TransferStatus struct {
	// Completed reports whether the payload has fully downloaded.
	Completed bool
	// SeedingTime is how long the completed torrent has been seeding.
	SeedingTime time.Duration
	// Progress is the download completion fraction in [0, 1].
	Progress float64
}

// Client talks to a qBittorrent-compatible Web API. Safe for concurrent use;
// the session cookie is refreshed on authentication expiry.
type Client struct {
	baseURL  string
	username string
	password string
	category string
	http     *http.Client
	logger   zerolog.Logger

	mu  sync.Mutex
	sid string
}

// NewClient creates a download client from configuration.
func NewClient(cfg *config.DownloadClientConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	category := cfg.Category
	if category == "" {
		category = DefaultCategory
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		category: category,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", serviceName).Logger(),
	}
}

// Submit adds the candidate's download URI to the client and returns the
// client job ID. For torrents the job ID is the lowercase info-hash.
func (c *Client) Submit(ctx context.Context, candidate domain.Candidate) (string, error) {
	release := candidate.Release()
	if release.DownloadURI == "" {
		return "", domain.NewValidationError("download_uri", "candidate has no download URI")
	}

	form := url.Values{}
	form.Set("urls", release.DownloadURI)
	form.Set("category", c.category)

	resp, err := c.postForm(ctx, "/api/v2/torrents/add", form)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return "", c.apiError("submit", resp.StatusCode)
	}

	jobID := extractInfoHash(release.DownloadURI)
	if jobID == "" {
		// Non-magnet submissions have no hash in the URI; the newest
		// torrent in our category is the one just added.
		jobID, err = c.newestJobID(ctx)
		if err != nil {
			return "", err
		}
	}

	c.logger.Info().
		Str("job_id", jobID).
		Str("release", release.Title).
		Msg("Submitted release to download client")
	return jobID, nil
}

// Status returns the transfer status of a client job.
// Returns domain.ErrNotFound if the client no longer knows the job.
func (c *Client) Status(ctx context.Context, jobID string) (TransferStatus, error) {
	query := url.Values{}
	query.Set("hashes", jobID)

	var torrents []torrentInfo
	if err := c.getJSON(ctx, "/api/v2/torrents/info", query, &torrents); err != nil {
		return TransferStatus{}, err
	}
	if len(torrents) == 0 {
		return TransferStatus{}, &domain.NotFoundError{Entity: "client job", ID: jobID}
	}

	info := torrents[0]
	return TransferStatus{
		Completed:   info.Progress >= 1.0,
		SeedingTime: time.Duration(info.SeedingTime) * time.Second,
		Progress:    info.Progress,
	}, nil
}

// Delete removes a client job, optionally with its downloaded files. A job
// the client no longer knows is treated as already deleted, not an error.
func (c *Client) Delete(ctx context.Context, jobID string, withFiles bool) error {
	form := url.Values{}
	form.Set("hashes", jobID)
	form.Set("deleteFiles", fmt.Sprintf("%t", withFiles))

	resp, err := c.postForm(ctx, "/api/v2/torrents/delete", form)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound, http.StatusConflict:
		// 404/409 mean the hash is already gone.
		return nil
	default:
		return c.apiError("delete", resp.StatusCode)
	}
}

// torrentInfo is the subset of /torrents/info fields the disposition logic
// reads.
type torrentInfo struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Progress    float64 `json:"progress"`
	SeedingTime int64   `json:"seeding_time"`
	AddedOn     int64   `json:"added_on"`
}

// login authenticates against the Web API and caches the session cookie.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ExternalError{Service: serviceName, Operation: "login", Cause: err}
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return c.apiError("login", resp.StatusCode)
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "SID" {
			c.mu.Lock()
			c.sid = cookie.Value
			c.mu.Unlock()
			return nil
		}
	}
	return &domain.ExternalError{
		Service:   serviceName,
		Operation: "login",
		Cause:     fmt.Errorf("no session cookie in login response"),
	}
}

// do executes an authenticated request, logging in on first use and once more
// when the session has expired.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	c.mu.Lock()
	sid := c.sid
	c.mu.Unlock()

	if sid == "" {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		req.AddCookie(&http.Cookie{Name: "SID", Value: c.sid})
		c.mu.Unlock()

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &domain.ExternalError{Service: serviceName, Operation: req.URL.Path, Cause: err}
		}
		if resp.StatusCode == http.StatusForbidden && attempt == 0 {
			drain(resp)
			if err := c.login(ctx); err != nil {
				return nil, err
			}
			continue
		}
		return resp, nil
	}
	return nil, &domain.ExternalError{
		Service:   serviceName,
		Operation: "request",
		Cause:     fmt.Errorf("authentication retry exhausted"),
	}
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return c.apiError(path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ExternalError{Service: serviceName, Operation: path, Cause: err}
	}
	return nil
}

// newestJobID returns the hash of the most recently added torrent in our
// category.
func (c *Client) newestJobID(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("category", c.category)
	query.Set("sort", "added_on")
	query.Set("reverse", "true")
	query.Set("limit", "1")

	var torrents []torrentInfo
	if err := c.getJSON(ctx, "/api/v2/torrents/info", query, &torrents); err != nil {
		return "", err
	}
	if len(torrents) == 0 {
		return "", &domain.ExternalError{
			Service:   serviceName,
			Operation: "submit",
			Cause:     fmt.Errorf("submitted release not visible in client"),
		}
	}
	return torrents[0].Hash, nil
}

func (c *Client) apiError(operation string, status int) error {
	return &domain.ExternalError{
		Service:    serviceName,
		Operation:  operation,
		StatusCode: status,
		Cause:      fmt.Errorf("unexpected status %d", status),
	}
}

// extractInfoHash pulls the lowercase info-hash out of a magnet URI, or
// returns the empty string for non-magnet URIs.
func extractInfoHash(uri string) string {
	m := infoHashRe.FindStringSubmatch(uri)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
