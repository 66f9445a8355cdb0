package downloadclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/domain"
)

const testHash = "aabbccddeeff00112233445566778899aabbccdd"

// fakeQbit is a minimal qBittorrent Web API double.
type fakeQbit struct {
	torrents      []torrentInfo
	loginCount    int
	deletedHashes []string
	deletedFiles  bool
	rejectSID     bool
}

func (f *fakeQbit) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.loginCount++
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "session-1"})
		_, _ = w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/torrents/add", func(w http.ResponseWriter, r *http.Request) {
		if f.checkAuth(w, r) {
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkAuth(w, r) {
			return
		}
		hashes := r.URL.Query().Get("hashes")
		var out []torrentInfo
		for _, t := range f.torrents {
			if hashes == "" || hashes == t.Hash {
				out = append(out, t)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/v2/torrents/delete", func(w http.ResponseWriter, r *http.Request) {
		if !f.checkAuth(w, r) {
			return
		}
		_ = r.ParseForm()
		f.deletedHashes = append(f.deletedHashes, r.Form.Get("hashes"))
		f.deletedFiles = r.Form.Get("deleteFiles") == "true"
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (f *fakeQbit) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie("SID")
	if err != nil || cookie.Value == "" || f.rejectSID {
		f.rejectSID = false
		w.WriteHeader(http.StatusForbidden)
		return false
	}
	return true
}

func newTestClient(t *testing.T, fake *fakeQbit) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewClient(&config.DownloadClientConfig{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "adminadmin",
		Timeout:  5 * time.Second,
	}, zerolog.Nop())
}

func magnetCandidate() domain.Candidate {
	return domain.TorrentCandidate{
		Release_: domain.Release{
			Title:       "Project Hail Mary [M4B]",
			DownloadURI: "magnet:?xt=urn:btih:" + testHash + "&dn=phm",
		},
		SeederCount: 12,
		InfoHash:    testHash,
	}
}

func TestClient_Submit(t *testing.T) {
	t.Run("returns info-hash from magnet URI", func(t *testing.T) {
		fake := &fakeQbit{}
		client := newTestClient(t, fake)

		jobID, err := client.Submit(context.Background(), magnetCandidate())
		require.NoError(t, err)
		assert.Equal(t, testHash, jobID)
		assert.Equal(t, 1, fake.loginCount)
	})

	t.Run("falls back to newest torrent for non-magnet URIs", func(t *testing.T) {
		fake := &fakeQbit{torrents: []torrentInfo{{Hash: testHash, AddedOn: 100}}}
		client := newTestClient(t, fake)

		candidate := domain.DirectDownloadCandidate{
			Release_: domain.Release{
				Title:       "Some Book",
				DownloadURI: "https://indexer.example/dl/123.torrent",
			},
		}

		jobID, err := client.Submit(context.Background(), candidate)
		require.NoError(t, err)
		assert.Equal(t, testHash, jobID)
	})

	t.Run("rejects a candidate without a download URI", func(t *testing.T) {
		client := newTestClient(t, &fakeQbit{})

		_, err := client.Submit(context.Background(), domain.TorrentCandidate{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestClient_Status(t *testing.T) {
	t.Run("reports completion and seeding time", func(t *testing.T) {
		fake := &fakeQbit{torrents: []torrentInfo{{
			Hash:        testHash,
			Progress:    1.0,
			SeedingTime: 3600,
		}}}
		client := newTestClient(t, fake)

		status, err := client.Status(context.Background(), testHash)
		require.NoError(t, err)
		assert.True(t, status.Completed)
		assert.Equal(t, time.Hour, status.SeedingTime)
	})

	t.Run("reports an incomplete transfer", func(t *testing.T) {
		fake := &fakeQbit{torrents: []torrentInfo{{
			Hash:     testHash,
			Progress: 0.42,
		}}}
		client := newTestClient(t, fake)

		status, err := client.Status(context.Background(), testHash)
		require.NoError(t, err)
		assert.False(t, status.Completed)
		assert.InDelta(t, 0.42, status.Progress, 1e-9)
	})

	t.Run("maps an unknown job to not found", func(t *testing.T) {
		client := newTestClient(t, &fakeQbit{})

		_, err := client.Status(context.Background(), testHash)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestClient_Delete(t *testing.T) {
	t.Run("deletes with files", func(t *testing.T) {
		fake := &fakeQbit{torrents: []torrentInfo{{Hash: testHash}}}
		client := newTestClient(t, fake)

		err := client.Delete(context.Background(), testHash, true)
		require.NoError(t, err)
		assert.Equal(t, []string{testHash}, fake.deletedHashes)
		assert.True(t, fake.deletedFiles)
	})

	t.Run("tolerates an already-absent job", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v2/auth/login" {
				http.SetCookie(w, &http.Cookie{Name: "SID", Value: "s"})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient(&config.DownloadClientConfig{BaseURL: srv.URL}, zerolog.Nop())
		err := client.Delete(context.Background(), testHash, false)
		assert.NoError(t, err)
	})
}

func TestClient_ReauthenticatesOnExpiredSession(t *testing.T) {
	fake := &fakeQbit{torrents: []torrentInfo{{Hash: testHash, Progress: 1.0}}}
	client := newTestClient(t, fake)

	// Prime the session, then invalidate it for the next call.
	_, err := client.Status(context.Background(), testHash)
	require.NoError(t, err)
	fake.rejectSID = true

	_, err = client.Status(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.loginCount)
}
