package rank

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfarr/shelfarr/internal/domain"
)

func torrent(title string, sizeBytes int64, seeders, indexerID int) domain.Candidate {
	return domain.TorrentCandidate{
		Release_: domain.Release{
			Title:       title,
			SizeBytes:   sizeBytes,
			IndexerID:   indexerID,
			PublishDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			DownloadURI: "magnet:?xt=urn:btih:test",
		},
		SeederCount: seeders,
	}
}

func usenet(title string, sizeBytes int64, indexerID int) domain.Candidate {
	return domain.UsenetCandidate{
		Release_: domain.Release{
			Title:       title,
			SizeBytes:   sizeBytes,
			IndexerID:   indexerID,
			DownloadURI: "https://indexer.example/get/1",
		},
	}
}

func testTarget() Target {
	return Target{Title: "The Tenant", Author: "Freida McFadden", DurationMinutes: 600}
}

func TestRankDeterminism(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())
	candidates := []domain.Candidate{
		torrent("Freida McFadden - The Tenant (2023) M4B 64kbps", 300<<20, 40, 1),
		torrent("The Tenant - Freida McFadden MP3", 280<<20, 5, 2),
		usenet("Freida.McFadden.The.Tenant.M4B", 310<<20, 3),
	}

	first := ranker.Rank(candidates, testTarget(), DefaultConfig())
	second := ranker.Rank(candidates, testTarget(), DefaultConfig())

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Score, second[i].Score)
		assert.Equal(t, first[i].Rank, second[i].Rank)
		assert.Equal(t, first[i].Candidate.Release().Title, second[i].Candidate.Release().Title)
	}
}

func TestRankOrderingAndPositions(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())
	candidates := []domain.Candidate{
		torrent("Completely Unrelated Release", 300<<20, 1, 1),
		torrent("Freida McFadden - The Tenant M4B", 300<<20, 50, 1),
	}

	ranked := ranker.Rank(candidates, testTarget(), DefaultConfig())

	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, "Freida McFadden - The Tenant M4B", ranked[0].Candidate.Release().Title)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankStableTies(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())
	// Identical releases score identically; discovery order must be
	// preserved. The hashes do not influence the score but make the two
	// entries distinguishable.
	first := domain.TorrentCandidate{
		Release_:    domain.Release{Title: "The Tenant M4B", SizeBytes: 300 << 20, IndexerID: 1},
		SeederCount: 10,
		InfoHash:    "aaaa",
	}
	second := first
	second.InfoHash = "bbbb"

	ranked := ranker.Rank([]domain.Candidate{first, second}, testTarget(), DefaultConfig())

	require.Len(t, ranked, 2)
	assert.Equal(t, ranked[0].Score, ranked[1].Score)
	assert.Equal(t, "aaaa", ranked[0].Candidate.(domain.TorrentCandidate).InfoHash)
	assert.Equal(t, "bbbb", ranked[1].Candidate.(domain.TorrentCandidate).InfoHash)
}

func TestRankRequireAuthorExcludes(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())
	cfg := DefaultConfig()
	cfg.RequireAuthor = true

	candidates := []domain.Candidate{
		torrent("The Tenant M4B", 300<<20, 10, 1),
		torrent("Freida McFadden - The Tenant M4B", 300<<20, 10, 1),
	}

	ranked := ranker.Rank(candidates, testTarget(), cfg)

	require.Len(t, ranked, 1, "release without author tokens must be hard-excluded")
	assert.Equal(t, "Freida McFadden - The Tenant M4B", ranked[0].Candidate.Release().Title)

	// Inclusive mode surfaces everything with its score instead.
	cfg.RequireAuthor = false
	assert.Len(t, ranker.Rank(candidates, testTarget(), cfg), 2)
}

func TestRankUsenetSeederNeutral(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())

	// Same release over usenet and over a dead swarm: the usenet candidate
	// gets the neutral seeder component, the dead torrent gets zero.
	candidates := []domain.Candidate{
		torrent("Freida McFadden - The Tenant M4B", 300<<20, 0, 1),
		usenet("Freida McFadden - The Tenant M4B", 300<<20, 2),
	}

	ranked := ranker.Rank(candidates, testTarget(), DefaultConfig())

	require.Len(t, ranked, 2)
	assert.Equal(t, domain.SourceKindUsenet, ranked[0].Candidate.Kind())
	assert.Equal(t, 0.0, findByKind(t, ranked, domain.SourceKindTorrent).Breakdown.Seeder)
	assert.Equal(t, defaultSeederWeight*neutralComponent, findByKind(t, ranked, domain.SourceKindUsenet).Breakdown.Seeder)
}

func TestRankUnknownDurationSizeNeutral(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())
	target := testTarget()
	target.DurationMinutes = 0

	ranked := ranker.Rank([]domain.Candidate{
		torrent("Freida McFadden - The Tenant M4B", 5000<<20, 10, 1),
	}, target, DefaultConfig())

	require.Len(t, ranked, 1)
	// An absurd size must not be penalized when the runtime is unknown.
	assert.Equal(t, defaultSizeWeight*neutralComponent, ranked[0].Breakdown.Size)
}

func TestRankSizeBands(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())
	target := testTarget() // 600 minutes

	tests := []struct {
		name      string
		sizeBytes int64
		expected  float64
	}{
		{
			name:      "in band scores full",
			sizeBytes: 600 << 20, // 1.0 MB/min
			expected:  defaultSizeWeight * 1.0,
		},
		{
			name:      "far oversized penalized",
			sizeBytes: 6000 << 20, // 10 MB/min
			expected:  defaultSizeWeight * 0.2,
		},
		{
			name:      "tiny sample penalized",
			sizeBytes: 30 << 20, // 0.05 MB/min
			expected:  defaultSizeWeight * 0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := ranker.Rank([]domain.Candidate{
				torrent("Freida McFadden - The Tenant M4B", tt.sizeBytes, 10, 1),
			}, target, DefaultConfig())
			require.Len(t, ranked, 1)
			assert.InDelta(t, tt.expected, ranked[0].Breakdown.Size, 1e-9)
		})
	}
}

func TestRankBonusModifiers(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())
	cfg := DefaultConfig()
	cfg.IndexerPriorities = map[int]float64{7: 10}
	cfg.TrustedGroups = map[string]struct{}{"bookworm": {}}
	cfg.TrustedGroupBonus = 5

	plain := ranker.Rank([]domain.Candidate{
		torrent("Freida McFadden - The Tenant M4B", 300<<20, 10, 1),
	}, testTarget(), cfg)
	boosted := ranker.Rank([]domain.Candidate{
		torrent("Freida McFadden - The Tenant M4B-BOOKWORM", 300<<20, 10, 7),
	}, testTarget(), cfg)

	require.Len(t, plain, 1)
	require.Len(t, boosted, 1)
	require.Len(t, boosted[0].Bonuses, 2)

	reasons := map[string]float64{}
	for _, b := range boosted[0].Bonuses {
		reasons[b.Reason] = b.Points
	}
	assert.Equal(t, 10.0, reasons["indexer priority"])
	assert.Equal(t, 5.0, reasons["trusted release group"])
	assert.Empty(t, plain[0].Bonuses)
}

func TestRankEmptyInput(t *testing.T) {
	ranker := NewRanker(zerolog.Nop())
	assert.Empty(t, ranker.Rank(nil, testTarget(), DefaultConfig()))
}

func findByKind(t *testing.T, ranked []RankedCandidate, kind domain.SourceKind) RankedCandidate {
	t.Helper()
	for _, rc := range ranked {
		if rc.Candidate.Kind() == kind {
			return rc
		}
	}
	t.Fatalf("no candidate of kind %s", kind)
	return RankedCandidate{}
}
