package orchestrator

import (
	"time"

	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/rank"
)

// selection is the durable form of the ranked candidate chosen for a
// request, stored on the request row. Approval and resubmission reconstruct
// the download from it without re-searching, and the score breakdown stays
// inspectable after the ephemeral search results are gone.
type selection struct {
	Title       string         `json:"title"`
	Protocol    string         `json:"protocol"`
	SizeBytes   int64          `json:"size_bytes"`
	IndexerID   int            `json:"indexer_id"`
	IndexerName string         `json:"indexer_name"`
	Format      string         `json:"format,omitempty"`
	PublishDate time.Time      `json:"publish_date"`
	DownloadURI string         `json:"download_uri"`
	InfoHash    string         `json:"info_hash,omitempty"`
	Seeders     int            `json:"seeders,omitempty"`
	Score       float64        `json:"score"`
	Breakdown   rank.Breakdown `json:"breakdown"`
	Bonuses     []rank.Bonus   `json:"bonuses,omitempty"`
}

func newSelection(rc rank.RankedCandidate) selection {
	rel := rc.Candidate.Release()
	sel := selection{
		Title:       rel.Title,
		Protocol:    string(rc.Candidate.Kind()),
		SizeBytes:   rel.SizeBytes,
		IndexerID:   rel.IndexerID,
		IndexerName: rel.IndexerName,
		Format:      rel.Format,
		PublishDate: rel.PublishDate,
		DownloadURI: rel.DownloadURI,
		Score:       rc.Score,
		Breakdown:   rc.Breakdown,
		Bonuses:     rc.Bonuses,
	}
	if tc, ok := rc.Candidate.(domain.TorrentCandidate); ok {
		sel.InfoHash = tc.InfoHash
		sel.Seeders = tc.SeederCount
	}
	return sel
}

// candidate rebuilds a submittable candidate from the stored selection.
func (s selection) candidate() domain.Candidate {
	rel := domain.Release{
		Title:       s.Title,
		SizeBytes:   s.SizeBytes,
		IndexerID:   s.IndexerID,
		IndexerName: s.IndexerName,
		Format:      s.Format,
		PublishDate: s.PublishDate,
		DownloadURI: s.DownloadURI,
	}
	switch domain.SourceKind(s.Protocol) {
	case domain.SourceKindTorrent:
		return domain.TorrentCandidate{Release_: rel, SeederCount: s.Seeders, InfoHash: s.InfoHash}
	case domain.SourceKindUsenet:
		return domain.UsenetCandidate{Release_: rel}
	default:
		return domain.DirectDownloadCandidate{Release_: rel}
	}
}
