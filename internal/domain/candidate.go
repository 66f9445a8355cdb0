package domain

import "time"

// SourceKind identifies the transport protocol a release candidate was found
// on. Scoring treats swarm-based and single-source protocols differently.
type SourceKind string

const (
	SourceKindTorrent SourceKind = "torrent"
	SourceKindUsenet  SourceKind = "usenet"
	SourceKindDirect  SourceKind = "direct"
)

// Release holds the fields shared by all candidate kinds: the scoring-input
// projection every ranker component reads.
type Release struct {
	Title       string
	SizeBytes   int64
	IndexerID   int
	IndexerName string
	Format      string // container format when the indexer reports one
	PublishDate time.Time
	DownloadURI string
}

// Candidate is one raw indexer search result representing a potential file to
// download. Candidates are ephemeral: produced per search and not persisted
// beyond the chosen one. The concrete type carries protocol-specific fields.
type Candidate interface {
	Kind() SourceKind
	Release() Release
	// Seeders returns the swarm seeder count and true for swarm-based
	// sources, or 0 and false for protocols with no seeder concept.
	Seeders() (int, bool)
}

// TorrentCandidate is a candidate from a BitTorrent indexer.
type TorrentCandidate struct {
	Release_     Release
	SeederCount  int
	LeecherCount int
	InfoHash     string
}

func (c TorrentCandidate) Kind() SourceKind    { return SourceKindTorrent }
func (c TorrentCandidate) Release() Release    { return c.Release_ }
func (c TorrentCandidate) Seeders() (int, bool) { return c.SeederCount, true }

// UsenetCandidate is a candidate from a Usenet indexer. Usenet has no swarm,
// so no seeder count exists.
type UsenetCandidate struct {
	Release_ Release
	Age      time.Duration
}

func (c UsenetCandidate) Kind() SourceKind    { return SourceKindUsenet }
func (c UsenetCandidate) Release() Release    { return c.Release_ }
func (c UsenetCandidate) Seeders() (int, bool) { return 0, false }

// DirectDownloadCandidate is a candidate served over plain HTTP(S).
type DirectDownloadCandidate struct {
	Release_ Release
}

func (c DirectDownloadCandidate) Kind() SourceKind    { return SourceKindDirect }
func (c DirectDownloadCandidate) Release() Release    { return c.Release_ }
func (c DirectDownloadCandidate) Seeders() (int, bool) { return 0, false }
