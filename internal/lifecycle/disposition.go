package lifecycle

import (
	"time"

	"github.com/shelfarr/shelfarr/internal/downloadclient"
)

// Disposition classifies what happened to the download-client job when its
// request was deleted.
type Disposition string

const (
	// DispositionNone means the request had no client job to dispose of.
	DispositionNone Disposition = "none"
	// DispositionKeptUnlimited means the indexer requires unlimited seeding,
	// so the job is left in the client untouched and no longer monitored.
	DispositionKeptUnlimited Disposition = "kept-unlimited"
	// DispositionRemoved means the job was deleted from the client.
	DispositionRemoved Disposition = "removed"
	// DispositionKeptSeeding means the job is completed but has not seeded
	// long enough yet; the cleanup worker finishes the removal later.
	DispositionKeptSeeding Disposition = "kept-seeding"
)

// classifyDisposition applies the indexer's seeding policy to a job's current
// transfer status. seedingTimeMinutes zero means unlimited seeding.
func classifyDisposition(seedingTimeMinutes int, status downloadclient.TransferStatus) Disposition {
	if seedingTimeMinutes == 0 {
		return DispositionKeptUnlimited
	}
	// No seeding obligation applies to incomplete transfers.
	if !status.Completed {
		return DispositionRemoved
	}
	required := time.Duration(seedingTimeMinutes) * time.Minute
	if status.SeedingTime >= required {
		return DispositionRemoved
	}
	return DispositionKeptSeeding
}
