//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/repository"
)

// createWork inserts a work row for requests to reference.
func createWork(t *testing.T, title, author string) *domain.Work {
	t.Helper()
	work := &domain.Work{
		ID:        uuid.New(),
		Title:     title,
		Author:    author,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repository.NewPgWorkRepository(testPool).Create(context.Background(), work))
	return work
}

func newTestRequest(workID uuid.UUID, userID string) *domain.Request {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Request{
		ID:        uuid.New(),
		WorkID:    workID,
		UserID:    userID,
		Status:    domain.RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPgWorkRepository_Integration(t *testing.T) {
	cleanTable(t, "works")
	repo := repository.NewPgWorkRepository(testPool)
	ctx := context.Background()

	t.Run("Create and Get roundtrip", func(t *testing.T) {
		work := &domain.Work{
			ID:              uuid.New(),
			ExternalID:      "B08G9PRS1K",
			Title:           "The Martian",
			Author:          "Andy Weir",
			Narrator:        "Wil Wheaton",
			DurationMinutes: 653,
			CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, repo.Create(ctx, work))

		got, err := repo.Get(ctx, work.ID)
		require.NoError(t, err)
		assert.Equal(t, work.ID, got.ID)
		assert.Equal(t, "The Martian", got.Title)
		assert.Equal(t, "Andy Weir", got.Author)
		assert.Equal(t, 653, got.DurationMinutes)
	})

	t.Run("FindByExternalID", func(t *testing.T) {
		got, err := repo.FindByExternalID(ctx, "B08G9PRS1K")
		require.NoError(t, err)
		assert.Equal(t, "The Martian", got.Title)
	})

	t.Run("FindByExternalID miss returns not found", func(t *testing.T) {
		_, err := repo.FindByExternalID(ctx, "B000000000")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgRequestRepository_Integration(t *testing.T) {
	cleanTable(t, "download_records", "requests", "works")
	repo := repository.NewPgRequestRepository(testPool)
	ctx := context.Background()
	work := createWork(t, "Project Hail Mary", "Andy Weir")

	t.Run("Create and Get roundtrip", func(t *testing.T) {
		request := newTestRequest(work.ID, "user-roundtrip")
		request.Priority = 7
		require.NoError(t, repo.Create(ctx, request))

		got, err := repo.Get(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, request.ID, got.ID)
		assert.Equal(t, work.ID, got.WorkID)
		assert.Equal(t, "user-roundtrip", got.UserID)
		assert.Equal(t, domain.RequestStatusPending, got.Status)
		assert.Equal(t, 7, got.Priority)
		assert.Nil(t, got.SelectedCandidate)
		assert.False(t, got.Deleted())
	})

	t.Run("CompareAndSetStatus transitions atomically", func(t *testing.T) {
		request := newTestRequest(work.ID, "user-cas")
		require.NoError(t, repo.Create(ctx, request))

		err := repo.CompareAndSetStatus(ctx, request.ID,
			domain.RequestStatusPending, domain.RequestStatusSearching, nil)
		require.NoError(t, err)

		got, err := repo.Get(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestStatusSearching, got.Status)

		// A second caller still expecting pending has lost the race.
		err = repo.CompareAndSetStatus(ctx, request.ID,
			domain.RequestStatusPending, domain.RequestStatusCancelled, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err = repo.Get(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestStatusSearching, got.Status, "lost race must not overwrite status")
	})

	t.Run("CompareAndSetStatus stores the selected candidate", func(t *testing.T) {
		request := newTestRequest(work.ID, "user-candidate")
		request.Status = domain.RequestStatusSearching
		require.NoError(t, repo.Create(ctx, request))

		candidate := []byte(`{"title":"Project Hail Mary [M4B]","protocol":"torrent","seeders":42}`)
		err := repo.CompareAndSetStatus(ctx, request.ID,
			domain.RequestStatusSearching, domain.RequestStatusDownloading, candidate)
		require.NoError(t, err)

		got, err := repo.Get(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestStatusDownloading, got.Status)
		assert.JSONEq(t, string(candidate), string(got.SelectedCandidate))
	})

	t.Run("CompareAndSetStatus on missing request returns not found", func(t *testing.T) {
		err := repo.CompareAndSetStatus(ctx, uuid.New(),
			domain.RequestStatusPending, domain.RequestStatusSearching, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SoftDelete hides the request from active lookups", func(t *testing.T) {
		request := newTestRequest(work.ID, "user-delete")
		require.NoError(t, repo.Create(ctx, request))

		found, err := repo.FindActiveByWorkAndUser(ctx, work.ID, "user-delete")
		require.NoError(t, err)
		assert.Equal(t, request.ID, found.ID)

		require.NoError(t, repo.SoftDelete(ctx, request.ID, "user-delete"))

		_, err = repo.FindActiveByWorkAndUser(ctx, work.ID, "user-delete")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// Get still sees the row for audit purposes.
		got, err := repo.Get(ctx, request.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted())
		assert.Equal(t, "user-delete", got.DeletedBy)

		// Deleting again is a no-op.
		require.NoError(t, repo.SoftDelete(ctx, request.ID, "user-delete"))
	})

	t.Run("UpdateProgress", func(t *testing.T) {
		request := newTestRequest(work.ID, "user-progress")
		require.NoError(t, repo.Create(ctx, request))

		require.NoError(t, repo.UpdateProgress(ctx, request.ID, 62.5))

		got, err := repo.Get(ctx, request.ID)
		require.NoError(t, err)
		assert.InDelta(t, 62.5, got.Progress, 0.01)
	})

	t.Run("List with filters", func(t *testing.T) {
		requests, err := repo.List(ctx, repository.RequestFilter{
			UserID: "user-cas",
			Limit:  10,
		})
		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, "user-cas", requests[0].UserID)

		requests, err = repo.List(ctx, repository.RequestFilter{
			Status: []domain.RequestStatus{domain.RequestStatusDownloading},
			Limit:  10,
		})
		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, domain.RequestStatusDownloading, requests[0].Status)
	})

	t.Run("List excludes soft-deleted rows by default", func(t *testing.T) {
		active, err := repo.List(ctx, repository.RequestFilter{UserID: "user-delete", Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, active)

		all, err := repo.List(ctx, repository.RequestFilter{
			UserID:         "user-delete",
			IncludeDeleted: true,
			Limit:          10,
		})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestPgDownloadRepository_Integration(t *testing.T) {
	cleanTable(t, "download_records", "requests", "works")
	repo := repository.NewPgDownloadRepository(testPool)
	requests := repository.NewPgRequestRepository(testPool)
	ctx := context.Background()

	work := createWork(t, "Dune", "Frank Herbert")
	request := newTestRequest(work.ID, "user-downloads")
	require.NoError(t, requests.Create(ctx, request))

	newRecord := func(selected bool) *domain.DownloadRecord {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return &domain.DownloadRecord{
			ID:               uuid.New(),
			RequestID:        request.ID,
			IndexerName:      "AudioBookBay",
			TorrentName:      "Dune [M4B]",
			DownloadClientID: "aabbccdd",
			DownloadStatus:   domain.DownloadStatusQueued,
			Selected:         selected,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	first := newRecord(true)
	require.NoError(t, repo.Create(ctx, first))

	t.Run("second selected record is rejected", func(t *testing.T) {
		err := repo.Create(ctx, newRecord(true))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("deselect makes room for a replacement", func(t *testing.T) {
		require.NoError(t, repo.DeselectByRequest(ctx, request.ID))

		replacement := newRecord(true)
		replacement.TorrentName = "Dune Unabridged [M4B]"
		require.NoError(t, repo.Create(ctx, replacement))

		got, err := repo.GetSelectedByRequest(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, replacement.ID, got.ID)
		assert.Equal(t, "Dune Unabridged [M4B]", got.TorrentName)

		// The superseded attempt stays on record.
		var count int
		require.NoError(t, testPool.QueryRow(ctx,
			"SELECT count(*) FROM download_records WHERE request_id = $1", request.ID).Scan(&count))
		assert.Equal(t, 2, count)
	})

	t.Run("status updates", func(t *testing.T) {
		selected, err := repo.GetSelectedByRequest(ctx, request.ID)
		require.NoError(t, err)

		require.NoError(t, repo.UpdateStatus(ctx, selected.ID, domain.DownloadStatusSeeding))

		got, err := repo.GetSelectedByRequest(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DownloadStatusSeeding, got.DownloadStatus)
	})

	t.Run("awaiting cleanup flag roundtrip", func(t *testing.T) {
		selected, err := repo.GetSelectedByRequest(ctx, request.ID)
		require.NoError(t, err)

		require.NoError(t, repo.MarkAwaitingCleanup(ctx, selected.ID))

		pending, err := repo.ListAwaitingCleanup(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, selected.ID, pending[0].ID)

		require.NoError(t, repo.ClearAwaitingCleanup(ctx, selected.ID))

		pending, err = repo.ListAwaitingCleanup(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
