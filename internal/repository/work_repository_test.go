package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfarr/shelfarr/internal/domain"
)

func newTestWork() *domain.Work {
	return &domain.Work{
		ID:              uuid.New(),
		ExternalID:      "B0C3HVN3QK",
		Title:           "Project Hail Mary",
		Author:          "Andy Weir",
		Narrator:        "Ray Porter",
		DurationMinutes: 970,
		CreatedAt:       time.Now().UTC(),
	}
}

func workRows(w *domain.Work) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "external_id", "title", "author", "narrator", "duration_minutes", "created_at",
	}).AddRow(w.ID, w.ExternalID, w.Title, w.Author, w.Narrator, w.DurationMinutes, w.CreatedAt)
}

func TestPgWorkRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates work successfully", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgWorkRepository(mock)
		work := newTestWork()

		mock.ExpectExec("INSERT INTO works").
			WithArgs(work.ID, work.ExternalID, work.Title, work.Author,
				work.Narrator, work.DurationMinutes, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Create(ctx, work)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns validation error for missing title", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgWorkRepository(mock)
		work := newTestWork()
		work.Title = ""

		err = repo.Create(ctx, work)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "title", validationErr.Field)
	})
}

func TestPgWorkRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns work by ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgWorkRepository(mock)
		work := newTestWork()

		mock.ExpectQuery("SELECT .* FROM works WHERE id = \\$1").
			WithArgs(work.ID).
			WillReturnRows(workRows(work))

		got, err := repo.Get(ctx, work.ID)
		require.NoError(t, err)
		assert.Equal(t, work.Title, got.Title)
		assert.Equal(t, work.ExternalID, got.ASIN())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing work", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgWorkRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT .* FROM works WHERE id = \\$1").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgWorkRepository_FindByExternalID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns work by external ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgWorkRepository(mock)
		work := newTestWork()

		mock.ExpectQuery("SELECT .* FROM works WHERE external_id = \\$1").
			WithArgs(work.ExternalID).
			WillReturnRows(workRows(work))

		got, err := repo.FindByExternalID(ctx, work.ExternalID)
		require.NoError(t, err)
		assert.Equal(t, work.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects empty external ID without querying", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgWorkRepository(mock)

		_, err = repo.FindByExternalID(ctx, "")

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
