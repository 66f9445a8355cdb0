package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/domain"
)

type fakeOutboxRepo struct {
	events    []*domain.OutboxEvent
	published []uuid.UUID
	failures  map[uuid.UUID]int
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{failures: make(map[uuid.UUID]int)}
}

func (f *fakeOutboxRepo) Insert(_ context.Context, _ database.DBTX, event *domain.OutboxEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepo) FetchUnpublished(_ context.Context, limit, maxAttempts int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	for _, e := range f.events {
		if e.PublishedAt == nil && e.Attempts < maxAttempts && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeOutboxRepo) MarkPublished(_ context.Context, id uuid.UUID) error {
	f.published = append(f.published, id)
	for _, e := range f.events {
		if e.EventID == id {
			now := e.CreatedAt
			e.PublishedAt = &now
		}
	}
	return nil
}

func (f *fakeOutboxRepo) RecordFailure(_ context.Context, id uuid.UUID) error {
	f.failures[id]++
	for _, e := range f.events {
		if e.EventID == id {
			e.Attempts++
		}
	}
	return nil
}

type fakePublisher struct {
	published []*domain.OutboxEvent
	fail      map[uuid.UUID]error
}

func (f *fakePublisher) Publish(_ context.Context, event *domain.OutboxEvent) error {
	if err := f.fail[event.EventID]; err != nil {
		return err
	}
	f.published = append(f.published, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func testEvent(t *testing.T, eventType string) *domain.OutboxEvent {
	t.Helper()
	event, err := domain.NewOutboxEvent(eventType, uuid.New().String(), map[string]string{"k": "v"})
	require.NoError(t, err)
	return event
}

func TestProcessor_Drain(t *testing.T) {
	ctx := context.Background()
	cfg := &config.OutboxConfig{BatchSize: 10, MaxAttempts: 3}

	t.Run("delivers and marks every unpublished event", func(t *testing.T) {
		repo := newFakeOutboxRepo()
		a := testEvent(t, domain.EventTypeSearchRequested)
		b := testEvent(t, domain.EventTypeNotify)
		repo.events = []*domain.OutboxEvent{a, b}
		pub := &fakePublisher{}

		processor := NewProcessor(repo, pub, cfg, nil, zerolog.Nop())

		n, err := processor.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Len(t, pub.published, 2)
		assert.ElementsMatch(t, []uuid.UUID{a.EventID, b.EventID}, repo.published)
	})

	t.Run("a failing event is recorded and does not abort the batch", func(t *testing.T) {
		repo := newFakeOutboxRepo()
		bad := testEvent(t, domain.EventTypeDownloadRequested)
		good := testEvent(t, domain.EventTypeNotify)
		repo.events = []*domain.OutboxEvent{bad, good}
		pub := &fakePublisher{fail: map[uuid.UUID]error{bad.EventID: errors.New("broker down")}}

		processor := NewProcessor(repo, pub, cfg, nil, zerolog.Nop())

		n, err := processor.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, repo.failures[bad.EventID])
		assert.Equal(t, []uuid.UUID{good.EventID}, repo.published)
	})

	t.Run("events that exhausted max attempts are skipped", func(t *testing.T) {
		repo := newFakeOutboxRepo()
		exhausted := testEvent(t, domain.EventTypeRequestFailed)
		exhausted.Attempts = 3
		repo.events = []*domain.OutboxEvent{exhausted}
		pub := &fakePublisher{}

		processor := NewProcessor(repo, pub, cfg, nil, zerolog.Nop())

		n, err := processor.Drain(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, pub.published)
	})

	t.Run("published events are not redelivered", func(t *testing.T) {
		repo := newFakeOutboxRepo()
		repo.events = []*domain.OutboxEvent{testEvent(t, domain.EventTypeNotify)}
		pub := &fakePublisher{}

		processor := NewProcessor(repo, pub, cfg, nil, zerolog.Nop())

		_, err := processor.Drain(ctx)
		require.NoError(t, err)
		n, err := processor.Drain(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Len(t, pub.published, 1)
	})
}
