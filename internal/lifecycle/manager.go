package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/downloadclient"
	"github.com/shelfarr/shelfarr/internal/observability"
	"github.com/shelfarr/shelfarr/internal/repository"
)

// DownloadClient is the subset of download-client operations the state
// machine needs for deletion disposition.
type DownloadClient interface {
	Status(ctx context.Context, jobID string) (downloadclient.TransferStatus, error)
	Delete(ctx context.Context, jobID string, withFiles bool) error
}

// Manager applies lifecycle operations to requests. All status writes go
// through compare-and-swap updates, so two concurrent operations on the same
// request resolve to one winner and one domain.ErrConflict.
type Manager struct {
	requests  repository.RequestRepository
	downloads repository.DownloadRepository
	works     repository.WorkRepository
	client    DownloadClient
	files     FileRemover
	policy    ApprovalPolicy
	indexers  []config.IndexerConfig
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(
	requests repository.RequestRepository,
	downloads repository.DownloadRepository,
	works repository.WorkRepository,
	client DownloadClient,
	files FileRemover,
	policy ApprovalPolicy,
	indexers []config.IndexerConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Manager {
	return &Manager{
		requests:  requests,
		downloads: downloads,
		works:     works,
		client:    client,
		files:     files,
		policy:    policy,
		indexers:  indexers,
		metrics:   metrics,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
	}
}

// CreateRequest creates a request for a work, applying the duplicate-request
// policy and the approval policy. A stale failed/warn/cancelled request for
// the same work and user is soft-deleted and replaced; any other active
// request rejects the creation.
func (m *Manager) CreateRequest(ctx context.Context, workID uuid.UUID, userID string, role domain.UserRole, priority int) (*domain.Request, []Effect, error) {
	work, err := m.works.Get(ctx, workID)
	if err != nil {
		return nil, nil, err
	}

	existing, err := m.requests.FindActiveByWorkAndUser(ctx, workID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if existing != nil {
		if !existing.Status.IsReplaceable() {
			return nil, nil, &domain.DuplicateRequestError{
				WorkID:     workID.String(),
				UserID:     userID,
				ExistingID: existing.ID.String(),
				Status:     existing.Status,
			}
		}
		// Re-requesting after failure must not accumulate zombie rows.
		if err := m.requests.SoftDelete(ctx, existing.ID, userID); err != nil {
			return nil, nil, fmt.Errorf("failed to replace stale request: %w", err)
		}
		m.logger.Info().
			Str("request_id", existing.ID.String()).
			Str("status", string(existing.Status)).
			Msg("Replaced stale request")
	}

	status := domain.RequestStatusPending
	if m.policy.RequiresApproval(userID, role) {
		status = domain.RequestStatusAwaitingApproval
	}

	now := time.Now().UTC()
	request := &domain.Request{
		ID:        uuid.New(),
		WorkID:    workID,
		UserID:    userID,
		Status:    status,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.requests.Create(ctx, request); err != nil {
		return nil, nil, err
	}

	if m.metrics != nil {
		m.metrics.RequestsCreated.Inc()
	}
	m.logger.Info().
		Str("request_id", request.ID.String()).
		Str("work_title", work.Title).
		Str("user_id", userID).
		Str("status", string(status)).
		Msg("Request created")

	effects := []Effect{effect(domain.EventTypeRequestCreated, request.ID, map[string]interface{}{
		"work_id": workID.String(),
		"user_id": userID,
	})}
	if status == domain.RequestStatusPending {
		effects = append(effects, effectsForStatus(request.ID, domain.RequestStatusPending)...)
	} else {
		effects = append(effects, effect(domain.EventTypeNotify, request.ID, map[string]interface{}{
			"outcome": "awaiting_approval",
		}))
	}
	return request, effects, nil
}

// Approve approves a request awaiting approval. With a pre-selected candidate
// the request goes straight to downloading; without one it returns to pending
// and a fresh search is requested. Approval from any other status is a
// reported error, not a silent no-op.
func (m *Manager) Approve(ctx context.Context, id uuid.UUID, candidate []byte) (*domain.Request, []Effect, error) {
	request, err := m.activeRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if request.Status != domain.RequestStatusAwaitingApproval {
		return nil, nil, m.rejectTransition(request, domain.RequestStatusDownloading)
	}

	next := domain.RequestStatusPending
	if candidate != nil {
		next = domain.RequestStatusDownloading
	}
	if err := m.requests.CompareAndSetStatus(ctx, id, domain.RequestStatusAwaitingApproval, next, candidate); err != nil {
		return nil, nil, err
	}
	request.Status = next
	request.SelectedCandidate = candidate

	if m.metrics != nil {
		m.metrics.RequestsApproved.Inc()
	}
	m.logger.Info().
		Str("request_id", id.String()).
		Str("next", string(next)).
		Msg("Request approved")

	effects := []Effect{effect(domain.EventTypeRequestApproved, id, nil)}
	if next == domain.RequestStatusDownloading {
		effects = append(effects, effect(domain.EventTypeDownloadRequested, id, nil))
	} else {
		effects = append(effects, effect(domain.EventTypeSearchRequested, id, nil))
	}
	return request, effects, nil
}

// Deny denies a request awaiting approval.
func (m *Manager) Deny(ctx context.Context, id uuid.UUID) (*domain.Request, []Effect, error) {
	request, err := m.activeRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if request.Status != domain.RequestStatusAwaitingApproval {
		return nil, nil, m.rejectTransition(request, domain.RequestStatusDenied)
	}

	if err := m.requests.CompareAndSetStatus(ctx, id, domain.RequestStatusAwaitingApproval, domain.RequestStatusDenied, nil); err != nil {
		return nil, nil, err
	}
	request.Status = domain.RequestStatusDenied

	if m.metrics != nil {
		m.metrics.RequestsDenied.Inc()
	}
	m.logger.Info().Str("request_id", id.String()).Msg("Request denied")

	effects := []Effect{
		effect(domain.EventTypeRequestDenied, id, nil),
		effect(domain.EventTypeNotify, id, map[string]interface{}{"outcome": "denied"}),
	}
	return request, effects, nil
}

// Cancel cancels a request from any non-terminal status and reconciles the
// client-side download under the indexer's seeding policy. The status change
// is authoritative; client disposition is best-effort and a failure there is
// logged, not surfaced, since the next deletion or cleanup pass retries it.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*domain.Request, []Effect, error) {
	request, err := m.activeRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	effects, err := m.Transition(ctx, id, request.Status, domain.RequestStatusCancelled, nil)
	if err != nil {
		return nil, nil, err
	}
	request.Status = domain.RequestStatusCancelled

	disposition, err := m.disposeClientJob(ctx, id)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("request_id", id.String()).
			Msg("Client disposition failed during cancellation")
	} else if m.metrics != nil && disposition != DispositionNone {
		m.metrics.CleanupDispositions.WithLabelValues(string(disposition)).Inc()
	}

	return request, effects, nil
}

// Transition moves a request from one status to another, validating the edge
// against the state machine and applying it with a compare-and-swap. The
// returned effects are those the entered status implies.
func (m *Manager) Transition(ctx context.Context, id uuid.UUID, from, to domain.RequestStatus, candidate []byte) ([]Effect, error) {
	if !CanTransition(from, to) {
		if m.metrics != nil {
			m.metrics.TransitionsRejected.WithLabelValues(string(to)).Inc()
		}
		return nil, &domain.TransitionError{RequestID: id.String(), From: from, To: to}
	}

	if err := m.requests.CompareAndSetStatus(ctx, id, from, to, candidate); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		switch to {
		case domain.RequestStatusFailed:
			m.metrics.RequestsFailed.Inc()
		case domain.RequestStatusAvailable, domain.RequestStatusDownloaded:
			m.metrics.RequestsCompleted.Inc()
		}
	}
	m.logger.Debug().
		Str("request_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Request transitioned")

	return effectsForStatus(id, to), nil
}

// DeletionReport itemizes what a deletion accomplished.
type DeletionReport struct {
	Disposition  Disposition
	SoftDeleteOK bool
	ClientOK     bool
	FilesOK      bool
	Effects      []Effect
}

// Delete soft-deletes a request and cleans up its download and media files.
// The three effects run independently: a failure in one never prevents the
// others. The DB soft-delete is mandatory; when any effect fails the whole
// deletion reports a PartialCleanupError alongside the report of what did
// succeed.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID, deletedBy string) (*DeletionReport, error) {
	request, err := m.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &DeletionReport{Disposition: DispositionNone}
	var causes []error

	if err := m.requests.SoftDelete(ctx, id, deletedBy); err != nil {
		causes = append(causes, fmt.Errorf("soft-delete: %w", err))
	} else {
		report.SoftDeleteOK = true
	}

	disposition, err := m.disposeClientJob(ctx, id)
	report.Disposition = disposition
	if err != nil {
		causes = append(causes, fmt.Errorf("client disposition: %w", err))
	} else {
		report.ClientOK = true
	}

	if err := m.removeMediaFiles(ctx, request); err != nil {
		causes = append(causes, fmt.Errorf("file removal: %w", err))
	} else {
		report.FilesOK = true
	}

	if m.metrics != nil {
		m.metrics.CleanupDispositions.WithLabelValues(string(disposition)).Inc()
		if report.SoftDeleteOK {
			m.metrics.RequestsDeleted.Inc()
		}
	}
	m.logger.Info().
		Str("request_id", id.String()).
		Str("disposition", string(disposition)).
		Bool("soft_delete_ok", report.SoftDeleteOK).
		Bool("client_ok", report.ClientOK).
		Bool("files_ok", report.FilesOK).
		Msg("Request deleted")

	report.Effects = []Effect{
		effect(domain.EventTypeRequestDeleted, id, map[string]interface{}{
			"disposition": string(disposition),
		}),
	}

	if len(causes) > 0 {
		return report, &domain.PartialCleanupError{
			RequestID:    id.String(),
			SoftDeleteOK: report.SoftDeleteOK,
			ClientOK:     report.ClientOK,
			FilesOK:      report.FilesOK,
			Causes:       causes,
		}
	}
	return report, nil
}

// disposeClientJob applies the indexer's seeding policy to the request's
// authoritative download. A job the client has already forgotten counts as
// removed.
func (m *Manager) disposeClientJob(ctx context.Context, requestID uuid.UUID) (Disposition, error) {
	record, err := m.downloads.GetSelectedByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return DispositionNone, nil
		}
		return DispositionNone, err
	}
	if record.DownloadClientID == "" {
		return DispositionNone, nil
	}

	seedingMinutes := m.seedingMinutesFor(record.IndexerName)

	status, err := m.client.Status(ctx, record.DownloadClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return DispositionRemoved, nil
		}
		return DispositionNone, err
	}

	disposition := classifyDisposition(seedingMinutes, status)
	switch disposition {
	case DispositionRemoved:
		if err := m.client.Delete(ctx, record.DownloadClientID, true); err != nil {
			return disposition, err
		}
	case DispositionKeptSeeding:
		if err := m.downloads.MarkAwaitingCleanup(ctx, record.ID); err != nil {
			return disposition, err
		}
	case DispositionKeptUnlimited:
		// Left in the client untouched; monitoring stops here.
	}
	return disposition, nil
}

// removeMediaFiles deletes the organized {author}/{title} leaf for the
// request's work.
func (m *Manager) removeMediaFiles(ctx context.Context, request *domain.Request) error {
	work, err := m.works.Get(ctx, request.WorkID)
	if err != nil {
		return err
	}
	return m.files.RemoveWorkFiles(work.Author, work.Title)
}

// DisposeKeptSeeding finishes kept-seeding disposals whose seeding
// requirement is now met. Returns the number of jobs removed. Records whose
// requirement is still unmet are left for a later pass; per-record failures
// are logged and skipped so one broken record cannot stall the rest.
func (m *Manager) DisposeKeptSeeding(ctx context.Context) (int, error) {
	records, err := m.downloads.ListAwaitingCleanup(ctx)
	if err != nil {
		return 0, err
	}

	disposed := 0
	for _, record := range records {
		if ctx.Err() != nil {
			return disposed, ctx.Err()
		}

		done, err := m.finishDisposal(ctx, record)
		if err != nil {
			m.logger.Warn().
				Err(err).
				Str("download_id", record.ID.String()).
				Msg("Deferred disposal failed; will retry next pass")
			continue
		}
		if done {
			disposed++
		}
	}
	return disposed, nil
}

func (m *Manager) finishDisposal(ctx context.Context, record *domain.DownloadRecord) (bool, error) {
	status, err := m.client.Status(ctx, record.DownloadClientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Already gone from the client; nothing left to remove.
			return true, m.downloads.ClearAwaitingCleanup(ctx, record.ID)
		}
		return false, err
	}

	seedingMinutes := m.seedingMinutesFor(record.IndexerName)
	if classifyDisposition(seedingMinutes, status) != DispositionRemoved {
		return false, nil
	}

	if err := m.client.Delete(ctx, record.DownloadClientID, true); err != nil {
		return false, err
	}
	if err := m.downloads.ClearAwaitingCleanup(ctx, record.ID); err != nil {
		return false, err
	}

	if m.metrics != nil {
		m.metrics.CleanupDispositions.WithLabelValues(string(DispositionRemoved)).Inc()
	}
	m.logger.Info().
		Str("download_id", record.ID.String()).
		Str("job_id", record.DownloadClientID).
		Msg("Seeding requirement met; removed download")
	return true, nil
}

// seedingMinutesFor returns the configured seeding requirement for an
// indexer. An indexer no longer in the configuration is treated as unlimited,
// which never deletes a torrent that might still owe seeding time.
func (m *Manager) seedingMinutesFor(indexerName string) int {
	for i := range m.indexers {
		if m.indexers[i].Name == indexerName {
			return m.indexers[i].SeedingTimeMinutes
		}
	}
	return 0
}

// activeRequest loads a request and rejects soft-deleted ones.
func (m *Manager) activeRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	request, err := m.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Deleted() {
		return nil, &domain.NotFoundError{Entity: "request", ID: id.String()}
	}
	return request, nil
}

func (m *Manager) rejectTransition(request *domain.Request, to domain.RequestStatus) error {
	if m.metrics != nil {
		m.metrics.TransitionsRejected.WithLabelValues(string(to)).Inc()
	}
	return &domain.TransitionError{
		RequestID: request.ID.String(),
		From:      request.Status,
		To:        to,
	}
}
