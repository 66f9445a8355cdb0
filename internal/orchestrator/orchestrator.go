// Package orchestrator sequences one acquisition attempt end to end: check
// the library for an existing copy, search the indexers, rank the results,
// submit the best release to the download client, and record the resulting
// status transition. All algorithmic decisions live in the match, rank, and
// lifecycle packages; this package only wires their inputs and outputs
// together and applies network timeouts to the calls that feed them.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/lifecycle"
	"github.com/shelfarr/shelfarr/internal/match"
	"github.com/shelfarr/shelfarr/internal/observability"
	"github.com/shelfarr/shelfarr/internal/rank"
	"github.com/shelfarr/shelfarr/internal/repository"
	"github.com/shelfarr/shelfarr/internal/search"
)

// Lifecycle is the state-machine contract the orchestrator drives; satisfied
// by *lifecycle.Manager.
type Lifecycle interface {
	Transition(ctx context.Context, id uuid.UUID, from, to domain.RequestStatus, candidate []byte) ([]lifecycle.Effect, error)
}

// LibraryClient supplies existing library records for a title prefix;
// satisfied by *library.Client.
type LibraryClient interface {
	SearchByTitlePrefix(ctx context.Context, prefix string) ([]domain.LibraryItem, error)
}

// SearchService fans a query out across the configured indexer groups;
// satisfied by *search.Service.
type SearchService interface {
	Search(ctx context.Context, query string) ([]domain.Candidate, []search.GroupResult, error)
}

// Submitter hands a candidate to the download client; satisfied by
// *downloadclient.Client.
type Submitter interface {
	Submit(ctx context.Context, candidate domain.Candidate) (string, error)
}

// EffectSink persists lifecycle effects; satisfied by *outbox.Emitter.
type EffectSink interface {
	EmitEffects(ctx context.Context, db database.DBTX, effects []lifecycle.Effect) error
}

// Timeouts bounds the external calls an acquisition pass makes. The pure
// matching and ranking steps need none.
type Timeouts struct {
	Library time.Duration
	Search  time.Duration
	Submit  time.Duration
}

const (
	defaultLibraryTimeout = 15 * time.Second
	defaultSearchTimeout  = 90 * time.Second
	defaultSubmitTimeout  = 30 * time.Second
)

func (t Timeouts) withDefaults() Timeouts {
	if t.Library <= 0 {
		t.Library = defaultLibraryTimeout
	}
	if t.Search <= 0 {
		t.Search = defaultSearchTimeout
	}
	if t.Submit <= 0 {
		t.Submit = defaultSubmitTimeout
	}
	return t
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Requests  repository.RequestRepository
	Works     repository.WorkRepository
	Downloads repository.DownloadRepository
	Lifecycle Lifecycle
	Library   LibraryClient
	Searcher  SearchService
	Matcher   *match.Engine
	Ranker    *rank.Ranker
	Client    Submitter
	Effects   EffectSink
}

// Orchestrator runs acquisition passes for requests.
type Orchestrator struct {
	deps     Deps
	rankCfg  rank.Config
	timeouts Timeouts
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// New creates an orchestrator.
func New(deps Deps, rankCfg rank.Config, timeouts Timeouts, metrics *observability.Metrics, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:     deps,
		rankCfg:  rankCfg,
		timeouts: timeouts.withDefaults(),
		metrics:  metrics,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// ProcessRequest runs one acquisition pass for the request: transition to
// searching, skip straight to available when the library already holds the
// work, otherwise search, rank, and submit the best candidate. The request
// must be in a status a search may start from.
func (o *Orchestrator) ProcessRequest(ctx context.Context, requestID uuid.UUID) error {
	request, err := o.activeRequest(ctx, requestID)
	if err != nil {
		return err
	}

	effects, err := o.deps.Lifecycle.Transition(ctx, requestID, request.Status, domain.RequestStatusSearching, nil)
	if err != nil {
		return err
	}
	if err := o.deps.Effects.EmitEffects(ctx, nil, effects); err != nil {
		return err
	}

	work, err := o.deps.Works.Get(ctx, request.WorkID)
	if err != nil {
		return err
	}

	matched, err := o.tryLibraryMatch(ctx, requestID, work)
	if err != nil || matched {
		return err
	}
	return o.acquire(ctx, requestID, work)
}

// SubmitApproved hands a request's pre-selected candidate to the download
// client. Used after an approval that carried a candidate, where the request
// is already in downloading but nothing has been submitted yet.
func (o *Orchestrator) SubmitApproved(ctx context.Context, requestID uuid.UUID) error {
	request, err := o.activeRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status != domain.RequestStatusDownloading {
		return domain.NewValidationError("status", "request is not awaiting submission")
	}
	if len(request.SelectedCandidate) == 0 {
		return domain.NewValidationError("selected_candidate", "request has no selected candidate")
	}

	var sel selection
	if err := json.Unmarshal(request.SelectedCandidate, &sel); err != nil {
		return domain.NewValidationError("selected_candidate", fmt.Sprintf("malformed candidate payload: %v", err))
	}

	jobID, err := o.submit(ctx, sel.candidate())
	if err != nil {
		return o.warn(ctx, requestID, domain.RequestStatusDownloading, "download submission failed", err)
	}
	return o.recordDownload(ctx, requestID, sel.IndexerName, sel.Title, jobID)
}

// tryLibraryMatch reports whether the work was found in the library and the
// request closed as available. Library unavailability never blocks
// acquisition; the pass falls through to indexer search.
func (o *Orchestrator) tryLibraryMatch(ctx context.Context, requestID uuid.UUID, work *domain.Work) (bool, error) {
	lctx, cancel := context.WithTimeout(ctx, o.timeouts.Library)
	defer cancel()

	items, err := o.deps.Library.SearchByTitlePrefix(lctx, work.Title)
	if err != nil {
		o.logger.Warn().Err(err).Str("title", work.Title).
			Msg("library lookup failed, proceeding to indexer search")
		return false, nil
	}

	outcome := o.deps.Matcher.FindMatch(work, items)
	if outcome.Match == nil {
		if o.metrics != nil {
			o.metrics.MatchesMissed.WithLabelValues(string(outcome.Reason)).Inc()
		}
		return false, nil
	}

	if o.metrics != nil {
		o.metrics.MatchesFound.WithLabelValues(string(outcome.Match.Type)).Inc()
		o.metrics.MatchConfidence.Observe(float64(outcome.Match.Confidence))
	}
	o.logger.Info().
		Str("request_id", requestID.String()).
		Str("guid", outcome.Match.Item.ExternalGUID).
		Str("match_type", string(outcome.Match.Type)).
		Int("confidence", outcome.Match.Confidence).
		Msg("work already in library")

	effects, err := o.deps.Lifecycle.Transition(ctx, requestID, domain.RequestStatusSearching, domain.RequestStatusAvailable, nil)
	if err != nil {
		return false, err
	}
	return true, o.deps.Effects.EmitEffects(ctx, nil, effects)
}

// acquire searches the indexers, ranks the results, and submits the best
// candidate. An empty search result is a legitimate failed outcome, not an
// error; a search where every group failed is deferred for retry instead.
func (o *Orchestrator) acquire(ctx context.Context, requestID uuid.UUID, work *domain.Work) error {
	query := strings.TrimSpace(work.Title + " " + work.Author)

	sctx, cancel := context.WithTimeout(ctx, o.timeouts.Search)
	defer cancel()

	candidates, groups, err := o.deps.Searcher.Search(sctx, query)
	if err != nil {
		return o.deferSearch(ctx, requestID, err)
	}
	if failed := failedGroups(groups); len(groups) > 0 && len(failed) == len(groups) {
		return o.deferSearch(ctx, requestID, &domain.ExternalError{
			Service:   "indexer",
			Operation: "search",
			Cause:     fmt.Errorf("all %d indexer groups failed", len(groups)),
		})
	}
	if len(candidates) == 0 {
		return o.fail(ctx, requestID, fmt.Sprintf("no releases found for %q", work.Title))
	}

	target := rank.Target{Title: work.Title, Author: work.Author, DurationMinutes: work.DurationMinutes}
	ranked := o.deps.Ranker.Rank(candidates, target, o.rankCfg)
	if o.metrics != nil {
		o.metrics.CandidatesRanked.Observe(float64(len(candidates)))
	}
	if len(ranked) == 0 {
		return o.fail(ctx, requestID, fmt.Sprintf("no suitable release for %q", work.Title))
	}

	best := ranked[0]
	payload, err := json.Marshal(newSelection(best))
	if err != nil {
		return fmt.Errorf("failed to serialize selected candidate: %w", err)
	}

	jobID, err := o.submit(ctx, best.Candidate)
	if err != nil {
		return o.warn(ctx, requestID, domain.RequestStatusSearching, "download submission failed", err)
	}

	effects, err := o.deps.Lifecycle.Transition(ctx, requestID, domain.RequestStatusSearching, domain.RequestStatusDownloading, payload)
	if err != nil {
		return err
	}
	if err := o.deps.Effects.EmitEffects(ctx, nil, effects); err != nil {
		return err
	}

	rel := best.Candidate.Release()
	o.logger.Info().
		Str("request_id", requestID.String()).
		Str("release", rel.Title).
		Str("indexer", rel.IndexerName).
		Float64("score", best.Score).
		Str("job_id", jobID).
		Msg("candidate submitted to download client")

	return o.recordDownload(ctx, requestID, rel.IndexerName, rel.Title, jobID)
}

func (o *Orchestrator) submit(ctx context.Context, candidate domain.Candidate) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, o.timeouts.Submit)
	defer cancel()
	return o.deps.Client.Submit(cctx, candidate)
}

// recordDownload makes the new client job the request's authoritative
// download record. Any previously selected record is kept for history with
// its flag cleared, so the one-selected-per-request constraint holds across
// re-searches.
func (o *Orchestrator) recordDownload(ctx context.Context, requestID uuid.UUID, indexerName, torrentName, jobID string) error {
	if err := o.deps.Downloads.DeselectByRequest(ctx, requestID); err != nil {
		return err
	}
	return o.deps.Downloads.Create(ctx, &domain.DownloadRecord{
		ID:               uuid.New(),
		RequestID:        requestID,
		IndexerName:      indexerName,
		TorrentName:      torrentName,
		DownloadClientID: jobID,
		DownloadStatus:   domain.DownloadStatusQueued,
		Selected:         true,
	})
}

// deferSearch parks the request in awaiting_search and surfaces the cause so
// the job layer reschedules the pass. Used when the search itself was
// unavailable, as opposed to legitimately empty.
func (o *Orchestrator) deferSearch(ctx context.Context, requestID uuid.UUID, cause error) error {
	effects, err := o.deps.Lifecycle.Transition(ctx, requestID, domain.RequestStatusSearching, domain.RequestStatusAwaitingSearch, nil)
	if err != nil {
		return err
	}
	if err := o.deps.Effects.EmitEffects(ctx, nil, effects); err != nil {
		return err
	}
	o.logger.Warn().Err(cause).Str("request_id", requestID.String()).
		Msg("search unavailable, deferred for retry")
	return cause
}

// fail closes the request as failed with a user-facing message attached to
// its notification.
func (o *Orchestrator) fail(ctx context.Context, requestID uuid.UUID, message string) error {
	effects, err := o.deps.Lifecycle.Transition(ctx, requestID, domain.RequestStatusSearching, domain.RequestStatusFailed, nil)
	if err != nil {
		return err
	}
	annotateNotify(effects, message)
	o.logger.Info().Str("request_id", requestID.String()).Str("message", message).
		Msg("request failed, no viable candidate")
	return o.deps.Effects.EmitEffects(ctx, nil, effects)
}

// warn moves the request to warn after a submission failure and surfaces the
// cause for retry scheduling.
func (o *Orchestrator) warn(ctx context.Context, requestID uuid.UUID, from domain.RequestStatus, message string, cause error) error {
	effects, err := o.deps.Lifecycle.Transition(ctx, requestID, from, domain.RequestStatusWarn, nil)
	if err != nil {
		return err
	}
	effects = append(effects, lifecycle.Effect{
		EventType: domain.EventTypeNotify,
		RequestID: requestID,
		Payload:   map[string]interface{}{"outcome": "warn", "message": message},
	})
	if err := o.deps.Effects.EmitEffects(ctx, nil, effects); err != nil {
		return err
	}
	o.logger.Warn().Err(cause).Str("request_id", requestID.String()).Msg(message)
	return cause
}

func (o *Orchestrator) activeRequest(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	request, err := o.deps.Requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Deleted() {
		return nil, &domain.NotFoundError{Entity: "request", ID: id.String()}
	}
	return request, nil
}

// annotateNotify attaches a user-facing message to the notify effects of a
// transition.
func annotateNotify(effects []lifecycle.Effect, message string) {
	for i := range effects {
		if effects[i].EventType != domain.EventTypeNotify {
			continue
		}
		if effects[i].Payload == nil {
			effects[i].Payload = map[string]interface{}{}
		}
		effects[i].Payload["message"] = message
	}
}

func failedGroups(groups []search.GroupResult) []search.GroupResult {
	var failed []search.GroupResult
	for _, g := range groups {
		if g.Error != nil {
			failed = append(failed, g)
		}
	}
	return failed
}
