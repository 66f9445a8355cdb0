package httpserver

import (
	"context"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/lifecycle"
	"github.com/shelfarr/shelfarr/internal/repository"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	defaultListLimit   = 100
)

// createRequestPayload is the JSON request body for creating a request.
// Either an existing work ID or an inline work description must be supplied.
type createRequestPayload struct {
	WorkID   string       `json:"work_id,omitempty" validate:"omitempty,uuid"`
	Work     *workPayload `json:"work,omitempty"`
	Priority int          `json:"priority" validate:"gte=0,lte=100"`
}

type workPayload struct {
	ExternalID      string `json:"external_id,omitempty" validate:"omitempty,max=20"`
	Title           string `json:"title" validate:"required,max=500"`
	Author          string `json:"author,omitempty" validate:"max=200"`
	Narrator        string `json:"narrator,omitempty" validate:"max=200"`
	DurationMinutes int    `json:"duration_minutes,omitempty" validate:"gte=0"`
}

// approvePayload optionally carries a pre-selected candidate. Without one,
// approval sends the request back through a fresh search.
type approvePayload struct {
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// createRequest handles POST /api/v1/requests.
func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := userIDFromContext(ctx)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	var payload createRequestPayload
	if !s.decode(w, r, &payload) {
		return
	}
	if payload.WorkID == "" && payload.Work == nil {
		writeError(w, http.StatusBadRequest, "either work_id or work is required")
		return
	}

	workID, err := s.resolveWork(ctx, &payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	role := domain.UserRole(userRoleFromContext(ctx))
	request, effects, err := s.manager.CreateRequest(ctx, workID, userID, role, payload.Priority)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.effects.EmitEffects(ctx, nil, effects); err != nil {
		s.logger.Error().Err(err).Str("request_id", request.ID.String()).Msg("failed to persist effects")
	}

	if request.Status == domain.RequestStatusPending {
		s.startAcquisition(request.ID)
	}

	writeJSON(w, http.StatusCreated, toRequestResponse(request))
}

// listRequests handles GET /api/v1/requests.
func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.RequestFilter{
		UserID: q.Get("user_id"),
		Limit:  defaultListLimit,
	}
	if raw := q.Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			filter.Status = append(filter.Status, domain.RequestStatus(strings.TrimSpace(st)))
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}
	if q.Get("include_deleted") == "true" {
		if userRoleFromContext(r.Context()) != string(domain.UserRoleAdmin) {
			writeError(w, http.StatusForbidden, "only admins may list deleted requests")
			return
		}
		filter.IncludeDeleted = true
	}

	requests, err := s.requests.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listRequestsResponse{Requests: make([]requestResponse, 0, len(requests))}
	for _, request := range requests {
		resp.Requests = append(resp.Requests, toRequestResponse(request))
	}
	resp.TotalCount = len(resp.Requests)
	writeJSON(w, http.StatusOK, resp)
}

// getRequest handles GET /api/v1/requests/{requestID}.
func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}

	request, err := s.requests.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := requestDetailResponse{requestResponse: toRequestResponse(request)}
	if record, err := s.downloads.GetSelectedByRequest(r.Context(), id); err == nil {
		resp.Download = toDownloadResponse(record)
	} else if !errors.Is(err, domain.ErrNotFound) {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// approveRequest handles POST /api/v1/requests/{requestID}/approve.
func (s *Server) approveRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}

	var payload approvePayload
	if r.ContentLength != 0 && !s.decode(w, r, &payload) {
		return
	}
	candidate := []byte(payload.Candidate)
	if bytes.Equal(candidate, []byte("null")) {
		// A JSON null candidate means approve without one.
		candidate = nil
	}

	request, effects, err := s.manager.Approve(r.Context(), id, candidate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.effects.EmitEffects(r.Context(), nil, effects); err != nil {
		s.logger.Error().Err(err).Str("request_id", id.String()).Msg("failed to persist effects")
	}

	// With a candidate the request is already in downloading and only needs
	// the client submission; without one it re-enters the search path.
	switch request.Status {
	case domain.RequestStatusDownloading:
		s.bg(s.searchWait, func(ctx context.Context) {
			if err := s.acquirer.SubmitApproved(ctx, id); err != nil {
				s.logger.Error().Err(err).Str("request_id", id.String()).Msg("approved submission failed")
			}
		})
	case domain.RequestStatusPending:
		s.startAcquisition(id)
	}

	writeJSON(w, http.StatusOK, toRequestResponse(request))
}

// denyRequest handles POST /api/v1/requests/{requestID}/deny.
func (s *Server) denyRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}

	request, effects, err := s.manager.Deny(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.effects.EmitEffects(r.Context(), nil, effects); err != nil {
		s.logger.Error().Err(err).Str("request_id", id.String()).Msg("failed to persist effects")
	}
	writeJSON(w, http.StatusOK, toRequestResponse(request))
}

// cancelRequest handles POST /api/v1/requests/{requestID}/cancel.
func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}

	request, effects, err := s.manager.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.effects.EmitEffects(r.Context(), nil, effects); err != nil {
		s.logger.Error().Err(err).Str("request_id", id.String()).Msg("failed to persist effects")
	}
	writeJSON(w, http.StatusOK, toRequestResponse(request))
}

// deleteRequest handles DELETE /api/v1/requests/{requestID}. A partial
// cleanup still responds with the itemized report; the soft delete is the
// one effect that must have succeeded.
func (s *Server) deleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}

	report, err := s.manager.Delete(r.Context(), id, userIDFromContext(r.Context()))
	if err != nil {
		var partial *domain.PartialCleanupError
		if errors.As(err, &partial) && report != nil && report.SoftDeleteOK {
			s.emitReport(r.Context(), id, report)
			writeJSON(w, http.StatusOK, toDeletionResponse(report, true))
			return
		}
		writeDomainError(w, err)
		return
	}

	s.emitReport(r.Context(), id, report)
	writeJSON(w, http.StatusOK, toDeletionResponse(report, false))
}

// triggerSearch handles POST /api/v1/requests/{requestID}/search. The pass
// runs in the background; the response only acknowledges the trigger.
func (s *Server) triggerSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requestID(w, r)
	if !ok {
		return
	}

	request, err := s.requests.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if request.Deleted() {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}

	s.startAcquisition(id)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "search_started",
		"request": id.String(),
	})
}

// startAcquisition kicks off a detached acquisition pass for the request.
func (s *Server) startAcquisition(id uuid.UUID) {
	s.bg(s.searchWait, func(ctx context.Context) {
		if err := s.acquirer.ProcessRequest(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("request_id", id.String()).Msg("acquisition pass failed")
		}
	})
}

// emitReport persists the deletion's effects; failures are logged, not
// surfaced, because the deletion itself already happened.
func (s *Server) emitReport(ctx context.Context, id uuid.UUID, report *lifecycle.DeletionReport) {
	if err := s.effects.EmitEffects(ctx, nil, report.Effects); err != nil {
		s.logger.Error().Err(err).Str("request_id", id.String()).Msg("failed to persist deletion effects")
	}
}

// resolveWork returns the work to request: an existing one by ID, an
// existing one matched by external ID, or a freshly created row.
func (s *Server) resolveWork(ctx context.Context, payload *createRequestPayload) (uuid.UUID, error) {
	if payload.WorkID != "" {
		id, err := uuid.Parse(payload.WorkID)
		if err != nil {
			return uuid.Nil, domain.NewValidationError("work_id", "must be a valid UUID")
		}
		if _, err := s.works.Get(ctx, id); err != nil {
			return uuid.Nil, err
		}
		return id, nil
	}

	if payload.Work.ExternalID != "" {
		if existing, err := s.works.FindByExternalID(ctx, payload.Work.ExternalID); err == nil {
			return existing.ID, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return uuid.Nil, err
		}
	}

	work := &domain.Work{
		ID:              uuid.New(),
		ExternalID:      payload.Work.ExternalID,
		Title:           strings.TrimSpace(payload.Work.Title),
		Author:          strings.TrimSpace(payload.Work.Author),
		Narrator:        strings.TrimSpace(payload.Work.Narrator),
		DurationMinutes: payload.Work.DurationMinutes,
	}
	if err := s.works.Create(ctx, work); err != nil {
		return uuid.Nil, err
	}
	return work.ID, nil
}

// decode reads, unmarshals, and validates a JSON request body. Reports the
// failure itself and returns false when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

// requestID parses the {requestID} path parameter.
func (s *Server) requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "requestID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
