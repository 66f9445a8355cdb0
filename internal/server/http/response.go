package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/lifecycle"
)

// Response types for JSON serialization.

type requestResponse struct {
	ID                string          `json:"id"`
	WorkID            string          `json:"work_id"`
	UserID            string          `json:"user_id"`
	Status            string          `json:"status"`
	Priority          int             `json:"priority"`
	Progress          float64         `json:"progress"`
	SelectedCandidate json.RawMessage `json:"selected_candidate,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty"`
	DeletedBy         string          `json:"deleted_by,omitempty"`
}

type downloadResponse struct {
	ID               string    `json:"id"`
	IndexerName      string    `json:"indexer_name"`
	TorrentName      string    `json:"torrent_name"`
	DownloadClientID string    `json:"download_client_id,omitempty"`
	DownloadStatus   string    `json:"download_status"`
	AwaitingCleanup  bool      `json:"awaiting_cleanup,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type requestDetailResponse struct {
	requestResponse
	Download *downloadResponse `json:"download,omitempty"`
}

type listRequestsResponse struct {
	Requests   []requestResponse `json:"requests"`
	TotalCount int               `json:"total_count"`
}

type deletionResponse struct {
	Disposition  string `json:"disposition"`
	SoftDeleteOK bool   `json:"soft_delete_ok"`
	ClientOK     bool   `json:"client_ok"`
	FilesOK      bool   `json:"files_ok"`
	Partial      bool   `json:"partial"`
}

func toRequestResponse(r *domain.Request) requestResponse {
	return requestResponse{
		ID:                r.ID.String(),
		WorkID:            r.WorkID.String(),
		UserID:            r.UserID,
		Status:            string(r.Status),
		Priority:          r.Priority,
		Progress:          r.Progress,
		SelectedCandidate: json.RawMessage(r.SelectedCandidate),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		DeletedAt:         r.DeletedAt,
		DeletedBy:         r.DeletedBy,
	}
}

func toDownloadResponse(d *domain.DownloadRecord) *downloadResponse {
	return &downloadResponse{
		ID:               d.ID.String(),
		IndexerName:      d.IndexerName,
		TorrentName:      d.TorrentName,
		DownloadClientID: d.DownloadClientID,
		DownloadStatus:   string(d.DownloadStatus),
		AwaitingCleanup:  d.AwaitingCleanup,
		CreatedAt:        d.CreatedAt,
	}
}

func toDeletionResponse(report *lifecycle.DeletionReport, partial bool) deletionResponse {
	return deletionResponse{
		Disposition:  string(report.Disposition),
		SoftDeleteOK: report.SoftDeleteOK,
		ClientOK:     report.ClientOK,
		FilesOK:      report.FilesOK,
		Partial:      partial,
	}
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrExternalUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
