// Package domain provides domain models and business logic for Shelfarr.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the lifecycle states of an acquisition request.
// These values must match the database enum request_status.
type RequestStatus string

const (
	RequestStatusPending          RequestStatus = "pending"
	RequestStatusSearching        RequestStatus = "searching"
	RequestStatusAwaitingSearch   RequestStatus = "awaiting_search"
	RequestStatusAwaitingApproval RequestStatus = "awaiting_approval"
	RequestStatusDownloading      RequestStatus = "downloading"
	RequestStatusProcessing       RequestStatus = "processing"
	RequestStatusAvailable        RequestStatus = "available"
	RequestStatusDownloaded       RequestStatus = "downloaded"
	RequestStatusFailed           RequestStatus = "failed"
	RequestStatusWarn             RequestStatus = "warn"
	RequestStatusCancelled        RequestStatus = "cancelled"
	RequestStatusDenied           RequestStatus = "denied"
)

// IsTerminal returns true if the status represents a final state that will not
// change without user intervention.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusAvailable, RequestStatusDownloaded, RequestStatusCancelled, RequestStatusDenied:
		return true
	default:
		return false
	}
}

// IsReplaceable returns true if a request in this status may be deleted and
// replaced when the same user re-requests the same work. Re-requesting after a
// failure must not accumulate zombie rows.
func (s RequestStatus) IsReplaceable() bool {
	switch s {
	case RequestStatusFailed, RequestStatusWarn, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// IsSearchable returns true if a search may be initiated or re-initiated from
// this status.
func (s RequestStatus) IsSearchable() bool {
	switch s {
	case RequestStatusPending, RequestStatusFailed, RequestStatusAwaitingSearch:
		return true
	default:
		return false
	}
}

// DownloadStatus represents the state of one download attempt as reported by
// the download client. These values must match the database enum download_status.
type DownloadStatus string

const (
	DownloadStatusQueued      DownloadStatus = "queued"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusSeeding     DownloadStatus = "seeding"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// UserRole controls the approval policy applied to a user's requests.
type UserRole string

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleMember UserRole = "member"
)

// Work is the canonical catalog identity of a book or audiobook, independent
// of any specific release or file. Immutable once created.
type Work struct {
	ID              uuid.UUID
	ExternalID      string // ASIN or ISBN; empty when unknown
	Title           string
	Author          string
	Narrator        string
	DurationMinutes int // 0 when unknown
	CreatedAt       time.Time
}

// ASIN returns the work's external identifier when it is ASIN-shaped, or the
// empty string otherwise.
func (w *Work) ASIN() string {
	if IsASIN(w.ExternalID) {
		return w.ExternalID
	}
	return ""
}

// ISBN returns the work's external identifier when it is non-empty and not
// ASIN-shaped, on the assumption that catalog syncs only supply ASINs or ISBNs.
func (w *Work) ISBN() string {
	if w.ExternalID != "" && !IsASIN(w.ExternalID) {
		return w.ExternalID
	}
	return ""
}

// IsASIN reports whether s looks like an Audible ASIN: exactly 10
// alphanumeric characters starting with a letter.
func IsASIN(s string) bool {
	if len(s) != 10 {
		return false
	}
	first := s[0]
	if !(first >= 'A' && first <= 'Z' || first >= 'a' && first <= 'z') {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		default:
			return false
		}
	}
	return true
}

// LibraryItem is a record already present in the user's library backend.
// Supplied by an external sync process and read-only from this service's
// perspective.
type LibraryItem struct {
	ExternalGUID string
	Title        string
	Author       string
}

// Request is a user's durable ask to acquire a Work, tracked through the
// status lifecycle. Requests are soft-deleted, never hard-deleted, to
// preserve audit history.
type Request struct {
	ID                uuid.UUID
	WorkID            uuid.UUID
	UserID            string
	Status            RequestStatus
	SelectedCandidate []byte // serialized ranked candidate, nil until selected
	Priority          int
	Progress          float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
	DeletedBy         string
}

// Deleted reports whether the request has been soft-deleted.
func (r *Request) Deleted() bool {
	return r.DeletedAt != nil
}

// DownloadRecord is one download-client attempt associated with a Request.
// Exactly one record with Selected=true is authoritative per request at any
// time.
type DownloadRecord struct {
	ID               uuid.UUID
	RequestID        uuid.UUID
	IndexerName      string
	TorrentName      string
	DownloadClientID string // client job id; empty until submitted
	DownloadStatus   DownloadStatus
	Selected         bool
	AwaitingCleanup  bool // torrent kept alive for seeding, pending removal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
