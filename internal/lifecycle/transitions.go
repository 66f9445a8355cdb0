// Package lifecycle implements the request state machine: legal status
// transitions, the approval policy, duplicate-request handling, and
// seeding-aware deletion. Transition application is a pure computation
// returning effects; callers persist state and schedule the effects.
package lifecycle

import "github.com/shelfarr/shelfarr/internal/domain"

// validStatusTransitions defines the allowed status transitions for requests.
// This is a package-level variable to avoid re-allocating on every call.
var validStatusTransitions = map[domain.RequestStatus][]domain.RequestStatus{
	domain.RequestStatusPending: {
		domain.RequestStatusSearching,
		domain.RequestStatusAwaitingSearch,
		domain.RequestStatusFailed,
		domain.RequestStatusCancelled,
	},
	domain.RequestStatusSearching: {
		domain.RequestStatusDownloading,
		domain.RequestStatusAvailable,
		domain.RequestStatusAwaitingSearch,
		domain.RequestStatusFailed,
		domain.RequestStatusWarn,
		domain.RequestStatusCancelled,
	},
	domain.RequestStatusAwaitingSearch: {
		domain.RequestStatusSearching,
		domain.RequestStatusCancelled,
	},
	domain.RequestStatusAwaitingApproval: {
		domain.RequestStatusDownloading,
		domain.RequestStatusPending,
		domain.RequestStatusDenied,
		domain.RequestStatusCancelled,
	},
	domain.RequestStatusDownloading: {
		domain.RequestStatusProcessing,
		domain.RequestStatusFailed,
		domain.RequestStatusWarn,
		domain.RequestStatusCancelled,
	},
	domain.RequestStatusProcessing: {
		domain.RequestStatusAvailable,
		domain.RequestStatusDownloaded,
		domain.RequestStatusFailed,
		domain.RequestStatusWarn,
	},
	domain.RequestStatusFailed: {
		domain.RequestStatusSearching,
		domain.RequestStatusCancelled,
	},
	domain.RequestStatusWarn: {
		domain.RequestStatusSearching,
		domain.RequestStatusCancelled,
	},
	// available, downloaded, cancelled, denied are terminal.
}

// CanTransition reports whether from -> to is a legal edge of the lifecycle
// state machine.
func CanTransition(from, to domain.RequestStatus) bool {
	if from == to {
		return false
	}

	allowed, ok := validStatusTransitions[from]
	if !ok {
		return false
	}

	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
