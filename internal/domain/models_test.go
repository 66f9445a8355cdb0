package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   RequestStatus
		terminal bool
	}{
		{RequestStatusPending, false},
		{RequestStatusSearching, false},
		{RequestStatusAwaitingSearch, false},
		{RequestStatusAwaitingApproval, false},
		{RequestStatusDownloading, false},
		{RequestStatusProcessing, false},
		{RequestStatusAvailable, true},
		{RequestStatusDownloaded, true},
		{RequestStatusFailed, false},
		{RequestStatusWarn, false},
		{RequestStatusCancelled, true},
		{RequestStatusDenied, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestRequestStatus_IsReplaceable(t *testing.T) {
	replaceable := []RequestStatus{
		RequestStatusFailed, RequestStatusWarn, RequestStatusCancelled,
	}
	for _, status := range replaceable {
		t.Run(string(status), func(t *testing.T) {
			assert.True(t, status.IsReplaceable())
		})
	}

	for _, status := range []RequestStatus{
		RequestStatusPending, RequestStatusDownloading, RequestStatusAvailable, RequestStatusDenied,
	} {
		t.Run(string(status)+" is not", func(t *testing.T) {
			assert.False(t, status.IsReplaceable())
		})
	}
}

func TestIsASIN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"typical audible ASIN", "B0C3HVN3QK", true},
		{"all letters", "BABCDEFGHI", true},
		{"lowercase accepted", "b0c3hvn3qk", true},
		{"too short", "B0C3HVN3Q", false},
		{"too long", "B0C3HVN3QKX", false},
		{"starts with digit", "0B0C3HVN3Q", false},
		{"isbn-10 shape", "0441013597", false},
		{"contains hyphen", "B0C3-VN3QK", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsASIN(tt.input))
		})
	}
}

func TestWork_ExternalIdentifiers(t *testing.T) {
	t.Run("ASIN-shaped external ID", func(t *testing.T) {
		work := &Work{ExternalID: "B0C3HVN3QK"}
		assert.Equal(t, "B0C3HVN3QK", work.ASIN())
		assert.Empty(t, work.ISBN())
	})

	t.Run("ISBN-shaped external ID", func(t *testing.T) {
		work := &Work{ExternalID: "9780441013593"}
		assert.Empty(t, work.ASIN())
		assert.Equal(t, "9780441013593", work.ISBN())
	})

	t.Run("no external ID", func(t *testing.T) {
		work := &Work{}
		assert.Empty(t, work.ASIN())
		assert.Empty(t, work.ISBN())
	})
}

func TestRequest_Deleted(t *testing.T) {
	request := &Request{}
	assert.False(t, request.Deleted())

	now := time.Now()
	request.DeletedAt = &now
	assert.True(t, request.Deleted())
}

func TestNewOutboxEvent(t *testing.T) {
	event, err := NewOutboxEvent(EventTypeSearchRequested, "req-123", map[string]string{"title": "Dune"})
	require.NoError(t, err)

	assert.NotEqual(t, event.EventID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, EventTypeSearchRequested, event.EventType)
	assert.Equal(t, "req-123", event.AggregateID)
	assert.JSONEq(t, `{"title":"Dune"}`, string(event.Payload))
	assert.Nil(t, event.PublishedAt)
	assert.Zero(t, event.Attempts)
}

func TestNewOutboxEvent_UnserializablePayload(t *testing.T) {
	_, err := NewOutboxEvent(EventTypeNotify, "req-123", func() {})
	require.Error(t, err)
}
