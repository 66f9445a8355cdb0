package match

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfarr/shelfarr/internal/domain"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), zerolog.Nop())
}

func TestFindMatchNoCandidates(t *testing.T) {
	engine := newTestEngine()
	work := &domain.Work{Title: "The Tenant", Author: "Freida McFadden"}

	outcome := engine.FindMatch(work, nil)

	assert.Nil(t, outcome.Match)
	assert.Equal(t, NoMatchNoCandidates, outcome.Reason)
}

func TestFindMatchExactASIN(t *testing.T) {
	engine := newTestEngine()
	work := &domain.Work{
		ExternalID: "B0C3HVN3QK",
		Title:      "The Tenant",
		Author:     "Freida McFadden",
	}
	items := []domain.LibraryItem{
		{ExternalGUID: "li_8gch9ve09orgn4fdz8", Title: "Unrelated", Author: "Someone Else"},
		{ExternalGUID: "audible_B0C3HVN3QK_us", Title: "Completely Different Title", Author: "Nobody"},
	}

	outcome := engine.FindMatch(work, items)

	require.NotNil(t, outcome.Match)
	assert.Equal(t, MatchTypeASIN, outcome.Match.Type)
	assert.Equal(t, 100, outcome.Match.Confidence)
	assert.Equal(t, "audible_B0C3HVN3QK_us", outcome.Match.Item.ExternalGUID)
}

func TestFindMatchASINConflictFiltered(t *testing.T) {
	engine := newTestEngine()
	work := &domain.Work{
		ExternalID: "B0C3HVN3QK",
		Title:      "The Tenant",
		Author:     "Freida McFadden",
	}
	// Title and author fuzzy-match above threshold, but the GUID carries a
	// different ASIN. It must never be returned.
	items := []domain.LibraryItem{
		{ExternalGUID: "audible_B0D9XYZW12_us", Title: "The Tenant", Author: "Freida McFadden"},
	}

	outcome := engine.FindMatch(work, items)

	assert.Nil(t, outcome.Match)
	assert.Equal(t, NoMatchASINConflict, outcome.Reason)
}

func TestFindMatchASINConflictPartialFallsThrough(t *testing.T) {
	engine := newTestEngine()
	work := &domain.Work{
		ExternalID: "B0C3HVN3QK",
		Title:      "The Tenant",
		Author:     "Freida McFadden",
	}
	items := []domain.LibraryItem{
		{ExternalGUID: "audible_B0D9XYZW12_us", Title: "The Tenant", Author: "Freida McFadden"},
		{ExternalGUID: "li_no_asin_here", Title: "The Tenant (Unabridged)", Author: "Freida McFadden"},
	}

	outcome := engine.FindMatch(work, items)

	require.NotNil(t, outcome.Match)
	assert.Equal(t, MatchTypeFuzzy, outcome.Match.Type)
	assert.Equal(t, "li_no_asin_here", outcome.Match.Item.ExternalGUID)
}

func TestFindMatchExactISBN(t *testing.T) {
	engine := newTestEngine()
	work := &domain.Work{
		ExternalID: "978-0-316-76948-0",
		Title:      "The Catcher in the Rye",
		Author:     "J.D. Salinger",
	}
	items := []domain.LibraryItem{
		{ExternalGUID: "book_9780316769480", Title: "Some Retitled Edition", Author: "Salinger"},
	}

	outcome := engine.FindMatch(work, items)

	require.NotNil(t, outcome.Match)
	assert.Equal(t, MatchTypeISBN, outcome.Match.Type)
	assert.Equal(t, 95, outcome.Match.Confidence)
}

func TestFindMatchFuzzyThresholdBoundary(t *testing.T) {
	engine := newTestEngine()

	// Title similarity 1.0, author similarity 0.0: overall exactly 0.70.
	work := &domain.Work{Title: "The Tenant", Author: "Freida McFadden"}
	items := []domain.LibraryItem{
		{ExternalGUID: "li_1", Title: "The Tenant", Author: "Qxwv Zyxq"},
	}

	outcome := engine.FindMatch(work, items)

	require.NotNil(t, outcome.Match, "overall score of exactly 0.70 must be accepted")
	assert.Equal(t, 70, outcome.Match.Confidence)
}

func TestFindMatchFuzzyBelowThreshold(t *testing.T) {
	engine := newTestEngine()
	work := &domain.Work{Title: "The Tenant", Author: "Freida McFadden"}
	items := []domain.LibraryItem{
		{ExternalGUID: "li_1", Title: "A Wholly Unrelated Story", Author: "Qxwv Zyxq"},
	}

	outcome := engine.FindMatch(work, items)

	assert.Nil(t, outcome.Match)
	assert.Equal(t, NoMatchBelowThreshold, outcome.Reason)
}

func TestFindMatchNarratorFallback(t *testing.T) {
	engine := newTestEngine()

	// The library backend stored the narrator in the author field.
	work := &domain.Work{
		Title:    "Project Hail Mary",
		Author:   "Andy Weir",
		Narrator: "Ray Porter",
	}
	items := []domain.LibraryItem{
		{ExternalGUID: "li_1", Title: "Project Hail Mary", Author: "Ray Porter"},
	}

	outcome := engine.FindMatch(work, items)

	require.NotNil(t, outcome.Match)
	assert.True(t, outcome.Match.UsedNarratorMatch)
	assert.InDelta(t, 1.0, outcome.Match.PersonScore, 1e-9)
}

func TestFindMatchNormalizedExactTitle(t *testing.T) {
	engine := newTestEngine()

	// End-to-end scenario: edition marker stripped on both sides, author
	// identical, so the overall score is 1.0 without any ASIN involvement.
	work := &domain.Work{Title: "The Tenant", Author: "Freida McFadden"}
	items := []domain.LibraryItem{
		{ExternalGUID: "li_plain", Title: "The Tenant (Unabridged)", Author: "Freida McFadden"},
	}

	outcome := engine.FindMatch(work, items)

	require.NotNil(t, outcome.Match)
	assert.Equal(t, MatchTypeFuzzy, outcome.Match.Type)
	assert.Equal(t, 100, outcome.Match.Confidence)
	assert.False(t, outcome.Match.UsedNarratorMatch)
}

func TestFindMatchPicksBestCandidate(t *testing.T) {
	engine := newTestEngine()
	work := &domain.Work{Title: "The Tenant", Author: "Freida McFadden"}
	items := []domain.LibraryItem{
		{ExternalGUID: "li_close", Title: "The Tenant of Wildfell Hall", Author: "Anne Bronte"},
		{ExternalGUID: "li_exact", Title: "The Tenant", Author: "Freida McFadden"},
	}

	outcome := engine.FindMatch(work, items)

	require.NotNil(t, outcome.Match)
	assert.Equal(t, "li_exact", outcome.Match.Item.ExternalGUID)
}
