package detection

import (
	"fmt"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bearwatch/bearwatch/internal/errors"
)

func TestVerdictValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		confidence float64
		want       bool
	}{
		{0, true},
		{0.85, true},
		{1, true},
		{-0.01, false},
		{1.0001, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.confidence), func(t *testing.T) {
			assert.Equal(t, tt.want, Verdict{Confidence: tt.confidence}.Valid())
		})
	}
}

func TestCompareRecentBreaksTiesByID(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	events := []Event{
		{ID: 1, DetectedAt: ts.Add(-time.Hour)},
		{ID: 2, DetectedAt: ts},
		{ID: 3, DetectedAt: ts},
		{ID: 4, DetectedAt: ts.Add(-2 * time.Hour)},
	}
	slices.SortFunc(events, CompareRecent)

	ids := make([]uint64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	assert.Equal(t, []uint64{3, 2, 1, 4}, ids)
}

func TestNewEventCopiesVerdict(t *testing.T) {
	t.Parallel()

	ts := time.Now()
	e := NewEvent("台東縣海端鄉", ts, Verdict{BearDetected: true, Confidence: 0.85})
	assert.Zero(t, e.ID)
	assert.Equal(t, Verdict{BearDetected: true, Confidence: 0.85}, e.Verdict())
	assert.Equal(t, "台東縣海端鄉", e.Location)
	assert.True(t, ts.Truncate(time.Millisecond).Equal(e.DetectedAt))
}

func TestNormalizeTime(t *testing.T) {
	t.Parallel()

	taipei := time.FixedZone("CST", 8*60*60)
	in := time.Date(2025, 6, 1, 16, 30, 0, 987654321, taipei)

	got := NormalizeTime(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, time.Date(2025, 6, 1, 8, 30, 0, 987000000, time.UTC), got)
	assert.Equal(t, got, NormalizeTime(got), "normalizing twice is a no-op")
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	cause := errors.NewStd("disk I/O error")
	event := NewEvent("x", time.Now(), Verdict{BearDetected: true, Confidence: 0.9})

	tests := []struct {
		name     string
		err      error
		kind     ErrorKind
		sentinel error
		category errors.ErrorCategory
	}{
		{"invalid input", InvalidInput("limit must be positive, got %d", 0), KindInvalidInput, ErrInvalidInput, errors.CategoryValidation},
		{"classification", ClassificationFailure(ReasonTimeout, cause), KindClassificationFailure, ErrClassificationFailure, errors.CategoryClassification},
		{"persistence", PersistenceFailure(event, cause), KindPersistenceFailure, ErrPersistenceFailure, errors.CategoryDatabase},
		{"unavailable", Unavailable("statistics", cause), KindUnavailable, ErrUnavailable, errors.CategoryDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// wrapping in an enhanced error keeps kind and category visible
			wrapped := errors.New(tt.err).Component("test").Build()

			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.category, wrapped.Category)
		})
	}
}

func TestPersistenceFailureCarriesEvent(t *testing.T) {
	t.Parallel()

	event := NewEvent("台東縣", time.Now(), Verdict{BearDetected: true, Confidence: 0.7})
	err := fmt.Errorf("submit: %w", PersistenceFailure(event, errors.NewStd("locked")))

	de, ok := AsError(err)
	require.True(t, ok)
	assert.Same(t, event, de.Event)
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.NotErrorIs(t, err, ErrClassificationFailure)
}

func TestKindOfForeignError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindInternal, KindOf(errors.NewStd("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}
