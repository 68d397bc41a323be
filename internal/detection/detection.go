// Package detection defines the bear detection domain model shared by the
// submission, statistics and history components.
package detection

import (
	"cmp"
	"math"
	"time"
)

// Verdict is the classification outcome for a single image.
type Verdict struct {
	BearDetected bool    `json:"bear_detected"`
	Confidence   float64 `json:"confidence"`
}

// Valid reports whether the confidence is a finite number in [0, 1].
func (v Verdict) Valid() bool {
	return !math.IsNaN(v.Confidence) && v.Confidence >= 0 && v.Confidence <= 1
}

// Event is one recorded detection. Events are append-only; the ID is
// assigned by the store on append and increases monotonically.
type Event struct {
	ID           uint64    `json:"id"`
	Location     string    `json:"location"`
	DetectedAt   time.Time `json:"detected_at"`
	BearDetected bool      `json:"bear_detected"`
	Confidence   float64   `json:"confidence"`
}

// TimePrecision is the resolution at which DetectedAt is recorded. Every
// store keeps and orders detection times at this resolution, so events in
// the same millisecond fall through to the ID tie-break.
const TimePrecision = time.Millisecond

// NormalizeTime returns t in UTC, truncated to TimePrecision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(TimePrecision)
}

// NewEvent builds an unsaved event from a verdict. detectedAt is normalized.
func NewEvent(location string, detectedAt time.Time, v Verdict) *Event {
	return &Event{
		Location:     location,
		DetectedAt:   NormalizeTime(detectedAt),
		BearDetected: v.BearDetected,
		Confidence:   v.Confidence,
	}
}

// Verdict returns the classification part of the event.
func (e *Event) Verdict() Verdict {
	return Verdict{BearDetected: e.BearDetected, Confidence: e.Confidence}
}

// CompareRecent orders events newest first: descending DetectedAt, then descending ID.
// Use with slices.SortFunc.
func CompareRecent(a, b Event) int {
	if c := b.DetectedAt.Compare(a.DetectedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// DailyCount is the number of events on one calendar date (YYYY-MM-DD).
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// LocationCount is the number of events recorded at one exact location string.
type LocationCount struct {
	Location string `json:"location"`
	Count    int64  `json:"count"`
}

// StatisticsSnapshot is a point-in-time summary of all stored events.
//
// BearDetections <= TotalDetections, and both DailyStats and LocationStats
// partition every event exactly once.
type StatisticsSnapshot struct {
	TotalDetections int64           `json:"total_detections"`
	BearDetections  int64           `json:"bear_detections"`
	DailyStats      []DailyCount    `json:"daily_stats"`
	LocationStats   []LocationCount `json:"location_stats"`
}
