// Package analytics computes detection statistics over the detection store.
package analytics

import (
	"cmp"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/bearwatch/bearwatch/internal/detection"
)

const dateLayout = "2006-01-02"

// Summarize builds a statistics snapshot from events.
//
// Daily buckets use the calendar date of DetectedAt in loc and are sparse,
// ascending by date. Location buckets group by exact string and are ordered
// by count descending, then by collated location name. Both slices are
// non-nil.
func Summarize(events []detection.Event, loc *time.Location) *detection.StatisticsSnapshot {
	if loc == nil {
		loc = time.UTC
	}

	snapshot := &detection.StatisticsSnapshot{
		TotalDetections: int64(len(events)),
		DailyStats:      []detection.DailyCount{},
		LocationStats:   []detection.LocationCount{},
	}

	daily := make(map[string]int64)
	byLocation := make(map[string]int64)
	for i := range events {
		e := &events[i]
		if e.BearDetected {
			snapshot.BearDetections++
		}
		daily[e.DetectedAt.In(loc).Format(dateLayout)]++
		byLocation[e.Location]++
	}

	for date, count := range daily {
		snapshot.DailyStats = append(snapshot.DailyStats, detection.DailyCount{Date: date, Count: count})
	}
	// YYYY-MM-DD sorts lexically in date order
	slices.SortFunc(snapshot.DailyStats, func(a, b detection.DailyCount) int {
		return cmp.Compare(a.Date, b.Date)
	})

	for location, count := range byLocation {
		snapshot.LocationStats = append(snapshot.LocationStats, detection.LocationCount{Location: location, Count: count})
	}
	sortLocations(snapshot.LocationStats)

	return snapshot
}

// sortLocations orders by count descending, then by name under the root
// collation with a byte-wise tie break. A Collator is not safe for
// concurrent use, so each call builds its own.
func sortLocations(stats []detection.LocationCount) {
	col := collate.New(language.Und)
	slices.SortFunc(stats, func(a, b detection.LocationCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := col.CompareString(a.Location, b.Location); c != 0 {
			return c
		}
		return cmp.Compare(a.Location, b.Location)
	})
}
