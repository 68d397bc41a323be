package datastore

import (
	"time"

	"github.com/bearwatch/bearwatch/internal/detection"
)

// Detection is the persisted form of a detection event.
// DetectedAt is always stored in UTC at millisecond precision so that
// lexical and chronological ordering agree on every backend.
type Detection struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Location     string    `gorm:"size:512;not null"`
	DetectedAt   time.Time `gorm:"not null;precision:3;index:idx_detections_recent,priority:1"`
	BearDetected bool      `gorm:"not null;default:false;index"`
	Confidence   float64   `gorm:"not null"`
	CreatedAt    time.Time
}

// TableName pins the table name independent of GORM naming strategy.
func (Detection) TableName() string {
	return "detections"
}

func fromEvent(e *detection.Event) Detection {
	return Detection{
		Location:     e.Location,
		DetectedAt:   detection.NormalizeTime(e.DetectedAt),
		BearDetected: e.BearDetected,
		Confidence:   e.Confidence,
	}
}

func (d *Detection) toEvent() detection.Event {
	return detection.Event{
		ID:           d.ID,
		Location:     d.Location,
		DetectedAt:   d.DetectedAt.UTC(),
		BearDetected: d.BearDetected,
		Confidence:   d.Confidence,
	}
}

func toEvents(rows []Detection) []detection.Event {
	events := make([]detection.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEvent()
	}
	return events
}
