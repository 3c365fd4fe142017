package models

import "time"

const (
	SourceUSGS = "usgs"
	SourceEMSC = "emsc"
	SourceSEC  = "sec"
)

// Event is a normalized seismic event. Identity is (Source, ID); the raw
// feed id alone is only unique within one source.
type Event struct {
	ID        string
	Source    string
	Magnitude float64
	Place     string
	Time      int64 // epoch millis, as reported by the feed
	Latitude  float64
	Longitude float64
	DepthKm   float64
}

// Key returns the source-scoped identity used for storage and dedup.
func (e *Event) Key() string {
	return e.Source + "_" + e.ID
}

func (e *Event) OccurredAt() time.Time {
	return time.UnixMilli(e.Time)
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (e *Event) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
	}
}
