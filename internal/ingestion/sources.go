package ingestion

import (
	"context"
	"time"

	"github.com/mr1hm/quake-notify/internal/models"
)

// FetchFunc retrieves a feed and normalizes it into events. Everything
// source-specific (timestamp units, field names) lives behind this
// function; the coordinator never looks at raw payloads.
type FetchFunc func(ctx context.Context, url string) ([]models.Event, error)

// Source is one parameterized feed adapter. The per-source notifier
// variants differ only in URL and normalizer, so they share one
// coordinator.
type Source struct {
	Name     string
	URL      string
	Interval time.Duration
	Fetch    FetchFunc
}

// USGSSource polls the USGS GeoJSON summary feed.
func USGSSource(url string, interval time.Duration) Source {
	return Source{
		Name:     models.SourceUSGS,
		URL:      url,
		Interval: interval,
		Fetch:    fetchUSGSGeoJSON(models.SourceUSGS),
	}
}

// EMSCSource polls the EMSC seismicportal fdsnws event feed.
func EMSCSource(url string, interval time.Duration) Source {
	return Source{
		Name:     models.SourceEMSC,
		URL:      url,
		Interval: interval,
		Fetch:    fetchEMSC,
	}
}

// SecondarySource polls any USGS-format GeoJSON mirror under its own
// name and watermark.
func SecondarySource(url string, interval time.Duration) Source {
	return Source{
		Name:     models.SourceSEC,
		URL:      url,
		Interval: interval,
		Fetch:    fetchUSGSGeoJSON(models.SourceSEC),
	}
}
