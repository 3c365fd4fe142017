package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mr1hm/quake-notify/internal/models"
)

type emscResponse struct {
	Features []emscFeature `json:"features"`
}

type emscFeature struct {
	ID         string         `json:"id"`
	Properties emscProperties `json:"properties"`
}
type emscProperties struct {
	Mag         float64 `json:"mag"`
	FlynnRegion string  `json:"flynn_region"`
	Time        string  `json:"time"` // ISO 8601
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Depth       float64 `json:"depth"`
	Unid        string  `json:"unid"`
}

// fetchEMSC polls the seismicportal fdsnws event query. Unlike USGS the
// properties carry flat lat/lon/depth fields and an ISO timestamp.
func fetchEMSC(ctx context.Context, url string) ([]models.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	client := &http.Client{
		Timeout: 15 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data emscResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	events := make([]models.Event, 0, len(data.Features))
	for _, f := range data.Features {
		ts, err := parseEMSCTime(f.Properties.Time)
		if err != nil {
			slog.Warn("EMSC timestamp parsing failed", "id", f.ID, "error", err.Error())
			continue
		}

		id := f.Properties.Unid
		if id == "" {
			id = f.ID
		}

		events = append(events, models.Event{
			ID:        id,
			Source:    models.SourceEMSC,
			Magnitude: f.Properties.Mag,
			Place:     f.Properties.FlynnRegion,
			Time:      ts.UnixMilli(),
			Latitude:  f.Properties.Lat,
			Longitude: f.Properties.Lon,
			DepthKm:   f.Properties.Depth,
		})
	}

	return events, nil
}

// parseEMSCTime accepts the portal's fractional-second variants.
func parseEMSCTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05.9Z", "2006-01-02T15:04:05.9", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
