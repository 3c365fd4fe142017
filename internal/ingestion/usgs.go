package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr1hm/quake-notify/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}
type usgsProperties struct {
	Mag   float64 `json:"mag"`
	Place string  `json:"place"`
	Time  int64   `json:"time"` // epoch millis
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// fetchUSGSGeoJSON builds a fetcher for any USGS-format GeoJSON feed,
// stamping events with the given source name.
func fetchUSGSGeoJSON(source string) FetchFunc {
	return func(ctx context.Context, url string) ([]models.Event, error) {
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

		var data usgsResponse
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, fmt.Errorf("error decoding resp.Body: %w", err)
		}

		events := make([]models.Event, 0, len(data.Features))
		for _, f := range data.Features {
			if len(f.Geometry.Coordinates) < 2 {
				continue
			}
			e := models.Event{
				ID:        f.ID,
				Source:    source,
				Magnitude: f.Properties.Mag,
				Place:     f.Properties.Place,
				Time:      f.Properties.Time,
				Longitude: f.Geometry.Coordinates[0],
				Latitude:  f.Geometry.Coordinates[1],
			}
			if len(f.Geometry.Coordinates) > 2 {
				e.DepthKm = f.Geometry.Coordinates[2]
			}
			events = append(events, e)
		}

		return events, nil
	}
}
