// Package geocode optionally enriches events whose feed did not include
// a human-readable place name.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Geocoder resolves coordinates to a place name. Lookup failures are
// never fatal; callers keep the original place.
type Geocoder interface {
	Lookup(ctx context.Context, lat, lon float64) (string, error)
}

// Nominatim is a reverse geocoder against a Nominatim-compatible
// endpoint.
type Nominatim struct {
	baseURL string
	client  *http.Client
}

func NewNominatim(baseURL string) *Nominatim {
	return &Nominatim{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) Lookup(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", "quake-notify")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return data.DisplayName, nil
}
