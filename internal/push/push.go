// Package push implements dispatch.Transport against an HTTP push
// provider that accepts a JSON array of messages and returns one result
// per message, in order.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mr1hm/quake-notify/internal/dispatch"
)

// Client posts one request per batch. DryRun skips the HTTP call and
// reports success for every message, for local runs without credentials.
type Client struct {
	endpoint string
	apiKey   string
	dryRun   bool
	client   *http.Client
}

func NewClient(endpoint, apiKey string, dryRun bool) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		dryRun:   dryRun,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type pushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Sound string            `json:"sound,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

type pushResult struct {
	Status string `json:"status"` // "ok" or "error"
	Error  string `json:"error,omitempty"`
}

type pushResponse struct {
	Results []pushResult `json:"results"`
}

func (c *Client) SendBatch(ctx context.Context, msgs []dispatch.Message) ([]dispatch.Result, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	if c.dryRun {
		slog.Info("push dry-run", "messages", len(msgs), "title", msgs[0].Title)
		results := make([]dispatch.Result, len(msgs))
		for i := range results {
			results[i].Success = true
		}
		return results, nil
	}

	body := make([]pushMessage, len(msgs))
	for i, m := range msgs {
		body[i] = pushMessage{
			To:    m.Token,
			Title: m.Title,
			Body:  m.Body,
			Sound: m.Sound,
			Data:  m.Data,
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "key="+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	results := make([]dispatch.Result, len(msgs))
	for i := range results {
		if i >= len(data.Results) {
			results[i] = dispatch.Result{Kind: dispatch.KindTransient, Detail: "missing result"}
			continue
		}
		results[i] = classify(data.Results[i])
	}
	return results, nil
}

// classify maps provider error strings to the dispatcher's taxonomy.
// Dead device registrations must be cleaned up; everything else is
// transient.
func classify(r pushResult) dispatch.Result {
	if r.Status == "ok" && r.Error == "" {
		return dispatch.Result{Success: true}
	}
	switch r.Error {
	case "NotRegistered", "InvalidRegistration", "MismatchSenderId", "DeviceNotRegistered":
		return dispatch.Result{Kind: dispatch.KindInvalidCredential, Detail: r.Error}
	default:
		return dispatch.Result{Kind: dispatch.KindTransient, Detail: r.Error}
	}
}
