// Package dispatch fans one event out to its recipients in bounded
// batches and reconciles per-recipient delivery failures.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mr1hm/quake-notify/internal/geo"
	"github.com/mr1hm/quake-notify/internal/models"
	"github.com/mr1hm/quake-notify/internal/resolver"
	"github.com/mr1hm/quake-notify/internal/worker"
)

// ErrorKind classifies a per-recipient delivery failure.
type ErrorKind string

const (
	// KindInvalidCredential means the push token is dead and must be
	// removed from the user directory.
	KindInvalidCredential ErrorKind = "invalid_credential"
	// KindTransient covers every other failure; logged, never retried
	// within the run.
	KindTransient ErrorKind = "transient"
)

// Message is one push notification. Title, Sound and Data are identical
// for every recipient of an event; Body is recipient-specific.
type Message struct {
	Token string
	Title string
	Body  string
	Sound string
	Data  map[string]string
}

// Result is the per-recipient outcome of a batch send, index-aligned
// with the submitted messages.
type Result struct {
	Success bool
	Kind    ErrorKind
	Detail  string
}

// Transport delivers one batch of messages. Implementations must return
// one Result per message, in order.
type Transport interface {
	SendBatch(ctx context.Context, msgs []Message) ([]Result, error)
}

// TokenRemover is the single write the dispatcher performs against the
// user directory.
type TokenRemover interface {
	RemoveToken(ctx context.Context, userID string) error
}

type Stats struct {
	Sent   int
	Failed int
}

type Dispatcher struct {
	transport Transport
	directory TokenRemover
	cleanup   *worker.Pool
	batchSize int
}

func NewDispatcher(transport Transport, directory TokenRemover, cleanup *worker.Pool, batchSize int) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		directory: directory,
		cleanup:   cleanup,
		batchSize: batchSize,
	}
}

// Dispatch sends one message per recipient, chunked to the provider
// batch limit. Batches go out sequentially. Invalid credentials trigger
// token-removal tasks that run in parallel on the cleanup pool; each
// batch's cleanups are awaited before the next batch goes out, so a
// completed call has no work in flight. The await is scoped to this
// call, so dispatches from overlapping source runs share the pool
// without blocking on each other's cleanups. Transient failures are
// logged only; delivery is at-most-once per run.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event, recipients []resolver.Recipient) Stats {
	var stats Stats

	for start := 0; start < len(recipients); start += d.batchSize {
		end := start + d.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := recipients[start:end]

		msgs := make([]Message, len(batch))
		for i, r := range batch {
			msgs[i] = buildMessage(event, &r)
		}

		results, err := d.transport.SendBatch(ctx, msgs)
		if err != nil {
			slog.Error("batch send failed", "event", event.Key(), "size", len(batch), "error", err)
			stats.Failed += len(batch)
			continue
		}

		var cleanups sync.WaitGroup
		for i, res := range results {
			if i >= len(batch) {
				break
			}
			if res.Success {
				stats.Sent++
				continue
			}
			stats.Failed++

			r := batch[i]
			switch res.Kind {
			case KindInvalidCredential:
				userID := r.UserID
				cleanups.Add(1)
				d.cleanup.Submit(func(ctx context.Context) {
					defer cleanups.Done()
					if err := d.directory.RemoveToken(ctx, userID); err != nil {
						slog.Error("token cleanup failed", "user", userID, "error", err)
						return
					}
					slog.Info("removed invalid push token", "user", userID)
				})
			default:
				slog.Warn("delivery failed", "event", event.Key(), "user", r.UserID, "kind", res.Kind, "detail", res.Detail)
			}
		}

		// Cleanup writes for this batch must land before the run can
		// advance its watermark.
		cleanups.Wait()

		slog.Debug("batch dispatched", "event", event.Key(), "size", len(batch), "sent", stats.Sent, "failed", stats.Failed)
	}

	return stats
}

func buildMessage(event *models.Event, r *resolver.Recipient) Message {
	data := map[string]string{
		"event_id": event.Key(),
		"map_url":  mapURL(event),
	}
	if raw, err := json.Marshal(eventPayload(event)); err == nil {
		data["event"] = string(raw)
	}

	return Message{
		Token: r.Token,
		Title: "New Earthquake Alert!",
		Body:  buildBody(event, r),
		Sound: "default",
		Data:  data,
	}
}

// buildBody writes the recipient-specific text: the base alert line,
// distance and direction relative to the matched profile's location when
// one is known, and the matched-profile summary.
func buildBody(event *models.Event, r *resolver.Recipient) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Magnitude %.1f earthquake near %s.", event.Magnitude, event.Place)

	if r.Location != nil {
		dist := geo.DistanceKm(r.Location.Latitude, r.Location.Longitude, event.Latitude, event.Longitude)
		bearing := geo.BearingDegrees(r.Location.Latitude, r.Location.Longitude, event.Latitude, event.Longitude)
		fmt.Fprintf(&b, " About %.0f km %s of your location.", dist, geo.CompassDirection(bearing))
	}

	if summary := profileSummary(r.MatchedProfiles); summary != "" {
		b.WriteString(" ")
		b.WriteString(summary)
	}
	return b.String()
}

func profileSummary(names []string) string {
	var named []string
	for _, n := range names {
		if n != "" {
			named = append(named, n)
		}
	}
	switch len(named) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Matches your %q filter.", named[0])
	default:
		return fmt.Sprintf("Matches your filters: %s.", strings.Join(named, ", "))
	}
}

func mapURL(e *models.Event) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%f,%f", e.Latitude, e.Longitude)
}

// eventPayload is the serialized event carried in message data for the
// mobile client.
func eventPayload(e *models.Event) map[string]any {
	return map[string]any{
		"id":        e.ID,
		"source":    e.Source,
		"magnitude": e.Magnitude,
		"place":     e.Place,
		"time":      e.Time,
		"latitude":  e.Latitude,
		"longitude": e.Longitude,
		"depth_km":  e.DepthKm,
	}
}
