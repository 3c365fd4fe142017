package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/quake-notify/internal/dispatch"
	"github.com/mr1hm/quake-notify/internal/geocode"
	"github.com/mr1hm/quake-notify/internal/models"
	"github.com/mr1hm/quake-notify/internal/repository"
	"github.com/mr1hm/quake-notify/internal/resolver"
)

// Coordinator drives one run per source per tick: read the watermark,
// fetch and normalize, drop everything at or below the watermark, notify
// in feed order, then advance the watermark exactly once. A crash
// mid-run leaves the watermark untouched, so the next run reprocesses
// the whole batch (at-least-once at the batch level); a completed run
// never reprocesses an event at or below the new watermark.
type Coordinator struct {
	sources    []Source
	watermarks repository.WatermarkStore
	events     repository.EventRepository
	directory  repository.UserDirectory
	dispatcher *dispatch.Dispatcher
	geocoder   geocode.Geocoder // optional
	wg         sync.WaitGroup
}

func NewCoordinator(
	sources []Source,
	watermarks repository.WatermarkStore,
	events repository.EventRepository,
	directory repository.UserDirectory,
	dispatcher *dispatch.Dispatcher,
	geocoder geocode.Geocoder,
) *Coordinator {
	return &Coordinator{
		sources:    sources,
		watermarks: watermarks,
		events:     events,
		directory:  directory,
		dispatcher: dispatcher,
		geocoder:   geocoder,
	}
}

// Start launches one poller per source. Sources share no mutable state,
// so their runs are free to overlap each other.
func (c *Coordinator) Start(ctx context.Context) {
	for _, src := range c.sources {
		c.wg.Add(1)
		go c.runPoller(ctx, src)
	}
}

func (c *Coordinator) runPoller(ctx context.Context, src Source) {
	defer c.wg.Done()
	slog.Info("starting poller", "source", src.Name, "interval", src.Interval)

	ticker := time.NewTicker(src.Interval)
	defer ticker.Stop()

	// Initial poll
	if err := c.RunSource(ctx, src.Name); err != nil {
		slog.Error("run failed", "source", src.Name, "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", src.Name)
			return
		case <-ticker.C:
			if err := c.RunSource(ctx, src.Name); err != nil {
				slog.Error("run failed", "source", src.Name, "error", err)
			}
		}
	}
}

func (c *Coordinator) Stop() {
	c.wg.Wait()
	slog.Info("ingestion coordinator stopped")
}

// RunSource executes one full run for the named source. Errors abort the
// run with the watermark untouched; they are never fatal to the process.
func (c *Coordinator) RunSource(ctx context.Context, name string) error {
	var src *Source
	for i := range c.sources {
		if c.sources[i].Name == name {
			src = &c.sources[i]
			break
		}
	}
	if src == nil {
		return fmt.Errorf("unknown source %q", name)
	}
	return c.run(ctx, src)
}

func (c *Coordinator) run(ctx context.Context, src *Source) error {
	watermark, err := c.watermarks.GetWatermark(ctx, src.Name)
	if err != nil {
		return fmt.Errorf("error reading watermark: %w", err)
	}

	fetched, err := src.Fetch(ctx, src.URL)
	if err != nil {
		return fmt.Errorf("error fetching feed: %w", err)
	}

	// Keep feed order; only events past the watermark are new.
	retained := fetched[:0:0]
	for _, e := range fetched {
		if e.Time > watermark {
			retained = append(retained, e)
		}
	}

	slog.Debug("poll complete", "source", src.Name, "fetched", len(fetched), "new", len(retained))
	if len(retained) == 0 {
		return nil
	}

	users, err := c.directory.ListNotifiable(ctx)
	if err != nil {
		return fmt.Errorf("error listing users: %w", err)
	}

	// maxSeen covers every retained event whether or not its
	// notifications succeeded; delivery is best-effort, the watermark
	// only promises each event one attempt.
	maxSeen := watermark
	for i := range retained {
		event := &retained[i]
		if event.Time > maxSeen {
			maxSeen = event.Time
		}

		c.enrichPlace(ctx, event)
		c.persist(ctx, event)

		recipients := resolver.Resolve(event, users, time.Now())
		if len(recipients) == 0 {
			continue
		}

		stats := c.dispatcher.Dispatch(ctx, event, recipients)
		slog.Info("event dispatched",
			"source", src.Name, "id", event.ID, "magnitude", event.Magnitude,
			"recipients", len(recipients), "sent", stats.Sent, "failed", stats.Failed)
	}

	if maxSeen > watermark {
		if err := c.watermarks.SetWatermark(ctx, src.Name, maxSeen); err != nil {
			// Notifications already went out; the next run will
			// re-attempt this batch.
			slog.Error("watermark write failed, batch will be reprocessed",
				"source", src.Name, "watermark", maxSeen, "error", err)
		}
	}
	return nil
}

// enrichPlace fills in a missing place name via the reverse geocoder.
// Lookup failures keep the original value.
func (c *Coordinator) enrichPlace(ctx context.Context, event *models.Event) {
	if c.geocoder == nil || event.Place != "" {
		return
	}
	place, err := c.geocoder.Lookup(ctx, event.Latitude, event.Longitude)
	if err != nil {
		slog.Debug("reverse geocode failed", "id", event.Key(), "error", err)
		return
	}
	event.Place = place
}

// persist records the event for the API and audit trail. Storage errors
// do not stop notification.
func (c *Coordinator) persist(ctx context.Context, event *models.Event) {
	exists, err := c.events.Exists(ctx, event.Source, event.ID)
	if err != nil {
		slog.Error("error checking existence", "id", event.Key(), "error", err)
		return
	}
	if exists {
		return
	}
	if err := c.events.Add(ctx, event); err != nil {
		slog.Error("error adding event", "id", event.Key(), "error", err)
	}
}
