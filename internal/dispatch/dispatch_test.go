package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/mr1hm/quake-notify/internal/models"
	"github.com/mr1hm/quake-notify/internal/resolver"
	"github.com/mr1hm/quake-notify/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransport records batches and answers from a scripted result map
// keyed by token.
type fakeTransport struct {
	mu      sync.Mutex
	batches [][]Message
	results map[string]Result
	err     error
}

func (f *fakeTransport) SendBatch(ctx context.Context, msgs []Message) ([]Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, msgs)
	results := make([]Result, len(msgs))
	for i, m := range msgs {
		if r, ok := f.results[m.Token]; ok {
			results[i] = r
		} else {
			results[i] = Result{Success: true}
		}
	}
	return results, nil
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (f *fakeRemover) RemoveToken(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, userID)
	return nil
}

func testEvent() *models.Event {
	return &models.Event{
		ID:        "ev1",
		Source:    models.SourceUSGS,
		Magnitude: 6.1,
		Place:     "10km N of Somewhere",
		Latitude:  35.0,
		Longitude: 139.0,
	}
}

func recipient(id string, profiles ...string) resolver.Recipient {
	return resolver.Recipient{
		UserID:          id,
		Token:           "tok_" + id,
		MatchedProfiles: profiles,
	}
}

func newTestDispatcher(t *testing.T, transport Transport, remover TokenRemover, batchSize int) *Dispatcher {
	t.Helper()
	pool := worker.NewPool(2, 10)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return NewDispatcher(transport, remover, pool, batchSize)
}

func TestDispatch_AllSucceed(t *testing.T) {
	transport := &fakeTransport{}
	remover := &fakeRemover{}
	d := newTestDispatcher(t, transport, remover, 500)

	stats := d.Dispatch(context.Background(), testEvent(), []resolver.Recipient{
		recipient("u1", "Home"),
		recipient("u2", "Home"),
	})

	if stats.Sent != 2 || stats.Failed != 0 {
		t.Errorf("expected 2 sent / 0 failed, got %+v", stats)
	}
	if len(transport.batches) != 1 {
		t.Errorf("expected 1 batch, got %d", len(transport.batches))
	}
	if len(remover.removed) != 0 {
		t.Errorf("expected no cleanups, got %v", remover.removed)
	}
}

func TestDispatch_BatchChunking(t *testing.T) {
	transport := &fakeTransport{}
	d := newTestDispatcher(t, transport, &fakeRemover{}, 2)

	recipients := []resolver.Recipient{
		recipient("u1"), recipient("u2"), recipient("u3"),
		recipient("u4"), recipient("u5"),
	}
	stats := d.Dispatch(context.Background(), testEvent(), recipients)

	if stats.Sent != 5 {
		t.Errorf("expected 5 sent, got %d", stats.Sent)
	}
	if len(transport.batches) != 3 {
		t.Fatalf("expected 3 batches of [2 2 1], got %d", len(transport.batches))
	}
	sizes := []int{len(transport.batches[0]), len(transport.batches[1]), len(transport.batches[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("expected batch sizes [2 2 1], got %v", sizes)
	}
}

func TestDispatch_ExactBatchBoundary(t *testing.T) {
	transport := &fakeTransport{}
	d := newTestDispatcher(t, transport, &fakeRemover{}, 2)

	stats := d.Dispatch(context.Background(), testEvent(), []resolver.Recipient{
		recipient("u1"), recipient("u2"),
	})

	if stats.Sent != 2 {
		t.Errorf("expected 2 sent, got %d", stats.Sent)
	}
	if len(transport.batches) != 1 {
		t.Errorf("expected exactly 1 batch at the boundary, got %d", len(transport.batches))
	}
}

func TestDispatch_InvalidCredentialTriggersCleanup(t *testing.T) {
	transport := &fakeTransport{
		results: map[string]Result{
			"tok_u2": {Kind: KindInvalidCredential, Detail: "NotRegistered"},
		},
	}
	remover := &fakeRemover{}
	d := newTestDispatcher(t, transport, remover, 500)

	stats := d.Dispatch(context.Background(), testEvent(), []resolver.Recipient{
		recipient("u1", "Home"),
		recipient("u2", "Home"),
	})

	if stats.Sent != 1 || stats.Failed != 1 {
		t.Errorf("expected 1 sent / 1 failed, got %+v", stats)
	}

	// Dispatch awaits cleanup before returning; no sync needed here.
	if len(remover.removed) != 1 || remover.removed[0] != "u2" {
		t.Errorf("expected exactly one RemoveToken for u2, got %v", remover.removed)
	}

	// No send retry for the failed recipient.
	if len(transport.batches) != 1 {
		t.Errorf("expected no retry batch, got %d batches", len(transport.batches))
	}
}

func TestDispatch_TransientFailureNoCleanupNoRetry(t *testing.T) {
	transport := &fakeTransport{
		results: map[string]Result{
			"tok_u1": {Kind: KindTransient, Detail: "Unavailable"},
		},
	}
	remover := &fakeRemover{}
	d := newTestDispatcher(t, transport, remover, 500)

	stats := d.Dispatch(context.Background(), testEvent(), []resolver.Recipient{
		recipient("u1", "Home"),
	})

	if stats.Sent != 0 || stats.Failed != 1 {
		t.Errorf("expected 0 sent / 1 failed, got %+v", stats)
	}
	if len(remover.removed) != 0 {
		t.Errorf("transient failure must not remove tokens, got %v", remover.removed)
	}
	if len(transport.batches) != 1 {
		t.Errorf("expected no retry, got %d batches", len(transport.batches))
	}
}

func TestDispatch_CleanupFailureIsNotFatal(t *testing.T) {
	transport := &fakeTransport{
		results: map[string]Result{
			"tok_u1": {Kind: KindInvalidCredential, Detail: "NotRegistered"},
		},
	}
	remover := &fakeRemover{err: errors.New("store down")}
	d := newTestDispatcher(t, transport, remover, 500)

	stats := d.Dispatch(context.Background(), testEvent(), []resolver.Recipient{
		recipient("u1", "Home"),
	})

	if stats.Failed != 1 {
		t.Errorf("expected 1 failed, got %+v", stats)
	}
}

func TestDispatch_ConcurrentCallsShareCleanupPool(t *testing.T) {
	// One dispatcher serves every source, so overlapping runs dispatch
	// concurrently through the same cleanup pool. Each call must await
	// only its own cleanups.
	results := map[string]Result{}
	var recipientsA, recipientsB []resolver.Recipient
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		recipientsA = append(recipientsA, recipient(id, "Home"))
		results["tok_"+id] = Result{Kind: KindInvalidCredential, Detail: "NotRegistered"}
	}
	for _, id := range []string{"b1", "b2", "b3", "b4"} {
		recipientsB = append(recipientsB, recipient(id, "Home"))
		results["tok_"+id] = Result{Kind: KindInvalidCredential, Detail: "NotRegistered"}
	}

	transport := &fakeTransport{results: results}
	remover := &fakeRemover{}
	d := newTestDispatcher(t, transport, remover, 2)

	var wg sync.WaitGroup
	for _, recipients := range [][]resolver.Recipient{recipientsA, recipientsB} {
		wg.Add(1)
		go func(recipients []resolver.Recipient) {
			defer wg.Done()
			stats := d.Dispatch(context.Background(), testEvent(), recipients)
			if stats.Failed != 4 {
				t.Errorf("expected 4 failed, got %+v", stats)
			}
		}(recipients)
	}
	wg.Wait()

	if len(remover.removed) != 8 {
		t.Errorf("expected 8 token removals across both calls, got %v", remover.removed)
	}
	seen := map[string]bool{}
	for _, id := range remover.removed {
		if seen[id] {
			t.Errorf("user %s removed more than once", id)
		}
		seen[id] = true
	}
}

func TestDispatch_WholeBatchSendFailure(t *testing.T) {
	transport := &fakeTransport{err: errors.New("provider down")}
	d := newTestDispatcher(t, transport, &fakeRemover{}, 500)

	stats := d.Dispatch(context.Background(), testEvent(), []resolver.Recipient{
		recipient("u1"), recipient("u2"),
	})

	if stats.Sent != 0 || stats.Failed != 2 {
		t.Errorf("expected 0 sent / 2 failed, got %+v", stats)
	}
}

func TestBuildBody_ProfileSummaries(t *testing.T) {
	event := testEvent()

	one := recipient("u1", "Home")
	body := buildBody(event, &one)
	if !strings.Contains(body, `Matches your "Home" filter.`) {
		t.Errorf("single-profile body missing summary: %q", body)
	}

	two := recipient("u2", "Home", "Work")
	body = buildBody(event, &two)
	if !strings.Contains(body, "Matches your filters: Home, Work.") {
		t.Errorf("multi-profile body missing summary: %q", body)
	}

	legacy := recipient("u3", "")
	body = buildBody(event, &legacy)
	if strings.Contains(body, "Matches your") {
		t.Errorf("legacy unnamed profile must not produce a summary: %q", body)
	}
}

func TestBuildBody_DistanceAndDirection(t *testing.T) {
	event := testEvent() // 35.0, 139.0

	r := recipient("u1", "Home")
	r.Location = &models.Coordinates{Latitude: 34.0, Longitude: 139.0} // ~111 km south of the event

	body := buildBody(event, &r)
	if !strings.Contains(body, "km N of your location") {
		t.Errorf("expected northward distance enrichment, got %q", body)
	}
}

func TestBuildMessage_SharedPayload(t *testing.T) {
	event := testEvent()
	r := recipient("u1", "Home")

	msg := buildMessage(event, &r)
	if msg.Title != "New Earthquake Alert!" {
		t.Errorf("unexpected title %q", msg.Title)
	}
	if msg.Sound != "default" {
		t.Errorf("unexpected sound %q", msg.Sound)
	}
	if msg.Data["event_id"] != "usgs_ev1" {
		t.Errorf("unexpected event_id %q", msg.Data["event_id"])
	}
	if msg.Data["map_url"] == "" || msg.Data["event"] == "" {
		t.Error("expected map_url and serialized event in data")
	}
}
