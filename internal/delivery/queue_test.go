package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voice-widget/internal/models"
	"voice-widget/internal/observability/metrics"
)

// testPoster records every record it receives.
type testPoster struct {
	name    string
	mu      sync.Mutex
	records []models.TranscriptRecord
	err     error
	panics  bool
	block   chan struct{}
	closed  bool
}

func (p *testPoster) Name() string { return p.name }

func (p *testPoster) Post(ctx context.Context, rec models.TranscriptRecord) error {
	if p.block != nil {
		<-p.block
	}
	if p.panics {
		panic("poster exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return p.err
}

func (p *testPoster) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testPoster) getRecords() []models.TranscriptRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TranscriptRecord{}, p.records...)
}

func newTestQueue(posters ...Poster) (*Queue, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewQueue(QueueConfig{PostTimeout: time.Second, Metrics: m}, posters...), m
}

func TestQueue_DeliversToEveryPoster(t *testing.T) {
	a := &testPoster{name: "a"}
	b := &testPoster{name: "b"}
	q, _ := newTestQueue(a, b)

	q.Enqueue(models.TranscriptRecord{Room: "r", Type: "user", Text: "hi", TS: 1})
	q.Wait()

	if len(a.getRecords()) != 1 || len(b.getRecords()) != 1 {
		t.Errorf("expected one record per poster, got a=%d b=%d", len(a.getRecords()), len(b.getRecords()))
	}
}

func TestQueue_EnqueueDoesNotBlock(t *testing.T) {
	p := &testPoster{name: "slow", block: make(chan struct{})}
	q, m := newTestQueue(p)

	done := make(chan struct{})
	go func() {
		q.Enqueue(models.TranscriptRecord{Text: "one"})
		q.Enqueue(models.TranscriptRecord{Text: "two"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a slow poster")
	}

	if got := testutil.ToFloat64(m.DeliveriesInFlight); got != 2 {
		t.Errorf("expected 2 deliveries in flight, got %v", got)
	}

	close(p.block)
	q.Wait()

	if len(p.getRecords()) != 2 {
		t.Errorf("expected 2 records after unblocking, got %d", len(p.getRecords()))
	}
}

func TestQueue_FailuresAreAbsorbed(t *testing.T) {
	failing := &testPoster{name: "failing", err: errors.New("backend down")}
	panicking := &testPoster{name: "panicking", panics: true}
	ok := &testPoster{name: "ok"}
	q, m := newTestQueue(failing, panicking, ok)

	q.Enqueue(models.TranscriptRecord{Text: "hello"})
	q.Wait()

	if len(ok.getRecords()) != 1 {
		t.Errorf("healthy poster should still receive the record, got %d", len(ok.getRecords()))
	}
	if got := testutil.ToFloat64(m.DeliveriesFailed.WithLabelValues("failing")); got != 1 {
		t.Errorf("expected 1 failure for failing poster, got %v", got)
	}
	if got := testutil.ToFloat64(m.DeliveriesFailed.WithLabelValues("panicking")); got != 1 {
		t.Errorf("expected 1 failure for panicking poster, got %v", got)
	}
	if got := testutil.ToFloat64(m.DeliveriesFailed.WithLabelValues("ok")); got != 0 {
		t.Errorf("expected no failures for ok poster, got %v", got)
	}
}

func TestQueue_NoRetry(t *testing.T) {
	failing := &testPoster{name: "failing", err: errors.New("nope")}
	q, _ := newTestQueue(failing)

	q.Enqueue(models.TranscriptRecord{Text: "once"})
	q.Wait()

	if len(failing.getRecords()) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(failing.getRecords()))
	}
}

func TestQueue_CloseWaitsAndDropsLaterRecords(t *testing.T) {
	p := &testPoster{name: "p"}
	q, _ := newTestQueue(p)

	q.Enqueue(models.TranscriptRecord{Text: "before"})
	if err := q.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	q.Enqueue(models.TranscriptRecord{Text: "after"})
	q.Wait()

	records := p.getRecords()
	if len(records) != 1 || records[0].Text != "before" {
		t.Errorf("expected only 'before' to be delivered, got %+v", records)
	}
	if !p.closed {
		t.Error("expected poster to be closed")
	}

	// Idempotent
	if err := q.Close(); err != nil {
		t.Errorf("second close: unexpected error: %v", err)
	}
}

func TestQueue_StartAccountedBeforeEnqueueReturns(t *testing.T) {
	p := &testPoster{name: "slow", block: make(chan struct{})}
	q, m := newTestQueue(p)

	q.Enqueue(models.TranscriptRecord{Text: "one"})

	// No scheduling point between Enqueue returning and these reads.
	if got := testutil.ToFloat64(m.DeliveriesEnqueued.WithLabelValues("slow")); got != 1 {
		t.Errorf("expected 1 enqueued delivery, got %v", got)
	}
	if got := testutil.ToFloat64(m.DeliveriesInFlight); got != 1 {
		t.Errorf("expected 1 delivery in flight, got %v", got)
	}

	close(p.block)
	q.Wait()

	if got := testutil.ToFloat64(m.DeliveriesInFlight); got != 0 {
		t.Errorf("expected no deliveries in flight after Wait, got %v", got)
	}
}
