// Package delivery forwards transcript records to the log store.
//
// Delivery is best-effort: Enqueue never blocks and never reports an error.
// Each record is posted on its own goroutine; failures are logged, counted
// and dropped without retry. There is no ordering among deliveries; the log
// store receives the first-arrival timestamp and can reorder.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"voice-widget/internal/models"
	"voice-widget/internal/observability/metrics"
)

// Sink accepts transcript records for delivery. Implementations must not
// block the caller and must not surface failures.
type Sink interface {
	Enqueue(rec models.TranscriptRecord)
}

// Poster performs one delivery attempt.
type Poster interface {
	// Name labels the poster in logs and metrics.
	Name() string

	// Post sends rec to the log store.
	Post(ctx context.Context, rec models.TranscriptRecord) error
}

// DefaultPostTimeout bounds a single delivery attempt.
const DefaultPostTimeout = 10 * time.Second

// QueueConfig holds delivery queue configuration.
type QueueConfig struct {
	PostTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Queue fans every record out to its posters, fire-and-forget.
type Queue struct {
	posters []Poster
	timeout time.Duration
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue creates a delivery queue over the given posters.
func NewQueue(cfg QueueConfig, posters ...Poster) *Queue {
	timeout := cfg.PostTimeout
	if timeout <= 0 {
		timeout = DefaultPostTimeout
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Queue{
		posters: posters,
		timeout: timeout,
		metrics: m,
	}
}

// Enqueue starts delivery of rec to every poster and returns immediately.
// Records enqueued after Close are dropped.
func (q *Queue) Enqueue(rec models.TranscriptRecord) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		log.Debug().
			Str("room", rec.Room).
			Str("type", rec.Type).
			Int64("ts", rec.TS).
			Msg("Delivery queue closed, record dropped")
		return
	}

	for _, p := range q.posters {
		q.wg.Add(1)
		q.metrics.RecordDeliveryStart(p.Name())
		go q.deliver(p, rec, time.Now())
	}
}

// Wait blocks until every delivery started so far has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close stops accepting records, waits for in-flight deliveries and closes
// any poster that holds resources.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()

	var err error
	for _, p := range q.posters {
		c, ok := p.(interface{ Close() error })
		if !ok {
			continue
		}
		if e := c.Close(); e != nil {
			log.Error().Err(e).Str("sink", p.Name()).Msg("Error closing delivery sink")
			err = e
		}
	}
	return err
}

func (q *Queue) deliver(p Poster, rec models.TranscriptRecord, start time.Time) {
	defer q.wg.Done()

	err := q.post(p, rec)

	q.metrics.RecordDeliveryEnd(p.Name(), err, time.Since(start).Seconds())
	if err != nil {
		log.Warn().
			Err(err).
			Str("sink", p.Name()).
			Str("room", rec.Room).
			Str("type", rec.Type).
			Int64("ts", rec.TS).
			Msg("Transcript delivery failed, dropped")
		return
	}

	log.Debug().
		Str("sink", p.Name()).
		Str("room", rec.Room).
		Str("type", rec.Type).
		Int64("ts", rec.TS).
		Dur("latency", time.Since(start)).
		Msg("Transcript delivered")
}

// post runs one attempt and turns a poster panic into an error.
func (q *Queue) post(p Poster, rec models.TranscriptRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panicked: %v", r)
		}
	}()

	// Not tied to the session: teardown lets in-flight posts finish.
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	return p.Post(ctx, rec)
}
