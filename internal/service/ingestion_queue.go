package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/internal/privacy"
)

// ErrQueueStopped is returned by Enqueue after Stop
var ErrQueueStopped = errors.New("ingestion queue stopped")

// ItemForwarder handles one queued item
type ItemForwarder interface {
	Forward(ctx context.Context, item models.QueueItem) models.ForwardResult
}

// IngestionQueue is an unbounded FIFO with a single consumer. The drain
// goroutine is started on demand and exits once the queue is empty; the
// draining flag guarantees at most one forward in flight.
type IngestionQueue struct {
	forwarder ItemForwarder
	delay     time.Duration
	logger    *logrus.Logger
	metrics   *metrics.Registry
	masker    privacy.Masker

	mu       sync.Mutex
	items    []models.QueueItem
	draining bool
	stopped  bool
	idle     chan struct{}

	// forwardCtx outlives Stop until the shutdown deadline
	forwardCtx    context.Context
	cancelForward context.CancelFunc
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

func NewIngestionQueue(forwarder ItemForwarder, delay time.Duration, logger *logrus.Logger, registry *metrics.Registry, masker privacy.Masker) *IngestionQueue {
	if delay < 0 {
		delay = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &IngestionQueue{
		forwarder:     forwarder,
		delay:         delay,
		logger:        logger,
		metrics:       registry,
		masker:        masker,
		idle:          idle,
		forwardCtx:    ctx,
		cancelForward: cancel,
		stopCh:        make(chan struct{}),
	}
}

// Enqueue appends item and starts the drain loop if it is not running
func (q *IngestionQueue) Enqueue(item models.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}

	q.items = append(q.items, item)
	depth := len(q.items)
	q.metrics.IncrementCounter(metrics.ItemsEnqueued, nil, "Receipts accepted into the queue")
	q.metrics.SetGauge(metrics.QueueDepth, float64(depth), nil, "Receipts waiting to be forwarded")

	q.logger.WithFields(itemFields(q.masker, item)).WithField(LogFieldQueueDepth, depth).Info("Receipt queued")

	if !q.draining {
		q.draining = true
		q.idle = make(chan struct{})
		q.wg.Add(1)
		go q.drain()
	}
	return nil
}

func (q *IngestionQueue) drain() {
	defer q.wg.Done()

	for {
		item, ok := q.next()
		if !ok {
			return
		}

		waited := time.Since(item.EnqueuedAt)
		q.logger.WithField(LogFieldItemID, item.ID).WithField(LogFieldWaited, waited.Milliseconds()).
			Debug("Starting forward")
		q.forwarder.Forward(q.forwardCtx, item)

		// Pace the downstream service regardless of the outcome
		if !q.pause() {
			q.finish()
			return
		}
	}
}

// next pops the head item, or marks the drain loop finished when empty
func (q *IngestionQueue) next() (models.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.stopped {
		q.finishLocked()
		return models.QueueItem{}, false
	}

	item := q.items[0]
	q.items[0] = models.QueueItem{}
	q.items = q.items[1:]
	q.metrics.SetGauge(metrics.QueueDepth, float64(len(q.items)), nil, "Receipts waiting to be forwarded")
	return item, true
}

func (q *IngestionQueue) pause() bool {
	if q.delay == 0 {
		select {
		case <-q.stopCh:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(q.delay)
	defer timer.Stop()

	select {
	case <-q.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (q *IngestionQueue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finishLocked()
}

func (q *IngestionQueue) finishLocked() {
	if !q.draining {
		return
	}
	q.draining = false
	close(q.idle)
}

// Len returns the number of items waiting, excluding the one in flight
func (q *IngestionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Draining reports whether the drain loop is active
func (q *IngestionQueue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// WaitIdle blocks until the queue is empty and the drain loop has exited.
// It returns false if timeout elapses first.
func (q *IngestionQueue) WaitIdle(timeout time.Duration) bool {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// Stop rejects new items and waits for the in-flight forward. If ctx ends
// first the forward is cancelled. It returns how many items were left
// unprocessed.
func (q *IngestionQueue) Stop(ctx context.Context) int {
	q.mu.Lock()
	if q.stopped {
		left := len(q.items)
		q.mu.Unlock()
		return left
	}
	q.stopped = true
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.logger.Warn("Shutdown deadline reached, cancelling in-flight forward")
		q.cancelForward()
		<-done
	}
	q.cancelForward()

	left := q.Len()
	if left > 0 {
		q.logger.WithField(LogFieldCount, left).Warn("Queued receipts dropped at shutdown")
	}
	return left
}
