package notify

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
)

var (
	ErrOverloaded       = errors.New("notification dispatcher overloaded")
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

const (
	DefaultWorkerCount   = 5
	DefaultQueueCapacity = 100
)

// ProcessFunc runs the async half of publish: persist the notification,
// invalidate the recipient's caches, push to live connections.
type ProcessFunc func(ctx context.Context, event Event) error

// Dispatcher decouples notification producers from processing. Submit
// enqueues onto a bounded per-worker queue and returns immediately; a
// saturated queue rejects with ErrOverloaded rather than growing or
// blocking the producing business transaction.
//
// Events are partitioned by recipient id, so all events for one user land
// on the same worker and keep their dequeue order.
type Dispatcher struct {
	queues  []chan Event
	process ProcessFunc
	logger  *slog.Logger

	wg sync.WaitGroup

	// guards closed against Submit racing a queue close during Drain
	closeMux sync.RWMutex
	closed   bool
}

// NewDispatcher creates a dispatcher with the given worker count and total
// queue capacity, spread evenly across the per-worker queues.
func NewDispatcher(workers, queueCapacity int, process ProcessFunc, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	perWorker := queueCapacity / workers
	if perWorker < 1 {
		perWorker = 1
	}

	d := &Dispatcher{
		queues:  make([]chan Event, workers),
		process: process,
		logger:  logger,
	}
	for i := range d.queues {
		d.queues[i] = make(chan Event, perWorker)
	}
	return d
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	for i := range d.queues {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("dispatcher_started", "workers", len(d.queues))
}

// Submit enqueues an already-validated event for async processing.
func (d *Dispatcher) Submit(event Event) error {
	d.closeMux.RLock()
	defer d.closeMux.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queues[partition(event.UserID, len(d.queues))] <- event:
		return nil
	default:
		return ErrOverloaded
	}
}

// Drain closes the queues and blocks until every queued event has been
// processed. The dispatcher accepts no submissions afterwards.
func (d *Dispatcher) Drain() {
	d.closeMux.Lock()
	if !d.closed {
		d.closed = true
		for _, queue := range d.queues {
			close(queue)
		}
	}
	d.closeMux.Unlock()

	d.wg.Wait()
}

// Shutdown stops the workers after the in-flight queue is drained.
func (d *Dispatcher) Shutdown() {
	d.Drain()
	d.logger.Info("dispatcher_stopped")
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for event := range d.queues[id] {
		// an event already dequeued is processed to completion even
		// during shutdown
		if err := d.process(context.Background(), event); err != nil {
			// async failures never propagate back to the publish caller
			d.logger.Error("event_processing_failed",
				"worker", id,
				"user_id", event.UserID,
				"kind", string(event.Kind),
				"error", err.Error(),
			)
		}
	}
}

func partition(userID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(n))
}
