// Package errq decouples error detection on worker goroutines from error
// reporting. Any goroutine that catches an error it cannot handle pushes it
// here; a single consumer forwards each item into the event store as an
// error-tagged output line.
package errq

import (
	"fmt"
	"log/slog"

	"github.com/LayerDynamics/runtui/internal/event"
	"github.com/LayerDynamics/runtui/internal/metrics"
)

const defaultCapacity = 64

type item struct {
	context string
	err     error
}

// Queue is a bounded producer/consumer error buffer. Push never blocks:
// when the buffer is full the item is dropped and logged directly, because
// error reporting must not itself create backpressure.
type Queue struct {
	items chan item
	log   *slog.Logger
}

func New(capacity int, log *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{items: make(chan item, capacity), log: log}
}

// Push queues an error for reporting. Safe from any goroutine. A nil error
// is ignored.
func (q *Queue) Push(context string, err error) {
	if err == nil {
		return
	}
	select {
	case q.items <- item{context: context, err: err}:
	default:
		metrics.IncErrorDropped()
		q.log.Warn("error queue full, dropping report", "context", context, "error", err)
	}
}

// Len reports how many items are waiting.
func (q *Queue) Len() int { return len(q.items) }

// Run consumes the queue until stop closes, then drains what is already
// buffered and returns. Each item becomes one error-stream output line.
func (q *Queue) Run(stop <-chan struct{}, store *event.Store) {
	for {
		select {
		case it := <-q.items:
			forward(store, it)
		case <-stop:
			for {
				select {
				case it := <-q.items:
					forward(store, it)
				default:
					return
				}
			}
		}
	}
}

func forward(store *event.Store, it item) {
	store.AddOutput(fmt.Sprintf("Error in %s: %v", it.context, it.err), event.StreamError)
	metrics.IncEvent("output")
	metrics.IncOutputLine(string(event.StreamError))
}
