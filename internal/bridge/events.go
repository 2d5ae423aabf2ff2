package bridge

import (
	"sync"

	"github.com/openhwp/navibridge/internal/navien"
)

// defaultQueueSize bounds the update queue. A full queue means the
// dispatch goroutine has fallen far behind; dropping one update is
// acceptable because every status report is a complete snapshot and a
// fresher one follows within the poll interval.
const defaultQueueSize = 256

// eventKind discriminates the update variants.
type eventKind int

const (
	eventStatus eventKind = iota
	eventFeature
)

// update is one push delivery marshalled off a transport goroutine.
// Exactly one payload field is set, selected by kind.
type update struct {
	kind    eventKind
	mac     string
	status  navien.DeviceStatus
	feature navien.DeviceFeature
}

// eventQueue transfers push updates from the transport's network
// goroutines to the single dispatch goroutine that owns DeviceState.
//
// Enqueue never blocks the caller: when the queue is full the update is
// dropped with a logged warning. One channel consumed by one goroutine
// preserves FIFO order of updates per device.
type eventQueue struct {
	ch     chan update
	logger Logger

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// newEventQueue creates the queue and starts the dispatch goroutine,
// which invokes apply for every update until close is called.
func newEventQueue(size int, logger Logger, apply func(update)) *eventQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	q := &eventQueue{
		ch:     make(chan update, size),
		logger: logger,
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for ev := range q.ch {
			q.dispatch(ev, apply)
		}
	}()

	return q
}

// dispatch runs apply under panic recovery so one bad update can never
// kill the dispatch goroutine.
func (q *eventQueue) dispatch(ev update, apply func(update)) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("update dispatch panic recovered",
				"device", ev.mac,
				"panic", r,
			)
		}
	}()
	apply(ev)
}

// enqueue hands one update to the dispatch goroutine. It returns
// immediately; a full or closed queue drops the update.
func (q *eventQueue) enqueue(ev update) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return
	}

	select {
	case q.ch <- ev:
	default:
		q.logger.Warn("update queue full, dropping update",
			"device", ev.mac,
		)
	}
}

// close stops intake, drains the queue, and waits for the dispatch
// goroutine to exit. Safe to call once.
func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
}
