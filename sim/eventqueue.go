package sim

import (
	"container/heap"
	"sync"
)

// DefaultHistoryCap bounds how many popped events the queue remembers for
// inspection and replay. Set HistoryCap to 0 for an unbounded history.
const DefaultHistoryCap = 10000

// An EventQueue is a priority queue of events ordered by (time, insertion
// sequence). Events with equal times pop in the order they were pushed, so
// the total order is deterministic.
type EventQueue struct {
	sync.Mutex

	events  eventHeap
	nextSeq uint64

	history    []*Event
	HistoryCap int
}

// NewEventQueue creates and returns a new EventQueue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{HistoryCap: DefaultHistoryCap}
	heap.Init(&q.events)

	return q
}

// Push adds an event to the queue.
func (q *EventQueue) Push(evt *Event) {
	q.Lock()
	defer q.Unlock()

	q.nextSeq++
	heap.Push(&q.events, queuedEvent{evt: evt, seq: q.nextSeq})
}

// Pop removes and returns the earliest event. It returns nil when the queue
// is empty; an empty queue is a normal condition, not an error. Popped
// events are retained in the history up to HistoryCap.
func (q *EventQueue) Pop() *Event {
	q.Lock()
	defer q.Unlock()

	if q.events.Len() == 0 {
		return nil
	}

	evt := heap.Pop(&q.events).(queuedEvent).evt

	q.history = append(q.history, evt)
	if q.HistoryCap > 0 && len(q.history) > q.HistoryCap {
		q.history = q.history[len(q.history)-q.HistoryCap:]
	}

	return evt
}

// Peek returns the earliest event without removing it, or nil when the queue
// is empty.
func (q *EventQueue) Peek() *Event {
	q.Lock()
	defer q.Unlock()

	if q.events.Len() == 0 {
		return nil
	}

	return q.events[0].evt
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int {
	q.Lock()
	defer q.Unlock()

	return q.events.Len()
}

// Snapshot returns the pending events in pop order without disturbing the
// queue.
func (q *EventQueue) Snapshot() []*Event {
	q.Lock()
	defer q.Unlock()

	c := make(eventHeap, len(q.events))
	copy(c, q.events)

	out := make([]*Event, 0, len(c))
	for c.Len() > 0 {
		out = append(out, heap.Pop(&c).(queuedEvent).evt)
	}

	return out
}

// History returns the events popped so far, oldest first.
func (q *EventQueue) History() []*Event {
	q.Lock()
	defer q.Unlock()

	c := make([]*Event, len(q.history))
	copy(c, q.history)

	return c
}

type queuedEvent struct {
	evt *Event
	seq uint64
}

type eventHeap []queuedEvent

func (h eventHeap) Len() int {
	return len(h)
}

// Less orders by time first and by insertion sequence for equal times.
func (h eventHeap) Less(i, j int) bool {
	if h[i].evt.Time != h[j].evt.Time {
		return h[i].evt.Time < h[j].evt.Time
	}

	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(queuedEvent))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	qe := old[n-1]
	*h = old[0 : n-1]

	return qe
}
