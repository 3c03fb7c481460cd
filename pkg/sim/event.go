package sim

import "github.com/oisee/hlim/pkg/clock"

type eventKind int

const (
	eventClockEdge eventKind = iota
	eventProcessWake
)

// event is one entry of the priority queue over (simulation_time,
// clock, edge) / process wake-ups (spec §4.6 Event loop).
type event struct {
	at    Time
	kind  eventKind
	clock clock.Clock // set when kind == eventClockEdge or eventProcessWake via WaitClock
	proc  *procHandle // set when kind == eventProcessWake
	seq   int         // registration-order tie-break for simultaneous process wakes
}

// eventQueue is a container/heap.Interface min-heap ordered by time,
// then by registration sequence so that, per spec §4.6, "resumption
// order is the order in which [processes] registered their wake-up"
// for events landing at the identical instant.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) {
	*q = append(*q, x.(*event))
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
