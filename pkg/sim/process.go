package sim

import (
	"container/heap"

	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/herr"
)

// ProcessFunc is a simulation process body (spec §4.6 "Simulation
// processes"). It runs on its own goroutine but, by construction, is
// never runnable concurrently with the Simulator's driving goroutine
// or with any other process — channel handoff in Proc's Wait* methods
// enforces the single-threaded cooperative model of spec §5. This is
// the idiomatic Go rendition of the source's stackless coroutines:
// a goroutine that blocks on a channel at every suspend point reads,
// in practice, exactly like the coroutine the spec describes.
type ProcessFunc func(p *Proc) error

type suspendKind int

const (
	suspendWaitFor suspendKind = iota
	suspendWaitUntil
	suspendWaitClock
)

type suspendReq struct {
	kind  suspendKind
	delta Time
	at    Time
	clock clock.Clock
}

// procHandle is the Simulator-side view of one registered process.
type procHandle struct {
	order   int
	resume  chan struct{}
	suspend chan suspendReq
	done    chan error
	dead    bool // true once its final result has been consumed
}

type abortSignal struct{}

// Proc is the handle a ProcessFunc uses to suspend itself and to
// read/write circuit state via SigHandle (spec §4.6 SigHandle
// contract).
type Proc struct {
	sim *Simulator
	h   *procHandle
}

// Sim returns the simulator this process runs under, for SigHandle
// construction and reads of Now().
func (p *Proc) Sim() *Simulator { return p.sim }

// WaitFor suspends until t_now+delta (spec §4.6 WaitFor). delta == 0
// still yields once, giving other processes scheduled at this same
// instant a chance to run first.
func (p *Proc) WaitFor(delta Time) {
	p.suspendAndWait(suspendReq{kind: suspendWaitFor, delta: delta})
}

// WaitUntil suspends until absolute time t (spec §4.6 WaitUntil).
func (p *Proc) WaitUntil(t Time) {
	p.suspendAndWait(suspendReq{kind: suspendWaitUntil, at: t})
}

// WaitClock suspends until one simulation instant after the next
// triggering edge of ck (spec §4.6 WaitClock). Returns an error if ck
// has no fixed period (a gated clock with UnknownFrequency — spec
// §4.2); such a clock can only be observed, never waited on directly.
func (p *Proc) WaitClock(ck clock.Clock) error {
	period, ok := p.sim.periods[ck]
	if !ok {
		return herr.New(herr.SimError, "WaitClock: clock %q has no fixed period (signal-gated)", ck.ClockName())
	}
	next := ((p.sim.now / period) + 1) * period
	p.suspendAndWait(suspendReq{kind: suspendWaitClock, at: next, clock: ck})
	return nil
}

func (p *Proc) suspendAndWait(req suspendReq) {
	if p.sim.aborted {
		panic(abortSignal{})
	}
	p.h.suspend <- req
	select {
	case <-p.h.resume:
	case <-p.sim.abortCh:
		panic(abortSignal{})
	}
}

// AddSimulationProcess registers and immediately starts fn, running
// it up to its first suspend point (or completion) before returning,
// consistent with spec §4.6's "resumption order is the order in
// which they registered their wake-up": a process that runs to its
// first WaitFor/WaitUntil/WaitClock during registration establishes
// its place in that order right away.
func (s *Simulator) AddSimulationProcess(fn ProcessFunc) *Proc {
	h := &procHandle{
		order:   len(s.processes),
		resume:  make(chan struct{}),
		suspend: make(chan suspendReq),
		done:    make(chan error, 1),
	}
	p := &Proc{sim: s, h: h}
	s.processes = append(s.processes, h)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(abortSignal); ok {
					return
				}
				panic(r)
			}
		}()
		<-h.resume
		h.done <- fn(p)
	}()

	s.driveOnce(h)
	return p
}

// driveOnce kicks h to run until its next suspend point or
// completion, scheduling the resulting wake event (if any).
func (s *Simulator) driveOnce(h *procHandle) {
	if h.dead {
		return
	}
	h.resume <- struct{}{}
	select {
	case req := <-h.suspend:
		s.scheduleWake(h, req)
	case err := <-h.done:
		h.dead = true
		if err != nil {
			s.Callbacks.OnAssert(s.now, nil, err.Error())
		}
	}
}

func (s *Simulator) scheduleWake(h *procHandle, req suspendReq) {
	var at Time
	switch req.kind {
	case suspendWaitFor:
		at = s.now + req.delta
	case suspendWaitUntil:
		at = req.at
	case suspendWaitClock:
		at = req.at
	}
	s.wakeSeq++
	ev := &event{at: at, kind: eventProcessWake, proc: h, seq: s.wakeSeq}
	if req.kind == suspendWaitClock {
		ev.clock = req.clock
	}
	heap.Push(&s.events, ev)
}
