// Package sim implements the reference cycle-accurate simulator of
// spec §4.6: power-on, an event queue over clock edges and process
// wake-ups, and the per-tick register-advance / reevaluate / resume /
// re-reevaluate ordering. Grounded on the teacher's pkg/mirvm.VM shape
// (Config, Statistics, a driving loop) generalized from "step one MIR
// instruction" to "settle one simulation instant".
package sim

import (
	"container/heap"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/hlim"
	"github.com/oisee/hlim/pkg/program"
)

// Time is simulation time in picoseconds since power-on. Picosecond
// resolution keeps common clock periods (ns-to-us range) exact
// without pulling in arbitrary-precision rationals for the event
// queue itself — clock *frequency* arithmetic still uses
// clock.Rational (pkg/clock), only the scheduler's own clock ticks in
// a fixed-point unit.
type Time int64

const picosPerSecond = 1_000_000_000_000

// Config mirrors the teacher's mirvm.Config shape: a small bag of
// runtime knobs, zero value usable as-is.
type Config struct {
	// MaxFixpointIterations caps the wake/reevaluate loop within one
	// instant (spec §4.6 "runaway loop"). Zero means the default (64).
	MaxFixpointIterations int
}

func (c Config) maxFixpoint() int {
	if c.MaxFixpointIterations <= 0 {
		return 64
	}
	return c.MaxFixpointIterations
}

// Statistics mirrors the teacher's mirvm.Statistics shape: counters a
// caller can inspect after a run, not used to drive behavior.
type Statistics struct {
	Reevaluations  int
	ClockEdges     int
	ProcessResumes int
	FixpointRounds int
}

// Callbacks receives simulation-time notifications (spec §4.6
// Annotations, §7 on_assert dispatch).
type Callbacks interface {
	OnAssert(t Time, n *hlim.Node, message string)
	AnnotationStart(t Time, id, desc string)
	AnnotationEnd(t Time, id string)
}

// NopCallbacks implements Callbacks with no-ops, the default when a
// caller doesn't supply one.
type NopCallbacks struct{}

func (NopCallbacks) OnAssert(Time, *hlim.Node, string) {}
func (NopCallbacks) AnnotationStart(Time, string, string) {}
func (NopCallbacks) AnnotationEnd(Time, string) {}

// Simulator runs a compiled Program: spec §4.6/§5 single-threaded
// cooperative scheduling, owning the sole mutable view of DataState.
type Simulator struct {
	Config    Config
	Stats     Statistics
	Callbacks Callbacks

	prog  *program.Program
	state *bitvec.State

	now     Time
	events  eventQueue
	periods map[clock.Clock]Time

	processes []*procHandle
	wakeSeq   int

	writeEpoch int // bumped on every SigHandle.Write, used to detect dirtying resumes

	aborted bool
	abortCh chan struct{}
}

// CompileProgram lowers circuit into a Program (pkg/program.Build) and
// prepares a fresh Simulator over it; no state is touched until
// PowerOn.
func CompileProgram(c *hlim.Circuit, opts program.BuildOptions) (*Simulator, error) {
	p, err := program.Build(c, opts)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		prog:      p,
		state:     bitvec.New(p.FullStateWidth),
		periods:   make(map[clock.Clock]Time),
		Callbacks: NopCallbacks{},
		abortCh:   make(chan struct{}),
	}
	for _, cd := range p.ClockDomains {
		period, err := periodOf(cd.Clock)
		if err != nil {
			// Gated / signal-driven clocks have no fixed period
			// (spec §4.2 UnknownFrequency); they are never
			// auto-scheduled and must be driven by whatever
			// external process asserts their gating signal.
			continue
		}
		s.periods[cd.Clock] = period
		heap.Push(&s.events, &event{at: period, kind: eventClockEdge, clock: cd.Clock})
	}
	return s, nil
}

// Program returns the compiled program backing this simulator.
func (s *Simulator) Program() *program.Program { return s.prog }

// State exposes the raw simulated state vector, mainly for tests that
// want to assert on a specific offset directly.
func (s *Simulator) State() *bitvec.State { return s.state }

// Now returns the current simulation time.
func (s *Simulator) Now() Time { return s.now }

func periodOf(ck clock.Clock) (Time, error) {
	freq, err := ck.AbsoluteFrequency()
	if err != nil {
		return 0, err
	}
	if freq.Num == 0 {
		return 0, herr.New(herr.SimError, "clock %q has zero frequency", ck.ClockName())
	}
	// period_ps = picosPerSecond * freq.Den / freq.Num
	periodPs := (picosPerSecond / freq.Num) * freq.Den
	if periodPs <= 0 {
		return 0, herr.New(herr.SimError, "clock %q period rounds to zero at picosecond resolution", ck.ClockName())
	}
	return Time(periodPs), nil
}

// PowerOn applies spec §4.6 power-on: reset every reset-node, then
// settle the combinational network once.
func (s *Simulator) PowerOn() error {
	for _, mn := range s.prog.ResetNodes {
		if err := mn.Node.SimulateReset(s.state, mn.Wiring); err != nil {
			return err
		}
	}
	return s.reevaluate()
}

func (s *Simulator) reevaluate() error {
	for _, block := range s.prog.Blocks {
		for _, mn := range block {
			if err := mn.Node.SimulateEvaluate(s.state, mn.Wiring); err != nil {
				return err
			}
		}
	}
	s.Stats.Reevaluations++
	return nil
}

// Abort requests the currently running advance to return as soon as
// its in-flight step finishes (spec §5 Cancellation); any process
// parked on a suspend point is dropped without resuming.
func (s *Simulator) Abort() {
	if s.aborted {
		return
	}
	s.aborted = true
	close(s.abortCh)
}

// AdvanceEvent pops and processes the single next queued event
// (clock edge or process wake-up), advancing Now() to that event's
// time. Returns false if the queue was empty (nothing to do) or the
// simulator was aborted.
func (s *Simulator) AdvanceEvent() (bool, error) {
	if s.aborted || s.events.Len() == 0 {
		return false, nil
	}
	ev := heap.Pop(&s.events).(*event)
	s.now = ev.at
	return true, s.processInstant(ev)
}

// Advance repeatedly processes events with t <= Now()+Δ, then sets
// Now() to Now()+Δ (spec §4.6 "advance(Δ)").
func (s *Simulator) Advance(delta Time) error {
	target := s.now + delta
	for !s.aborted && s.events.Len() > 0 && s.events[0].at <= target {
		ev := heap.Pop(&s.events).(*event)
		s.now = ev.at
		if err := s.processInstant(ev); err != nil {
			return err
		}
	}
	if !s.aborted {
		s.now = target
	}
	return nil
}

// processInstant runs one event's ordering steps (spec §4.6 items 1-4)
// and any other event already due at the identical timestamp, so that
// simultaneous clock edges and process wakes settle together before
// time moves on.
func (s *Simulator) processInstant(first *event) error {
	t := first.at
	batch := []*event{first}
	for s.events.Len() > 0 && s.events[0].at == t {
		batch = append(batch, heap.Pop(&s.events).(*event))
	}

	// Step 1: register/latch advance for every clock edge due now.
	for _, ev := range batch {
		if ev.kind != eventClockEdge {
			continue
		}
		if err := s.advanceClockDomain(ev.clock); err != nil {
			return err
		}
		s.Stats.ClockEdges++
		if period, ok := s.periods[ev.clock]; ok {
			heap.Push(&s.events, &event{at: t + period, kind: eventClockEdge, clock: ev.clock})
		}
	}

	// Step 2: settle combinatorics once before processes see the tick.
	if err := s.reevaluate(); err != nil {
		return err
	}

	// Step 3/4: resume due processes one at a time, in registration
	// (seq) order, reevaluating immediately after any process that
	// wrote through a SigHandle — so the next process in line, at the
	// same instant, observes the write (spec §4.6: "[w]rites from one
	// process are visible to the next at that instant only after the
	// intervening reevaluation"). A process's own suspend may enqueue
	// a further same-instant wake (e.g. WaitFor(0)); such wakes are
	// drained and processed the same way until none remain.
	var pending []*event
	for _, ev := range batch {
		if ev.kind == eventProcessWake && ev.proc != nil && !ev.proc.dead {
			pending = append(pending, ev)
		}
	}

	rounds := 0
	for len(pending) > 0 {
		ev := pending[0]
		pending = pending[1:]
		if !ev.proc.dead {
			before := s.writeEpoch
			s.driveOnce(ev.proc)
			s.Stats.ProcessResumes++
			if s.writeEpoch != before {
				if err := s.reevaluate(); err != nil {
					return err
				}
				rounds++
				if rounds > s.Config.maxFixpoint() {
					return herr.New(herr.RuntimeError, "runaway fixpoint loop at t=%d: exceeded %d iterations", t, s.Config.maxFixpoint())
				}
			}
		}
		if len(pending) == 0 {
			for s.events.Len() > 0 && s.events[0].at == t && s.events[0].kind == eventProcessWake {
				next := heap.Pop(&s.events).(*event)
				if next.proc != nil && !next.proc.dead {
					pending = append(pending, next)
				}
			}
		}
	}
	s.Stats.FixpointRounds += rounds
	return nil
}

func (s *Simulator) advanceClockDomain(ck clock.Clock) error {
	for _, cd := range s.prog.ClockDomains {
		if cd.Clock != ck {
			continue
		}
		// Each latch advances against its own copy of the pre-edge state
		// and only the bits it changed are written back, so every latch
		// of the domain samples the values from before this edge.
		pre := s.state.Extract(0, s.state.Len())
		for _, l := range cd.Latches {
			scratch := pre.Extract(0, pre.Len())
			if err := l.Mapped.Node.SimulateAdvance(scratch, l.Mapped.Wiring, l.ClockIndex); err != nil {
				return err
			}
			for i := 0; i < scratch.Len(); i++ {
				for _, pl := range []bitvec.Plane{bitvec.Value, bitvec.Defined} {
					if v := scratch.Get(pl, i); v != pre.Get(pl, i) {
						s.state.Set(pl, i, v)
					}
				}
			}
		}
	}
	return nil
}
