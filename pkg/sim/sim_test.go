package sim

import (
	"testing"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/hlim"
	"github.com/oisee/hlim/pkg/program"
)

func mustConst(t *testing.T, c *hlim.Circuit, width int, v uint64, interp hlim.Interp) *hlim.Node {
	t.Helper()
	s := bitvec.New(width)
	s.InsertWide(bitvec.Value, 0, width, v)
	for i := 0; i < width; i++ {
		s.Set(bitvec.Defined, i, true)
	}
	n, err := c.NewConstant(s, hlim.ConnectionType{Interp: interp, Width: uint32(width)})
	if err != nil {
		t.Fatalf("NewConstant: %v", err)
	}
	return n
}

func mustConnect(t *testing.T, n *hlim.Node, i int, src hlim.NodePort) {
	t.Helper()
	if err := n.ConnectInput(i, src); err != nil {
		t.Fatalf("ConnectInput(%d): %v", i, err)
	}
}

// TestRippleCounter is spec §8 scenario E1: a 4-bit register q = q+1,
// reset 0, advanced across 5 rising edges.
func TestRippleCounter(t *testing.T) {
	c := hlim.NewCircuit("top")
	ck := c.CreateClock(clock.NewRootClock("clk", clock.R(100_000_000, 1), clock.Rising))

	reg := c.NewRegister(ck)
	reg.Outputs[0].Type = hlim.ConnectionType{Interp: hlim.Unsigned, Width: 4}

	one := mustConst(t, c, 4, 1, hlim.Unsigned)
	add := c.NewArithmetic(hlim.OpAdd)
	mustConnect(t, add, 0, hlim.NodePort{Node: reg, Port: 0})
	mustConnect(t, add, 1, hlim.NodePort{Node: one, Port: 0})
	mustConnect(t, reg, hlim.RegDataInput, hlim.NodePort{Node: add, Port: 0})

	zero := mustConst(t, c, 4, 0, hlim.Unsigned)
	mustConnect(t, reg, hlim.RegResetValueInput, hlim.NodePort{Node: zero, Port: 0})

	s, err := CompileProgram(c, program.BuildOptions{})
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	if err := s.PowerOn(); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}

	mn := s.Program().MappedNodeFor(reg)
	readQ := func() uint64 {
		return s.State().ExtractWide(bitvec.Value, mn.Wiring.OutputOffsets[0], 4)
	}

	if got := readQ(); got != 0 {
		t.Fatalf("after power-on, q = %d, want 0", got)
	}

	want := []uint64{1, 2, 3, 4, 5}
	for i, w := range want {
		ok, err := s.AdvanceEvent()
		if err != nil {
			t.Fatalf("AdvanceEvent #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("AdvanceEvent #%d: expected an event", i)
		}
		if got := readQ(); got != w {
			t.Fatalf("after edge #%d, q = %d, want %d", i+1, got, w)
		}
	}
}

// TestTwoProcessRendezvous is spec §8 scenario E2: process A writes
// pin a=3 at t=10ns, process B (registered after A) reads pin b=a+1
// at the same instant; B should observe A's write.
func TestTwoProcessRendezvous(t *testing.T) {
	c := hlim.NewCircuit("top")
	pinA := c.NewPin(hlim.PinInput, "a", hlim.ConnectionType{Interp: hlim.Unsigned, Width: 8})

	one := mustConst(t, c, 8, 1, hlim.Unsigned)
	add := c.NewArithmetic(hlim.OpAdd)
	mustConnect(t, add, 0, hlim.NodePort{Node: pinA, Port: 0})
	mustConnect(t, add, 1, hlim.NodePort{Node: one, Port: 0})

	s, err := CompileProgram(c, program.BuildOptions{})
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	if err := s.PowerOn(); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}

	hA, err := s.SigHandle(hlim.NodePort{Node: pinA, Port: 0})
	if err != nil {
		t.Fatalf("SigHandle(a): %v", err)
	}
	hB, err := s.SigHandle(hlim.NodePort{Node: add, Port: 0})
	if err != nil {
		t.Fatalf("SigHandle(b): %v", err)
	}

	var observed uint64
	var observedDefined bool

	s.AddSimulationProcess(func(p *Proc) error {
		p.WaitFor(Time(10_000)) // 10ns in picoseconds
		v := bitvec.New(8)
		v.InsertWide(bitvec.Value, 0, 8, 3)
		for i := 0; i < 8; i++ {
			v.Set(bitvec.Defined, i, true)
		}
		return hA.Write(v)
	})
	s.AddSimulationProcess(func(p *Proc) error {
		p.WaitFor(Time(10_000))
		r := hB.Read()
		observedDefined = r.AllDefined(0, 8)
		observed = r.ExtractWide(bitvec.Value, 0, 8)
		return nil
	})

	if err := s.Advance(Time(10_000)); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if !observedDefined || observed != 4 {
		t.Fatalf("process B observed (%d, defined=%v), want (4, true)", observed, observedDefined)
	}
}

// TestPriorityMux is spec §8 scenario E3: a PriorityConditional with
// default 0xAA and two choices (c0, 0x11), (c1, 0x22); the earliest
// asserted choice wins. Driven from a single simulation process, since
// a SigHandle write only takes effect for the next reevaluate, which
// only the process-resume machinery triggers outside of PowerOn
// (mirrors TestTwoProcessRendezvous's pattern).
func TestPriorityMux(t *testing.T) {
	c := hlim.NewCircuit("top")
	bitType := hlim.ConnectionType{Interp: hlim.Bool, Width: 1}
	byteType := hlim.ConnectionType{Interp: hlim.Unsigned, Width: 8}

	c0 := c.NewPin(hlim.PinInput, "c0", bitType)
	c1 := c.NewPin(hlim.PinInput, "c1", bitType)
	def := mustConst(t, c, 8, 0xAA, hlim.Unsigned)
	v0 := mustConst(t, c, 8, 0x11, hlim.Unsigned)
	v1 := mustConst(t, c, 8, 0x22, hlim.Unsigned)

	pc := c.NewPriorityConditional()
	mustConnect(t, pc, 0, hlim.NodePort{Node: def, Port: 0})
	cond0, val0 := pc.AddChoice()
	mustConnect(t, pc, cond0, hlim.NodePort{Node: c0, Port: 0})
	mustConnect(t, pc, val0, hlim.NodePort{Node: v0, Port: 0})
	cond1, val1 := pc.AddChoice()
	mustConnect(t, pc, cond1, hlim.NodePort{Node: c1, Port: 0})
	mustConnect(t, pc, val1, hlim.NodePort{Node: v1, Port: 0})
	pc.Outputs[0].Type = byteType

	s, err := CompileProgram(c, program.BuildOptions{RequiredOutputs: []hlim.NodePort{{Node: pc, Port: 0}}})
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	if err := s.PowerOn(); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}

	type sample struct{ c0, c1, want uint64 }
	samples := []sample{
		{c0: 0, c1: 1, want: 0x22},
		{c0: 1, c1: 1, want: 0x11},
		{c0: 0, c1: 0, want: 0xAA},
	}
	results := make([]uint64, len(samples))

	s.AddSimulationProcess(func(p *Proc) error {
		hC0, err := s.SigHandle(hlim.NodePort{Node: c0, Port: 0})
		if err != nil {
			return err
		}
		hC1, err := s.SigHandle(hlim.NodePort{Node: c1, Port: 0})
		if err != nil {
			return err
		}
		hY, err := s.SigHandle(hlim.NodePort{Node: pc, Port: 0})
		if err != nil {
			return err
		}
		setBit := func(h *SigHandle, v uint64) error {
			bv := bitvec.New(1)
			bv.InsertWide(bitvec.Value, 0, 1, v)
			bv.Set(bitvec.Defined, 0, true)
			return h.Write(bv)
		}
		for i, sm := range samples {
			if err := setBit(hC0, sm.c0); err != nil {
				return err
			}
			if err := setBit(hC1, sm.c1); err != nil {
				return err
			}
			p.WaitFor(0)
			results[i] = hY.Read().ExtractWide(bitvec.Value, 0, 8)
		}
		return nil
	})

	if err := s.Advance(0); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	for i, sm := range samples {
		if results[i] != sm.want {
			t.Fatalf("sample %d (c0=%d,c1=%d): y = %#x, want %#x", i, sm.c0, sm.c1, results[i], sm.want)
		}
	}
}

// TestRewireConcat is spec §8 scenario E4: two 4-bit inputs a=0b0011,
// b=0b1100 concatenated as [Input{1,0,4}, Input{0,0,4}] giving the
// 8-bit value 0b11000011.
func TestRewireConcat(t *testing.T) {
	c := hlim.NewCircuit("top")
	nibble := hlim.ConnectionType{Interp: hlim.Unsigned, Width: 4}
	a := c.NewPin(hlim.PinInput, "a", nibble)
	b := c.NewPin(hlim.PinInput, "b", nibble)

	ranges := []hlim.RewireRange{
		{Kind: hlim.RewireFromInput, Input: 1, Offset: 0, Width: 4},
		{Kind: hlim.RewireFromInput, Input: 0, Offset: 0, Width: 4},
	}
	rw, err := c.NewRewire(ranges, hlim.ConnectionType{Interp: hlim.Unsigned, Width: 8})
	if err != nil {
		t.Fatalf("NewRewire: %v", err)
	}
	mustConnect(t, rw, 0, hlim.NodePort{Node: a, Port: 0})
	mustConnect(t, rw, 1, hlim.NodePort{Node: b, Port: 0})

	s, err := CompileProgram(c, program.BuildOptions{RequiredOutputs: []hlim.NodePort{{Node: rw, Port: 0}}})
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	if err := s.PowerOn(); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}

	var result uint64
	s.AddSimulationProcess(func(p *Proc) error {
		hA, err := s.SigHandle(hlim.NodePort{Node: a, Port: 0})
		if err != nil {
			return err
		}
		hB, err := s.SigHandle(hlim.NodePort{Node: b, Port: 0})
		if err != nil {
			return err
		}
		hY, err := s.SigHandle(hlim.NodePort{Node: rw, Port: 0})
		if err != nil {
			return err
		}
		setNibble := func(h *SigHandle, v uint64) error {
			bv := bitvec.New(4)
			bv.InsertWide(bitvec.Value, 0, 4, v)
			for i := 0; i < 4; i++ {
				bv.Set(bitvec.Defined, i, true)
			}
			return h.Write(bv)
		}
		if err := setNibble(hA, 0b0011); err != nil {
			return err
		}
		if err := setNibble(hB, 0b1100); err != nil {
			return err
		}
		p.WaitFor(0)
		result = hY.Read().ExtractWide(bitvec.Value, 0, 8)
		return nil
	})

	if err := s.Advance(0); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if result != 0b11000011 {
		t.Fatalf("y = %#b, want 0b11000011", result)
	}
}

func TestSigHandleWriteOnNonInputFails(t *testing.T) {
	c := hlim.NewCircuit("top")
	out := c.NewPin(hlim.PinOutput, "y", hlim.ConnectionType{Interp: hlim.Unsigned, Width: 1})
	zero := mustConst(t, c, 1, 0, hlim.Unsigned)
	mustConnect(t, out, 0, hlim.NodePort{Node: zero, Port: 0})

	s, err := CompileProgram(c, program.BuildOptions{})
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	h, err := s.SigHandle(hlim.NodePort{Node: zero, Port: 0})
	if err != nil {
		t.Fatalf("SigHandle: %v", err)
	}
	if err := h.Write(bitvec.New(1)); err == nil {
		t.Fatal("expected NotWritable error writing to a Constant output")
	}
}
