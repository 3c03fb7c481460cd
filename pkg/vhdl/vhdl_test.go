package vhdl

import (
	"strings"
	"testing"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/hlim"
)

func u8() hlim.ConnectionType { return hlim.ConnectionType{Interp: hlim.Unsigned, Width: 8} }
func bit() hlim.ConnectionType { return hlim.ConnectionType{Interp: hlim.Bool, Width: 1} }

func bitVal(width int, v uint64) *bitvec.State {
	s := bitvec.New(width)
	s.InsertWide(bitvec.Value, 0, width, v)
	for i := 0; i < width; i++ {
		s.Set(bitvec.Defined, i, true)
	}
	return s
}

func mustConnect(t *testing.T, n *hlim.Node, i int, src hlim.NodePort) {
	t.Helper()
	if err := n.ConnectInput(i, src); err != nil {
		t.Fatalf("ConnectInput(%d): %v", i, err)
	}
}

// TestExportRegister builds a single counter register clocked by a
// synchronous-reset clock and checks the generated process has the
// expected clocked shape (spec §8 E6).
func TestExportRegister(t *testing.T) {
	c := hlim.NewCircuit("counter")
	ck := clock.NewRootClock("clk", clock.R(100_000_000, 1), clock.Rising)
	attrs := ck.Attributes()
	attrs.ResetType = clock.ResetSynchronous
	c.CreateClock(ck)

	in := c.NewPin(hlim.PinInput, "d_in", u8())
	reg := c.NewRegister(ck)
	reg.Name = "count"
	mustConnect(t, reg, hlim.RegDataInput, hlim.NodePort{Node: in, Port: 0})

	zero, err := c.NewConstant(bitVal(8, 0), u8())
	if err != nil {
		t.Fatalf("NewConstant: %v", err)
	}
	mustConnect(t, reg, hlim.RegResetValueInput, hlim.NodePort{Node: zero, Port: 0})

	out := c.NewPin(hlim.PinOutput, "q", u8())
	mustConnect(t, out, 0, hlim.NodePort{Node: reg, Port: 0})

	files, err := Export(c, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	body, ok := files["counter.vhd"]
	if !ok {
		t.Fatalf("expected counter.vhd in output, got %v", keysOf(files))
	}
	if !strings.Contains(body, "entity counter is") {
		t.Fatalf("missing entity header:\n%s", body)
	}
	if !strings.Contains(body, "rising_edge(clk)") {
		t.Fatalf("expected a rising_edge(clk) process:\n%s", body)
	}
	if !strings.Contains(body, "q <= count;") && !strings.Contains(body, "q <=") {
		t.Fatalf("expected q driven from the register:\n%s", body)
	}
	if !strings.Contains(body, "count <= d_in;") {
		t.Fatalf("expected the register to latch its data input:\n%s", body)
	}
}

// TestExportRegisterResetEnableElsif checks a register with both a
// synchronous reset and an enable renders its reset/enable check as a
// single if/elsif chain (spec §8 E6), not a nested if/else-if.
func TestExportRegisterResetEnableElsif(t *testing.T) {
	c := hlim.NewCircuit("gated")
	ck := clock.NewRootClock("clk", clock.R(100_000_000, 1), clock.Rising)
	attrs := ck.Attributes()
	attrs.ResetType = clock.ResetSynchronous
	c.CreateClock(ck)

	in := c.NewPin(hlim.PinInput, "d_in", u8())
	en := c.NewPin(hlim.PinInput, "en", bit())
	reg := c.NewRegister(ck)
	reg.Name = "count"
	mustConnect(t, reg, hlim.RegDataInput, hlim.NodePort{Node: in, Port: 0})
	mustConnect(t, reg, hlim.RegEnableInput, hlim.NodePort{Node: en, Port: 0})

	zero, err := c.NewConstant(bitVal(8, 0), u8())
	if err != nil {
		t.Fatalf("NewConstant: %v", err)
	}
	mustConnect(t, reg, hlim.RegResetValueInput, hlim.NodePort{Node: zero, Port: 0})

	out := c.NewPin(hlim.PinOutput, "q", u8())
	mustConnect(t, out, 0, hlim.NodePort{Node: reg, Port: 0})

	files, err := Export(c, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	body, ok := files["gated.vhd"]
	if !ok {
		t.Fatalf("expected gated.vhd in output, got %v", keysOf(files))
	}
	if !strings.Contains(body, "elsif en = '1' then") {
		t.Fatalf("expected a single if/elsif reset-enable chain:\n%s", body)
	}
	if strings.Contains(body, "else\n") {
		t.Fatalf("did not expect a nested else branch for the enable check:\n%s", body)
	}
}

// TestExportMultiplexerCascade checks the mux renders as a to_integer
// when/else cascade.
func TestExportMultiplexerCascade(t *testing.T) {
	c := hlim.NewCircuit("picker")
	sel := c.NewPin(hlim.PinInput, "sel", u8())
	a := c.NewPin(hlim.PinInput, "a", u8())
	b := c.NewPin(hlim.PinInput, "b", u8())

	mux := c.NewMultiplexer(2)
	mustConnect(t, mux, 0, hlim.NodePort{Node: sel, Port: 0})
	mustConnect(t, mux, 1, hlim.NodePort{Node: a, Port: 0})
	mustConnect(t, mux, 2, hlim.NodePort{Node: b, Port: 0})

	out := c.NewPin(hlim.PinOutput, "y", u8())
	mustConnect(t, out, 0, hlim.NodePort{Node: mux, Port: 0})

	files, err := Export(c, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	body := files["picker.vhd"]
	if !strings.Contains(body, "when to_integer(sel) = 0") {
		t.Fatalf("expected a to_integer(sel) cascade:\n%s", body)
	}
	if !strings.Contains(body, "else") {
		t.Fatalf("expected an else chain:\n%s", body)
	}
}

// TestExportRewireConcat checks a Rewire node concatenates its ranges
// with & (spec §8 E4 shape, VHDL side).
func TestExportRewireConcat(t *testing.T) {
	c := hlim.NewCircuit("splice")
	src := c.NewPin(hlim.PinInput, "src", u8())
	ranges := []hlim.RewireRange{
		{Kind: hlim.RewireFromInput, Input: 0, Offset: 4, Width: 4},
		{Kind: hlim.RewireFromInput, Input: 0, Offset: 0, Width: 4},
	}
	rw, err := c.NewRewire(ranges, u8())
	if err != nil {
		t.Fatalf("NewRewire: %v", err)
	}
	mustConnect(t, rw, 0, hlim.NodePort{Node: src, Port: 0})

	out := c.NewPin(hlim.PinOutput, "y", u8())
	mustConnect(t, out, 0, hlim.NodePort{Node: rw, Port: 0})

	files, err := Export(c, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	body := files["splice.vhd"]
	if !strings.Contains(body, "&") {
		t.Fatalf("expected a concatenated rewire expression:\n%s", body)
	}
}

// TestExportPriorityConditional checks the cascaded-choice form
// renders as a single conditional signal assignment.
func TestExportPriorityConditional(t *testing.T) {
	c := hlim.NewCircuit("prio")
	cond0 := c.NewPin(hlim.PinInput, "c0", bit())
	val0 := c.NewPin(hlim.PinInput, "v0", u8())
	def, err := c.NewConstant(bitVal(8, 0), u8())
	if err != nil {
		t.Fatalf("NewConstant: %v", err)
	}

	pc := c.NewPriorityConditional()
	mustConnect(t, pc, 0, hlim.NodePort{Node: def, Port: 0})
	condIdx, valIdx := pc.AddChoice()
	mustConnect(t, pc, condIdx, hlim.NodePort{Node: cond0, Port: 0})
	mustConnect(t, pc, valIdx, hlim.NodePort{Node: val0, Port: 0})

	out := c.NewPin(hlim.PinOutput, "y", u8())
	mustConnect(t, out, 0, hlim.NodePort{Node: pc, Port: 0})

	files, err := Export(c, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	body := files["prio.vhd"]
	if !strings.Contains(body, "when c0 = '1' else") {
		t.Fatalf("expected a cascaded conditional signal assignment:\n%s", body)
	}
}

func keysOf(m map[string]string) []string {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}
