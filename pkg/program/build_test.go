package program

import (
	"testing"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/clock"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/hlim"
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

// buildRippleCounter wires: reg <- add(reg, one); reset value 0.
func buildRippleCounter(t *testing.T) (*hlim.Circuit, *hlim.Node) {
	t.Helper()
	c := hlim.NewCircuit("top")
	ck := c.CreateClock(clock.NewRootClock("clk", clock.R(100, 1), clock.Rising))

	reg := c.NewRegister(ck)
	reg.Outputs[0].Type = hlim.ConnectionType{Interp: hlim.Unsigned, Width: 4}

	one := mustConst(t, c, 4, 1, hlim.Unsigned)
	add := c.NewArithmetic(hlim.OpAdd)
	mustConnect(t, add, 0, hlim.NodePort{Node: reg, Port: 0})
	mustConnect(t, add, 1, hlim.NodePort{Node: one, Port: 0})

	mustConnect(t, reg, hlim.RegDataInput, hlim.NodePort{Node: add, Port: 0})

	resetVal := mustConst(t, c, 4, 0, hlim.Unsigned)
	mustConnect(t, reg, hlim.RegResetValueInput, hlim.NodePort{Node: resetVal, Port: 0})

	return c, reg
}

func TestBuildSchedulesAndClassifies(t *testing.T) {
	c, reg := buildRippleCounter(t)
	p, err := Build(c, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.ClockDomains) != 1 {
		t.Fatalf("expected 1 clock domain, got %d", len(p.ClockDomains))
	}
	if len(p.ClockDomains[0].Latches) != 1 || p.ClockDomains[0].Latches[0].Mapped.Node != reg {
		t.Fatalf("expected register to be the sole latch in its domain")
	}
	foundReset := false
	for _, rn := range p.ResetNodes {
		if rn.Node == reg {
			foundReset = true
		}
	}
	if !foundReset {
		t.Fatalf("expected register in reset-node list")
	}
	if len(p.Blocks) != 1 {
		t.Fatalf("expected exactly 1 execution block")
	}
	if len(p.Blocks[0]) == 0 {
		t.Fatalf("expected the adder to be scheduled")
	}
	mn := p.MappedNodeFor(reg)
	if mn == nil {
		t.Fatalf("register should have a MappedNode")
	}
}

func TestBuildDetectsCombinationalCycle(t *testing.T) {
	c := hlim.NewCircuit("top")
	a := c.NewArithmetic(hlim.OpAdd)
	b := c.NewArithmetic(hlim.OpAdd)
	a.Outputs[0].Type = hlim.ConnectionType{Interp: hlim.Unsigned, Width: 4}
	b.Outputs[0].Type = hlim.ConnectionType{Interp: hlim.Unsigned, Width: 4}
	one := mustConst(t, c, 4, 1, hlim.Unsigned)

	mustConnect(t, a, 0, hlim.NodePort{Node: b, Port: 0})
	mustConnect(t, a, 1, hlim.NodePort{Node: one, Port: 0})
	mustConnect(t, b, 0, hlim.NodePort{Node: a, Port: 0})
	mustConnect(t, b, 1, hlim.NodePort{Node: one, Port: 0})

	_, err := Build(c, BuildOptions{})
	if err == nil {
		t.Fatal("expected a cycle DesignError")
	}
	if !herr.Is(err, herr.DesignError) {
		t.Fatalf("expected DesignError, got %v", err)
	}
}

func TestBuildReportsUnmarkedCDC(t *testing.T) {
	c := hlim.NewCircuit("top")
	ckA := c.CreateClock(clock.NewRootClock("clkA", clock.R(100, 1), clock.Rising))
	ckB := c.CreateClock(clock.NewRootClock("clkB", clock.R(50, 1), clock.Rising))

	regA := c.NewRegister(ckA)
	regA.Outputs[0].Type = hlim.ConnectionType{Interp: hlim.Unsigned, Width: 4}
	zero := mustConst(t, c, 4, 0, hlim.Unsigned)
	mustConnect(t, regA, hlim.RegResetValueInput, hlim.NodePort{Node: zero, Port: 0})
	mustConnect(t, regA, hlim.RegDataInput, hlim.NodePort{Node: zero, Port: 0})

	regB := c.NewRegister(ckB)
	regB.Outputs[0].Type = hlim.ConnectionType{Interp: hlim.Unsigned, Width: 4}
	mustConnect(t, regB, hlim.RegResetValueInput, hlim.NodePort{Node: zero, Port: 0})
	// regB samples regA's value directly, crossing clkA -> clkB with no CDC node.
	mustConnect(t, regB, hlim.RegDataInput, hlim.NodePort{Node: regA, Port: 0})

	_, err := Build(c, BuildOptions{})
	if err == nil {
		t.Fatal("expected UnmarkedCDC SimError")
	}
	if !herr.Is(err, herr.SimError) {
		t.Fatalf("expected SimError, got %v", err)
	}
}
