package sim

import (
	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/hlim"
)

// SigHandle is a runtime handle for reading, and sometimes writing, a
// single port's simulated value (spec §4.6 "SigHandle contract").
type SigHandle struct {
	sim      *Simulator
	offset   int
	width    int
	writable bool
	name     string
}

// SigHandle constructs a handle for np. Handles created from an
// InputPin (or a bidirectional Pin) are writable: a write there
// overrides the simulation-only value flowing into the rest of the
// circuit from that pin. Handles created from anything else —
// including an output-side Pin, or any ordinary node output — are
// read-only.
func (s *Simulator) SigHandle(np hlim.NodePort) (*SigHandle, error) {
	off, err := s.prog.OffsetOf(np)
	if err != nil {
		return nil, err
	}
	width := int(np.Node.Outputs[np.Port].Type.Width)
	writable := false
	if np.Node.Kind == hlim.KindPin {
		pd := np.Node.Data.(*hlim.PinData)
		writable = pd.Kind == hlim.PinInput || pd.Kind == hlim.PinBidir
	}
	return &SigHandle{sim: s, offset: off, width: width, writable: writable, name: np.Node.Name}, nil
}

// Read returns the handle's current simulated value.
func (h *SigHandle) Read() *bitvec.State {
	return h.sim.state.Extract(h.offset, h.width)
}

// Write overrides the handle's value, effective at the next
// reevaluation within the current instant (spec §4.6). Returns
// SigHandleError::NotWritable (as a RuntimeError) if the handle was
// not created from an input-capable pin.
func (h *SigHandle) Write(v *bitvec.State) error {
	if !h.writable {
		return herr.New(herr.RuntimeError, "SigHandle %q is not writable (not an input pin)", h.name)
	}
	bitvec.CopyRange(h.sim.state, h.offset, v, 0, h.width)
	for i := 0; i < h.width; i++ {
		h.sim.state.Set(bitvec.Defined, h.offset+i, v.Get(bitvec.Defined, i))
	}
	h.sim.writeEpoch++
	return nil
}
