// Package hlim implements the High-Level IR: the typed dataflow
// circuit graph described in spec §3/§4.3/§4.4. Nodes carry indexed
// input ports (single driver each) and output ports (multi-sink),
// grouped hierarchically under NodeGroups and owned exclusively by a
// Circuit arena.
package hlim

import "fmt"

// Interp is the value interpretation carried by a ConnectionType.
type Interp int

const (
	Bool Interp = iota
	Raw
	Unsigned
	Signed2s
	OneHot
	Float
)

func (i Interp) String() string {
	switch i {
	case Bool:
		return "Bool"
	case Raw:
		return "Raw"
	case Unsigned:
		return "Unsigned"
	case Signed2s:
		return "Signed2s"
	case OneHot:
		return "OneHot"
	case Float:
		return "Float"
	default:
		return "Unknown"
	}
}

// ConnectionType is the type carried by a wire: spec §3. Equality is
// structural, so two zero-value-initialized ConnectionTypes with the
// same fields compare equal with ==.
type ConnectionType struct {
	Interp Interp
	Width  uint32
}

func (c ConnectionType) String() string {
	return fmt.Sprintf("%s(%d)", c.Interp, c.Width)
}

// OutputKind classifies how an output's value is produced: spec §3.
type OutputKind int

const (
	Immediate OutputKind = iota
	Latched
	Constant
)

func (k OutputKind) String() string {
	switch k {
	case Immediate:
		return "Immediate"
	case Latched:
		return "Latched"
	case Constant:
		return "Constant"
	default:
		return "Unknown"
	}
}

// NodePort references a specific output port of a specific node, or
// the specific input port a sink back-reference names. A nil Node
// denotes "no driver" (spec §4.3 GetDriver).
type NodePort struct {
	Node *Node
	Port int
}

// IsNull reports whether this NodePort denotes "unconnected".
func (p NodePort) IsNull() bool { return p.Node == nil }

// Equal gives structural NodePort equality, per spec §4.3.
func (p NodePort) Equal(o NodePort) bool { return p.Node == o.Node && p.Port == o.Port }

func (p NodePort) String() string {
	if p.IsNull() {
		return "<null>"
	}
	return fmt.Sprintf("%s#%d.%d", p.Node.Kind, p.Node.ID, p.Port)
}
