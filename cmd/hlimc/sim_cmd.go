package main

import (
	"fmt"
	"strings"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/design"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/literal"
	"github.com/oisee/hlim/pkg/sim"
	"github.com/spf13/cobra"
)

var (
	simCycles int
	simSets   []string
)

var simCmd = &cobra.Command{
	Use:   "sim <design>",
	Short: "power on a design and step its clock, printing outputs each cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := design.Get(args[0])
		if err != nil {
			return err
		}
		s, err := sim.CompileProgram(d.Circuit, d.BuildOptions)
		if err != nil {
			return err
		}
		if err := s.PowerOn(); err != nil {
			return err
		}

		sets, err := parseSets(simSets)
		if err != nil {
			return err
		}
		if err := applySets(s, d, sets); err != nil {
			return err
		}

		printOutputs(s, d, -1)
		if d.Clock == nil {
			return nil
		}
		for cycle := 0; cycle < simCycles; cycle++ {
			ok, err := s.AdvanceEvent()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			printOutputs(s, d, cycle)
		}
		return nil
	},
}

func init() {
	simCmd.Flags().IntVarP(&simCycles, "cycles", "n", 4, "number of clock edges to step")
	simCmd.Flags().StringArrayVar(&simSets, "set", nil, "name=value, sets an input before stepping (repeatable)")
}

// parseSets turns "name=value" flags into a name->uint64 map.
func parseSets(raw []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("--set %q: expected name=value", kv)
		}
		lv, err := literal.Parse(parts[1])
		if err != nil {
			return nil, herr.Wrap(herr.LiteralError, err, "--set %q", kv)
		}
		out[parts[0]] = lv.Bits
	}
	return out, nil
}

func applySets(s *sim.Simulator, d *design.Design, sets map[string]uint64) error {
	for name, v := range sets {
		np, ok := d.Inputs[name]
		if !ok {
			return fmt.Errorf("design %q has no input %q", d.Name, name)
		}
		h, err := s.SigHandle(np)
		if err != nil {
			return err
		}
		width := int(np.Node.Outputs[np.Port].Type.Width)
		val := bitvec.New(width)
		val.InsertWide(bitvec.Value, 0, width, v)
		for i := 0; i < width; i++ {
			val.Set(bitvec.Defined, i, true)
		}
		if err := h.Write(val); err != nil {
			return err
		}
	}
	return nil
}

func printOutputs(s *sim.Simulator, d *design.Design, cycle int) {
	label := "power-on"
	if cycle >= 0 {
		label = fmt.Sprintf("t=%d (edge %d)", s.Now(), cycle)
	}
	fmt.Printf("[%s]", label)
	for _, name := range sortedKeys(d.Outputs) {
		h, err := s.SigHandle(d.Outputs[name])
		if err != nil {
			fmt.Printf(" %s=<error: %v>", name, err)
			continue
		}
		v := h.Read()
		width := int(d.Outputs[name].Node.Outputs[d.Outputs[name].Port].Type.Width)
		if v.AllDefined(0, width) {
			fmt.Printf(" %s=%d", name, v.ExtractWide(bitvec.Value, 0, width))
		} else {
			fmt.Printf(" %s=X", name)
		}
	}
	fmt.Println()
}
