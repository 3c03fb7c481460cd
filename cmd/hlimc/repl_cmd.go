package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/oisee/hlim/pkg/bitvec"
	"github.com/oisee/hlim/pkg/design"
	"github.com/oisee/hlim/pkg/herr"
	"github.com/oisee/hlim/pkg/literal"
	"github.com/oisee/hlim/pkg/sim"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var replCmd = &cobra.Command{
	Use:   "repl <design>",
	Short: "interactively drive a design one clock edge at a time",
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
		return runRepl(s, d)
	},
}

// replEditor wraps raw-mode terminal setup, mirroring the teacher's
// cmd/repl/main.go REPL.oldTermState handling, adapted from a
// line-editing history REPL to single-key stepping since hlimc's
// commands are one character each.
type replEditor struct {
	oldState *term.State
	fd       int
}

func newReplEditor() *replEditor {
	return &replEditor{fd: int(os.Stdin.Fd())}
}

func (r *replEditor) enterRaw() {
	if !term.IsTerminal(r.fd) {
		return
	}
	if st, err := term.MakeRaw(r.fd); err == nil {
		r.oldState = st
	}
}

func (r *replEditor) restore() {
	if r.oldState != nil {
		term.Restore(r.fd, r.oldState)
	}
}

func runRepl(s *sim.Simulator, d *design.Design) error {
	fmt.Printf("hlimc repl: design %q (clock: %v)\n", d.Name, d.Clock != nil)
	fmt.Println("n/space = step one clock edge, p = print outputs, s name=value = set input, q = quit")
	printOutputs(s, d, -1)

	ed := newReplEditor()
	ed.enterRaw()
	defer ed.restore()

	in := bufio.NewReader(os.Stdin)
	cycle := 0
	for {
		b, err := in.ReadByte()
		if err != nil {
			return nil
		}
		switch b {
		case 'q', 3: // 'q' or Ctrl-C
			return nil
		case 'n', ' ', '\r', '\n':
			if d.Clock == nil {
				fmt.Print("\r\ndesign has no clock to step\r\n")
				continue
			}
			ok, err := s.AdvanceEvent()
			if err != nil {
				fmt.Printf("\r\nerror: %v\r\n", err)
				continue
			}
			if !ok {
				fmt.Print("\r\nno more scheduled events\r\n")
				continue
			}
			fmt.Print("\r\n")
			printOutputsCRLF(s, d, cycle)
			cycle++
		case 'p':
			fmt.Print("\r\n")
			printOutputsCRLF(s, d, cycle-1)
		case 's':
			fmt.Print("\r\nset> ")
			ed.restore()
			line, _ := in.ReadString('\n')
			ed.enterRaw()
			if err := applyOneSet(s, d, strings.TrimSpace(line)); err != nil {
				fmt.Printf("\r\n%v\r\n", err)
			}
		}
	}
}

func applyOneSet(s *sim.Simulator, d *design.Design, line string) error {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected name=value, got %q", line)
	}
	lv, err := literal.Parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return herr.Wrap(herr.LiteralError, err, "set %q", line)
	}
	sets := map[string]uint64{strings.TrimSpace(parts[0]): lv.Bits}
	return applySets(s, d, sets)
}

// printOutputsCRLF is printOutputs adjusted for a raw terminal, which
// does not translate \n into \r\n on its own.
func printOutputsCRLF(s *sim.Simulator, d *design.Design, cycle int) {
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
	fmt.Print("\r\n")
}
