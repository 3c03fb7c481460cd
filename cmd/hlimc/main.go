// Command hlimc is a thin cobra shell over the Circuit/Simulator/
// VhdlExport API: it names no behavior the library doesn't already
// expose, it only gives a terminal user a way to pick a design and
// drive it. Grounded on the teacher's cmd/minzc/main.go (root command
// and flag style) and cmd/repl/main.go (raw-mode terminal stepping).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hlimc",
	Short: "HLIM circuit simulator and VHDL exporter",
	Long: `hlimc - reference driver for the HLIM dataflow graph library

Every subcommand operates on one of the registered example designs
(see --list-designs); there is no on-disk circuit file format, a
design is a Go function building a hlim.Circuit directly.

EXAMPLES:
  hlimc --list-designs
  hlimc vhdl counter
  hlimc sim counter -n 10
  hlimc repl counter`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var listDesigns bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&listDesigns, "list-designs", false, "list available designs and exit")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if listDesigns {
			printDesigns()
			os.Exit(0)
		}
		return nil
	}
	rootCmd.AddCommand(vhdlCmd, simCmd, replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
