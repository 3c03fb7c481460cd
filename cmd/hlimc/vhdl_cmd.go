package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oisee/hlim/pkg/design"
	"github.com/oisee/hlim/pkg/vhdl"
	"github.com/spf13/cobra"
)

var vhdlOutDir string

var vhdlCmd = &cobra.Command{
	Use:   "vhdl <design>",
	Short: "export a design to VHDL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := design.Get(args[0])
		if err != nil {
			return err
		}
		files, err := vhdl.Export(d.Circuit, vhdl.Options{})
		if err != nil {
			return err
		}
		if vhdlOutDir == "" {
			for _, name := range sortedKeys(files) {
				fmt.Printf("-- %s\n%s\n", name, files[name])
			}
			return nil
		}
		if err := os.MkdirAll(vhdlOutDir, 0o755); err != nil {
			return err
		}
		for name, body := range files {
			path := filepath.Join(vhdlOutDir, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		}
		return nil
	},
}

func init() {
	vhdlCmd.Flags().StringVarP(&vhdlOutDir, "output", "o", "", "directory to write generated files into (default: print to stdout)")
}
