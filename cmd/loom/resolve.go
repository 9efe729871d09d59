package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [flags] <graph.toml>",
	Short: "Resolve module versions for a graph",
	Long:  `Resolve pins the newest registry version satisfying every requirement constraint, transitively through published subgraphs, and prints the pins`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().String("registry", "", "directory of module manifests (*.toml)")
	resolveCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
}

// runResolve executes the "resolve" command: load the registry and the graph,
// pin every referenced module and print one "module version digest" line per
// pin. Resolution failures print diagnostics and exit non-zero.
func runResolve(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic(cmd)

	graphPath := args[0]

	regDir, err := cmd.Flags().GetString("registry")
	if err != nil {
		return fmt.Errorf("failed to get registry flag: %w", err)
	}

	fullPath, err := cmd.Flags().GetBool("fullpath")
	if err != nil {
		return fmt.Errorf("failed to get fullpath flag: %w", err)
	}

	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	if err := p.load(cmd, graphPath, regDir); err != nil {
		return err
	}

	resolved := false
	if p.graph != nil && !p.bag.HasErrors() {
		resolved = p.resolve()
	}

	if p.bag.Len() > 0 {
		if err := p.printDiagnostics(cmd, "pretty", false, false, false, fullPath); err != nil {
			return err
		}
	}
	p.printTimings(cmd)

	if !resolved || p.bag.HasErrors() {
		return failSilently(cmd)
	}

	if len(p.res.Pins) == 0 {
		return writeStdoutln("no modules required")
	}
	for _, pin := range p.res.Pins {
		if err := writeStdoutf("%s\t%s\t%s\n", pin.Module, pin.Version, pin.Digest); err != nil {
			return err
		}
	}
	return nil
}
