package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"loom/internal/registry"
)

var lockCmd = &cobra.Command{
	Use:   "lock [flags] <graph.toml>",
	Short: "Write or verify the lockfile for a graph",
	Long:  `Lock resolves the graph and records the pins plus the graph digest in a lockfile, so later runs replay the same module versions. With --verify it checks an existing lockfile against a fresh resolution instead`,
	Args:  cobra.ExactArgs(1),
	RunE:  runLock,
}

func init() {
	lockCmd.Flags().String("registry", "", "directory of module manifests (*.toml)")
	lockCmd.Flags().StringP("output", "o", "", "lockfile path (default: loom.lock next to the graph)")
	lockCmd.Flags().Bool("verify", false, "verify an existing lockfile instead of writing one")
}

// runLock executes the "lock" command. The default mode resolves the graph
// and writes the lockfile atomically; --verify re-resolves and reports every
// divergence from the existing lockfile as a diagnostic.
func runLock(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic(cmd)

	graphPath := args[0]

	regDir, err := cmd.Flags().GetString("registry")
	if err != nil {
		return fmt.Errorf("failed to get registry flag: %w", err)
	}

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	if output == "" {
		output = filepath.Join(filepath.Dir(graphPath), registry.LockfileName)
	}

	verify, err := cmd.Flags().GetBool("verify")
	if err != nil {
		return fmt.Errorf("failed to get verify flag: %w", err)
	}

	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
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

	fresh := true
	if resolved && verify {
		lf, found, err := registry.ReadLockfile(output)
		if err != nil {
			return fmt.Errorf("failed to read lockfile: %w", err)
		}
		if !found {
			return fmt.Errorf("lockfile %s does not exist; run lock without --verify first", output)
		}
		fresh = registry.VerifyLockfile(lf, p.graph, p.res, p.graph.Span, p.rep)
	}

	if p.bag.Len() > 0 {
		if err := p.printDiagnostics(cmd, "pretty", true, false, false, false); err != nil {
			return err
		}
	}
	p.printTimings(cmd)

	if !resolved || !fresh || p.bag.HasErrors() {
		return failSilently(cmd)
	}

	if verify {
		if !quiet {
			return writeStdoutf("ok: %s is up to date\n", output)
		}
		return nil
	}

	if err := registry.WriteLockfile(output, p.graph, p.res); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	if !quiet {
		return writeStdoutf("wrote %s (pins=%d)\n", output, len(p.res.Pins))
	}
	return nil
}
