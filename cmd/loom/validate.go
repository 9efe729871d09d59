package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loom/internal/trace"
	"loom/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flags] <graph.toml>",
	Short: "Validate a dataflow graph against a module registry",
	Long:  `Validate checks a graph manifest end to end: module resolution, port wiring, type inference, backpressure policies and cycle legality`,
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().String("registry", "", "directory of module manifests (*.toml)")
	validateCmd.Flags().String("format", "pretty", "output format (pretty|json|sarif)")
	validateCmd.Flags().Bool("publish", false, "validate for publishing: reproducibility findings become errors")
	validateCmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	validateCmd.Flags().Bool("suggest", false, "include fix suggestions in output")
	validateCmd.Flags().Bool("preview", false, "show fix previews alongside suggestions")
	validateCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
}

// runValidate executes the "validate" command: load the registry and the
// graph manifest, resolve module versions, run every validation pass, print
// the diagnostics in the chosen format and exit non-zero when any of them is
// an error.
func runValidate(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic(cmd)

	graphPath := args[0]

	regDir, err := cmd.Flags().GetString("registry")
	if err != nil {
		return fmt.Errorf("failed to get registry flag: %w", err)
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}

	publish, err := cmd.Flags().GetBool("publish")
	if err != nil {
		return fmt.Errorf("failed to get publish flag: %w", err)
	}

	withNotes, err := cmd.Flags().GetBool("with-notes")
	if err != nil {
		return fmt.Errorf("failed to get with-notes flag: %w", err)
	}

	suggest, err := cmd.Flags().GetBool("suggest")
	if err != nil {
		return fmt.Errorf("failed to get suggest flag: %w", err)
	}

	preview, err := cmd.Flags().GetBool("preview")
	if err != nil {
		return fmt.Errorf("failed to get preview flag: %w", err)
	}

	fullPath, err := cmd.Flags().GetBool("fullpath")
	if err != nil {
		return fmt.Errorf("failed to get fullpath flag: %w", err)
	}

	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}

	cleanup, err := setupProfiling(cmd)
	if err != nil {
		return err
	}

	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	if err := p.load(cmd, graphPath, regDir); err != nil {
		return err
	}

	if p.graph != nil && !p.bag.HasErrors() {
		if p.resolve() {
			done := p.timer.Track("validate")
			_, vbag := validate.Validate(p.graph, p.reg, p.res, validate.Options{
				MaxDiagnostics: int(p.bag.Cap()),
				Publish:        publish,
				Tracer:         trace.FromContext(cmd.Context()),
			})
			p.bag.Merge(vbag)
			done(fmt.Sprintf("diags=%d", vbag.Len()))
		}
	}

	printErr := p.printDiagnostics(cmd, format, withNotes, suggest, preview, fullPath)
	p.printTimings(cmd)

	// Always cleanup profiler
	cleanup()

	if printErr != nil {
		return printErr
	}
	if p.bag.HasErrors() {
		return failSilently(cmd)
	}

	if !quiet && format == "pretty" {
		fmt.Fprintf(os.Stdout, "ok: %d nodes, %d edges\n", len(p.graph.Nodes), len(p.graph.Edges))
	}
	return nil
}
