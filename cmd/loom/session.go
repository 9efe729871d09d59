package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loom/internal/blocks"
	"loom/internal/diag"
	"loom/internal/diagfmt"
	"loom/internal/ir"
	"loom/internal/observ"
	"loom/internal/registry"
	"loom/internal/source"
	"loom/internal/trace"
)

// pipeline carries the state every graph command shares: the file set, the
// diagnostics bag, the module registry and the phase timer.
type pipeline struct {
	fset  *source.FileSet
	bag   *diag.Bag
	rep   diag.BagReporter
	reg   *registry.Registry
	timer *observ.Timer

	graph *ir.GraphSpec
	res   *registry.Resolution
}

// newPipeline builds the shared command state from the root flags.
func newPipeline(cmd *cobra.Command) (*pipeline, error) {
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}

	fset := source.NewFileSet()
	if cwd, err := os.Getwd(); err == nil {
		fset.SetBaseDir(cwd)
	}

	bag := diag.NewBag(maxDiagnostics)
	return &pipeline{
		fset:  fset,
		bag:   bag,
		rep:   diag.BagReporter{Bag: bag},
		reg:   registry.New(),
		timer: observ.NewTimer(),
	}, nil
}

// load registers the stock module, loads every manifest under regDir and
// decodes the graph manifest when graphPath is non-empty. Manifest problems
// become diagnostics in the bag; the returned error covers only I/O and
// cancellation.
func (p *pipeline) load(cmd *cobra.Command, graphPath, regDir string) error {
	done := p.timer.Track("load")

	if err := p.reg.Register(blocks.Module(), p.rep); err != nil {
		return fmt.Errorf("failed to register stock module: %w", err)
	}
	modules := 1

	if regDir != "" {
		n, err := p.reg.LoadDir(cmd.Context(), p.fset, regDir, 0, p.rep)
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		modules += n
	}

	if graphPath != "" {
		g, fileID, err := ir.DecodeGraphFile(p.fset, graphPath)
		if err != nil {
			if fileID == 0 {
				return fmt.Errorf("failed to load graph: %w", err)
			}
			diag.ReportError(p.rep, diag.ManifestSyntax, ir.SyntaxSpan(fileID, err), err.Error()).Emit()
		}
		p.graph = g
	}

	done(fmt.Sprintf("modules=%d", modules))
	return nil
}

// resolve pins every module the graph references and applies the pins to the
// graph nodes. A false return means resolution diagnostics are already in
// the bag.
func (p *pipeline) resolve() bool {
	done := p.timer.Track("resolve")

	res, err := p.reg.ResolveGraph(p.graph, p.rep)
	if err != nil {
		done("failed")
		return false
	}
	res.Apply(p.graph)
	p.res = res

	done(fmt.Sprintf("pins=%d", len(res.Pins)))
	return true
}

// printDiagnostics renders the bag to stdout in the requested format.
func (p *pipeline) printDiagnostics(cmd *cobra.Command, format string, withNotes, suggest, preview, fullPath bool) error {
	p.bag.Sort()
	p.bag.Dedup()

	pathMode := diagfmt.PathModeAuto
	if fullPath {
		pathMode = diagfmt.PathModeAbsolute
	}
	showFixes := suggest || preview

	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	useColor := colorFlag == "on" || (colorFlag == "auto" && isTerminal(os.Stdout))

	switch format {
	case "pretty":
		opts := diagfmt.PrettyOpts{
			Color:       useColor,
			Context:     2,
			PathMode:    pathMode,
			ShowNotes:   withNotes,
			ShowFixes:   showFixes,
			ShowPreview: preview,
		}
		diagfmt.Pretty(os.Stdout, p.bag, p.fset, opts)
	case "json":
		jsonOpts := diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         pathMode,
			IncludeNotes:     withNotes,
			IncludeFixes:     showFixes,
			IncludePreviews:  preview,
		}
		if err := diagfmt.JSON(os.Stdout, p.bag, p.fset, jsonOpts); err != nil {
			return fmt.Errorf("failed to format diagnostics: %w", err)
		}
	case "sarif":
		meta := diagfmt.SarifRunMeta{
			ToolName:    "loom",
			ToolVersion: "0.1.0",
		}
		diagfmt.Sarif(os.Stdout, p.bag, p.fset, meta)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}

// printTimings writes the phase summary to stderr when --timings is set and
// --quiet is not.
func (p *pipeline) printTimings(cmd *cobra.Command) {
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil || !showTimings {
		return
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err == nil && quiet {
		return
	}
	fmt.Fprint(os.Stderr, p.timer.Summary())
}

// failSilently makes main exit with status 1 without cobra printing usage or
// a duplicate error line. Diagnostics have already been printed.
func failSilently(cmd *cobra.Command) error {
	// Cleanup tracer explicitly because PersistentPostRun is not called on error
	if tracer := trace.FromContext(cmd.Context()); tracer != nil && tracer != trace.Nop {
		_ = tracer.Flush()
		_ = tracer.Close()
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return fmt.Errorf("")
}
