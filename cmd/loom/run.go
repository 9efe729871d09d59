package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"loom/internal/blocks"
	"loom/internal/registry"
	"loom/internal/schedule"
	"loom/internal/trace"
	"loom/internal/validate"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <graph.toml>",
	Short: "Execute a dataflow graph",
	Long:  `Run validates the graph, lays its nodes out in deterministic waves and drives the stock blocks tick by tick, printing every exported value`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExecution,
}

func init() {
	runCmd.Flags().String("registry", "", "directory of module manifests (*.toml)")
	runCmd.Flags().Uint64("ticks", schedule.DefaultTicks, "number of scheduler ticks")
	runCmd.Flags().Uint64("seed", 0, "seed for entropy_dependent blocks")
	runCmd.Flags().Bool("virtual-clock", false, "drive time_dependent blocks from a simulated clock")
	runCmd.Flags().Int("max-concurrency", 0, "cap workers per wave (0 = widest wave)")
	runCmd.Flags().String("ui", "auto", "run monitor (auto|on|off)")
	runCmd.Flags().String("format", "pretty", "diagnostics format (pretty|json|sarif)")
	runCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
}

// runExecution executes the "run" command: load, resolve, inline subgraphs,
// validate, plan and run. Exported values print one line per tick the
// exporting node fired; node failures print to stderr and make the command
// exit non-zero.
func runExecution(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic(cmd)

	graphPath := args[0]

	regDir, err := cmd.Flags().GetString("registry")
	if err != nil {
		return fmt.Errorf("failed to get registry flag: %w", err)
	}

	ticks, err := cmd.Flags().GetUint64("ticks")
	if err != nil {
		return fmt.Errorf("failed to get ticks flag: %w", err)
	}

	seed, err := cmd.Flags().GetUint64("seed")
	if err != nil {
		return fmt.Errorf("failed to get seed flag: %w", err)
	}
	seeded := cmd.Flags().Changed("seed")

	virtualClock, err := cmd.Flags().GetBool("virtual-clock")
	if err != nil {
		return fmt.Errorf("failed to get virtual-clock flag: %w", err)
	}

	maxConcurrency, err := cmd.Flags().GetInt("max-concurrency")
	if err != nil {
		return fmt.Errorf("failed to get max-concurrency flag: %w", err)
	}

	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	uiModeValue, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
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

	// Load, resolve, inline and validate; any failed stage leaves its
	// diagnostics in the bag and skips the rest.
	var vg *validate.ValidatedGraph
	if p.graph != nil && !p.bag.HasErrors() && p.resolve() {
		inlined, inlineErr := p.reg.Inline(p.graph, p.res, p.rep)
		if inlineErr != nil && !errors.Is(inlineErr, registry.ErrInlineFailed) {
			cleanup()
			return inlineErr
		}
		if inlineErr == nil {
			done := p.timer.Track("validate")
			validated, vbag := validate.Validate(inlined, p.reg, p.res, validate.Options{
				MaxDiagnostics: int(p.bag.Cap()),
				Seeded:         seeded,
				VirtualClock:   virtualClock,
				Tracer:         trace.FromContext(cmd.Context()),
			})
			p.bag.Merge(vbag)
			done(fmt.Sprintf("diags=%d", vbag.Len()))
			vg = validated
		}
	}

	if vg == nil || p.bag.HasErrors() {
		printErr := p.printDiagnostics(cmd, format, true, false, false, fullPath)
		p.printTimings(cmd)
		cleanup()
		if printErr != nil {
			return printErr
		}
		return failSilently(cmd)
	}

	done := p.timer.Track("plan")
	plan, err := schedule.Plan(vg)
	if err != nil {
		cleanup()
		return fmt.Errorf("failed to plan execution: %w", err)
	}
	done(fmt.Sprintf("units=%d waves=%d", len(plan.Units), len(plan.Waves)))

	opts := schedule.RunOptions{
		Ticks:          ticks,
		Seed:           seed,
		MaxConcurrency: maxConcurrency,
	}
	if virtualClock {
		opts.Clock = &schedule.VirtualClock{}
	}

	nodes := make([]string, 0, len(vg.Graph.Nodes))
	for i := range vg.Graph.Nodes {
		nodes = append(nodes, vg.Graph.Nodes[i].ID)
	}
	sort.Strings(nodes)

	doneRun := p.timer.Track("run")
	var report *schedule.Report
	if shouldUseTUI(uiModeValue) && len(nodes) > 0 {
		report, err = runGraphWithUI(cmd.Context(), "loom run "+p.graph.Name, nodes, plan, blocks.Providers(), opts)
	} else {
		report, err = schedule.Run(cmd.Context(), plan, blocks.Providers(), opts)
	}
	if err != nil {
		doneRun("failed")
		p.printTimings(cmd)
		cleanup()
		return fmt.Errorf("run failed: %w", err)
	}
	doneRun(fmt.Sprintf("ticks=%d", report.Ticks))

	exportIDs := make([]string, 0, len(report.Exports))
	for id := range report.Exports {
		exportIDs = append(exportIDs, id)
	}
	sort.Strings(exportIDs)
	for _, id := range exportIDs {
		for i, v := range report.Exports[id] {
			if err := writeStdoutf("%s[%d] = %s\n", id, i, v.String()); err != nil {
				return err
			}
		}
	}

	for _, f := range report.Failures {
		if err := writeStderrf("failed %s at tick %d: %s\n", f.Node, f.Tick, f.Message); err != nil {
			return err
		}
	}
	if report.Cancelled {
		if err := writeStderrf("cancelled at tick %d\n", report.CancelledAt); err != nil {
			return err
		}
	}

	p.printTimings(cmd)

	// Always cleanup profiler
	cleanup()

	if report.Failed() || report.Cancelled {
		return failSilently(cmd)
	}

	if !quiet {
		return writeStdoutf("ran %s: %d ticks, %d nodes (seed %d)\n", p.graph.Name, report.Ticks, len(report.NodeStates), report.Seed)
	}
	return nil
}
