package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"loom/internal/schedule"
	"loom/internal/ui"
)

type runOutcome struct {
	report *schedule.Report
	err    error
}

// runGraphWithUI executes the plan under the run monitor TUI. Progress events
// stream from the scheduler goroutine into the model; the program quits when
// the scheduler closes the event channel.
func runGraphWithUI(ctx context.Context, title string, nodes []string, plan *schedule.ExecutionPlan, prov *schedule.Providers, opts schedule.RunOptions) (*schedule.Report, error) {
	if plan == nil {
		return nil, fmt.Errorf("missing execution plan")
	}
	events := make(chan schedule.RunEvent, 256)
	outcomeCh := make(chan runOutcome, 1)

	go func() {
		optsCopy := opts
		optsCopy.Progress = schedule.ChannelSink{Ch: events}
		report, err := schedule.Run(ctx, plan, prov, optsCopy)
		outcomeCh <- runOutcome{report: report, err: err}
		close(events)
	}()

	model := ui.NewRunModel(title, nodes, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.report, uiErr
	}
	return outcome.report, outcome.err
}
