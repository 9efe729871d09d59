package schedule

import (
	"github.com/google/uuid"

	"loom/internal/diag"
	"loom/internal/ir"
)

// NodeState is the lifecycle of a node within one run.
type NodeState uint8

const (
	StateReady NodeState = iota
	StateScheduled
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s NodeState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Failure records one halted node. Declared domain errors never appear
// here; they flow downstream as result values instead.
type Failure struct {
	Node    string
	Tick    uint64
	Code    diag.Code
	Domain  string // error domain when the failure came from a DomainError
	Message string
}

// Report is the outcome of a run: per-export value series, final node
// states, drop counters and failures. Two runs of the same plan with the
// same seed, feed and virtual clock produce identical reports apart from
// RunID.
type Report struct {
	RunID  uuid.UUID
	Graph  string // module/name@version of the source graph
	Digest string // plan digest
	Seed   uint64
	Ticks  uint64
	// Exports collects the exported port's value per tick the exporting
	// node fired, keyed by export id.
	Exports map[string][]ir.Value
	// NodeStates holds each node's resting state after the run.
	NodeStates map[string]NodeState
	// Drops counts values discarded per edge by drop_oldest / drop_newest.
	Drops    map[string]uint64
	Failures []Failure
	// Cancelled is set when the context ended the run early; CancelledAt is
	// the tick that was cut short.
	Cancelled   bool
	CancelledAt uint64
}

// Failed reports whether any node halted.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }
