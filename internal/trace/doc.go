// Package trace provides a tracing subsystem for the loom toolchain.
//
// The trace package enables tracking of pipeline phases, graph processing,
// and node firings to help diagnose performance issues and hangs.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	loom run --trace=- --trace-level=phase app.graph.toml
//
// # Architecture
//
// The package provides several tracer implementations:
//
//   - NopTracer: Zero-overhead no-op tracer when disabled
//   - StreamTracer: Immediate write to output (file/stderr)
//   - RingTracer: Circular buffer for crash dumps
//   - MultiTracer: Combines multiple tracers
//
// # Levels
//
// Tracing verbosity is controlled by levels:
//
//   - LevelOff: No tracing
//   - LevelError: Only crash dumps
//   - LevelPhase: Session and phase boundaries
//   - LevelDetail: Graph-level events
//   - LevelDebug: Everything including node firings
//
// # Scopes
//
// Events are categorized by scope:
//
//   - ScopeSession: Top-level CLI operations
//   - ScopePhase: Pipeline phases (load, resolve, validate, plan, run)
//   - ScopeGraph: Per-graph processing
//   - ScopeNode: Per-node firings
//
// # Context Propagation
//
// Tracers are propagated through the pipeline via context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePhase, "resolve", parentID)
//	defer span.End("")
package trace
