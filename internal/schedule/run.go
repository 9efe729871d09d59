package schedule

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/trace"
	"loom/internal/types"
	"loom/internal/validate"
)

// DefaultTicks is the run length when the caller does not set one.
const DefaultTicks = 1

// RunOptions tune one run of a plan.
type RunOptions struct {
	// Ticks is the number of scheduler rounds; 0 means DefaultTicks.
	Ticks uint64
	// Seed derives every entropy_dependent node's random stream.
	Seed uint64
	// Clock stamps effect arrivals and feeds time_dependent blocks; nil
	// means the wall clock. Replays pass a VirtualClock.
	Clock Clock
	// MaxConcurrency caps workers per wave; 0 means the plan's widest wave.
	MaxConcurrency int
	// Feed supplies graph input values, one element per tick per input.
	// Inputs absent from Feed fall back to their declared default.
	Feed map[string][]ir.Value
	// Progress receives run events on the scheduler goroutine; nil disables
	// reporting. Used by the run monitor TUI.
	Progress ProgressSink
}

// ProviderError reports a block with no registered implementation. Runs
// fail on it before the first tick.
type ProviderError struct {
	Node  string
	Block string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("node %s: no provider for block %s", e.Node, e.Block)
}

// Run executes a plan tick by tick. Waves run concurrently inside a tick;
// commits apply at each wave barrier in unit order, so two runs with the
// same plan, seed, feed and virtual clock produce the same report.
// Cancellation waits for in-flight firings, discards their uncommitted
// outputs and returns the report built so far.
func Run(ctx context.Context, plan *ExecutionPlan, prov *Providers, opts RunOptions) (*Report, error) {
	if plan == nil || plan.Source == nil {
		return nil, errors.New("run: nil plan")
	}
	if prov == nil {
		prov = &Providers{}
	}
	r, err := newRunner(plan, prov, opts)
	if err != nil {
		return nil, err
	}
	return r.run(ctx), nil
}

// runnerNode caches everything a node needs per firing.
type runnerNode struct {
	id       string
	node     *ir.Node
	block    *ir.BlockSpec
	key      string
	fn       BlockFunc
	unit     UnitID
	params   map[string]ir.Value
	effects  []string
	rng      *rand.Rand
	inTypes  map[string]*types.TypeSpec
	outTypes map[string]*types.TypeSpec
	defaults map[string]ir.Value // decoded input defaults
	merge    map[string]string   // stream input port -> effective policy
	rr       map[string]*int     // interleaved cursors, owned by the unit
}

func (rn *runnerNode) effectful() bool { return rn.block.Purity == ir.PurityEffect }

// commit is one cross-unit edge write, deferred to the wave barrier.
type commit struct {
	st    *edgeState
	val   ir.Value
	stamp uint64
	src   string
}

// unitResult is everything one unit produced during a wave; the barrier
// applies results in wave order.
type unitResult struct {
	commits  []commit
	outputs  map[string]map[string]ir.Value
	states   map[string]NodeState
	state    map[string]ir.Value
	failures []Failure
}

func (res *unitResult) record(node, port string, v ir.Value) {
	m := res.outputs[node]
	if m == nil {
		m = make(map[string]ir.Value)
		res.outputs[node] = m
	}
	m[port] = v
}

type runner struct {
	plan   *ExecutionPlan
	vg     *validate.ValidatedGraph
	prov   *Providers
	opts   RunOptions
	clock  Clock
	limit  int
	ticks  uint64
	tracer trace.Tracer

	edges         *edgeSet
	nodes         map[string]*runnerNode
	state         map[string]ir.Value // stateful node state across ticks
	halted        map[string]bool
	inputDefaults map[string]ir.Value
	tickOutputs   map[string]map[string]ir.Value

	report *Report
}

func newRunner(plan *ExecutionPlan, prov *Providers, opts RunOptions) (*runner, error) {
	vg := plan.Source
	r := &runner{
		plan:          plan,
		vg:            vg,
		prov:          prov,
		opts:          opts,
		clock:         opts.Clock,
		limit:         opts.MaxConcurrency,
		ticks:         opts.Ticks,
		nodes:         make(map[string]*runnerNode, len(vg.Graph.Nodes)),
		state:         make(map[string]ir.Value),
		halted:        make(map[string]bool),
		inputDefaults: make(map[string]ir.Value),
		tickOutputs:   make(map[string]map[string]ir.Value),
	}
	if r.clock == nil {
		r.clock = RealClock{}
	}
	if r.ticks == 0 {
		r.ticks = DefaultTicks
	}
	if r.limit <= 0 {
		r.limit = plan.MaxConcurrency
	}
	if r.limit < 1 {
		r.limit = 1
	}

	r.edges = newEdgeSet(plan)
	defaulted := make(map[string]bool)
	for i := range vg.Graph.Inputs {
		in := &vg.Graph.Inputs[i]
		if _, fed := opts.Feed[in.Name]; fed || !in.HasDefault() {
			continue
		}
		v, err := ir.DecodeValue(in.Default, vg.InputTypes[in.Name])
		if err != nil {
			return nil, fmt.Errorf("run: input %s default: %w", in.Name, err)
		}
		r.inputDefaults[in.Name] = v
		defaulted[in.Name] = true
	}
	r.edges.markSticky(defaulted)

	for i := range vg.Graph.Nodes {
		n := &vg.Graph.Nodes[i]
		rn, err := r.newRunnerNode(n)
		if err != nil {
			return nil, err
		}
		r.nodes[n.ID] = rn
	}

	r.report = &Report{
		RunID:      uuid.New(),
		Graph:      fmt.Sprintf("%s/%s@%s", vg.Graph.Module, vg.Graph.Name, vg.Graph.Version),
		Digest:     plan.Digest,
		Seed:       opts.Seed,
		Exports:    make(map[string][]ir.Value, len(vg.Graph.Exports)),
		NodeStates: make(map[string]NodeState, len(vg.Graph.Nodes)),
	}
	for id := range r.nodes {
		r.report.NodeStates[id] = StateReady
	}
	return r, nil
}

func (r *runner) newRunnerNode(n *ir.Node) (*runnerNode, error) {
	if r.vg.Subgraphs[n.ID] != nil {
		return nil, fmt.Errorf("run: node %s is a subgraph; inline nested graphs before running", n.ID)
	}
	b := r.vg.Blocks[n.ID]
	if b == nil {
		return nil, fmt.Errorf("run: node %s has no bound block", n.ID)
	}
	module, name, err := ir.SplitRef(n.Ref)
	if err != nil {
		return nil, fmt.Errorf("run: node %s: %w", n.ID, err)
	}
	key := ir.FQKey(module, r.vg.Pins[module], name)
	fn, ok := r.prov.Block(key)
	if !ok {
		return nil, &ProviderError{Node: n.ID, Block: key}
	}

	rn := &runnerNode{
		id:       n.ID,
		node:     n,
		block:    b,
		key:      key,
		fn:       fn,
		unit:     r.plan.UnitFor(n.ID),
		params:   r.vg.Params[n.ID],
		effects:  b.Effects,
		inTypes:  make(map[string]*types.TypeSpec, len(b.Inputs)),
		outTypes: make(map[string]*types.TypeSpec, len(b.Outputs)),
		defaults: make(map[string]ir.Value),
		merge:    make(map[string]string),
		rr:       make(map[string]*int),
	}
	if b.Determinism == ir.DetEntropy {
		rn.rng = nodeRand(r.opts.Seed, n.ID)
	}

	bind := r.vg.Bindings[n.ID]
	for i := range b.Inputs {
		p := &b.Inputs[i]
		t, err := portType(p, bind)
		if err != nil {
			return nil, fmt.Errorf("run: node %s input %s: %w", n.ID, p.Name, err)
		}
		rn.inTypes[p.Name] = t
		if p.HasDefault() {
			v, err := ir.DecodeValue(p.Default, t)
			if err != nil {
				return nil, fmt.Errorf("run: node %s input %s default: %w", n.ID, p.Name, err)
			}
			rn.defaults[p.Name] = v
		}
		sts := r.edges.into[ir.Endpoint{Node: n.ID, Port: p.Name}]
		if len(sts) > 0 && sts[0].stream {
			policy, _ := r.vg.MergeFor(sts[0].edge)
			rn.merge[p.Name] = policy
			rn.rr[p.Name] = new(int)
		}
	}
	for i := range b.Outputs {
		p := &b.Outputs[i]
		t, err := portType(p, bind)
		if err != nil {
			return nil, fmt.Errorf("run: node %s output %s: %w", n.ID, p.Name, err)
		}
		rn.outTypes[p.Name] = t
	}
	return rn, nil
}

func portType(p *ir.PortSpec, bind map[string]*types.TypeSpec) (*types.TypeSpec, error) {
	t, err := types.Parse(p.Type)
	if err != nil {
		return nil, err
	}
	return types.Substitute(t, bind)
}

func (r *runner) run(ctx context.Context) *Report {
	r.tracer = trace.FromContext(ctx)
	span := trace.Begin(r.tracer, trace.ScopeGraph, "run", 0)
	span.WithExtra("graph", r.report.Graph)
	defer func() {
		span.End(fmt.Sprintf("ticks=%d failures=%d", r.report.Ticks, len(r.report.Failures)))
	}()

	r.primeConsts()
	for i := range r.vg.Graph.Nodes {
		r.notify(RunEvent{Node: r.vg.Graph.Nodes[i].ID, Status: RunStatusQueued})
	}
	for tick := uint64(0); tick < r.ticks; tick++ {
		if ctx.Err() != nil {
			r.report.Cancelled = true
			r.report.CancelledAt = tick
			break
		}
		start := time.Now()
		r.clock.AdvanceTick(tick)
		r.feedTick(tick)
		trace.Point(r.tracer, trace.ScopeNode, "tick", fmt.Sprintf("%d/%d", tick+1, r.ticks), span.ID())
		r.notify(RunEvent{Tick: tick, Status: RunStatusWorking})

		cancelled := false
		for _, wave := range r.plan.Waves {
			if !r.runWave(ctx, wave, tick) {
				cancelled = true
				break
			}
		}
		if cancelled {
			r.report.Cancelled = true
			r.report.CancelledAt = tick
			break
		}
		r.collectExports()
		r.report.Ticks++
		recordTick(ctx, time.Since(start))
	}
	r.notify(RunEvent{Tick: r.report.Ticks, Status: RunStatusDone})
	r.report.Drops = r.edges.dropTotals()
	for _, n := range r.report.Drops {
		recordDrops(ctx, n)
	}
	return r.report
}

// primeConsts loads every constant source once; const edges are sticky so
// consumers read them on every tick.
func (r *runner) primeConsts() {
	g := r.vg.Graph
	for i := range g.Consts {
		c := &g.Consts[i]
		v, ok := r.vg.Consts[c.ID]
		if !ok {
			continue
		}
		for _, st := range r.edges.consts[c.ID] {
			st.push(v, r.clock.NowMs(), ir.ConstNode)
		}
	}
}

// feedTick pushes this tick's input values. Defaulted inputs were marked
// sticky, so their single push at tick zero keeps serving every tick.
func (r *runner) feedTick(tick uint64) {
	g := r.vg.Graph
	for i := range g.Inputs {
		in := &g.Inputs[i]
		sts := r.edges.inputs[in.Name]
		if len(sts) == 0 {
			continue
		}
		if vals, fed := r.opts.Feed[in.Name]; fed {
			if tick < uint64(len(vals)) {
				for _, st := range sts {
					st.push(vals[tick], r.clock.NowMs(), ir.InputNode)
				}
			}
			continue
		}
		if tick != 0 {
			continue
		}
		if v, ok := r.inputDefaults[in.Name]; ok {
			for _, st := range sts {
				st.push(v, r.clock.NowMs(), ir.InputNode)
			}
		}
	}
}

// runWave dispatches one wave's units concurrently, joins them and applies
// their results in wave order. Returns false when the run was cancelled:
// in-flight firings were flushed and their outputs discarded.
func (r *runner) runWave(ctx context.Context, wave []UnitID, tick uint64) bool {
	g, wctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	results := make([]*unitResult, len(wave))
	for i, uid := range wave {
		i, uid := i, uid
		g.Go(func() error {
			results[i] = r.runUnit(wctx, &r.plan.Units[uid], tick)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		r.cancelWave(wave)
		return false
	}
	for _, res := range results {
		r.apply(ctx, res, tick)
	}
	return true
}

func (r *runner) cancelWave(wave []UnitID) {
	for _, uid := range wave {
		for _, id := range r.plan.Units[uid].Nodes {
			if r.report.NodeStates[id] != StateFailed {
				r.report.NodeStates[id] = StateCancelled
			}
		}
	}
}

// apply commits a unit's writes at the barrier and propagates halts.
func (r *runner) apply(ctx context.Context, res *unitResult, tick uint64) {
	if res == nil {
		return
	}
	for _, c := range res.commits {
		c.st.push(c.val, c.stamp, c.src)
	}
	for node, ports := range res.outputs {
		r.tickOutputs[node] = ports
	}
	for node, st := range res.states {
		r.report.NodeStates[node] = st
	}
	if r.opts.Progress != nil || r.traceNodes() {
		done := make([]string, 0, len(res.states))
		for node, st := range res.states {
			if st == StateCompleted {
				done = append(done, node)
			}
		}
		sort.Strings(done)
		for _, node := range done {
			r.notify(RunEvent{Node: node, Tick: tick, Status: RunStatusDone})
			trace.Point(r.tracer, trace.ScopeNode, "node_done", node, 0)
		}
	}
	for node, sv := range res.state {
		r.state[node] = sv
	}
	for _, f := range res.failures {
		r.report.Failures = append(r.report.Failures, f)
		recordFailure(ctx, f.Code)
		trace.Point(r.tracer, trace.ScopeNode, "node_failed", fmt.Sprintf("%s: %s", f.Node, f.Message), 0)
		r.notify(RunEvent{Node: f.Node, Tick: tick, Status: RunStatusFailed, Err: f.Message})
		r.halt(f.Node, tick)
	}
}

func (r *runner) traceNodes() bool {
	return r.tracer != nil && r.tracer.Level().ShouldEmit(trace.ScopeNode)
}

// halt stops a failed node and every transitive consumer; the rest of the
// graph keeps running.
func (r *runner) halt(node string, tick uint64) {
	if r.halted[node] {
		return
	}
	r.halted[node] = true
	queue := []string{node}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, st := range r.edges.outOf[n] {
			to := st.edge.To.Node
			if r.halted[to] {
				continue
			}
			r.halted[to] = true
			if r.report.NodeStates[to] != StateFailed {
				r.report.NodeStates[to] = StateCancelled
				trace.Point(r.tracer, trace.ScopeNode, "node_halted", to, 0)
				r.notify(RunEvent{Node: to, Tick: tick, Status: RunStatusHalted})
			}
			queue = append(queue, to)
		}
	}
}

func (r *runner) collectExports() {
	g := r.vg.Graph
	for i := range g.Exports {
		x := &g.Exports[i]
		if ports, ok := r.tickOutputs[x.Node]; ok {
			if v, ok := ports[x.Port]; ok {
				r.report.Exports[x.ID] = append(r.report.Exports[x.ID], v)
			}
		}
	}
	clear(r.tickOutputs)
}

// runUnit fires the unit's nodes in plan order. Loops start at their
// breaker, which consumes the previous tick's back-edge token (or its
// declared default on the first tick) while the body computes this tick's.
func (r *runner) runUnit(ctx context.Context, u *Unit, tick uint64) *unitResult {
	res := &unitResult{
		outputs: make(map[string]map[string]ir.Value),
		states:  make(map[string]NodeState),
		state:   make(map[string]ir.Value),
	}
	for _, id := range u.Nodes {
		if r.halted[id] {
			continue
		}
		if ctx.Err() != nil {
			res.states[id] = StateCancelled
			break
		}
		rn := r.nodes[id]
		if !r.canFire(rn) {
			continue
		}
		r.fireNode(ctx, res, rn, tick)
	}
	return res
}

// canFire requires a token or default on every value input, an element on
// every connected stream input, and room on every outgoing edge.
func (r *runner) canFire(rn *runnerNode) bool {
	for i := range rn.block.Inputs {
		p := &rn.block.Inputs[i]
		sts := r.edges.into[ir.Endpoint{Node: rn.id, Port: p.Name}]
		if len(sts) == 0 {
			continue
		}
		if sts[0].stream {
			if !anyPending(sts) {
				return false
			}
			continue
		}
		if sts[0].pending() == 0 && !p.HasDefault() && !p.Optional {
			return false
		}
	}
	for _, st := range r.edges.outOf[rn.id] {
		if !st.canAccept() {
			return false
		}
	}
	return true
}

func anyPending(sts []*edgeState) bool {
	for _, st := range sts {
		if st.pending() > 0 {
			return true
		}
	}
	return false
}

// consume gathers one firing's inputs: pop value tokens, read sticky
// sources, merge one element per stream port.
func (r *runner) consume(rn *runnerNode) map[string]ir.Value {
	inputs := make(map[string]ir.Value, len(rn.block.Inputs))
	for i := range rn.block.Inputs {
		p := &rn.block.Inputs[i]
		sts := r.edges.into[ir.Endpoint{Node: rn.id, Port: p.Name}]
		if len(sts) > 0 && sts[0].stream {
			if el, ok := takeMerged(sts, rn.merge[p.Name], rn.rr[p.Name]); ok {
				inputs[p.Name] = el.val
			}
			continue
		}
		if len(sts) > 0 {
			st := sts[0]
			if st.sticky {
				if v, ok := st.read(); ok {
					inputs[p.Name] = v
					continue
				}
			} else if el, ok := st.pop(); ok {
				inputs[p.Name] = el.val
				continue
			}
		}
		if v, ok := rn.defaults[p.Name]; ok {
			inputs[p.Name] = v
		}
	}
	return inputs
}

func (r *runner) fireNode(ctx context.Context, res *unitResult, rn *runnerNode, tick uint64) {
	if eff, denied := r.deniedEffect(rn); denied {
		r.deliverDomainError(res, rn, tick, Denied(eff))
		return
	}
	inv := &Invocation{
		Node:   rn.id,
		Block:  rn.key,
		Tick:   tick,
		Inputs: r.consume(rn),
		Params: rn.params,
		Rand:   rn.rng,
		NowMs:  r.clock.NowMs(),
	}
	if sv, ok := r.state[rn.id]; ok {
		inv.State, inv.HasState = sv, true
	}
	out, err := rn.fn(ctx, inv)
	recordFiring(ctx, rn.effectful(), err != nil)
	if err != nil {
		var de *DomainError
		if errors.As(err, &de) {
			r.deliverDomainError(res, rn, tick, de)
			return
		}
		if ctx.Err() != nil {
			res.states[rn.id] = StateCancelled
			return
		}
		res.failures = append(res.failures, Failure{
			Node:    rn.id,
			Tick:    tick,
			Code:    diag.UndeclaredError,
			Message: err.Error(),
		})
		res.states[rn.id] = StateFailed
		return
	}
	if out == nil {
		out = &Result{}
	}
	if bad := rn.unknownOutput(out); bad != "" {
		res.failures = append(res.failures, Failure{
			Node:    rn.id,
			Tick:    tick,
			Code:    diag.UndeclaredError,
			Message: fmt.Sprintf("block returned undeclared output port %q", bad),
		})
		res.states[rn.id] = StateFailed
		return
	}
	stamp := r.clock.NowMs()
	for i := range rn.block.Outputs {
		p := &rn.block.Outputs[i]
		v, ok := out.Outputs[p.Name]
		if !ok {
			continue
		}
		res.record(rn.id, p.Name, v)
		r.emit(res, rn, p.Name, v, stamp)
	}
	if out.HasState {
		res.state[rn.id] = out.State
	}
	res.states[rn.id] = StateCompleted
}

func (r *runner) deniedEffect(rn *runnerNode) (string, bool) {
	for _, eff := range rn.effects {
		if !r.prov.Allowed(eff) {
			return eff, true
		}
	}
	return "", false
}

// deliverDomainError turns a declared domain failure into an error value on
// every result-typed output; undeclared or uncarriable failures halt the
// node's subgraph.
func (r *runner) deliverDomainError(res *unitResult, rn *runnerNode, tick uint64, de *DomainError) {
	var carriers []string
	for i := range rn.block.Outputs {
		name := rn.block.Outputs[i].Name
		if t := rn.outTypes[name]; t != nil && t.Kind == types.KindResult {
			carriers = append(carriers, name)
		}
	}
	if rn.block.DeclaresError(de.Domain) && len(carriers) > 0 {
		payload := ir.ErrValue(ir.StringValue(de.Error()))
		stamp := r.clock.NowMs()
		for _, port := range carriers {
			res.record(rn.id, port, payload)
			r.emit(res, rn, port, payload, stamp)
		}
		res.states[rn.id] = StateCompleted
		return
	}
	code := diag.UndeclaredError
	if de.Domain == CapabilityDeniedDomain {
		code = diag.CapabilityDenied
	}
	res.failures = append(res.failures, Failure{
		Node:    rn.id,
		Tick:    tick,
		Code:    code,
		Domain:  de.Domain,
		Message: de.Message,
	})
	res.states[rn.id] = StateFailed
}

// emit routes one output value: edges inside the unit take it immediately
// so the loop body sees it this tick, everything else waits for the wave
// barrier.
func (r *runner) emit(res *unitResult, rn *runnerNode, port string, v ir.Value, stamp uint64) {
	for _, st := range r.edges.outOf[rn.id] {
		if st.edge.From.Port != port {
			continue
		}
		if r.plan.UnitFor(st.edge.To.Node) == rn.unit {
			st.push(v, stamp, rn.id)
		} else {
			res.commits = append(res.commits, commit{st: st, val: v, stamp: stamp, src: rn.id})
		}
	}
}

func (rn *runnerNode) unknownOutput(out *Result) string {
	if len(out.Outputs) == 0 {
		return ""
	}
	names := make([]string, 0, len(out.Outputs))
	for name := range out.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := rn.outTypes[name]; !ok {
			return name
		}
	}
	return ""
}
