package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/registry"
	"loom/internal/trace"
	"loom/internal/types"
)

// DefaultMaxDiagnostics bounds the bag when the caller does not care.
const DefaultMaxDiagnostics = 128

// Options tune severity decisions that depend on how the graph will be used.
type Options struct {
	// MaxDiagnostics caps the bag; 0 means DefaultMaxDiagnostics.
	MaxDiagnostics int
	// Publish upgrades reproducibility findings from warning to error:
	// published graphs must be deterministic under a seed and virtual clock.
	Publish bool
	// Seeded promises the runner will supply a fixed random seed, silencing
	// NonDeterminismNotSeeded for entropy_dependent nodes without their own
	// seed param.
	Seeded bool
	// VirtualClock promises the runner will drive time_dependent nodes from
	// a simulated clock.
	VirtualClock bool
	// Tracer receives graph-scope events (accepted feedback cycles); nil
	// means off.
	Tracer trace.Tracer
}

// CycleInfo describes one cycle found in the graph, ordered along the walk.
// A cycle is legal only when anchored by a stateful breaker; the scheduler
// uses BreakerNodeID to unit-schedule the loop.
type CycleInfo struct {
	NodeIDs            []string
	EdgeIDs            []string
	HasStatefulBreaker bool
	BreakerNodeID      string
}

// ValidatedGraph is the scheduler's input: the pinned graph plus everything
// validation already resolved so later phases never re-derive it.
type ValidatedGraph struct {
	Graph *ir.GraphSpec
	// Pins maps every referenced module to the version validation used.
	Pins map[string]string
	// Blocks and Subgraphs resolve node ids to their registry specs.
	Blocks    map[string]*ir.BlockSpec
	Subgraphs map[string]*ir.GraphSpec
	// Bindings hold the inferred concrete type per generic per node.
	Bindings map[string]map[string]*types.TypeSpec
	// Consts and Params are the decoded literal pools.
	Consts map[string]ir.Value
	Params map[string]map[string]ir.Value
	// EdgeTypes is the concrete consumer-side type flowing on each edge.
	EdgeTypes map[string]*types.TypeSpec
	// InputTypes and ExportTypes type the graph boundary.
	InputTypes  map[string]*types.TypeSpec
	ExportTypes map[string]*types.TypeSpec
	// Cycles lists every breaker-anchored cycle (invalid ones already failed
	// validation).
	Cycles []CycleInfo
	// Effects is the sorted union of node effects.
	Effects []string
	// Digest identifies (canonical IR, pins); reproducible builds key on it.
	Digest string
}

// MergeFor returns the effective fan-in policy for an edge: the edge's own
// declaration, falling back to the consuming node's default.
func (vg *ValidatedGraph) MergeFor(e *ir.Edge) (policy, custom string) {
	if e.Policy.Merge != "" {
		return e.Policy.Merge, e.Policy.MergeCustom
	}
	if n := vg.Graph.Node(e.To.Node); n != nil {
		return n.Merge, n.MergeCustom
	}
	return "", ""
}

// Validate runs every check against the pinned graph. The resolution may be
// nil when nodes already carry Pinned versions (e.g. replayed from a
// lockfile). The returned bag always carries all findings; the graph is only
// usable when it contains no errors.
func Validate(g *ir.GraphSpec, reg *registry.Registry, res *registry.Resolution, opts Options) (*ValidatedGraph, *diag.Bag) {
	if opts.MaxDiagnostics <= 0 {
		opts.MaxDiagnostics = DefaultMaxDiagnostics
	}
	bag := diag.NewBag(opts.MaxDiagnostics)
	c := &checker{
		g:     g,
		reg:   reg,
		res:   res,
		opts:  opts,
		rep:   diag.BagReporter{Bag: bag},
		types: make(map[string]*types.TypeSpec),
	}

	c.bindNodes()
	c.checkGraphInputs()
	c.bindConsts()
	c.checkEdgeEndpoints()

	c.inferGenerics()
	c.checkBounds()

	c.checkPorts()
	c.checkParams()
	c.checkExports()
	c.checkEffects()
	c.checkStreams()
	c.checkCycles()

	bag.Sort()
	if bag.HasErrors() {
		return nil, bag
	}
	return c.finish(), bag
}

// checker carries the working state shared by the phases. All maps are keyed
// by ids from the IR; iteration always goes through sorted key slices so
// diagnostics come out in a stable order.
type checker struct {
	g    *ir.GraphSpec
	reg  *registry.Registry
	res  *registry.Resolution
	opts Options
	rep  diag.Reporter

	nodes  map[string]*nodeInfo
	order  []string // sorted node ids
	inputs map[string]*types.TypeSpec
	consts map[string]*constInfo
	params map[string]map[string]ir.Value

	edgeTypes   map[string]*types.TypeSpec
	exportTypes map[string]*types.TypeSpec
	cycles      []CycleInfo
	effects     []string

	// types caches parsed type expressions; badTypes dedups syntax reports.
	types    map[string]*types.TypeSpec
	badTypes map[string]bool
}

// nodeInfo is a node joined with its registry spec. Exactly one of block and
// sub is set once binding succeeds.
type nodeInfo struct {
	node    *ir.Node
	module  string
	name    string
	version string
	block   *ir.BlockSpec
	sub     *ir.GraphSpec

	bindings map[string]*types.TypeSpec
	// reportedConflicts dedups TypeMismatch per generic during inference.
	reportedConflicts map[string]bool
}

type constInfo struct {
	spec  *ir.Const
	typ   *types.TypeSpec
	value ir.Value
	ok    bool
}

func (n *nodeInfo) bound() bool { return n.block != nil || n.sub != nil }

func (n *nodeInfo) input(name string) *ir.PortSpec {
	if n.block != nil {
		return n.block.Input(name)
	}
	if n.sub != nil {
		return n.sub.Input(name)
	}
	return nil
}

// output resolves a named output port. Subgraph outputs are their exports:
// the export id is the port name and the export's declared type is the port
// type.
func (n *nodeInfo) output(name string) *ir.PortSpec {
	if n.block != nil {
		return n.block.Output(name)
	}
	if n.sub != nil {
		if x := n.sub.Export(name); x != nil {
			return &ir.PortSpec{Name: x.ID, Type: x.Type, Span: x.Span}
		}
	}
	return nil
}

func (n *nodeInfo) param(name string) *ir.PortSpec {
	if n.block != nil {
		return n.block.Param(name)
	}
	return nil
}

func (n *nodeInfo) generics() []ir.GenericParam {
	if n.block != nil {
		return n.block.Generics
	}
	if n.sub != nil {
		return n.sub.Generics
	}
	return nil
}

func (n *nodeInfo) effectList() []string {
	if n.block != nil {
		return n.block.Effects
	}
	if n.sub != nil {
		return n.sub.Effects
	}
	return nil
}

// effectful reports whether the node lives on the effect side of the
// boundary rule.
func (n *nodeInfo) effectful() bool {
	if n.block != nil {
		return n.block.Purity == ir.PurityEffect
	}
	if n.sub != nil {
		return len(n.sub.Effects) > 0
	}
	return false
}

func (n *nodeInfo) isBoundary() bool {
	return n.block != nil && n.block.Boundary
}

func (n *nodeInfo) determinism() ir.Determinism {
	if n.block != nil {
		return n.block.Determinism
	}
	return ir.DetPure
}

func (c *checker) finish() *ValidatedGraph {
	vg := &ValidatedGraph{
		Graph:       c.g,
		Pins:        make(map[string]string),
		Blocks:      make(map[string]*ir.BlockSpec),
		Subgraphs:   make(map[string]*ir.GraphSpec),
		Bindings:    make(map[string]map[string]*types.TypeSpec),
		Consts:      make(map[string]ir.Value),
		Params:      c.params,
		EdgeTypes:   c.edgeTypes,
		InputTypes:  c.inputs,
		ExportTypes: c.exportTypes,
		Cycles:      c.cycles,
		Effects:     c.effects,
	}
	for _, id := range c.order {
		info := c.nodes[id]
		if !info.bound() {
			continue
		}
		vg.Pins[info.module] = info.version
		if info.block != nil {
			vg.Blocks[id] = info.block
		} else {
			vg.Subgraphs[id] = info.sub
		}
		if len(info.bindings) > 0 {
			vg.Bindings[id] = info.bindings
		}
	}
	for id, ci := range c.consts {
		if ci.ok {
			vg.Consts[id] = ci.value
		}
	}
	vg.Digest = validatedDigest(c.g, vg.Pins)
	return vg
}

// validatedDigest folds the pin set into the graph's content digest so two
// validations of the same IR against different registry states are
// distinguishable.
func validatedDigest(g *ir.GraphSpec, pins map[string]string) string {
	var sb strings.Builder
	sb.WriteString(ir.GraphDigest(g))
	modules := make([]string, 0, len(pins))
	for m := range pins {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		fmt.Fprintf(&sb, ";%s@%s", m, pins[m])
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return "sha256:" + hex.EncodeToString(sum[:])
}
