package validate

import (
	"fmt"
	"sort"
	"strings"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/trace"
)

// Check 4: the dataflow graph must be acyclic, with one exception: a cycle
// anchored by a stateful breaker block is a feedback loop the scheduler can
// run tick-by-tick, because the breaker emits the previous tick's state
// while accumulating the current one.

// statefulPatterns are the block-name shapes recognized as breakers. The
// whole local name, its last dotted segment or a trailing _suffix must
// match.
var statefulPatterns = []string{"fold", "reduce", "accumulator", "scan", "state"}

func statefulName(name string) bool {
	for _, p := range statefulPatterns {
		if name == p || strings.HasSuffix(name, "."+p) || strings.HasSuffix(name, "_"+p) {
			return true
		}
	}
	return false
}

type arc struct {
	to   string
	edge *ir.Edge
}

// adjacency builds the node-to-node graph: boundary endpoints drop out and
// parallel edges collapse to the first declared one. Successors are sorted
// so the walk, and therefore every diagnostic, is deterministic.
func (c *checker) adjacency() map[string][]arc {
	adj := make(map[string][]arc, len(c.order))
	seen := make(map[[2]string]bool, len(c.g.Edges))
	for i := range c.g.Edges {
		e := &c.g.Edges[i]
		if e.From.IsBoundary() || e.To.IsBoundary() {
			continue
		}
		if _, ok := c.nodes[e.From.Node]; !ok {
			continue
		}
		if _, ok := c.nodes[e.To.Node]; !ok {
			continue
		}
		key := [2]string{e.From.Node, e.To.Node}
		if seen[key] {
			continue
		}
		seen[key] = true
		adj[e.From.Node] = append(adj[e.From.Node], arc{to: e.To.Node, edge: e})
	}
	for _, arcs := range adj {
		sort.Slice(arcs, func(i, j int) bool { return arcs[i].to < arcs[j].to })
	}
	return adj
}

const (
	colorWhite = iota
	colorGrey
	colorBlack
)

func (c *checker) checkCycles() {
	adj := c.adjacency()
	color := make(map[string]int, len(c.order))
	var path []string
	var pathEdges []*ir.Edge // pathEdges[i] connects path[i] to path[i+1]

	var visit func(id string)
	visit = func(id string) {
		color[id] = colorGrey
		path = append(path, id)
		for _, a := range adj[id] {
			switch color[a.to] {
			case colorWhite:
				pathEdges = append(pathEdges, a.edge)
				visit(a.to)
				pathEdges = pathEdges[:len(pathEdges)-1]
			case colorGrey:
				c.recordCycle(path, pathEdges, a.to, a.edge)
			}
		}
		path = path[:len(path)-1]
		color[id] = colorBlack
	}

	for _, id := range c.order {
		if color[id] == colorWhite {
			visit(id)
		}
	}
}

// recordCycle handles one back edge: the cycle runs from the back target
// through the top of the DFS stack and closes over the back edge itself.
func (c *checker) recordCycle(path []string, pathEdges []*ir.Edge, backTo string, closing *ir.Edge) {
	start := 0
	for i, id := range path {
		if id == backTo {
			start = i
			break
		}
	}
	nodes := append([]string(nil), path[start:]...)
	edges := make([]string, 0, len(nodes))
	for _, e := range pathEdges[start:] {
		edges = append(edges, e.ID)
	}
	edges = append(edges, closing.ID)

	breaker := c.breakerFor(nodes)
	if breaker == "" {
		ring := strings.Join(append(append([]string(nil), nodes...), nodes[0]), " -> ")
		diag.ReportError(c.rep, diag.CycleDetected, closing.Span,
			fmt.Sprintf("cycle %s has no stateful breaker; add a fold/scan block or remove the back edge", ring)).Emit()
		return
	}
	c.cycles = append(c.cycles, CycleInfo{
		NodeIDs:            nodes,
		EdgeIDs:            edges,
		HasStatefulBreaker: true,
		BreakerNodeID:      breaker,
	})
	trace.Point(c.opts.Tracer, trace.ScopeGraph, "valid_cycle",
		fmt.Sprintf("%s (breaker %s)", strings.Join(nodes, " -> "), breaker), 0)
}

// breakerFor returns the first stateful block in cycle order, or "".
// Subgraphs never qualify: the breaker contract is a per-tick state cell,
// which only a block implementation can promise.
func (c *checker) breakerFor(nodeIDs []string) string {
	for _, id := range nodeIDs {
		info := c.nodes[id]
		if info == nil || info.block == nil {
			continue
		}
		if statefulName(info.name) {
			return id
		}
	}
	return ""
}
