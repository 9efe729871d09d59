package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"strings"

	"fortio.org/safecast"

	"loom/internal/ir"
	"loom/internal/validate"
)

// UnitID indexes the flat unit arena of a plan.
type UnitID uint32

// Unit is the scheduling granule: a single node, or a whole feedback loop
// condensed around its stateful breaker. Nodes lists the evaluation order
// inside the unit; for loops the breaker always runs first, consuming the
// previous tick's state while the body computes this tick's.
type Unit struct {
	ID      UnitID
	Nodes   []string
	Breaker string // empty for plain nodes
}

// Loop reports whether the unit is a condensed feedback loop.
func (u *Unit) Loop() bool { return u.Breaker != "" }

// ExecutionPlan is the deterministic execution layout for one validated
// graph: units in waves, where every unit in a wave only depends on earlier
// waves. Two plans over the same validated graph are identical.
type ExecutionPlan struct {
	Source *validate.ValidatedGraph
	Units  []Unit
	// Waves holds unit ids wave by wave, each wave sorted ascending.
	Waves [][]UnitID
	// Order is the flattened wave sequence; commits apply in this order.
	Order []UnitID
	// MaxConcurrency is the widest wave; a run never needs more workers.
	MaxConcurrency int
	// Digest identifies (validated digest, wave layout).
	Digest string

	unitOf map[string]UnitID
}

// UnitFor returns the unit a node belongs to.
func (p *ExecutionPlan) UnitFor(node string) UnitID { return p.unitOf[node] }

// Plan condenses the validated graph's loops into units and lays the units
// out in topological waves.
func Plan(vg *validate.ValidatedGraph) (*ExecutionPlan, error) {
	if vg == nil {
		return nil, fmt.Errorf("plan: nil validated graph")
	}
	nodeIDs := make([]string, 0, len(vg.Graph.Nodes))
	for i := range vg.Graph.Nodes {
		nodeIDs = append(nodeIDs, vg.Graph.Nodes[i].ID)
	}
	sort.Strings(nodeIDs)

	units, unitOf, err := condense(vg, nodeIDs)
	if err != nil {
		return nil, err
	}

	edges, indeg := unitGraph(vg, units, unitOf)
	waves, order, err := toposort(units, edges, indeg)
	if err != nil {
		return nil, err
	}

	p := &ExecutionPlan{
		Source: vg,
		Units:  units,
		Waves:  waves,
		Order:  order,
		unitOf: unitOf,
	}
	for _, wave := range waves {
		if len(wave) > p.MaxConcurrency {
			p.MaxConcurrency = len(wave)
		}
	}
	p.Digest = planDigest(vg.Digest, units, waves)
	return p, nil
}

// condense unions overlapping cycles into components and assigns unit ids in
// the order of each component's smallest node id.
func condense(vg *validate.ValidatedGraph, nodeIDs []string) ([]Unit, map[string]UnitID, error) {
	parent := make(map[string]string, len(nodeIDs))
	for _, id := range nodeIDs {
		parent[id] = id
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra < rb {
				parent[rb] = ra
			} else {
				parent[ra] = rb
			}
		}
	}
	for _, cy := range vg.Cycles {
		for i := 1; i < len(cy.NodeIDs); i++ {
			union(cy.NodeIDs[0], cy.NodeIDs[i])
		}
	}

	members := make(map[string][]string)
	for _, id := range nodeIDs {
		root := find(id)
		members[root] = append(members[root], id)
	}
	roots := make([]string, 0, len(members))
	for root := range members {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	units := make([]Unit, 0, len(roots))
	unitOf := make(map[string]UnitID, len(nodeIDs))
	for i, root := range roots {
		id, err := safecast.Conv[UnitID](i)
		if err != nil {
			return nil, nil, fmt.Errorf("plan: unit id overflow: %w", err)
		}
		u := Unit{ID: id, Breaker: breakerOf(vg, members[root])}
		u.Nodes = orderUnitNodes(vg, members[root], u.Breaker)
		units = append(units, u)
		for _, n := range u.Nodes {
			unitOf[n] = id
		}
	}
	return units, unitOf, nil
}

// breakerOf picks the unit's anchor: the smallest breaker id among the
// cycles folded into it.
func breakerOf(vg *validate.ValidatedGraph, members []string) string {
	inUnit := make(map[string]bool, len(members))
	for _, m := range members {
		inUnit[m] = true
	}
	breaker := ""
	for _, cy := range vg.Cycles {
		if len(cy.NodeIDs) == 0 || !inUnit[cy.NodeIDs[0]] {
			continue
		}
		if breaker == "" || cy.BreakerNodeID < breaker {
			breaker = cy.BreakerNodeID
		}
	}
	return breaker
}

// orderUnitNodes fixes the intra-unit evaluation order. A loop starts at its
// breaker and walks forward along the loop's edges with sorted successors;
// plain units are their single node.
func orderUnitNodes(vg *validate.ValidatedGraph, members []string, breaker string) []string {
	sort.Strings(members)
	if breaker == "" || len(members) == 1 {
		return members
	}
	inUnit := make(map[string]bool, len(members))
	for _, m := range members {
		inUnit[m] = true
	}
	succ := make(map[string][]string, len(members))
	for i := range vg.Graph.Edges {
		e := &vg.Graph.Edges[i]
		if inUnit[e.From.Node] && inUnit[e.To.Node] && e.From.Node != e.To.Node {
			succ[e.From.Node] = append(succ[e.From.Node], e.To.Node)
		}
	}
	for _, s := range succ {
		sort.Strings(s)
	}

	order := make([]string, 0, len(members))
	seen := make(map[string]bool, len(members))
	var walk func(string)
	walk = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		order = append(order, id)
		for _, next := range succ[id] {
			walk(next)
		}
	}
	walk(breaker)
	for _, m := range members {
		if !seen[m] {
			order = append(order, m)
		}
	}
	return order
}

// unitGraph projects node edges onto units as unit-indexed flat arrays for
// the Kahn walk. Parallel unit edges collapse.
func unitGraph(vg *validate.ValidatedGraph, units []Unit, unitOf map[string]UnitID) ([][]UnitID, []int) {
	edges := make([][]UnitID, len(units))
	indeg := make([]int, len(units))
	seen := make(map[[2]UnitID]bool, len(vg.Graph.Edges))
	for i := range vg.Graph.Edges {
		e := &vg.Graph.Edges[i]
		if e.From.IsBoundary() || e.To.IsBoundary() {
			continue
		}
		from, okF := unitOf[e.From.Node]
		to, okT := unitOf[e.To.Node]
		if !okF || !okT || from == to {
			continue
		}
		key := [2]UnitID{from, to}
		if seen[key] {
			continue
		}
		seen[key] = true
		edges[from] = append(edges[from], to)
		indeg[to]++
	}
	for i := range edges {
		if len(edges[i]) > 1 {
			slices.Sort(edges[i])
		}
	}
	return edges, indeg
}

func toposort(units []Unit, edges [][]UnitID, indeg []int) ([][]UnitID, []UnitID, error) {
	remaining := make([]int, len(indeg))
	copy(remaining, indeg)

	current := make([]UnitID, 0, len(units))
	for i := range units {
		if remaining[i] == 0 {
			current = append(current, units[i].ID)
		}
	}
	slices.Sort(current)

	waves := make([][]UnitID, 0)
	order := make([]UnitID, 0, len(units))
	for len(current) > 0 {
		wave := make([]UnitID, len(current))
		copy(wave, current)
		waves = append(waves, wave)

		next := make([]UnitID, 0)
		for _, id := range wave {
			order = append(order, id)
			for _, to := range edges[int(id)] {
				remaining[int(to)]--
				if remaining[int(to)] == 0 {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		current = next
	}
	if len(order) != len(units) {
		return nil, nil, fmt.Errorf("plan: %d units left in an unbroken cycle", len(units)-len(order))
	}
	return waves, order, nil
}

func planDigest(base string, units []Unit, waves [][]UnitID) string {
	var sb strings.Builder
	sb.WriteString(base)
	for _, u := range units {
		fmt.Fprintf(&sb, ";u%d=%s", u.ID, strings.Join(u.Nodes, ","))
		if u.Breaker != "" {
			fmt.Fprintf(&sb, "!%s", u.Breaker)
		}
	}
	for _, wave := range waves {
		sb.WriteString(";w")
		for _, id := range wave {
			fmt.Fprintf(&sb, " %d", id)
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// nodeSpec joins a node with its pinned block or subgraph for execution.
type nodeSpec struct {
	node  *ir.Node
	block *ir.BlockSpec
	sub   *ir.GraphSpec
}

func (p *ExecutionPlan) specFor(id string) nodeSpec {
	return nodeSpec{
		node:  p.Source.Graph.Node(id),
		block: p.Source.Blocks[id],
		sub:   p.Source.Subgraphs[id],
	}
}
