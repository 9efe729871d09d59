package registry

import (
	"errors"
	"fmt"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/types"
)

// ErrInlineFailed is returned when subgraph inlining cannot produce a flat
// graph. Details are on the reporter.
var ErrInlineFailed = errors.New("registry: inlining failed")

// maxInlineDepth bounds the number of flattening rounds. Each round expands
// one level of nesting, so hitting the cap means a published graph includes
// itself (directly or through a chain).
const maxInlineDepth = 32

// Inline replaces every subgraph node with the body of the published graph
// it references, repeating until only block and macro nodes remain. Edges
// crossing the subgraph boundary are re-spliced onto the child's real
// producers and consumers, child ids are prefixed with the subgraph node id,
// and generic bindings on the subgraph node are substituted into the child's
// type texts.
//
// The caller is expected to have resolved the graph first: child versions
// come from node pins or from res. The input graph is not modified; when
// there is nothing to inline the input is returned as-is.
func (r *Registry) Inline(g *ir.GraphSpec, res *Resolution, rep diag.Reporter) (*ir.GraphSpec, error) {
	if g == nil {
		return nil, errors.New("registry: nil graph")
	}
	out := g
	for depth := 0; hasSubgraphs(out); depth++ {
		if depth >= maxInlineDepth {
			diag.ReportError(rep, diag.ResolutionConflict, g.Span,
				fmt.Sprintf("graph %s still contains subgraph nodes after %d rounds of inlining; a published graph appears to include itself", g.Name, maxInlineDepth)).Emit()
			return nil, ErrInlineFailed
		}
		next, ok := r.inlineOnce(out, res, rep)
		if !ok {
			return nil, ErrInlineFailed
		}
		out = next
	}
	return out, nil
}

func hasSubgraphs(g *ir.GraphSpec) bool {
	for i := range g.Nodes {
		if g.Nodes[i].Kind == ir.NodeSubgraph {
			return true
		}
	}
	return false
}

// expansion is one subgraph node paired with the child graph it pulls in.
type expansion struct {
	node   *ir.Node
	prefix string
	sub    *ir.GraphSpec
	bind   map[string]*types.TypeSpec
	fed    map[string]bool // child input ports covered by parent edges
}

// inlineOnce expands exactly one level of nesting. Nested subgraph nodes
// inside a child are copied through (with their pins filled in) and picked
// up by the next round.
func (r *Registry) inlineOnce(g *ir.GraphSpec, res *Resolution, rep diag.Reporter) (*ir.GraphSpec, bool) {
	subs := make(map[string]*expansion)
	ok := true
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.Kind != ir.NodeSubgraph {
			continue
		}
		x, loaded := r.loadExpansion(n, res, rep)
		if !loaded {
			ok = false
			continue
		}
		subs[n.ID] = x
	}
	if !ok {
		return nil, false
	}

	out := *g
	out.Nodes = make([]ir.Node, 0, len(g.Nodes))
	out.Edges = make([]ir.Edge, 0, len(g.Edges))
	out.Consts = append([]ir.Const(nil), g.Consts...)
	out.Exports = append([]ir.Export(nil), g.Exports...)
	out.Requires = append([]ir.ModuleReq(nil), g.Requires...)

	for i := range g.Nodes {
		n := &g.Nodes[i]
		x := subs[n.ID]
		if x == nil {
			out.Nodes = append(out.Nodes, *n)
			continue
		}
		if !x.splice(&out, res, rep) {
			ok = false
		}
	}

	for i := range g.Edges {
		e := g.Edges[i]
		from, fromOK := spliceFrom(subs, e, rep)
		if !fromOK {
			ok = false
			continue
		}
		to := subs[e.To.Node]
		if to == nil {
			e.From = from
			out.Edges = append(out.Edges, e)
			continue
		}
		to.fed[e.To.Port] = true
		for _, ce := range to.consumersOf(e.To.Port) {
			out.Edges = append(out.Edges, ir.Edge{
				ID:     e.ID + "." + ce.ID,
				From:   from,
				To:     ir.Endpoint{Node: to.prefix + ce.To.Node, Port: ce.To.Port},
				Policy: splicePolicy(e.Policy, ce.Policy),
				Span:   e.Span,
			})
		}
	}

	for _, x := range subs {
		if !x.defaultConsts(&out, rep) {
			ok = false
		}
	}

	for i := range out.Exports {
		ex := &out.Exports[i]
		x := subs[ex.Node]
		if x == nil {
			continue
		}
		ce := x.exportOf(ex.Port)
		if ce == nil {
			diag.ReportError(rep, diag.ExportInvalid, ex.Span,
				fmt.Sprintf("export %s: graph %s publishes no export %q", ex.ID, x.node.Ref, ex.Port)).Emit()
			ok = false
			continue
		}
		ex.Node = x.prefix + ce.Node
		ex.Port = ce.Port
	}
	return &out, ok
}

func (r *Registry) loadExpansion(n *ir.Node, res *Resolution, rep diag.Reporter) (*expansion, bool) {
	module, name, err := ir.SplitRef(n.Ref)
	if err != nil {
		diag.ReportError(rep, diag.ManifestField, n.Span,
			fmt.Sprintf("node %s: %v", n.ID, err)).Emit()
		return nil, false
	}
	version := pinOf(n, module, res)
	if version == "" {
		diag.ReportError(rep, diag.NodeUnresolved, n.Span,
			fmt.Sprintf("node %s: no version pinned for module %s; resolve the graph before inlining", n.ID, module)).Emit()
		return nil, false
	}
	sub, found := r.Graph(module, version, name)
	if !found {
		diag.ReportError(rep, diag.GraphNotFound, n.Span,
			fmt.Sprintf("node %s: module %s@%s publishes no graph %q", n.ID, module, version, name)).Emit()
		return nil, false
	}
	x := &expansion{
		node:   n,
		prefix: n.ID + ".",
		sub:    sub,
		fed:    make(map[string]bool),
	}
	if len(n.Generics) > 0 {
		x.bind = make(map[string]*types.TypeSpec, len(n.Generics))
		for param, text := range n.Generics {
			t, perr := types.Parse(text)
			if perr != nil {
				diag.ReportError(rep, diag.TypeSyntax, n.Span,
					fmt.Sprintf("node %s: generic %s: %v", n.ID, param, perr)).Emit()
				return nil, false
			}
			x.bind[param] = t
		}
	}
	return x, true
}

func pinOf(n *ir.Node, module string, res *Resolution) string {
	if n.Pinned != "" {
		return n.Pinned
	}
	if res != nil {
		if v, ok := res.Version(module); ok {
			return v
		}
	}
	return ""
}

// splice copies the child's nodes, interior edges, and consts into out under
// the expansion's id prefix.
func (x *expansion) splice(out *ir.GraphSpec, res *Resolution, rep diag.Reporter) bool {
	ok := true
	for i := range x.sub.Nodes {
		cn := x.sub.Nodes[i]
		cn.ID = x.prefix + cn.ID
		if cn.Pinned == "" {
			if module, _, err := ir.SplitRef(cn.Ref); err == nil {
				cn.Pinned = pinOf(&cn, module, res)
			}
		}
		if !x.rewriteGenerics(&cn, rep) {
			ok = false
		}
		out.Nodes = append(out.Nodes, cn)
	}
	for i := range x.sub.Consts {
		cc := x.sub.Consts[i]
		cc.ID = x.prefix + cc.ID
		typ, err := x.rewriteType(cc.Type)
		if err != nil {
			diag.ReportError(rep, diag.TypeSyntax, cc.Span,
				fmt.Sprintf("const %s: %v", cc.ID, err)).Emit()
			ok = false
			continue
		}
		cc.Type = typ
		out.Consts = append(out.Consts, cc)
	}
	for i := range x.sub.Edges {
		ce := x.sub.Edges[i]
		if ce.From.Node == ir.InputNode {
			continue // boundary edge, re-spliced from the parent side
		}
		ce.ID = x.prefix + ce.ID
		if ce.From.Node == ir.ConstNode {
			ce.From.Port = x.prefix + ce.From.Port
		} else {
			ce.From.Node = x.prefix + ce.From.Node
		}
		ce.To.Node = x.prefix + ce.To.Node
		out.Edges = append(out.Edges, ce)
	}
	out.Requires = append(out.Requires, x.sub.Requires...)
	return ok
}

// defaultConsts covers child inputs the parent left unconnected: when the
// child declares a default, a synthesized const feeds the child's consumers
// the way the input would have.
func (x *expansion) defaultConsts(out *ir.GraphSpec, rep diag.Reporter) bool {
	ok := true
	for i := range x.sub.Inputs {
		in := &x.sub.Inputs[i]
		if x.fed[in.Name] || !in.HasDefault() {
			continue
		}
		consumers := x.consumersOf(in.Name)
		if len(consumers) == 0 {
			continue
		}
		typ, err := x.rewriteType(in.Type)
		if err != nil {
			diag.ReportError(rep, diag.TypeSyntax, in.Span,
				fmt.Sprintf("input %s: %v", in.Name, err)).Emit()
			ok = false
			continue
		}
		id := x.prefix + in.Name + ".default"
		out.Consts = append(out.Consts, ir.Const{
			ID:    id,
			Type:  typ,
			Value: in.Default,
			Span:  in.Span,
		})
		for _, ce := range consumers {
			out.Edges = append(out.Edges, ir.Edge{
				ID:     x.prefix + ce.ID,
				From:   ir.Endpoint{Node: ir.ConstNode, Port: id},
				To:     ir.Endpoint{Node: x.prefix + ce.To.Node, Port: ce.To.Port},
				Policy: ce.Policy,
				Span:   ce.Span,
			})
		}
	}
	return ok
}

func (x *expansion) consumersOf(input string) []*ir.Edge {
	var edges []*ir.Edge
	for i := range x.sub.Edges {
		ce := &x.sub.Edges[i]
		if ce.From.Node == ir.InputNode && ce.From.Port == input {
			edges = append(edges, ce)
		}
	}
	return edges
}

func (x *expansion) exportOf(id string) *ir.Export {
	for i := range x.sub.Exports {
		if x.sub.Exports[i].ID == id {
			return &x.sub.Exports[i]
		}
	}
	return nil
}

// rewriteGenerics substitutes the subgraph node's generic bindings into a
// spliced child node's own binding texts, so "T" declared by the child graph
// becomes whatever the parent bound it to.
func (x *expansion) rewriteGenerics(cn *ir.Node, rep diag.Reporter) bool {
	if len(cn.Generics) == 0 || len(x.bind) == 0 {
		return true
	}
	rewritten := make(map[string]string, len(cn.Generics))
	for param, text := range cn.Generics {
		typ, err := x.rewriteType(text)
		if err != nil {
			diag.ReportError(rep, diag.TypeSyntax, cn.Span,
				fmt.Sprintf("node %s: generic %s: %v", cn.ID, param, err)).Emit()
			return false
		}
		rewritten[param] = typ
	}
	cn.Generics = rewritten
	return true
}

func (x *expansion) rewriteType(text string) (string, error) {
	if text == "" || len(x.bind) == 0 {
		return text, nil
	}
	t, err := types.Parse(text)
	if err != nil {
		return "", err
	}
	t, err = types.Substitute(t, x.bind)
	if err != nil {
		return "", err
	}
	return t.String(), nil
}

// spliceFrom rewrites an edge's producer endpoint when it reads from a
// subgraph node's export.
func spliceFrom(subs map[string]*expansion, e ir.Edge, rep diag.Reporter) (ir.Endpoint, bool) {
	x := subs[e.From.Node]
	if x == nil {
		return e.From, true
	}
	ce := x.exportOf(e.From.Port)
	if ce == nil {
		diag.ReportError(rep, diag.ExportInvalid, e.Span,
			fmt.Sprintf("edge %s: graph %s publishes no export %q", e.ID, x.node.Ref, e.From.Port)).Emit()
		return ir.Endpoint{}, false
	}
	return ir.Endpoint{Node: x.prefix + ce.Node, Port: ce.Port}, true
}

// splicePolicy combines the parent edge's policy with the child consumer
// edge's. The consumer side wins: it knows its own buffering. The parent
// fills in whatever the child left unset. An explicit "block" on the child
// edge is indistinguishable from unset, so an outer policy overrides it.
func splicePolicy(outer, inner ir.EdgePolicy) ir.EdgePolicy {
	p := inner
	if p.Adapter == "" {
		p.Adapter = outer.Adapter
		p.AdapterParams = outer.AdapterParams
	}
	if p.Backpressure == ir.BackpressureBlock {
		p.Backpressure = outer.Backpressure
	}
	if p.Bound == 0 {
		p.Bound = outer.Bound
	}
	if p.Merge == "" {
		p.Merge = outer.Merge
		p.MergeCustom = outer.MergeCustom
	}
	return p
}
