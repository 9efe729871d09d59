package validate

import (
	"fmt"
	"sort"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/source"
	"loom/internal/types"
)

// Structural prechecks. These bind every node to its registry spec and make
// the id spaces sound; the five semantic checks skip anything left unbound
// here rather than failing twice.

// typeAt parses a type expression through the cache, reporting syntax errors
// once per distinct text.
func (c *checker) typeAt(text string, span source.Span, owner string) *types.TypeSpec {
	if t, ok := c.types[text]; ok {
		return t
	}
	if c.badTypes[text] {
		return nil
	}
	t, err := types.Parse(text)
	if err != nil {
		if c.badTypes == nil {
			c.badTypes = make(map[string]bool)
		}
		c.badTypes[text] = true
		diag.ReportError(c.rep, diag.TypeSyntax, span,
			fmt.Sprintf("%s: %v", owner, err)).Emit()
		return nil
	}
	c.types[text] = t
	return t
}

// pinFor returns the version a node's module resolves to: the resolution if
// one was supplied, otherwise the node's own pin.
func (c *checker) pinFor(module string, n *ir.Node) string {
	if c.res != nil {
		if v, ok := c.res.Version(module); ok {
			return v
		}
	}
	return n.Pinned
}

func (c *checker) bindNodes() {
	c.nodes = make(map[string]*nodeInfo, len(c.g.Nodes))
	for i := range c.g.Nodes {
		n := &c.g.Nodes[i]
		if _, dup := c.nodes[n.ID]; dup {
			diag.ReportError(c.rep, diag.DuplicateNode, n.Span,
				fmt.Sprintf("node id %q is used twice", n.ID)).Emit()
			continue
		}
		info := &nodeInfo{
			node:              n,
			bindings:          make(map[string]*types.TypeSpec),
			reportedConflicts: make(map[string]bool),
		}
		c.nodes[n.ID] = info
		c.order = append(c.order, n.ID)

		if n.ID == ir.InputNode || n.ID == ir.ConstNode {
			diag.ReportError(c.rep, diag.DuplicateNode, n.Span,
				fmt.Sprintf("node id %q is reserved for the graph boundary", n.ID)).Emit()
			continue
		}
		if n.Kind == ir.NodeMacro {
			diag.ReportError(c.rep, diag.MacroNotLowered, n.Span,
				fmt.Sprintf("macro node %s must be expanded to blocks before validation", n.ID)).Emit()
			continue
		}

		module, name, err := ir.SplitRef(n.Ref)
		if err != nil {
			diag.ReportError(c.rep, diag.ManifestField, n.Span,
				fmt.Sprintf("node %s: %v", n.ID, err)).Emit()
			continue
		}
		info.module, info.name = module, name

		version := c.pinFor(module, n)
		if version == "" {
			diag.ReportError(c.rep, diag.NodeUnresolved, n.Span,
				fmt.Sprintf("node %s has no pinned version for %s; resolve the graph first", n.ID, module)).Emit()
			continue
		}
		info.version = version

		if _, ok := c.reg.Module(module, version); !ok {
			diag.ReportError(c.rep, diag.ModuleNotFound, n.Span,
				fmt.Sprintf("node %s: module %s@%s is not registered", n.ID, module, version)).Emit()
			continue
		}

		switch n.Kind {
		case ir.NodeBlock:
			block, ok := c.reg.Block(module, version, name)
			if !ok {
				b := diag.ReportError(c.rep, diag.BlockNotFound, n.Span,
					fmt.Sprintf("node %s: module %s@%s publishes no block %q", n.ID, module, version, name))
				if _, isGraph := c.reg.Graph(module, version, name); isGraph {
					b.WithNote(n.Span, fmt.Sprintf("%q is a graph; set kind = \"subgraph\"", name))
				}
				b.Emit()
				continue
			}
			info.block = block
		case ir.NodeSubgraph:
			sub, ok := c.reg.Graph(module, version, name)
			if !ok {
				diag.ReportError(c.rep, diag.GraphNotFound, n.Span,
					fmt.Sprintf("node %s: module %s@%s publishes no graph %q", n.ID, module, version, name)).Emit()
				continue
			}
			info.sub = sub
		}
	}
	sort.Strings(c.order)
}

// checkGraphInputs types the boundary input ports. App graphs never pass
// through Register, so the shape rules run here.
func (c *checker) checkGraphInputs() {
	c.inputs = make(map[string]*types.TypeSpec, len(c.g.Inputs))
	for i := range c.g.Inputs {
		p := &c.g.Inputs[i]
		if _, dup := c.inputs[p.Name]; dup {
			diag.ReportError(c.rep, diag.PortNameDuplicate, p.Span,
				fmt.Sprintf("graph input %q declared twice", p.Name)).Emit()
			continue
		}
		t := c.typeAt(p.Type, p.Span, "graph input "+p.Name)
		if t == nil {
			continue
		}
		if free := types.FreeGenerics(t); len(free) > 0 {
			diag.ReportError(c.rep, diag.GenericUnbound, p.Span,
				fmt.Sprintf("graph input %q uses generics %v; only concrete graphs can be validated", p.Name, free)).Emit()
			continue
		}
		if !portKindAgrees(p.Kind, t) {
			diag.ReportError(c.rep, diag.PortKindMismatch, p.Span,
				fmt.Sprintf("graph input %q is declared %s but its type is %s", p.Name, p.Kind, p.Type)).Emit()
		}
		if p.HasDefault() {
			if _, err := ir.DecodeValue(p.Default, t); err != nil {
				diag.ReportError(c.rep, diag.DefaultTypeMismatch, p.Span,
					fmt.Sprintf("graph input %q default: %v", p.Name, err)).Emit()
			}
		}
		c.inputs[p.Name] = t
	}
}

func portKindAgrees(kind ir.PortKind, t *types.TypeSpec) bool {
	switch kind {
	case ir.PortStream:
		return t.Kind == types.KindStream
	case ir.PortEvent:
		return t.Kind == types.KindEvent
	case ir.PortComposite:
		switch t.Kind {
		case types.KindStruct, types.KindEnum, types.KindList, types.KindMap, types.KindTuple:
			return true
		}
		return false
	default:
		return !t.IsStreaming()
	}
}

// bindConsts parses and decodes the literal pool.
func (c *checker) bindConsts() {
	c.consts = make(map[string]*constInfo, len(c.g.Consts))
	for i := range c.g.Consts {
		cs := &c.g.Consts[i]
		if _, dup := c.consts[cs.ID]; dup {
			diag.ReportError(c.rep, diag.ManifestField, cs.Span,
				fmt.Sprintf("const %q declared twice", cs.ID)).Emit()
			continue
		}
		ci := &constInfo{spec: cs}
		c.consts[cs.ID] = ci

		t := c.typeAt(cs.Type, cs.Span, "const "+cs.ID)
		if t == nil {
			continue
		}
		if free := types.FreeGenerics(t); len(free) > 0 {
			diag.ReportError(c.rep, diag.GenericUnbound, cs.Span,
				fmt.Sprintf("const %q type %s mentions unbound generics %v", cs.ID, cs.Type, free)).Emit()
			continue
		}
		ci.typ = t
		v, err := ir.DecodeValue(cs.Value, t)
		if err != nil {
			diag.ReportError(c.rep, diag.ConstTypeMismatch, cs.Span,
				fmt.Sprintf("const %q: %v", cs.ID, err)).Emit()
			continue
		}
		ci.value = v
		ci.ok = true
	}
}

// checkEdgeEndpoints verifies ids and that both ends of every edge exist.
// Type work happens later; this is pure addressing.
func (c *checker) checkEdgeEndpoints() {
	seen := make(map[string]bool, len(c.g.Edges))
	for i := range c.g.Edges {
		e := &c.g.Edges[i]
		if seen[e.ID] {
			diag.ReportError(c.rep, diag.DuplicateEdge, e.Span,
				fmt.Sprintf("edge id %q is used twice", e.ID)).Emit()
			continue
		}
		seen[e.ID] = true

		c.checkProducerEndpoint(e)
		c.checkConsumerEndpoint(e)
	}
}

func (c *checker) checkProducerEndpoint(e *ir.Edge) {
	switch e.From.Node {
	case ir.InputNode:
		if c.g.Input(e.From.Port) == nil {
			diag.ReportError(c.rep, diag.PortNotFound, e.Span,
				fmt.Sprintf("edge %s reads graph input %q which is not declared", e.ID, e.From.Port)).Emit()
		}
	case ir.ConstNode:
		if _, ok := c.consts[e.From.Port]; !ok {
			diag.ReportError(c.rep, diag.ConstNotFound, e.Span,
				fmt.Sprintf("edge %s reads const %q which is not in the pool", e.ID, e.From.Port)).Emit()
		}
	default:
		info, ok := c.nodes[e.From.Node]
		if !ok {
			diag.ReportError(c.rep, diag.PortNotFound, e.Span,
				fmt.Sprintf("edge %s reads from unknown node %q", e.ID, e.From.Node)).Emit()
			return
		}
		if info.bound() && info.output(e.From.Port) == nil {
			diag.ReportError(c.rep, diag.PortNotFound, e.Span,
				fmt.Sprintf("edge %s: node %s has no output %q", e.ID, e.From.Node, e.From.Port)).Emit()
		}
	}
}

func (c *checker) checkConsumerEndpoint(e *ir.Edge) {
	if e.To.IsBoundary() {
		diag.ReportError(c.rep, diag.PortNotFound, e.Span,
			fmt.Sprintf("edge %s: %s cannot consume; exports publish graph outputs", e.ID, e.To.Node)).Emit()
		return
	}
	info, ok := c.nodes[e.To.Node]
	if !ok {
		diag.ReportError(c.rep, diag.PortNotFound, e.Span,
			fmt.Sprintf("edge %s feeds unknown node %q", e.ID, e.To.Node)).Emit()
		return
	}
	if info.bound() && info.input(e.To.Port) == nil {
		diag.ReportError(c.rep, diag.PortNotFound, e.Span,
			fmt.Sprintf("edge %s: node %s has no input %q", e.ID, e.To.Node, e.To.Port)).Emit()
	}
}

// producerType resolves the concrete type coming out of an edge's source, or
// nil when it is unknown (missing endpoint, unparsable text, unbound
// generics). Boundary producers are always concrete.
func (c *checker) producerType(e *ir.Edge) *types.TypeSpec {
	switch e.From.Node {
	case ir.InputNode:
		return c.inputs[e.From.Port]
	case ir.ConstNode:
		if ci, ok := c.consts[e.From.Port]; ok {
			return ci.typ
		}
		return nil
	default:
		info, ok := c.nodes[e.From.Node]
		if !ok || !info.bound() {
			return nil
		}
		p := info.output(e.From.Port)
		if p == nil {
			return nil
		}
		return c.substituted(p.Type, p.Span, info)
	}
}

// consumerPort returns the consuming node and its port spec, or nils.
func (c *checker) consumerPort(e *ir.Edge) (*nodeInfo, *ir.PortSpec) {
	info, ok := c.nodes[e.To.Node]
	if !ok || !info.bound() {
		return nil, nil
	}
	p := info.input(e.To.Port)
	if p == nil {
		return nil, nil
	}
	return info, p
}

// substituted parses a declared port type and applies the node's current
// bindings. Returns nil while generics remain unbound.
func (c *checker) substituted(text string, span source.Span, info *nodeInfo) *types.TypeSpec {
	t := c.typeAt(text, span, "node "+info.node.ID)
	if t == nil {
		return nil
	}
	free := types.FreeGenerics(t)
	if len(free) == 0 {
		return t
	}
	for _, name := range free {
		if _, ok := info.bindings[name]; !ok {
			return nil
		}
	}
	out, err := types.Substitute(t, info.bindings)
	if err != nil {
		return nil
	}
	return out
}
