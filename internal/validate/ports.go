package validate

import (
	"fmt"
	"sort"
	"strings"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/types"
)

// Check 1: every edge connects an existing producer output to an existing
// consumer input with identical or whitelist-coercible types, and every
// required input is fed by exactly one edge (many-multiplicity ports fan in).

func (c *checker) checkPorts() {
	c.edgeTypes = make(map[string]*types.TypeSpec, len(c.g.Edges))
	for i := range c.g.Edges {
		c.checkEdgeTypes(&c.g.Edges[i])
	}
	for _, id := range c.order {
		c.checkNodeArity(c.nodes[id])
	}
}

func (c *checker) checkEdgeTypes(e *ir.Edge) {
	prod := c.producerType(e)
	consInfo, consPort := c.consumerPort(e)
	if consInfo == nil {
		return
	}
	cons := c.substituted(consPort.Type, consPort.Span, consInfo)
	if prod == nil || cons == nil {
		// Unknown side already produced a structural or inference report.
		return
	}

	compat := types.Compatible(prod, cons)
	switch compat.Kind {
	case types.Identical:
		c.edgeTypes[e.ID] = cons
		return
	case types.Coercible:
		switch e.Policy.Adapter {
		case "":
			diag.ReportWarning(c.rep, diag.AdapterSuggested, e.Span,
				fmt.Sprintf("edge %s coerces %s to %s; declare adapter %q to make the conversion explicit",
					e.ID, types.Canonical(prod), types.Canonical(cons), compat.Adapter)).Emit()
		case compat.Adapter:
			// Declared exactly what the coercion needs.
		default:
			diag.ReportError(c.rep, diag.TypeMismatch, e.Span,
				fmt.Sprintf("edge %s declares adapter %q but %s to %s needs %q",
					e.ID, e.Policy.Adapter, types.Canonical(prod), types.Canonical(cons), compat.Adapter)).Emit()
			return
		}
		c.edgeTypes[e.ID] = cons
		return
	default:
		if len(compat.MissingDefaults) > 0 {
			diag.ReportError(c.rep, diag.MissingDefaultForNewInput, e.Span,
				fmt.Sprintf("edge %s: consumer %s adds fields %s without optional defaults; the producer cannot satisfy them",
					e.ID, types.Canonical(cons), strings.Join(compat.MissingDefaults, ", "))).Emit()
			return
		}
		diag.ReportError(c.rep, diag.TypeMismatch, e.Span,
			fmt.Sprintf("edge %s: %s does not feed %s; insert an explicit adapter node",
				e.ID, types.Canonical(prod), types.Canonical(cons))).Emit()
	}
}

// checkNodeArity enforces exactly-one producer per single-multiplicity input
// and flags required inputs nothing feeds. Fan-in on many-multiplicity ports
// is legal and handled by the merge-policy check.
func (c *checker) checkNodeArity(info *nodeInfo) {
	if !info.bound() {
		return
	}
	for _, p := range c.inputPorts(info) {
		edges := c.edgesIntoPort(info.node.ID, p.Name)
		if len(edges) == 0 {
			if !p.Optional && !p.HasDefault() {
				diag.ReportError(c.rep, diag.InputUnconnected, info.node.Span,
					fmt.Sprintf("node %s input %q has no incoming edge, no default and is not optional", info.node.ID, p.Name)).Emit()
			}
			continue
		}
		if len(edges) == 1 {
			continue
		}
		// Declared multiplicity wins; undeclared follows the transport
		// shape, so stream-typed ports keep fanning in.
		fanIn := p.FansIn()
		if !fanIn && p.Multiplicity == ir.MultDefault {
			if t := c.substituted(p.Type, p.Span, info); t != nil && t.IsStreaming() {
				fanIn = true
			}
		}
		if fanIn {
			continue
		}
		ids := make([]string, len(edges))
		for i, e := range edges {
			ids[i] = e.ID
		}
		diag.ReportError(c.rep, diag.PortArityConflict, info.node.Span,
			fmt.Sprintf("node %s input %q is fed by %d edges (%s) but takes a single producer",
				info.node.ID, p.Name, len(edges), strings.Join(ids, ", "))).Emit()
	}
}

func (c *checker) inputPorts(info *nodeInfo) []ir.PortSpec {
	if info.block != nil {
		return info.block.Inputs
	}
	if info.sub != nil {
		return info.sub.Inputs
	}
	return nil
}

func (c *checker) edgesIntoPort(nodeID, port string) []*ir.Edge {
	var out []*ir.Edge
	for i := range c.g.Edges {
		e := &c.g.Edges[i]
		if e.To.Node == nodeID && e.To.Port == port {
			out = append(out, e)
		}
	}
	return out
}

// checkParams decodes every node's param literals against the declared
// types and fills defaults, so the scheduler receives a complete map.
func (c *checker) checkParams() {
	c.params = make(map[string]map[string]ir.Value)
	for _, id := range c.order {
		info := c.nodes[id]
		if !info.bound() {
			continue
		}
		decoded := make(map[string]ir.Value)

		names := make([]string, 0, len(info.node.Params))
		for name := range info.node.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := info.param(name)
			if p == nil {
				diag.ReportError(c.rep, diag.PortNotFound, info.node.Span,
					fmt.Sprintf("node %s sets param %q which %s does not declare", id, name, info.node.Ref)).Emit()
				continue
			}
			t := c.substituted(p.Type, p.Span, info)
			if t == nil {
				continue
			}
			v, err := ir.DecodeValue(info.node.Params[name], t)
			if err != nil {
				diag.ReportError(c.rep, diag.ParamTypeMismatch, info.node.Span,
					fmt.Sprintf("node %s param %q: %v", id, name, err)).Emit()
				continue
			}
			decoded[name] = v
		}

		if info.block != nil {
			for i := range info.block.Params {
				p := &info.block.Params[i]
				if _, set := decoded[p.Name]; set {
					continue
				}
				if p.HasDefault() {
					t := c.substituted(p.Type, p.Span, info)
					if t == nil {
						continue
					}
					v, err := ir.DecodeValue(p.Default, t)
					if err == nil {
						decoded[p.Name] = v
					}
					continue
				}
				if _, given := info.node.Params[p.Name]; !given && !p.Optional {
					diag.ReportError(c.rep, diag.ParamTypeMismatch, info.node.Span,
						fmt.Sprintf("node %s: required param %q has no value", id, p.Name)).Emit()
				}
			}
		}
		if len(decoded) > 0 {
			c.params[id] = decoded
		}
	}
}

// checkExports ties the graph's published outputs to real node outputs and
// pins their types.
func (c *checker) checkExports() {
	c.exportTypes = make(map[string]*types.TypeSpec, len(c.g.Exports))
	seen := make(map[string]bool, len(c.g.Exports))
	for i := range c.g.Exports {
		x := &c.g.Exports[i]
		if seen[x.ID] {
			diag.ReportError(c.rep, diag.ManifestField, x.Span,
				fmt.Sprintf("export %q declared twice", x.ID)).Emit()
			continue
		}
		seen[x.ID] = true

		info, ok := c.nodes[x.Node]
		if !ok {
			diag.ReportError(c.rep, diag.ExportInvalid, x.Span,
				fmt.Sprintf("export %s references unknown node %q", x.ID, x.Node)).Emit()
			continue
		}
		if !info.bound() {
			continue
		}
		p := info.output(x.Port)
		if p == nil {
			diag.ReportError(c.rep, diag.ExportInvalid, x.Span,
				fmt.Sprintf("export %s: node %s has no output %q", x.ID, x.Node, x.Port)).Emit()
			continue
		}
		concrete := c.substituted(p.Type, p.Span, info)
		if concrete == nil {
			continue
		}
		if x.Type != "" {
			declared := c.typeAt(x.Type, x.Span, "export "+x.ID)
			if declared == nil {
				continue
			}
			if free := types.FreeGenerics(declared); len(free) > 0 {
				diag.ReportError(c.rep, diag.GenericUnbound, x.Span,
					fmt.Sprintf("export %s type %s mentions unbound generics %v", x.ID, x.Type, free)).Emit()
				continue
			}
			if !types.Equal(declared, concrete) {
				diag.ReportError(c.rep, diag.TypeMismatch, x.Span,
					fmt.Sprintf("export %s declares %s but node %s port %s produces %s",
						x.ID, types.Canonical(declared), x.Node, x.Port, types.Canonical(concrete))).Emit()
				continue
			}
		}
		c.exportTypes[x.ID] = concrete
	}
}
