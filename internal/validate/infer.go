package validate

import (
	"fmt"
	"sort"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/types"
)

// Generic inference. Bindings start from the explicit generics map on each
// node, then flow along edges until a fixpoint: a concrete producer type
// unified against a consumer's declared pattern binds the consumer's type
// variables, and vice versa. Conflicting evidence widens when the coercion
// table allows it and is an error otherwise.

func (c *checker) inferGenerics() {
	c.seedExplicitBindings()
	// Each round can propagate bindings one node further along the longest
	// path, so len(order) rounds always suffice; the slack absorbs the
	// widen-rebind case.
	for round := 0; round < len(c.order)+2; round++ {
		changed := false
		for i := range c.g.Edges {
			if c.inferEdge(&c.g.Edges[i]) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func (c *checker) seedExplicitBindings() {
	for _, id := range c.order {
		info := c.nodes[id]
		if !info.bound() || len(info.node.Generics) == 0 {
			continue
		}
		names := make([]string, 0, len(info.node.Generics))
		for name := range info.node.Generics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if c.findGeneric(info, name) == nil {
				diag.ReportError(c.rep, diag.ManifestField, info.node.Span,
					fmt.Sprintf("node %s binds generic %q which %s does not declare", id, name, info.node.Ref)).Emit()
				continue
			}
			text := info.node.Generics[name]
			t := c.typeAt(text, info.node.Span, fmt.Sprintf("node %s generic %s", id, name))
			if t == nil {
				continue
			}
			if free := types.FreeGenerics(t); len(free) > 0 {
				diag.ReportError(c.rep, diag.GenericUnbound, info.node.Span,
					fmt.Sprintf("node %s: generic %s binding %s mentions unbound generics %v", id, name, text, free)).Emit()
				continue
			}
			info.bindings[name] = t
		}
	}
}

func (c *checker) findGeneric(info *nodeInfo, name string) *ir.GenericParam {
	gps := info.generics()
	for i := range gps {
		if gps[i].Name == name {
			return &gps[i]
		}
	}
	return nil
}

// inferEdge tries both directions on one edge and reports whether any
// binding moved.
func (c *checker) inferEdge(e *ir.Edge) bool {
	consInfo, consPort := c.consumerPort(e)
	if consInfo == nil {
		return false
	}
	consPattern := c.typeAt(consPort.Type, consPort.Span, "node "+consInfo.node.ID)
	if consPattern == nil {
		return false
	}

	changed := false
	if len(types.FreeGenerics(consPattern)) > 0 {
		if prod := c.producerType(e); prod != nil {
			changed = c.unify(consPattern, prod, consInfo, e)
		}
	}

	// Reverse direction: a concrete consumer port constrains the producer's
	// generics. Boundary producers carry no generics.
	if e.From.IsBoundary() {
		return changed
	}
	prodInfo, ok := c.nodes[e.From.Node]
	if !ok || !prodInfo.bound() {
		return changed
	}
	prodPort := prodInfo.output(e.From.Port)
	if prodPort == nil {
		return changed
	}
	prodPattern := c.typeAt(prodPort.Type, prodPort.Span, "node "+prodInfo.node.ID)
	if prodPattern == nil || len(types.FreeGenerics(prodPattern)) == 0 {
		return changed
	}
	if cons := c.substituted(consPort.Type, consPort.Span, consInfo); cons != nil {
		if c.unify(prodPattern, cons, prodInfo, e) {
			changed = true
		}
	}
	return changed
}

// unify matches a declared pattern against a concrete type, binding the
// owning node's generics. Structural mismatches are reported once per edge;
// genuine binding conflicts once per generic.
func (c *checker) unify(pattern, concrete *types.TypeSpec, info *nodeInfo, e *ir.Edge) bool {
	changed, ok := c.unifyInto(pattern, concrete, info)
	if !ok {
		key := "edge:" + e.ID
		if !info.reportedConflicts[key] {
			info.reportedConflicts[key] = true
			diag.ReportError(c.rep, diag.TypeMismatch, e.Span,
				fmt.Sprintf("edge %s: cannot match %s against %s while inferring generics for node %s",
					e.ID, types.Canonical(pattern), types.Canonical(concrete), info.node.ID)).Emit()
		}
	}
	return changed
}

func (c *checker) unifyInto(pattern, concrete *types.TypeSpec, info *nodeInfo) (changed, ok bool) {
	if pattern.Kind == types.KindGeneric {
		return c.bindGeneric(pattern.Name, concrete, info)
	}
	if pattern.Kind != concrete.Kind {
		return false, false
	}
	switch pattern.Kind {
	case types.KindList, types.KindMap, types.KindOption, types.KindStream, types.KindEvent:
		return c.unifyInto(pattern.Elem, concrete.Elem, info)
	case types.KindResult:
		ch1, ok1 := c.unifyInto(pattern.Ok, concrete.Ok, info)
		if !ok1 {
			return ch1, false
		}
		ch2, ok2 := c.unifyInto(pattern.Err, concrete.Err, info)
		return ch1 || ch2, ok2
	case types.KindTuple:
		if len(pattern.Elems) != len(concrete.Elems) {
			return false, false
		}
		for i := range pattern.Elems {
			ch, ok := c.unifyInto(pattern.Elems[i], concrete.Elems[i], info)
			changed = changed || ch
			if !ok {
				return changed, false
			}
		}
		return changed, true
	case types.KindStruct:
		if pattern.Name != concrete.Name || len(pattern.Fields) != len(concrete.Fields) {
			return false, false
		}
		byName := make(map[string]*types.TypeSpec, len(concrete.Fields))
		for i := range concrete.Fields {
			byName[concrete.Fields[i].Name] = concrete.Fields[i].Type
		}
		for i := range pattern.Fields {
			ft, present := byName[pattern.Fields[i].Name]
			if !present {
				return changed, false
			}
			ch, ok := c.unifyInto(pattern.Fields[i].Type, ft, info)
			changed = changed || ch
			if !ok {
				return changed, false
			}
		}
		return changed, true
	case types.KindEnum:
		if pattern.Name != concrete.Name || len(pattern.Variants) != len(concrete.Variants) {
			return false, false
		}
		byName := make(map[string]*types.TypeSpec, len(concrete.Variants))
		for i := range concrete.Variants {
			byName[concrete.Variants[i].Name] = concrete.Variants[i].Type
		}
		for i := range pattern.Variants {
			vt, present := byName[pattern.Variants[i].Name]
			if !present {
				return changed, false
			}
			pt := pattern.Variants[i].Type
			if pt == nil || vt == nil {
				if pt != vt {
					return changed, false
				}
				continue
			}
			ch, ok := c.unifyInto(pt, vt, info)
			changed = changed || ch
			if !ok {
				return changed, false
			}
		}
		return changed, true
	default:
		return false, types.Equal(pattern, concrete)
	}
}

// bindGeneric records one piece of evidence for a type variable. Disagreeing
// evidence is allowed only when one candidate coerces into the other; the
// wider of the two wins.
func (c *checker) bindGeneric(name string, concrete *types.TypeSpec, info *nodeInfo) (changed, ok bool) {
	prev, bound := info.bindings[name]
	if !bound {
		info.bindings[name] = concrete
		return true, true
	}
	if types.Equal(prev, concrete) {
		return false, true
	}
	if types.Compatible(prev, concrete).Kind != types.Incompatible {
		info.bindings[name] = concrete
		return true, true
	}
	if types.Compatible(concrete, prev).Kind != types.Incompatible {
		return false, true
	}
	if !info.reportedConflicts[name] {
		info.reportedConflicts[name] = true
		diag.ReportError(c.rep, diag.TypeMismatch, info.node.Span,
			fmt.Sprintf("node %s: generic %s inferred as both %s and %s",
				info.node.ID, name, types.Canonical(prev), types.Canonical(concrete))).Emit()
	}
	// Reported at the generic; suppress the per-edge structural report.
	return false, true
}

// checkBounds verifies every declared generic ended up bound to a concrete
// type that satisfies its bounds.
func (c *checker) checkBounds() {
	for _, id := range c.order {
		info := c.nodes[id]
		if !info.bound() {
			continue
		}
		for _, gp := range info.generics() {
			binding, bound := info.bindings[gp.Name]
			if !bound {
				diag.ReportError(c.rep, diag.GenericUnbound, info.node.Span,
					fmt.Sprintf("node %s: cannot infer generic %s from its edges; bind it explicitly", id, gp.Name)).Emit()
				continue
			}
			bounds := make([]types.Bound, 0, len(gp.Bounds))
			for _, bn := range gp.Bounds {
				b, err := types.ParseBound(bn)
				if err != nil {
					diag.ReportError(c.rep, diag.ManifestField, gp.Span,
						fmt.Sprintf("node %s generic %s: %v", id, gp.Name, err)).Emit()
					continue
				}
				bounds = append(bounds, b)
			}
			for _, missing := range types.CheckBounds(binding, bounds) {
				diag.ReportError(c.rep, diag.GenericUnsatisfied, info.node.Span,
					fmt.Sprintf("node %s: generic %s = %s does not satisfy bound %s",
						id, gp.Name, types.Canonical(binding), missing)).Emit()
			}
		}
	}
}
