package validate

import (
	"fmt"

	"loom/internal/diag"
	"loom/internal/ir"
)

// Check 2: node effects stay inside the graph's declared budget, effectful
// data reaches pure nodes only through boundary blocks, and non-pure
// determinism is either provisioned for or flagged.

func (c *checker) checkEffects() {
	var union []string
	for _, id := range c.order {
		info := c.nodes[id]
		if !info.bound() {
			continue
		}
		for _, e := range info.effectList() {
			if !ir.EffectAllowed(e, c.g.Effects) {
				diag.ReportError(c.rep, diag.DisallowedEffectDomain, info.node.Span,
					fmt.Sprintf("node %s effect %q is outside the graph effect budget %v; declare it in effects",
						id, e, c.g.Effects)).Emit()
			}
			union = append(union, e)
		}
		c.checkDeterminism(info)
	}
	c.effects = ir.NormalizeEffects(union)

	for i := range c.g.Edges {
		c.checkEffectBoundary(&c.g.Edges[i])
	}
}

// checkEffectBoundary rejects edges that carry effectful output into a pure
// node. Boundary blocks are the one legal crossing: they commit the effect
// and hand plain values on.
func (c *checker) checkEffectBoundary(e *ir.Edge) {
	if e.From.IsBoundary() {
		return // graph inputs and consts are plain data
	}
	prod, ok := c.nodes[e.From.Node]
	if !ok || !prod.bound() || !prod.effectful() || prod.isBoundary() {
		return
	}
	cons, ok := c.nodes[e.To.Node]
	if !ok || !cons.bound() || cons.effectful() {
		return
	}
	diag.ReportError(c.rep, diag.EffectBoundaryViolation, e.Span,
		fmt.Sprintf("edge %s feeds pure node %s from effectful node %s; route the value through a boundary block",
			e.ID, e.To.Node, e.From.Node)).Emit()
}

// checkDeterminism flags nodes whose output cannot be replayed unless the
// run provisions for it. Findings are warnings for ad-hoc runs and errors
// when validating for publication. io_dependent nodes have no replay story
// at all, so nothing to flag; the effect budget already gates them.
func (c *checker) checkDeterminism(info *nodeInfo) {
	switch info.determinism() {
	case ir.DetEntropy:
		if c.opts.Seeded || c.nodeSeeded(info) {
			return
		}
		c.reportReplay(info, fmt.Sprintf(
			"entropy_dependent node %s has no seed; set a seed param or run with a fixed seed", info.node.ID))
	case ir.DetTime:
		if c.opts.VirtualClock {
			return
		}
		c.reportReplay(info, fmt.Sprintf(
			"time_dependent node %s reads the wall clock; drive the run with a virtual clock to replay it", info.node.ID))
	}
}

func (c *checker) reportReplay(info *nodeInfo, msg string) {
	report := diag.ReportWarning
	if c.opts.Publish {
		report = diag.ReportError
	}
	report(c.rep, diag.NonDeterminismNotSeeded, info.node.Span, msg).Emit()
}

// nodeSeeded reports whether an entropy_dependent node carries its own seed:
// a declared seed param with either a node-supplied value or a default.
func (c *checker) nodeSeeded(info *nodeInfo) bool {
	p := info.param("seed")
	if p == nil {
		return false
	}
	if _, set := info.node.Params["seed"]; set {
		return true
	}
	return p.HasDefault()
}
