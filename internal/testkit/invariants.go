package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"loom/internal/ir"
	"loom/internal/source"
)

// CheckModuleSpans runs a minimal set of span invariants on a decoded module
// manifest:
// 1) the module identity span is non-empty and within file content bounds
// 2) every block, port, generic and nested graph span points at the same
//    file and stays within content bounds (locator spans may be empty when
//    the token was not found, but never out of range)
func CheckModuleSpans(m *ir.ModuleSpec, sf *source.File) error {
	if m == nil || sf == nil {
		return fmt.Errorf("nil spec or file")
	}
	limit, err := safecast.Conv[uint32](len(sf.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if m.Span.Empty() {
		return fmt.Errorf("module span is empty: %v", m.Span)
	}
	if err := checkSpan(sf.ID, limit, "module", m.Span); err != nil {
		return err
	}
	for i := range m.Blocks {
		b := &m.Blocks[i]
		if err := checkSpan(sf.ID, limit, "block "+b.Name, b.Span); err != nil {
			return err
		}
		for _, gp := range b.Generics {
			if err := checkSpan(sf.ID, limit, "generic "+gp.Name, gp.Span); err != nil {
				return err
			}
		}
		for _, ports := range [][]ir.PortSpec{b.Inputs, b.Outputs, b.Params} {
			for _, p := range ports {
				if err := checkSpan(sf.ID, limit, "port "+p.Name, p.Span); err != nil {
					return err
				}
			}
		}
	}
	for i := range m.Graphs {
		if err := checkGraphSpans(&m.Graphs[i], sf.ID, limit); err != nil {
			return err
		}
	}
	return nil
}

// CheckGraphSpans runs the same span invariants on a standalone graph file.
func CheckGraphSpans(g *ir.GraphSpec, sf *source.File) error {
	if g == nil || sf == nil {
		return fmt.Errorf("nil spec or file")
	}
	limit, err := safecast.Conv[uint32](len(sf.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if g.Span.Empty() {
		return fmt.Errorf("graph span is empty: %v", g.Span)
	}
	return checkGraphSpans(g, sf.ID, limit)
}

func checkGraphSpans(g *ir.GraphSpec, file source.FileID, limit uint32) error {
	if err := checkSpan(file, limit, "graph "+g.Name, g.Span); err != nil {
		return err
	}
	for _, gp := range g.Generics {
		if err := checkSpan(file, limit, "generic "+gp.Name, gp.Span); err != nil {
			return err
		}
	}
	for _, r := range g.Requires {
		if err := checkSpan(file, limit, "requires "+r.Module, r.Span); err != nil {
			return err
		}
	}
	for _, p := range g.Inputs {
		if err := checkSpan(file, limit, "input "+p.Name, p.Span); err != nil {
			return err
		}
	}
	for _, n := range g.Nodes {
		if err := checkSpan(file, limit, "node "+n.ID, n.Span); err != nil {
			return err
		}
	}
	for _, e := range g.Edges {
		if err := checkSpan(file, limit, "edge "+e.ID, e.Span); err != nil {
			return err
		}
	}
	for _, x := range g.Exports {
		if err := checkSpan(file, limit, "export "+x.ID, x.Span); err != nil {
			return err
		}
	}
	for _, c := range g.Consts {
		if err := checkSpan(file, limit, "const "+c.ID, c.Span); err != nil {
			return err
		}
	}
	return nil
}

func checkSpan(file source.FileID, limit uint32, what string, sp source.Span) error {
	if sp.File != file {
		return fmt.Errorf("%s span points to different file id: got=%d want=%d", what, sp.File, file)
	}
	if sp.End < sp.Start {
		return fmt.Errorf("%s span is inverted: %v", what, sp)
	}
	if sp.End > limit {
		return fmt.Errorf("%s span end beyond content: %d > %d", what, sp.End, limit)
	}
	return nil
}
