package registry_test

import (
	"errors"
	"sort"
	"testing"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/registry"
)

// seedInlineRegistry publishes org.lib with two blocks, a published graph
// util.twice that uses both, and util.quad that nests util.twice.
func seedInlineRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	rep := diag.BagReporter{Bag: diag.NewBag(64)}

	lib := &ir.ModuleSpec{
		Name:    "org.lib",
		Version: "1.0.0",
		Blocks: []ir.BlockSpec{
			{
				Name:    "math.double",
				Version: "1.0.0",
				Inputs:  []ir.PortSpec{{Name: "x", Type: "i64"}},
				Outputs: []ir.PortSpec{{Name: "y", Type: "i64"}},
			},
			{
				Name:    "math.add",
				Version: "1.0.0",
				Inputs: []ir.PortSpec{
					{Name: "a", Type: "i64"},
					{Name: "b", Type: "i64", Optional: true, Default: int64(0)},
				},
				Outputs: []ir.PortSpec{{Name: "sum", Type: "i64"}},
			},
		},
		Graphs: []ir.GraphSpec{
			{
				Name:    "util.twice",
				Version: "1.0.0",
				Inputs: []ir.PortSpec{
					{Name: "x", Type: "i64"},
					{Name: "bias", Type: "i64", Optional: true, Default: int64(7)},
				},
				Nodes: []ir.Node{
					{ID: "d", Ref: "org.lib/math.double"},
					{ID: "a2", Ref: "org.lib/math.add"},
				},
				Edges: []ir.Edge{
					{ID: "ce_x", From: ir.Endpoint{Node: ir.InputNode, Port: "x"}, To: ir.Endpoint{Node: "d", Port: "x"}},
					{ID: "ce_da", From: ir.Endpoint{Node: "d", Port: "y"}, To: ir.Endpoint{Node: "a2", Port: "a"}},
					{ID: "ce_bias", From: ir.Endpoint{Node: ir.InputNode, Port: "bias"}, To: ir.Endpoint{Node: "a2", Port: "b"}},
				},
				Exports: []ir.Export{{ID: "out", Node: "a2", Port: "sum", Type: "i64"}},
			},
			{
				Name:    "util.quad",
				Version: "1.0.0",
				Inputs:  []ir.PortSpec{{Name: "x", Type: "i64"}},
				Nodes: []ir.Node{
					{ID: "t", Kind: ir.NodeSubgraph, Ref: "org.lib/util.twice"},
					{ID: "d2", Ref: "org.lib/math.double"},
				},
				Edges: []ir.Edge{
					{ID: "ce_in", From: ir.Endpoint{Node: ir.InputNode, Port: "x"}, To: ir.Endpoint{Node: "t", Port: "x"}},
					{ID: "ce_t", From: ir.Endpoint{Node: "t", Port: "out"}, To: ir.Endpoint{Node: "d2", Port: "x"}},
				},
				Exports: []ir.Export{{ID: "out", Node: "d2", Port: "y", Type: "i64"}},
			},
		},
	}
	if err := reg.Register(lib, rep); err != nil {
		t.Fatalf("register org.lib: %v", err)
	}
	return reg
}

// inlineGraph resolves and inlines, failing the test on any diagnostic.
func inlineGraph(t *testing.T, reg *registry.Registry, g *ir.GraphSpec) *ir.GraphSpec {
	t.Helper()
	bag := diag.NewBag(32)
	rep := diag.BagReporter{Bag: bag}
	res, err := reg.ResolveGraph(g, rep)
	if err != nil {
		t.Fatalf("resolve: %v\n%v", err, codesOf(bag))
	}
	res.Apply(g)
	out, err := reg.Inline(g, res, rep)
	if err != nil {
		t.Fatalf("inline: %v\n%v", err, codesOf(bag))
	}
	if bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", codesOf(bag))
	}
	return out
}

func edgeByID(g *ir.GraphSpec, id string) *ir.Edge {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return &g.Edges[i]
		}
	}
	return nil
}

func nodeIDs(g *ir.GraphSpec) []string {
	ids := make([]string, 0, len(g.Nodes))
	for i := range g.Nodes {
		ids = append(ids, g.Nodes[i].ID)
	}
	sort.Strings(ids)
	return ids
}

func TestInlineFlattensSubgraph(t *testing.T) {
	reg := seedInlineRegistry(t)
	g := &ir.GraphSpec{
		Module: "app",
		Name:   "main",
		Inputs: []ir.PortSpec{{Name: "x", Type: "i64"}},
		Consts: []ir.Const{{ID: "one", Type: "i64", Value: int64(1)}},
		Nodes: []ir.Node{
			{ID: "tw", Kind: ir.NodeSubgraph, Ref: "org.lib/util.twice"},
			{ID: "inc", Ref: "org.lib/math.add"},
		},
		Edges: []ir.Edge{
			{ID: "e_in", From: ir.Endpoint{Node: ir.InputNode, Port: "x"}, To: ir.Endpoint{Node: "tw", Port: "x"}},
			{ID: "e_out", From: ir.Endpoint{Node: "tw", Port: "out"}, To: ir.Endpoint{Node: "inc", Port: "a"}},
			{ID: "e_one", From: ir.Endpoint{Node: ir.ConstNode, Port: "one"}, To: ir.Endpoint{Node: "inc", Port: "b"}},
		},
		Exports: []ir.Export{{ID: "res", Node: "inc", Port: "sum", Type: "i64"}},
	}

	out := inlineGraph(t, reg, g)

	want := []string{"inc", "tw.a2", "tw.d"}
	if got := nodeIDs(out); !equalStrings(got, want) {
		t.Fatalf("nodes %v, want %v", got, want)
	}
	for i := range out.Nodes {
		n := &out.Nodes[i]
		if n.Kind != ir.NodeBlock {
			t.Fatalf("node %s still kind %s after inlining", n.ID, n.Kind)
		}
		if n.Pinned != "1.0.0" {
			t.Fatalf("node %s pin %q, want 1.0.0", n.ID, n.Pinned)
		}
	}

	// Parent edge into the subgraph lands on the child consumer.
	in := edgeByID(out, "e_in.ce_x")
	if in == nil || in.From != (ir.Endpoint{Node: ir.InputNode, Port: "x"}) || in.To != (ir.Endpoint{Node: "tw.d", Port: "x"}) {
		t.Fatalf("boundary input edge wrong: %+v", in)
	}
	// Interior child edge is prefixed.
	da := edgeByID(out, "tw.ce_da")
	if da == nil || da.From != (ir.Endpoint{Node: "tw.d", Port: "y"}) || da.To != (ir.Endpoint{Node: "tw.a2", Port: "a"}) {
		t.Fatalf("interior edge wrong: %+v", da)
	}
	// Parent edge reading the subgraph export now reads the real producer.
	outEdge := edgeByID(out, "e_out")
	if outEdge == nil || outEdge.From != (ir.Endpoint{Node: "tw.a2", Port: "sum"}) {
		t.Fatalf("export edge wrong: %+v", outEdge)
	}

	// The unfed defaulted input becomes a synthesized const.
	var def *ir.Const
	for i := range out.Consts {
		if out.Consts[i].ID == "tw.bias.default" {
			def = &out.Consts[i]
		}
	}
	if def == nil {
		t.Fatalf("missing synthesized default const, consts: %+v", out.Consts)
	}
	if def.Type != "i64" || def.Value != int64(7) {
		t.Fatalf("default const %+v", def)
	}
	bias := edgeByID(out, "tw.ce_bias")
	if bias == nil || bias.From != (ir.Endpoint{Node: ir.ConstNode, Port: "tw.bias.default"}) || bias.To != (ir.Endpoint{Node: "tw.a2", Port: "b"}) {
		t.Fatalf("default edge wrong: %+v", bias)
	}

	// Exports that never touched the subgraph are untouched.
	if out.Exports[0].Node != "inc" || out.Exports[0].Port != "sum" {
		t.Fatalf("export remapped unexpectedly: %+v", out.Exports[0])
	}

	// The input graph is left alone.
	if len(g.Nodes) != 2 || g.Nodes[0].Kind != ir.NodeSubgraph {
		t.Fatal("Inline mutated its input graph")
	}
}

func TestInlineNested(t *testing.T) {
	reg := seedInlineRegistry(t)
	g := &ir.GraphSpec{
		Module: "app",
		Name:   "main",
		Inputs: []ir.PortSpec{{Name: "x", Type: "i64"}},
		Nodes:  []ir.Node{{ID: "q", Kind: ir.NodeSubgraph, Ref: "org.lib/util.quad"}},
		Edges: []ir.Edge{
			{ID: "e_in", From: ir.Endpoint{Node: ir.InputNode, Port: "x"}, To: ir.Endpoint{Node: "q", Port: "x"}},
		},
		Exports: []ir.Export{{ID: "res", Node: "q", Port: "out", Type: "i64"}},
	}

	out := inlineGraph(t, reg, g)

	want := []string{"q.d2", "q.t.a2", "q.t.d"}
	if got := nodeIDs(out); !equalStrings(got, want) {
		t.Fatalf("nodes %v, want %v", got, want)
	}
	// Export chases through both levels to the real producer.
	if out.Exports[0].Node != "q.d2" || out.Exports[0].Port != "y" {
		t.Fatalf("export %+v, want q.d2/y", out.Exports[0])
	}
	// Input edge goes through quad's boundary into twice's first block.
	in := edgeByID(out, "e_in.ce_in.ce_x")
	if in == nil || in.To != (ir.Endpoint{Node: "q.t.d", Port: "x"}) {
		t.Fatalf("nested boundary edge wrong: %+v", in)
	}
}

func TestInlineUntouchedWhenFlat(t *testing.T) {
	reg := seedInlineRegistry(t)
	g := &ir.GraphSpec{
		Module: "app",
		Name:   "main",
		Nodes:  []ir.Node{{ID: "d", Ref: "org.lib/math.double", Pinned: "1.0.0"}},
	}
	out, err := reg.Inline(g, nil, diag.NopReporter{})
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if out != g {
		t.Fatal("flat graph should come back unchanged")
	}
}

func TestInlineMissingExport(t *testing.T) {
	reg := seedInlineRegistry(t)
	g := &ir.GraphSpec{
		Module: "app",
		Name:   "main",
		Inputs: []ir.PortSpec{{Name: "x", Type: "i64"}},
		Nodes: []ir.Node{
			{ID: "tw", Kind: ir.NodeSubgraph, Ref: "org.lib/util.twice"},
			{ID: "d", Ref: "org.lib/math.double"},
		},
		Edges: []ir.Edge{
			{ID: "e_in", From: ir.Endpoint{Node: ir.InputNode, Port: "x"}, To: ir.Endpoint{Node: "tw", Port: "x"}},
			{ID: "e_bad", From: ir.Endpoint{Node: "tw", Port: "nope"}, To: ir.Endpoint{Node: "d", Port: "x"}},
		},
	}
	bag := diag.NewBag(32)
	rep := diag.BagReporter{Bag: bag}
	res, err := reg.ResolveGraph(g, rep)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, err = reg.Inline(g, res, rep)
	if !errors.Is(err, registry.ErrInlineFailed) {
		t.Fatalf("expected ErrInlineFailed, got %v", err)
	}
	if !hasCode(bag, diag.ExportInvalid) {
		t.Fatalf("expected ExportInvalid, got %v", codesOf(bag))
	}
}

func TestInlineSelfInclusionCapped(t *testing.T) {
	reg := registry.New()
	rep := diag.BagReporter{Bag: diag.NewBag(64)}
	loop := &ir.ModuleSpec{
		Name:    "org.loop",
		Version: "1.0.0",
		Blocks: []ir.BlockSpec{{
			Name:    "noop",
			Version: "1.0.0",
			Inputs:  []ir.PortSpec{{Name: "x", Type: "i64"}},
			Outputs: []ir.PortSpec{{Name: "y", Type: "i64"}},
		}},
		Graphs: []ir.GraphSpec{{
			Name:    "util.self",
			Version: "1.0.0",
			Inputs:  []ir.PortSpec{{Name: "x", Type: "i64"}},
			Nodes:   []ir.Node{{ID: "s", Kind: ir.NodeSubgraph, Ref: "org.loop/util.self"}},
			Edges: []ir.Edge{
				{ID: "ce", From: ir.Endpoint{Node: ir.InputNode, Port: "x"}, To: ir.Endpoint{Node: "s", Port: "x"}},
			},
			Exports: []ir.Export{{ID: "out", Node: "s", Port: "out", Type: "i64"}},
		}},
	}
	if err := reg.Register(loop, rep); err != nil {
		t.Fatalf("register org.loop: %v", err)
	}

	g := &ir.GraphSpec{
		Module: "app",
		Name:   "main",
		Inputs: []ir.PortSpec{{Name: "x", Type: "i64"}},
		Nodes:  []ir.Node{{ID: "s", Kind: ir.NodeSubgraph, Ref: "org.loop/util.self", Pinned: "1.0.0"}},
		Edges: []ir.Edge{
			{ID: "e", From: ir.Endpoint{Node: ir.InputNode, Port: "x"}, To: ir.Endpoint{Node: "s", Port: "x"}},
		},
	}
	bag := diag.NewBag(32)
	res, err := reg.ResolveGraph(g, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatalf("resolve: %v\n%v", err, codesOf(bag))
	}
	_, err = reg.Inline(g, res, diag.BagReporter{Bag: bag})
	if !errors.Is(err, registry.ErrInlineFailed) {
		t.Fatalf("expected ErrInlineFailed, got %v", err)
	}
	if !hasCode(bag, diag.ResolutionConflict) {
		t.Fatalf("expected ResolutionConflict, got %v", codesOf(bag))
	}
}

func TestInlineSubstitutesGenerics(t *testing.T) {
	reg := registry.New()
	rep := diag.BagReporter{Bag: diag.NewBag(64)}
	lib := &ir.ModuleSpec{
		Name:    "org.gen",
		Version: "1.0.0",
		Blocks: []ir.BlockSpec{{
			Name:     "pass.ident",
			Version:  "1.0.0",
			Generics: []ir.GenericParam{{Name: "T"}},
			Inputs:   []ir.PortSpec{{Name: "v", Type: "T"}},
			Outputs:  []ir.PortSpec{{Name: "v", Type: "T"}},
		}},
		Graphs: []ir.GraphSpec{{
			Name:     "util.pass",
			Version:  "1.0.0",
			Generics: []ir.GenericParam{{Name: "T"}},
			Inputs:   []ir.PortSpec{{Name: "v", Type: "T"}},
			Nodes: []ir.Node{{
				ID:       "id",
				Ref:      "org.gen/pass.ident",
				Generics: map[string]string{"T": "list<T>"},
			}},
			Edges: []ir.Edge{
				{ID: "ce", From: ir.Endpoint{Node: ir.InputNode, Port: "v"}, To: ir.Endpoint{Node: "id", Port: "v"}},
			},
			Exports: []ir.Export{{ID: "out", Node: "id", Port: "v", Type: "list<T>"}},
		}},
	}
	if err := reg.Register(lib, rep); err != nil {
		t.Fatalf("register org.gen: %v", err)
	}

	g := &ir.GraphSpec{
		Module: "app",
		Name:   "main",
		Inputs: []ir.PortSpec{{Name: "v", Type: "decimal"}},
		Nodes: []ir.Node{{
			ID:       "p",
			Kind:     ir.NodeSubgraph,
			Ref:      "org.gen/util.pass",
			Pinned:   "1.0.0",
			Generics: map[string]string{"T": "decimal"},
		}},
		Edges: []ir.Edge{
			{ID: "e", From: ir.Endpoint{Node: ir.InputNode, Port: "v"}, To: ir.Endpoint{Node: "p", Port: "v"}},
		},
		Exports: []ir.Export{{ID: "out", Node: "p", Port: "out", Type: "list<decimal>"}},
	}
	out, err := reg.Inline(g, nil, diag.NopReporter{})
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if len(out.Nodes) != 1 || out.Nodes[0].ID != "p.id" {
		t.Fatalf("nodes %v", nodeIDs(out))
	}
	if got := out.Nodes[0].Generics["T"]; got != "list<decimal>" {
		t.Fatalf("spliced binding %q, want list<decimal>", got)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
