package validate_test

import (
	"testing"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/types"
	"loom/internal/validate"
)

func TestInferGenericFromProducer(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{node("id", "util.identity")},
		[]ir.Edge{edge("e1", ir.InputNode, "x", "id", "x")},
	)
	g.Inputs = []ir.PortSpec{{Name: "x", Type: "i64"}}
	g.Exports = []ir.Export{{ID: "out", Node: "id", Port: "y", Type: "i64"}}

	vg := mustValidate(t, g, reg, validate.Options{})
	binding := vg.Bindings["id"]["T"]
	if binding == nil || types.Canonical(binding) != "i64" {
		t.Fatalf("T = %v, want i64", binding)
	}
	if et := vg.EdgeTypes["e1"]; et == nil || types.Canonical(et) != "i64" {
		t.Fatalf("edge type = %v, want i64", et)
	}
}

// Inference flows through chains of generic nodes: the second identity only
// learns its type from the first one's inferred output.
func TestInferGenericChain(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{node("a", "util.identity"), node("b", "util.identity")},
		[]ir.Edge{
			edge("e1", ir.InputNode, "x", "a", "x"),
			edge("e2", "a", "y", "b", "x"),
		},
	)
	g.Inputs = []ir.PortSpec{{Name: "x", Type: "string"}}
	g.Exports = []ir.Export{{ID: "out", Node: "b", Port: "y", Type: "string"}}

	vg := mustValidate(t, g, reg, validate.Options{})
	if binding := vg.Bindings["b"]["T"]; binding == nil || types.Canonical(binding) != "string" {
		t.Fatalf("downstream T = %v, want string", binding)
	}
}

// A consumer can also drive the producer: gen.make's T appears only in its
// output, so the concrete input of the node it feeds is the only evidence.
func TestInferGenericFromConsumer(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{node("mk", "gen.make"), node("p", "util.pass")},
		[]ir.Edge{
			edge("e1", ir.InputNode, "x", "mk", "n"),
			edge("e2", "mk", "out", "p", "x"),
		},
	)
	g.Inputs = []ir.PortSpec{{Name: "x", Type: "i64"}}

	vg := mustValidate(t, g, reg, validate.Options{})
	if binding := vg.Bindings["mk"]["T"]; binding == nil || types.Canonical(binding) != "i64" {
		t.Fatalf("T = %v, want i64", binding)
	}
}

func TestInferConflictReported(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{node("pk", "util.pick")},
		[]ir.Edge{
			edge("e1", ir.ConstNode, "ci", "pk", "a"),
			edge("e2", ir.ConstNode, "cs", "pk", "b"),
		},
	)
	g.Consts = []ir.Const{
		{ID: "ci", Type: "i64", Value: int64(1)},
		{ID: "cs", Type: "string", Value: "one"},
	}

	vg, bag := validate.Validate(g, reg, nil, validate.Options{})
	if vg != nil {
		t.Fatalf("expected failure")
	}
	if !hasCode(bag, diag.TypeMismatch) {
		t.Fatalf("missing TypeMismatch:\n%s", diagText(bag))
	}
}

// i32 and i64 evidence for the same generic is no conflict: the whitelist
// widens the binding to i64.
func TestInferWidensAcrossEvidence(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{node("pk", "util.pick")},
		[]ir.Edge{
			edge("e1", ir.ConstNode, "small", "pk", "a"),
			edge("e2", ir.ConstNode, "big", "pk", "b"),
		},
	)
	g.Consts = []ir.Const{
		{ID: "small", Type: "i32", Value: int64(1)},
		{ID: "big", Type: "i64", Value: int64(2)},
	}

	vg, bag := validate.Validate(g, reg, nil, validate.Options{})
	if vg == nil {
		t.Fatalf("validate failed:\n%s", diagText(bag))
	}
	if binding := vg.Bindings["pk"]["T"]; binding == nil || types.Canonical(binding) != "i64" {
		t.Fatalf("T = %v, want i64", binding)
	}
	// The i32 edge still coerces, so the adapter hint fires.
	if !hasCode(bag, diag.AdapterSuggested) {
		t.Fatalf("missing AdapterSuggested:\n%s", diagText(bag))
	}
}

func TestExplicitGenericBinding(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{{
			ID: "id", Kind: ir.NodeBlock, Ref: "org.flow/util.identity", Pinned: "1.0.0",
			Generics: map[string]string{"T": "string"},
		}},
		[]ir.Edge{edge("e1", ir.ConstNode, "c1", "id", "x")},
	)
	g.Consts = []ir.Const{{ID: "c1", Type: "string", Value: "hello"}}

	vg := mustValidate(t, g, reg, validate.Options{})
	if binding := vg.Bindings["id"]["T"]; binding == nil || types.Canonical(binding) != "string" {
		t.Fatalf("T = %v, want string", binding)
	}
}

func TestExplicitBindingUnknownGeneric(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{{
			ID: "p", Kind: ir.NodeBlock, Ref: "org.flow/util.pass", Pinned: "1.0.0",
			Generics: map[string]string{"T": "string"},
		}},
		[]ir.Edge{edge("e1", ir.InputNode, "x", "p", "x")},
	)
	g.Inputs = []ir.PortSpec{{Name: "x", Type: "i64"}}

	_, bag := validate.Validate(g, reg, nil, validate.Options{})
	if !hasCode(bag, diag.ManifestField) {
		t.Fatalf("missing ManifestField:\n%s", diagText(bag))
	}
}

func TestGenericUnboundWithoutEvidence(t *testing.T) {
	reg := buildRegistry(t)
	// Nothing feeds the identity, so T has no evidence at all.
	g := graph([]ir.Node{node("id", "util.identity")}, nil)

	_, bag := validate.Validate(g, reg, nil, validate.Options{})
	if !hasCode(bag, diag.GenericUnbound) {
		t.Fatalf("missing GenericUnbound:\n%s", diagText(bag))
	}
}

func TestGenericBoundUnsatisfied(t *testing.T) {
	reg := buildRegistry(t)
	// agg.sum requires T: Add; string fails it.
	g := graph(
		[]ir.Node{node("s", "agg.sum")},
		[]ir.Edge{edge("e1", ir.ConstNode, "c1", "s", "xs")},
	)
	g.Consts = []ir.Const{{ID: "c1", Type: "list<string>", Value: []any{"a", "b"}}}

	vg, bag := validate.Validate(g, reg, nil, validate.Options{})
	if vg != nil {
		t.Fatalf("expected failure")
	}
	if !hasCode(bag, diag.GenericUnsatisfied) {
		t.Fatalf("missing GenericUnsatisfied:\n%s", diagText(bag))
	}
}

func TestGenericBoundSatisfied(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{node("s", "agg.sum")},
		[]ir.Edge{edge("e1", ir.ConstNode, "c1", "s", "xs")},
	)
	g.Consts = []ir.Const{{ID: "c1", Type: "list<i64>", Value: []any{int64(1), int64(2)}}}
	g.Exports = []ir.Export{{ID: "total", Node: "s", Port: "total", Type: "i64"}}

	vg := mustValidate(t, g, reg, validate.Options{})
	if xt := vg.ExportTypes["total"]; xt == nil || types.Canonical(xt) != "i64" {
		t.Fatalf("export type = %v, want i64", xt)
	}
}
