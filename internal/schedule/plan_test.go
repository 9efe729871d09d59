package schedule_test

import (
	"reflect"
	"strings"
	"testing"

	"loom/internal/ir"
	"loom/internal/schedule"
	"loom/internal/validate"
)

func mustPlan(t *testing.T, vg *validate.ValidatedGraph) *schedule.ExecutionPlan {
	t.Helper()
	p, err := schedule.Plan(vg)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return p
}

func TestPlanLinearChain(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{node("a", "math.double"), node("b", "math.double")},
		[]ir.Edge{
			edge("e1", ir.InputNode, "x", "a", "x"),
			edge("e2", "a", "y", "b", "x"),
		},
	)
	g.Inputs = []ir.PortSpec{{Name: "x", Type: "i64"}}
	g.Exports = []ir.Export{{ID: "out", Node: "b", Port: "y"}}

	p := mustPlan(t, mustValidate(t, g, reg, validate.Options{}))
	if len(p.Units) != 2 {
		t.Fatalf("units = %d, want 2", len(p.Units))
	}
	want := [][]schedule.UnitID{{0}, {1}}
	if !reflect.DeepEqual(p.Waves, want) {
		t.Fatalf("waves = %v, want %v", p.Waves, want)
	}
	if p.MaxConcurrency != 1 {
		t.Fatalf("max concurrency = %d, want 1", p.MaxConcurrency)
	}
	if p.UnitFor("a") == p.UnitFor("b") {
		t.Fatalf("chain nodes share a unit")
	}
	if !strings.HasPrefix(p.Digest, "sha256:") {
		t.Fatalf("digest %q lacks sha256 prefix", p.Digest)
	}
}

func TestPlanDiamondWaves(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{
			node("a", "math.double"),
			node("b", "math.double"),
			node("c", "math.double"),
			node("m", "math.add"),
		},
		[]ir.Edge{
			edge("e1", ir.InputNode, "x", "a", "x"),
			edge("e2", "a", "y", "b", "x"),
			edge("e3", "a", "y", "c", "x"),
			edge("e4", "b", "y", "m", "x"),
			edge("e5", "c", "y", "m", "y"),
		},
	)
	g.Inputs = []ir.PortSpec{{Name: "x", Type: "i64"}}
	g.Exports = []ir.Export{{ID: "out", Node: "m", Port: "sum"}}

	p := mustPlan(t, mustValidate(t, g, reg, validate.Options{}))
	want := [][]schedule.UnitID{{0}, {1, 2}, {3}}
	if !reflect.DeepEqual(p.Waves, want) {
		t.Fatalf("waves = %v, want %v", p.Waves, want)
	}
	if p.MaxConcurrency != 2 {
		t.Fatalf("max concurrency = %d, want 2", p.MaxConcurrency)
	}
	wantOrder := []schedule.UnitID{0, 1, 2, 3}
	if !reflect.DeepEqual(p.Order, wantOrder) {
		t.Fatalf("order = %v, want %v", p.Order, wantOrder)
	}
}

func TestPlanCondensesLoop(t *testing.T) {
	reg := buildRegistry(t)
	g := loopGraph()

	p := mustPlan(t, mustValidate(t, g, reg, validate.Options{}))
	if len(p.Units) != 1 {
		t.Fatalf("units = %d, want 1 condensed loop", len(p.Units))
	}
	u := p.Units[0]
	if !u.Loop() || u.Breaker != "f" {
		t.Fatalf("breaker = %q, want f", u.Breaker)
	}
	if !reflect.DeepEqual(u.Nodes, []string{"f", "a"}) {
		t.Fatalf("unit order = %v, want breaker first", u.Nodes)
	}
	if len(p.Waves) != 1 {
		t.Fatalf("waves = %v, want a single wave", p.Waves)
	}
}

func TestPlanDeterministic(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{
			node("a", "math.double"),
			node("b", "math.double"),
			node("c", "math.add"),
		},
		[]ir.Edge{
			edge("e1", ir.InputNode, "x", "a", "x"),
			edge("e2", ir.InputNode, "x", "b", "x"),
			edge("e3", "a", "y", "c", "x"),
			edge("e4", "b", "y", "c", "y"),
		},
	)
	g.Inputs = []ir.PortSpec{{Name: "x", Type: "i64"}}
	g.Exports = []ir.Export{{ID: "out", Node: "c", Port: "sum"}}
	vg := mustValidate(t, g, reg, validate.Options{})

	p1 := mustPlan(t, vg)
	p2 := mustPlan(t, vg)
	if p1.Digest != p2.Digest {
		t.Fatalf("digests differ: %s vs %s", p1.Digest, p2.Digest)
	}
	if !reflect.DeepEqual(p1.Waves, p2.Waves) {
		t.Fatalf("waves differ: %v vs %v", p1.Waves, p2.Waves)
	}
}

func TestPlanNilGraph(t *testing.T) {
	if _, err := schedule.Plan(nil); err == nil {
		t.Fatal("expected error for nil validated graph")
	}
}
