package validate_test

import (
	"testing"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/validate"
)

// clockToFormat wires time.now into the pure time.format, optionally through
// the time.collect boundary block.
func clockToFormat(withBoundary bool) *ir.GraphSpec {
	if !withBoundary {
		g := graph(
			[]ir.Node{node("clk", "time.now"), node("fmt", "time.format")},
			[]ir.Edge{edge("e1", "clk", "now", "fmt", "t")},
		)
		g.Effects = []string{"time.read"}
		return g
	}
	g := graph(
		[]ir.Node{node("clk", "time.now"), node("gate", "time.collect"), node("fmt", "time.format")},
		[]ir.Edge{
			edge("e1", "clk", "now", "gate", "x"),
			edge("e2", "gate", "y", "fmt", "t"),
		},
	)
	g.Effects = []string{"time.read"}
	return g
}

func TestEffectBoundaryViolation(t *testing.T) {
	reg := buildRegistry(t)
	vg, bag := validate.Validate(clockToFormat(false), reg, nil, validate.Options{VirtualClock: true})
	if vg != nil {
		t.Fatalf("expected failure")
	}
	if !hasCode(bag, diag.EffectBoundaryViolation) {
		t.Fatalf("missing EffectBoundaryViolation:\n%s", diagText(bag))
	}
}

func TestBoundaryBlockCrossesToPure(t *testing.T) {
	reg := buildRegistry(t)
	vg, bag := validate.Validate(clockToFormat(true), reg, nil, validate.Options{VirtualClock: true})
	if vg == nil {
		t.Fatalf("validate failed:\n%s", diagText(bag))
	}
	if bag.Len() != 0 {
		t.Fatalf("expected clean bag, got:\n%s", diagText(bag))
	}
	if want := []string{"time.read"}; len(vg.Effects) != 1 || vg.Effects[0] != want[0] {
		t.Fatalf("effects = %v, want %v", vg.Effects, want)
	}
}

func TestEffectOutsideBudget(t *testing.T) {
	reg := buildRegistry(t)
	g := clockToFormat(true)
	g.Effects = nil // budget omits time.read

	_, bag := validate.Validate(g, reg, nil, validate.Options{VirtualClock: true})
	if !hasCode(bag, diag.DisallowedEffectDomain) {
		t.Fatalf("missing DisallowedEffectDomain:\n%s", diagText(bag))
	}
}

func TestWildcardBudgetCoversEffect(t *testing.T) {
	reg := buildRegistry(t)
	g := clockToFormat(true)
	g.Effects = []string{"time.*"}

	mustValidate(t, g, reg, validate.Options{VirtualClock: true})
}

// Effect-to-effect edges are legal without a boundary; only the crossing
// into pure territory needs one.
func TestEffectfulChainNeedsNoBoundary(t *testing.T) {
	reg := buildRegistry(t)
	g := graph(
		[]ir.Node{node("clk", "time.now"), node("gate", "time.collect")},
		[]ir.Edge{edge("e1", "clk", "now", "gate", "x")},
	)
	g.Effects = []string{"time.read"}
	g.Exports = []ir.Export{{ID: "at", Node: "gate", Port: "y"}}

	mustValidate(t, g, reg, validate.Options{VirtualClock: true})
}

func TestTimeDependentWarnsWithoutVirtualClock(t *testing.T) {
	reg := buildRegistry(t)
	g := clockToFormat(true)

	vg, bag := validate.Validate(g, reg, nil, validate.Options{})
	if vg == nil {
		t.Fatalf("warnings must not fail validation:\n%s", diagText(bag))
	}
	if !bag.HasWarnings() || !hasCode(bag, diag.NonDeterminismNotSeeded) {
		t.Fatalf("missing NonDeterminismNotSeeded warning:\n%s", diagText(bag))
	}

	// Publishing upgrades the finding to an error.
	vg, bag = validate.Validate(clockToFormat(true), reg, nil, validate.Options{Publish: true})
	if vg != nil {
		t.Fatalf("publish validation should fail without a virtual clock")
	}
	if !bag.HasErrors() || !hasCode(bag, diag.NonDeterminismNotSeeded) {
		t.Fatalf("missing NonDeterminismNotSeeded error:\n%s", diagText(bag))
	}
}

func TestEntropyWarningSilencedBySeed(t *testing.T) {
	reg := buildRegistry(t)

	bare := graph([]ir.Node{node("r", "rand.uniform")}, nil)
	bare.Effects = []string{"rand"}
	vg, bag := validate.Validate(bare, reg, nil, validate.Options{})
	if vg == nil {
		t.Fatalf("validate failed:\n%s", diagText(bag))
	}
	if !hasCode(bag, diag.NonDeterminismNotSeeded) {
		t.Fatalf("missing NonDeterminismNotSeeded:\n%s", diagText(bag))
	}

	seeded := graph(
		[]ir.Node{{
			ID: "r", Kind: ir.NodeBlock, Ref: "org.flow/rand.uniform", Pinned: "1.0.0",
			Params: map[string]any{"seed": int64(1)},
		}},
		nil,
	)
	seeded.Effects = []string{"rand"}
	_, bag = validate.Validate(seeded, reg, nil, validate.Options{})
	if hasCode(bag, diag.NonDeterminismNotSeeded) {
		t.Fatalf("seed param should silence the warning:\n%s", diagText(bag))
	}

	// A promised run-level seed silences it too.
	_, bag = validate.Validate(graphCopy(bare), reg, nil, validate.Options{Seeded: true})
	if hasCode(bag, diag.NonDeterminismNotSeeded) {
		t.Fatalf("run seed should silence the warning:\n%s", diagText(bag))
	}
}

// graphCopy rebuilds the bare rand graph; validation never mutates its
// input, but tests keep fixtures independent anyway.
func graphCopy(g *ir.GraphSpec) *ir.GraphSpec {
	cp := *g
	cp.Nodes = append([]ir.Node(nil), g.Nodes...)
	cp.Edges = append([]ir.Edge(nil), g.Edges...)
	return &cp
}
