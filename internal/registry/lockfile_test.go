package registry_test

import (
	"path/filepath"
	"testing"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/registry"
	"loom/internal/source"
)

func lockGraph() *ir.GraphSpec {
	return &ir.GraphSpec{
		Name:     "main",
		Requires: []ir.ModuleReq{{Module: "org.std", Constraint: "^1.4"}},
		Nodes:    []ir.Node{{ID: "add", Ref: "org.std/math.add"}},
	}
}

func TestLockfileRoundTrip(t *testing.T) {
	reg := seedRegistry(t)
	g := lockGraph()
	res, err := reg.ResolveGraph(g, diag.NopReporter{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	path := filepath.Join(t.TempDir(), registry.LockfileName)
	if err := registry.WriteLockfile(path, g, res); err != nil {
		t.Fatalf("write: %v", err)
	}
	lf, ok, err := registry.ReadLockfile(path)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if lf.IRDigest != ir.GraphDigest(g) {
		t.Fatal("lockfile digest does not match the graph")
	}
	pin, ok := lf.Pinned("org.std")
	if !ok || pin.Version != "1.6.2" {
		t.Fatalf("locked pin = %+v", pin)
	}

	bag := diag.NewBag(16)
	if !registry.VerifyLockfile(lf, g, res, source.Span{}, diag.BagReporter{Bag: bag}) {
		t.Fatalf("fresh lockfile reported stale: %v", codesOf(bag))
	}
	if bag.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", codesOf(bag))
	}

	// Replaying the lockfile without the registry reproduces the pins.
	replay := lf.Resolution()
	replay.Apply(g)
	if g.Nodes[0].Pinned != "1.6.2" {
		t.Fatalf("replayed pin %q", g.Nodes[0].Pinned)
	}
}

func TestLockfileMissing(t *testing.T) {
	lf, ok, err := registry.ReadLockfile(filepath.Join(t.TempDir(), registry.LockfileName))
	if err != nil {
		t.Fatalf("missing lockfile must not error: %v", err)
	}
	if ok || lf != nil {
		t.Fatal("missing lockfile must read as absent")
	}
}

func TestLockfileStaleAfterGraphEdit(t *testing.T) {
	reg := seedRegistry(t)
	g := lockGraph()
	res, err := reg.ResolveGraph(g, diag.NopReporter{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	path := filepath.Join(t.TempDir(), registry.LockfileName)
	if err := registry.WriteLockfile(path, g, res); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Any change to the graph moves its digest.
	g.Nodes = append(g.Nodes, ir.Node{ID: "extra", Ref: "org.std/math.add"})
	lf, _, err := registry.ReadLockfile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	res2, err := reg.ResolveGraph(g, diag.NopReporter{})
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	bag := diag.NewBag(16)
	if registry.VerifyLockfile(lf, g, res2, source.Span{}, diag.BagReporter{Bag: bag}) {
		t.Fatal("edited graph must read as stale")
	}
	if !hasCode(bag, diag.LockfileStale) {
		t.Fatalf("expected LockfileStale, got %v", codesOf(bag))
	}
}

func TestLockfileStaleAfterRepin(t *testing.T) {
	reg := seedRegistry(t)
	g := lockGraph()
	res, err := reg.ResolveGraph(g, diag.NopReporter{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	path := filepath.Join(t.TempDir(), registry.LockfileName)
	if err := registry.WriteLockfile(path, g, res); err != nil {
		t.Fatalf("write: %v", err)
	}
	lf, _, err := registry.ReadLockfile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// A new compatible release shifts a fresh resolution away from the lock.
	next := baseModule()
	next.Name = "org.std"
	next.Version = "1.7.0"
	if err := reg.Register(next, diag.NopReporter{}); err != nil {
		t.Fatalf("register 1.7.0: %v", err)
	}
	res2, err := reg.ResolveGraph(g, diag.NopReporter{})
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if v, _ := res2.Version("org.std"); v != "1.7.0" {
		t.Fatalf("fresh resolution pinned %q, want 1.7.0", v)
	}

	bag := diag.NewBag(16)
	if registry.VerifyLockfile(lf, g, res2, source.Span{}, diag.BagReporter{Bag: bag}) {
		t.Fatal("drifted pins must read as stale")
	}
	if !hasCode(bag, diag.LockfileStale) {
		t.Fatalf("expected LockfileStale, got %v", codesOf(bag))
	}
}
