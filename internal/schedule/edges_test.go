package schedule

import (
	"testing"

	"loom/internal/ir"
	"loom/internal/types"
)

func testEdge(t *testing.T, typ string, policy ir.Backpressure, bound int) *edgeState {
	t.Helper()
	ts, err := types.Parse(typ)
	if err != nil {
		t.Fatalf("parse %s: %v", typ, err)
	}
	e := &ir.Edge{ID: "e", Policy: ir.EdgePolicy{Backpressure: policy, Bound: bound}}
	return newEdgeState(e, ts, DefaultEdgeCapacity)
}

func drain(st *edgeState) []int64 {
	var out []int64
	for {
		el, ok := st.pop()
		if !ok {
			return out
		}
		out = append(out, el.val.Int)
	}
}

func TestEdgeDropOldestEvictsHead(t *testing.T) {
	st := testEdge(t, "stream<i64>", ir.BackpressureDropOldest, 2)
	for i := int64(1); i <= 4; i++ {
		if !st.canAccept() {
			t.Fatal("dropping edges always accept")
		}
		st.push(ir.IntValue(i), uint64(i), "p")
	}
	if got := drain(st); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("kept %v, want [3 4]", got)
	}
	if st.drops != 2 {
		t.Fatalf("drops = %d, want 2", st.drops)
	}
}

func TestEdgeDropNewestKeepsHead(t *testing.T) {
	st := testEdge(t, "stream<i64>", ir.BackpressureDropNewest, 2)
	for i := int64(1); i <= 4; i++ {
		st.push(ir.IntValue(i), uint64(i), "p")
	}
	if got := drain(st); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("kept %v, want [1 2]", got)
	}
	if st.drops != 2 {
		t.Fatalf("drops = %d, want 2", st.drops)
	}
}

func TestEdgeBlockRefusesWhenFull(t *testing.T) {
	st := testEdge(t, "stream<i64>", ir.BackpressureBlock, 2)
	st.push(ir.IntValue(1), 1, "p")
	st.push(ir.IntValue(2), 2, "p")
	if st.canAccept() {
		t.Fatal("full block edge must refuse")
	}
	if _, ok := st.pop(); !ok {
		t.Fatal("pop failed")
	}
	if !st.canAccept() {
		t.Fatal("pop must free a slot")
	}
	if st.drops != 0 {
		t.Fatalf("drops = %d, want 0", st.drops)
	}
}

// Expand starts at one slot and doubles toward the declared bound; nothing
// is dropped on the way and the bound still blocks.
func TestEdgeExpandGrowsToBound(t *testing.T) {
	st := testEdge(t, "stream<i64>", ir.BackpressureExpand, 4)
	if st.capacity != 1 {
		t.Fatalf("expand starts at capacity %d, want 1", st.capacity)
	}
	for i := int64(1); i <= 4; i++ {
		if !st.canAccept() {
			t.Fatalf("push %d refused below the bound", i)
		}
		st.push(ir.IntValue(i), uint64(i), "p")
	}
	if st.canAccept() {
		t.Fatal("expand must refuse at the bound")
	}
	if st.capacity != 4 || st.drops != 0 {
		t.Fatalf("capacity/drops = %d/%d, want 4/0", st.capacity, st.drops)
	}
	if got := drain(st); len(got) != 4 {
		t.Fatalf("kept %v, want all four", got)
	}
}

func TestValueEdgeHoldsOneToken(t *testing.T) {
	st := testEdge(t, "i64", ir.BackpressureBlock, 0)
	if !st.canAccept() {
		t.Fatal("empty value edge must accept")
	}
	st.push(ir.IntValue(7), 1, "p")
	if st.canAccept() {
		t.Fatal("unconsumed token must block the producer")
	}
	el, ok := st.pop()
	if !ok || el.val.Int != 7 {
		t.Fatalf("pop = %+v (%v)", el, ok)
	}
	if !st.canAccept() {
		t.Fatal("consumed edge must accept again")
	}
}

func TestStickyEdgeRereads(t *testing.T) {
	st := testEdge(t, "i64", ir.BackpressureBlock, 0)
	st.sticky = true
	st.push(ir.IntValue(3), 1, ir.ConstNode)
	for i := 0; i < 3; i++ {
		v, ok := st.read()
		if !ok || v.Int != 3 {
			t.Fatalf("read %d = %v (%v)", i, v, ok)
		}
	}
	st.push(ir.IntValue(9), 2, ir.ConstNode)
	if v, _ := st.read(); v.Int != 9 {
		t.Fatalf("overwrite lost: %v", v)
	}
}

// Equal stamps fall back to the source id, then the commit sequence, so a
// timestamp merge never depends on map order.
func TestTakeMergedTimestampBreaksTies(t *testing.T) {
	a := testEdge(t, "stream<i64>", ir.BackpressureBlock, 4)
	b := testEdge(t, "stream<i64>", ir.BackpressureBlock, 4)
	a.push(ir.IntValue(1), 10, "zeta")
	b.push(ir.IntValue(2), 10, "alpha")
	el, ok := takeMerged([]*edgeState{a, b}, ir.MergeTimestamp, nil)
	if !ok || el.val.Int != 2 {
		t.Fatalf("tie must break on source id, got %+v", el)
	}
	el, ok = takeMerged([]*edgeState{a, b}, ir.MergeTimestamp, nil)
	if !ok || el.val.Int != 1 {
		t.Fatalf("second take = %+v", el)
	}
}
