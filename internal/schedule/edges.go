package schedule

import (
	"sort"

	"loom/internal/ir"
	"loom/internal/types"
)

// DefaultEdgeCapacity is the stream buffer size when the edge declares no
// bound of its own.
const DefaultEdgeCapacity = 16

// element is one committed value on an edge, stamped for merge ordering.
type element struct {
	val     ir.Value
	seq     uint64 // per-edge commit sequence
	stampMs uint64
	src     string // producing node id
}

// edgeState owns one edge's runtime buffer. Value edges hold one token the
// consumer pops on its next firing, so a full pipeline stage advances per
// tick; sticky edges (consts, defaulted inputs) keep their value readable
// forever. Stream edges queue elements under the declared backpressure
// policy.
type edgeState struct {
	edge     *ir.Edge
	typ      *types.TypeSpec // consumer-side type; committed values coerce to it
	stream   bool
	sticky   bool
	capacity int // current capacity; expand grows it up to bound
	bound    int
	buf      []element
	seq      uint64
	drops    uint64
}

func newEdgeState(e *ir.Edge, t *types.TypeSpec, defaultCap int) *edgeState {
	bound := e.Policy.Bound
	if bound <= 0 {
		bound = defaultCap
	}
	st := &edgeState{
		edge:     e,
		typ:      t,
		stream:   t != nil && t.IsStreaming(),
		bound:    bound,
		capacity: bound,
	}
	if e.Policy.Backpressure == ir.BackpressureExpand {
		// Expand starts small and grows toward the bound before blocking.
		st.capacity = 1
	}
	if !st.stream {
		st.capacity, st.bound = 1, 1
	}
	return st
}

// canAccept reports whether a producer may commit here this tick. Value
// edges block while their token is unconsumed; for streams only the block
// and exhausted-expand policies ever refuse, dropping policies accept and
// account for the loss at push time.
func (s *edgeState) canAccept() bool {
	if !s.stream {
		return s.sticky || len(s.buf) == 0
	}
	switch s.edge.Policy.Backpressure {
	case ir.BackpressureDropOldest, ir.BackpressureDropNewest:
		return true
	case ir.BackpressureExpand:
		return len(s.buf) < s.bound
	default:
		return len(s.buf) < s.capacity
	}
}

// push commits one value, coercing it to the consumer-side type. The caller
// already ordered commits; seq records that order per edge.
func (s *edgeState) push(v ir.Value, stampMs uint64, src string) {
	s.seq++
	el := element{val: coerceValue(v, s.typ), seq: s.seq, stampMs: stampMs, src: src}
	if !s.stream {
		if len(s.buf) == 0 {
			s.buf = append(s.buf, el)
		} else {
			s.buf[0] = el
		}
		return
	}
	if len(s.buf) >= s.capacity {
		switch s.edge.Policy.Backpressure {
		case ir.BackpressureDropOldest:
			s.buf = s.buf[1:]
			s.drops++
		case ir.BackpressureDropNewest:
			s.drops++
			return
		case ir.BackpressureExpand:
			if s.capacity < s.bound {
				s.capacity *= 2
				if s.capacity > s.bound {
					s.capacity = s.bound
				}
			}
			if len(s.buf) >= s.capacity {
				// Producer scheduling already checked canAccept; dropping
				// here would break the block contract.
				s.drops++
				return
			}
		default:
			s.drops++
			return
		}
	}
	s.buf = append(s.buf, el)
}

// read returns a sticky edge's value without consuming it.
func (s *edgeState) read() (ir.Value, bool) {
	if s.stream || len(s.buf) == 0 {
		return ir.Value{}, false
	}
	return s.buf[0].val, true
}

// pop removes and returns the oldest buffered element.
func (s *edgeState) pop() (element, bool) {
	if len(s.buf) == 0 {
		return element{}, false
	}
	el := s.buf[0]
	s.buf = s.buf[1:]
	return el, true
}

func (s *edgeState) pending() int { return len(s.buf) }

// edgeSet indexes edge state by edge id and by consumer endpoint.
type edgeSet struct {
	byID   map[string]*edgeState
	into   map[ir.Endpoint][]*edgeState // consumer endpoint, declaration order
	outOf  map[string][]*edgeState      // producer node id
	inputs map[string][]*edgeState      // graph input name
	consts map[string][]*edgeState      // const id
}

func newEdgeSet(p *ExecutionPlan) *edgeSet {
	vg := p.Source
	set := &edgeSet{
		byID:   make(map[string]*edgeState, len(vg.Graph.Edges)),
		into:   make(map[ir.Endpoint][]*edgeState),
		outOf:  make(map[string][]*edgeState),
		inputs: make(map[string][]*edgeState),
		consts: make(map[string][]*edgeState),
	}
	for i := range vg.Graph.Edges {
		e := &vg.Graph.Edges[i]
		st := newEdgeState(e, vg.EdgeTypes[e.ID], DefaultEdgeCapacity)
		set.byID[e.ID] = st
		set.into[e.To] = append(set.into[e.To], st)
		switch e.From.Node {
		case ir.InputNode:
			set.inputs[e.From.Port] = append(set.inputs[e.From.Port], st)
		case ir.ConstNode:
			set.consts[e.From.Port] = append(set.consts[e.From.Port], st)
		default:
			set.outOf[e.From.Node] = append(set.outOf[e.From.Node], st)
		}
	}
	return set
}

// markSticky freezes constant sources: every const edge, plus the input
// edges whose graph input falls back to its declared default because the
// run feeds it nothing.
func (s *edgeSet) markSticky(defaultedInputs map[string]bool) {
	for _, sts := range s.consts {
		for _, st := range sts {
			st.sticky = true
		}
	}
	for name, sts := range s.inputs {
		if !defaultedInputs[name] {
			continue
		}
		for _, st := range sts {
			st.sticky = true
		}
	}
}

// dropTotals sums recorded drops per edge, sorted by edge id.
func (s *edgeSet) dropTotals() map[string]uint64 {
	out := make(map[string]uint64)
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if d := s.byID[id].drops; d > 0 {
			out[id] = d
		}
	}
	return out
}

// takeMerged selects this firing's element for a stream port fed by several
// edges, honoring the effective merge policy. Returns false when every
// buffer is empty.
func takeMerged(states []*edgeState, policy string, rr *int) (element, bool) {
	switch policy {
	case ir.MergeTimestamp:
		best := -1
		for i, st := range states {
			if st.pending() == 0 {
				continue
			}
			if best == -1 || earlier(st.buf[0], states[best].buf[0]) {
				best = i
			}
		}
		if best == -1 {
			return element{}, false
		}
		el, _ := states[best].pop()
		return el, true
	case ir.MergeInterleaved:
		n := len(states)
		for i := 0; i < n; i++ {
			st := states[(*rr+i)%n]
			if st.pending() > 0 {
				el, _ := st.pop()
				*rr = (*rr + i + 1) % n
				return el, true
			}
		}
		return element{}, false
	default:
		// ordered, custom and the single-producer case drain edges in
		// declaration order; a custom merge block refines ordering inside
		// its own implementation.
		for _, st := range states {
			if st.pending() > 0 {
				el, _ := st.pop()
				return el, true
			}
		}
		return element{}, false
	}
}

func earlier(a, b element) bool {
	if a.stampMs != b.stampMs {
		return a.stampMs < b.stampMs
	}
	if a.src != b.src {
		return a.src < b.src
	}
	return a.seq < b.seq
}
