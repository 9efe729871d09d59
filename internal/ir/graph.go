package ir

import (
	"fmt"
	"strings"

	"loom/internal/source"
)

// Reserved endpoint node ids. Edges from these pseudo-nodes bind graph
// boundary inputs and const-pool literals to ordinary node inputs, so the
// scheduler sees exactly one input mechanism.
const (
	InputNode = "$input"
	ConstNode = "$const"
)

// NodeKind tells the validator what a node reference points at.
type NodeKind uint8

const (
	NodeBlock NodeKind = iota
	NodeSubgraph
	NodeMacro
)

var nodeKindNames = [...]string{
	NodeBlock:    "block",
	NodeSubgraph: "subgraph",
	NodeMacro:    "macro",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "block"
}

func ParseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "", "block":
		return NodeBlock, nil
	case "subgraph":
		return NodeSubgraph, nil
	case "macro":
		return NodeMacro, nil
	}
	return NodeBlock, fmt.Errorf("unknown node kind %q", s)
}

// Backpressure selects what happens when a bounded stream buffer is full.
type Backpressure uint8

const (
	BackpressureBlock Backpressure = iota
	BackpressureDropOldest
	BackpressureDropNewest
	BackpressureExpand
)

var backpressureNames = [...]string{
	BackpressureBlock:      "block",
	BackpressureDropOldest: "drop_oldest",
	BackpressureDropNewest: "drop_newest",
	BackpressureExpand:     "expand",
}

func (b Backpressure) String() string {
	if int(b) < len(backpressureNames) {
		return backpressureNames[b]
	}
	return "block"
}

func ParseBackpressure(s string) (Backpressure, error) {
	switch s {
	case "", "block":
		return BackpressureBlock, nil
	case "drop_oldest":
		return BackpressureDropOldest, nil
	case "drop_newest":
		return BackpressureDropNewest, nil
	case "expand":
		return BackpressureExpand, nil
	}
	return BackpressureBlock, fmt.Errorf("unknown backpressure policy %q", s)
}

// Merge policies for stream fan-in. CustomName holds the block reference
// after "custom:".
const (
	MergeOrdered     = "ordered"
	MergeTimestamp   = "timestamp"
	MergeInterleaved = "interleaved"
	MergeCustom      = "custom"
)

// ParseMerge splits a merge policy string into its policy and, for custom
// merges, the named merge function. Empty input means no policy declared.
func ParseMerge(s string) (policy, custom string, err error) {
	switch s {
	case "":
		return "", "", nil
	case MergeOrdered, MergeTimestamp, MergeInterleaved:
		return s, "", nil
	}
	if rest, ok := strings.CutPrefix(s, "custom:"); ok && rest != "" {
		return MergeCustom, rest, nil
	}
	return "", "", fmt.Errorf("unknown merge policy %q", s)
}

// EdgePolicy carries the per-edge behaviors: an optional named adapter
// applied to every element, the backpressure mode with its buffer bound, and
// the stream merge policy for fan-in edges.
type EdgePolicy struct {
	Adapter       string
	AdapterParams map[string]any
	Backpressure  Backpressure
	Bound         int // buffer capacity; 0 means the scheduler default
	Merge         string
	MergeCustom   string
}

// Endpoint addresses one side of an edge: a node id plus a port name. The
// reserved ids InputNode and ConstNode address graph inputs and consts; for
// ConstNode the Port field holds the const id.
type Endpoint struct {
	Node string
	Port string
}

func (e Endpoint) String() string { return e.Node + "." + e.Port }

// IsBoundary reports whether the endpoint is one of the reserved
// pseudo-nodes.
func (e Endpoint) IsBoundary() bool { return e.Node == InputNode || e.Node == ConstNode }

// Edge is one directed dataflow connection.
type Edge struct {
	ID     string
	From   Endpoint
	To     Endpoint
	Policy EdgePolicy
	Span   source.Span
}

// Node instantiates a block or nested graph. Ref is "module/name"; the
// Constraint narrows acceptable versions and Pinned is filled by resolution.
// Generics bind the target's type variables to concrete type text; Params
// hold raw literals for the target's declared params. Merge, when set, is
// the default fan-in policy for every stream input of the node; individual
// edges may override it.
type Node struct {
	ID          string
	Kind        NodeKind
	Ref         string
	Constraint  string
	Pinned      string
	Generics    map[string]string
	Params      map[string]any
	Merge       string
	MergeCustom string
	Span        source.Span
}

// ModuleReq is a graph-level version requirement, e.g. org.std with "^1.4".
type ModuleReq struct {
	Module     string
	Constraint string
	Span       source.Span
}

// Export publishes one inner node output under a stable name. Type is the
// declared type of the exported port; module-published graphs must declare
// it so consumers can type subgraph nodes without descending into them.
type Export struct {
	ID   string
	Node string
	Port string
	Type string
	Span source.Span
}

// Const is one literal in the graph's const pool, referenced by edges from
// the ConstNode pseudo-node.
type Const struct {
	ID    string
	Type  string
	Value any
	Span  source.Span
}

// GraphSpec is a dataflow program: typed boundary inputs, a node list, the
// edge list and the exported outputs. Graphs appear standalone (an
// application entry) or published inside a module manifest.
type GraphSpec struct {
	Schema      string // format tag, currently "loom/graph@1"
	Module      string // owning module name
	Name        string
	Version     string
	Title       string
	Description string
	Generics    []GenericParam
	Requires    []ModuleReq
	Effects     []string // self-declared effect budget
	Inputs      []PortSpec
	Nodes       []Node
	Edges       []Edge
	Exports     []Export
	Consts      []Const
	Span        source.Span
}

// GraphSchema is the only schema tag this build reads or writes.
const GraphSchema = "loom/graph@1"

// Node returns the node with the given id, or nil.
func (g *GraphSpec) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Input returns the named boundary input, or nil.
func (g *GraphSpec) Input(name string) *PortSpec { return findPort(g.Inputs, name) }

// Const returns the const with the given id, or nil.
func (g *GraphSpec) Const(id string) *Const {
	for i := range g.Consts {
		if g.Consts[i].ID == id {
			return &g.Consts[i]
		}
	}
	return nil
}

// Export returns the export with the given id, or nil.
func (g *GraphSpec) Export(id string) *Export {
	for i := range g.Exports {
		if g.Exports[i].ID == id {
			return &g.Exports[i]
		}
	}
	return nil
}

// EdgesInto returns the edges whose target is the given node, in declaration
// order.
func (g *GraphSpec) EdgesInto(nodeID string) []*Edge {
	var out []*Edge
	for i := range g.Edges {
		if g.Edges[i].To.Node == nodeID {
			out = append(out, &g.Edges[i])
		}
	}
	return out
}

// EdgesFrom returns the edges whose source is the given node, in declaration
// order.
func (g *GraphSpec) EdgesFrom(nodeID string) []*Edge {
	var out []*Edge
	for i := range g.Edges {
		if g.Edges[i].From.Node == nodeID {
			out = append(out, &g.Edges[i])
		}
	}
	return out
}
