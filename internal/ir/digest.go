package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Content digests give modules and graphs a stable identity: the lockfile
// records them so a re-resolve can tell "same pins, different content".
// The rendering is order-insensitive where order carries no meaning (blocks,
// nodes, map keys) and keeps declared order where it does (tuple elements,
// port lists are kept as-declared since they are part of the published
// contract's presentation).

// ModuleDigest returns "sha256:<64 hex>" over the module's canonical form.
func ModuleDigest(m *ModuleSpec) string {
	var sb strings.Builder
	sb.WriteString("module{")
	writeKV(&sb, "name", m.Name)
	writeKV(&sb, "version", m.Version)
	writeList(&sb, "caps", NormalizeEffects(m.Capabilities))
	fmt.Fprintf(&sb, "compat=%t,%t;", m.Compat.WASM, m.Compat.Win64)

	blocks := make([]*BlockSpec, 0, len(m.Blocks))
	for i := range m.Blocks {
		blocks = append(blocks, &m.Blocks[i])
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Name < blocks[j].Name })
	sb.WriteString("blocks=[")
	for _, b := range blocks {
		writeBlock(&sb, b)
	}
	sb.WriteString("];graphs=[")
	graphs := make([]*GraphSpec, 0, len(m.Graphs))
	for i := range m.Graphs {
		graphs = append(graphs, &m.Graphs[i])
	}
	sort.Slice(graphs, func(i, j int) bool { return graphs[i].Name < graphs[j].Name })
	for _, g := range graphs {
		writeGraph(&sb, g)
	}
	sb.WriteString("]}")
	return finish(sb.String())
}

// GraphDigest returns "sha256:<64 hex>" over the graph's canonical form.
// Pinned versions are part of the digest: re-pinning changes identity.
func GraphDigest(g *GraphSpec) string {
	var sb strings.Builder
	writeGraph(&sb, g)
	return finish(sb.String())
}

func finish(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func writeBlock(sb *strings.Builder, b *BlockSpec) {
	sb.WriteString("block{")
	writeKV(sb, "name", b.Name)
	writeKV(sb, "version", b.Version)
	writeKV(sb, "purity", b.Purity.String())
	fmt.Fprintf(sb, "boundary=%t;", b.Boundary)
	writeKV(sb, "det", b.Determinism.String())
	writeList(sb, "effects", NormalizeEffects(b.Effects))
	writeList(sb, "errors", sortedUnique(b.Errors))
	writeGenerics(sb, b.Generics)
	writePorts(sb, "in", b.Inputs)
	writePorts(sb, "out", b.Outputs)
	writePorts(sb, "params", b.Params)
	writeKV(sb, "integrity", b.Integrity)
	sb.WriteString("}")
}

func writeGraph(sb *strings.Builder, g *GraphSpec) {
	sb.WriteString("graph{")
	writeKV(sb, "module", g.Module)
	writeKV(sb, "name", g.Name)
	writeKV(sb, "version", g.Version)
	writeGenerics(sb, g.Generics)
	writeList(sb, "effects", NormalizeEffects(g.Effects))

	reqs := append([]ModuleReq(nil), g.Requires...)
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Module < reqs[j].Module })
	sb.WriteString("requires=[")
	for _, r := range reqs {
		fmt.Fprintf(sb, "%q:%q,", r.Module, r.Constraint)
	}
	sb.WriteString("];")

	writePorts(sb, "inputs", g.Inputs)

	consts := append([]Const(nil), g.Consts...)
	sort.Slice(consts, func(i, j int) bool { return consts[i].ID < consts[j].ID })
	sb.WriteString("consts=[")
	for _, c := range consts {
		fmt.Fprintf(sb, "{%q:%q=", c.ID, c.Type)
		writeLiteral(sb, c.Value)
		sb.WriteString("},")
	}
	sb.WriteString("];")

	nodes := append([]Node(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sb.WriteString("nodes=[")
	for i := range nodes {
		writeNode(sb, &nodes[i])
	}
	sb.WriteString("];")

	edges := append([]Edge(nil), g.Edges...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	sb.WriteString("edges=[")
	for i := range edges {
		writeEdge(sb, &edges[i])
	}
	sb.WriteString("];")

	exports := append([]Export(nil), g.Exports...)
	sort.Slice(exports, func(i, j int) bool { return exports[i].ID < exports[j].ID })
	sb.WriteString("exports=[")
	for _, x := range exports {
		fmt.Fprintf(sb, "{%q=%s.%s:%q},", x.ID, x.Node, x.Port, x.Type)
	}
	sb.WriteString("]}")
}

func writeNode(sb *strings.Builder, n *Node) {
	sb.WriteString("node{")
	writeKV(sb, "id", n.ID)
	writeKV(sb, "kind", n.Kind.String())
	writeKV(sb, "ref", n.Ref)
	writeKV(sb, "constraint", n.Constraint)
	writeKV(sb, "pinned", n.Pinned)
	writeKV(sb, "merge", n.Merge)
	writeKV(sb, "merge_custom", n.MergeCustom)
	sb.WriteString("generics=[")
	for _, k := range sortedStringKeys(n.Generics) {
		fmt.Fprintf(sb, "%s=%q,", k, n.Generics[k])
	}
	sb.WriteString("];params=[")
	for _, k := range sortedAnyKeys(n.Params) {
		fmt.Fprintf(sb, "%s=", k)
		writeLiteral(sb, n.Params[k])
		sb.WriteString(",")
	}
	sb.WriteString("]}")
}

func writeEdge(sb *strings.Builder, e *Edge) {
	sb.WriteString("edge{")
	writeKV(sb, "id", e.ID)
	fmt.Fprintf(sb, "from=%s;to=%s;", e.From, e.To)
	writeKV(sb, "adapter", e.Policy.Adapter)
	sb.WriteString("adapter_params=[")
	for _, k := range sortedAnyKeys(e.Policy.AdapterParams) {
		fmt.Fprintf(sb, "%s=", k)
		writeLiteral(sb, e.Policy.AdapterParams[k])
		sb.WriteString(",")
	}
	sb.WriteString("];")
	writeKV(sb, "bp", e.Policy.Backpressure.String())
	fmt.Fprintf(sb, "bound=%d;", e.Policy.Bound)
	writeKV(sb, "merge", e.Policy.Merge)
	writeKV(sb, "merge_custom", e.Policy.MergeCustom)
	sb.WriteString("}")
}

func writeGenerics(sb *strings.Builder, generics []GenericParam) {
	sb.WriteString("generics=[")
	for _, gp := range generics {
		bounds := append([]string(nil), gp.Bounds...)
		sort.Strings(bounds)
		fmt.Fprintf(sb, "%s:%s,", gp.Name, strings.Join(bounds, "+"))
	}
	sb.WriteString("];")
}

func writePorts(sb *strings.Builder, tag string, ports []PortSpec) {
	sb.WriteString(tag)
	sb.WriteString("=[")
	for i := range ports {
		p := &ports[i]
		// Declared and kind-defaulted multiplicity digest the same.
		fmt.Fprintf(sb, "{%q:%q:%s:%s:%t:", p.Name, p.Type, p.Kind, p.Mult(), p.Optional)
		writeLiteral(sb, p.Default)
		sb.WriteString("},")
	}
	sb.WriteString("];")
}

func writeKV(sb *strings.Builder, key, val string) {
	fmt.Fprintf(sb, "%s=%q;", key, val)
}

func writeList(sb *strings.Builder, key string, vals []string) {
	sb.WriteString(key)
	sb.WriteString("=[")
	for _, v := range vals {
		fmt.Fprintf(sb, "%q,", v)
	}
	sb.WriteString("];")
}

// writeLiteral renders a raw literal deterministically: table keys sorted,
// numbers in canonical form.
func writeLiteral(sb *strings.Builder, raw any) {
	switch v := raw.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case int:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(v, 10))
	case float64:
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		sb.WriteString(strconv.Quote(v))
	case time.Time:
		sb.WriteString(v.UTC().Format(time.RFC3339Nano))
	case []any:
		sb.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeLiteral(sb, e)
		}
		sb.WriteByte(']')
	case map[string]any:
		sb.WriteByte('{')
		for i, k := range sortedAnyKeys(v) {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "%q:", k)
			writeLiteral(sb, v[k])
		}
		sb.WriteByte('}')
	default:
		fmt.Fprintf(sb, "!%T", raw)
	}
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
