package validate

import (
	"fmt"
	"sort"
	"strings"

	"loom/internal/diag"
	"loom/internal/ir"
)

// Check 3: every stream input fed by more than one producer names exactly
// one merge policy, either on each edge or as the node default.

func (c *checker) checkStreams() {
	type portKey struct{ node, port string }
	groups := make(map[portKey][]*ir.Edge)
	for i := range c.g.Edges {
		e := &c.g.Edges[i]
		k := portKey{e.To.Node, e.To.Port}
		groups[k] = append(groups[k], e)
	}
	keys := make([]portKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].node != keys[j].node {
			return keys[i].node < keys[j].node
		}
		return keys[i].port < keys[j].port
	})

	for _, k := range keys {
		edges := groups[k]
		if len(edges) < 2 {
			continue
		}
		info, ok := c.nodes[k.node]
		if !ok || !info.bound() {
			continue
		}
		p := info.input(k.port)
		if p == nil {
			continue
		}
		if p.Multiplicity == ir.MultSingle {
			continue // single-multiplicity fan-in already failed the arity check
		}
		t := c.substituted(p.Type, p.Span, info)
		if t == nil || !t.IsStreaming() {
			continue // non-stream fan-in already failed the arity check
		}
		c.checkMergePolicies(k.node, k.port, info, edges)
	}
}

func (c *checker) checkMergePolicies(node, port string, info *nodeInfo, edges []*ir.Edge) {
	type mergeKey struct{ policy, custom string }
	var declared []mergeKey
	seen := make(map[mergeKey]bool)
	missing := false
	for _, e := range edges {
		policy, custom := e.Policy.Merge, e.Policy.MergeCustom
		if policy == "" {
			policy, custom = info.node.Merge, info.node.MergeCustom
		}
		if policy == "" {
			missing = true
			continue
		}
		k := mergeKey{policy, custom}
		if !seen[k] {
			seen[k] = true
			declared = append(declared, k)
		}
	}
	if missing {
		diag.ReportError(c.rep, diag.StreamMergePolicyMissing, info.node.Span,
			fmt.Sprintf("node %s input %q merges %d streams without a merge policy; declare ordered, timestamp, interleaved or custom:<block>",
				node, port, len(edges))).Emit()
	}
	if len(declared) > 1 {
		names := make([]string, len(declared))
		for i, k := range declared {
			names[i] = k.policy
			if k.custom != "" {
				names[i] = k.policy + ":" + k.custom
			}
		}
		diag.ReportError(c.rep, diag.StreamMergePolicyConflict, info.node.Span,
			fmt.Sprintf("node %s input %q declares conflicting merge policies: %s",
				node, port, strings.Join(names, " vs "))).Emit()
	}
}
