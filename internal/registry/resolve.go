package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/source"
)

// ErrResolutionFailed is returned when any referenced module cannot be
// pinned; the diagnostics carry the detail.
var ErrResolutionFailed = errors.New("registry: resolution failed")

// Requirement is one version constraint with provenance, kept so a conflict
// can name every contributor.
type Requirement struct {
	Module     string
	Constraint string // empty means "any version"
	Origin     string
	Span       source.Span
}

// Pin fixes one module to an exact version.
type Pin struct {
	Module  string
	Version string
	Digest  string
}

// Resolution maps every module reachable from a graph to exactly one pinned
// version. One version per module per program: two subtrees wanting
// incompatible majors is a conflict, not a split.
type Resolution struct {
	Pins []Pin // sorted by module

	byModule map[string]string
}

// Version returns the pinned version for a module.
func (res *Resolution) Version(module string) (string, bool) {
	v, ok := res.byModule[module]
	return v, ok
}

// Apply writes the pins into the graph's nodes. Only the caller-owned graph
// is touched; registry-held specs stay immutable.
func (res *Resolution) Apply(g *ir.GraphSpec) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		module, _, err := ir.SplitRef(n.Ref)
		if err != nil {
			continue
		}
		if v, ok := res.byModule[module]; ok {
			n.Pinned = v
		}
	}
}

// ConcreteRef is a "module/name" reference pinned to an exact version.
type ConcreteRef struct {
	Module  string
	Version string
	Name    string
	Digest  string // entry digest of the pinned module@version
}

// Key renders the pinned reference as "module@version:name".
func (c ConcreteRef) Key() string { return ir.FQKey(c.Module, c.Version, c.Name) }

// Resolve pins one "module/name" reference to the highest registered version
// satisfying the constraint, then checks that the picked version actually
// publishes the name. An empty constraint means any version.
func (r *Registry) Resolve(ref, constraint string, rep diag.Reporter) (ConcreteRef, error) {
	module, name, err := ir.SplitRef(ref)
	if err != nil {
		diag.ReportError(rep, diag.ManifestField, source.Span{}, err.Error()).Emit()
		return ConcreteRef{}, ErrResolutionFailed
	}
	pins, ok := r.solve([]Requirement{{
		Module:     module,
		Constraint: constraint,
		Origin:     "reference " + ref,
	}}, rep)
	if !ok {
		return ConcreteRef{}, ErrResolutionFailed
	}
	version := pins[module]
	e, found := r.Entry(module, version)
	if !found || (e.Spec.Block(name) == nil && e.Spec.Graph(name) == nil) {
		diag.ReportError(rep, diag.BlockNotFound, source.Span{},
			fmt.Sprintf("module %s@%s publishes no block or graph %q", module, version, name)).Emit()
		return ConcreteRef{}, ErrResolutionFailed
	}
	return ConcreteRef{Module: module, Version: version, Name: name, Digest: e.Digest}, nil
}

const maxResolveRounds = 16

// ResolveGraph pins every module the graph references, directly or through
// published subgraphs. Subgraph requirements depend on which version gets
// pinned, so resolution iterates to a fixpoint: discover requirements under
// the current pins, solve, repeat until the pins stop moving.
func (r *Registry) ResolveGraph(g *ir.GraphSpec, rep diag.Reporter) (*Resolution, error) {
	var pins map[string]string
	for round := 0; round < maxResolveRounds; round++ {
		reqs, sawSubgraphs, ok := r.discover(g, pins, rep)
		if !ok {
			return nil, ErrResolutionFailed
		}
		if len(reqs) == 0 {
			return &Resolution{byModule: map[string]string{}}, nil
		}
		next, ok := r.solve(reqs, rep)
		if !ok {
			return nil, ErrResolutionFailed
		}
		if !sawSubgraphs || pinsEqual(pins, next) {
			return r.sealResolution(next), nil
		}
		pins = next
	}
	diag.ReportError(rep, diag.ResolutionConflict, g.Span,
		"version resolution did not converge; subgraph requirements keep re-pinning each other").Emit()
	return nil, ErrResolutionFailed
}

// discover walks the graph (and, where pins allow, its published subgraphs)
// collecting requirements. The returned flag reports whether any subgraph
// nodes exist, i.e. whether another round could learn more.
func (r *Registry) discover(g *ir.GraphSpec, pins map[string]string, rep diag.Reporter) ([]Requirement, bool, bool) {
	d := &discovery{
		reg:     r,
		pins:    pins,
		rep:     rep,
		visited: make(map[string]bool),
		ok:      true,
	}
	d.graph(g, "")
	return d.reqs, d.sawSubgraphs, d.ok
}

type discovery struct {
	reg          *Registry
	pins         map[string]string
	rep          diag.Reporter
	reqs         []Requirement
	visited      map[string]bool
	sawSubgraphs bool
	ok           bool
}

func (d *discovery) graph(g *ir.GraphSpec, via string) {
	origin := func(what string) string {
		if via == "" {
			return what
		}
		return via + ": " + what
	}
	for _, req := range g.Requires {
		d.reqs = append(d.reqs, Requirement{
			Module:     req.Module,
			Constraint: req.Constraint,
			Origin:     origin(fmt.Sprintf("graph %s requires %q", g.Name, req.Constraint)),
			Span:       req.Span,
		})
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		module, name, err := ir.SplitRef(n.Ref)
		if err != nil {
			diag.ReportError(d.rep, diag.ManifestField, n.Span,
				origin(fmt.Sprintf("node %s: %v", n.ID, err))).Emit()
			d.ok = false
			continue
		}
		d.reqs = append(d.reqs, Requirement{
			Module:     module,
			Constraint: n.Constraint,
			Origin:     origin(fmt.Sprintf("node %s (%s)", n.ID, n.Ref)),
			Span:       n.Span,
		})
		if n.Kind != ir.NodeSubgraph {
			continue
		}
		d.sawSubgraphs = true
		pinned := d.pins[module]
		if pinned == "" {
			continue // next round, once the module is pinned
		}
		key := ir.FQKey(module, pinned, name)
		if d.visited[key] {
			continue
		}
		d.visited[key] = true
		sub, found := d.reg.Graph(module, pinned, name)
		if !found {
			diag.ReportError(d.rep, diag.GraphNotFound, n.Span,
				origin(fmt.Sprintf("node %s: module %s@%s publishes no graph %q", n.ID, module, pinned, name))).Emit()
			d.ok = false
			continue
		}
		d.graph(sub, origin("subgraph "+n.Ref))
	}
}

// solve picks, per module, the highest registered version satisfying every
// requirement. Modules are processed in sorted order and all failures are
// reported before giving up.
func (r *Registry) solve(reqs []Requirement, rep diag.Reporter) (map[string]string, bool) {
	byModule := make(map[string][]Requirement)
	for _, req := range reqs {
		byModule[req.Module] = append(byModule[req.Module], req)
	}
	modules := make([]string, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	pins := make(map[string]string, len(modules))
	ok := true
	for _, module := range modules {
		mreqs := byModule[module]
		versions := r.Versions(module)
		if len(versions) == 0 {
			b := diag.ReportError(rep, diag.ModuleNotFound, mreqs[0].Span,
				fmt.Sprintf("module %s is not registered", module))
			for _, req := range mreqs {
				b.WithNote(req.Span, "required by "+req.Origin)
			}
			b.Emit()
			ok = false
			continue
		}

		constraints := make([]*semver.Constraints, 0, len(mreqs))
		constraintsOK := true
		for _, req := range mreqs {
			text := req.Constraint
			if text == "" {
				text = "*"
			}
			c, err := semver.NewConstraint(text)
			if err != nil {
				diag.ReportError(rep, diag.ConstraintSyntax, req.Span,
					fmt.Sprintf("%s: constraint %q: %v", req.Origin, req.Constraint, err)).Emit()
				constraintsOK = false
				continue
			}
			constraints = append(constraints, c)
		}
		if !constraintsOK {
			ok = false
			continue
		}

		picked := ""
		for i := len(versions) - 1; i >= 0; i-- {
			v := versions[i]
			satisfiesAll := true
			for _, c := range constraints {
				if !c.Check(v) {
					satisfiesAll = false
					break
				}
			}
			if satisfiesAll {
				picked = v.String()
				break
			}
		}
		if picked == "" {
			reportUnsatisfiable(module, mreqs, versions, rep)
			ok = false
			continue
		}
		pins[module] = picked
	}
	return pins, ok
}

func reportUnsatisfiable(module string, mreqs []Requirement, versions []*semver.Version, rep diag.Reporter) {
	available := make([]string, len(versions))
	for i, v := range versions {
		available[i] = v.String()
	}
	if len(mreqs) == 1 {
		diag.ReportError(rep, diag.VersionNotFound, mreqs[0].Span,
			fmt.Sprintf("no version of %s satisfies %q (available: %s)",
				module, mreqs[0].Constraint, strings.Join(available, ", "))).
			WithNote(mreqs[0].Span, "required by "+mreqs[0].Origin).Emit()
		return
	}
	b := diag.ReportError(rep, diag.ResolutionConflict, mreqs[0].Span,
		fmt.Sprintf("version constraints on %s have an empty intersection (available: %s)",
			module, strings.Join(available, ", ")))
	for _, req := range mreqs {
		text := req.Constraint
		if text == "" {
			text = "*"
		}
		b.WithNote(req.Span, fmt.Sprintf("%s wants %q", req.Origin, text))
	}
	b.Emit()
}

func (r *Registry) sealResolution(pins map[string]string) *Resolution {
	res := &Resolution{byModule: pins}
	modules := make([]string, 0, len(pins))
	for m := range pins {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		digest := ""
		if e, found := r.Entry(m, pins[m]); found {
			digest = e.Digest
		}
		res.Pins = append(res.Pins, Pin{Module: m, Version: pins[m], Digest: digest})
	}
	return res
}

func pinsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
