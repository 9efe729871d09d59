package registry

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"loom/internal/diag"
	"loom/internal/ir"
	"loom/internal/source"
	"loom/internal/types"
)

// Registration is all-or-nothing: a manifest with any error-level finding is
// rejected whole, so the registry never holds a half-valid module.

var (
	ErrInvalidManifest = errors.New("registry: manifest rejected")
	ErrDuplicateEntry  = errors.New("registry: module version already registered")
)

const maxManifestDiagnostics = 256

// Register validates a decoded manifest and, when clean, stores it. All
// findings (including warnings on success) are forwarded to rep.
func (r *Registry) Register(m *ir.ModuleSpec, rep diag.Reporter) error {
	bag := diag.NewBag(maxManifestDiagnostics)
	br := diag.BagReporter{Bag: bag}

	version := checkModule(m, br)
	forward(bag, rep)
	if bag.HasErrors() || version == nil {
		return ErrInvalidManifest
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lookup(m.Name, m.Version); exists {
		diag.ReportError(rep, diag.DuplicateModule, m.Span,
			fmt.Sprintf("module %s@%s is already registered; publish a new version instead", m.Name, m.Version)).Emit()
		return ErrDuplicateEntry
	}
	r.insert(&Entry{
		Spec:    m,
		Version: version,
		Digest:  ir.ModuleDigest(m),
		File:    m.Span.File,
	})
	return nil
}

// RegisterGraph publishes one graph under an already registered
// module@version. Missing module and version fields default to the owning
// entry. Like Register it is all-or-nothing; the entry digest is recomputed
// on success, so lockfiles pinning this version report stale until re-locked.
func (r *Registry) RegisterGraph(module, version string, g *ir.GraphSpec, rep diag.Reporter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lookup(module, version)
	if !ok {
		diag.ReportError(rep, diag.ModuleNotFound, g.Span,
			fmt.Sprintf("cannot publish graph %q: module %s@%s is not registered", g.Name, module, version)).Emit()
		return ErrInvalidManifest
	}

	gc := *g
	gc.Module = module
	if gc.Version == "" {
		gc.Version = version
	}

	bag := diag.NewBag(maxManifestDiagnostics)
	br := diag.BagReporter{Bag: bag}
	if g.Module != "" && g.Module != module {
		diag.ReportError(br, diag.ManifestField, g.Span,
			fmt.Sprintf("graph %s declares module %q and cannot be published under %s", g.Name, g.Module, module)).Emit()
	}
	checkPublishedGraph(e.Spec, &gc, br)
	forward(bag, rep)
	if bag.HasErrors() {
		return ErrInvalidManifest
	}

	if e.Spec.Block(gc.Name) != nil || e.Spec.Graph(gc.Name) != nil {
		diag.ReportError(rep, diag.ManifestField, g.Span,
			fmt.Sprintf("module %s@%s already publishes %q", module, version, gc.Name)).Emit()
		return ErrDuplicateEntry
	}

	e.Spec.Graphs = append(e.Spec.Graphs, gc)
	e.Digest = ir.ModuleDigest(e.Spec)
	return nil
}

func forward(bag *diag.Bag, rep diag.Reporter) {
	bag.Sort()
	for _, d := range bag.Items() {
		rep.Report(d.Code, d.Severity, d.Primary, d.Message, d.Notes, d.Fixes)
	}
}

func checkModule(m *ir.ModuleSpec, rep diag.Reporter) *semver.Version {
	if !ir.ValidModuleName(m.Name) {
		diag.ReportError(rep, diag.ModuleNameInvalid, m.Span,
			fmt.Sprintf("module name %q must be lowercase dotted segments like \"org.std\"", m.Name)).Emit()
	}
	version, err := semver.StrictNewVersion(m.Version)
	if err != nil {
		diag.ReportError(rep, diag.VersionInvalid, m.Span,
			fmt.Sprintf("module version %q is not exact semver: %v", m.Version, err)).Emit()
	}
	for _, cap := range m.Capabilities {
		if err := ir.ValidCapability(cap); err != nil {
			diag.ReportError(rep, diag.EffectSyntax, m.Span, err.Error()).Emit()
		}
	}

	seen := make(map[string]bool, len(m.Blocks)+len(m.Graphs))
	for i := range m.Blocks {
		b := &m.Blocks[i]
		if seen[b.Name] {
			diag.ReportError(rep, diag.ManifestField, b.Span,
				fmt.Sprintf("module %s publishes %q twice", m.Name, b.Name)).Emit()
		}
		seen[b.Name] = true
		checkBlock(m, b, rep)
	}
	for i := range m.Graphs {
		g := &m.Graphs[i]
		if seen[g.Name] {
			diag.ReportError(rep, diag.ManifestField, g.Span,
				fmt.Sprintf("module %s publishes %q twice", m.Name, g.Name)).Emit()
		}
		seen[g.Name] = true
		checkPublishedGraph(m, g, rep)
	}
	return version
}

func checkBlock(m *ir.ModuleSpec, b *ir.BlockSpec, rep diag.Reporter) {
	if !ir.ValidModuleName(b.Name) {
		diag.ReportError(rep, diag.ModuleNameInvalid, b.Span,
			fmt.Sprintf("block name %q must be lowercase dotted segments like \"math.add\"", b.Name)).Emit()
	}
	if _, err := semver.StrictNewVersion(b.Version); err != nil {
		diag.ReportError(rep, diag.VersionInvalid, b.Span,
			fmt.Sprintf("block %s version %q is not exact semver: %v", b.Name, b.Version, err)).Emit()
	}

	if b.Purity == ir.PurityPure {
		if len(b.Effects) > 0 {
			diag.ReportError(rep, diag.PurityConflict, b.Span,
				fmt.Sprintf("pure block %s declares effects %v", b.Name, b.Effects)).Emit()
		}
		if b.Determinism != ir.DetPure {
			diag.ReportError(rep, diag.PurityConflict, b.Span,
				fmt.Sprintf("pure block %s cannot be %s", b.Name, b.Determinism)).Emit()
		}
		if b.Boundary {
			diag.ReportError(rep, diag.PurityConflict, b.Span,
				fmt.Sprintf("boundary block %s must declare purity \"effect\"", b.Name)).Emit()
		}
	}
	for _, e := range b.Effects {
		if err := ir.ValidEffect(e); err != nil {
			diag.ReportError(rep, diag.EffectSyntax, b.Span,
				fmt.Sprintf("block %s: %v", b.Name, err)).Emit()
			continue
		}
		if !ir.EffectAllowed(e, m.Capabilities) {
			diag.ReportError(rep, diag.DisallowedEffectDomain, b.Span,
				fmt.Sprintf("block %s effect %q is outside module capabilities %v", b.Name, e, m.Capabilities)).Emit()
		}
	}
	if len(b.Effects) > 0 && !b.DeclaresError("capability_denied") {
		diag.ReportError(rep, diag.ErrorDomainMissing, b.Span,
			fmt.Sprintf("effectful block %s must declare the %q error domain", b.Name, "capability_denied")).
			WithFix(`add "capability_denied" to errors`).Emit()
	}
	for _, domain := range b.Errors {
		if !ir.ValidModuleName(domain) {
			diag.ReportError(rep, diag.ManifestField, b.Span,
				fmt.Sprintf("block %s error domain %q must be lowercase dotted segments", b.Name, domain)).Emit()
		}
	}

	generics := checkGenerics(b.Name, b.Generics, rep)
	checkPorts(b.Name, "inputs", b.Inputs, generics, portsInput, rep)
	checkPorts(b.Name, "outputs", b.Outputs, generics, portsOutput, rep)
	checkPorts(b.Name, "params", b.Params, generics, portsParam, rep)
	if len(b.Outputs) == 0 {
		diag.ReportError(rep, diag.BlockNoOutputs, b.Span,
			fmt.Sprintf("block %s declares no outputs", b.Name)).Emit()
	}

	if b.Integrity != "" && !ir.ValidIntegrity(b.Integrity) {
		diag.ReportError(rep, diag.IntegrityFormat, b.Span,
			fmt.Sprintf("block %s integrity %q must be sha256:<64 hex>", b.Name, b.Integrity)).Emit()
	}
}

// checkPublishedGraph covers the manifest-level shape of a graph. Semantic
// graph validation (port compatibility, effects, cycles) happens in the
// validate package once versions are pinned.
func checkPublishedGraph(m *ir.ModuleSpec, g *ir.GraphSpec, rep diag.Reporter) {
	if !ir.ValidModuleName(g.Name) {
		diag.ReportError(rep, diag.ModuleNameInvalid, g.Span,
			fmt.Sprintf("graph name %q must be lowercase dotted segments", g.Name)).Emit()
	}
	if _, err := semver.StrictNewVersion(g.Version); err != nil {
		diag.ReportError(rep, diag.VersionInvalid, g.Span,
			fmt.Sprintf("graph %s version %q is not exact semver: %v", g.Name, g.Version, err)).Emit()
	}
	for _, e := range g.Effects {
		if err := ir.ValidCapability(e); err != nil {
			diag.ReportError(rep, diag.EffectSyntax, g.Span,
				fmt.Sprintf("graph %s: %v", g.Name, err)).Emit()
			continue
		}
		if !ir.EffectAllowed(e, m.Capabilities) {
			diag.ReportError(rep, diag.DisallowedEffectDomain, g.Span,
				fmt.Sprintf("graph %s effect %q is outside module capabilities %v", g.Name, e, m.Capabilities)).Emit()
		}
	}

	generics := checkGenerics(g.Name, g.Generics, rep)
	checkPorts(g.Name, "inputs", g.Inputs, generics, portsInput, rep)

	for _, req := range g.Requires {
		if !ir.ValidModuleName(req.Module) {
			diag.ReportError(rep, diag.ModuleNameInvalid, req.Span,
				fmt.Sprintf("required module name %q is invalid", req.Module)).Emit()
		}
		checkConstraint(req.Constraint, req.Span, rep)
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !ir.ValidID(n.ID) {
			diag.ReportError(rep, diag.ManifestField, n.Span,
				fmt.Sprintf("node id %q must be one lowercase snake_case segment", n.ID)).Emit()
		}
		if _, _, err := ir.SplitRef(n.Ref); err != nil {
			diag.ReportError(rep, diag.ManifestField, n.Span,
				fmt.Sprintf("node %s: %v", n.ID, err)).Emit()
		}
		checkConstraint(n.Constraint, n.Span, rep)
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		if !ir.ValidID(e.ID) {
			diag.ReportError(rep, diag.ManifestField, e.Span,
				fmt.Sprintf("edge id %q must be one lowercase snake_case segment", e.ID)).Emit()
		}
	}
	for i := range g.Consts {
		c := &g.Consts[i]
		if !ir.ValidID(c.ID) {
			diag.ReportError(rep, diag.ManifestField, c.Span,
				fmt.Sprintf("const id %q must be one lowercase snake_case segment", c.ID)).Emit()
		}
		t, err := types.Parse(c.Type)
		if err != nil {
			diag.ReportError(rep, diag.TypeSyntax, c.Span,
				fmt.Sprintf("const %s: %v", c.ID, err)).Emit()
			continue
		}
		if free := types.FreeGenerics(t); len(free) > 0 {
			diag.ReportError(rep, diag.GenericUnbound, c.Span,
				fmt.Sprintf("const %s type %s mentions unbound generics %v", c.ID, c.Type, free)).Emit()
		}
	}
	for i := range g.Exports {
		x := &g.Exports[i]
		if !ir.ValidID(x.ID) {
			diag.ReportError(rep, diag.ManifestField, x.Span,
				fmt.Sprintf("export id %q must be one lowercase snake_case segment", x.ID)).Emit()
		}
		if g.Node(x.Node) == nil {
			diag.ReportError(rep, diag.ExportInvalid, x.Span,
				fmt.Sprintf("export %s references missing node %q", x.ID, x.Node)).Emit()
		}
		if x.Type == "" {
			diag.ReportError(rep, diag.ManifestField, x.Span,
				fmt.Sprintf("export %s in a published graph must declare its type", x.ID)).Emit()
			continue
		}
		if _, err := types.Parse(x.Type); err != nil {
			diag.ReportError(rep, diag.TypeSyntax, x.Span,
				fmt.Sprintf("export %s: %v", x.ID, err)).Emit()
		}
	}
}

func checkConstraint(constraint string, span source.Span, rep diag.Reporter) {
	if constraint == "" {
		return
	}
	if _, err := semver.NewConstraint(constraint); err != nil {
		diag.ReportError(rep, diag.ConstraintSyntax, span,
			fmt.Sprintf("constraint %q: %v", constraint, err)).Emit()
	}
}

func checkGenerics(owner string, generics []ir.GenericParam, rep diag.Reporter) map[string]bool {
	declared := make(map[string]bool, len(generics))
	for i := range generics {
		gp := &generics[i]
		if !ir.ValidGenericName(gp.Name) {
			diag.ReportError(rep, diag.ManifestField, gp.Span,
				fmt.Sprintf("%s: generic %q must start with an uppercase letter", owner, gp.Name)).Emit()
		}
		if declared[gp.Name] {
			diag.ReportError(rep, diag.ManifestField, gp.Span,
				fmt.Sprintf("%s: generic %q declared twice", owner, gp.Name)).Emit()
		}
		declared[gp.Name] = true
		for _, bound := range gp.Bounds {
			if _, err := types.ParseBound(bound); err != nil {
				diag.ReportError(rep, diag.ManifestField, gp.Span,
					fmt.Sprintf("%s: generic %s: %v", owner, gp.Name, err)).Emit()
			}
		}
	}
	return declared
}

type portSection uint8

const (
	portsInput portSection = iota
	portsOutput
	portsParam
)

func checkPorts(owner, section string, ports []ir.PortSpec, generics map[string]bool, kind portSection, rep diag.Reporter) {
	seen := make(map[string]bool, len(ports))
	for i := range ports {
		p := &ports[i]
		if seen[p.Name] {
			diag.ReportError(rep, diag.PortNameDuplicate, p.Span,
				fmt.Sprintf("%s: %s port %q declared twice", owner, section, p.Name)).Emit()
		}
		seen[p.Name] = true

		if p.Type == "" {
			diag.ReportError(rep, diag.ManifestField, p.Span,
				fmt.Sprintf("%s: port %q has no type", owner, p.Name)).Emit()
			continue
		}
		t, err := types.Parse(p.Type)
		if err != nil {
			diag.ReportError(rep, diag.TypeSyntax, p.Span,
				fmt.Sprintf("%s: port %q: %v", owner, p.Name, err)).Emit()
			continue
		}
		free := types.FreeGenerics(t)
		for _, name := range free {
			if !generics[name] {
				diag.ReportError(rep, diag.GenericUnbound, p.Span,
					fmt.Sprintf("%s: port %q uses undeclared generic %s", owner, p.Name, name)).Emit()
			}
		}
		checkPortKind(owner, p, t, rep)

		switch kind {
		case portsOutput:
			if p.HasDefault() {
				diag.ReportError(rep, diag.ManifestField, p.Span,
					fmt.Sprintf("%s: output %q cannot declare a default", owner, p.Name)).Emit()
			}
			if p.Optional {
				diag.ReportError(rep, diag.ManifestField, p.Span,
					fmt.Sprintf("%s: output %q cannot be optional", owner, p.Name)).Emit()
			}
		case portsParam:
			if t.IsStreaming() || p.Kind == ir.PortStream || p.Kind == ir.PortEvent {
				diag.ReportError(rep, diag.PortKindMismatch, p.Span,
					fmt.Sprintf("%s: param %q cannot be a stream or event", owner, p.Name)).Emit()
			}
		}

		if p.HasDefault() && kind != portsOutput {
			if len(free) > 0 {
				diag.ReportError(rep, diag.DefaultTypeMismatch, p.Span,
					fmt.Sprintf("%s: port %q cannot default a generic-typed value", owner, p.Name)).Emit()
			} else if _, err := ir.DecodeValue(p.Default, t); err != nil {
				diag.ReportError(rep, diag.DefaultTypeMismatch, p.Span,
					fmt.Sprintf("%s: port %q default: %v", owner, p.Name, err)).Emit()
			}
		}
	}
}

func checkPortKind(owner string, p *ir.PortSpec, t *types.TypeSpec, rep diag.Reporter) {
	ok := true
	switch p.Kind {
	case ir.PortStream:
		ok = t.Kind == types.KindStream
	case ir.PortEvent:
		ok = t.Kind == types.KindEvent
	case ir.PortValue:
		ok = !t.IsStreaming()
	case ir.PortComposite:
		switch t.Kind {
		case types.KindStruct, types.KindEnum, types.KindList, types.KindMap, types.KindTuple:
		default:
			ok = false
		}
	}
	if !ok {
		diag.ReportError(rep, diag.PortKindMismatch, p.Span,
			fmt.Sprintf("%s: port %q is declared %s but its type is %s", owner, p.Name, p.Kind, p.Type)).Emit()
	}
	if p.Multiplicity == ir.MultMany && p.Kind != ir.PortStream && p.Kind != ir.PortEvent {
		diag.ReportError(rep, diag.MultiplicityInvalid, p.Span,
			fmt.Sprintf("%s: %s port %q cannot declare multiplicity \"many\"", owner, p.Kind, p.Name)).Emit()
	}
}
