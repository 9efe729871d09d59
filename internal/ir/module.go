package ir

import (
	"fmt"

	"loom/internal/source"
)

// Purity partitions blocks into the pure core and the effectful boundary.
type Purity uint8

const (
	PurityPure Purity = iota
	PurityEffect
)

func (p Purity) String() string {
	if p == PurityEffect {
		return "effect"
	}
	return "pure"
}

// ParsePurity reads the manifest field. Empty defaults to pure.
func ParsePurity(s string) (Purity, error) {
	switch s {
	case "", "pure":
		return PurityPure, nil
	case "effect":
		return PurityEffect, nil
	}
	return PurityPure, fmt.Errorf("purity must be \"pure\" or \"effect\", got %q", s)
}

// Determinism declares what a block's output depends on beyond its inputs.
// Anything except DetPure makes a node non-reproducible unless the scheduler
// injects a seed or virtual clock.
type Determinism uint8

const (
	DetPure Determinism = iota
	DetTime
	DetEntropy
	DetIO
)

var determinismNames = [...]string{
	DetPure:    "pure",
	DetTime:    "time_dependent",
	DetEntropy: "entropy_dependent",
	DetIO:      "io_dependent",
}

func (d Determinism) String() string {
	if int(d) < len(determinismNames) {
		return determinismNames[d]
	}
	return "pure"
}

func ParseDeterminism(s string) (Determinism, error) {
	switch s {
	case "", "pure":
		return DetPure, nil
	case "time_dependent":
		return DetTime, nil
	case "entropy_dependent":
		return DetEntropy, nil
	case "io_dependent":
		return DetIO, nil
	}
	return DetPure, fmt.Errorf("unknown determinism %q", s)
}

// PortKind is the declared transport shape of a port. It must agree with the
// port's type: stream ports carry stream<T>, event ports event<T>, value and
// composite ports anything non-streaming.
type PortKind uint8

const (
	PortValue PortKind = iota
	PortStream
	PortEvent
	PortComposite
)

var portKindNames = [...]string{
	PortValue:     "value",
	PortStream:    "stream",
	PortEvent:     "event",
	PortComposite: "composite",
}

func (k PortKind) String() string {
	if int(k) < len(portKindNames) {
		return portKindNames[k]
	}
	return "value"
}

func ParsePortKind(s string) (PortKind, error) {
	switch s {
	case "", "value":
		return PortValue, nil
	case "stream":
		return PortStream, nil
	case "event":
		return PortEvent, nil
	case "composite":
		return PortComposite, nil
	}
	return PortValue, fmt.Errorf("unknown port kind %q", s)
}

// Multiplicity bounds how many producers may feed an input port. Left
// undeclared it follows the port kind: stream and event ports fan in, value
// and composite ports take one producer. A stream port may declare "single"
// to forbid fan-in; "many" on a value or composite port is rejected at
// registration.
type Multiplicity uint8

const (
	MultDefault Multiplicity = iota // undeclared, resolved from the port kind
	MultSingle
	MultMany
)

func (m Multiplicity) String() string {
	switch m {
	case MultSingle:
		return "single"
	case MultMany:
		return "many"
	}
	return "default"
}

// ParseMultiplicity reads the manifest field. Empty means MultDefault.
func ParseMultiplicity(s string) (Multiplicity, error) {
	switch s {
	case "":
		return MultDefault, nil
	case "single":
		return MultSingle, nil
	case "many":
		return MultMany, nil
	}
	return MultDefault, fmt.Errorf("multiplicity must be \"single\" or \"many\", got %q", s)
}

// PortSpec declares one named input, output or param of a block, or one
// boundary input of a graph. Type holds the textual type expression; parsing
// and checking happen at registration.
//
// Default is the raw literal as decoded from the manifest (nil when absent);
// DecodeValue canonicalizes it against the parsed type.
type PortSpec struct {
	Name         string
	Type         string
	Kind         PortKind
	Multiplicity Multiplicity
	Optional     bool
	Default      any
	Span         source.Span
}

// HasDefault reports whether the manifest supplied a default literal.
func (p *PortSpec) HasDefault() bool { return p.Default != nil }

// Mult resolves the effective multiplicity: the declared one, or the kind
// default when the manifest left it out.
func (p *PortSpec) Mult() Multiplicity {
	if p.Multiplicity != MultDefault {
		return p.Multiplicity
	}
	if p.Kind == PortStream || p.Kind == PortEvent {
		return MultMany
	}
	return MultSingle
}

// FansIn reports whether more than one producer may feed this port.
func (p *PortSpec) FansIn() bool { return p.Mult() == MultMany }

// GenericParam is a declared type variable with its bound names, e.g.
// T: [Add, Default].
type GenericParam struct {
	Name   string
	Bounds []string
	Span   source.Span
}

// BlockSpec is the manifest of a single block: its contract, not its
// implementation. Implementations are looked up at run time by the fully
// qualified key.
//
// Boundary marks an effectful block that materializes effectful data into
// plain values; pure nodes may consume from a boundary but never from any
// other effectful producer.
type BlockSpec struct {
	Name        string // local dotted name, e.g. "math.add"
	Version     string // defaults to the owning module version
	Title       string
	Description string
	Purity      Purity
	Boundary    bool
	Effects     []string
	Determinism Determinism
	Errors      []string // declared error domains
	Generics    []GenericParam
	Inputs      []PortSpec
	Outputs     []PortSpec
	Params      []PortSpec
	Integrity   string // "sha256:<64 hex>", optional
	Span        source.Span
}

// Input returns the named input port, or nil.
func (b *BlockSpec) Input(name string) *PortSpec { return findPort(b.Inputs, name) }

// Output returns the named output port, or nil.
func (b *BlockSpec) Output(name string) *PortSpec { return findPort(b.Outputs, name) }

// Param returns the named param, or nil.
func (b *BlockSpec) Param(name string) *PortSpec { return findPort(b.Params, name) }

func findPort(ports []PortSpec, name string) *PortSpec {
	for i := range ports {
		if ports[i].Name == name {
			return &ports[i]
		}
	}
	return nil
}

// Generic returns the declared type variable, or nil.
func (b *BlockSpec) Generic(name string) *GenericParam {
	for i := range b.Generics {
		if b.Generics[i].Name == name {
			return &b.Generics[i]
		}
	}
	return nil
}

// DeclaresError reports whether domain is one of the block's declared error
// domains.
func (b *BlockSpec) DeclaresError(domain string) bool {
	for _, d := range b.Errors {
		if d == domain {
			return true
		}
	}
	return false
}

// CompatFlags mark the targets a module is published for.
type CompatFlags struct {
	WASM  bool
	Win64 bool
}

// ModuleSpec is one decoded module manifest: identity, capability budget and
// the blocks and graphs it publishes. A module is immutable once registered;
// changed content means a new version.
type ModuleSpec struct {
	Name         string // dotted lowercase, e.g. "org.std"
	Version      string // exact semver
	Title        string
	Description  string
	Capabilities []string // effect domains this module may use, wildcards allowed
	Compat       CompatFlags
	Blocks       []BlockSpec
	Graphs       []GraphSpec
	Span         source.Span
}

// Block returns the named block spec, or nil.
func (m *ModuleSpec) Block(name string) *BlockSpec {
	for i := range m.Blocks {
		if m.Blocks[i].Name == name {
			return &m.Blocks[i]
		}
	}
	return nil
}

// Graph returns the named graph spec, or nil.
func (m *ModuleSpec) Graph(name string) *GraphSpec {
	for i := range m.Graphs {
		if m.Graphs[i].Name == name {
			return &m.Graphs[i]
		}
	}
	return nil
}
