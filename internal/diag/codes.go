package diag

import (
	"fmt"
)

// Code is a compact numeric diagnostic identifier. Codes are grouped in
// families by their thousands digit; the stable, tooling-facing identifier
// is Name(), which never changes once published.
type Code uint16

const (
	UnknownCode Code = 0

	// Type system (TYP)
	TypeSyntax                Code = 1001
	UnknownType               Code = 1002
	TypeMismatch              Code = 1003
	GenericUnsatisfied        Code = 1004
	GenericUnbound            Code = 1005
	MissingDefaultForNewInput Code = 1006

	// Registry and version resolution (RES)
	ModuleNotFound     Code = 2001
	VersionNotFound    Code = 2002
	ResolutionConflict Code = 2003
	BlockNotFound      Code = 2004
	GraphNotFound      Code = 2005
	DuplicateModule    Code = 2006
	ConstraintSyntax   Code = 2007
	LockfileStale      Code = 2008

	// Manifest and spec-level checks (MAN)
	ManifestSyntax      Code = 3001
	ManifestField       Code = 3002
	ModuleNameInvalid   Code = 3003
	VersionInvalid      Code = 3004
	PurityConflict      Code = 3005
	PortKindMismatch    Code = 3006
	PortNameDuplicate   Code = 3007
	DefaultTypeMismatch Code = 3008
	EffectSyntax        Code = 3009
	IntegrityFormat     Code = 3010
	BlockNoOutputs      Code = 3011
	ErrorDomainMissing  Code = 3012
	MultiplicityInvalid Code = 3013

	// Graph validation (VAL)
	PortNotFound              Code = 4001
	DuplicateNode             Code = 4002
	DuplicateEdge             Code = 4003
	MacroNotLowered           Code = 4004
	NodeUnresolved            Code = 4005
	CycleDetected             Code = 4006
	StreamMergePolicyMissing  Code = 4007
	StreamMergePolicyConflict Code = 4008
	EffectBoundaryViolation   Code = 4009
	DisallowedEffectDomain    Code = 4010
	NonDeterminismNotSeeded   Code = 4011
	AdapterSuggested          Code = 4012
	ExportInvalid             Code = 4013
	ConstNotFound             Code = 4014
	ParamTypeMismatch         Code = 4015
	PortArityConflict         Code = 4016
	ConstTypeMismatch         Code = 4017
	InputUnconnected          Code = 4018

	// Runtime (RUN)
	UndeclaredError  Code = 5001
	CapabilityDenied Code = 5002
	RunCancelled     Code = 5003
	ProviderMissing  Code = 5004
)

// codeNames maps every code to its stable identifier. Tools match on these
// strings, so entries are append-only.
var codeNames = map[Code]string{
	UnknownCode: "Unknown",

	TypeSyntax:                "TypeSyntax",
	UnknownType:               "UnknownType",
	TypeMismatch:              "TypeMismatch",
	GenericUnsatisfied:        "GenericUnsatisfied",
	GenericUnbound:            "GenericUnbound",
	MissingDefaultForNewInput: "MissingDefaultForNewInput",

	ModuleNotFound:     "ModuleNotFound",
	VersionNotFound:    "VersionNotFound",
	ResolutionConflict: "ResolutionConflict",
	BlockNotFound:      "BlockNotFound",
	GraphNotFound:      "GraphNotFound",
	DuplicateModule:    "DuplicateModule",
	ConstraintSyntax:   "ConstraintSyntax",
	LockfileStale:      "LockfileStale",

	ManifestSyntax:      "ManifestSyntax",
	ManifestField:       "ManifestField",
	ModuleNameInvalid:   "ModuleNameInvalid",
	VersionInvalid:      "VersionInvalid",
	PurityConflict:      "PurityConflict",
	PortKindMismatch:    "PortKindMismatch",
	PortNameDuplicate:   "PortNameDuplicate",
	DefaultTypeMismatch: "DefaultTypeMismatch",
	EffectSyntax:        "EffectSyntax",
	IntegrityFormat:     "IntegrityFormat",
	BlockNoOutputs:      "BlockNoOutputs",
	ErrorDomainMissing:  "ErrorDomainMissing",
	MultiplicityInvalid: "MultiplicityInvalid",

	PortNotFound:              "PortNotFound",
	DuplicateNode:             "DuplicateNode",
	DuplicateEdge:             "DuplicateEdge",
	MacroNotLowered:           "MacroNotLowered",
	NodeUnresolved:            "NodeUnresolved",
	CycleDetected:             "CycleDetected",
	StreamMergePolicyMissing:  "StreamMergePolicyMissing",
	StreamMergePolicyConflict: "StreamMergePolicyConflict",
	EffectBoundaryViolation:   "EffectBoundaryViolation",
	DisallowedEffectDomain:    "DisallowedEffectDomain",
	NonDeterminismNotSeeded:   "NonDeterminismNotSeeded",
	AdapterSuggested:          "AdapterSuggested",
	ExportInvalid:             "ExportInvalid",
	ConstNotFound:             "ConstNotFound",
	ParamTypeMismatch:         "ParamTypeMismatch",
	PortArityConflict:         "PortArityConflict",
	ConstTypeMismatch:         "ConstTypeMismatch",
	InputUnconnected:          "InputUnconnected",

	UndeclaredError:  "UndeclaredError",
	CapabilityDenied: "CapabilityDenied",
	RunCancelled:     "RunCancelled",
	ProviderMissing:  "ProviderMissing",
}

var codeDescription = map[Code]string{
	UnknownCode: "unknown diagnostic",

	TypeSyntax:                "type expression could not be parsed",
	UnknownType:               "type name is not known",
	TypeMismatch:              "producer and consumer types are incompatible",
	GenericUnsatisfied:        "concrete type does not satisfy a generic bound",
	GenericUnbound:            "generic variable has no binding",
	MissingDefaultForNewInput: "added struct field needs optional+default for compatible reads",

	ModuleNotFound:     "module is not published in the registry",
	VersionNotFound:    "no published version satisfies the constraint",
	ResolutionConflict: "version constraints have an empty intersection",
	BlockNotFound:      "block reference does not exist in the module",
	GraphNotFound:      "graph reference does not exist in the module",
	DuplicateModule:    "module@version is already published",
	ConstraintSyntax:   "version constraint could not be parsed",
	LockfileStale:      "lockfile pins drifted from a fresh resolution",

	ManifestSyntax:      "manifest could not be decoded",
	ManifestField:       "manifest field is missing or malformed",
	ModuleNameInvalid:   "module name must be lowercase dotted segments",
	VersionInvalid:      "version is not valid semver",
	PurityConflict:      "pure block declares effects",
	PortKindMismatch:    "port kind disagrees with its declared type",
	PortNameDuplicate:   "port name is used twice on one block",
	DefaultTypeMismatch: "default value does not match the port type",
	EffectSyntax:        "effect string is malformed",
	IntegrityFormat:     "integrity digest is not sha256:<64 hex>",
	BlockNoOutputs:      "block declares no outputs",
	ErrorDomainMissing:  "effectful block must declare the capability_denied error domain",
	MultiplicityInvalid: "multiplicity \"many\" needs a stream or event port",

	PortNotFound:              "edge endpoint references a missing node or port",
	DuplicateNode:             "node id is used twice",
	DuplicateEdge:             "edge id is used twice",
	MacroNotLowered:           "macro nodes must be expanded before validation",
	NodeUnresolved:            "node has no pinned version; run resolution first",
	CycleDetected:             "cycle has no stateful breaker",
	StreamMergePolicyMissing:  "multi-producer stream input needs a merge policy",
	StreamMergePolicyConflict: "fan-in edges declare different merge policies",
	EffectBoundaryViolation:   "pure node consumes directly from an effectful producer",
	DisallowedEffectDomain:    "node effect is outside the module capabilities",
	NonDeterminismNotSeeded:   "node lacks a seed/clock and is not reproducible",
	AdapterSuggested:          "implicit coercion available; insert the named adapter",
	ExportInvalid:             "export references a missing node or port",
	ConstNotFound:             "binding references a missing const",
	ParamTypeMismatch:         "param value does not match the declared param type",
	PortArityConflict:         "single-value input has more than one producer",
	ConstTypeMismatch:         "const literal does not match its declared type",
	InputUnconnected:          "required input has no incoming edge and no default",

	UndeclaredError:  "error value is outside the block's declared error domains",
	CapabilityDenied: "capability provider refused the effect",
	RunCancelled:     "run was cancelled",
	ProviderMissing:  "no implementation registered for a block",
}

// Name returns the stable tooling-facing identifier, e.g. "TypeMismatch".
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return codeNames[UnknownCode]
}

// ID returns the short family-prefixed form, e.g. "VAL4006".
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("TYP%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("MAN%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("VAL%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("RUN%04d", ic)
	}
	return "E0000"
}

// Title returns a one-line description of the code.
func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return c.Name()
}
