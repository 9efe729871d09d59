package types

import (
	"strings"
)

// Kind discriminates the closed set of type shapes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindScalar
	KindList
	KindMap
	KindOption
	KindResult
	KindTuple
	KindStream
	KindEvent
	KindStruct
	KindEnum
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindOption:
		return "option"
	case KindResult:
		return "result"
	case KindTuple:
		return "tuple"
	case KindStream:
		return "stream"
	case KindEvent:
		return "event"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindGeneric:
		return "generic"
	default:
		return "invalid"
	}
}

// Scalar enumerates the leaf types.
type Scalar uint8

const (
	ScalarInvalid Scalar = iota
	ScalarI32
	ScalarI64
	ScalarU32
	ScalarU64
	ScalarF32
	ScalarF64
	ScalarDecimal
	ScalarBool
	ScalarString
	ScalarBytes
	ScalarDateTime
	ScalarDuration
	ScalarUUID
	ScalarUnit
)

var scalarNames = map[Scalar]string{
	ScalarI32:      "i32",
	ScalarI64:      "i64",
	ScalarU32:      "u32",
	ScalarU64:      "u64",
	ScalarF32:      "f32",
	ScalarF64:      "f64",
	ScalarDecimal:  "decimal",
	ScalarBool:     "bool",
	ScalarString:   "string",
	ScalarBytes:    "bytes",
	ScalarDateTime: "datetime",
	ScalarDuration: "duration",
	ScalarUUID:     "uuid",
	ScalarUnit:     "unit",
}

var scalarByName = func() map[string]Scalar {
	m := make(map[string]Scalar, len(scalarNames))
	for s, n := range scalarNames {
		m[n] = s
	}
	return m
}()

func (s Scalar) String() string {
	if n, ok := scalarNames[s]; ok {
		return n
	}
	return "invalid"
}

// IsInteger reports whether the scalar is a fixed-width integer.
func (s Scalar) IsInteger() bool {
	switch s {
	case ScalarI32, ScalarI64, ScalarU32, ScalarU64:
		return true
	}
	return false
}

// IsNumeric reports whether the scalar supports arithmetic.
func (s Scalar) IsNumeric() bool {
	return s.IsInteger() || s == ScalarF32 || s == ScalarF64 || s == ScalarDecimal
}

// Field is a struct member. Optional+Default carry the backward-compatible
// read contract: a consumer may widen past a producer only across fields
// that are optional and have a declared default.
type Field struct {
	Name     string
	Type     *TypeSpec
	Optional bool
	Default  string // canonical literal text, "" when absent
}

// Variant is an enum member; Type is nil for unit variants.
type Variant struct {
	Name string
	Type *TypeSpec
}

// TypeSpec is the structural type tree. Declared field/variant order is
// preserved for display and serialization; identity sorts by name (canon.go).
type TypeSpec struct {
	Kind     Kind
	Scalar   Scalar      // KindScalar
	Elem     *TypeSpec   // list/option/stream/event element, map value
	Ok       *TypeSpec   // result ok
	Err      *TypeSpec   // result err
	Elems    []*TypeSpec // tuple members
	Name     string      // struct/enum name, generic variable
	Fields   []Field     // struct, declared order
	Variants []Variant   // enum, declared order
}

func MakeScalar(s Scalar) *TypeSpec { return &TypeSpec{Kind: KindScalar, Scalar: s} }

func MakeList(elem *TypeSpec) *TypeSpec { return &TypeSpec{Kind: KindList, Elem: elem} }

// MakeMap builds map<string,V>. Map keys are always strings.
func MakeMap(val *TypeSpec) *TypeSpec { return &TypeSpec{Kind: KindMap, Elem: val} }

func MakeOption(elem *TypeSpec) *TypeSpec { return &TypeSpec{Kind: KindOption, Elem: elem} }

func MakeResult(ok, err *TypeSpec) *TypeSpec {
	return &TypeSpec{Kind: KindResult, Ok: ok, Err: err}
}

func MakeTuple(elems ...*TypeSpec) *TypeSpec { return &TypeSpec{Kind: KindTuple, Elems: elems} }

func MakeStream(elem *TypeSpec) *TypeSpec { return &TypeSpec{Kind: KindStream, Elem: elem} }

func MakeEvent(elem *TypeSpec) *TypeSpec { return &TypeSpec{Kind: KindEvent, Elem: elem} }

func MakeStruct(name string, fields ...Field) *TypeSpec {
	return &TypeSpec{Kind: KindStruct, Name: name, Fields: fields}
}

func MakeEnum(name string, variants ...Variant) *TypeSpec {
	return &TypeSpec{Kind: KindEnum, Name: name, Variants: variants}
}

func MakeGeneric(name string) *TypeSpec { return &TypeSpec{Kind: KindGeneric, Name: name} }

// IsStreaming reports whether the type is a stream or event wrapper.
func (t *TypeSpec) IsStreaming() bool {
	return t != nil && (t.Kind == KindStream || t.Kind == KindEvent)
}

// String renders the type in declared order (display form).
// The identity form lives in Canonical.
func (t *TypeSpec) String() string {
	var sb strings.Builder
	t.render(&sb, false)
	return sb.String()
}

func (t *TypeSpec) render(sb *strings.Builder, canonical bool) {
	if t == nil {
		sb.WriteString("<nil>")
		return
	}
	switch t.Kind {
	case KindScalar:
		sb.WriteString(t.Scalar.String())
	case KindList:
		sb.WriteString("list<")
		t.Elem.render(sb, canonical)
		sb.WriteByte('>')
	case KindMap:
		sb.WriteString("map<string,")
		t.Elem.render(sb, canonical)
		sb.WriteByte('>')
	case KindOption:
		sb.WriteString("option<")
		t.Elem.render(sb, canonical)
		sb.WriteByte('>')
	case KindResult:
		sb.WriteString("result<")
		t.Ok.render(sb, canonical)
		sb.WriteByte(',')
		t.Err.render(sb, canonical)
		sb.WriteByte('>')
	case KindTuple:
		sb.WriteString("tuple<")
		for i, e := range t.Elems {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.render(sb, canonical)
		}
		sb.WriteByte('>')
	case KindStream:
		sb.WriteString("stream<")
		t.Elem.render(sb, canonical)
		sb.WriteByte('>')
	case KindEvent:
		sb.WriteString("event<")
		t.Elem.render(sb, canonical)
		sb.WriteByte('>')
	case KindStruct:
		sb.WriteString("struct ")
		sb.WriteString(t.Name)
		sb.WriteByte('{')
		fields := t.Fields
		if canonical {
			fields = sortedFields(fields)
		}
		for i, f := range fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(f.Name)
			if f.Optional {
				sb.WriteByte('?')
			}
			sb.WriteByte(':')
			f.Type.render(sb, canonical)
			if f.Default != "" {
				sb.WriteByte('=')
				sb.WriteString(f.Default)
			}
		}
		sb.WriteByte('}')
	case KindEnum:
		sb.WriteString("enum ")
		sb.WriteString(t.Name)
		sb.WriteByte('{')
		variants := t.Variants
		if canonical {
			variants = sortedVariants(variants)
		}
		for i, v := range variants {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(v.Name)
			if v.Type != nil {
				sb.WriteByte('(')
				v.Type.render(sb, canonical)
				sb.WriteByte(')')
			}
		}
		sb.WriteByte('}')
	case KindGeneric:
		sb.WriteString(t.Name)
	default:
		sb.WriteString("<invalid>")
	}
}
