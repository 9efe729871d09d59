package types

import "fmt"

// Bound is a named capability a generic parameter may demand of the
// concrete type substituted for it.
type Bound uint8

const (
	BoundInvalid Bound = iota
	BoundAdd
	BoundDefault
	BoundOrdered
	BoundEq
	BoundHashable
	BoundSerializable
	BoundClone
)

var boundNames = map[Bound]string{
	BoundAdd:          "Add",
	BoundDefault:      "Default",
	BoundOrdered:      "Ordered",
	BoundEq:           "Eq",
	BoundHashable:     "Hashable",
	BoundSerializable: "Serializable",
	BoundClone:        "Clone",
}

var boundByName = func() map[string]Bound {
	m := make(map[string]Bound, len(boundNames))
	for b, n := range boundNames {
		m[n] = b
	}
	return m
}()

func (b Bound) String() string {
	if n, ok := boundNames[b]; ok {
		return n
	}
	return "invalid"
}

// ParseBound resolves a bound name from a manifest.
func ParseBound(name string) (Bound, error) {
	if b, ok := boundByName[name]; ok {
		return b, nil
	}
	return BoundInvalid, fmt.Errorf("unknown bound %q", name)
}

// Satisfies reports whether concrete type t provides the bound.
// The table is closed: bounds on stream/event/generic never hold, floats
// are excluded from Eq/Ordered/Hashable (NaN breaks them), and structs and
// tuples satisfy recursively over their members.
func Satisfies(t *TypeSpec, b Bound) bool {
	if t == nil {
		return false
	}
	switch b {
	case BoundAdd:
		return t.Kind == KindScalar && t.Scalar.IsNumeric()

	case BoundDefault:
		switch t.Kind {
		case KindScalar:
			return true
		case KindList, KindMap, KindOption:
			return true
		case KindTuple:
			return allElems(t.Elems, BoundDefault)
		case KindStruct:
			return allFields(t.Fields, BoundDefault)
		default:
			// Enums have no designated default variant; results have no
			// neutral value.
			return false
		}

	case BoundOrdered:
		switch t.Kind {
		case KindScalar:
			switch t.Scalar {
			case ScalarBool, ScalarF32, ScalarF64, ScalarUnit:
				return false
			}
			return true
		case KindList, KindOption:
			return Satisfies(t.Elem, BoundOrdered)
		case KindTuple:
			return allElems(t.Elems, BoundOrdered)
		default:
			return false
		}

	case BoundEq:
		switch t.Kind {
		case KindScalar:
			return t.Scalar != ScalarF32 && t.Scalar != ScalarF64
		case KindList, KindMap, KindOption:
			return Satisfies(t.Elem, BoundEq)
		case KindResult:
			return Satisfies(t.Ok, BoundEq) && Satisfies(t.Err, BoundEq)
		case KindTuple:
			return allElems(t.Elems, BoundEq)
		case KindStruct:
			return allFields(t.Fields, BoundEq)
		case KindEnum:
			return allVariants(t.Variants, BoundEq)
		default:
			return false
		}

	case BoundHashable:
		switch t.Kind {
		case KindScalar:
			return t.Scalar != ScalarF32 && t.Scalar != ScalarF64
		case KindList, KindOption:
			return Satisfies(t.Elem, BoundHashable)
		case KindTuple:
			return allElems(t.Elems, BoundHashable)
		case KindStruct:
			return allFields(t.Fields, BoundHashable)
		case KindEnum:
			return allVariants(t.Variants, BoundHashable)
		default:
			// Maps iterate unordered; hashing them would need a canonical
			// order the runtime does not promise.
			return false
		}

	case BoundSerializable:
		switch t.Kind {
		case KindStream, KindEvent, KindGeneric, KindInvalid:
			return false
		case KindScalar:
			return true
		case KindList, KindMap, KindOption:
			return Satisfies(t.Elem, BoundSerializable)
		case KindResult:
			return Satisfies(t.Ok, BoundSerializable) && Satisfies(t.Err, BoundSerializable)
		case KindTuple:
			return allElems(t.Elems, BoundSerializable)
		case KindStruct:
			return allFields(t.Fields, BoundSerializable)
		case KindEnum:
			return allVariants(t.Variants, BoundSerializable)
		}
		return false

	case BoundClone:
		return t.Kind != KindStream && t.Kind != KindEvent &&
			t.Kind != KindGeneric && t.Kind != KindInvalid
	}
	return false
}

// CheckBounds returns the bounds t fails to satisfy, in input order.
func CheckBounds(t *TypeSpec, bounds []Bound) []Bound {
	var missing []Bound
	for _, b := range bounds {
		if !Satisfies(t, b) {
			missing = append(missing, b)
		}
	}
	return missing
}

func allElems(elems []*TypeSpec, b Bound) bool {
	for _, e := range elems {
		if !Satisfies(e, b) {
			return false
		}
	}
	return true
}

func allFields(fields []Field, b Bound) bool {
	for _, f := range fields {
		if !Satisfies(f.Type, b) {
			return false
		}
	}
	return true
}

func allVariants(variants []Variant, b Bound) bool {
	for _, v := range variants {
		if v.Type != nil && !Satisfies(v.Type, b) {
			return false
		}
	}
	return true
}
