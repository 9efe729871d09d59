package types

import (
	"fmt"
	"sort"
)

// Substitute replaces every generic variable in t with its binding.
// An unbound variable is an error naming it.
func Substitute(t *TypeSpec, bindings map[string]*TypeSpec) (*TypeSpec, error) {
	if t == nil {
		return nil, fmt.Errorf("nil type")
	}
	switch t.Kind {
	case KindGeneric:
		bound, ok := bindings[t.Name]
		if !ok {
			return nil, fmt.Errorf("unbound generic %q", t.Name)
		}
		return bound, nil

	case KindScalar:
		return t, nil

	case KindList, KindMap, KindOption, KindStream, KindEvent:
		elem, err := Substitute(t.Elem, bindings)
		if err != nil {
			return nil, err
		}
		if elem == t.Elem {
			return t, nil
		}
		out := *t
		out.Elem = elem
		return &out, nil

	case KindResult:
		ok, err := Substitute(t.Ok, bindings)
		if err != nil {
			return nil, err
		}
		errT, err := Substitute(t.Err, bindings)
		if err != nil {
			return nil, err
		}
		if ok == t.Ok && errT == t.Err {
			return t, nil
		}
		out := *t
		out.Ok, out.Err = ok, errT
		return &out, nil

	case KindTuple:
		elems := make([]*TypeSpec, len(t.Elems))
		changed := false
		for i, e := range t.Elems {
			sub, err := Substitute(e, bindings)
			if err != nil {
				return nil, err
			}
			elems[i] = sub
			changed = changed || sub != e
		}
		if !changed {
			return t, nil
		}
		out := *t
		out.Elems = elems
		return &out, nil

	case KindStruct:
		fields := make([]Field, len(t.Fields))
		changed := false
		for i, f := range t.Fields {
			sub, err := Substitute(f.Type, bindings)
			if err != nil {
				return nil, err
			}
			fields[i] = f
			fields[i].Type = sub
			changed = changed || sub != f.Type
		}
		if !changed {
			return t, nil
		}
		out := *t
		out.Fields = fields
		return &out, nil

	case KindEnum:
		variants := make([]Variant, len(t.Variants))
		changed := false
		for i, v := range t.Variants {
			variants[i] = v
			if v.Type != nil {
				sub, err := Substitute(v.Type, bindings)
				if err != nil {
					return nil, err
				}
				variants[i].Type = sub
				changed = changed || sub != v.Type
			}
		}
		if !changed {
			return t, nil
		}
		out := *t
		out.Variants = variants
		return &out, nil
	}
	return nil, fmt.Errorf("invalid type kind %d", t.Kind)
}

// FreeGenerics returns the distinct generic variable names in t, sorted.
func FreeGenerics(t *TypeSpec) []string {
	seen := make(map[string]bool)
	collectGenerics(t, seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectGenerics(t *TypeSpec, seen map[string]bool) {
	if t == nil {
		return
	}
	switch t.Kind {
	case KindGeneric:
		seen[t.Name] = true
	case KindList, KindMap, KindOption, KindStream, KindEvent:
		collectGenerics(t.Elem, seen)
	case KindResult:
		collectGenerics(t.Ok, seen)
		collectGenerics(t.Err, seen)
	case KindTuple:
		for _, e := range t.Elems {
			collectGenerics(e, seen)
		}
	case KindStruct:
		for _, f := range t.Fields {
			collectGenerics(f.Type, seen)
		}
	case KindEnum:
		for _, v := range t.Variants {
			collectGenerics(v.Type, seen)
		}
	}
}
