package types

// CompatKind classifies producer→consumer compatibility.
type CompatKind uint8

const (
	// Identical means the TypeIDs match; no adapter is ever needed.
	Identical CompatKind = iota
	// Coercible means a whitelisted implicit coercion exists; Compat.Adapter
	// names the adapter a tool should insert to make the edge explicit.
	Coercible
	// Incompatible requires an explicit adapter node authored by the user.
	Incompatible
)

func (k CompatKind) String() string {
	switch k {
	case Identical:
		return "identical"
	case Coercible:
		return "coercible"
	case Incompatible:
		return "incompatible"
	}
	return "unknown"
}

// Adapter names for the whitelisted coercions.
const (
	AdapterWiden        = "widen"
	AdapterIntToDecimal = "int_to_decimal"
	AdapterWrapSome     = "wrap_some"
	AdapterWrapOk       = "wrap_ok"
	AdapterWidenStruct  = "widen_struct"
)

// Compat is the result of a compatibility query.
type Compat struct {
	Kind    CompatKind
	Adapter string
	// MissingDefaults lists consumer struct fields that block a
	// widen_struct coercion because they are not optional-with-default.
	MissingDefaults []string
}

// scalarWiden is the fixed whitelist of implicit scalar coercions:
// representable widenings plus integer→decimal.
var scalarWiden = map[Scalar]map[Scalar]string{
	ScalarI32: {ScalarI64: AdapterWiden, ScalarDecimal: AdapterIntToDecimal},
	ScalarU32: {ScalarU64: AdapterWiden, ScalarI64: AdapterWiden, ScalarDecimal: AdapterIntToDecimal},
	ScalarU64: {ScalarDecimal: AdapterIntToDecimal},
	ScalarI64: {ScalarDecimal: AdapterIntToDecimal},
	ScalarF32: {ScalarF64: AdapterWiden},
}

// Compatible decides whether a producer output may feed a consumer input.
// Identical TypeIDs are always compatible; otherwise only the fixed
// whitelist applies. Everything else is Incompatible and needs an explicit
// adapter node. Coercions never chain: the inner shapes of wrap_some and
// wrap_ok must match exactly.
func Compatible(producer, consumer *TypeSpec) Compat {
	if producer == nil || consumer == nil {
		return Compat{Kind: Incompatible}
	}
	if Equal(producer, consumer) {
		return Compat{Kind: Identical}
	}

	// stream<A> → stream<B> and event<A> → event<B> lift the element
	// coercion; the wrappers themselves never convert into each other.
	if producer.Kind == consumer.Kind && (producer.Kind == KindStream || producer.Kind == KindEvent) {
		inner := Compatible(producer.Elem, consumer.Elem)
		if inner.Kind == Coercible {
			return inner
		}
		return Compat{Kind: Incompatible, MissingDefaults: inner.MissingDefaults}
	}

	// Scalar widening whitelist.
	if producer.Kind == KindScalar && consumer.Kind == KindScalar {
		if adapter, ok := scalarWiden[producer.Scalar][consumer.Scalar]; ok {
			return Compat{Kind: Coercible, Adapter: adapter}
		}
		return Compat{Kind: Incompatible}
	}

	// T → option<T>.
	if consumer.Kind == KindOption && Equal(producer, consumer.Elem) {
		return Compat{Kind: Coercible, Adapter: AdapterWrapSome}
	}

	// Ok → result<Ok,Err>.
	if consumer.Kind == KindResult && Equal(producer, consumer.Ok) {
		return Compat{Kind: Coercible, Adapter: AdapterWrapOk}
	}

	// Backward-compatible struct read: the consumer may declare a field
	// superset of the producer if every extra field is optional with a
	// default. New enum variants on the producer side are strictly
	// breaking, so no symmetric rule exists for enums.
	if producer.Kind == KindStruct && consumer.Kind == KindStruct && producer.Name == consumer.Name {
		return structWiden(producer, consumer)
	}

	return Compat{Kind: Incompatible}
}

func structWiden(producer, consumer *TypeSpec) Compat {
	prod := make(map[string]Field, len(producer.Fields))
	for _, f := range producer.Fields {
		prod[f.Name] = f
	}

	var missing []string
	extra := false
	for _, cf := range consumer.Fields {
		pf, ok := prod[cf.Name]
		if !ok {
			extra = true
			if !cf.Optional || cf.Default == "" {
				missing = append(missing, cf.Name)
			}
			continue
		}
		// Shared fields must agree exactly; nested coercion would make
		// the whitelist open-ended.
		if !Equal(pf.Type, cf.Type) || pf.Optional != cf.Optional {
			return Compat{Kind: Incompatible}
		}
		delete(prod, cf.Name)
	}
	if len(prod) > 0 {
		// Producer carries fields the consumer does not know at all;
		// dropping data silently is not a safe read.
		return Compat{Kind: Incompatible}
	}
	if len(missing) > 0 {
		return Compat{Kind: Incompatible, MissingDefaults: missing}
	}
	if !extra {
		// Same field set but something else differs (defaults text);
		// identity already said "not equal", so keep it explicit.
		return Compat{Kind: Incompatible}
	}
	return Compat{Kind: Coercible, Adapter: AdapterWidenStruct}
}
