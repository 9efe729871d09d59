package types

import "testing"

func TestCompatibleIdentical(t *testing.T) {
	a := MustParse("struct P{x:i64,y:i64}")
	b := MustParse("struct P{y:i64,x:i64}")
	got := Compatible(a, b)
	if got.Kind != Identical {
		t.Fatalf("reordered struct = %s, want identical", got.Kind)
	}
}

func TestCompatibleWhitelist(t *testing.T) {
	cases := []struct {
		producer, consumer string
		want               CompatKind
		adapter            string
	}{
		{"i32", "i64", Coercible, AdapterWiden},
		{"u32", "u64", Coercible, AdapterWiden},
		{"u32", "i64", Coercible, AdapterWiden},
		{"f32", "f64", Coercible, AdapterWiden},
		{"i64", "decimal", Coercible, AdapterIntToDecimal},
		{"u64", "decimal", Coercible, AdapterIntToDecimal},
		{"i64", "option<i64>", Coercible, AdapterWrapSome},
		{"string", "result<string,i64>", Coercible, AdapterWrapOk},
		{"stream<i32>", "stream<i64>", Coercible, AdapterWiden},
		{"event<i64>", "event<option<i64>>", Coercible, AdapterWrapSome},

		// Not representable or not whitelisted.
		{"u64", "i64", Incompatible, ""},
		{"i64", "i32", Incompatible, ""},
		{"i64", "u64", Incompatible, ""},
		{"f64", "f32", Incompatible, ""},
		{"f64", "decimal", Incompatible, ""},
		{"i64", "string", Incompatible, ""},
		{"decimal", "i64", Incompatible, ""},
		{"string", "result<i64,string>", Incompatible, ""},
		{"i32", "option<i64>", Incompatible, ""}, // coercions never chain
		{"stream<i64>", "event<i64>", Incompatible, ""},
		{"stream<i64>", "i64", Incompatible, ""},
		{"list<i32>", "list<i64>", Incompatible, ""}, // lists do not lift
	}
	for _, tt := range cases {
		name := tt.producer + "->" + tt.consumer
		t.Run(name, func(t *testing.T) {
			got := Compatible(MustParse(tt.producer), MustParse(tt.consumer))
			if got.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", got.Kind, tt.want)
			}
			if got.Adapter != tt.adapter {
				t.Fatalf("adapter = %q, want %q", got.Adapter, tt.adapter)
			}
		})
	}
}

func TestStructWiden(t *testing.T) {
	producer := MustParse("struct Cfg{name:string}")
	okConsumer := MustParse(`struct Cfg{name:string,retries?:i64=3}`)
	got := Compatible(producer, okConsumer)
	if got.Kind != Coercible || got.Adapter != AdapterWidenStruct {
		t.Fatalf("widen = %+v, want coercible widen_struct", got)
	}

	// Extra field without a default blocks the read and names the field.
	badConsumer := MustParse("struct Cfg{name:string,retries?:i64}")
	got = Compatible(producer, badConsumer)
	if got.Kind != Incompatible {
		t.Fatalf("kind = %s, want incompatible", got.Kind)
	}
	if len(got.MissingDefaults) != 1 || got.MissingDefaults[0] != "retries" {
		t.Fatalf("MissingDefaults = %v, want [retries]", got.MissingDefaults)
	}

	// Required extra field is just as blocking.
	reqConsumer := MustParse("struct Cfg{name:string,retries:i64}")
	got = Compatible(producer, reqConsumer)
	if got.Kind != Incompatible || len(got.MissingDefaults) != 1 {
		t.Fatalf("required extra field: %+v", got)
	}

	// Producer-only fields can never be dropped silently.
	narrower := MustParse("struct Cfg{name:string,extra:i64}")
	got = Compatible(narrower, producer)
	if got.Kind != Incompatible || len(got.MissingDefaults) != 0 {
		t.Fatalf("narrowing read: %+v", got)
	}

	// Different struct names never widen.
	other := MustParse(`struct Other{name:string,retries?:i64=3}`)
	if Compatible(producer, other).Kind != Incompatible {
		t.Fatalf("cross-name widen must be incompatible")
	}
}

func TestEnumVariantsBreaking(t *testing.T) {
	oldE := MustParse("enum E{A,B}")
	newE := MustParse("enum E{A,B,C}")
	if Compatible(newE, oldE).Kind != Incompatible {
		t.Fatalf("new producer variant must be breaking")
	}
	if Compatible(oldE, newE).Kind != Incompatible {
		t.Fatalf("enum supersets have no widening rule")
	}
}
