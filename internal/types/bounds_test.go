package types

import "testing"

func TestSatisfiesTable(t *testing.T) {
	cases := []struct {
		typ   string
		bound Bound
		want  bool
	}{
		{"i64", BoundAdd, true},
		{"decimal", BoundAdd, true},
		{"f32", BoundAdd, true},
		{"string", BoundAdd, false},
		{"bool", BoundAdd, false},

		{"i64", BoundDefault, true},
		{"list<string>", BoundDefault, true},
		{"option<i64>", BoundDefault, true},
		{"struct P{x:i64,y:i64}", BoundDefault, true},
		{"enum E{A,B}", BoundDefault, false},
		{"stream<i64>", BoundDefault, false},

		{"i64", BoundOrdered, true},
		{"string", BoundOrdered, true},
		{"datetime", BoundOrdered, true},
		{"bool", BoundOrdered, false},
		{"f64", BoundOrdered, false},
		{"list<i64>", BoundOrdered, true},
		{"list<f64>", BoundOrdered, false},
		{"tuple<i64,string>", BoundOrdered, true},
		{"struct P{x:i64,y:i64}", BoundOrdered, false},

		{"i64", BoundEq, true},
		{"f64", BoundEq, false},
		{"list<f64>", BoundEq, false},
		{"map<string,i64>", BoundEq, true},
		{"enum E{A,B(i64)}", BoundEq, true},
		{"enum E{A,B(f64)}", BoundEq, false},
		{"stream<i64>", BoundEq, false},

		{"map<string,i64>", BoundHashable, false},
		{"struct P{x:i64,y:i64}", BoundHashable, true},
		{"f32", BoundHashable, false},

		{"struct P{x:i64,y:i64}", BoundSerializable, true},
		{"stream<i64>", BoundSerializable, false},
		{"T", BoundSerializable, false},

		{"map<string,list<i64>>", BoundClone, true},
		{"event<i64>", BoundClone, false},
	}
	for _, tt := range cases {
		t.Run(tt.typ+"/"+tt.bound.String(), func(t *testing.T) {
			if got := Satisfies(MustParse(tt.typ), tt.bound); got != tt.want {
				t.Fatalf("Satisfies(%s, %s) = %v, want %v", tt.typ, tt.bound, got, tt.want)
			}
		})
	}
}

func TestCheckBoundsMissing(t *testing.T) {
	missing := CheckBounds(MustParse("f64"), []Bound{BoundAdd, BoundEq, BoundOrdered})
	if len(missing) != 2 || missing[0] != BoundEq || missing[1] != BoundOrdered {
		t.Fatalf("missing = %v, want [Eq Ordered]", missing)
	}
	if got := CheckBounds(MustParse("i64"), []Bound{BoundAdd, BoundEq}); got != nil {
		t.Fatalf("i64 should satisfy Add+Eq, missing=%v", got)
	}
}

func TestParseBound(t *testing.T) {
	b, err := ParseBound("Hashable")
	if err != nil || b != BoundHashable {
		t.Fatalf("ParseBound(Hashable) = %v, %v", b, err)
	}
	if _, err := ParseBound("Sortable"); err == nil {
		t.Fatalf("unknown bound must error")
	}
}

func TestSubstitute(t *testing.T) {
	generic := MustParse("result<list<T>,E>")
	got, err := Substitute(generic, map[string]*TypeSpec{
		"T": MustParse("i64"),
		"E": MustParse("string"),
	})
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if want := "result<list<i64>,string>"; got.String() != want {
		t.Fatalf("Substitute = %q, want %q", got, want)
	}

	// Unbound variable errors with its name.
	if _, err := Substitute(generic, map[string]*TypeSpec{"T": MustParse("i64")}); err == nil {
		t.Fatalf("unbound E must error")
	}

	// Substitution does not mutate the original.
	if generic.String() != "result<list<T>,E>" {
		t.Fatalf("original mutated: %s", generic)
	}
}

func TestFreeGenerics(t *testing.T) {
	ts := MustParse("map<string,result<T,tuple<E,T>>>")
	got := FreeGenerics(ts)
	if len(got) != 2 || got[0] != "E" || got[1] != "T" {
		t.Fatalf("FreeGenerics = %v, want [E T]", got)
	}
	if got := FreeGenerics(MustParse("i64")); len(got) != 0 {
		t.Fatalf("scalar has no generics, got %v", got)
	}
}
