package types

import "testing"

func TestTypeIDStability(t *testing.T) {
	// Re-parsing the canonical form must reproduce the TypeID.
	cases := []string{
		"i64",
		"list<option<i64>>",
		"struct Point{y:i64,x:i64}",
		"enum Shape{Rect(f64),Circle(f64)}",
		"map<string,tuple<i64,string>>",
	}
	for _, src := range cases {
		orig := MustParse(src)
		re, err := Parse(Canonical(orig))
		if err != nil {
			t.Fatalf("re-parse of canonical %q: %v", Canonical(orig), err)
		}
		if ID(orig) != ID(re) {
			t.Fatalf("TypeID drifted across canonical round trip for %q", src)
		}
	}
}

func TestTypeIDFieldOrderIrrelevant(t *testing.T) {
	a := MustParse("struct Point{x:i64,y:i64}")
	b := MustParse("struct Point{y:i64,x:i64}")
	if ID(a) != ID(b) {
		t.Fatalf("field order changed TypeID: %s vs %s", Canonical(a), Canonical(b))
	}
	// Display order stays declared.
	if a.String() == b.String() {
		t.Fatalf("display form should preserve declared order")
	}

	e1 := MustParse("enum E{A,B}")
	e2 := MustParse("enum E{B,A}")
	if ID(e1) != ID(e2) {
		t.Fatalf("variant order changed TypeID")
	}
}

func TestTypeIDShapeChangesBreak(t *testing.T) {
	base := MustParse("struct Point{x:i64,y:i64}")
	added := MustParse("struct Point{x:i64,y:i64,z:i64}")
	removed := MustParse("struct Point{x:i64}")
	renamed := MustParse("struct Dot{x:i64,y:i64}")
	retyped := MustParse("struct Point{x:i64,y:f64}")

	for name, other := range map[string]*TypeSpec{
		"added field":   added,
		"removed field": removed,
		"renamed":       renamed,
		"retyped field": retyped,
	} {
		if ID(base) == ID(other) {
			t.Errorf("%s did not change TypeID", name)
		}
	}

	ev1 := MustParse("enum E{A}")
	ev2 := MustParse("enum E{A,B}")
	if ID(ev1) == ID(ev2) {
		t.Fatalf("added variant did not change TypeID")
	}
}

func TestTypeIDOptionalityMatters(t *testing.T) {
	req := MustParse("struct C{tag:string}")
	opt := MustParse("struct C{tag?:string}")
	if ID(req) == ID(opt) {
		t.Fatalf("optional marker must participate in identity")
	}
}

func TestCanonicalSortsOnlyIdentity(t *testing.T) {
	ts := MustParse("struct S{zz:i64,aa:string}")
	if got, want := Canonical(ts), "struct S{aa:string,zz:i64}"; got != want {
		t.Fatalf("Canonical = %q, want %q", got, want)
	}
	if got, want := ts.String(), "struct S{zz:i64,aa:string}"; got != want {
		t.Fatalf("String = %q, want %q", got, want)
	}
}

func TestInternerCaches(t *testing.T) {
	in := NewInterner()
	a := MustParse("list<struct P{x:i64,y:i64}>")
	b := MustParse("list<struct P{y:i64,x:i64}>")

	id1 := in.Intern(a)
	id2 := in.Intern(b)
	if id1 != id2 {
		t.Fatalf("equivalent specs interned to different IDs")
	}
	if in.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", in.Len())
	}
	if id1 != ID(a) {
		t.Fatalf("interned ID differs from direct ID")
	}
}

func TestTypeIDShortHex(t *testing.T) {
	id := ID(MustParse("i64"))
	if len(id.Hex()) != 64 {
		t.Fatalf("Hex length = %d", len(id.Hex()))
	}
	if len(id.Short()) != 12 {
		t.Fatalf("Short length = %d", len(id.Short()))
	}
	if id.IsZero() {
		t.Fatalf("hash of i64 is zero")
	}
}
