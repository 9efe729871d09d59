package ir

import (
	"testing"

	"loom/internal/types"
)

func decode(t *testing.T, raw any, typeText string) Value {
	t.Helper()
	v, err := DecodeValue(raw, types.MustParse(typeText))
	if err != nil {
		t.Fatalf("DecodeValue(%v, %s): %v", raw, typeText, err)
	}
	return v
}

func TestDecodeScalars(t *testing.T) {
	cases := []struct {
		raw      any
		typeText string
		want     string
	}{
		{int64(42), "i64", "42"},
		{int64(-7), "i32", "-7"},
		{int64(42), "u32", "42"},
		{int64(3), "f64", "3"},
		{1.5, "f64", "1.5"},
		{true, "bool", "true"},
		{"hi", "string", `"hi"`},
		{"12.50", "decimal", "12.5"},
		{int64(3), "decimal", "3"},
		{"1h30m", "duration", "1h30m0s"},
		{"2024-06-01T12:00:00Z", "datetime", "2024-06-01T12:00:00Z"},
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", "uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"aGk=", "bytes", `b64"aGk="`},
	}
	for _, tt := range cases {
		got := decode(t, tt.raw, tt.typeText)
		if got.String() != tt.want {
			t.Errorf("decode(%v, %s) = %s, want %s", tt.raw, tt.typeText, got, tt.want)
		}
	}
}

func TestDecodeScalarErrors(t *testing.T) {
	cases := []struct {
		raw      any
		typeText string
	}{
		{"nope", "i64"},
		{int64(1) << 40, "i32"},
		{int64(-1), "u32"},
		{1.5, "i64"},
		{"not-a-decimal", "decimal"},
		{"not base64!", "bytes"},
		{"2024-13-99", "datetime"},
		{"not-a-uuid", "uuid"},
		{int64(1), "bool"},
	}
	for _, tt := range cases {
		if _, err := DecodeValue(tt.raw, types.MustParse(tt.typeText)); err == nil {
			t.Errorf("decode(%v, %s) succeeded, want error", tt.raw, tt.typeText)
		}
	}
}

func TestDecodeComposites(t *testing.T) {
	list := decode(t, []any{int64(1), int64(2)}, "list<i64>")
	if len(list.Elems) != 2 || list.Elems[1].Int != 2 {
		t.Fatalf("list = %s", list)
	}

	m := decode(t, map[string]any{"a": int64(1)}, "map<string,i64>")
	if m.Fields["a"].Int != 1 {
		t.Fatalf("map = %s", m)
	}

	tup := decode(t, []any{int64(1), "x"}, "tuple<i64,string>")
	if tup.Elems[1].Str != "x" {
		t.Fatalf("tuple = %s", tup)
	}
	if _, err := DecodeValue([]any{int64(1)}, types.MustParse("tuple<i64,string>")); err == nil {
		t.Fatal("short tuple decoded, want arity error")
	}
}

func TestDecodeOptionConvention(t *testing.T) {
	none := decode(t, []any{}, "option<i64>")
	if !none.IsNone() {
		t.Fatalf("empty list = %s, want none", none)
	}
	some := decode(t, []any{int64(5)}, "option<i64>")
	if some.IsNone() || some.Inner.Int != 5 {
		t.Fatalf("single-element list = %s, want some(5)", some)
	}
	if _, err := DecodeValue([]any{int64(1), int64(2)}, types.MustParse("option<i64>")); err == nil {
		t.Fatal("two-element option decoded, want error")
	}
}

func TestDecodeResultConvention(t *testing.T) {
	ok := decode(t, map[string]any{"ok": int64(1)}, "result<i64,string>")
	if !ok.OK || ok.Inner.Int != 1 {
		t.Fatalf("result = %s, want ok(1)", ok)
	}
	errV := decode(t, map[string]any{"err": "boom"}, "result<i64,string>")
	if errV.OK || errV.Inner.Str != "boom" {
		t.Fatalf("result = %s, want err(\"boom\")", errV)
	}
	if _, err := DecodeValue(map[string]any{"oops": int64(1)}, types.MustParse("result<i64,string>")); err == nil {
		t.Fatal("bad result key decoded, want error")
	}
}

func TestDecodeStruct(t *testing.T) {
	typ := "struct Point{x:i64,y:i64,label?:string=\"\"}"
	v := decode(t, map[string]any{"x": int64(1), "y": int64(2)}, typ)
	if v.Fields["x"].Int != 1 || v.Fields["y"].Int != 2 {
		t.Fatalf("struct = %s", v)
	}
	if _, ok := v.Fields["label"]; ok {
		t.Fatal("optional field materialized without a literal")
	}
	if _, err := DecodeValue(map[string]any{"x": int64(1)}, types.MustParse(typ)); err == nil {
		t.Fatal("missing required field decoded, want error")
	}
	if _, err := DecodeValue(map[string]any{"x": int64(1), "y": int64(2), "z": int64(3)}, types.MustParse(typ)); err == nil {
		t.Fatal("unknown field decoded, want error")
	}
}

func TestDecodeEnum(t *testing.T) {
	typ := "enum Shape{Circle(f64),Empty}"
	unit := decode(t, "Empty", typ)
	if unit.Str != "Empty" || unit.Inner != nil {
		t.Fatalf("enum = %s", unit)
	}
	circle := decode(t, map[string]any{"variant": "Circle", "value": 2.5}, typ)
	if circle.Str != "Circle" || circle.Inner.Float != 2.5 {
		t.Fatalf("enum = %s", circle)
	}
	if _, err := DecodeValue("Square", types.MustParse(typ)); err == nil {
		t.Fatal("unknown variant decoded, want error")
	}
	if _, err := DecodeValue("Circle", types.MustParse(typ)); err == nil {
		t.Fatal("payload variant without payload decoded, want error")
	}
}

func TestDecodeRejectsStreamsAndGenerics(t *testing.T) {
	if _, err := DecodeValue([]any{}, types.MustParse("stream<i64>")); err == nil {
		t.Fatal("stream literal decoded, want error")
	}
	if _, err := DecodeValue(int64(1), types.MustParse("T")); err == nil {
		t.Fatal("generic literal decoded, want error")
	}
}

func TestValueEqual(t *testing.T) {
	a := decode(t, map[string]any{"x": int64(1), "y": int64(2)}, "struct P{x:i64,y:i64}")
	b := decode(t, map[string]any{"y": int64(2), "x": int64(1)}, "struct P{x:i64,y:i64}")
	if !a.Equal(b) {
		t.Fatal("field order changed equality")
	}
	c := decode(t, map[string]any{"x": int64(1), "y": int64(3)}, "struct P{x:i64,y:i64}")
	if a.Equal(c) {
		t.Fatal("different values compare equal")
	}
	d1 := decode(t, "1.50", "decimal")
	d2 := decode(t, "1.5", "decimal")
	if !d1.Equal(d2) {
		t.Fatal("decimal equality should be numeric, not textual")
	}
}

func TestValueStringDeterministic(t *testing.T) {
	v := decode(t, map[string]any{"b": int64(2), "a": int64(1)}, "map<string,i64>")
	if got := v.String(); got != "{a: 1, b: 2}" {
		t.Fatalf("String() = %q, want sorted keys", got)
	}
}
