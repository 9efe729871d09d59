package ir

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loom/internal/types"
)

// ValueKind discriminates the closed runtime value union. Every kind maps to
// exactly one types.Kind/Scalar shape; there is no dynamic "any" value.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindUnit
	KindBool
	KindInt     // i32, i64
	KindUint    // u32, u64
	KindFloat   // f32, f64
	KindDecimal // exact decimal, never a float
	KindString
	KindBytes
	KindDateTime
	KindDuration
	KindUUID
	KindList
	KindMap
	KindTuple
	KindStruct
	KindEnum
	KindOption
	KindResult
)

var valueKindNames = [...]string{
	KindInvalid:  "invalid",
	KindUnit:     "unit",
	KindBool:     "bool",
	KindInt:      "int",
	KindUint:     "uint",
	KindFloat:    "float",
	KindDecimal:  "decimal",
	KindString:   "string",
	KindBytes:    "bytes",
	KindDateTime: "datetime",
	KindDuration: "duration",
	KindUUID:     "uuid",
	KindList:     "list",
	KindMap:      "map",
	KindTuple:    "tuple",
	KindStruct:   "struct",
	KindEnum:     "enum",
	KindOption:   "option",
	KindResult:   "result",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return "invalid"
}

// Value is a plain immutable datum flowing over edges and stored in const
// pools, params and port defaults. Treat it as read-only once constructed:
// values are shared across goroutines without copying.
//
//   - Option: Inner nil means none, non-nil means some.
//   - Result: OK selects the arm, Inner is the payload.
//   - Enum: Str is the variant name, Inner its optional payload.
//   - Struct/Map: Fields keyed by field name / map key.
type Value struct {
	Kind ValueKind

	Bool   bool
	Int    int64
	Uint   uint64
	Float  float64
	Dec    decimal.Decimal
	Str    string // string payload or enum variant name
	Bytes  []byte
	Time   time.Time
	Dur    time.Duration
	UUID   uuid.UUID
	Elems  []Value          // list and tuple
	Fields map[string]Value // map and struct
	Inner  *Value           // option some, result payload, enum payload
	OK     bool             // result arm
}

func UnitValue() Value          { return Value{Kind: KindUnit} }
func BoolValue(b bool) Value    { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value    { return Value{Kind: KindInt, Int: i} }
func UintValue(u uint64) Value  { return Value{Kind: KindUint, Uint: u} }
func FloatValue(f float64) Value {
	return Value{Kind: KindFloat, Float: f}
}
func DecimalValue(d decimal.Decimal) Value { return Value{Kind: KindDecimal, Dec: d} }
func StringValue(s string) Value           { return Value{Kind: KindString, Str: s} }
func BytesValue(b []byte) Value            { return Value{Kind: KindBytes, Bytes: b} }
func TimeValue(t time.Time) Value          { return Value{Kind: KindDateTime, Time: t.UTC()} }
func DurationValue(d time.Duration) Value  { return Value{Kind: KindDuration, Dur: d} }
func UUIDValue(id uuid.UUID) Value         { return Value{Kind: KindUUID, UUID: id} }
func ListValue(elems ...Value) Value       { return Value{Kind: KindList, Elems: elems} }
func TupleValue(elems ...Value) Value      { return Value{Kind: KindTuple, Elems: elems} }

func MapValue(fields map[string]Value) Value    { return Value{Kind: KindMap, Fields: fields} }
func StructValue(fields map[string]Value) Value { return Value{Kind: KindStruct, Fields: fields} }

func EnumValue(variant string, payload *Value) Value {
	return Value{Kind: KindEnum, Str: variant, Inner: payload}
}

func NoneValue() Value { return Value{Kind: KindOption} }
func SomeValue(v Value) Value {
	return Value{Kind: KindOption, Inner: &v}
}

func OkValue(v Value) Value  { return Value{Kind: KindResult, OK: true, Inner: &v} }
func ErrValue(v Value) Value { return Value{Kind: KindResult, OK: false, Inner: &v} }

// IsNone reports whether v is an empty option.
func (v Value) IsNone() bool { return v.Kind == KindOption && v.Inner == nil }

// Equal is deep structural equality. Decimals compare by numeric value, times
// by instant.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindUnit:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindUint:
		return v.Uint == o.Uint
	case KindFloat:
		return v.Float == o.Float
	case KindDecimal:
		return v.Dec.Equal(o.Dec)
	case KindString:
		return v.Str == o.Str
	case KindBytes:
		return string(v.Bytes) == string(o.Bytes)
	case KindDateTime:
		return v.Time.Equal(o.Time)
	case KindDuration:
		return v.Dur == o.Dur
	case KindUUID:
		return v.UUID == o.UUID
	case KindList, KindTuple:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	case KindMap, KindStruct:
		if len(v.Fields) != len(o.Fields) {
			return false
		}
		for k, fv := range v.Fields {
			ov, ok := o.Fields[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	case KindEnum:
		if v.Str != o.Str {
			return false
		}
		return innerEqual(v.Inner, o.Inner)
	case KindOption:
		return innerEqual(v.Inner, o.Inner)
	case KindResult:
		return v.OK == o.OK && innerEqual(v.Inner, o.Inner)
	}
	return false
}

func innerEqual(a, b *Value) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Equal(*b)
}

// String renders a stable literal form used in diagnostics and traces. Map
// and struct keys print sorted so the output is deterministic.
func (v Value) String() string {
	var sb strings.Builder
	v.render(&sb)
	return sb.String()
}

func (v Value) render(sb *strings.Builder) {
	switch v.Kind {
	case KindUnit:
		sb.WriteString("()")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	case KindUint:
		sb.WriteString(strconv.FormatUint(v.Uint, 10))
	case KindFloat:
		sb.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case KindDecimal:
		sb.WriteString(v.Dec.String())
	case KindString:
		sb.WriteString(strconv.Quote(v.Str))
	case KindBytes:
		sb.WriteString("b64\"")
		sb.WriteString(base64.StdEncoding.EncodeToString(v.Bytes))
		sb.WriteByte('"')
	case KindDateTime:
		sb.WriteString(v.Time.Format(time.RFC3339Nano))
	case KindDuration:
		sb.WriteString(v.Dur.String())
	case KindUUID:
		sb.WriteString(v.UUID.String())
	case KindList, KindTuple:
		open, shut := byte('['), byte(']')
		if v.Kind == KindTuple {
			open, shut = '(', ')'
		}
		sb.WriteByte(open)
		for i := range v.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			v.Elems[i].render(sb)
		}
		sb.WriteByte(shut)
	case KindMap, KindStruct:
		sb.WriteByte('{')
		for i, k := range sortedKeys(v.Fields) {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			f := v.Fields[k]
			f.render(sb)
		}
		sb.WriteByte('}')
	case KindEnum:
		sb.WriteString(v.Str)
		if v.Inner != nil {
			sb.WriteByte('(')
			v.Inner.render(sb)
			sb.WriteByte(')')
		}
	case KindOption:
		if v.Inner == nil {
			sb.WriteString("none")
		} else {
			sb.WriteString("some(")
			v.Inner.render(sb)
			sb.WriteByte(')')
		}
	case KindResult:
		if v.OK {
			sb.WriteString("ok(")
		} else {
			sb.WriteString("err(")
		}
		if v.Inner != nil {
			v.Inner.render(sb)
		}
		sb.WriteByte(')')
	default:
		sb.WriteString("<invalid>")
	}
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeValue canonicalizes a raw literal (the `any` shapes produced by the
// TOML and JSON decoders) against a concrete type. It is the single
// constructor for literal positions: port defaults, const pools and node
// params all pass through here, so mismatches surface at load or validation
// time instead of mid-run.
//
// Literal conventions follow the manifest format: decimal, datetime, duration
// and uuid are strings; bytes is a base64 string; option is an empty list for
// none or a single-element list for some; result is a one-key table {ok = v}
// or {err = v}; an enum is the bare variant name or {variant = n, value = v}.
func DecodeValue(raw any, t *types.TypeSpec) (Value, error) {
	if t == nil {
		return Value{}, fmt.Errorf("decode value: nil type")
	}
	switch t.Kind {
	case types.KindScalar:
		return decodeScalar(raw, t.Scalar)
	case types.KindList:
		arr, ok := toSlice(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected list for %s, got %s", t, rawKind(raw))
		}
		elems := make([]Value, len(arr))
		for i, e := range arr {
			v, err := DecodeValue(e, t.Elem)
			if err != nil {
				return Value{}, fmt.Errorf("list[%d]: %w", i, err)
			}
			elems[i] = v
		}
		return ListValue(elems...), nil
	case types.KindMap:
		obj, ok := toMap(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected table for %s, got %s", t, rawKind(raw))
		}
		fields := make(map[string]Value, len(obj))
		for k, e := range obj {
			v, err := DecodeValue(e, t.Elem)
			if err != nil {
				return Value{}, fmt.Errorf("map[%q]: %w", k, err)
			}
			fields[k] = v
		}
		return MapValue(fields), nil
	case types.KindOption:
		arr, ok := toSlice(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected option literal (empty list for none, single-element list for some) for %s", t)
		}
		switch len(arr) {
		case 0:
			return NoneValue(), nil
		case 1:
			v, err := DecodeValue(arr[0], t.Elem)
			if err != nil {
				return Value{}, fmt.Errorf("some: %w", err)
			}
			return SomeValue(v), nil
		default:
			return Value{}, fmt.Errorf("option literal must have zero or one elements, got %d", len(arr))
		}
	case types.KindResult:
		obj, ok := toMap(raw)
		if !ok || len(obj) != 1 {
			return Value{}, fmt.Errorf("expected one-key table {ok = v} or {err = v} for %s", t)
		}
		if e, found := obj["ok"]; found {
			v, err := DecodeValue(e, t.Ok)
			if err != nil {
				return Value{}, fmt.Errorf("ok: %w", err)
			}
			return OkValue(v), nil
		}
		if e, found := obj["err"]; found {
			v, err := DecodeValue(e, t.Err)
			if err != nil {
				return Value{}, fmt.Errorf("err: %w", err)
			}
			return ErrValue(v), nil
		}
		return Value{}, fmt.Errorf("result literal key must be \"ok\" or \"err\"")
	case types.KindTuple:
		arr, ok := toSlice(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected list for %s, got %s", t, rawKind(raw))
		}
		if len(arr) != len(t.Elems) {
			return Value{}, fmt.Errorf("tuple arity mismatch: want %d elements, got %d", len(t.Elems), len(arr))
		}
		elems := make([]Value, len(arr))
		for i, e := range arr {
			v, err := DecodeValue(e, t.Elems[i])
			if err != nil {
				return Value{}, fmt.Errorf("tuple[%d]: %w", i, err)
			}
			elems[i] = v
		}
		return TupleValue(elems...), nil
	case types.KindStruct:
		obj, ok := toMap(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected table for %s, got %s", t, rawKind(raw))
		}
		fields := make(map[string]Value, len(t.Fields))
		seen := make(map[string]bool, len(obj))
		for _, f := range t.Fields {
			e, found := obj[f.Name]
			if !found {
				if f.Optional {
					continue
				}
				return Value{}, fmt.Errorf("struct field %q missing", f.Name)
			}
			seen[f.Name] = true
			v, err := DecodeValue(e, f.Type)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", f.Name, err)
			}
			fields[f.Name] = v
		}
		for k := range obj {
			if !seen[k] {
				return Value{}, fmt.Errorf("struct has no field %q", k)
			}
		}
		return StructValue(fields), nil
	case types.KindEnum:
		name, payload, err := enumLiteral(raw)
		if err != nil {
			return Value{}, err
		}
		for _, variant := range t.Variants {
			if variant.Name != name {
				continue
			}
			if variant.Type == nil {
				if payload != nil {
					return Value{}, fmt.Errorf("variant %q carries no payload", name)
				}
				return EnumValue(name, nil), nil
			}
			if payload == nil {
				return Value{}, fmt.Errorf("variant %q requires a payload", name)
			}
			v, err := DecodeValue(payload, variant.Type)
			if err != nil {
				return Value{}, fmt.Errorf("variant %q: %w", name, err)
			}
			return EnumValue(name, &v), nil
		}
		return Value{}, fmt.Errorf("enum %s has no variant %q", t, name)
	case types.KindStream, types.KindEvent:
		return Value{}, fmt.Errorf("%s carries no literal form", t.Kind)
	case types.KindGeneric:
		return Value{}, fmt.Errorf("cannot decode a literal against unbound generic %s", t.Name)
	}
	return Value{}, fmt.Errorf("cannot decode literal for %s", t)
}

func decodeScalar(raw any, s types.Scalar) (Value, error) {
	switch s {
	case types.ScalarUnit:
		if raw == nil {
			return UnitValue(), nil
		}
		return Value{}, fmt.Errorf("unit has no literal form, got %s", rawKind(raw))
	case types.ScalarBool:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("expected bool, got %s", rawKind(raw))
		}
		return BoolValue(b), nil
	case types.ScalarI32:
		i, ok := toInt64(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected integer for i32, got %s", rawKind(raw))
		}
		if _, err := safecast.Conv[int32](i); err != nil {
			return Value{}, fmt.Errorf("integer %d overflows i32", i)
		}
		return IntValue(i), nil
	case types.ScalarI64:
		i, ok := toInt64(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected integer for i64, got %s", rawKind(raw))
		}
		return IntValue(i), nil
	case types.ScalarU32:
		i, ok := toInt64(raw)
		if !ok || i < 0 {
			return Value{}, fmt.Errorf("expected non-negative integer for u32, got %s", rawKind(raw))
		}
		if _, err := safecast.Conv[uint32](i); err != nil {
			return Value{}, fmt.Errorf("integer %d overflows u32", i)
		}
		return UintValue(uint64(i)), nil
	case types.ScalarU64:
		i, ok := toInt64(raw)
		if !ok || i < 0 {
			return Value{}, fmt.Errorf("expected non-negative integer for u64, got %s", rawKind(raw))
		}
		return UintValue(uint64(i)), nil
	case types.ScalarF32, types.ScalarF64:
		switch n := raw.(type) {
		case float64:
			return FloatValue(n), nil
		case int64:
			return FloatValue(float64(n)), nil
		case int:
			return FloatValue(float64(n)), nil
		}
		return Value{}, fmt.Errorf("expected number for %s, got %s", s, rawKind(raw))
	case types.ScalarDecimal:
		switch n := raw.(type) {
		case string:
			d, err := decimal.NewFromString(n)
			if err != nil {
				return Value{}, fmt.Errorf("invalid decimal %q: %w", n, err)
			}
			return DecimalValue(d), nil
		case int64:
			return DecimalValue(decimal.NewFromInt(n)), nil
		case int:
			return DecimalValue(decimal.NewFromInt(int64(n))), nil
		}
		return Value{}, fmt.Errorf("expected string or integer for decimal, got %s", rawKind(raw))
	case types.ScalarString:
		str, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected string, got %s", rawKind(raw))
		}
		return StringValue(str), nil
	case types.ScalarBytes:
		str, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected base64 string for bytes, got %s", rawKind(raw))
		}
		b, err := base64.StdEncoding.DecodeString(str)
		if err != nil {
			return Value{}, fmt.Errorf("invalid base64: %w", err)
		}
		return BytesValue(b), nil
	case types.ScalarDateTime:
		switch n := raw.(type) {
		case string:
			ts, err := time.Parse(time.RFC3339Nano, n)
			if err != nil {
				return Value{}, fmt.Errorf("invalid datetime %q: %w", n, err)
			}
			return TimeValue(ts), nil
		case time.Time:
			// TOML decoders hand datetimes over pre-parsed.
			return TimeValue(n), nil
		}
		return Value{}, fmt.Errorf("expected RFC 3339 string for datetime, got %s", rawKind(raw))
	case types.ScalarDuration:
		str, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected duration string, got %s", rawKind(raw))
		}
		d, err := time.ParseDuration(str)
		if err != nil {
			return Value{}, fmt.Errorf("invalid duration %q: %w", str, err)
		}
		return DurationValue(d), nil
	case types.ScalarUUID:
		str, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected uuid string, got %s", rawKind(raw))
		}
		id, err := uuid.Parse(str)
		if err != nil {
			return Value{}, fmt.Errorf("invalid uuid %q: %w", str, err)
		}
		return UUIDValue(id), nil
	}
	return Value{}, fmt.Errorf("cannot decode literal for scalar %s", s)
}

func enumLiteral(raw any) (name string, payload any, err error) {
	switch n := raw.(type) {
	case string:
		return n, nil, nil
	default:
		obj, ok := toMap(raw)
		if !ok {
			return "", nil, fmt.Errorf("expected variant name or {variant = n, value = v} table, got %s", rawKind(raw))
		}
		nameRaw, found := obj["variant"]
		if !found {
			return "", nil, fmt.Errorf("enum table missing \"variant\" key")
		}
		name, ok = nameRaw.(string)
		if !ok {
			return "", nil, fmt.Errorf("enum variant name must be a string")
		}
		return name, obj["value"], nil
	}
}

func toInt64(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		// JSON decodes every number as float64; accept exact integers only.
		i := int64(n)
		if float64(i) == n {
			return i, true
		}
	}
	return 0, false
}

func toSlice(raw any) ([]any, bool) {
	arr, ok := raw.([]any)
	return arr, ok
}

func toMap(raw any) (map[string]any, bool) {
	obj, ok := raw.(map[string]any)
	return obj, ok
}

func rawKind(raw any) string {
	switch raw.(type) {
	case nil:
		return "nothing"
	case bool:
		return "bool"
	case int, int64:
		return "integer"
	case float64:
		return "float"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "table"
	case time.Time:
		return "datetime"
	default:
		return fmt.Sprintf("%T", raw)
	}
}
