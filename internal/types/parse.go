package types

import (
	"fmt"
)

// ParseError reports a malformed type expression with the byte offset of the
// problem, so loaders can anchor a diagnostic inside the enclosing file.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("type syntax at offset %d: %s", e.Offset, e.Msg)
}

// Parse reads a type expression in canonical grammar:
//
//	scalar        i32 i64 u32 u64 f32 f64 decimal bool string bytes
//	              datetime duration uuid unit
//	composite     list<T> map<string,T> option<T> result<Ok,Err>
//	              tuple<T1,...> stream<T> event<T>
//	struct        struct Name{field:T,opt?:T=literal,...}
//	enum          enum Name{Unit,Payload(T),...}
//	generic       uppercase-initial identifier (T, TKey, ...)
//
// Whitespace between tokens is accepted and never significant.
func Parse(text string) (*TypeSpec, error) {
	p := &parser{src: text}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errf(p.pos, "trailing input %q", p.src[p.pos:])
	}
	return t, nil
}

// MustParse is a test helper; it panics on malformed input.
func MustParse(text string) *TypeSpec {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src string
	pos int
}

func (p *parser) errf(off int, format string, args ...any) error {
	return &ParseError{Offset: off, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) expect(ch byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != ch {
		return p.errf(p.pos, "expected %q", string(ch))
	}
	p.pos++
	return nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (p *parser) ident() (string, int, error) {
	p.skipSpace()
	start := p.pos
	if p.pos >= len(p.src) || !isIdentStart(p.src[p.pos]) {
		return "", start, p.errf(start, "expected identifier")
	}
	for p.pos < len(p.src) && isIdentCont(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos], start, nil
}

func isGenericName(name string) bool {
	if len(name) == 0 || name[0] < 'A' || name[0] > 'Z' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func (p *parser) parseType() (*TypeSpec, error) {
	name, start, err := p.ident()
	if err != nil {
		return nil, err
	}

	switch name {
	case "list", "option", "stream", "event":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		switch name {
		case "list":
			return MakeList(elem), nil
		case "option":
			return MakeOption(elem), nil
		case "stream":
			return MakeStream(elem), nil
		default:
			return MakeEvent(elem), nil
		}

	case "map":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		keyStart := p.pos
		key, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if key.Kind != KindScalar || key.Scalar != ScalarString {
			return nil, p.errf(keyStart, "map keys must be string, got %s", key)
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		val, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		return MakeMap(val), nil

	case "result":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		ok, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		errT, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		return MakeResult(ok, errT), nil

	case "tuple":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		var elems []*TypeSpec
		for {
			elem, err := p.parseType()
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
			p.skipSpace()
			if p.peek() == ',' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		if len(elems) < 2 {
			return nil, p.errf(start, "tuple needs at least two members")
		}
		return MakeTuple(elems...), nil

	case "struct":
		return p.parseStruct()

	case "enum":
		return p.parseEnum()
	}

	if s, ok := scalarByName[name]; ok {
		return MakeScalar(s), nil
	}
	if isGenericName(name) {
		return MakeGeneric(name), nil
	}
	return nil, p.errf(start, "unknown type %q", name)
}

func (p *parser) parseStruct() (*TypeSpec, error) {
	name, start, err := p.ident()
	if err != nil {
		return nil, p.errf(start, "struct needs a name")
	}
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	var fields []Field
	seen := make(map[string]bool)
	p.skipSpace()
	for p.peek() != '}' {
		fname, fstart, err := p.ident()
		if err != nil {
			return nil, err
		}
		if seen[fname] {
			return nil, p.errf(fstart, "duplicate field %q", fname)
		}
		seen[fname] = true

		optional := false
		p.skipSpace()
		if p.peek() == '?' {
			optional = true
			p.pos++
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		ftype, err := p.parseType()
		if err != nil {
			return nil, err
		}

		deflt := ""
		p.skipSpace()
		if p.peek() == '=' {
			p.pos++
			deflt, err = p.rawLiteral()
			if err != nil {
				return nil, err
			}
			if !optional {
				return nil, p.errf(fstart, "field %q has a default but is not optional", fname)
			}
		}

		fields = append(fields, Field{Name: fname, Type: ftype, Optional: optional, Default: deflt})
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	return MakeStruct(name, fields...), nil
}

func (p *parser) parseEnum() (*TypeSpec, error) {
	name, start, err := p.ident()
	if err != nil {
		return nil, p.errf(start, "enum needs a name")
	}
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	var variants []Variant
	seen := make(map[string]bool)
	p.skipSpace()
	for p.peek() != '}' {
		vname, vstart, err := p.ident()
		if err != nil {
			return nil, err
		}
		if seen[vname] {
			return nil, p.errf(vstart, "duplicate variant %q", vname)
		}
		seen[vname] = true

		var vtype *TypeSpec
		p.skipSpace()
		if p.peek() == '(' {
			p.pos++
			vtype, err = p.parseType()
			if err != nil {
				return nil, err
			}
			if err := p.expect(')'); err != nil {
				return nil, err
			}
		}
		variants = append(variants, Variant{Name: vname, Type: vtype})
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, p.errf(start, "enum %q has no variants", name)
	}
	return MakeEnum(name, variants...), nil
}

// rawLiteral consumes a default-value literal verbatim until a top-level
// ',' or '}'. Nesting of <>, (), [], {} and double-quoted strings is
// respected so composite defaults survive.
func (p *parser) rawLiteral() (string, error) {
	p.skipSpace()
	start := p.pos
	depth := 0
	inStr := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if inStr {
			if c == '\\' {
				p.pos += 2
				continue
			}
			if c == '"' {
				inStr = false
			}
			p.pos++
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '<', '(', '[', '{':
			depth++
		case '>', ')', ']':
			depth--
		case '}':
			if depth == 0 {
				goto done
			}
			depth--
		case ',':
			if depth == 0 {
				goto done
			}
		}
		p.pos++
	}
done:
	if inStr {
		return "", p.errf(start, "unterminated string in default literal")
	}
	lit := trimSpace(p.src[start:p.pos])
	if lit == "" {
		return "", p.errf(start, "empty default literal")
	}
	return lit, nil
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t' || s[j-1] == '\n' || s[j-1] == '\r') {
		j--
	}
	return s[i:j]
}
