// Package paramsyntax implements the PostScript-like configuration syntax
// of §4.K: a tokenizer and recursive-descent parser for `<< key value >>`
// dicts and `[ ... ]` homogeneous arrays, plus a canonical pretty-printer.
//
// The tokenizer/parser split and the rune-by-rune, no-regex lexing style
// mirror the teacher's own hand-rolled `lang/token` tokenizer (since
// deleted from this tree per DESIGN.md's teacher-module ledger, as nothing
// else in this module parses the Wuffs DSL it tokenized) rewritten here
// against a bracket/dict grammar instead of `.wuffs` source.
package paramsyntax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bandspool/clist/clerr"
	"github.com/bandspool/clist/paramlist"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tLDict
	tRDict
	tLArray
	tRArray
	tName
	tString
	tHex
	tNumber
	tBool
)

type token struct {
	kind    tokenKind
	str     string
	isFloat bool
	fval    float64
	ival    int64
	bval    bool
}

type lexer struct {
	src []byte
	pos int
}

func newLexer(src []byte) *lexer { return &lexer{src: src} }

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case ' ', '\t', '\r', '\n':
			lx.pos++
		default:
			return
		}
	}
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '<', '>', '[', ']', '(', ')', '/':
		return true
	}
	return false
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	if lx.pos >= len(lx.src) {
		return token{kind: tEOF}, nil
	}
	c := lx.src[lx.pos]
	switch {
	case c == '<' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '<':
		lx.pos += 2
		return token{kind: tLDict}, nil
	case c == '>' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '>':
		lx.pos += 2
		return token{kind: tRDict}, nil
	case c == '<':
		return lx.lexHex()
	case c == '[':
		lx.pos++
		return token{kind: tLArray}, nil
	case c == ']':
		lx.pos++
		return token{kind: tRArray}, nil
	case c == '/':
		return lx.lexName()
	case c == '(':
		return lx.lexString()
	case c == '-' || (c >= '0' && c <= '9'):
		return lx.lexNumber()
	default:
		return lx.lexBareword()
	}
}

func (lx *lexer) lexHex() (token, error) {
	lx.pos++
	start := lx.pos
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '>' {
		lx.pos++
	}
	if lx.pos >= len(lx.src) {
		return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexHex", "unterminated hex string")
	}
	digits := lx.src[start:lx.pos]
	lx.pos++
	var clean []byte
	for _, c := range digits {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		clean = append(clean, c)
	}
	if len(clean)%2 != 0 {
		clean = append(clean, '0')
	}
	out := make([]byte, len(clean)/2)
	for i := range out {
		hi, ok1 := hexVal(clean[2*i])
		lo, ok2 := hexVal(clean[2*i+1])
		if !ok1 || !ok2 {
			return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexHex", "bad hex digit")
		}
		out[i] = hi<<4 | lo
	}
	return token{kind: tHex, str: string(out)}, nil
}

func (lx *lexer) lexName() (token, error) {
	lx.pos++
	var sb strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if isDelim(c) {
			break
		}
		if c == '#' {
			if lx.pos+2 >= len(lx.src) {
				return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexName", "truncated name escape")
			}
			hi, ok1 := hexVal(lx.src[lx.pos+1])
			lo, ok2 := hexVal(lx.src[lx.pos+2])
			if !ok1 || !ok2 {
				return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexName", "bad name escape")
			}
			sb.WriteByte(hi<<4 | lo)
			lx.pos += 3
			continue
		}
		sb.WriteByte(c)
		lx.pos++
	}
	return token{kind: tName, str: sb.String()}, nil
}

func (lx *lexer) lexString() (token, error) {
	lx.pos++
	var sb strings.Builder
	depth := 1
	for {
		if lx.pos >= len(lx.src) {
			return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexString", "unterminated string")
		}
		c := lx.src[lx.pos]
		switch c {
		case '\\':
			lx.pos++
			if lx.pos >= len(lx.src) {
				return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexString", "unterminated string escape")
			}
			sb.WriteByte(lx.src[lx.pos])
			lx.pos++
		case '(':
			depth++
			sb.WriteByte(c)
			lx.pos++
		case ')':
			depth--
			lx.pos++
			if depth == 0 {
				return token{kind: tString, str: sb.String()}, nil
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
			lx.pos++
		}
	}
}

func (lx *lexer) lexNumber() (token, error) {
	start := lx.pos
	if lx.src[lx.pos] == '-' {
		lx.pos++
	}
	sawDigit := false
	for lx.pos < len(lx.src) && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '9' {
		lx.pos++
		sawDigit = true
	}
	isFloat := false
	if lx.pos < len(lx.src) && lx.src[lx.pos] == '.' {
		isFloat = true
		lx.pos++
		for lx.pos < len(lx.src) && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '9' {
			lx.pos++
			sawDigit = true
		}
	}
	if lx.pos < len(lx.src) && (lx.src[lx.pos] == 'e' || lx.src[lx.pos] == 'E') {
		save := lx.pos
		lx.pos++
		if lx.pos < len(lx.src) && (lx.src[lx.pos] == '+' || lx.src[lx.pos] == '-') {
			lx.pos++
		}
		expDigits := false
		for lx.pos < len(lx.src) && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '9' {
			lx.pos++
			expDigits = true
		}
		if expDigits {
			isFloat = true
		} else {
			lx.pos = save
		}
	}
	if !sawDigit {
		return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexNumber", "malformed number")
	}
	text := string(lx.src[start:lx.pos])
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexNumber", "malformed number")
		}
		return token{kind: tNumber, isFloat: true, fval: f}, nil
	}
	iv, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexNumber", "malformed number")
	}
	return token{kind: tNumber, ival: iv}, nil
}

func (lx *lexer) lexBareword() (token, error) {
	start := lx.pos
	for lx.pos < len(lx.src) && !isDelim(lx.src[lx.pos]) {
		lx.pos++
	}
	word := string(lx.src[start:lx.pos])
	switch word {
	case "true":
		return token{kind: tBool, bval: true}, nil
	case "false":
		return token{kind: tBool, bval: false}, nil
	}
	return token{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.lexBareword", fmt.Sprintf("unexpected token %q", word))
}

// parser consumes tokens one at a time with a single-token lookahead.
type parser struct {
	lx  *lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// Parse parses a top-level `<< ... >>` dict, per §4.K.
func Parse(src []byte) (*paramlist.List, error) {
	p := &parser{lx: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tLDict {
		return nil, clerr.New(clerr.KindSyntaxError, "paramsyntax.Parse", "expected '<<' at top level")
	}
	return p.parseDict()
}

func (p *parser) parseDict() (*paramlist.List, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	l := paramlist.NewWriter()
	for p.tok.kind != tRDict {
		if p.tok.kind == tEOF {
			return nil, clerr.New(clerr.KindSyntaxError, "paramsyntax.parseDict", "unterminated dict")
		}
		if p.tok.kind != tName {
			return nil, clerr.New(clerr.KindSyntaxError, "paramsyntax.parseDict", "expected key name")
		}
		key := p.tok.str
		if err := p.advance(); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		l.Put(key, val)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return l, nil
}

func (p *parser) parseValue() (paramlist.Value, error) {
	switch p.tok.kind {
	case tLDict:
		sub, err := p.parseDict()
		if err != nil {
			return paramlist.Value{}, err
		}
		return paramlist.Dict(sub), nil
	case tLArray:
		return p.parseArray()
	case tName:
		v := paramlist.Name(p.tok.str)
		return v, p.advance()
	case tString, tHex:
		v := paramlist.String(p.tok.str)
		return v, p.advance()
	case tNumber:
		var v paramlist.Value
		if p.tok.isFloat {
			v = paramlist.Float(p.tok.fval)
		} else {
			v = paramlist.Int(int32(p.tok.ival))
		}
		return v, p.advance()
	case tBool:
		v := paramlist.Bool(p.tok.bval)
		return v, p.advance()
	default:
		return paramlist.Value{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.parseValue", "unexpected token")
	}
}

func (p *parser) parseArray() (paramlist.Value, error) {
	if err := p.advance(); err != nil {
		return paramlist.Value{}, err
	}
	const (
		kindUnknown = iota
		kindNumber
		kindString
		kindName
	)
	kind := kindUnknown
	var ints []int32
	var floats []float64
	var strs []string
	var names []string
	hasFloat := false

	for p.tok.kind != tRArray {
		switch p.tok.kind {
		case tEOF:
			return paramlist.Value{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.parseArray", "unterminated array")
		case tLArray:
			return paramlist.Value{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.parseArray", "nested arrays are not allowed")
		case tLDict:
			return paramlist.Value{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.parseArray", "dicts are not allowed inside arrays")
		case tNumber:
			if kind == kindUnknown {
				kind = kindNumber
			} else if kind != kindNumber {
				return paramlist.Value{}, clerr.New(clerr.KindTypeCheck, "paramsyntax.parseArray", "array elements must be the same type")
			}
			if p.tok.isFloat {
				hasFloat = true
				floats = append(floats, p.tok.fval)
			} else {
				ints = append(ints, int32(p.tok.ival))
				floats = append(floats, float64(p.tok.ival))
			}
		case tString, tHex:
			if kind == kindUnknown {
				kind = kindString
			} else if kind != kindString {
				return paramlist.Value{}, clerr.New(clerr.KindTypeCheck, "paramsyntax.parseArray", "array elements must be the same type")
			}
			strs = append(strs, p.tok.str)
		case tName:
			if kind == kindUnknown {
				kind = kindName
			} else if kind != kindName {
				return paramlist.Value{}, clerr.New(clerr.KindTypeCheck, "paramsyntax.parseArray", "array elements must be the same type")
			}
			names = append(names, p.tok.str)
		default:
			return paramlist.Value{}, clerr.New(clerr.KindSyntaxError, "paramsyntax.parseArray", "unexpected token in array")
		}
		if err := p.advance(); err != nil {
			return paramlist.Value{}, err
		}
	}
	if err := p.advance(); err != nil {
		return paramlist.Value{}, err
	}

	switch kind {
	case kindNumber:
		if hasFloat {
			return paramlist.FloatArray(floats), nil
		}
		return paramlist.IntArray(ints), nil
	case kindString:
		return paramlist.StringArray(strs), nil
	case kindName:
		return paramlist.NameArray(names), nil
	default:
		return paramlist.IntArray(nil), nil
	}
}

// Format renders l as canonical PostScript-like syntax: floats are trimmed
// of trailing zeros and always use '.' as the decimal separator.
func Format(l *paramlist.List) []byte {
	var b strings.Builder
	formatDict(&b, l)
	return []byte(b.String())
}

func formatDict(b *strings.Builder, l *paramlist.List) {
	b.WriteString("<< ")
	l.Reset()
	for {
		key, v, ok := l.Next()
		if !ok {
			break
		}
		b.WriteByte('/')
		b.WriteString(escapeName(key))
		b.WriteByte(' ')
		formatValue(b, v)
		b.WriteByte(' ')
	}
	b.WriteString(">>")
}

func formatValue(b *strings.Builder, v paramlist.Value) {
	switch v.Kind {
	case paramlist.KindNull:
		b.WriteString("null")
	case paramlist.KindBool:
		if v.V.(bool) {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case paramlist.KindInt:
		fmt.Fprintf(b, "%d", v.V.(int32))
	case paramlist.KindLong, paramlist.KindInt64:
		fmt.Fprintf(b, "%d", v.V.(int64))
	case paramlist.KindSizeT:
		fmt.Fprintf(b, "%d", v.V.(uint64))
	case paramlist.KindFloat:
		b.WriteString(formatFloat(v.V.(float64)))
	case paramlist.KindString:
		b.WriteByte('(')
		b.WriteString(v.V.(string))
		b.WriteByte(')')
	case paramlist.KindName:
		b.WriteByte('/')
		b.WriteString(escapeName(v.V.(string)))
	case paramlist.KindDict:
		formatDict(b, v.V.(*paramlist.List))
	case paramlist.KindIntArray:
		b.WriteString("[ ")
		for _, x := range v.V.([]int32) {
			fmt.Fprintf(b, "%d ", x)
		}
		b.WriteString("]")
	case paramlist.KindFloatArray:
		b.WriteString("[ ")
		for _, x := range v.V.([]float64) {
			b.WriteString(formatFloat(x))
			b.WriteByte(' ')
		}
		b.WriteString("]")
	case paramlist.KindStringArray:
		b.WriteString("[ ")
		for _, x := range v.V.([]string) {
			b.WriteByte('(')
			b.WriteString(x)
			b.WriteString(") ")
		}
		b.WriteString("]")
	case paramlist.KindNameArray:
		b.WriteString("[ ")
		for _, x := range v.V.([]string) {
			b.WriteByte('/')
			b.WriteString(escapeName(x))
			b.WriteByte(' ')
		}
		b.WriteString("]")
	}
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

func escapeName(name string) string {
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isDelim(c) || c == '#' || c < 0x21 || c > 0x7e {
			fmt.Fprintf(&sb, "#%02x", c)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
