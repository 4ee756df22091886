package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inaetics/node-wiring-go/interfaces"
)

// Filter is a parsed LDAP-style listener filter, for example
//
//	(&(zone=z1)(|(inaetics.wiring.http.url=https://*)(!(secure=*))))
//
// Supported items are equality, presence (attr=*), substrings with '*',
// approximate (~=, case and whitespace insensitive) and ordering (>=, <=,
// numeric when both sides are numbers). A backslash escapes the next
// character. Attribute names match case-insensitively when there is no exact
// match. The empty filter matches everything.
type Filter struct {
	raw  string
	root expr
}

type expr interface {
	match(attrs map[string]string) bool
}

type andExpr []expr

func (e andExpr) match(attrs map[string]string) bool {
	for _, sub := range e {
		if !sub.match(attrs) {
			return false
		}
	}
	return true
}

type orExpr []expr

func (e orExpr) match(attrs map[string]string) bool {
	for _, sub := range e {
		if sub.match(attrs) {
			return true
		}
	}
	return false
}

type notExpr struct{ sub expr }

func (e notExpr) match(attrs map[string]string) bool {
	return !e.sub.match(attrs)
}

type presentExpr struct{ attr string }

func (e presentExpr) match(attrs map[string]string) bool {
	_, ok := lookup(attrs, e.attr)
	return ok
}

type equalExpr struct{ attr, value string }

func (e equalExpr) match(attrs map[string]string) bool {
	v, ok := lookup(attrs, e.attr)
	return ok && v == e.value
}

type approxExpr struct{ attr, value string }

func (e approxExpr) match(attrs map[string]string) bool {
	v, ok := lookup(attrs, e.attr)
	return ok && normalizeApprox(v) == normalizeApprox(e.value)
}

// substringExpr holds the value split at its wildcards: parts[0] is the
// prefix, the last part the suffix, the rest must appear in order between them.
type substringExpr struct {
	attr  string
	parts []string
}

func (e substringExpr) match(attrs map[string]string) bool {
	v, ok := lookup(attrs, e.attr)
	if !ok {
		return false
	}

	first, last := e.parts[0], e.parts[len(e.parts)-1]
	if !strings.HasPrefix(v, first) {
		return false
	}
	v = v[len(first):]

	for _, part := range e.parts[1 : len(e.parts)-1] {
		i := strings.Index(v, part)
		if i < 0 {
			return false
		}
		v = v[i+len(part):]
	}
	return strings.HasSuffix(v, last)
}

type compareExpr struct {
	attr  string
	value string
	less  bool
}

func (e compareExpr) match(attrs map[string]string) bool {
	v, ok := lookup(attrs, e.attr)
	if !ok {
		return false
	}

	var cmp int
	a, errA := strconv.ParseFloat(v, 64)
	b, errB := strconv.ParseFloat(e.value, 64)
	if errA == nil && errB == nil {
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(v, e.value)
	}

	if e.less {
		return cmp <= 0
	}
	return cmp >= 0
}

func lookup(attrs map[string]string, attr string) (string, bool) {
	if v, ok := attrs[attr]; ok {
		return v, true
	}
	for k, v := range attrs {
		if strings.EqualFold(k, attr) {
			return v, true
		}
	}
	return "", false
}

func normalizeApprox(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// ParseFilter parses s. Errors wrap interfaces.ErrInvalidFilter.
func ParseFilter(s string) (*Filter, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return &Filter{}, nil
	}

	p := &filterParser{src: trimmed}
	root, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return &Filter{raw: trimmed, root: root}, nil
}

// MustParseFilter is ParseFilter for constant filters; it panics on error.
func MustParseFilter(s string) *Filter {
	f, err := ParseFilter(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Match evaluates the filter against attrs.
func (f *Filter) Match(attrs map[string]string) bool {
	if f == nil || f.root == nil {
		return true
	}
	return f.root.match(attrs)
}

// String returns the filter as given to ParseFilter, trimmed.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.raw
}

type filterParser struct {
	src string
	pos int
}

func (p *filterParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d in %q", interfaces.ErrInvalidFilter, fmt.Sprintf(format, args...), p.pos, p.src)
}

func (p *filterParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *filterParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *filterParser) parseFilter() (expr, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end")
	}

	var (
		e   expr
		err error
	)
	switch p.src[p.pos] {
	case '&':
		p.pos++
		var list []expr
		list, err = p.parseList()
		e = andExpr(list)
	case '|':
		p.pos++
		var list []expr
		list, err = p.parseList()
		e = orExpr(list)
	case '!':
		p.pos++
		var sub expr
		sub, err = p.parseFilter()
		e = notExpr{sub: sub}
	default:
		e, err = p.parseItem()
	}
	if err != nil {
		return nil, err
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *filterParser) parseList() ([]expr, error) {
	var list []expr
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '(' {
			break
		}
		e, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	if len(list) == 0 {
		return nil, p.errorf("empty filter list")
	}
	return list, nil
}

func (p *filterParser) parseItem() (expr, error) {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("=~<>()", rune(p.src[p.pos])) {
		p.pos++
	}
	attr := strings.TrimSpace(p.src[start:p.pos])
	if attr == "" {
		return nil, p.errorf("missing attribute")
	}
	if p.pos >= len(p.src) {
		return nil, p.errorf("missing operator")
	}

	var op string
	switch p.src[p.pos] {
	case '=':
		op = "="
		p.pos++
	case '~', '<', '>':
		if p.pos+1 >= len(p.src) || p.src[p.pos+1] != '=' {
			return nil, p.errorf("invalid operator")
		}
		op = p.src[p.pos : p.pos+2]
		p.pos += 2
	default:
		return nil, p.errorf("missing operator")
	}

	parts, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	switch op {
	case "~=":
		return approxExpr{attr: attr, value: strings.Join(parts, "*")}, nil
	case "<=", ">=":
		return compareExpr{attr: attr, value: strings.Join(parts, "*"), less: op == "<="}, nil
	}

	switch {
	case len(parts) == 1:
		return equalExpr{attr: attr, value: parts[0]}, nil
	case len(parts) == 2 && parts[0] == "" && parts[1] == "":
		return presentExpr{attr: attr}, nil
	default:
		return substringExpr{attr: attr, parts: parts}, nil
	}
}

// parseValue reads up to the closing parenthesis and splits the value at
// unescaped wildcards.
func (p *filterParser) parseValue() ([]string, error) {
	var (
		parts []string
		cur   strings.Builder
	)
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case ')':
			return append(parts, cur.String()), nil
		case '(':
			return nil, p.errorf("unescaped '(' in value")
		case '*':
			parts = append(parts, cur.String())
			cur.Reset()
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return nil, p.errorf("dangling escape")
			}
			cur.WriteByte(p.src[p.pos])
		default:
			cur.WriteByte(c)
		}
		p.pos++
	}
	return nil, p.errorf("unterminated value")
}
