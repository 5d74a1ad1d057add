// Package expression compiles and evaluates the arithmetic expressions
// used by allocation rule results. An expression combines numeric
// literals and ${name} operand references with + - * / and parentheses
// at the usual precedence.
package expression

import (
	"strconv"
	"strings"
	"unicode"

	"cloudcost/internal/errors"
)

// Expr is a compiled expression, evaluated once per hour against the
// rule's operand values. Compiled expressions are immutable and safe
// for concurrent evaluation.
type Expr struct {
	root node
	text string

	// Refs lists the distinct operand names the expression uses, in
	// first-appearance order.
	Refs []string
}

type node interface {
	eval(vars map[string]float64) float64
}

type literal float64

func (l literal) eval(map[string]float64) float64 { return float64(l) }

type ref string

func (r ref) eval(vars map[string]float64) float64 { return vars[string(r)] }

type binary struct {
	op          byte
	left, right node
}

func (b binary) eval(vars map[string]float64) float64 {
	l := b.left.eval(vars)
	r := b.right.eval(vars)
	switch b.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default:
		// Rules routinely divide by aggregate usage that can be zero for
		// an hour; the quotient is defined as zero, not NaN.
		if r == 0 {
			return 0
		}
		return l / r
	}
}

type negate struct{ operand node }

func (n negate) eval(vars map[string]float64) float64 { return -n.operand.eval(vars) }

// Compile parses an expression. Malformed expressions are configuration
// errors surfaced at rule load time.
func Compile(text string) (*Expr, error) {
	p := &parser{input: text}
	root, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, errors.Expressionf("unexpected %q at offset %d in %q", p.input[p.pos], p.pos, text)
	}
	return &Expr{root: root, text: text, Refs: p.refs}, nil
}

// Eval evaluates the expression with the given operand values. Missing
// operands evaluate as zero.
func (e *Expr) Eval(vars map[string]float64) float64 {
	return e.root.eval(vars)
}

// String returns the source text the expression was compiled from.
func (e *Expr) String() string { return e.text }

type parser struct {
	input string
	pos   int
	refs  []string
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos < len(p.input) {
		return p.input[p.pos]
	}
	return 0
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		switch op := p.peek(); op {
		case '+', '-':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return nil, err
			}
			left = binary{op: op, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseProduct() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch op := p.peek(); op {
		case '*', '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = binary{op: op, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.peek() == '-' {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negate{operand: operand}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (node, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, errors.Expressionf("missing ) in %q", p.input)
		}
		p.pos++
		return inner, nil

	case c == '$':
		return p.parseRef()

	case c == '.' || unicode.IsDigit(rune(c)):
		return p.parseNumber()

	case c == 0:
		return nil, errors.Expressionf("unexpected end of expression %q", p.input)

	default:
		return nil, errors.Expressionf("unexpected %q at offset %d in %q", c, p.pos, p.input)
	}
}

func (p *parser) parseRef() (node, error) {
	if !strings.HasPrefix(p.input[p.pos:], "${") {
		return nil, errors.Expressionf("malformed operand reference in %q", p.input)
	}
	end := strings.IndexByte(p.input[p.pos:], '}')
	if end < 0 {
		return nil, errors.Expressionf("unterminated operand reference in %q", p.input)
	}
	name := p.input[p.pos+2 : p.pos+end]
	if name == "" {
		return nil, errors.Expressionf("empty operand reference in %q", p.input)
	}
	p.pos += end + 1

	seen := false
	for _, r := range p.refs {
		if r == name {
			seen = true
			break
		}
	}
	if !seen {
		p.refs = append(p.refs, name)
	}
	return ref(name), nil
}

func (p *parser) parseNumber() (node, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '.' || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, errors.Expressionf("bad number %q in %q", p.input[start:p.pos], p.input)
	}
	return literal(v), nil
}
