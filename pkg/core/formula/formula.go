// Package formula implements the safe evaluator for pay-component and
// transaction override formulas. The grammar is deliberately tiny:
// arithmetic, comparisons, a Python-style "expr if cond else expr"
// conditional, and the functions min, max, round and abs over the two
// bound variables basic and gross. Anything outside that grammar is
// rejected, and a rejected or failing formula always evaluates to a
// definite zero rather than raising.
package formula

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Binding is the fixed variable vocabulary available to formulas.
type Binding struct {
	Basic decimal.Decimal
	Gross decimal.Decimal
}

// Eval parses and evaluates the formula against the binding. The
// result is quantised to 2 decimal places.
func Eval(input string, b Binding) (decimal.Decimal, error) {
	if err := checkWhitelist(input); err != nil {
		return decimal.Zero, err
	}
	toks, err := lex(input)
	if err != nil {
		return decimal.Zero, err
	}
	p := &parser{toks: toks}
	node, err := p.parseExpr()
	if err != nil {
		return decimal.Zero, err
	}
	if !p.atEnd() {
		return decimal.Zero, fmt.Errorf("unexpected trailing input at %q", p.peek().text)
	}
	v, err := node.eval(b)
	if err != nil {
		return decimal.Zero, err
	}
	if v.isBool {
		return decimal.Zero, fmt.Errorf("formula result is boolean, expected number")
	}
	return v.num.Round(2), nil
}

// EvalOrZero evaluates the formula and maps every failure to zero.
// Callers that need the error use Eval directly and log it.
func EvalOrZero(input string, b Binding) decimal.Decimal {
	v, err := Eval(input, b)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func checkWhitelist(input string) error {
	for _, r := range input {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case strings.ContainsRune(" .+-*/(),<>=!_", r):
		default:
			return fmt.Errorf("formula contains disallowed character %q", r)
		}
	}
	return nil
}

// =============================================================================
// LEXER
// =============================================================================

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, input[i:j]})
			i = j
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
			j := i
			for j < len(input) && (input[j] >= 'a' && input[j] <= 'z' || input[j] >= 'A' && input[j] <= 'Z' || input[j] >= '0' && input[j] <= '9' || input[j] == '_') {
				j++
			}
			toks = append(toks, token{tokIdent, strings.ToLower(input[i:j])})
			i = j
		case strings.IndexByte("<>=!", c) >= 0:
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokOp, input[i : i+2]})
				i += 2
			} else if c == '=' || c == '!' {
				return nil, fmt.Errorf("invalid operator %q", string(c))
			} else {
				toks = append(toks, token{tokOp, string(c)})
				i++
			}
		case strings.IndexByte("+-*/(),", c) >= 0:
			toks = append(toks, token{tokOp, string(c)})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

// =============================================================================
// PARSER (recursive descent)
//
// expr        := comparison ["if" comparison "else" expr]
// comparison  := additive [("<"|">"|"<="|">="|"=="|"!=") additive]
// additive    := term (("+"|"-") term)*
// term        := unary (("*"|"/") unary)*
// unary       := "-" unary | primary
// primary     := number | "true" | "false" | variable
//              | func "(" expr ("," expr)* ")" | "(" expr ")"
// =============================================================================

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token  { return p.toks[p.pos] }
func (p *parser) next() token  { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) atEnd() bool  { return p.peek().kind == tokEOF }

func (p *parser) accept(text string) bool {
	if p.peek().text == text && p.peek().kind != tokNumber {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return fmt.Errorf("expected %q, got %q", text, p.peek().text)
	}
	return nil
}

func (p *parser) parseExpr() (node, error) {
	then, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokIdent && p.peek().text == "if" {
		p.next()
		cond, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokIdent || p.peek().text != "else" {
			return nil, fmt.Errorf("conditional missing else")
		}
		p.next()
		alt, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &condNode{cond: cond, then: then, alt: alt}, nil
	}
	return then, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokOp {
		switch t.text {
		case "<", ">", "<=", ">=", "==", "!=":
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &cmpNode{op: t.text, left: left, right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind == tokOp && (t.text == "+" || t.text == "-") {
			p.next()
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = &binNode{op: t.text, left: left, right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind == tokOp && (t.text == "*" || t.text == "/") {
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &binNode{op: t.text, left: left, right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokOp && p.peek().text == "-" {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

var functions = map[string]struct{ minArgs, maxArgs int }{
	"min":   {2, 8},
	"max":   {2, 8},
	"round": {1, 2},
	"abs":   {1, 1},
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return &numNode{value: d}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &boolNode{value: true}, nil
		case "false":
			return &boolNode{value: false}, nil
		case "basic", "gross":
			return &varNode{name: t.text}, nil
		case "if", "else":
			return nil, fmt.Errorf("unexpected keyword %q", t.text)
		}
		spec, ok := functions[t.text]
		if !ok {
			return nil, fmt.Errorf("unknown identifier %q", t.text)
		}
		if err := p.expect("("); err != nil {
			return nil, err
		}
		var args []node
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.accept(",") {
				continue
			}
			break
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		if len(args) < spec.minArgs || len(args) > spec.maxArgs {
			return nil, fmt.Errorf("%s: wrong argument count %d", t.text, len(args))
		}
		return &callNode{fn: t.text, args: args}, nil
	case tokOp:
		if t.text == "(" {
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %q", t.text)
}

// =============================================================================
// AST + EVALUATION
// =============================================================================

type value struct {
	num    decimal.Decimal
	b      bool
	isBool bool
}

type node interface {
	eval(b Binding) (value, error)
}

type numNode struct{ value decimal.Decimal }

func (n *numNode) eval(Binding) (value, error) { return value{num: n.value}, nil }

type boolNode struct{ value bool }

func (n *boolNode) eval(Binding) (value, error) { return value{b: n.value, isBool: true}, nil }

type varNode struct{ name string }

func (n *varNode) eval(b Binding) (value, error) {
	switch n.name {
	case "basic":
		return value{num: b.Basic}, nil
	case "gross":
		return value{num: b.Gross}, nil
	}
	return value{}, fmt.Errorf("unknown variable %q", n.name)
}

type negNode struct{ inner node }

func (n *negNode) eval(b Binding) (value, error) {
	v, err := n.inner.eval(b)
	if err != nil {
		return value{}, err
	}
	if v.isBool {
		return value{}, fmt.Errorf("cannot negate boolean")
	}
	return value{num: v.num.Neg()}, nil
}

type binNode struct {
	op          string
	left, right node
}

func (n *binNode) eval(b Binding) (value, error) {
	l, err := n.left.eval(b)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(b)
	if err != nil {
		return value{}, err
	}
	if l.isBool || r.isBool {
		return value{}, fmt.Errorf("arithmetic on boolean")
	}
	switch n.op {
	case "+":
		return value{num: l.num.Add(r.num)}, nil
	case "-":
		return value{num: l.num.Sub(r.num)}, nil
	case "*":
		return value{num: l.num.Mul(r.num)}, nil
	case "/":
		if r.num.IsZero() {
			return value{}, fmt.Errorf("division by zero")
		}
		return value{num: l.num.Div(r.num)}, nil
	}
	return value{}, fmt.Errorf("unknown operator %q", n.op)
}

type cmpNode struct {
	op          string
	left, right node
}

func (n *cmpNode) eval(b Binding) (value, error) {
	l, err := n.left.eval(b)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(b)
	if err != nil {
		return value{}, err
	}
	if l.isBool || r.isBool {
		if l.isBool != r.isBool || (n.op != "==" && n.op != "!=") {
			return value{}, fmt.Errorf("invalid boolean comparison")
		}
		eq := l.b == r.b
		return value{b: eq == (n.op == "=="), isBool: true}, nil
	}
	c := l.num.Cmp(r.num)
	var out bool
	switch n.op {
	case "<":
		out = c < 0
	case ">":
		out = c > 0
	case "<=":
		out = c <= 0
	case ">=":
		out = c >= 0
	case "==":
		out = c == 0
	case "!=":
		out = c != 0
	}
	return value{b: out, isBool: true}, nil
}

type condNode struct {
	cond, then, alt node
}

func (n *condNode) eval(b Binding) (value, error) {
	c, err := n.cond.eval(b)
	if err != nil {
		return value{}, err
	}
	if !c.isBool {
		// Numeric condition: nonzero is truthy.
		c.isBool = true
		c.b = !c.num.IsZero()
	}
	if c.b {
		return n.then.eval(b)
	}
	return n.alt.eval(b)
}

type callNode struct {
	fn   string
	args []node
}

func (n *callNode) eval(b Binding) (value, error) {
	vals := make([]decimal.Decimal, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(b)
		if err != nil {
			return value{}, err
		}
		if v.isBool {
			return value{}, fmt.Errorf("%s: boolean argument", n.fn)
		}
		vals[i] = v.num
	}
	switch n.fn {
	case "min":
		out := vals[0]
		for _, v := range vals[1:] {
			if v.LessThan(out) {
				out = v
			}
		}
		return value{num: out}, nil
	case "max":
		out := vals[0]
		for _, v := range vals[1:] {
			if v.GreaterThan(out) {
				out = v
			}
		}
		return value{num: out}, nil
	case "round":
		places := int32(0)
		if len(vals) == 2 {
			places = int32(vals[1].IntPart())
		}
		return value{num: vals[0].Round(places)}, nil
	case "abs":
		return value{num: vals[0].Abs()}, nil
	}
	return value{}, fmt.Errorf("unknown function %q", n.fn)
}
