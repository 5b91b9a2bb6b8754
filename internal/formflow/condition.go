package formflow

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Condition DSL
//
// Conditions are small boolean expressions stored in form configuration:
//
//   calc.age < 18
//   answer contains 'none'
//   conditions contains ['diabetes_t1', 'pancreatitis']
//   state in ['CA', 'NY'] AND answer == 'yes'
//
// Expressions are parsed into a tree of Comparison, Membership and
// Conjunction nodes. Anything that fails to parse becomes an Unresolved
// node. Evaluation is tri-state; Unknown (unresolved token, null
// calculation, type mismatch) maps to false at the top level, so a broken
// condition never matches and never panics.
// ---------------------------------------------------------------------------

// Truth is the result of evaluating a node.
type Truth int8

const (
	TruthFalse Truth = iota
	TruthTrue
	TruthUnknown
)

// Scope is the data a condition is evaluated against.
type Scope struct {
	// Current is the value bound to the `answer` token.
	Current      any
	Answers      Answers
	Calculations Calculations
	Flags        FlagSet
}

const (
	answerToken = "answer"
	flagsToken  = "flags"
	calcPrefix  = "calc."
)

// resolve looks up an operand. The second result is false when the name is
// unknown or its value is null.
func (s Scope) resolve(name string) (any, bool) {
	switch {
	case name == answerToken:
		return s.Current, s.Current != nil
	case name == flagsToken:
		return s.Flags.Sorted(), true
	case strings.HasPrefix(name, calcPrefix):
		return s.Calculations.Value(strings.TrimPrefix(name, calcPrefix))
	}
	v, ok := s.Answers[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Node is a parsed condition.
type Node interface {
	Eval(s Scope) Truth
	String() string
}

// Literal is a right-hand side value: a quoted string, a number, or a bare
// word treated as a string.
type Literal struct {
	Raw    string
	Num    float64
	IsNum  bool
	Quoted bool
}

func (l Literal) String() string {
	if l.Quoted {
		return "'" + l.Raw + "'"
	}
	return l.Raw
}

// Comparison is `operand op literal` for ==, !=, <, >, <=, >=.
type Comparison struct {
	Operand string
	Op      string
	Value   Literal
}

func (c *Comparison) Eval(s Scope) Truth {
	v, ok := s.resolve(c.Operand)
	if !ok {
		return TruthUnknown
	}
	switch c.Op {
	case "==", "!=":
		eq := looseEqual(v, c.Value)
		if c.Op == "!=" {
			eq = !eq
		}
		return truth(eq)
	}
	lhs, ok := toNumber(v)
	if !ok {
		return TruthUnknown
	}
	rhs := c.Value.Num
	if !c.Value.IsNum {
		if rhs, ok = toNumber(c.Value.Raw); !ok {
			return TruthUnknown
		}
	}
	switch c.Op {
	case "<":
		return truth(lhs < rhs)
	case ">":
		return truth(lhs > rhs)
	case "<=":
		return truth(lhs <= rhs)
	case ">=":
		return truth(lhs >= rhs)
	}
	return TruthUnknown
}

func (c *Comparison) String() string {
	return c.Operand + " " + c.Op + " " + c.Value.String()
}

// MembershipKind distinguishes `contains` from `in`.
type MembershipKind string

const (
	MembershipContains MembershipKind = "contains"
	MembershipIn       MembershipKind = "in"
)

// Membership is `operand contains literal`, `operand contains [list]` or
// `operand in [list]`. A list matches when any element matches.
type Membership struct {
	Operand string
	Kind    MembershipKind
	Values  []Literal
	List    bool
}

func (m *Membership) Eval(s Scope) Truth {
	v, ok := s.resolve(m.Operand)
	if !ok {
		return TruthUnknown
	}
	for _, lit := range m.Values {
		var hit bool
		if m.Kind == MembershipContains {
			hit = containsLiteral(v, lit.Raw)
		} else {
			hit = inLiteral(v, lit.Raw)
		}
		if hit {
			return TruthTrue
		}
	}
	return TruthFalse
}

func (m *Membership) String() string {
	if !m.List && len(m.Values) == 1 {
		return m.Operand + " " + string(m.Kind) + " " + m.Values[0].String()
	}
	parts := make([]string, len(m.Values))
	for i, v := range m.Values {
		parts[i] = v.String()
	}
	return m.Operand + " " + string(m.Kind) + " [" + strings.Join(parts, ", ") + "]"
}

// Conjunction joins two nodes with AND or OR.
type Conjunction struct {
	Op    string
	Left  Node
	Right Node
}

func (c *Conjunction) Eval(s Scope) Truth {
	l, r := c.Left.Eval(s), c.Right.Eval(s)
	if c.Op == "OR" {
		switch {
		case l == TruthTrue || r == TruthTrue:
			return TruthTrue
		case l == TruthUnknown || r == TruthUnknown:
			return TruthUnknown
		}
		return TruthFalse
	}
	switch {
	case l == TruthFalse || r == TruthFalse:
		return TruthFalse
	case l == TruthUnknown || r == TruthUnknown:
		return TruthUnknown
	}
	return TruthTrue
}

func (c *Conjunction) String() string {
	return "(" + c.Left.String() + " " + c.Op + " " + c.Right.String() + ")"
}

// Unresolved stands in for an expression that could not be parsed.
type Unresolved struct {
	Expr   string
	Reason string
}

func (u *Unresolved) Eval(Scope) Truth { return TruthUnknown }

func (u *Unresolved) String() string {
	return fmt.Sprintf("unresolved(%q: %s)", u.Expr, u.Reason)
}

func truth(b bool) Truth {
	if b {
		return TruthTrue
	}
	return TruthFalse
}

func looseEqual(v any, lit Literal) bool {
	if lit.IsNum {
		if n, ok := toNumber(v); ok {
			return n == lit.Num
		}
	}
	return stringify(v) == lit.Raw
}

func containsLiteral(v any, lit string) bool {
	if items, ok := asSlice(v); ok {
		for _, item := range items {
			if stringify(item) == lit {
				return true
			}
		}
		return false
	}
	return strings.Contains(stringify(v), lit)
}

func inLiteral(v any, lit string) bool {
	if items, ok := asSlice(v); ok {
		for _, item := range items {
			if stringify(item) == lit {
				return true
			}
		}
		return false
	}
	return stringify(v) == lit
}

// ---------------------------------------------------------------------------
// Tokenizer
// ---------------------------------------------------------------------------

type condTokenType int

const (
	condIdent condTokenType = iota
	condString
	condNumber
	condCompare
	condContains
	condIn
	condAnd
	condOr
	condLBracket
	condRBracket
	condComma
	condLParen
	condRParen
)

type condToken struct {
	Type  condTokenType
	Value string
}

func isIdentByte(ch byte) bool {
	return ch == '_' || ch == '.' || ch == '-' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func tokenizeCondition(expr string) ([]condToken, error) {
	var tokens []condToken
	i, n := 0, len(expr)

	for i < n {
		ch := expr[i]
		switch ch {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		case '(':
			tokens = append(tokens, condToken{condLParen, "("})
			i++
			continue
		case ')':
			tokens = append(tokens, condToken{condRParen, ")"})
			i++
			continue
		case '[':
			tokens = append(tokens, condToken{condLBracket, "["})
			i++
			continue
		case ']':
			tokens = append(tokens, condToken{condRBracket, "]"})
			i++
			continue
		case ',':
			tokens = append(tokens, condToken{condComma, ","})
			i++
			continue
		case '\'', '"':
			j := i + 1
			for j < n && expr[j] != ch {
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unclosed quoted string at position %d", i)
			}
			tokens = append(tokens, condToken{condString, expr[i+1 : j]})
			i = j + 1
			continue
		case '=', '!', '<', '>':
			if i+1 < n && expr[i+1] == '=' {
				tokens = append(tokens, condToken{condCompare, expr[i : i+2]})
				i += 2
				continue
			}
			if ch == '<' || ch == '>' {
				tokens = append(tokens, condToken{condCompare, string(ch)})
				i++
				continue
			}
			return nil, fmt.Errorf("unexpected %q at position %d", ch, i)
		}

		if !isIdentByte(ch) {
			return nil, fmt.Errorf("unexpected %q at position %d", ch, i)
		}
		j := i
		for j < n && isIdentByte(expr[j]) {
			j++
		}
		word := expr[i:j]
		i = j

		switch word {
		case "AND":
			tokens = append(tokens, condToken{condAnd, word})
		case "OR":
			tokens = append(tokens, condToken{condOr, word})
		case "contains":
			tokens = append(tokens, condToken{condContains, word})
		case "in":
			tokens = append(tokens, condToken{condIn, word})
		default:
			if looksNumeric(word) {
				tokens = append(tokens, condToken{condNumber, word})
			} else {
				tokens = append(tokens, condToken{condIdent, word})
			}
		}
	}
	return tokens, nil
}

// looksNumeric rejects words like "nan" or "inf" that ParseFloat accepts.
func looksNumeric(word string) bool {
	c := word[0]
	if c != '-' && c != '.' && (c < '0' || c > '9') {
		return false
	}
	_, err := strconv.ParseFloat(word, 64)
	return err == nil
}

// ---------------------------------------------------------------------------
// Parser
//
// Grammar (AND/OR fold left to right with equal precedence):
//   expr      -> primary (("AND" | "OR") primary)*
//   primary   -> "(" expr ")" | predicate
//   predicate -> IDENT COMPARE value
//              | IDENT "contains" (value | list)
//              | IDENT "in" list
//   list      -> "[" (value ("," value)*)? "]"
//   value     -> STRING | NUMBER | IDENT
// ---------------------------------------------------------------------------

type condParser struct {
	tokens []condToken
	pos    int
}

func (p *condParser) peek() *condToken {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *condParser) advance() *condToken {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *condParser) parseExpr() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t == nil || (t.Type != condAnd && t.Type != condOr) {
			return left, nil
		}
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &Conjunction{Op: t.Value, Left: left, Right: right}
	}
}

func (p *condParser) parsePrimary() (Node, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if t.Type == condLParen {
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing == nil || closing.Type != condRParen {
			return nil, fmt.Errorf("expected ')'")
		}
		return inner, nil
	}
	return p.parsePredicate()
}

func (p *condParser) parsePredicate() (Node, error) {
	operand := p.advance()
	if operand == nil || operand.Type != condIdent {
		if operand == nil {
			return nil, fmt.Errorf("expected field name")
		}
		return nil, fmt.Errorf("unexpected %q, expected field name", operand.Value)
	}

	op := p.advance()
	if op == nil {
		return nil, fmt.Errorf("expected operator after %q", operand.Value)
	}
	switch op.Type {
	case condCompare:
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &Comparison{Operand: operand.Value, Op: op.Value, Value: val}, nil
	case condContains:
		if next := p.peek(); next != nil && next.Type == condLBracket {
			vals, err := p.parseList()
			if err != nil {
				return nil, err
			}
			return &Membership{Operand: operand.Value, Kind: MembershipContains, Values: vals, List: true}, nil
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &Membership{Operand: operand.Value, Kind: MembershipContains, Values: []Literal{val}}, nil
	case condIn:
		vals, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &Membership{Operand: operand.Value, Kind: MembershipIn, Values: vals, List: true}, nil
	}
	return nil, fmt.Errorf("unexpected %q after %q, expected operator", op.Value, operand.Value)
}

func (p *condParser) parseList() ([]Literal, error) {
	if open := p.advance(); open == nil || open.Type != condLBracket {
		return nil, fmt.Errorf("expected '['")
	}
	var vals []Literal
	if t := p.peek(); t != nil && t.Type == condRBracket {
		p.advance()
		return vals, nil
	}
	for {
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		vals = append(vals, val)
		t := p.advance()
		if t == nil {
			return nil, fmt.Errorf("unclosed list")
		}
		if t.Type == condRBracket {
			return vals, nil
		}
		if t.Type != condComma {
			return nil, fmt.Errorf("unexpected %q in list", t.Value)
		}
	}
}

func (p *condParser) parseValue() (Literal, error) {
	t := p.advance()
	if t == nil {
		return Literal{}, fmt.Errorf("expected value")
	}
	switch t.Type {
	case condString:
		return Literal{Raw: t.Value, Quoted: true}, nil
	case condNumber:
		f, _ := strconv.ParseFloat(t.Value, 64)
		return Literal{Raw: t.Value, Num: f, IsNum: true}, nil
	case condIdent:
		return Literal{Raw: t.Value}, nil
	}
	return Literal{}, fmt.Errorf("unexpected %q, expected value", t.Value)
}

// Parse turns a condition string into a Node. It never fails: malformed
// input yields an *Unresolved node.
func Parse(expr string) Node {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return &Unresolved{Expr: expr, Reason: "empty expression"}
	}
	tokens, err := tokenizeCondition(trimmed)
	if err != nil {
		return &Unresolved{Expr: expr, Reason: err.Error()}
	}
	p := &condParser{tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return &Unresolved{Expr: expr, Reason: err.Error()}
	}
	if p.pos < len(p.tokens) {
		return &Unresolved{Expr: expr, Reason: fmt.Sprintf("unexpected %q", p.tokens[p.pos].Value)}
	}
	return node
}

// ParseError returns the reason expr does not parse, or nil.
func ParseError(expr string) error {
	if u, ok := Parse(expr).(*Unresolved); ok {
		return fmt.Errorf("invalid condition %q: %s", expr, u.Reason)
	}
	return nil
}

// parsed caches nodes by expression text. Expressions come from form
// configuration, so the set is small and fixed per deployment.
var parsed sync.Map

func parseCached(expr string) Node {
	if n, ok := parsed.Load(expr); ok {
		return n.(Node)
	}
	n := Parse(expr)
	parsed.Store(expr, n)
	return n
}

// Evaluate reports whether expr holds. current is bound to the `answer`
// token. Unknown fields, null calculations and malformed expressions all
// evaluate to false.
func Evaluate(expr string, current any, answers Answers, calcs Calculations, flags FlagSet) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	scope := Scope{Current: current, Answers: answers, Calculations: calcs, Flags: flags}
	return parseCached(expr).Eval(scope) == TruthTrue
}
