package expr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by Evaluate.
var (
	// ErrEmptyExpression indicates a blank predicate.
	ErrEmptyExpression = errors.New("empty expression")

	// ErrUndefinedOperand indicates an identifier missing from vars in strict mode.
	ErrUndefinedOperand = errors.New("undefined operand")

	// ErrNotNumeric indicates an ordering comparison on a non-numeric value.
	ErrNotNumeric = errors.New("operand is not numeric")
)

// OperandError reports which operand could not be resolved or compared.
type OperandError struct {
	Operand string
	Err     error
}

// Error implements the error interface.
func (e *OperandError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Operand)
}

// Unwrap returns the underlying sentinel.
func (e *OperandError) Unwrap() error {
	return e.Err
}

// BinaryOp compares two resolved operands.
type BinaryOp func(left, right any) bool

// Evaluator evaluates boolean expressions with optional custom operators.
// An Evaluator is safe for concurrent use once constructed.
type Evaluator struct {
	customOps map[string]BinaryOp
	strict    bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCustomOperator registers a word operator, matched with surrounding spaces.
func WithCustomOperator(name string, fn BinaryOp) Option {
	return func(e *Evaluator) {
		if e.customOps == nil {
			e.customOps = make(map[string]BinaryOp)
		}
		e.customOps[name] = fn
	}
}

// WithStrict controls whether unknown identifiers are errors. Default: true.
func WithStrict(strict bool) Option {
	return func(e *Evaluator) {
		e.strict = strict
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{strict: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate evaluates expr against vars.
func (e *Evaluator) Evaluate(expr string, vars map[string]any) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return false, ErrEmptyExpression
	}
	return e.evaluate(expr, vars)
}

// Eval evaluates expr with a strict evaluator and no custom operators.
func Eval(expr string, vars map[string]any) (bool, error) {
	return New().Evaluate(expr, vars)
}

type builtinOp struct {
	token   string
	compare func(l, r any) (bool, error)
}

// builtinOps is ordered so that longer tokens win over their prefixes.
var builtinOps = []builtinOp{
	{"==", func(l, r any) (bool, error) { return compareEquals(l, r), nil }},
	{"!=", func(l, r any) (bool, error) { return !compareEquals(l, r), nil }},
	{">=", numeric(func(l, r float64) bool { return l >= r })},
	{"<=", numeric(func(l, r float64) bool { return l <= r })},
	{">", numeric(func(l, r float64) bool { return l > r })},
	{"<", numeric(func(l, r float64) bool { return l < r })},
	{" not contains ", func(l, r any) (bool, error) { return !compareContains(l, r), nil }},
	{" contains ", func(l, r any) (bool, error) { return compareContains(l, r), nil }},
	{" startswith ", func(l, r any) (bool, error) { return strings.HasPrefix(stringOf(l), stringOf(r)), nil }},
	{" endswith ", func(l, r any) (bool, error) { return strings.HasSuffix(stringOf(l), stringOf(r)), nil }},
}

func (e *Evaluator) evaluate(expr string, vars map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, ErrEmptyExpression
	}

	// or has the lowest precedence, so it is split first.
	if left, right, ok := splitOutsideQuotes(expr, " or "); ok {
		l, err := e.evaluate(left, vars)
		if err != nil {
			return false, err
		}
		r, err := e.evaluate(right, vars)
		if err != nil {
			return false, err
		}
		return l || r, nil
	}

	if left, right, ok := splitOutsideQuotes(expr, " and "); ok {
		l, err := e.evaluate(left, vars)
		if err != nil {
			return false, err
		}
		r, err := e.evaluate(right, vars)
		if err != nil {
			return false, err
		}
		return l && r, nil
	}

	if strings.HasPrefix(expr, "not ") {
		v, err := e.evaluate(strings.TrimPrefix(expr, "not "), vars)
		return !v, err
	}
	if strings.HasPrefix(expr, "!") && !strings.HasPrefix(expr, "!=") {
		v, err := e.evaluate(strings.TrimPrefix(expr, "!"), vars)
		return !v, err
	}

	for _, op := range builtinOps {
		if left, right, ok := splitOutsideQuotes(expr, op.token); ok {
			l, r, err := e.operands(left, right, vars)
			if err != nil {
				return false, err
			}
			result, err := op.compare(l, r)
			if err != nil {
				return false, &OperandError{Operand: expr, Err: err}
			}
			return result, nil
		}
	}

	for name, fn := range e.customOps {
		if left, right, ok := splitOutsideQuotes(expr, " "+name+" "); ok {
			l, r, err := e.operands(left, right, vars)
			if err != nil {
				return false, err
			}
			return fn(l, r), nil
		}
	}

	v, err := e.resolve(expr, vars)
	if err != nil {
		return false, err
	}
	return IsTruthy(v), nil
}

func (e *Evaluator) operands(left, right string, vars map[string]any) (any, any, error) {
	l, err := e.resolve(left, vars)
	if err != nil {
		return nil, nil, err
	}
	r, err := e.resolve(right, vars)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func (e *Evaluator) resolve(s string, vars map[string]any) (any, error) {
	v, found := Resolve(s, vars)
	if !found && e.strict {
		return nil, &OperandError{Operand: strings.TrimSpace(s), Err: ErrUndefinedOperand}
	}
	return v, nil
}

// splitOutsideQuotes splits s at the first occurrence of sep that is not
// inside a single- or double-quoted string.
func splitOutsideQuotes(s, sep string) (string, string, bool) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(s[i:], sep):
			return s[:i], s[i+len(sep):], true
		}
	}
	return "", "", false
}
