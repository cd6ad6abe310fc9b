package expr

import (
	"fmt"
	"strings"
)

// Compare applies a named operator to two already-resolved operands.
func Compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return compareEquals(left, right), nil
	case "!=":
		return !compareEquals(left, right), nil
	case "<", ">", "<=", ">=":
		for _, b := range builtinOps {
			if b.token == op {
				return b.compare(left, right)
			}
		}
	case "contains":
		return compareContains(left, right), nil
	case "not contains":
		return !compareContains(left, right), nil
	case "startswith":
		return strings.HasPrefix(stringOf(left), stringOf(right)), nil
	case "endswith":
		return strings.HasSuffix(stringOf(left), stringOf(right)), nil
	}
	return false, fmt.Errorf("unknown operator: %s", op)
}

func compareEquals(left, right any) bool {
	if lf, ok := ToFloat64(left); ok {
		if rf, ok := ToFloat64(right); ok {
			return lf == rf
		}
	}
	return stringOf(left) == stringOf(right)
}

func compareContains(left, right any) bool {
	return strings.Contains(stringOf(left), stringOf(right))
}

func numeric(cmp func(l, r float64) bool) func(l, r any) (bool, error) {
	return func(l, r any) (bool, error) {
		lf, ok := ToFloat64(l)
		if !ok {
			return false, ErrNotNumeric
		}
		rf, ok := ToFloat64(r)
		if !ok {
			return false, ErrNotNumeric
		}
		return cmp(lf, rf), nil
	}
}
