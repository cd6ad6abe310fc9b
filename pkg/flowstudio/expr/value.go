package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolve turns a token into a value. Literals (quoted strings, booleans,
// null, numbers) always resolve. Anything else is looked up in vars; found
// reports whether the lookup succeeded. An unresolved token is returned as
// its own text so lenient callers can treat it as a bare string.
func Resolve(s string, vars map[string]any) (value any, found bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}

	if len(s) >= 2 && ((s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"')) {
		return s[1 : len(s)-1], true
	}

	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "nil":
		return nil, true
	}

	if looksNumeric(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}

	if val, ok := vars[s]; ok {
		return val, true
	}
	return s, false
}

// looksNumeric keeps names like inf or nan out of strconv.ParseFloat.
func looksNumeric(s string) bool {
	c := s[0]
	if c == '-' || c == '+' {
		if len(s) == 1 {
			return false
		}
		c = s[1]
	}
	return c >= '0' && c <= '9' || c == '.'
}

// IsTruthy reports whether v counts as true when used as a lone predicate.
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

// ToFloat64 converts numeric values and numeric strings to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		val = strings.TrimSpace(val)
		if val == "" || !looksNumeric(val) {
			return 0, false
		}
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
