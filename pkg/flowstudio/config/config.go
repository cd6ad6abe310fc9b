package config

import (
	"maps"
	"slices"
	"strconv"
	"time"
)

// Config is a decoded engine document: a YAML, JSON or viper settings map.
// Typed getters fall back to their default when the key is absent or its
// value does not convert.
type Config struct {
	data map[string]any
}

func New(data map[string]any) Config {
	if data == nil {
		data = map[string]any{}
	}
	return Config{data: data}
}

// get converts the value at key, or returns def.
func get[T any](c Config, key string, def T, conv func(any) (T, bool)) T {
	if v, ok := c.data[key]; ok {
		if out, ok := conv(v); ok {
			return out
		}
	}
	return def
}

func (c Config) String(key, def string) string { return get(c, key, def, toString) }

// Duration reads a Go duration string, a time.Duration, or a number of
// seconds.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	return get(c, key, def, toDuration)
}

// Bool also accepts the strings strconv.ParseBool understands, which is
// what environment overrides arrive as.
func (c Config) Bool(key string, def bool) bool { return get(c, key, def, toBool) }

// Int rejects floats with a fractional part.
func (c Config) Int(key string, def int) int {
	return get(c, key, def, func(v any) (int, bool) {
		n, ok := toInt64(v)
		return int(n), ok
	})
}

func (c Config) Float(key string, def float64) float64 { return get(c, key, def, toFloat) }

// Int64Slice reads a list of whole numbers, such as node ids. One bad
// element makes the whole list fall back to def.
func (c Config) Int64Slice(key string, def []int64) []int64 {
	return get(c, key, def, func(v any) ([]int64, bool) {
		if ids, ok := v.([]int64); ok {
			return ids, true
		}
		items, ok := v.([]any)
		if !ok {
			return nil, false
		}
		out := make([]int64, len(items))
		for i, item := range items {
			if out[i], ok = toInt64(item); !ok {
				return nil, false
			}
		}
		return out, true
	})
}

// Section returns the mapping under key, or an empty Config. YAML mappings
// with non-string keys keep only their string keys.
func (c Config) Section(key string) Config {
	switch m := c.data[key].(type) {
	case map[string]any:
		return New(m)
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			if s, ok := k.(string); ok {
				out[s] = v
			}
		}
		return New(out)
	}
	return New(nil)
}

// Keys returns the top-level keys in sorted order.
func (c Config) Keys() []string {
	return slices.Sorted(maps.Keys(c.data))
}

// Any returns the raw value at key, which may be nil, or def when absent.
func (c Config) Any(key string, def any) any {
	if v, ok := c.data[key]; ok {
		return v
	}
	return def
}

func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toDuration(v any) (time.Duration, bool) {
	switch val := v.(type) {
	case time.Duration:
		return val, true
	case string:
		d, err := time.ParseDuration(val)
		return d, err == nil
	case float64:
		return time.Duration(val * float64(time.Second)), true
	case int, int64:
		n, _ := toInt64(val)
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(val)
		return b, err == nil
	}
	return false, false
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), val == float64(int64(val))
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int, int64:
		n, _ := toInt64(val)
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}
