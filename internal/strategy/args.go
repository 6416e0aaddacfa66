package strategy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Args are the free-form parameters passed to a strategy, e.g. parsed from
// "{short: 10, long: 50}".
type Args map[string]any

// ParseArgs decodes a YAML mapping. Flow style ("{short: 10}") and block
// style are both accepted; an empty string yields empty Args.
func ParseArgs(s string) (Args, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Args{}, nil
	}
	var a Args
	if err := yaml.Unmarshal([]byte(s), &a); err != nil {
		return nil, fmt.Errorf("parsing strategy params %q: %w", s, err)
	}
	if a == nil {
		a = Args{}
	}
	return a, nil
}

// Int returns the integer at key, or def when absent.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("param %s: %v is not an integer", key, x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("param %s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("param %s: unsupported type %T", key, v)
	}
}

// Float returns the number at key, or def when absent.
func (a Args) Float(key string, def float64) (float64, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("param %s: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("param %s: unsupported type %T", key, v)
	}
}

// String returns the value at key formatted as a string, or def when absent.
func (a Args) String(key, def string) string {
	v, ok := a[key]
	if !ok {
		return def
	}
	return fmt.Sprint(v)
}

// Encode renders the args as a stable, sorted flow mapping for the ledger.
func (a Args) Encode() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %v", k, a[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
