package vm

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/liminalcommons/chora-cvm/internal/types"
)

var interpPattern = regexp.MustCompile(`\{(\$\.[^}]+)\}`)

// resolveValue evaluates one input expression against protocol memory.
// Strings starting with "$." are path lookups (dot-separated, numeric
// segments index into lists); strings containing "{$.x}" markers are
// interpolated; maps and lists resolve element-wise; everything else
// passes through as a literal. Unresolvable paths yield nil, never an
// error.
func resolveValue(pointer any, memory map[string]any) any {
	switch v := pointer.(type) {
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, val := range v {
			resolved[key] = resolveValue(val, memory)
		}
		return resolved
	case []any:
		resolved := make([]any, len(v))
		for i, item := range v {
			resolved[i] = resolveValue(item, memory)
		}
		return resolved
	case string:
		if strings.HasPrefix(v, "$.") {
			return resolvePath(v, memory)
		}
		if strings.Contains(v, "{") && strings.Contains(v, "$.") {
			return interpPattern.ReplaceAllStringFunc(v, func(match string) string {
				expr := match[1 : len(match)-1]
				resolved := resolvePath(expr, memory)
				if resolved == nil {
					return ""
				}
				return stringify(resolved)
			})
		}
		return v
	default:
		return pointer
	}
}

func resolvePath(pointer string, memory map[string]any) any {
	var value any = memory
	for _, segment := range strings.Split(pointer[2:], ".") {
		switch container := value.(type) {
		case map[string]any:
			next, ok := container[segment]
			if !ok {
				return nil
			}
			value = next
		case []any:
			idx, ok := listIndex(segment)
			if !ok || idx >= len(container) {
				return nil
			}
			value = container[idx]
		default:
			return nil
		}
	}
	return value
}

func listIndex(segment string) (int, bool) {
	if segment == "" {
		return 0, false
	}
	idx := 0
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
		idx = idx*10 + int(r-'0')
	}
	return idx, true
}

// stringify renders a resolved value for interpolation. JSON numbers that
// carry no fraction print as integers.
func stringify(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", v)
}

// mapInputs resolves a node's input expressions into the argument map the
// callee receives.
func mapInputs(inputs map[string]any, memory map[string]any) map[string]any {
	mapped := make(map[string]any, len(inputs))
	for key, ref := range inputs {
		mapped[key] = resolveValue(ref, memory)
	}
	return mapped
}

// evaluateCondition tests an edge condition against memory. Comparisons
// that do not apply to the resolved value (gt on a map, contains on a
// number) are false, never an error.
func evaluateCondition(cond *types.EdgeCondition, memory map[string]any) bool {
	actual := resolveValue(cond.Path, memory)

	switch cond.Op {
	case types.CondEq:
		return equalValues(actual, cond.Value)
	case types.CondNeq:
		return !equalValues(actual, cond.Value)
	case types.CondGt:
		cmp, ok := compareValues(actual, cond.Value)
		return ok && cmp > 0
	case types.CondLt:
		cmp, ok := compareValues(actual, cond.Value)
		return ok && cmp < 0
	case types.CondEmpty:
		return isEmpty(actual)
	case types.CondContains:
		return containsValue(actual, cond.Value)
	}
	return false
}

func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	if f, ok := asFloat(v); ok {
		return f == 0
	}
	return false
}

func containsValue(actual, expected any) bool {
	switch container := actual.(type) {
	case string:
		needle, ok := expected.(string)
		return ok && strings.Contains(container, needle)
	case []any:
		for _, item := range container {
			if equalValues(item, expected) {
				return true
			}
		}
	case map[string]any:
		key, ok := expected.(string)
		if !ok {
			return false
		}
		_, present := container[key]
		return present
	}
	return false
}
