package std

import (
	"encoding/base64"

	"github.com/liminalcommons/chora-cvm/internal/types"
)

func strArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", types.NewError(types.ErrMapping, "missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", types.NewError(types.ErrMapping, "argument %q must be a string", key)
	}
	return s, nil
}

func optStrArg(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func floatArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, types.NewError(types.ErrMapping, "missing required argument %q", key)
	}
	f, ok := asNumber(v)
	if !ok {
		return 0, types.NewError(types.ErrMapping, "argument %q must be a number", key)
	}
	return f, nil
}

func optFloatArg(args map[string]any, key string, fallback float64) float64 {
	if f, ok := asNumber(args[key]); ok {
		return f
	}
	return fallback
}

func optIntArg(args map[string]any, key string, fallback int) int {
	if f, ok := asNumber(args[key]); ok {
		return int(f)
	}
	return fallback
}

func mapArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, types.NewError(types.ErrMapping, "missing required argument %q", key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, types.NewError(types.ErrMapping, "argument %q must be an object", key)
	}
	return m, nil
}

func optMapArg(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

func listArg(args map[string]any, key string) ([]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, types.NewError(types.ErrMapping, "missing required argument %q", key)
	}
	l, ok := v.([]any)
	if !ok {
		return nil, types.NewError(types.ErrMapping, "argument %q must be a list", key)
	}
	return l, nil
}

// bytesArg accepts raw bytes (in-process callers) or a base64 string (JSON
// surfaces encode vectors that way).
func bytesArg(args map[string]any, key string) ([]byte, error) {
	v, ok := args[key]
	if !ok {
		return nil, types.NewError(types.ErrMapping, "missing required argument %q", key)
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, types.NewError(types.ErrMapping, "argument %q is not valid base64: %v", key, err)
		}
		return decoded, nil
	}
	return nil, types.NewError(types.ErrMapping, "argument %q must be bytes or base64", key)
}

func asNumber(v any) (float64, bool) {
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
