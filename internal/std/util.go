package std

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// JSONGet extracts a value from a nested object by dot path.
func JSONGet(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	data, err := mapArg(args, "data")
	if err != nil {
		return nil, err
	}
	path, err := strArg(args, "path")
	if err != nil {
		return nil, err
	}

	var current any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return map[string]any{"value": args["default"], "found": false}, nil
		}
		current, ok = m[key]
		if !ok {
			return map[string]any{"value": args["default"], "found": false}, nil
		}
	}
	return map[string]any{"value": current, "found": true}, nil
}

// UUIDShort generates an 8-character hex id fragment.
func UUIDShort(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return map[string]any{"uuid": id}, nil
}

// TimestampNow returns the current UTC time in RFC 3339.
func TimestampNow(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	return map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339Nano)}, nil
}

var whenParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// TimestampOffset returns a timestamp offset from now. Accepts numeric
// days/hours/minutes offsets (negate flips them), or a natural-language
// expression like "in 3 days" or "last monday".
func TimestampOffset(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	now := time.Now().UTC()

	if expr := optStrArg(args, "expression", ""); expr != "" {
		result, err := whenParser.Parse(expr, now)
		if err != nil || result == nil {
			return nil, types.NewError(types.ErrMapping, "could not parse time expression %q", expr)
		}
		return map[string]any{"timestamp": result.Time.UTC().Format(time.RFC3339Nano)}, nil
	}

	days := optFloatArg(args, "days", 0)
	hours := optFloatArg(args, "hours", 0)
	minutes := optFloatArg(args, "minutes", 0)
	if negate, _ := args["negate"].(bool); negate {
		days, hours, minutes = -days, -hours, -minutes
	}

	offset := time.Duration(days*24)*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute
	return map[string]any{"timestamp": now.Add(offset).Format(time.RFC3339Nano)}, nil
}

// StringFormat substitutes {name} placeholders from a values map. Unknown
// placeholders are left in place and reported.
func StringFormat(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	template, err := strArg(args, "template")
	if err != nil {
		return nil, err
	}
	values, err := mapArg(args, "values")
	if err != nil {
		return nil, err
	}

	result := template
	var missing []any
	for _, key := range placeholderKeys(template) {
		v, ok := values[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		result = strings.ReplaceAll(result, "{"+key+"}", fmt.Sprintf("%v", v))
	}

	out := map[string]any{"result": result}
	if len(missing) > 0 {
		out["missing"] = missing
	}
	return out, nil
}

func placeholderKeys(template string) []string {
	var keys []string
	for {
		open := strings.Index(template, "{")
		if open < 0 {
			return keys
		}
		length := strings.Index(template[open:], "}")
		if length < 0 {
			return keys
		}
		keys = append(keys, template[open+1:open+length])
		template = template[open+length+1:]
	}
}

// StringJoin joins list items with a separator.
func StringJoin(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "items")
	if err != nil {
		return nil, err
	}
	sep := optStrArg(args, "separator", ", ")

	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	return map[string]any{"result": strings.Join(parts, sep)}, nil
}

// ListLength reports a list's length.
func ListLength(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "items")
	if err != nil {
		return nil, err
	}
	return map[string]any{"length": float64(len(items))}, nil
}

// ListSum totals a numeric list; non-numeric items are ignored.
func ListSum(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "items")
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, item := range items {
		if n, ok := asNumber(item); ok {
			total += n
		}
	}
	return map[string]any{"sum": total}, nil
}

// ListMap extracts a field from each object in a list. The key accepts
// dot-notation paths for nested extraction ("data.domain"); items missing
// the path contribute nil.
func ListMap(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "items")
	if err != nil {
		return nil, err
	}
	key, err := strArg(args, "key")
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, len(items))
	for _, item := range items {
		values = append(values, extractPath(item, key))
	}
	return map[string]any{"values": values}, nil
}

func extractPath(obj any, path string) any {
	current := obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// ListSortBy sorts a list of objects by a field. Numeric values compare
// numerically, everything else as strings; items missing the key sort
// first. The sort is stable.
func ListSortBy(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "items")
	if err != nil {
		return nil, err
	}
	key, err := strArg(args, "key")
	if err != nil {
		return nil, err
	}
	reverse, _ := args["reverse"].(bool)

	sorted := make([]any, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		less := lessValues(extractPath(sorted[i], key), extractPath(sorted[j], key))
		if reverse {
			return lessValues(extractPath(sorted[j], key), extractPath(sorted[i], key))
		}
		return less
	})
	return map[string]any{"items": sorted}, nil
}

func lessValues(a, b any) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	an, aok := asNumber(a)
	bn, bok := asNumber(b)
	if aok && bok {
		return an < bn
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

// ListSlice returns items[start:end] with out-of-range indices clamped.
func ListSlice(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "items")
	if err != nil {
		return nil, err
	}
	start := optIntArg(args, "start", 0)
	end := optIntArg(args, "end", len(items))

	if start < 0 {
		start = 0
	}
	if end > len(items) {
		end = len(items)
	}
	if start > end {
		start = end
	}
	sliced := items[start:end]
	return map[string]any{"items": sliced, "length": float64(len(sliced))}, nil
}
