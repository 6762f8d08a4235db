package tracer

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

const (
	// maxStringLen caps quoted strings and fallback representations.
	maxStringLen = 100
	// maxObjectLen caps the stringified part of a typed object.
	maxObjectLen = 50
	// maxSampleItems is how many elements of a large collection appear.
	maxSampleItems = 3
)

// formatValue renders a value for a trace record. It must never panic: a
// value that cannot be represented renders as a placeholder instead.
func formatValue(v any) (out string) {
	defer func() {
		if recover() != nil {
			out = "<unrepresentable>"
		}
	}()
	return format(v, 0)
}

// formatResults renders a function's results: none is "nil", one is the
// value itself, several are a parenthesized tuple.
func formatResults(results []any) string {
	switch len(results) {
	case 0:
		return "nil"
	case 1:
		return formatValue(deref(results[0]))
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = formatValue(deref(r))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// deref resolves one level of pointer so deferred Exit calls report final
// values of named results.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}

func format(v any, depth int) string {
	if v == nil {
		return "nil"
	}
	if depth > 2 {
		return "..."
	}
	switch x := v.(type) {
	case string:
		return truncate(strconv.Quote(x), maxStringLen)
	case []byte:
		return truncate(strconv.Quote(string(x)), maxStringLen)
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64, complex64, complex128:
		return fmt.Sprint(x)
	case error:
		return truncate(fmt.Sprintf("%T: %v", x, x), maxStringLen)
	case fmt.Stringer:
		return typed(v, x.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return format(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		return formatSeq(rv, depth)
	case reflect.Map:
		return formatMap(rv, depth)
	case reflect.Func, reflect.Chan:
		return rv.Type().String()
	}
	return typed(v, fmt.Sprint(v))
}

// typed renders an arbitrary object as "pkg.Type: value", the value part
// truncated.
func typed(v any, s string) string {
	return reflect.TypeOf(v).String() + ": " + truncate(s, maxObjectLen)
}

func formatSeq(rv reflect.Value, depth int) string {
	n := rv.Len()
	limit := n
	sampled := false
	if n > maxSampleItems {
		limit = maxSampleItems
		sampled = true
	}
	parts := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		parts = append(parts, format(rv.Index(i).Interface(), depth+1))
	}
	body := "[" + strings.Join(parts, " ") + "]"
	if sampled {
		return fmt.Sprintf("%s[%d] [%s ...]", rv.Type().String(), n, strings.Join(parts, " "))
	}
	return body
}

func formatMap(rv reflect.Value, depth int) string {
	n := rv.Len()
	limit := n
	sampled := false
	if n > maxSampleItems {
		limit = maxSampleItems
		sampled = true
	}
	parts := make([]string, 0, limit)
	iter := rv.MapRange()
	for iter.Next() && len(parts) < limit {
		parts = append(parts,
			format(iter.Key().Interface(), depth+1)+":"+format(iter.Value().Interface(), depth+1))
	}
	if sampled {
		return fmt.Sprintf("%s[%d] {%s ...}", rv.Type().String(), n, strings.Join(parts, " "))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
