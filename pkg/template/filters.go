package template

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Filter transforms a value in an output tag. arg is nil when the filter was
// written without an argument.
type Filter func(value any, arg any) (any, error)

type filterCall struct {
	name string
	arg  expr
}

// safeString marks output that must not be HTML-escaped.
type safeString string

var builtinFilters = map[string]Filter{
	"upper": func(v any, _ any) (any, error) { return strings.ToUpper(toString(v)), nil },
	"lower": func(v any, _ any) (any, error) { return strings.ToLower(toString(v)), nil },
	"title": func(v any, _ any) (any, error) { return cases.Title(language.English).String(toString(v)), nil },
	"trim":  func(v any, _ any) (any, error) { return strings.TrimSpace(toString(v)), nil },
	"safe":  func(v any, _ any) (any, error) { return safeString(toString(v)), nil },
	"length": func(v any, _ any) (any, error) {
		rv := indirect(reflect.ValueOf(v))
		if !rv.IsValid() {
			return 0, nil
		}
		switch rv.Kind() {
		case reflect.String:
			return len([]rune(rv.String())), nil
		case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
			return rv.Len(), nil
		}
		return nil, fmt.Errorf("length of %T", v)
	},
	"default": func(v any, arg any) (any, error) {
		if truthy(v) {
			return v, nil
		}
		return arg, nil
	},
	"join": func(v any, arg any) (any, error) {
		sep := ", "
		if arg != nil {
			sep = toString(arg)
		}
		items, err := iterate(v)
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = toString(item.value)
		}
		return strings.Join(parts, sep), nil
	},
}

// parseFilter parses "name" or "name:arg" where arg is a literal or path.
func parseFilter(src string) (filterCall, error) {
	name, argSrc, hasArg := strings.Cut(src, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return filterCall{}, fmt.Errorf("empty filter")
	}

	call := filterCall{name: name}
	if hasArg {
		arg, err := parseOperand(strings.TrimSpace(argSrc))
		if err != nil {
			return filterCall{}, fmt.Errorf("filter %s: %w", name, err)
		}
		call.arg = arg
	}
	return call, nil
}
