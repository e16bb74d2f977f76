package template

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// resolve looks key up on value: map entry, struct field, zero-argument
// method, or slice index. A missing key yields nil without error.
func resolve(value any, key string) (any, error) {
	if value == nil {
		return nil, nil
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		return nil, nil
	}

	if m := methodByName(v, key); m.IsValid() {
		return callMethod(m, key)
	}

	v = indirect(v)
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot look up %q in map keyed by %s", key, v.Type().Key())
		}
		entry := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
		if !entry.IsValid() {
			return nil, nil
		}
		return entry.Interface(), nil

	case reflect.Struct:
		if f := fieldByName(v, key); f.IsValid() {
			return f.Interface(), nil
		}
		return nil, nil

	case reflect.String:
		// Strings index and measure by rune, like the length filter.
		runes := []rune(v.String())
		if key == "length" {
			return len(runes), nil
		}
		i, ok := index(key, len(runes))
		if !ok {
			return nil, nil
		}
		return string(runes[i]), nil

	case reflect.Slice, reflect.Array:
		if key == "length" {
			return v.Len(), nil
		}
		i, ok := index(key, v.Len())
		if !ok {
			return nil, nil
		}
		return v.Index(i).Interface(), nil
	}

	return nil, nil
}

// index parses key as a position in a sequence of length n. Negative
// positions count from the end.
func index(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// fieldByName matches an exported field exactly first, then case-insensitively
// so templates can write user.name for a Name field.
func fieldByName(v reflect.Value, key string) reflect.Value {
	t := v.Type()
	if sf, ok := t.FieldByName(key); ok && sf.IsExported() {
		return v.FieldByIndex(sf.Index)
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.IsExported() && strings.EqualFold(sf.Name, key) {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

func methodByName(v reflect.Value, key string) reflect.Value {
	if !v.IsValid() || key == "" {
		return reflect.Value{}
	}
	name := strings.ToUpper(key[:1]) + key[1:]
	m := v.MethodByName(name)
	if !m.IsValid() {
		return reflect.Value{}
	}
	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() == 0 || mt.NumOut() > 2 {
		return reflect.Value{}
	}
	if mt.NumOut() == 2 && !mt.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		return reflect.Value{}
	}
	return m
}

func callMethod(m reflect.Value, key string) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, fmt.Errorf("calling %s: %v", key, rec)
		}
	}()
	out := m.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, fmt.Errorf("calling %s: %w", key, out[1].Interface().(error))
	}
	return out[0].Interface(), nil
}

// truthy follows the usual template conventions: nil, false, zero numbers and
// empty strings or collections are false.
func truthy(value any) bool {
	if value == nil {
		return false
	}
	v := indirect(reflect.ValueOf(value))
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return v.Len() > 0
	}
	return true
}

func toFloat(value any) (float64, bool) {
	v := indirect(reflect.ValueOf(value))
	if !v.IsValid() {
		return 0, false
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

func compare(op string, l, r any) (bool, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)

	if lok && rok {
		switch op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}

	switch op {
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	}

	ls, lstr := l.(string)
	rs, rstr := r.(string)
	if lstr && rstr {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}

	return false, fmt.Errorf("cannot compare %T %s %T", l, op, r)
}

func equalValues(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	return reflect.DeepEqual(l, r) || toString(l) == toString(r)
}

// toString renders a value for output. nil, including a typed nil pointer,
// renders as the empty string.
func toString(value any) string {
	if value == nil || !indirect(reflect.ValueOf(value)).IsValid() {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	return fmt.Sprint(value)
}

// pair is one step of a for loop: key is the index or map key.
type pair struct {
	key   any
	value any
}

// iterate lists the elements of a slice, array or map. Maps are visited in
// sorted key order so output is deterministic.
func iterate(value any) ([]pair, error) {
	if value == nil {
		return nil, nil
	}
	v := indirect(reflect.ValueOf(value))
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		pairs := make([]pair, v.Len())
		for i := range pairs {
			pairs[i] = pair{key: i, value: v.Index(i).Interface()}
		}
		return pairs, nil

	case reflect.Map:
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		pairs := make([]pair, len(keys))
		for i, k := range keys {
			pairs[i] = pair{key: k.Interface(), value: v.MapIndex(k).Interface()}
		}
		return pairs, nil

	case reflect.String:
		runes := []rune(v.String())
		pairs := make([]pair, len(runes))
		for i, r := range runes {
			pairs[i] = pair{key: i, value: string(r)}
		}
		return pairs, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int(v.Int())
		pairs := make([]pair, 0, max(n, 0))
		for i := 0; i < n; i++ {
			pairs = append(pairs, pair{key: i, value: i})
		}
		return pairs, nil
	}

	return nil, fmt.Errorf("cannot iterate over %T", value)
}
