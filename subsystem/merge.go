package subsystem

import (
	"reflect"
)

// Values is an arbitrary nested key/value mapping used for configuration, context and payloads.
type Values = map[string]any

// Merge combines target into source and returns the result.
//
// The rule is chosen by the kind of the source value:
//   - slice: target elements are appended after the source elements (a non-slice target is appended as one element)
//   - set (a map with struct{} elements): union of both sets
//   - map: key-wise union, recursing into values present on both sides, target wins on scalar conflicts
//   - anything else, or a mismatched pair: target replaces source
//
// Maps are merged in place: the returned map is the source map itself, so folding a list of
// partial updates into one accumulator keeps the accumulator identity stable. Callers that need
// the pre-merge value must DeepCopy it first. Values taken over from target are copied, so later
// merges into the result never write through to target. A nil target leaves source unchanged,
// a nil source or nil source map yields a copy of target.
func Merge(source, target any) any {
	if target == nil {
		return source
	}

	if isNilMap(source) {
		return deepCopyValue(target)
	}

	switch src := source.(type) {
	case map[string]any:
		tgt, ok := target.(map[string]any)
		if !ok {
			return deepCopyValue(target)
		}

		return mergeValues(src, tgt)

	case []any:
		if tgt, ok := target.([]any); ok {
			return append(src, deepCopyValue(tgt).([]any)...)
		}

		return append(src, deepCopyValue(target))
	}

	return mergeReflect(source, target)
}

// MergeValues merges target into source and returns source, allocating it when nil.
func MergeValues(source, target Values) Values {
	if source == nil {
		source = make(Values, len(target))
	}

	return mergeValues(source, target)
}

func mergeValues(source, target map[string]any) map[string]any {
	for key, targetValue := range target {
		sourceValue, exists := source[key]
		if !exists {
			source[key] = deepCopyValue(targetValue)
			continue
		}

		source[key] = Merge(sourceValue, targetValue)
	}

	return source
}

// mergeReflect handles typed slices, sets and maps that are not the plain JSON-like shapes.
func mergeReflect(source, target any) any {
	src := reflect.ValueOf(source)
	tgt := reflect.ValueOf(target)

	switch src.Kind() {
	case reflect.Slice:
		if tgt.Type() == src.Type() {
			return reflect.AppendSlice(src, copyReflect(tgt)).Interface()
		}

		if tgt.Type().AssignableTo(src.Type().Elem()) {
			return reflect.Append(src, copyReflect(tgt)).Interface()
		}

	case reflect.Map:
		if tgt.Type() != src.Type() {
			return deepCopyValue(target)
		}

		isSet := src.Type().Elem().Kind() == reflect.Struct && src.Type().Elem().NumField() == 0

		iter := tgt.MapRange()
		for iter.Next() {
			key, value := iter.Key(), iter.Value()
			existing := src.MapIndex(key)
			if isSet || !existing.IsValid() {
				src.SetMapIndex(key, copyReflect(value))
				continue
			}

			merged := reflect.ValueOf(Merge(existing.Interface(), value.Interface()))
			if !merged.IsValid() || !merged.Type().AssignableTo(src.Type().Elem()) {
				merged = copyReflect(value)
			}

			src.SetMapIndex(key, merged)
		}

		return src.Interface()
	}

	return deepCopyValue(target)
}

func isNilMap(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)

	return v.Kind() == reflect.Map && v.IsNil()
}

// DeepCopy returns a recursive copy of values.
// Nested maps and slices are copied; any other value (pointers, clients, pools) is shared.
func DeepCopy(values Values) Values {
	if values == nil {
		return Values{}
	}

	return deepCopyValue(values).(Values)
}

func deepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = deepCopyValue(item)
		}

		return out

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopyValue(item)
		}

		return out

	case map[string]string:
		out := make(map[string]string, len(v))
		for key, item := range v {
			out[key] = item
		}

		return out

	case []string:
		return append([]string(nil), v...)
	}

	switch rv := reflect.ValueOf(value); rv.Kind() {
	case reflect.Map, reflect.Slice:
		return copyReflect(rv).Interface()
	}

	return value
}

// copyReflect copies typed maps and slices recursively. Other kinds are returned as they are.
func copyReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}

		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyReflect(iter.Value()))
		}

		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}

		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyReflect(v.Index(i)))
		}

		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}

		out := reflect.New(v.Type()).Elem()
		out.Set(copyReflect(v.Elem()))

		return out
	}

	return v
}
