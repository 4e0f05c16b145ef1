package shell

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
)

// safeMarshal serializes v to JSON, falling back to a stringified form for
// any value the encoder cannot handle (SPEC_FULL.md §4.4/§9: "a callable
// becomes 'Callable: <name>' or 'Unnamed callable'"). This endpoint must
// never fail to serialize.
func safeMarshal(v any) json.RawMessage {
	data, err := json.Marshal(sanitize(v))
	if err != nil {
		// Should be unreachable after sanitize, but keep the contract airtight.
		return json.RawMessage(fmt.Sprintf("%q", fmt.Sprintf("%v", v)))
	}
	return data
}

// sanitize walks v, replacing anything json.Marshal can't handle (funcs,
// channels, unsafe pointers) with a descriptive string.
func sanitize(v any) any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		name := runtimeFuncName(v)
		if name == "" {
			return "Unnamed callable"
		}
		return "Callable: " + name
	case reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%v", v)
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprintf("%v", iter.Key().Interface())] = sanitize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = sanitize(rv.Index(i).Interface())
		}
		return out
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitize(rv.Elem().Interface())
	default:
		return v
	}
}

func runtimeFuncName(v any) string {
	ptr := reflect.ValueOf(v).Pointer()
	fn := runtime.FuncForPC(ptr)
	if fn == nil {
		return ""
	}
	return fn.Name()
}
