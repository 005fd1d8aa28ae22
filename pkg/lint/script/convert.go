package script

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// toStarlark converts rule options to a Starlark value.
// Supported types: string, int, int64, float64, bool, []string, []any, map[string]any
func toStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case bool:
		return starlark.Bool(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := toStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported option type: %T", v)
	}
}

// toGo converts a Starlark result back to Go values for decoding.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil
func toGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", val.String())
		}
		return i64, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Bool:
		return bool(val), nil
	case *starlark.List:
		return sequenceToGo(val)
	case starlark.Tuple:
		return sequenceToGo(val)
	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := toGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", string(key), err)
			}
			result[string(key)] = gv
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported result type: %s", v.Type())
	}
}

func sequenceToGo(seq starlark.Indexable) ([]any, error) {
	result := make([]any, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		gv, err := toGo(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		result[i] = gv
	}
	return result, nil
}
