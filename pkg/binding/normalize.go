package binding

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize turns a raw UI submission into a plain map.
// Accepted forms: map[string]any, map[string]string, a JSON object as
// string, []byte or json.RawMessage. nil yields an empty map.
// Blank strings are dropped so they read as absent.
func Normalize(input any) (map[string]any, error) {
	var values map[string]any

	switch v := input.(type) {
	case nil:
		values = map[string]any{}
	case map[string]any:
		values = v
	case map[string]string:
		values = make(map[string]any, len(v))
		for k, s := range v {
			values[k] = s
		}
	case string:
		parsed, err := parseObject([]byte(v))
		if err != nil {
			return nil, err
		}
		values = parsed
	case []byte:
		parsed, err := parseObject(v)
		if err != nil {
			return nil, err
		}
		values = parsed
	case json.RawMessage:
		parsed, err := parseObject(v)
		if err != nil {
			return nil, err
		}
		values = parsed
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedInput, input)
	}

	return prune(values), nil
}

func parseObject(data []byte) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func prune(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch typed := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(typed) == "" {
				continue
			}
			out[k] = typed
		case map[string]any:
			out[k] = prune(typed)
		default:
			out[k] = v
		}
	}
	return out
}

// HasValue reports whether values contains key with a non-blank value.
func HasValue(values map[string]any, key string) bool {
	v, ok := values[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}
