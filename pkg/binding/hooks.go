package binding

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

var timeType = reflect.TypeOf(time.Time{})

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// StringToTimeHook converts ISO strings, date-only strings and epoch
// seconds (as string or number) into time.Time.
func StringToTimeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != timeType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return parseTime(v)
		case float64:
			return time.Unix(int64(v), 0).UTC(), nil
		case int:
			return time.Unix(int64(v), 0).UTC(), nil
		case int64:
			return time.Unix(v, 0).UTC(), nil
		default:
			return data, nil
		}
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

var truthy = map[string]bool{
	"yes": true, "y": true, "on": true, "sim": true, "checked": true,
	"no": false, "n": false, "off": false, "nao": false, "não": false,
}

// StringToBoolHook accepts yes/no and on/off in addition to what
// strconv.ParseBool understands.
func StringToBoolHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to.Kind() != reflect.Bool || from.Kind() != reflect.String {
			return data, nil
		}
		s := strings.ToLower(strings.TrimSpace(data.(string)))
		if b, ok := truthy[s]; ok {
			return b, nil
		}
		return data, nil
	}
}
