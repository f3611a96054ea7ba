// Package binding converts loosely typed UI submissions into typed models.
//
// Inputs always arrive as user-typed strings, so decoding is tolerant:
// numeric strings become numbers, yes/no style strings become booleans and
// RFC3339, date-only or epoch values become time.Time. Values that still
// cannot be converted are reported as field errors, never as a failure.
package binding

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ErrUnsupportedInput is returned by Normalize for input it cannot read as an object.
var ErrUnsupportedInput = errors.New("unsupported input")

// FormField is the field name used for errors that concern the whole submission.
const FormField = "_form"

// Decode binds values into a new T.
// The returned error is reserved for configuration problems (T cannot be
// decoded into at all); conversion problems come back as field errors.
func Decode[T any](values map[string]any) (T, []domain.FieldError, error) {
	var out T
	decoder, err := newDecoder(&out)
	if err != nil {
		return out, nil, domain.NewConfigError("binding", "cannot decode into %T: %v", out, err)
	}

	err = decoder.Decode(values)
	if err == nil {
		return out, nil, nil
	}

	var merr *mapstructure.Error
	if errors.As(err, &merr) {
		return out, fieldErrors(merr.Errors), nil
	}
	return out, []domain.FieldError{{Field: fieldFromMessage(err.Error()), Message: err.Error()}}, nil
}

// Bind normalizes input and decodes it in one step.
// Unreadable input is reported as a form-level field error.
func Bind[T any](input any) (T, map[string]any, []domain.FieldError, error) {
	values, err := Normalize(input)
	if err != nil {
		var zero T
		return zero, map[string]any{}, []domain.FieldError{{Field: FormField, Message: "submission could not be read"}}, nil
	}
	model, fieldErrs, err := Decode[T](values)
	return model, values, fieldErrs, err
}

func newDecoder(result any) (*mapstructure.Decoder, error) {
	target := reflect.TypeOf(result).Elem()
	switch target.Kind() {
	case reflect.Struct, reflect.Map:
	default:
		return nil, fmt.Errorf("model must be a struct or map, got %s", target.Kind())
	}

	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			StringToTimeHook(),
			StringToBoolHook(),
		),
	})
}

func fieldErrors(messages []string) []domain.FieldError {
	out := make([]domain.FieldError, 0, len(messages))
	for _, msg := range messages {
		out = append(out, domain.FieldError{
			Field:   fieldFromMessage(msg),
			Message: humanize(msg),
		})
	}
	return out
}

// mapstructure quotes the offending field name first: "cannot parse 'age' as int: ...".
func fieldFromMessage(msg string) string {
	start := strings.IndexByte(msg, '\'')
	if start < 0 {
		return FormField
	}
	end := strings.IndexByte(msg[start+1:], '\'')
	if end <= 0 {
		return FormField
	}
	return msg[start+1 : start+1+end]
}

func humanize(msg string) string {
	switch {
	case strings.Contains(msg, "as int"), strings.Contains(msg, "as uint"), strings.Contains(msg, "as float"):
		return "must be a number"
	case strings.Contains(msg, "as bool"):
		return "must be yes or no"
	case strings.Contains(msg, "as time"):
		return "must be a valid date"
	default:
		return "has an invalid value"
	}
}
