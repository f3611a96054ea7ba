package binding

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/xeipuuv/gojsonschema"
)

// Range bounds a numeric field. Nil ends are open.
type Range struct {
	Min *float64
	Max *float64
}

// Between is the closed range [min, max].
func Between(min, max float64) Range { return Range{Min: &min, Max: &max} }

// AtLeast is the range [min, +inf).
func AtLeast(min float64) Range { return Range{Min: &min} }

// AtMost is the range (-inf, max].
func AtMost(max float64) Range { return Range{Max: &max} }

// Rules are the declarative checks a card runs on every submission.
type Rules struct {
	Required []string
	Ranges   map[string]Range
}

// IsZero reports whether r checks nothing.
func (r Rules) IsZero() bool {
	return len(r.Required) == 0 && len(r.Ranges) == 0
}

// Schema compiles r into a JSON schema document.
func (r Rules) Schema() string {
	props := make(map[string]any, len(r.Ranges))
	for field, rng := range r.Ranges {
		p := map[string]any{"type": "number"}
		if rng.Min != nil {
			p["minimum"] = *rng.Min
		}
		if rng.Max != nil {
			p["maximum"] = *rng.Max
		}
		props[field] = p
	}
	doc := map[string]any{"type": "object", "properties": props}
	if len(r.Required) > 0 {
		doc["required"] = r.Required
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

// Document builds the object validated against schemas: the bound model in
// its JSON form, restricted to the keys the user actually submitted.
func Document(model any, values map[string]any) map[string]any {
	data, err := json.Marshal(model)
	if err != nil {
		return values
	}
	var encoded map[string]any
	if err := json.Unmarshal(data, &encoded); err != nil || encoded == nil {
		return values
	}

	out := make(map[string]any, len(values))
	for key, v := range encoded {
		if submitted(values, key) {
			out[key] = v
		}
	}
	return out
}

func submitted(values map[string]any, key string) bool {
	if HasValue(values, key) {
		return true
	}
	for k := range values {
		if strings.EqualFold(k, key) && HasValue(values, k) {
			return true
		}
	}
	return false
}

// SchemaValidator validates documents against JSON schemas, caching compiled schemas.
type SchemaValidator struct {
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{cache: make(map[string]*gojsonschema.Schema)}
}

// Validate checks doc against schemaJSON.
// An invalid schema is a configuration error.
func (sv *SchemaValidator) Validate(schemaJSON string, doc map[string]any) ([]domain.FieldError, error) {
	schema, err := sv.getSchema(schemaJSON)
	if err != nil {
		return nil, domain.NewConfigError("schema", "invalid JSON schema: %v", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	out := make([]domain.FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		out = append(out, toFieldError(desc))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}

func toFieldError(desc gojsonschema.ResultError) domain.FieldError {
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			field := prop
			if parent := desc.Field(); parent != "(root)" {
				field = parent + "." + prop
			}
			return domain.FieldError{Field: field, Message: "is required"}
		}
	}
	field := desc.Field()
	if field == "(root)" {
		field = FormField
	}
	return domain.FieldError{Field: field, Message: desc.Description()}
}

func (sv *SchemaValidator) getSchema(schemaJSON string) (*gojsonschema.Schema, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if schema, exists := sv.cache[schemaJSON]; exists {
		return schema, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, err
	}
	sv.cache[schemaJSON] = schema
	return schema, nil
}

// Default is the process-wide validator used by cards.
var Default = NewSchemaValidator()
