package binding_test

import (
	"testing"
	"time"

	"github.com/aretw0/tendril/pkg/binding"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lead struct {
	Name     string    `json:"name"`
	Age      int       `json:"age"`
	Premium  float64   `json:"premium"`
	Smoker   bool      `json:"smoker"`
	Birthday time.Time `json:"birthday"`
}

func TestNormalize_AcceptedForms(t *testing.T) {
	cases := map[string]any{
		"map[string]any":    map[string]any{"name": "Ana", "blank": "  "},
		"map[string]string": map[string]string{"name": "Ana", "blank": ""},
		"json string":       `{"name":"Ana","blank":""}`,
		"bytes":             []byte(`{"name":"Ana"}`),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := binding.Normalize(in)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"name": "Ana"}, got)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	_, err := binding.Normalize("not json")
	assert.ErrorIs(t, err, binding.ErrUnsupportedInput)

	_, err = binding.Normalize(42)
	assert.ErrorIs(t, err, binding.ErrUnsupportedInput)

	got, err := binding.Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecode_TolerantCoercion(t *testing.T) {
	values := map[string]any{
		"name":     "Ana",
		"age":      "42",
		"premium":  "199.90",
		"smoker":   "yes",
		"birthday": "1990-05-17",
	}
	got, errs, err := binding.Decode[lead](values)
	require.NoError(t, err)
	assert.Empty(t, errs)

	assert.Equal(t, 42, got.Age)
	assert.InDelta(t, 199.90, got.Premium, 0.001)
	assert.True(t, got.Smoker)
	assert.Equal(t, time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC), got.Birthday)
}

func TestDecode_BoolAndTimeVariants(t *testing.T) {
	for _, in := range []string{"true", "1", "on", "YES"} {
		got, errs, err := binding.Decode[lead](map[string]any{"smoker": in})
		require.NoError(t, err)
		assert.Empty(t, errs)
		assert.True(t, got.Smoker, in)
	}

	got, errs, err := binding.Decode[lead](map[string]any{"birthday": "0"})
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, int64(0), got.Birthday.Unix())

	got, _, _ = binding.Decode[lead](map[string]any{"birthday": "2024-01-02T03:04:05Z"})
	assert.Equal(t, 2024, got.Birthday.Year())
}

func TestDecode_UnconvertibleBecomesFieldError(t *testing.T) {
	got, errs, err := binding.Decode[lead](map[string]any{"name": "Ana", "age": "forty"})
	require.NoError(t, err, "conversion problems are never hard failures")
	require.Len(t, errs, 1)
	assert.Equal(t, "age", errs[0].Field)
	assert.Equal(t, "must be a number", errs[0].Message)
	assert.Equal(t, "Ana", got.Name, "other fields still bind")
}

func TestDecode_UnsupportedModelIsConfigError(t *testing.T) {
	_, _, err := binding.Decode[int](map[string]any{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestBind_UnreadableInputIsFormError(t *testing.T) {
	_, _, errs, err := binding.Bind[lead]("{broken")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, binding.FormField, errs[0].Field)
}

func TestRules_RequiredAndRanges(t *testing.T) {
	rules := binding.Rules{
		Required: []string{"name"},
		Ranges:   map[string]binding.Range{"age": binding.Between(18, 99)},
	}

	model, values, _, err := binding.Bind[lead](map[string]any{"age": "12"})
	require.NoError(t, err)

	errs, err := binding.Default.Validate(rules.Schema(), binding.Document(model, values))
	require.NoError(t, err)
	grouped := domain.GroupFieldErrors(errs)
	assert.Equal(t, []string{"is required"}, grouped["name"])
	assert.Len(t, grouped["age"], 1)

	model, values, _, _ = binding.Bind[lead](map[string]any{"name": "Ana", "age": "30"})
	errs, err = binding.Default.Validate(rules.Schema(), binding.Document(model, values))
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestRules_UnsubmittedRangeFieldIsNotChecked(t *testing.T) {
	rules := binding.Rules{Ranges: map[string]binding.Range{"age": binding.AtLeast(18)}}
	model, values, _, _ := binding.Bind[lead](map[string]any{"name": "Ana"})

	errs, err := binding.Default.Validate(rules.Schema(), binding.Document(model, values))
	require.NoError(t, err)
	assert.Empty(t, errs, "zero value of an absent field must not trip the range")
}

func TestSchemaValidator_InvalidSchema(t *testing.T) {
	_, err := binding.NewSchemaValidator().Validate(`{"type": 12}`, map[string]any{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSchemaValidator_Custom(t *testing.T) {
	schema := `{"type":"object","properties":{"email":{"type":"string","pattern":"@"}}}`
	errs, err := binding.NewSchemaValidator().Validate(schema, map[string]any{"email": "nope"})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "email", errs[0].Field)
}
