package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
			"s": map[string]any{"type": "string"},
		},
		"required": []string{"x"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"x": 5.0, "extra": true}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)
	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "x", vErr.Field)

	err = ValidateParameters(map[string]any{"x": 1.5}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected type integer")

	// JSON decoded schema shape
	decoded := map[string]any{"properties": map[string]any{}, "required": []any{"s"}}
	assert.Error(t, ValidateParameters(map[string]any{}, decoded))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Tools: {{join \", \" .Tools}}", map[string]any{"Tools": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "Tools: a, b", out)

	plain, err := RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", plain)

	_, err = RenderTemplate("{{ .Broken", nil)
	assert.Error(t, err)
}
