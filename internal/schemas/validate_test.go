package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contactSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"age": {"type": "integer", "minimum": 0}
	}
}`

func compile(t *testing.T) *Validator {
	t.Helper()
	v, err := Compile(contactSchema)
	require.NoError(t, err)
	return v
}

func TestValidateBytes_Valid(t *testing.T) {
	assert.NoError(t, compile(t).ValidateBytes([]byte(`{"name": "Ada", "age": 36}`)))
}

func TestValidateBytes_Violations(t *testing.T) {
	err := compile(t).ValidateBytes([]byte(`{"name": "", "age": "old"}`))

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.ElementsMatch(t, []string{"name", "age"}, validationErr.Fields())
	assert.NotContains(t, err.Error(), "\n")
	assert.Contains(t, err.Error(), "; ")
}

func TestValidateBytes_MissingRequired(t *testing.T) {
	err := compile(t).ValidateBytes([]byte(`{"age": 36}`))

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, []string{"(root)"}, validationErr.Fields())
}

func TestValidateBytes_MalformedDocument(t *testing.T) {
	err := compile(t).ValidateBytes([]byte(`{"name": `))

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Contains(t, err.Error(), "malformed JSON")
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.ErrorContains(t, err, "invalid schema")
}
