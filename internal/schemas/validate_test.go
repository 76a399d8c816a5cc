package schemas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bundled "github.com/jonathan/data-augmenter/schemas"
)

const personSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string"},
		"person": {
			"type": "object",
			"required": ["name"],
			"properties": {"name": {"type": "string"}}
		}
	}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestValidateJSON_Files(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", personSchema)

	assert.NoError(t, ValidateJSON(schemaPath, writeFile(t, dir, "ok.json", `{"name": "x"}`)))

	err := ValidateJSON(schemaPath, writeFile(t, dir, "missing.json", `{"age": 3}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Errors)

	err = ValidateJSON(schemaPath, writeFile(t, dir, "wrong.json", `{"name": 3}`))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Errors[0].Field)
}

func TestValidateJSON_NotFound(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", personSchema)

	err := ValidateJSON(filepath.Join(dir, "nope.json"), schemaPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	err = ValidateJSON(schemaPath, filepath.Join(dir, "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateJSON_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", personSchema)
	err := ValidateJSON(schemaPath, writeFile(t, dir, "bad.json", "{ invalid json }"))
	require.Error(t, err)
}

func TestValidateJSON_NestedField(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", personSchema)

	err := ValidateJSON(schemaPath, writeFile(t, dir, "nested.json", `{"name": "x", "person": {}}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "person", verr.Errors[0].Field)
}

func TestValidateJSON_BrokenSchema(t *testing.T) {
	dir := t.TempDir()
	err := ValidateJSON(writeFile(t, dir, "schema.json", `{"type": 12}`), writeFile(t, dir, "doc.json", `{}`))
	var serr *SchemaLoadError
	require.ErrorAs(t, err, &serr)
}

func TestValidationError_Messages(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "name", Message: "is required"},
			{Field: "age", Message: "must be a number"},
		},
	}
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "2. age: must be a number")
	assert.Equal(t, "name: is required; age: must be a number", err.Summary())
}

func TestValidateDocument_PipelineRequest(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"minimal", `{"source": "sources/a.csv", "config": {"method": "bootstrap_sampling", "target_row_count": 250}}`, false},
		{"with noise and seed", `{"source": "a.csv", "config": {"method": "noise_injection", "target_row_count": 20, "noise_level": 0.2, "seed": 7}}`, false},
		{"missing source", `{"config": {"method": "interpolation", "target_row_count": 20}}`, true},
		{"unknown method", `{"source": "a.csv", "config": {"method": "smote", "target_row_count": 20}}`, true},
		{"fractional target", `{"source": "a.csv", "config": {"method": "interpolation", "target_row_count": 2.5}}`, true},
		{"noise too high", `{"source": "a.csv", "config": {"method": "noise_injection", "target_row_count": 20, "noise_level": 0.9}}`, true},
		{"noise ignored by bootstrap", `{"source": "a.csv", "config": {"method": "bootstrap_sampling", "target_row_count": 20, "noise_level": 0.9}}`, false},
		{"extra field", `{"source": "a.csv", "config": {"method": "interpolation", "target_row_count": 20}, "user": "x"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(bundled.PipelineRequest, []byte(tt.doc))
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateDocument_UnknownSchema(t *testing.T) {
	err := ValidateDocument("missing.schema.json", []byte(`{}`))
	var serr *SchemaLoadError
	require.ErrorAs(t, err, &serr)
}

func TestValidateDocument_MalformedDocument(t *testing.T) {
	err := ValidateDocument(bundled.PipelineRequest, []byte(`{"source": `))
	require.Error(t, err)
}
