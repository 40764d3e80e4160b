package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"jobId":          map[string]interface{}{"type": "string", "format": "uuid"},
		"message":        map[string]interface{}{"type": "string", "maxLength": 20},
		"proposedBudget": map[string]interface{}{"type": "number", "minimum": 0},
	},
	"required":             []interface{}{"jobId"},
	"additionalProperties": false,
}

func TestSchema_Validate(t *testing.T) {
	s, err := Compile("submit", testSchema)
	require.NoError(t, err)
	assert.Equal(t, "submit", s.Name())

	tests := []struct {
		name  string
		body  string
		valid bool
		field string
		code  string
	}{
		{"valid", `{"jobId":"6f1c3a52-8a43-4c59-9d4e-4a6a1f0d2b11","proposedBudget":120}`, true, "", ""},
		{"missing required", `{"message":"hi"}`, false, "jobId", "REQUIRED"},
		{"negative budget", `{"jobId":"6f1c3a52-8a43-4c59-9d4e-4a6a1f0d2b11","proposedBudget":-1}`, false, "proposedBudget", "NUMBER_GTE"},
		{"extra field", `{"jobId":"6f1c3a52-8a43-4c59-9d4e-4a6a1f0d2b11","status":"accepted"}`, false, "(root)", "ADDITIONAL_PROPERTY_NOT_ALLOWED"},
		{"malformed json", `{"jobId":`, false, "(root)", "INVALID_JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Validate([]byte(tt.body))
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				require.NotEmpty(t, result.Errors)
				assert.Equal(t, tt.field, result.Errors[0].Field)
				assert.Equal(t, tt.code, result.Errors[0].Code)
				assert.NotEmpty(t, result.Error())
			}
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile("broken", map[string]interface{}{"type": 12})
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustCompile("broken", map[string]interface{}{"type": 12})
	})
}
