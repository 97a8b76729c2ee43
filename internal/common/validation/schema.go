package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// TurnRequestSchema describes the body of POST /v1/chat. Profile values are
// typed loosely here; their domain checks belong to the profile merger.
const TurnRequestSchema = `{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "language": {"type": "string", "enum": ["auto", "he", "en"]},
    "user_profile": {
      "type": ["object", "null"],
      "properties": {
        "fullName":   {"type": "string"},
        "idNumber":   {"type": "string"},
        "gender":     {"type": "string"},
        "age":        {"type": ["integer", "null"]},
        "provider":   {"type": "string"},
        "tier":       {"type": "string"},
        "cardNumber": {"type": "string"}
      }
    },
    "conversation_history": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role":    {"type": "string", "enum": ["user", "assistant"]},
          "content": {"type": "string"}
        }
      }
    }
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator holds a compiled schema and is safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// NewTurnRequestValidator compiles TurnRequestSchema.
func NewTurnRequestValidator() *Validator {
	v, err := NewValidator(TurnRequestSchema)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateBytes validates a raw JSON document. Malformed JSON is reported as a
// single error on the root field.
func (v *Validator) ValidateBytes(doc []byte) *ValidationResult {
	return v.validate(gojsonschema.NewBytesLoader(doc))
}

// ValidateInput validates an already decoded document.
func (v *Validator) ValidateInput(input interface{}) *ValidationResult {
	return v.validate(gojsonschema.NewGoLoader(input))
}

func (v *Validator) validate(loader gojsonschema.JSONLoader) *ValidationResult {
	result, err := v.schema.Validate(loader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "MALFORMED_JSON",
			}},
		}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })

	return &ValidationResult{
		Valid:  result.Valid(),
		Errors: errs,
	}
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a specific field
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}
