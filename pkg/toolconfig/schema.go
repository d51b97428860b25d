package toolconfig

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateParams checks AI-provided parameters against a function schema
// produced by BuildFunctionSchema. Returns nil when the parameters conform.
func ValidateParams(schema map[string]interface{}, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("failed to compile function schema: %w", err)
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := []string{}
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}
		return fmt.Errorf("%w: parameters do not match schema: %v", ErrInvalid, messages)
	}

	return nil
}
