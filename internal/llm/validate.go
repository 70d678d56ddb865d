package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zeroinbox/mailsift/internal/common"
)

// ValidateObject checks a parsed completion against a schema map built by the
// Build*JSONSchema helpers. A failed check wraps common.ErrValidation; callers
// treat it as an unusable response, not as a fault.
func ValidateObject(schema map[string]any, obj map[string]any) error {
	b, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	// obj came out of json.Unmarshal, so it is already the decoded form the
	// validator expects.
	if err := compiled.Validate(obj); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
