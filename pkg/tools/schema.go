package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsval "github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateSchema reflects a JSON Schema document from an input struct.
// Builtin tools declare their arguments as structs and derive the schema
// instead of writing it by hand.
func GenerateSchema(v any) map[string]any {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	// The document is used inline, not as a standalone resource.
	delete(doc, "$id")
	return doc
}

// compileSchema turns a schema document into a validator. A nil document
// means the tool accepts anything.
func compileSchema(name string, doc map[string]any) (*jsval.Schema, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schema for %s: %w", name, err)
	}
	schema, err := jsval.CompileString(name+".schema.json", string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", name, err)
	}
	return schema, nil
}

// validateArgs checks the argument map against the compiled schema. The
// map is round-tripped through JSON so numeric types match what the
// validator expects.
func validateArgs(schema *jsval.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments are not serializable: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return err
	}
	return schema.Validate(normalized)
}

// decodeArgs fills the tool's typed input struct from the raw argument
// map. Validation has already run, so decode errors indicate a schema
// drift bug rather than bad input.
func decodeArgs(args map[string]any, out any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
