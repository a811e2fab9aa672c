package tool

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentree/core"
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// NewTypedTool builds a FunctionTool whose schema is reflected from T and
// whose arguments are decoded into a T before fn runs.
//
// Supported tags on T's fields:
//   - json:"name" / json:",omitempty" for naming and optionality
//   - jsonschema:"required,description=..." for required fields and docs
//
// Example:
//
//	type addDaysArgs struct {
//	  Date string `json:"date" jsonschema:"required,description=Start date YYYY-MM-DD"`
//	  Days int    `json:"days" jsonschema:"required,description=Days to add"`
//	}
//
//	NewTypedTool("add_days", "Add days to a date", func(tc *core.ToolContext, a addDaysArgs) (any, error) { ... })
func NewTypedTool[T any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args T) (any, error),
) *FunctionTool {
	schema, err := Schema[T]()
	if err != nil {
		// reflection of a plain struct cannot fail at runtime; a broken T is a programming error
		panic(fmt.Sprintf("tool %s: %v", name, err))
	}

	return NewFunctionTool(name, description, schema, func(toolCtx *core.ToolContext, raw map[string]any) (any, error) {
		var args T
		if err := Decode(raw, &args); err != nil {
			return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation, cause: err}
		}

		return fn(toolCtx, args)
	})
}

// Schema reflects a JSON schema object for T suitable for model tool definitions.
func Schema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	delete(m, "$schema")
	delete(m, "$id")

	if _, ok := m["properties"]; !ok {
		m["properties"] = map[string]any{}
	}

	return m, nil
}

// Decode converts loosely typed model arguments into out using json tags.
func Decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	return nil
}
