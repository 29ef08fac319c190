// Package validation checks tool configurations and workflow definitions
// at the boundary, before they reach storage or the scheduler.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentplate/agentplate/pkg/schema"
)

// One JSON Schema per tool type, keyed by the type value. Dispatch stays
// the authority on required fields at run time; these catch malformed
// configurations at create/update.
var toolConfigSchemas = map[schema.ToolType]string{
	schema.ToolTypeAPI: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["url"],
  "properties": {
    "url": { "type": "string", "minLength": 1 },
    "method": { "type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"] },
    "headers": { "type": "object", "additionalProperties": { "type": "string" } }
  },
  "additionalProperties": false
}`,
	schema.ToolTypeDatabase: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["table", "operation"],
  "properties": {
    "table": { "type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$" },
    "operation": { "type": "string", "enum": ["select", "insert", "update"] },
    "query": { "type": "string" }
  },
  "additionalProperties": false
}`,
	schema.ToolTypeFileSystem: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["bucket", "operation"],
  "properties": {
    "bucket": { "type": "string", "minLength": 1 },
    "operation": { "type": "string", "enum": ["upload", "download", "list"] }
  },
  "additionalProperties": false
}`,
	schema.ToolTypeCustom: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["functionName"],
  "properties": {
    "functionName": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": false
}`,
}

// ToolValidator validates tool configurations against per-type JSON
// Schemas. Safe for concurrent use; schemas are compiled once.
type ToolValidator struct {
	schemas map[schema.ToolType]*jsonschema.Schema
}

// NewToolValidator compiles the per-type schemas.
func NewToolValidator() (*ToolValidator, error) {
	c := jsonschema.NewCompiler()
	compiled := make(map[schema.ToolType]*jsonschema.Schema, len(toolConfigSchemas))
	for toolType, raw := range toolConfigSchemas {
		url := fmt.Sprintf("https://agentplate.dev/schemas/tools/%s.json", toolType)
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s tool schema: %w", toolType, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s tool schema: %w", toolType, err)
		}
		cs, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s tool schema: %w", toolType, err)
		}
		compiled[toolType] = cs
	}
	return &ToolValidator{schemas: compiled}, nil
}

// ValidateToolConfig checks a configuration document against the schema
// for the given tool type.
func (v *ToolValidator) ValidateToolConfig(toolType schema.ToolType, configuration map[string]any) error {
	cs, ok := v.schemas[toolType]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "unsupported tool type: %s", toolType)
	}

	doc, err := toJSONValue(schema.NormalizeDocument(configuration))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "serialize tool configuration").WithCause(err)
	}
	if err := cs.Validate(doc); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"invalid %s tool configuration: %s", toolType, err.Error()).WithCause(err)
	}
	return nil
}

// toJSONValue round-trips a value through encoding/json so the schema
// library sees plain JSON types.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
}
