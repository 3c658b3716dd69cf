package gateway

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// createSchema is the JSON Schema for POST /agent/create bodies.
const createSchema = `{
  "type": "object",
  "required": ["name"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 200},
    "systemPrompt": {"type": "string"},
    "model": {"type": "string", "enum": ["sonnet", "opus", "haiku"]},
    "allowedTools": {"type": "array", "items": {"type": "string"}},
    "disallowedTools": {"type": "array", "items": {"type": "string"}},
    "maxTurns": {"type": "integer", "exclusiveMinimum": 0},
    "maxBudgetUsd": {"type": "number", "exclusiveMinimum": 0},
    "permissionMode": {"type": "string", "enum": ["default", "plan", "bypassPermissions"]},
    "mcpServers": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["url"],
        "properties": {
          "url": {"type": "string", "minLength": 1},
          "options": {"type": "object"}
        }
      }
    },
    "cwd": {"type": "string"}
  }
}`

// querySchema is the JSON Schema for POST /agent/{id}/query bodies.
const querySchema = `{
  "type": "object",
  "required": ["prompt"],
  "additionalProperties": false,
  "properties": {
    "prompt": {"type": "string", "minLength": 1},
    "resume": {"type": "boolean"}
  }
}`

var (
	createSchemaLoader = gojsonschema.NewStringLoader(createSchema)
	querySchemaLoader  = gojsonschema.NewStringLoader(querySchema)
)

// validateBody checks raw JSON against a schema before any state is
// touched.
func validateBody(schemaLoader gojsonschema.JSONLoader, body []byte) error {
	documentLoader := gojsonschema.NewBytesLoader(body)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if !result.Valid() {
		var errMsg string
		for i, verr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += verr.String()
		}
		return fmt.Errorf("%s", errMsg)
	}
	return nil
}
