package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const itemSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "integer", "minimum": 1},
		"category": {"type": "string"},
		"body": {"type": "string"},
		"sender": {"type": "string"},
		"created_at": {"type": "string"},
		"read": {"type": "boolean"},
		"ref": {
			"type": ["object", "null"],
			"required": ["type", "id"],
			"properties": {
				"type": {"enum": ["due", "activity"]},
				"id": {"type": "integer"}
			}
		}
	}
}`

// A list response is either a bare array of items or {"data": [...]}.
const listSchema = `{
	"$defs": {
		"items": {"type": "array", "items": {"$ref": "item.json"}}
	},
	"oneOf": [
		{"$ref": "#/$defs/items"},
		{
			"type": "object",
			"required": ["data"],
			"properties": {"data": {"$ref": "#/$defs/items"}}
		}
	]
}`

// A single item response is the item itself or {"data": item}.
const singleSchema = `{
	"oneOf": [
		{"$ref": "item.json"},
		{
			"type": "object",
			"required": ["data"],
			"properties": {"data": {"$ref": "item.json"}}
		}
	]
}`

// schemaBase anchors the schema resources; "$ref"s resolve against it.
const schemaBase = "https://memberdesk.invalid/schema/"

// schemas holds the compiled response validators.
type schemas struct {
	list   *jsonschema.Schema
	single *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()
	for name, src := range map[string]string{
		"item.json":   itemSchema,
		"list.json":   listSchema,
		"single.json": singleSchema,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBase+name, doc); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", name, err)
		}
	}

	list, err := c.Compile(schemaBase + "list.json")
	if err != nil {
		return nil, fmt.Errorf("compiling list schema: %w", err)
	}
	single, err := c.Compile(schemaBase + "single.json")
	if err != nil {
		return nil, fmt.Errorf("compiling item schema: %w", err)
	}
	return &schemas{list: list, single: single}, nil
}

// validate checks body against sch and returns the payload with any
// {"data": ...} envelope removed.
func validate(sch *jsonschema.Schema, body []byte) (json.RawMessage, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if obj, ok := inst.(map[string]any); ok {
		if _, enveloped := obj["data"]; enveloped {
			var env struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(body, &env); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			return env.Data, nil
		}
	}
	return body, nil
}
