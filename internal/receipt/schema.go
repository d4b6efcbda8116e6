package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	optionalText   = map[string]any{"type": []any{"string", "null"}}
	optionalNumber = map[string]any{"type": []any{"number", "null"}}
	// identifiers such as receipt numbers come back as either strings or numbers
	optionalLoose = map[string]any{"type": []any{"string", "number", "null"}}
)

// documentSchema is the contract for the structuring stage. Only the total
// is mandatory; every numeric field must be a JSON number or null.
var documentSchema = map[string]any{
	"type":     "object",
	"required": []any{"summary"},
	"properties": map[string]any{
		"vendor": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"name":     optionalText,
				"address":  optionalText,
				"phone":    optionalLoose,
				"category": optionalText,
			},
		},
		"transaction": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"date":           optionalText,
				"time":           optionalLoose,
				"receipt_number": optionalLoose,
			},
		},
		"items": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        optionalText,
					"quantity":    optionalNumber,
					"unit_price":  optionalNumber,
					"total_price": optionalNumber,
					"category":    optionalText,
				},
			},
		},
		"summary": map[string]any{
			"type":     "object",
			"required": []any{"total"},
			"properties": map[string]any{
				"subtotal": optionalNumber,
				"tax_details": map[string]any{
					"type": []any{"array", "null"},
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"type":   optionalText,
							"amount": optionalNumber,
						},
					},
				},
				"discounts": map[string]any{
					"type": []any{"array", "null"},
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"description": optionalText,
							"amount":      optionalNumber,
						},
					},
				},
				"total": map[string]any{"type": "number"},
			},
		},
		"payment": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"method":      optionalText,
				"card_last_4": optionalLoose,
				"status":      optionalText,
			},
		},
	},
}

// fallbackSchema is the minimal contract used after the structuring stage
// has failed once
var fallbackSchema = map[string]any{
	"type":     "object",
	"required": []any{"summary"},
	"properties": map[string]any{
		"vendor": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"name": optionalText,
			},
		},
		"items": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":        optionalText,
					"total_price": optionalNumber,
				},
			},
		},
		"summary": map[string]any{
			"type":     "object",
			"required": []any{"total"},
			"properties": map[string]any{
				"total": map[string]any{"type": "number"},
			},
		},
		"error": optionalText,
	},
}

var (
	compiledDocumentSchema = MustCompileSchema("document.json", documentSchema)
	compiledFallbackSchema = MustCompileSchema("fallback.json", fallbackSchema)
)

// CompileSchema compiles a JSON Schema expressed as a Go map
func CompileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// MustCompileSchema is like CompileSchema but panics on error. It is meant
// for package-level schemas.
func MustCompileSchema(name string, schemaMap map[string]any) *jsonschema.Schema {
	schema, err := CompileSchema(name, schemaMap)
	if err != nil {
		panic(fmt.Sprintf("receipt: schema %s: %v", name, err))
	}
	return schema
}
