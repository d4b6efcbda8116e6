package receipt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/receipt-splitter/internal/model"
)

// DecodeObject extracts the JSON object from a model answer, validates it
// against schema and decodes it into out. Surrounding prose and markdown
// code blocks are ignored.
func DecodeObject(text string, schema *jsonschema.Schema, out any) error {
	return decode(text, "{", "}", schema, out)
}

// DecodeArray is DecodeObject for answers that should hold a JSON array
func DecodeArray(text string, schema *jsonschema.Schema, out any) error {
	return decode(text, "[", "]", schema, out)
}

func decode(text, open, close string, schema *jsonschema.Schema, out any) error {
	text = model.StripCodeFence(text)

	// Find the JSON boundaries - look for first opening and last closing delimiter
	startIdx := strings.Index(text, open)
	if startIdx == -1 {
		return fmt.Errorf("no JSON %s found in response", kind(open))
	}
	endIdx := strings.LastIndex(text, close)
	if endIdx == -1 || endIdx < startIdx {
		return fmt.Errorf("invalid JSON %s in response", kind(open))
	}
	raw := []byte(text[startIdx : endIdx+1])

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}
	if schema != nil {
		if err := schema.Validate(generic); err != nil {
			return fmt.Errorf("json does not match schema: %w", err)
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}
	return nil
}

func kind(open string) string {
	if open == "[" {
		return "array"
	}
	return "object"
}

// parseDocument decodes a structuring or fallback answer into a Document
func parseDocument(text string, schema *jsonschema.Schema) (*Document, error) {
	var doc Document
	if err := DecodeObject(text, schema, &doc); err != nil {
		return nil, err
	}
	if doc.Items == nil {
		doc.Items = []Item{}
	}
	if doc.Transaction != nil {
		doc.Transaction.Date = NormalizeDate(doc.Transaction.Date)
	}
	return &doc, nil
}

var dateLayouts = []struct {
	parse  string
	format string
}{
	{time.RFC3339, time.RFC3339},
	{"2006-01-02T15:04:05", "2006-01-02T15:04:05"},
	{"2006-01-02 15:04:05", "2006-01-02T15:04:05"},
	{"2006-01-02", "2006-01-02"},
	{"2006/01/02", "2006-01-02"},
	{"01/02/2006", "2006-01-02"},
	{"02-01-2006", "2006-01-02"},
}

// NormalizeDate rewrites a receipt date as ISO-8601. A date in no known
// layout is returned unchanged.
func NormalizeDate(date string) string {
	trimmed := strings.TrimSpace(date)
	if trimmed == "" {
		return date
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout.parse, trimmed); err == nil {
			return d.Format(layout.format)
		}
	}
	return date
}
